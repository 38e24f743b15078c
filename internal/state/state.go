// Package state holds the canonical in-memory model of sections and files.
//
// Every mutation is an Event applied by Reduce, a pure function that returns a
// new State and leaves its input untouched. Store serializes Reduce calls so
// each transition is atomic.
package state

import (
	"fmt"
	"maps"
	"slices"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// State is an immutable snapshot. Callers must treat the maps and slices
// reachable from it as read-only.
type State struct {
	Sections   map[string]models.Section
	Order      []string
	Applicant  models.Applicant
	NextFileID models.FileID
}

// New builds the initial state from a section catalogue. Every section starts
// pending with no files.
func New(catalogue []models.Section) State {
	s := State{
		Sections:   make(map[string]models.Section, len(catalogue)),
		Order:      make([]string, 0, len(catalogue)),
		Applicant:  models.Applicant{EmploymentType: models.EmploymentSalaried},
		NextFileID: 1,
	}
	for _, sec := range catalogue {
		sec.Status = models.StatusPending
		sec.Files = nil
		sec.Summary = ""
		sec.Notes = ""
		sec.LastError = ""
		s.Sections[sec.ID] = sec
		s.Order = append(s.Order, sec.ID)
	}
	return s
}

// Section returns the section with the given id.
func (s State) Section(id string) (models.Section, bool) {
	sec, ok := s.Sections[id]
	return sec, ok
}

// Ordered returns sections in catalogue order.
func (s State) Ordered() []models.Section {
	out := make([]models.Section, 0, len(s.Order))
	for _, id := range s.Order {
		out = append(out, s.Sections[id])
	}
	return out
}

// File locates a file by identity across all sections.
func (s State) File(id models.FileID) (string, models.File, bool) {
	for _, secID := range s.Order {
		for _, f := range s.Sections[secID].Files {
			if f.ID == id {
				return secID, f, true
			}
		}
	}
	return "", models.File{}, false
}

// Upload is a file entering a section.
type Upload struct {
	Name      string
	MediaType string
	Data      []byte
}

// Event is a state transition request.
type Event interface{ isEvent() }

type (
	AddFiles struct {
		SectionID string
		Files     []Upload
	}
	RemoveFile struct {
		SectionID string
		Index     int
	}
	SetNotes struct {
		SectionID string
		Notes     string
	}
	BeginSummarize struct {
		SectionID string
	}
	CompleteSummarize struct {
		SectionID string
		Summary   string
	}
	FailSummarize struct {
		SectionID string
		Reason    string
	}
	SetApplicant struct {
		Applicant models.Applicant
	}
	BeginOperation struct {
		FileID models.FileID
		Op     models.Operation
	}
	ReportProgress struct {
		FileID   models.FileID
		Progress models.Progress
	}
	FinishOperation struct {
		FileID models.FileID
		Err    error
	}
	SetExtractedImages struct {
		FileID models.FileID
		Images []models.ExtractedImage
	}
	ClearProgress struct {
		FileID models.FileID
	}
)

func (AddFiles) isEvent()           {}
func (RemoveFile) isEvent()         {}
func (SetNotes) isEvent()           {}
func (BeginSummarize) isEvent()     {}
func (CompleteSummarize) isEvent()  {}
func (FailSummarize) isEvent()      {}
func (SetApplicant) isEvent()       {}
func (BeginOperation) isEvent()     {}
func (ReportProgress) isEvent()     {}
func (FinishOperation) isEvent()    {}
func (SetExtractedImages) isEvent() {}
func (ClearProgress) isEvent()      {}

// Reduce applies ev to s. On error the returned state is s itself.
func Reduce(s State, ev Event) (State, error) {
	switch e := ev.(type) {
	case AddFiles:
		return s.updateSection(e.SectionID, func(next *State, sec *models.Section) error {
			files := slices.Clone(sec.Files)
			for _, u := range e.Files {
				files = append(files, models.File{
					ID:               next.NextFileID,
					Name:             u.Name,
					MediaType:        u.MediaType,
					Size:             len(u.Data),
					Data:             u.Data,
					ConversionStatus: models.ConversionIdle,
				})
				next.NextFileID++
			}
			sec.Files = files
			sec.Status = models.StatusUploaded
			return nil
		})

	case RemoveFile:
		return s.updateSection(e.SectionID, func(_ *State, sec *models.Section) error {
			if e.Index < 0 || e.Index >= len(sec.Files) {
				return fmt.Errorf("remove index %d of %d: %w", e.Index, len(sec.Files), models.ErrFileNotFound)
			}
			sec.Files = slices.Delete(slices.Clone(sec.Files), e.Index, e.Index+1)
			if len(sec.Files) == 0 {
				sec.Status = models.StatusPending
			}
			return nil
		})

	case SetNotes:
		return s.updateSection(e.SectionID, func(_ *State, sec *models.Section) error {
			sec.Notes = e.Notes
			return nil
		})

	case BeginSummarize:
		return s.updateSection(e.SectionID, func(_ *State, sec *models.Section) error {
			if len(sec.Files) == 0 {
				return models.ErrNoFiles
			}
			if sec.Status == models.StatusProcessing {
				return models.ErrSummarizeInProgress
			}
			sec.Status = models.StatusProcessing
			return nil
		})

	case CompleteSummarize:
		return s.updateSection(e.SectionID, func(_ *State, sec *models.Section) error {
			if e.Summary == "" {
				return fmt.Errorf("complete %s: empty summary", e.SectionID)
			}
			sec.Status = models.StatusComplete
			sec.Summary = e.Summary
			sec.LastError = ""
			return nil
		})

	case FailSummarize:
		return s.updateSection(e.SectionID, func(_ *State, sec *models.Section) error {
			sec.Status = models.StatusError
			sec.LastError = e.Reason
			return nil
		})

	case SetApplicant:
		next := s
		next.Applicant = e.Applicant
		if next.Applicant.EmploymentType == "" {
			next.Applicant.EmploymentType = models.EmploymentSalaried
		}
		return next, nil

	case BeginOperation:
		return s.updateFile(e.FileID, func(f *models.File) error {
			if f.ConversionStatus == models.ConversionConverting {
				return fmt.Errorf("%s on file %d (%s running): %w", e.Op, f.ID, f.Operation, models.ErrOperationInProgress)
			}
			f.ConversionStatus = models.ConversionConverting
			f.Operation = e.Op
			f.LastError = ""
			f.Progress = &models.Progress{Current: 0, Total: 100, Message: "Starting " + string(e.Op)}
			return nil
		})

	case ReportProgress:
		return s.updateFile(e.FileID, func(f *models.File) error {
			p := e.Progress
			f.Progress = &p
			return nil
		})

	case FinishOperation:
		return s.updateFile(e.FileID, func(f *models.File) error {
			if e.Err != nil {
				f.ConversionStatus = models.ConversionError
				f.LastError = e.Err.Error()
			} else {
				f.ConversionStatus = models.ConversionDone
			}
			f.Operation = ""
			return nil
		})

	case SetExtractedImages:
		return s.updateFile(e.FileID, func(f *models.File) error {
			images := slices.Clone(e.Images)
			if images == nil {
				images = []models.ExtractedImage{}
			}
			f.ExtractedImages = images
			return nil
		})

	case ClearProgress:
		return s.updateFile(e.FileID, func(f *models.File) error {
			if f.ConversionStatus != models.ConversionConverting {
				f.Progress = nil
			}
			return nil
		})
	}
	return s, fmt.Errorf("unknown event %T", ev)
}

func (s State) updateSection(id string, fn func(next *State, sec *models.Section) error) (State, error) {
	sec, ok := s.Sections[id]
	if !ok {
		return s, fmt.Errorf("%q: %w", id, models.ErrSectionNotFound)
	}
	next := s
	if err := fn(&next, &sec); err != nil {
		return s, err
	}
	next.Sections = maps.Clone(s.Sections)
	next.Sections[id] = sec
	return next, nil
}

func (s State) updateFile(id models.FileID, fn func(f *models.File) error) (State, error) {
	secID, _, ok := s.File(id)
	if !ok {
		return s, fmt.Errorf("file %d: %w", id, models.ErrFileNotFound)
	}
	return s.updateSection(secID, func(_ *State, sec *models.Section) error {
		files := slices.Clone(sec.Files)
		for i := range files {
			if files[i].ID == id {
				if err := fn(&files[i]); err != nil {
					return err
				}
				break
			}
		}
		sec.Files = files
		return nil
	})
}
