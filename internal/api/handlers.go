package api

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Lllllllleong/docsummaryflow/internal/convert"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
	"github.com/Lllllllleong/docsummaryflow/internal/raster"
	"github.com/Lllllllleong/docsummaryflow/internal/services"
	"github.com/Lllllllleong/docsummaryflow/internal/state"
)

// acceptedUploads lists the extensions a section accepts. .doc is accepted for
// summarization even though it cannot be converted.
var acceptedUploads = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".doc": true, ".docx": true, ".txt": true,
}

type sectionsResponse struct {
	Sections  []models.Section `json:"sections"`
	Applicant models.Applicant `json:"applicant"`
}

type extractResponse struct {
	Images []imageRef `json:"images"`
}

type imageRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) listSections(w http.ResponseWriter, r *http.Request) {
	st := s.workspace.Store().Snapshot()
	writeJSON(w, http.StatusOK, sectionsResponse{Sections: st.Ordered(), Applicant: st.Applicant})
}

func (s *Server) setApplicant(w http.ResponseWriter, r *http.Request) {
	var a models.Applicant
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid applicant", err.Error())
		return
	}
	switch a.EmploymentType {
	case "", models.EmploymentSalaried, models.EmploymentSelfEmployed:
	default:
		writeError(w, http.StatusBadRequest, "invalid applicant", fmt.Sprintf("unknown employment type %q", a.EmploymentType))
		return
	}
	st, err := s.workspace.Store().Apply(state.SetApplicant{Applicant: a})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Applicant)
}

func (s *Server) addFiles(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "sectionID")
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload", err.Error())
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "invalid upload", "no files in form field \"files\"")
		return
	}

	uploads := make([]state.Upload, 0, len(headers))
	for _, fh := range headers {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !acceptedUploads[ext] {
			writeError(w, http.StatusUnsupportedMediaType, "unsupported file type", fh.Filename)
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload", err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload", err.Error())
			return
		}
		mediaType := fh.Header.Get("Content-Type")
		if mediaType == "" || mediaType == "application/octet-stream" {
			mediaType = mime.TypeByExtension(ext)
		}
		if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
			mediaType = mt
		}
		uploads = append(uploads, state.Upload{Name: fh.Filename, MediaType: mediaType, Data: data})
	}

	st, err := s.workspace.Store().Apply(state.AddFiles{SectionID: sectionID, Files: uploads})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sec, _ := st.Section(sectionID)
	writeJSON(w, http.StatusCreated, sec)
}

func (s *Server) removeFile(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "sectionID")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file index", err.Error())
		return
	}
	st, err := s.workspace.Store().Apply(state.RemoveFile{SectionID: sectionID, Index: index})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sec, _ := st.Section(sectionID)
	writeJSON(w, http.StatusOK, sec)
}

func (s *Server) setNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid notes", err.Error())
		return
	}
	sectionID := chi.URLParam(r, "sectionID")
	st, err := s.workspace.Store().Apply(state.SetNotes{SectionID: sectionID, Notes: body.Notes})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sec, _ := st.Section(sectionID)
	writeJSON(w, http.StatusOK, sec)
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	summary, err := s.orchestrator.SummarizeSection(r.Context(), chi.URLParam(r, "sectionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ProcessDocumentsResponse{Summary: summary})
}

func fileID(r *http.Request) (models.FileID, error) {
	n, err := strconv.ParseInt(chi.URLParam(r, "fileID"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid file id: %w", err)
	}
	return models.FileID(n), nil
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	art, err := s.workspace.Convert(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeAttachment(w, art.Name, "application/pdf", art.Data)
}

func (s *Server) rasterize(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	deliver, err := raster.ParseDelivery(r.URL.Query().Get("deliver"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery", err.Error())
		return
	}

	if deliver == raster.DeliverReturn {
		secID, _, ok := s.workspace.Store().File(id)
		if !ok {
			writeServiceError(w, fmt.Errorf("file %d: %w", id, models.ErrFileNotFound))
			return
		}
		added, _, err := s.orchestrator.UploadPagesAsImages(r.Context(), secID, id, false)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, added)
		return
	}

	_, f, _ := s.workspace.Store().File(id)
	var zw *zip.Writer
	onPage := func(p raster.Page) error {
		if zw == nil {
			w.Header().Set("Content-Type", "application/zip")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", convert.BaseName(f.Name)+"-pages.zip"))
			w.WriteHeader(http.StatusOK)
			zw = zip.NewWriter(w)
		}
		entry, err := zw.Create(p.Name)
		if err != nil {
			return err
		}
		if _, err := entry.Write(p.Data); err != nil {
			return err
		}
		if err := zw.Flush(); err != nil {
			return err
		}
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		return nil
	}

	_, err = s.workspace.Rasterize(r.Context(), id, raster.Options{Deliver: raster.DeliverDownload, OnPage: onPage})
	if zw == nil {
		if err != nil {
			writeServiceError(w, err)
		}
		return
	}
	if err != nil {
		// headers are already sent
		slog.Error("Rasterize download aborted.", "fileId", id, "error", err)
		return
	}
	if err := zw.Close(); err != nil {
		slog.Error("Failed to finish page archive.", "fileId", id, "error", err)
	}
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	images, err := s.workspace.Extract(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := extractResponse{Images: make([]imageRef, 0, len(images))}
	for _, img := range images {
		out.Images = append(out.Images, imageRef{
			Name: img.Name,
			URL:  fmt.Sprintf("/api/files/%d/images/%s", id, img.Name),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) extractedImage(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	img, err := s.workspace.ExtractedImage(id, chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(img.Data)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	format, err := services.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid format", err.Error())
		return
	}
	out, err := s.exporter.Export(s.workspace.Store().Snapshot(), format)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("X-All-Sections-Complete", strconv.FormatBool(out.AllComplete))
	writeAttachment(w, out.Filename, out.ContentType, out.Data)
}

func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		unsupported *models.ConversionUnsupportedError
		upload      *models.UploadError
		remote      *models.RemoteWorkflowError
	)
	switch {
	case errors.Is(err, models.ErrSectionNotFound), errors.Is(err, models.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoFiles):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSummarizeInProgress), errors.Is(err, models.ErrOperationInProgress):
		return http.StatusConflict
	case errors.As(err, &unsupported):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &upload), errors.As(err, &remote):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error(), "")
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, models.ErrorResponse{Error: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}
