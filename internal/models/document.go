package models

import "time"

// SectionStatus is the lifecycle state of a section's summarization.
type SectionStatus string

const (
	StatusPending    SectionStatus = "pending"
	StatusUploaded   SectionStatus = "uploaded"
	StatusProcessing SectionStatus = "processing"
	StatusError      SectionStatus = "error"
	StatusComplete   SectionStatus = "complete"
)

// ConversionStatus tracks the derived operation (convert, rasterize, extract)
// most recently run against a single file.
type ConversionStatus string

const (
	ConversionIdle       ConversionStatus = "idle"
	ConversionConverting ConversionStatus = "converting"
	ConversionDone       ConversionStatus = "done"
	ConversionError      ConversionStatus = "error"
)

// Operation names a long-running derived operation on a file.
type Operation string

const (
	OpConvert   Operation = "convert"
	OpRasterize Operation = "rasterize"
	OpExtract   Operation = "extract"
)

// EmploymentType is the applicant's declared employment category.
type EmploymentType string

const (
	EmploymentSalaried     EmploymentType = "salaried"
	EmploymentSelfEmployed EmploymentType = "self-employed"
)

// FileID is the immutable identity assigned to a file when it enters a section.
type FileID int64

// Progress is an informational snapshot of a running operation.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// ExtractedImage is one embedded raster image recovered from a PDF.
type ExtractedImage struct {
	Name string `json:"name"`
	Data []byte `json:"-"`
}

// File is one uploaded binary plus its derived state.
type File struct {
	ID               FileID           `json:"id"`
	Name             string           `json:"name"`
	MediaType        string           `json:"mediaType"`
	Size             int              `json:"size"`
	Data             []byte           `json:"-"`
	ConversionStatus ConversionStatus `json:"conversionStatus"`
	Operation        Operation        `json:"operation,omitempty"`
	LastError        string           `json:"lastError,omitempty"`
	Progress         *Progress        `json:"progress,omitempty"`
	// ExtractedImages is nil until extraction has run; an empty slice means
	// extraction ran and found nothing.
	ExtractedImages []ExtractedImage `json:"extractedImages"`
}

// IsPDF reports whether the file is already a paginated document.
func (f File) IsPDF() bool {
	return f.MediaType == "application/pdf"
}

// Section is one logical grouping of required documents.
type Section struct {
	ID          string        `json:"id" yaml:"id"`
	Title       string        `json:"title" yaml:"title"`
	Description string        `json:"description" yaml:"description"`
	WebhookURL  string        `json:"webhookUrl" yaml:"webhookUrl"`
	Status      SectionStatus `json:"status" yaml:"-"`
	Files       []File        `json:"files" yaml:"-"`
	Notes       string        `json:"notes,omitempty" yaml:"-"`
	Summary     string        `json:"summary,omitempty" yaml:"-"`
	LastError   string        `json:"lastError,omitempty" yaml:"-"`
}

// Applicant holds the optional details entered alongside the sections.
type Applicant struct {
	Email          string         `json:"email,omitempty"`
	EmploymentType EmploymentType `json:"employmentType"`
}

// AuditRecord is the durable log entry written after a successful workflow call.
// Field names match the chat-history table the workflow tooling reads.
type AuditRecord struct {
	SessionID string       `firestore:"session_id" json:"session_id"`
	Message   AuditMessage `firestore:"message" json:"message"`
	CreatedAt time.Time    `firestore:"createdAt,omitempty" json:"createdAt"`
}

// AuditMessage is the payload stored under AuditRecord.Message.
type AuditMessage struct {
	Type    string         `firestore:"type" json:"type"`
	Content map[string]any `firestore:"content" json:"content"`
	Files   []string       `firestore:"files" json:"files"`
}
