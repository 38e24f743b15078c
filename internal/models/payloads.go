package models

// These structs define the JSON payloads exchanged between the orchestrator,
// the process-documents backend function and the external workflow endpoint.

// ProcessDocumentsRequest is the input for the process-documents function.
type ProcessDocumentsRequest struct {
	SectionID  string   `json:"sectionId"`
	FileURLs   []string `json:"fileUrls"`
	WebhookURL string   `json:"webhookUrl"`
}

// ProcessDocumentsResponse is the success output of the process-documents function.
type ProcessDocumentsResponse struct {
	Summary string `json:"summary"`
}

// ErrorResponse is returned by the process-documents function on failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WorkflowRequest is forwarded to the external workflow endpoint.
type WorkflowRequest struct {
	SectionID string   `json:"sectionId"`
	FileURLs  []string `json:"fileUrls"`
	Timestamp string   `json:"timestamp"`
}

// WorkflowResponse is the output of the reference summarizer workflow.
type WorkflowResponse struct {
	Summary string `json:"summary"`
}

// ExtractedImagesResponse lists the images written by the extract-images function.
type ExtractedImagesResponse struct {
	Status     string   `json:"status"`
	ObjectURIs []string `json:"objectUris"`
}
