package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Lllllllleong/docsummaryflow/internal/gcp"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// ProcessDocumentsConfig holds all configuration for the process-documents function.
type ProcessDocumentsConfig struct {
	ProjectID           string
	AuditSink           string
	FirestoreCollection string
	AuditSQLitePath     string
	WorkflowTimeout     time.Duration
}

// ProcessDocumentsFunction validates a section's file URLs, forwards them to
// the section's workflow endpoint and relays the summary.
type ProcessDocumentsFunction struct {
	forwarder *Forwarder
	sink      AuditSink
	now       func() time.Time
	pending   sync.WaitGroup
}

// NewProcessDocuments creates the function from environment configuration.
func NewProcessDocuments(ctx context.Context) (*ProcessDocumentsFunction, error) {
	timeout, err := time.ParseDuration(gcp.GetEnv("WORKFLOW_TIMEOUT", "120s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKFLOW_TIMEOUT: %w", err)
	}
	config := ProcessDocumentsConfig{
		ProjectID:           gcp.GetEnv("PROJECT_ID", ""),
		AuditSink:           gcp.GetEnv("AUDIT_SINK", "firestore"),
		FirestoreCollection: gcp.GetEnv("FIRESTORE_COLLECTION", "n8n_chat_histories"),
		AuditSQLitePath:     gcp.GetEnv("AUDIT_SQLITE_PATH", "docflow-audit.db"),
		WorkflowTimeout:     timeout,
	}

	sink, _, err := NewAuditSink(ctx, config.AuditSink, config.ProjectID, config.FirestoreCollection, config.AuditSQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit sink: %w", err)
	}

	var runner workflowRunner
	if config.ProjectID != "" {
		r, err := gcp.NewWorkflowRunner(ctx)
		if err != nil {
			return nil, err
		}
		runner = r
	}

	f := NewProcessDocumentsWith(NewForwarder(&http.Client{}, runner, config.WorkflowTimeout), sink)
	slog.Info("Process documents logic initialized.", "auditSink", config.AuditSink, "workflowsEnabled", runner != nil)
	return f, nil
}

// NewProcessDocumentsWith wires the function from explicit dependencies.
func NewProcessDocumentsWith(forwarder *Forwarder, sink AuditSink) *ProcessDocumentsFunction {
	if sink == nil {
		sink = LogAuditSink{}
	}
	return &ProcessDocumentsFunction{forwarder: forwarder, sink: sink, now: time.Now}
}

// Process forwards a validated request and returns the summary. The audit
// write happens in the background.
func (f *ProcessDocumentsFunction) Process(ctx context.Context, req *models.ProcessDocumentsRequest) (*models.ProcessDocumentsResponse, error) {
	logCtx := slog.With("sectionId", req.SectionID, "files", len(req.FileURLs))
	logCtx.Info("Forwarding documents to workflow.")

	fileURLs := req.FileURLs
	if fileURLs == nil {
		fileURLs = []string{}
	}
	resp, err := f.forwarder.Forward(ctx, req.WebhookURL, models.WorkflowRequest{
		SectionID: req.SectionID,
		FileURLs:  fileURLs,
		Timestamp: f.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		logCtx.Error("Workflow call failed.", "error", err)
		return nil, err
	}

	f.persist(models.AuditRecord{
		SessionID: req.SectionID,
		Message: models.AuditMessage{
			Type:    "webhook_response",
			Content: auditContent(resp),
			Files:   fileURLs,
		},
		CreatedAt: f.now().UTC(),
	})

	summary := SummaryFrom(resp)
	logCtx.Info("Workflow call complete.", "summaryLength", len(summary))
	return &models.ProcessDocumentsResponse{Summary: summary}, nil
}

func (f *ProcessDocumentsFunction) persist(rec models.AuditRecord) {
	f.pending.Add(1)
	go func() {
		defer f.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := f.sink.Record(ctx, rec); err != nil {
			w := &models.PersistenceWarning{SessionID: rec.SessionID, Err: err}
			slog.Warn("Database error.", "sessionId", w.SessionID, "error", w)
		}
	}()
}

// Drain waits for background audit writes to finish.
func (f *ProcessDocumentsFunction) Drain() {
	f.pending.Wait()
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "POST, OPTIONS",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type",
}

// ServeHTTP is the HTTP surface of the function.
func (f *ProcessDocumentsFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for k, v := range corsHeaders {
		w.Header().Set(k, v)
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method not allowed"})
		return
	}

	req, err := ParseProcessDocumentsRequest(r.Body)
	if err != nil {
		var invalid *models.InvalidPayloadError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request payload", Details: invalid.Details})
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	resp, err := f.Process(r.Context(), req)
	if err != nil {
		status, body := errorResponse(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func errorResponse(err error) (int, models.ErrorResponse) {
	var remote *models.RemoteWorkflowError
	if errors.As(err, &remote) {
		body := models.ErrorResponse{Error: remote.Message}
		if remote.Err != nil {
			body.Details = remote.Err.Error()
		}
		if remote.StatusCode != 0 {
			return http.StatusBadGateway, body
		}
		return http.StatusInternalServerError, body
	}
	return http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()}
}

// ParseProcessDocumentsRequest decodes and validates a request body. Validation
// failures are InvalidPayloadErrors.
func ParseProcessDocumentsRequest(body io.Reader) (*models.ProcessDocumentsRequest, error) {
	raw, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &models.InvalidPayloadError{Details: "Request body is empty"}
	}

	var generic any
	if err := json.Unmarshal(trimmed, &generic); err != nil {
		return nil, &models.InvalidPayloadError{Details: "Failed to parse request body"}
	}
	fields := map[string]json.RawMessage{}
	if _, ok := generic.(map[string]any); ok {
		_ = json.Unmarshal(trimmed, &fields)
	}

	var req models.ProcessDocumentsRequest
	if err := json.Unmarshal(fields["sectionId"], &req.SectionID); err != nil || req.SectionID == "" {
		return nil, &models.InvalidPayloadError{Details: "sectionId is required"}
	}
	var urls []any
	if err := json.Unmarshal(fields["fileUrls"], &urls); err != nil || urls == nil {
		return nil, &models.InvalidPayloadError{Details: "fileUrls must be an array"}
	}
	if err := json.Unmarshal(fields["webhookUrl"], &req.WebhookURL); err != nil || req.WebhookURL == "" {
		return nil, &models.InvalidPayloadError{Details: "webhookUrl is required"}
	}
	req.FileURLs = make([]string, 0, len(urls))
	for _, u := range urls {
		s, ok := u.(string)
		if !ok || s == "" {
			return nil, &models.InvalidPayloadError{Details: "All fileUrls must be non-empty strings"}
		}
		req.FileURLs = append(req.FileURLs, s)
	}
	return &req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}
