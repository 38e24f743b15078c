package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
	"github.com/Lllllllleong/docsummaryflow/internal/raster"
	"github.com/Lllllllleong/docsummaryflow/internal/state"
)

// ObjectStore uploads bytes and returns a public URL.
type ObjectStore interface {
	Put(ctx context.Context, data []byte, key, contentType string) (string, error)
}

// Backend invokes the process-documents function.
type Backend interface {
	ProcessDocuments(ctx context.Context, req models.ProcessDocumentsRequest) (string, error)
}

const uploadConcurrency = 8

// Orchestrator uploads a section's files and obtains its summary.
type Orchestrator struct {
	workspace *Workspace
	objects   ObjectStore
	backend   Backend
}

func NewOrchestrator(workspace *Workspace, objects ObjectStore, backend Backend) *Orchestrator {
	return &Orchestrator{workspace: workspace, objects: objects, backend: backend}
}

// SummarizeSection uploads every file of the section, calls the backend and
// records the outcome on the section.
func (o *Orchestrator) SummarizeSection(ctx context.Context, sectionID string) (string, error) {
	logCtx := slog.With("sectionId", sectionID)

	st, err := o.workspace.store.Apply(state.BeginSummarize{SectionID: sectionID})
	if err != nil {
		logCtx.Warn("Summarize rejected.", "error", err)
		return "", err
	}
	sec, _ := st.Section(sectionID)
	logCtx.Info("Summarizing section.", "files", len(sec.Files))

	urls, err := o.uploadAll(ctx, logCtx, sec)
	if err != nil {
		return "", o.handleError(logCtx, sectionID, "one or more files failed to upload", err)
	}

	summary, err := o.backend.ProcessDocuments(ctx, models.ProcessDocumentsRequest{
		SectionID:  sectionID,
		FileURLs:   urls,
		WebhookURL: sec.WebhookURL,
	})
	if err != nil {
		return "", o.handleError(logCtx, sectionID, "document processing failed", err)
	}
	if summary == "" {
		summary = DefaultSummary
	}

	if _, err := o.workspace.store.Apply(state.CompleteSummarize{SectionID: sectionID, Summary: summary}); err != nil {
		return "", o.handleError(logCtx, sectionID, "failed to record summary", err)
	}
	logCtx.Info("Section summarized.")
	return summary, nil
}

func (o *Orchestrator) uploadAll(ctx context.Context, logCtx *slog.Logger, sec models.Section) ([]string, error) {
	urls := make([]string, len(sec.Files))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(uploadConcurrency)

	for i, f := range sec.Files {
		key := ObjectKey(sec.ID, f.Name)
		eg.Go(func() error {
			url, err := o.objects.Put(gctx, f.Data, key, contentType(f))
			if err != nil {
				return &models.UploadError{Key: key, Err: err}
			}
			urls[i] = url
			logCtx.Debug("File uploaded.", "file", f.Name, "url", url)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	logCtx.Info("All files uploaded successfully.", "count", len(urls))
	return urls, nil
}

// UploadPagesAsImages rasterizes a PDF file, adds its pages to the section as
// PNG files and optionally summarizes the section afterwards.
func (o *Orchestrator) UploadPagesAsImages(ctx context.Context, sectionID string, fileID models.FileID, summarize bool) ([]models.File, string, error) {
	secID, _, ok := o.workspace.store.File(fileID)
	if !ok || secID != sectionID {
		return nil, "", fmt.Errorf("file %d in section %s: %w", fileID, sectionID, models.ErrFileNotFound)
	}

	pages, err := o.workspace.Rasterize(ctx, fileID, raster.Options{Deliver: raster.DeliverReturn})
	if err != nil {
		return nil, "", err
	}
	uploads := make([]state.Upload, len(pages))
	for i, p := range pages {
		uploads[i] = state.Upload{Name: p.Name, MediaType: "image/png", Data: p.Data}
	}
	st, err := o.workspace.store.Apply(state.AddFiles{SectionID: sectionID, Files: uploads})
	if err != nil {
		return nil, "", err
	}
	sec, _ := st.Section(sectionID)
	added := sec.Files[len(sec.Files)-len(uploads):]

	if !summarize {
		return added, "", nil
	}
	summary, err := o.SummarizeSection(ctx, sectionID)
	return added, summary, err
}

func (o *Orchestrator) handleError(logCtx *slog.Logger, sectionID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	reason := fmt.Sprintf("%s: %v", message, originalErr)
	if _, err := o.workspace.store.Apply(state.FailSummarize{SectionID: sectionID, Reason: reason}); err != nil {
		logCtx.Error("CRITICAL: Failed to mark section as failed.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// ObjectKey is {sectionId}/{uuid}.{ext}.
func ObjectKey(sectionID, name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%s.%s", sectionID, uuid.NewString(), strings.ToLower(ext))
}

func contentType(f models.File) string {
	if f.MediaType != "" {
		return f.MediaType
	}
	if ct := mime.TypeByExtension(filepath.Ext(f.Name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ProcessDocumentsClient calls a deployed process-documents function.
type ProcessDocumentsClient struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewProcessDocumentsClient(url, token string, httpClient *http.Client) *ProcessDocumentsClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ProcessDocumentsClient{url: url, token: token, httpClient: httpClient}
}

func (c *ProcessDocumentsClient) ProcessDocuments(ctx context.Context, req models.ProcessDocumentsRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("invalid backend url: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &models.RemoteWorkflowError{Message: "backend unreachable", Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 10<<20))

	if resp.StatusCode != http.StatusOK {
		var errBody models.ErrorResponse
		if json.Unmarshal(raw, &errBody) != nil || errBody.Error == "" {
			errBody.Error = fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)
		}
		rerr := &models.RemoteWorkflowError{StatusCode: resp.StatusCode, Message: errBody.Error}
		if errBody.Details != "" {
			rerr.Err = errors.New(errBody.Details)
		}
		return "", rerr
	}

	var out models.ProcessDocumentsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &models.RemoteWorkflowError{Message: "backend returned invalid JSON", Err: err}
	}
	return out.Summary, nil
}

// LocalBackend runs the process-documents logic in-process.
type LocalBackend struct {
	fn *ProcessDocumentsFunction
}

func NewLocalBackend(fn *ProcessDocumentsFunction) *LocalBackend {
	return &LocalBackend{fn: fn}
}

func (b *LocalBackend) ProcessDocuments(ctx context.Context, req models.ProcessDocumentsRequest) (string, error) {
	resp, err := b.fn.Process(ctx, &req)
	if err != nil {
		return "", err
	}
	return resp.Summary, nil
}
