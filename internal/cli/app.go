package cli

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/docsummaryflow/internal/gcp"
	"github.com/Lllllllleong/docsummaryflow/internal/services"
	"github.com/Lllllllleong/docsummaryflow/internal/state"
)

func (a *app) newStore() (*state.Store, error) {
	sections, err := a.cfg.Sections()
	if err != nil {
		return nil, err
	}
	return state.NewStore(sections, a.cfg.ProgressLinger), nil
}

// newOrchestrator wires GCS uploads and a backend: the deployed
// process-documents function when PROCESS_DOCUMENTS_URL is set, otherwise the
// same logic in-process. The returned func releases both.
func (a *app) newOrchestrator(ctx context.Context, ws *services.Workspace) (*services.Orchestrator, func(), error) {
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	objects, err := gcp.NewBucketStore(storageClient, a.cfg.UploadBucket, a.cfg.PublicBaseURL)
	if err != nil {
		storageClient.Close()
		return nil, nil, err
	}

	if a.cfg.ProcessDocumentsURL != "" {
		slog.Info("Using remote process-documents function.", "url", a.cfg.ProcessDocumentsURL)
		backend := services.NewProcessDocumentsClient(a.cfg.ProcessDocumentsURL, a.cfg.ProcessDocumentsToken, nil)
		return services.NewOrchestrator(ws, objects, backend), func() { storageClient.Close() }, nil
	}

	fn, err := services.NewProcessDocuments(ctx)
	if err != nil {
		storageClient.Close()
		return nil, nil, err
	}
	slog.Info("Using in-process document processing.", "auditSink", a.cfg.AuditSink)
	release := func() {
		fn.Drain()
		storageClient.Close()
	}
	return services.NewOrchestrator(ws, objects, services.NewLocalBackend(fn)), release, nil
}
