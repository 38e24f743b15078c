package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/docsummaryflow/internal/services"
)

var (
	extractorInstance *services.ImageExtractorFunction
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered by object finalize events on the upload bucket.
	functions.CloudEvent("ExtractImages", extractImages)
}

// main is required by the Go Functions Framework.
func main() {}

func extractImages(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		extractorInstance, initErr = services.NewImageExtractor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	res, err := extractorInstance.Process(ctx, gcsEvent)
	if err != nil {
		// Already logged with context; returning marks the invocation failed.
		return err
	}
	slog.Info("Extraction finished", "status", res.Status, "images", len(res.ObjectURIs), "gcsObject", gcsEvent.Name)
	return nil
}
