package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/docsummaryflow/internal/extract"
	"github.com/Lllllllleong/docsummaryflow/internal/gcp"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

type objectReader interface {
	Get(ctx context.Context, bucket, object string) ([]byte, error)
}

type objectSaver interface {
	SaveOnce(ctx context.Context, object string, data []byte, contentType string) (string, error)
}

// ImageExtractorConfig holds all configuration for the extract-images function.
type ImageExtractorConfig struct {
	ExtractedImagesBucket string
}

// ImageExtractorFunction extracts embedded images from PDFs landing in the
// upload bucket and writes them next to each other in a second bucket.
type ImageExtractorFunction struct {
	reader    objectReader
	saver     objectSaver
	extractor *extract.Extractor
	config    ImageExtractorConfig
}

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

func NewImageExtractor(ctx context.Context) (*ImageExtractorFunction, error) {
	config := ImageExtractorConfig{
		ExtractedImagesBucket: gcp.GetEnv("EXTRACTED_IMAGES_BUCKET", ""),
	}
	if config.ExtractedImagesBucket == "" {
		return nil, fmt.Errorf("EXTRACTED_IMAGES_BUCKET environment variable must be set")
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	store, err := gcp.NewBucketStore(storageClient, config.ExtractedImagesBucket, gcp.GetEnv("PUBLIC_BASE_URL", gcp.DefaultPublicBaseURL))
	if err != nil {
		return nil, err
	}
	slog.Info("Image extractor logic initialized.", "bucket", config.ExtractedImagesBucket)
	return NewImageExtractorWith(store, store, config), nil
}

func NewImageExtractorWith(reader objectReader, saver objectSaver, config ImageExtractorConfig) *ImageExtractorFunction {
	return &ImageExtractorFunction{reader: reader, saver: saver, extractor: extract.New(), config: config}
}

// Process extracts the images of one uploaded PDF. Non-PDF objects are ignored.
func (f *ImageExtractorFunction) Process(ctx context.Context, e GCSEvent) (*models.ExtractedImagesResponse, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if e.ContentType != "application/pdf" && !strings.HasSuffix(strings.ToLower(e.Name), ".pdf") {
		logCtx.Info("Object is not a PDF. Skipping.")
		return &models.ExtractedImagesResponse{Status: "skipped", ObjectURIs: []string{}}, nil
	}
	logCtx.Info("Processing new GCS object.")

	data, err := f.reader.Get(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return nil, err
	}

	images, err := f.extractor.Extract(ctx, data, nil)
	if err != nil {
		logCtx.Error("Failed to extract images", "error", err)
		return nil, fmt.Errorf("failed to extract images from %s: %w", e.Name, err)
	}

	prefix := strings.TrimSuffix(e.Name, ".pdf")
	uris := make([]string, 0, len(images))
	for _, img := range images {
		uri, err := f.saver.SaveOnce(ctx, fmt.Sprintf("%s/%s.png", prefix, img.Name), img.Data, "image/png")
		if err != nil {
			logCtx.Error("Failed to save extracted image", "image", img.Name, "error", err)
			return nil, err
		}
		uris = append(uris, uri)
	}
	logCtx.Info("Extracted images saved.", "count", len(uris))
	return &models.ExtractedImagesResponse{Status: "success", ObjectURIs: uris}, nil
}
