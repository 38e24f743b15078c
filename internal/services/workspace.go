package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/docsummaryflow/internal/convert"
	"github.com/Lllllllleong/docsummaryflow/internal/extract"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
	"github.com/Lllllllleong/docsummaryflow/internal/raster"
	"github.com/Lllllllleong/docsummaryflow/internal/state"
)

// Workspace runs derived operations (convert, rasterize, extract) on files
// held in the store, tracking status and progress per file.
type Workspace struct {
	store     *state.Store
	engine    *convert.Engine
	raster    *raster.Rasterizer
	extractor *extract.Extractor
}

func NewWorkspace(store *state.Store) *Workspace {
	return &Workspace{
		store:     store,
		engine:    convert.NewEngine(),
		raster:    raster.New(),
		extractor: extract.New(),
	}
}

// Store exposes the underlying state store.
func (w *Workspace) Store() *state.Store { return w.store }

// Convert normalizes a file to PDF and returns the artifact. The artifact is
// not added to the section.
func (w *Workspace) Convert(ctx context.Context, id models.FileID) (*convert.Artifact, error) {
	var art *convert.Artifact
	err := w.run(ctx, id, models.OpConvert, func(f models.File, progress func(models.Progress)) error {
		var err error
		art, err = w.engine.Convert(ctx, convert.Input{Name: f.Name, MediaType: f.MediaType, Data: f.Data}, progress)
		return err
	})
	return art, err
}

// Rasterize renders a PDF file's pages.
func (w *Workspace) Rasterize(ctx context.Context, id models.FileID, opts raster.Options) ([]raster.Page, error) {
	var pages []raster.Page
	err := w.run(ctx, id, models.OpRasterize, func(f models.File, progress func(models.Progress)) error {
		if convert.Detect(f.Name, f.MediaType) != convert.KindPDF {
			return fmt.Errorf("rasterize %s: file is not a PDF, convert it first", f.Name)
		}
		var err error
		pages, err = w.raster.Rasterize(ctx, f.Name, f.Data, opts, progress)
		return err
	})
	return pages, err
}

// Extract recovers embedded images from a PDF file and stores them on the file.
// On failure the file's extracted images stay unset.
func (w *Workspace) Extract(ctx context.Context, id models.FileID) ([]models.ExtractedImage, error) {
	var images []models.ExtractedImage
	err := w.run(ctx, id, models.OpExtract, func(f models.File, progress func(models.Progress)) error {
		if convert.Detect(f.Name, f.MediaType) != convert.KindPDF {
			return fmt.Errorf("extract %s: file is not a PDF", f.Name)
		}
		var err error
		images, err = w.extractor.Extract(ctx, f.Data, progress)
		if err != nil {
			return err
		}
		_, err = w.store.Apply(state.SetExtractedImages{FileID: id, Images: images})
		return err
	})
	return images, err
}

// ExtractedImage looks up one previously extracted image.
func (w *Workspace) ExtractedImage(id models.FileID, name string) (models.ExtractedImage, error) {
	_, f, ok := w.store.File(id)
	if !ok {
		return models.ExtractedImage{}, fmt.Errorf("file %d: %w", id, models.ErrFileNotFound)
	}
	for _, img := range f.ExtractedImages {
		if img.Name == name {
			return img, nil
		}
	}
	return models.ExtractedImage{}, fmt.Errorf("image %s of file %d: %w", name, id, models.ErrFileNotFound)
}

func (w *Workspace) run(ctx context.Context, id models.FileID, op models.Operation, fn func(models.File, func(models.Progress)) error) error {
	st, err := w.store.Apply(state.BeginOperation{FileID: id, Op: op})
	if err != nil {
		return err
	}
	_, file, _ := st.File(id)
	logCtx := slog.With("fileId", id, "file", file.Name, "operation", op)
	logCtx.Info("Starting file operation.")

	progress := func(p models.Progress) {
		if _, err := w.store.Apply(state.ReportProgress{FileID: id, Progress: p}); err != nil {
			logCtx.Debug("Dropping progress update.", "error", err)
		}
	}

	opErr := fn(file, progress)
	if _, err := w.store.Apply(state.FinishOperation{FileID: id, Err: opErr}); err != nil {
		logCtx.Warn("Failed to record operation result.", "error", err)
	}
	if opErr != nil {
		logCtx.Error("File operation failed.", "error", opErr)
		return opErr
	}
	logCtx.Info("File operation complete.")
	return nil
}
