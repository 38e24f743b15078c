package cli

import (
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/docsummaryflow/internal/convert"
	"github.com/Lllllllleong/docsummaryflow/internal/extract"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
	"github.com/Lllllllleong/docsummaryflow/internal/raster"
)

func logProgress(name string) func(models.Progress) {
	return func(p models.Progress) {
		slog.Debug("Progress", "file", name, "current", p.Current, "total", p.Total, "message", p.Message)
	}
}

func newConvertCmd(a *app) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert an image, .docx or text file to PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			in := convert.Input{Name: filepath.Base(path), MediaType: mime.TypeByExtension(filepath.Ext(path)), Data: data}
			art, err := convert.NewEngine().Convert(cmd.Context(), in, logProgress(in.Name))
			if err != nil {
				return err
			}
			dest := filepath.Join(outDir, art.Name)
			if err := os.WriteFile(dest, art.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", dest, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d pages)\n", dest, art.Pages)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")
	return cmd
}

func newRasterizeCmd(a *app) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "rasterize <file.pdf>",
		Short: "Render every page of a PDF to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			name := filepath.Base(path)
			opts := raster.Options{
				Deliver: raster.DeliverDownload,
				OnPage: func(p raster.Page) error {
					dest := filepath.Join(outDir, p.Name)
					if err := os.WriteFile(dest, p.Data, 0o644); err != nil {
						return fmt.Errorf("failed to write %s: %w", dest, err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), dest)
					return nil
				},
			}
			_, err = raster.New().Rasterize(cmd.Context(), name, data, opts, logProgress(name))
			return err
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "extract <file.pdf>",
		Short: "Extract embedded images from a PDF as PNG files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			images, err := extract.New().Extract(cmd.Context(), data, logProgress(filepath.Base(path)))
			if err != nil {
				return err
			}
			if len(images) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no embedded images found")
				return nil
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			for _, img := range images {
				dest := filepath.Join(outDir, img.Name+".png")
				if err := os.WriteFile(dest, img.Data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", dest, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), dest)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")
	return cmd
}
