package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
	"github.com/Lllllllleong/docsummaryflow/internal/services"
	"github.com/Lllllllleong/docsummaryflow/internal/state"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format     string
		summaries  string
		outDir     string
		email      string
		employment string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export saved section summaries as a PDF or Word report",
		Example: `  docflow export --summaries summaries.yaml --format docx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := services.ParseExportFormat(format)
			if err != nil {
				return err
			}
			saved, err := loadSummaries(summaries)
			if err != nil {
				return err
			}
			store, err := a.newStore()
			if err != nil {
				return err
			}
			defer store.Close()

			for id, summary := range saved {
				if _, err := store.Apply(state.CompleteSummarize{SectionID: id, Summary: summary}); err != nil {
					return fmt.Errorf("summary for %s: %w", id, err)
				}
			}
			if email != "" {
				applicant := models.Applicant{Email: email, EmploymentType: models.EmploymentType(employment)}
				if _, err := store.Apply(state.SetApplicant{Applicant: applicant}); err != nil {
					return err
				}
			}

			out, err := services.NewExporter().Export(store.Snapshot(), f)
			if err != nil {
				return err
			}
			dest := filepath.Join(outDir, out.Filename)
			if err := os.WriteFile(dest, out.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", dest, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d sections, all complete: %t)\n", dest, out.Sections, out.AllComplete)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "pdf", "Report format: pdf or docx")
	cmd.Flags().StringVar(&summaries, "summaries", "summaries.yaml", "YAML file written by docflow summarize --save")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")
	cmd.Flags().StringVar(&email, "email", "", "Applicant email for the report header")
	cmd.Flags().StringVar(&employment, "employment", "salaried", "Applicant employment type: salaried or self-employed")
	return cmd
}
