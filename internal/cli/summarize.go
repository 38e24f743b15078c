package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/docsummaryflow/internal/services"
	"github.com/Lllllllleong/docsummaryflow/internal/state"
)

func newSummarizeCmd(a *app) *cobra.Command {
	var (
		sectionID string
		saveTo    string
	)

	cmd := &cobra.Command{
		Use:   "summarize --section <id> <file>...",
		Short: "Upload files into a section and summarize it",
		Example: `  docflow summarize --section income payslip.png t4.pdf
  docflow summarize --section income --save summaries.yaml payslip.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.newStore()
			if err != nil {
				return err
			}
			defer store.Close()

			uploads := make([]state.Upload, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				uploads = append(uploads, state.Upload{
					Name:      filepath.Base(path),
					MediaType: mime.TypeByExtension(filepath.Ext(path)),
					Data:      data,
				})
			}
			if _, err := store.Apply(state.AddFiles{SectionID: sectionID, Files: uploads}); err != nil {
				return err
			}

			ws := services.NewWorkspace(store)
			orch, release, err := a.newOrchestrator(cmd.Context(), ws)
			if err != nil {
				return err
			}
			defer release()

			summary, err := orch.SummarizeSection(cmd.Context(), sectionID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), services.RenderSummary(summary))

			if saveTo != "" {
				return saveSummary(saveTo, sectionID, summary)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sectionID, "section", "s", "", "Section id (see docflow sections)")
	cmd.Flags().StringVar(&saveTo, "save", "", "Merge the summary into this YAML file for docflow export")
	_ = cmd.MarkFlagRequired("section")
	return cmd
}

// loadSummaries reads a sectionId -> summary YAML map. A missing file is empty.
func loadSummaries(path string) (map[string]string, error) {
	out := map[string]string{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return out, nil
}

func saveSummary(path, sectionID, summary string) error {
	summaries, err := loadSummaries(path)
	if err != nil {
		return err
	}
	summaries[sectionID] = summary
	data, err := yaml.Marshal(summaries)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
