package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSectionsCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "sections",
		Short: "List the section catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			sections, err := a.cfg.Sections()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch output {
			case "yaml":
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				type entry struct {
					ID          string `yaml:"id"`
					Title       string `yaml:"title"`
					Description string `yaml:"description"`
					WebhookURL  string `yaml:"webhookUrl"`
				}
				entries := make([]entry, len(sections))
				for i, s := range sections {
					entries[i] = entry{s.ID, s.Title, s.Description, s.WebhookURL}
				}
				return enc.Encode(map[string]any{"sections": entries})
			case "table":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tWEBHOOK")
				for _, s := range sections {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Title, s.WebhookURL)
				}
				return tw.Flush()
			}
			return fmt.Errorf("unknown output %q (want table or yaml)", output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or yaml")
	return cmd
}
