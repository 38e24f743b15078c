// Package cli implements the docflow command line.
package cli

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/docsummaryflow/internal/config"
)

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	cfg      *config.Config
	closeLog func() error
}

func NewRootCmd() *cobra.Command {
	a := &app{closeLog: func() error { return nil }}

	cmd := &cobra.Command{
		Use:   "docflow",
		Short: "Sectioned document intake, conversion and summarization",
		Long: `Docflow groups documents into sections, converts them to PDF,
rasterizes pages, extracts embedded images and sends each section to a
remote workflow for summarization. Completed sections export as one report.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
			slog.SetDefault(logger)
			a.cfg = cfg
			a.closeLog = closeLog
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.closeLog()
		},
	}

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newSectionsCmd(a))
	cmd.AddCommand(newConvertCmd(a))
	cmd.AddCommand(newRasterizeCmd(a))
	cmd.AddCommand(newExtractCmd(a))
	cmd.AddCommand(newSummarizeCmd(a))
	cmd.AddCommand(newExportCmd(a))

	return cmd
}
