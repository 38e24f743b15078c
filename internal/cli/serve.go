package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/docsummaryflow/internal/api"
	"github.com/Lllllllleong/docsummaryflow/internal/services"
)

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Example: `  # Start server on default port 8080
  docflow serve

  # Start server on custom port
  docflow serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.newStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ws := services.NewWorkspace(store)
			orch, release, err := a.newOrchestrator(cmd.Context(), ws)
			if err != nil {
				return err
			}
			defer release()

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           api.NewServer(ws, orch, services.NewExporter()).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Docflow API available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to listen on")
	return cmd
}
