package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
	"github.com/Lllllllleong/docsummaryflow/internal/services"
)

var (
	processInstance *services.ProcessDocumentsFunction
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleProcessDocuments", handleProcessDocuments)
}

func main() {}

// handleProcessDocuments validates, forwards and relays; see ProcessDocumentsFunction.ServeHTTP.
func handleProcessDocuments(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		processInstance, initErr = services.NewProcessDocuments(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Process documents initialization failed", "error", initErr)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: "failed to initialize service", Details: initErr.Error()})
		return
	}
	processInstance.ServeHTTP(w, r)
}
