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
	summarizerInstance *services.SummarizerFunction
	once               sync.Once
	initErr            error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// A workflow endpoint: process-documents forwards {sectionId, fileUrls, timestamp} here.
	functions.HTTP("HandleSummarizeSection", handleSummarizeSection)
}

// main is required by the Go Functions Framework.
func main() {}

func handleSummarizeSection(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		summarizerInstance, initErr = services.NewSummarizer(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Summarizer initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := summarizerInstance.Process(r.Context(), &req)
	if err != nil {
		// The specific error is already logged inside the Process method.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "sectionId", req.SectionID)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
