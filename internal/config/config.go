// Package config loads the process configuration from the environment and the
// section catalogue from YAML.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/docsummaryflow/internal/gcp"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

//go:embed sections.yaml
var defaultSections []byte

// Config holds settings shared by the CLI, the HTTP shell and the orchestrator.
type Config struct {
	ProjectID             string
	UploadBucket          string
	PublicBaseURL         string
	ProcessDocumentsURL   string
	ProcessDocumentsToken string
	AuditSink             string
	FirestoreCollection   string
	AuditSQLitePath       string
	WorkflowTimeout       time.Duration
	VertexAIRegion        string
	SummarizerModel       string
	ExtractedImagesBucket string
	SectionsFile          string
	ProgressLinger        time.Duration
	LogLevel              slog.Level
	LogFile               string
}

// Load reads the environment. Only values that are malformed fail; missing
// cloud settings are checked by the components that need them.
func Load() (*Config, error) {
	cfg := &Config{
		ProjectID:             gcp.GetEnv("PROJECT_ID", ""),
		UploadBucket:          gcp.GetEnv("UPLOAD_BUCKET", "mortgage-docs"),
		PublicBaseURL:         strings.TrimRight(gcp.GetEnv("PUBLIC_BASE_URL", gcp.DefaultPublicBaseURL), "/"),
		ProcessDocumentsURL:   gcp.GetEnv("PROCESS_DOCUMENTS_URL", ""),
		ProcessDocumentsToken: gcp.GetEnv("PROCESS_DOCUMENTS_TOKEN", ""),
		AuditSink:             strings.ToLower(gcp.GetEnv("AUDIT_SINK", "firestore")),
		FirestoreCollection:   gcp.GetEnv("FIRESTORE_COLLECTION", "n8n_chat_histories"),
		AuditSQLitePath:       gcp.GetEnv("AUDIT_SQLITE_PATH", "docflow-audit.db"),
		VertexAIRegion:        gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		SummarizerModel:       gcp.GetEnv("SUMMARIZER_MODEL", "gemini-1.5-pro"),
		ExtractedImagesBucket: gcp.GetEnv("EXTRACTED_IMAGES_BUCKET", ""),
		SectionsFile:          gcp.GetEnv("SECTIONS_FILE", ""),
		LogFile:               gcp.GetEnv("LOG_FILE", "/tmp/docflow.log"),
	}

	var err error
	if cfg.WorkflowTimeout, err = time.ParseDuration(gcp.GetEnv("WORKFLOW_TIMEOUT", "120s")); err != nil {
		return nil, fmt.Errorf("invalid WORKFLOW_TIMEOUT: %w", err)
	}
	if cfg.ProgressLinger, err = time.ParseDuration(gcp.GetEnv("PROGRESS_LINGER", "2s")); err != nil {
		return nil, fmt.Errorf("invalid PROGRESS_LINGER: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(gcp.GetEnv("LOG_LEVEL", "INFO"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	switch cfg.AuditSink {
	case "firestore", "sqlite", "log":
	default:
		return nil, fmt.Errorf("AUDIT_SINK must be one of firestore, sqlite, log; got %q", cfg.AuditSink)
	}
	return cfg, nil
}

// Sections returns the configured catalogue, falling back to the embedded one.
func (c *Config) Sections() ([]models.Section, error) {
	if c.SectionsFile == "" {
		return ParseSections(defaultSections)
	}
	data, err := os.ReadFile(c.SectionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read sections file %s: %w", c.SectionsFile, err)
	}
	return ParseSections(data)
}

type catalogue struct {
	Sections []models.Section `yaml:"sections"`
}

// ParseSections decodes and validates a YAML section catalogue.
func ParseSections(data []byte) ([]models.Section, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse sections: %w", err)
	}
	if len(c.Sections) == 0 {
		return nil, fmt.Errorf("section catalogue is empty")
	}
	seen := make(map[string]bool, len(c.Sections))
	for i, sec := range c.Sections {
		if sec.ID == "" {
			return nil, fmt.Errorf("section %d: id is required", i)
		}
		if seen[sec.ID] {
			return nil, fmt.Errorf("section %q: duplicate id", sec.ID)
		}
		if sec.WebhookURL == "" {
			return nil, fmt.Errorf("section %q: webhookUrl is required", sec.ID)
		}
		seen[sec.ID] = true
	}
	return c.Sections, nil
}
