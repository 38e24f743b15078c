package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/docsummaryflow/internal/gcp"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// contentGenerator is satisfied by *genai.GenerativeModel.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// SummarizerConfig holds all configuration for the summarizer service.
type SummarizerConfig struct {
	ProjectID      string
	VertexAIRegion string
	Model          string
}

// SummarizerFunction is a workflow endpoint that summarizes a section's
// documents with Gemini.
type SummarizerFunction struct {
	model  contentGenerator
	closer func() error
	config SummarizerConfig
}

// NewSummarizer creates a SummarizerFunction from environment configuration.
func NewSummarizer(ctx context.Context) (*SummarizerFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	config := SummarizerConfig{
		ProjectID:      projectID,
		VertexAIRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		Model:          gcp.GetEnv("SUMMARIZER_MODEL", "gemini-1.5-pro"),
	}

	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	return &SummarizerFunction{model: vertexClient.SummarizerModel, closer: vertexClient.Close, config: config}, nil
}

// NewSummarizerWithModel wires the function to any content generator.
func NewSummarizerWithModel(model contentGenerator) *SummarizerFunction {
	return &SummarizerFunction{model: model, closer: func() error { return nil }}
}

func (f *SummarizerFunction) Close() error { return f.closer() }

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// Process summarizes the documents referenced by req.
func (f *SummarizerFunction) Process(ctx context.Context, req *models.WorkflowRequest) (*models.WorkflowResponse, error) {
	logCtx := slog.With("sectionId", req.SectionID, "files", len(req.FileURLs))
	if len(req.FileURLs) == 0 {
		logCtx.Info("No documents provided, nothing to summarize.")
		return &models.WorkflowResponse{Summary: "No documents were provided for this section."}, nil
	}

	parts := make([]genai.Part, 0, len(req.FileURLs)+1)
	for _, u := range req.FileURLs {
		parts = append(parts, genai.FileData{MIMEType: mimeTypeFor(u), FileURI: gcp.GCSURIFromPublicURL(u)})
	}
	parts = append(parts, genai.Text(fmt.Sprintf(gcp.SummarizerUserPrompt, req.SectionID)))

	resp, err := f.model.GenerateContent(ctx, parts...)
	if err != nil {
		logCtx.Error("Error calling Vertex AI.", "error", err)
		return nil, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text := responseText(resp)
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			logCtx.Error("Gemini response indicates refusal.", "response", text)
			return nil, fmt.Errorf("gemini response indicates refusal for section %s", req.SectionID)
		}
	}

	summary := parseSummary(text)
	if summary == "" {
		logCtx.Warn("No summary extracted from response.")
	}
	logCtx.Info("Summary generated.", "length", len(summary))
	return &models.WorkflowResponse{Summary: summary}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	s := strings.TrimSpace(b.String())
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseSummary accepts {"summary": "..."} and falls back to the raw text.
func parseSummary(text string) string {
	var out models.WorkflowResponse
	if err := json.Unmarshal([]byte(text), &out); err == nil && out.Summary != "" {
		return out.Summary
	}
	return text
}

func mimeTypeFor(u string) string {
	clean := u
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	switch ext := strings.ToLower(path.Ext(clean)); ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".txt":
		return "text/plain"
	default:
		if mt := mime.TypeByExtension(ext); mt != "" {
			return mt
		}
	}
	return "application/octet-stream"
}
