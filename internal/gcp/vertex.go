package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Summarizer Model Prompts ---
const SummarizerSystemPrompt = "You are a mortgage underwriting assistant. You read the supporting documents an applicant uploaded for one section of their application and produce a concise, factual summary for the broker. You must output your response as a single JSON object."

const SummarizerUserPrompt = `You will be provided with every document uploaded for the "%s" section of a mortgage application.

Follow these instructions:
1.  Read each document in full, including scanned pages and images.
2.  Extract the facts a broker needs for this section: names, dates, amounts, account or document numbers, employers, addresses.
3.  Flag anything missing, expired, illegible or inconsistent between documents.
4.  Do not speculate and do not add advice.

Return a JSON object with exactly one key, "summary", whose value is a plain-text summary. Use short lines separated by newlines.`

// VertexClient holds the pre-configured generative model used by the summarizer.
type VertexClient struct {
	SummarizerModel *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a new client holding the summarizer model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	summarizerModel := baseClient.GenerativeModel(modelName)
	summarizerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SummarizerSystemPrompt)},
	}
	summarizerModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		SummarizerModel: summarizerModel,
		baseClient:      baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
