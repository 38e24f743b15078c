package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/docsummaryflow/internal/gcp"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// workflowRunner executes a Cloud Workflows workflow and returns its result.
type workflowRunner interface {
	Run(ctx context.Context, parent string, argument []byte) ([]byte, error)
}

// Forwarder sends a WorkflowRequest to a webhook or a Cloud Workflows
// workflow and returns the decoded JSON response.
type Forwarder struct {
	httpClient *http.Client
	runner     workflowRunner
	timeout    time.Duration
}

func NewForwarder(httpClient *http.Client, runner workflowRunner, timeout time.Duration) *Forwarder {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Forwarder{httpClient: httpClient, runner: runner, timeout: timeout}
}

// Forward posts req to endpoint. Non-success responses and failed executions
// are RemoteWorkflowErrors with a non-zero StatusCode; an unreachable endpoint
// or a response that is not JSON yields StatusCode 0.
func (f *Forwarder) Forward(ctx context.Context, endpoint string, req models.WorkflowRequest) (any, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow payload: %w", err)
	}

	parent, isWorkflow, err := gcp.ParseWorkflowURL(endpoint)
	if err != nil {
		return nil, &models.RemoteWorkflowError{Message: "invalid workflow endpoint", Err: err}
	}
	if isWorkflow {
		return f.runWorkflow(ctx, parent, body)
	}
	return f.postWebhook(ctx, endpoint, body)
}

func (f *Forwarder) postWebhook(ctx context.Context, endpoint string, body []byte) (any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &models.RemoteWorkflowError{Message: "invalid webhook endpoint", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, &models.RemoteWorkflowError{Message: "webhook unreachable", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &models.RemoteWorkflowError{Message: "failed to read webhook response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.RemoteWorkflowError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Webhook error: %d", resp.StatusCode),
			Err:        errors.New(strings.TrimSpace(string(raw))),
		}
	}
	return decodeWorkflowResponse(raw)
}

func (f *Forwarder) runWorkflow(ctx context.Context, parent string, body []byte) (any, error) {
	if f.runner == nil {
		return nil, &models.RemoteWorkflowError{Message: "workflow endpoints are not configured", Err: errors.New("no workflow runner")}
	}
	raw, err := f.runner.Run(ctx, parent, body)
	if err != nil {
		var execErr *gcp.ExecutionError
		if errors.As(err, &execErr) {
			return nil, &models.RemoteWorkflowError{
				StatusCode: http.StatusBadGateway,
				Message:    fmt.Sprintf("Workflow execution %s", strings.ToLower(execErr.State.String())),
				Err:        err,
			}
		}
		return nil, &models.RemoteWorkflowError{Message: "workflow unreachable", Err: err}
	}
	slog.Debug("Workflow execution returned.", "workflow", parent, "bytes", len(raw))
	return decodeWorkflowResponse(raw)
}

func decodeWorkflowResponse(raw []byte) (any, error) {
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &models.RemoteWorkflowError{Message: "workflow returned invalid JSON", Err: err}
	}
	return out, nil
}

// DefaultSummary is reported when the workflow returns no summary.
const DefaultSummary = "Document processing initiated"

// SummaryFrom picks the summary out of a workflow response. Strings are
// returned as-is, other values as compact JSON.
func SummaryFrom(resp any) string {
	obj, ok := resp.(map[string]any)
	if !ok {
		return DefaultSummary
	}
	switch v := obj["summary"].(type) {
	case nil:
		return DefaultSummary
	case string:
		if v == "" {
			return DefaultSummary
		}
		return v
	case bool:
		if !v {
			return DefaultSummary
		}
	case float64:
		if v == 0 {
			return DefaultSummary
		}
	}
	b, err := json.Marshal(obj["summary"])
	if err != nil {
		return DefaultSummary
	}
	return string(b)
}

// auditContent shapes a workflow response for the audit record.
func auditContent(resp any) map[string]any {
	if obj, ok := resp.(map[string]any); ok {
		return obj
	}
	return map[string]any{"output": resp}
}
