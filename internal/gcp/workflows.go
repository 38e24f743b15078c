package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"
)

// WorkflowScheme marks an endpoint that names a Cloud Workflows workflow
// instead of an HTTP webhook.
const WorkflowScheme = "workflows"

// ExecutionsAPI is the subset of the executions client the runner needs.
type ExecutionsAPI interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
	GetExecution(ctx context.Context, req *executionspb.GetExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

var _ ExecutionsAPI = (*executions.Client)(nil)

// ExecutionError reports a workflow execution that ended in a non-success state.
type ExecutionError struct {
	Name    string
	State   executionspb.Execution_State
	Payload string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s ended in state %s: %s", e.Name, e.State, e.Payload)
}

// WorkflowRunner starts executions and waits for them to finish.
type WorkflowRunner struct {
	api          ExecutionsAPI
	pollInterval time.Duration
}

// NewWorkflowRunner creates a runner backed by the real executions client.
func NewWorkflowRunner(ctx context.Context) (*WorkflowRunner, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return NewWorkflowRunnerWithAPI(client, 2*time.Second), nil
}

func NewWorkflowRunnerWithAPI(api ExecutionsAPI, pollInterval time.Duration) *WorkflowRunner {
	return &WorkflowRunner{api: api, pollInterval: pollInterval}
}

// ParseWorkflowURL turns workflows://projects/p/locations/l/workflows/w into
// the workflow resource name. ok is false for any other scheme.
func ParseWorkflowURL(raw string) (parent string, ok bool, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if u.Scheme != WorkflowScheme {
		return "", false, nil
	}
	parent = strings.Trim(u.Host+u.Path, "/")
	parts := strings.Split(parent, "/")
	if len(parts) != 6 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != "workflows" {
		return "", true, fmt.Errorf("workflow endpoint must be workflows://projects/<p>/locations/<l>/workflows/<w>, got %q", raw)
	}
	return parent, true, nil
}

// Run starts an execution of the workflow with argument as its JSON input
// and polls until it reaches a terminal state. It returns the execution result.
func (r *WorkflowRunner) Run(ctx context.Context, parent string, argument []byte) ([]byte, error) {
	exec, err := r.api.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    parent,
		Execution: &executionspb.Execution{Argument: string(argument)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	logCtx := slog.With("execution", exec.GetName())
	logCtx.Info("Workflow execution started.")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		switch exec.GetState() {
		case executionspb.Execution_SUCCEEDED:
			logCtx.Info("Workflow execution succeeded.")
			return []byte(exec.GetResult()), nil
		case executionspb.Execution_FAILED, executionspb.Execution_CANCELLED, executionspb.Execution_UNAVAILABLE:
			return nil, &ExecutionError{Name: exec.GetName(), State: exec.GetState(), Payload: exec.GetError().GetPayload()}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for execution %s: %w", exec.GetName(), ctx.Err())
		case <-ticker.C:
		}

		exec, err = r.api.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: exec.GetName()})
		if err != nil {
			return nil, fmt.Errorf("failed to poll workflow execution: %w", err)
		}
	}
}
