package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docsummaryflow/internal/gcp"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

type recordingSink struct {
	records chan models.AuditRecord
	err     error
}

func (s *recordingSink) Record(_ context.Context, rec models.AuditRecord) error {
	s.records <- rec
	return s.err
}

type fakeRunner struct {
	parent string
	arg    []byte
	out    []byte
	err    error
}

func (f *fakeRunner) Run(_ context.Context, parent string, argument []byte) ([]byte, error) {
	f.parent = parent
	f.arg = argument
	return f.out, f.err
}

func newFunction(t *testing.T, handler http.HandlerFunc) (*ProcessDocumentsFunction, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	fn := NewProcessDocumentsWith(NewForwarder(srv.Client(), nil, 5*time.Second), LogAuditSink{})
	fn.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 6, 789_000_000, time.UTC) }
	return fn, srv
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var out models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestParseProcessDocumentsRequestValidation(t *testing.T) {
	cases := []struct {
		body    string
		details string
	}{
		{``, "Request body is empty"},
		{`null`, "Request body is empty"},
		{`{not json`, "Failed to parse request body"},
		{`[]`, "sectionId is required"},
		{`{"fileUrls":[],"webhookUrl":"https://w"}`, "sectionId is required"},
		{`{"sectionId":"","fileUrls":[],"webhookUrl":"https://w"}`, "sectionId is required"},
		{`{"sectionId":"income","webhookUrl":"https://w"}`, "fileUrls must be an array"},
		{`{"sectionId":"income","fileUrls":"https://a","webhookUrl":"https://w"}`, "fileUrls must be an array"},
		{`{"sectionId":"income","fileUrls":[]}`, "webhookUrl is required"},
		{`{"sectionId":"income","fileUrls":["https://a",""],"webhookUrl":"https://w"}`, "All fileUrls must be non-empty strings"},
		{`{"sectionId":"income","fileUrls":[42],"webhookUrl":"https://w"}`, "All fileUrls must be non-empty strings"},
	}
	for _, tc := range cases {
		_, err := ParseProcessDocumentsRequest(strings.NewReader(tc.body))
		var invalid *models.InvalidPayloadError
		require.ErrorAs(t, err, &invalid, tc.body)
		assert.Equal(t, tc.details, invalid.Details, tc.body)
	}

	req, err := ParseProcessDocumentsRequest(strings.NewReader(`{"sectionId":"income","fileUrls":[],"webhookUrl":"https://w"}`))
	require.NoError(t, err)
	assert.NotNil(t, req.FileURLs)
	assert.Empty(t, req.FileURLs)
}

func TestServeHTTPPreflightAndMethod(t *testing.T) {
	fn, _ := newFunction(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	fn.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "authorization")

	rec = httptest.NewRecorder()
	fn.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", decodeError(t, rec).Error)
}

func TestServeHTTPInvalidPayload(t *testing.T) {
	fn, _ := newFunction(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("webhook must not be called")
	})
	rec := post(t, fn, `{"sectionId":"income"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Invalid request payload", body.Error)
	assert.Equal(t, "fileUrls must be an array", body.Details)
}

func TestServeHTTPForwardsEmptyFileList(t *testing.T) {
	var raw []byte
	fn, srv := newFunction(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"summary":"nothing to see"}`)
	})
	rec := post(t, fn, `{"sectionId":"other","fileUrls":[],"webhookUrl":"`+srv.URL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(raw, &sent))
	assert.Equal(t, "other", sent["sectionId"])
	assert.Equal(t, []any{}, sent["fileUrls"])
	assert.Equal(t, "2024-03-09T14:05:06.789Z", sent["timestamp"])

	var resp models.ProcessDocumentsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "nothing to see", resp.Summary)
}

func TestServeHTTPUpstreamFailureIsBadGateway(t *testing.T) {
	fn, srv := newFunction(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow crashed", http.StatusInternalServerError)
	})
	rec := post(t, fn, `{"sectionId":"income","fileUrls":["https://a/b.pdf"],"webhookUrl":"`+srv.URL+`"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Webhook error: 500", body.Error)
	assert.Equal(t, "workflow crashed", body.Details)
}

func TestServeHTTPUnreachableIsInternalError(t *testing.T) {
	fn, srv := newFunction(t, func(w http.ResponseWriter, r *http.Request) {})
	url := srv.URL
	srv.Close()

	rec := post(t, fn, `{"sectionId":"income","fileUrls":[],"webhookUrl":"`+url+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "webhook unreachable", decodeError(t, rec).Error)
}

func TestServeHTTPInvalidJSONResponse(t *testing.T) {
	fn, srv := newFunction(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>ok</html>")
	})
	rec := post(t, fn, `{"sectionId":"income","fileUrls":[],"webhookUrl":"`+srv.URL+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProcessPersistsInBackground(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"summary":{"netIncome":5000}}`)
	}))
	defer srv.Close()

	sink := &recordingSink{records: make(chan models.AuditRecord, 1), err: errors.New("firestore: unavailable")}
	fn := NewProcessDocumentsWith(NewForwarder(srv.Client(), nil, time.Second), sink)

	resp, err := fn.Process(context.Background(), &models.ProcessDocumentsRequest{
		SectionID: "income", FileURLs: []string{"https://a/b.pdf"}, WebhookURL: srv.URL,
	})
	require.NoError(t, err, "audit failures never reach the caller")
	assert.Equal(t, `{"netIncome":5000}`, resp.Summary)

	fn.Drain()
	rec := <-sink.records
	assert.Equal(t, "income", rec.SessionID)
	assert.Equal(t, "webhook_response", rec.Message.Type)
	assert.Equal(t, []string{"https://a/b.pdf"}, rec.Message.Files)
	assert.Equal(t, map[string]any{"netIncome": float64(5000)}, rec.Message.Content["summary"])
}

func TestForwardToWorkflow(t *testing.T) {
	runner := &fakeRunner{out: []byte(`{"summary":"from workflow"}`)}
	f := NewForwarder(nil, runner, time.Second)

	resp, err := f.Forward(context.Background(), "workflows://projects/p/locations/us-central1/workflows/summarize",
		models.WorkflowRequest{SectionID: "income", FileURLs: []string{}, Timestamp: "t"})
	require.NoError(t, err)
	assert.Equal(t, "from workflow", SummaryFrom(resp))
	assert.Equal(t, "projects/p/locations/us-central1/workflows/summarize", runner.parent)
	assert.JSONEq(t, `{"sectionId":"income","fileUrls":[],"timestamp":"t"}`, string(runner.arg))
}

func TestForwardToFailedWorkflow(t *testing.T) {
	runner := &fakeRunner{err: &gcp.ExecutionError{Name: "exec-1", State: executionspb.Execution_FAILED, Payload: "boom"}}
	f := NewForwarder(nil, runner, time.Second)

	_, err := f.Forward(context.Background(), "workflows://projects/p/locations/l/workflows/w", models.WorkflowRequest{SectionID: "income"})
	var remote *models.RemoteWorkflowError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadGateway, remote.StatusCode)
	assert.Equal(t, "Workflow execution failed", remote.Message)

	_, err = NewForwarder(nil, nil, 0).Forward(context.Background(), "workflows://projects/p/locations/l/workflows/w", models.WorkflowRequest{})
	require.ErrorAs(t, err, &remote)
	assert.Zero(t, remote.StatusCode)
}

func TestSummaryFrom(t *testing.T) {
	cases := []struct {
		resp any
		want string
	}{
		{map[string]any{"summary": "ok"}, "ok"},
		{map[string]any{"summary": ""}, DefaultSummary},
		{map[string]any{"summary": nil}, DefaultSummary},
		{map[string]any{"summary": false}, DefaultSummary},
		{map[string]any{"summary": float64(0)}, DefaultSummary},
		{map[string]any{"summary": float64(12)}, "12"},
		{map[string]any{"summary": []any{"a", "b"}}, `["a","b"]`},
		{map[string]any{"other": "x"}, DefaultSummary},
		{[]any{"summary"}, DefaultSummary},
		{"plain", DefaultSummary},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SummaryFrom(tc.resp), "%v", tc.resp)
	}
}

func TestNewAuditSink(t *testing.T) {
	sink, closeFn, err := NewAuditSink(context.Background(), "log", "", "", "")
	require.NoError(t, err)
	assert.IsType(t, LogAuditSink{}, sink)
	assert.NoError(t, closeFn())

	path := t.TempDir() + "/audit/docflow.db"
	sink, closeFn, err = NewAuditSink(context.Background(), "sqlite", "", "", path)
	require.NoError(t, err)
	defer closeFn()
	require.NoError(t, sink.Record(context.Background(), models.AuditRecord{SessionID: "s", Message: models.AuditMessage{Type: "webhook_response"}}))
	records, err := sink.(*SQLiteAuditSink).Records(context.Background(), "s")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].CreatedAt.IsZero())

	_, _, err = NewAuditSink(context.Background(), "postgres", "", "", "")
	assert.Error(t, err)
}
