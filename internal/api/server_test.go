package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
	"github.com/searchpulse/geo-analyzer/internal/queue"
)

type fakeService struct {
	submit    func(email, url string) (queue.SubmitResult, error)
	statuses  map[string]analysis.TaskStatus
	byEmail   []analysis.TaskStatus
	snapshot  queue.Snapshot
	reconcile func() (queue.ReconcileResult, error)
}

func (f *fakeService) Submit(_ context.Context, email, rawURL string) (queue.SubmitResult, error) {
	return f.submit(email, rawURL)
}

func (f *fakeService) Status(_ context.Context, taskID string) (analysis.TaskStatus, bool) {
	st, ok := f.statuses[taskID]
	return st, ok
}

func (f *fakeService) StatusesForEmail(string) []analysis.TaskStatus {
	return f.byEmail
}

func (f *fakeService) Snapshot() queue.Snapshot {
	return f.snapshot
}

func (f *fakeService) Reconcile(context.Context, time.Duration) (queue.ReconcileResult, error) {
	if f.reconcile != nil {
		return f.reconcile()
	}
	return queue.ReconcileResult{}, nil
}

func newTestServer(t *testing.T, svc AnalysisService, cfg Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(svc, cfg, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSubmitAnalysisAccepted(t *testing.T) {
	t.Parallel()

	svc := &fakeService{submit: func(email, url string) (queue.SubmitResult, error) {
		require.Equal(t, "user@example.com", email)
		require.Equal(t, "https://example.com", url)
		return queue.SubmitResult{
			TaskID: "abcdef0123456789",
			Status: analysis.TaskStatus{TaskID: "abcdef0123456789", Status: analysis.StatusQueued},
		}, nil
	}}
	srv := newTestServer(t, svc, Config{})

	resp := postJSON(t, srv.URL+"/analyze", map[string]string{
		"email": "user@example.com",
		"url":   "https://example.com",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := decode[map[string]any](t, resp)
	require.Equal(t, "abcdef0123456789", body["taskId"])
}

func TestSubmitAnalysisConflictOnDuplicate(t *testing.T) {
	t.Parallel()

	svc := &fakeService{submit: func(string, string) (queue.SubmitResult, error) {
		return queue.SubmitResult{
			Duplicate: true,
			TaskID:    "abcdef0123456789",
			Status:    analysis.TaskStatus{TaskID: "abcdef0123456789", Status: analysis.StatusProcessing},
		}, nil
	}}
	srv := newTestServer(t, svc, Config{})

	resp := postJSON(t, srv.URL+"/analyze", map[string]string{
		"email": "user@example.com",
		"url":   "https://example.com",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	require.Contains(t, body["error"], "already in progress")
}

func TestSubmitAnalysisBadRequest(t *testing.T) {
	t.Parallel()

	svc := &fakeService{submit: func(string, string) (queue.SubmitResult, error) {
		return queue.SubmitResult{}, fmt.Errorf("%w: malformed email", queue.ErrInvalidInput)
	}}
	srv := newTestServer(t, svc, Config{})

	resp := postJSON(t, srv.URL+"/analyze", map[string]string{"email": "nope", "url": "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(srv.URL+"/analyze", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestStatusByID(t *testing.T) {
	t.Parallel()

	svc := &fakeService{statuses: map[string]analysis.TaskStatus{
		"abcdef0123456789": {TaskID: "abcdef0123456789", Status: analysis.StatusCompleted},
	}}
	srv := newTestServer(t, svc, Config{})

	resp, err := http.Get(srv.URL + "/analysis-status/abcdef0123456789")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[analysis.TaskStatus](t, resp)
	require.Equal(t, analysis.StatusCompleted, st.Status)

	missing, err := http.Get(srv.URL + "/analysis-status/unknown")
	require.NoError(t, err)
	defer missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestStatusesByEmail(t *testing.T) {
	t.Parallel()

	svc := &fakeService{byEmail: []analysis.TaskStatus{
		{TaskID: "task-2", Status: analysis.StatusProcessing},
		{TaskID: "task-1", Status: analysis.StatusCompleted},
	}}
	srv := newTestServer(t, svc, Config{})

	resp, err := http.Get(srv.URL + "/analysis-status?email=user%40example.com")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	require.Equal(t, "user@example.com", body["email"])
	require.Len(t, body["analyses"], 2)

	noEmail, err := http.Get(srv.URL + "/analysis-status")
	require.NoError(t, err)
	defer noEmail.Body.Close()
	require.Equal(t, http.StatusBadRequest, noEmail.StatusCode)
}

func TestQueueStatus(t *testing.T) {
	t.Parallel()

	svc := &fakeService{snapshot: queue.Snapshot{
		QueueLength:  2,
		IsProcessing: true,
		CurrentTask:  &queue.TaskRef{TaskID: "abcdef0123456789"},
		QueueItems:   []queue.TaskRef{{TaskID: "t2"}, {TaskID: "t3"}},
	}}
	srv := newTestServer(t, svc, Config{})

	resp, err := http.Get(srv.URL + "/queue-status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[queue.Snapshot](t, resp)
	require.Equal(t, 2, snap.QueueLength)
	require.True(t, snap.IsProcessing)
	require.Equal(t, "abcdef0123456789", snap.CurrentTask.TaskID)
}

func TestReconcileRequiresBearerToken(t *testing.T) {
	t.Parallel()

	called := false
	svc := &fakeService{reconcile: func() (queue.ReconcileResult, error) {
		called = true
		return queue.ReconcileResult{Restored: 3, TotalConsidered: 5}, nil
	}}
	srv := newTestServer(t, svc, Config{AdminToken: "sekret"})

	// Missing token.
	resp := postJSON(t, srv.URL+"/reconcile-analyses", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, called)

	// Wrong token.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/reconcile-analyses", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	wrong, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer wrong.Body.Close()
	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)

	// Correct token.
	req, err = http.NewRequest(http.MethodPost, srv.URL+"/reconcile-analyses", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sekret")
	ok, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer ok.Body.Close()
	require.Equal(t, http.StatusOK, ok.StatusCode)
	require.True(t, called)
	res := decode[queue.ReconcileResult](t, ok)
	require.Equal(t, 3, res.Restored)
}

func TestReconcileDisabledWithoutToken(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeService{}, Config{})
	resp := postJSON(t, srv.URL+"/reconcile-analyses", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeService{}, Config{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		_ = resp.Body.Close()
	}
}
