package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dramaproject/drama/bus"
	"github.com/dramaproject/drama/component"
	"github.com/dramaproject/drama/component/catalog"
	"github.com/dramaproject/drama/config"
	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/queue"
	"github.com/dramaproject/drama/state"
	"github.com/dramaproject/drama/storage"
	"github.com/dramaproject/drama/worker"
)

func newTestServer(t *testing.T) (*Server, *worker.Runtime) {
	t.Helper()

	dataDir := t.TempDir()
	registry := component.NewRegistry()
	catalog.Register(registry)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rt := &worker.Runtime{
		Store:     state.NewMemoryStore(),
		Bus:       bus.NewMemory(),
		Queue:     queue.NewMemory(),
		Registry:  registry,
		Storage:   storage.Select(storage.Options{DataDir: dataDir}, logger),
		Logger:    logger,
		DataDir:   dataDir,
		ActorOpts: config.DefaultActorOpts(),
	}

	cfg := &config.Config{
		APIHost:    "127.0.0.1",
		APIPort:    8080,
		APIKey:     "sesame",
		APIKeyName: "access_token",
	}

	return NewServer(rt, cfg), rt
}

const workflowBody = `{
	"tasks": [
		{"name": "Publisher", "module": "drama.catalog.points.PointPublisher", "params": {"x": 5, "y": 17}},
		{"name": "Reader", "module": "drama.catalog.points.PointReader", "inputs": {"Points": "Publisher.Point"}}
	],
	"metadata": {"author": "fran"}
}`

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRun(t *testing.T) {
	server, rt := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/workflow/run", strings.NewReader(workflowBody))
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var record model.WorkflowRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, model.WorkflowStatusPending, record.Status)
	assert.Equal(t, "fran", record.Meta.Author())

	assert.Equal(t, 2, rt.Queue.(*queue.Memory).Len(queue.DefaultQueueName))
}

func TestRun_InvalidWorkflow(t *testing.T) {
	server, _ := newTestServer(t)

	body := `{"tasks": [{"name": "bad name", "module": "m"}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/workflow/run", strings.NewReader(body))
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	server, _ := newTestServer(t)

	runRec := httptest.NewRecorder()
	server.Handler().ServeHTTP(runRec, httptest.NewRequest(http.MethodPost, "/api/v2/workflow/run", strings.NewReader(workflowBody)))
	require.Equal(t, http.StatusOK, runRec.Code)

	var record model.WorkflowRecord
	require.NoError(t, json.Unmarshal(runRec.Body.Bytes(), &record))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/workflow/status?id="+record.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status model.WorkflowRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Len(t, status.Tasks, 2)
}

func TestStatus_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/workflow/status?id=missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRevoke(t *testing.T) {
	server, rt := newTestServer(t)

	runRec := httptest.NewRecorder()
	server.Handler().ServeHTTP(runRec, httptest.NewRequest(http.MethodPost, "/api/v2/workflow/run", strings.NewReader(workflowBody)))
	require.Equal(t, http.StatusOK, runRec.Code)

	var record model.WorkflowRecord
	require.NoError(t, json.Unmarshal(runRec.Body.Bytes(), &record))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v2/workflow/revoke?id="+record.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var revoked model.WorkflowRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &revoked))
	assert.True(t, revoked.IsRevoked)

	// Revoking again is a no-op: is_revoked never reverts.
	again := httptest.NewRecorder()
	server.Handler().ServeHTTP(again, httptest.NewRequest(http.MethodPost, "/api/v2/workflow/revoke?id="+record.ID, nil))
	require.Equal(t, http.StatusOK, again.Code)

	workflow, err := rt.Store.Workflows().FindOne(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, workflow.IsRevoked)
}

func TestRevoke_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v2/workflow/revoke?id=missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTopic(t *testing.T) {
	server, rt := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/workflow/topic?id=wf1&component=Param&message=hello", nil)
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	reader, err := rt.Bus.Subscribe(context.Background(), "wf1-Param")
	require.NoError(t, err)
	defer reader.Close()

	record, err := reader.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(record.Value))
}

func TestDocs_APIKey(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name     string
		mutate   func(*http.Request)
		wantCode int
	}{
		{
			name:     "no key",
			mutate:   func(r *http.Request) {},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "wrong key",
			mutate:   func(r *http.Request) { r.Header.Set("access_token", "nope") },
			wantCode: http.StatusForbidden,
		},
		{
			name:     "query key",
			mutate:   func(r *http.Request) { r.URL.RawQuery = "access_token=sesame" },
			wantCode: http.StatusOK,
		},
		{
			name:     "header key",
			mutate:   func(r *http.Request) { r.Header.Set("access_token", "sesame") },
			wantCode: http.StatusOK,
		},
		{
			name:     "cookie key",
			mutate:   func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: "sesame"}) },
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil)
			tt.mutate(req)

			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
