package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/casefill/internal/browser"
	"github.com/yangwenmai/casefill/internal/extract"
	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/store"
	"github.com/yangwenmai/casefill/internal/worker"
	"github.com/yangwenmai/casefill/internal/workflow"
)

// fakeQueue records jobs instead of running them.
type fakeQueue struct {
	mu     sync.Mutex
	jobs   []worker.Job
	active map[string]worker.Kind
	err    error
}

func (q *fakeQueue) Enqueue(j worker.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, j)
	return nil
}

func (q *fakeQueue) Active(caseID string) (worker.Kind, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	k, ok := q.active[caseID]
	return k, ok
}

type testEnv struct {
	handler http.Handler
	machine *workflow.Machine
	queue   *fakeQueue
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	backend, err := store.NewSQLiteBackend(db)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := store.New(backend, store.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	portal := browser.DefaultPortalConfig()
	svc := &extract.StubService{}
	m := workflow.New(s, workflow.DemoLauncher(portal, nil), browser.NewScriptedPortal(portal), svc, svc)
	q := &fakeQueue{active: map[string]worker.Kind{}}
	return &testEnv{handler: New(m, q, s).Handler(), machine: m, queue: q}
}

// waiting runs the initial phase of caseID synchronously.
func (e *testEnv) waiting(t *testing.T, caseID string) model.WorkflowContext {
	t.Helper()
	wc, err := e.machine.Start(context.Background(), caseID)
	require.NoError(t, err)
	require.Equal(t, model.PhaseWaitingForInput, wc.Phase)
	return wc
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode JSON: %v\nbody: %s", err, rr.Body.String())
	}
	return result
}

func TestStartCase(t *testing.T) {
	env := newTestServer(t)

	rr := doRequest(t, env.handler, "POST", "/api/cases", `{"case_id":" T-100 "}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "T-100", decodeJSON(t, rr)["case_id"])
	assert.Equal(t, []worker.Job{{Kind: worker.KindStart, CaseID: "T-100"}}, env.queue.jobs)
}

func TestStartCase_Invalid(t *testing.T) {
	env := newTestServer(t)

	rr := doRequest(t, env.handler, "POST", "/api/cases", `{"case_id":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, env.handler, "POST", "/api/cases", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, env.queue.jobs)
}

func TestStartCase_Busy(t *testing.T) {
	env := newTestServer(t)
	env.queue.err = worker.ErrBusy

	rr := doRequest(t, env.handler, "POST", "/api/cases", `{"case_id":"T-1"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	env.queue.err = worker.ErrQueueFull
	rr = doRequest(t, env.handler, "POST", "/api/cases", `{"case_id":"T-1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGetCase(t *testing.T) {
	env := newTestServer(t)
	env.waiting(t, "T-200")
	env.queue.active["T-200"] = worker.KindContinue

	rr := doRequest(t, env.handler, "GET", "/api/cases/T-200", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decodeJSON(t, rr)
	assert.Equal(t, model.PhaseWaitingForInput, got["phase"])
	assert.Equal(t, "continue", got["job"])
}

func TestGetCase_NotFound(t *testing.T) {
	env := newTestServer(t)
	rr := doRequest(t, env.handler, "GET", "/api/cases/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFields(t *testing.T) {
	env := newTestServer(t)
	wc := env.waiting(t, "T-300")

	rr := doRequest(t, env.handler, "GET", "/api/cases/T-300/fields", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var form struct {
		Required []model.BlankFieldDescriptor `json:"required"`
		Optional []model.BlankFieldDescriptor `json:"optional"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &form))
	assert.Len(t, append(form.Required, form.Optional...), len(wc.Descriptors))
}

func TestSubmitInputs(t *testing.T) {
	env := newTestServer(t)
	wc := env.waiting(t, "T-400")

	inputs := map[string]string{}
	for _, d := range wc.Descriptors {
		if d.Type == model.FieldTypeDropdown {
			inputs[d.Key] = d.Options[0]
		} else {
			inputs[d.Key] = "manual"
		}
	}
	body, err := json.Marshal(map[string]any{"inputs": inputs})
	require.NoError(t, err)

	rr := doRequest(t, env.handler, "POST", "/api/cases/T-400/inputs", string(body))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, model.PhaseContinuing, decodeJSON(t, rr)["phase"])
	assert.Equal(t, []worker.Job{{Kind: worker.KindContinue, CaseID: "T-400"}}, env.queue.jobs)

	// The case is no longer waiting.
	rr = doRequest(t, env.handler, "POST", "/api/cases/T-400/inputs", string(body))
	assert.Equal(t, http.StatusConflict, rr.Code)
	rr = doRequest(t, env.handler, "GET", "/api/cases/T-400/fields", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSubmitInputs_Rejected(t *testing.T) {
	env := newTestServer(t)
	env.waiting(t, "T-500")

	rr := doRequest(t, env.handler, "POST", "/api/cases/T-500/inputs", `{"inputs":{}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	assert.NotEmpty(t, decodeJSON(t, rr)["missing"])
	assert.Empty(t, env.queue.jobs)

	rr = doRequest(t, env.handler, "GET", "/api/cases/T-500", "")
	assert.Equal(t, model.PhaseWaitingForInput, decodeJSON(t, rr)["phase"])
}

func TestResetAndContinue_Conflicts(t *testing.T) {
	env := newTestServer(t)
	env.waiting(t, "T-600")

	rr := doRequest(t, env.handler, "POST", "/api/cases/T-600/reset", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doRequest(t, env.handler, "POST", "/api/cases/T-600/continue", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestArtifacts(t *testing.T) {
	env := newTestServer(t)
	env.waiting(t, "T-700")

	rr := doRequest(t, env.handler, "GET", "/api/cases/T-700/artifacts?category=downloads", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var infos []model.ArtifactInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "bundle.zip", infos[0].Filename)

	rr = doRequest(t, env.handler, "GET", "/api/cases/T-700/artifacts?category=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, env.handler, "GET", "/api/cases/T-700/runs", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []model.Case
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}
