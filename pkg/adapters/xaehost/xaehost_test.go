package xaehost_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/flowforge/pkg/adapters/xaehost"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost records requests per route. The first busyCompiles compile calls
// answer 503.
type fakeHost struct {
	mu           sync.Mutex
	calls        []string
	bodies       map[string]map[string]any
	busyCompiles int
	diagnostics  ports.Diagnostics
}

func (h *fakeHost) router() http.Handler {
	r := chi.NewRouter()
	record := func(name string, req *http.Request) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.calls = append(h.calls, name)
		var body map[string]any
		if json.NewDecoder(req.Body).Decode(&body) == nil {
			h.bodies[name] = body
		}
	}
	ok := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			record(name, req)
			w.WriteHeader(http.StatusNoContent)
		}
	}

	r.Post("/sessions", func(w http.ResponseWriter, req *http.Request) {
		record("open", req)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "s-1"})
	})
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Post("/solution", ok("solution"))
		r.Post("/project", ok("project"))
		r.Post("/units", ok("units"))
		r.Post("/tasks", ok("tasks"))
		r.Post("/boot", ok("boot"))
		r.Post("/activate", func(w http.ResponseWriter, req *http.Request) {
			record("activate", req)
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "no route to target"})
		})
		r.Post("/compile", func(w http.ResponseWriter, req *http.Request) {
			record("compile", req)
			h.mu.Lock()
			busy := h.busyCompiles > 0
			h.busyCompiles--
			h.mu.Unlock()
			if busy {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(h.diagnostics)
		})
		r.Delete("/", ok("close"))
	})
	return r
}

func (h *fakeHost) snapshot() ([]string, map[string]map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...), h.bodies
}

func newHost(t *testing.T, h *fakeHost) *xaehost.Client {
	t.Helper()
	h.bodies = make(map[string]map[string]any)
	srv := httptest.NewServer(h.router())
	t.Cleanup(srv.Close)
	return xaehost.New(srv.URL, xaehost.WithHTTPClient(srv.Client()))
}

func TestSession_Lifecycle(t *testing.T) {
	host := &fakeHost{diagnostics: ports.Diagnostics{Warnings: []string{"unused variable"}}}
	client := newHost(t, host)
	ctx := context.Background()

	s, err := client.Open(ctx, "3.1.4024")
	require.NoError(t, err)
	assert.Equal(t, "s-1", s.(*xaehost.Session).ID)

	require.NoError(t, s.CreateSolution(ctx, `C:\builds\job-1`, "job-1"))
	require.NoError(t, s.CreateProject(ctx, "PLC", "machine.tpzip"))
	require.NoError(t, s.AddUnit(ctx, ports.UnitSpec{ParentPath: "TIPC^PLC Project^POUs", Name: "MAIN", SubType: 604, Declaration: "PROGRAM MAIN"}))
	require.NoError(t, s.CreateTask(ctx, ports.TaskSpec{Name: "MAIN_Task", CycleTime: 10 * time.Millisecond, Priority: 20, Program: "MAIN"}))
	diags, err := s.Compile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"unused variable"}, diags.Warnings)
	require.NoError(t, s.GenerateBootProject(ctx, "5.1.2.3.1.1"))
	require.NoError(t, s.Close(ctx))

	calls, bodies := host.snapshot()
	assert.Equal(t, []string{"open", "solution", "project", "units", "tasks", "compile", "boot", "close"}, calls)
	assert.Equal(t, "3.1.4024", bodies["open"]["version"])
	assert.Equal(t, "TIPC^PLC Project^POUs", bodies["units"]["parentPath"])
	assert.EqualValues(t, 604, bodies["units"]["subType"])
	assert.EqualValues(t, 10000, bodies["tasks"]["cycleTimeUs"])
	assert.Equal(t, "5.1.2.3.1.1", bodies["boot"]["netId"])
}

func TestSession_BusyAndErrors(t *testing.T) {
	host := &fakeHost{busyCompiles: 1}
	client := newHost(t, host)
	ctx := context.Background()

	s, err := client.Open(ctx, "3.1")
	require.NoError(t, err)

	_, err = s.Compile(ctx)
	assert.ErrorIs(t, err, domain.ErrToolchainBusy)
	_, err = s.Compile(ctx)
	assert.NoError(t, err)

	err = s.ActivateConfiguration(ctx, "5.1.2.3.1.1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrToolchainBusy)
	assert.Contains(t, err.Error(), "no route to target")
}

func TestOpen_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := xaehost.New(srv.URL).Open(context.Background(), "3.1")
	assert.ErrorContains(t, err, "open session")
}
