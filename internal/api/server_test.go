package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/nickz-gmm/diy-delta/internal/analysis"
	"github.com/nickz-gmm/diy-delta/internal/ingest"
	"github.com/nickz-gmm/diy-delta/internal/lapstore"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
	"github.com/nickz-gmm/diy-delta/internal/testutil"
	"github.com/nickz-gmm/diy-delta/internal/trackmap"
)

// idleSource is a connector that produces nothing and blocks until stopped.
type idleSource struct {
	name string
}

func (s *idleSource) Name() string { return s.name }

func (s *idleSource) Run(ctx context.Context, out chan<- ingest.Sample) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestServer(t *testing.T) (*Server, *lapstore.Store) {
	t.Helper()
	store := lapstore.NewStore()
	manager := ingest.NewManager(store, nil, ingest.BuilderConfig{})
	t.Cleanup(manager.StopAll)
	factory := func(name string, req SourceRequest) (ingest.Source, error) {
		return &idleSource{name: name}, nil
	}
	return NewServer(store, manager, factory), store
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func storeSquareLaps(t *testing.T, store *lapstore.Store, n int) []uuid.UUID {
	t.Helper()
	meta := telemetry.LapMeta{Game: telemetry.GameF1, Track: "Suzuka"}
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		opts := testutil.DefaultSquareLapOpts()
		opts.TimeScale = 1.0 + 0.02*float64(i)
		lap := testutil.SquareLap(meta, uint32(i+1), opts)
		if err := store.Insert(lap); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, lap.ID)
	}
	return ids
}

func TestListLaps(t *testing.T) {
	srv, store := newTestServer(t)
	mux := srv.ServeMux()

	rec := doJSON(t, mux, http.MethodGet, "/api/laps", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if infos := decodeBody[[]lapInfo](t, rec); len(infos) != 0 {
		t.Fatalf("expected no laps, got %d", len(infos))
	}

	storeSquareLaps(t, store, 2)
	rec = doJSON(t, mux, http.MethodGet, "/api/laps", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	infos := decodeBody[[]lapInfo](t, rec)
	if len(infos) != 2 {
		t.Fatalf("expected 2 laps, got %d", len(infos))
	}
	if infos[0].Points == 0 || infos[0].LengthM == 0 {
		t.Errorf("lap info missing derived fields: %+v", infos[0])
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/laps", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestSourceLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.ServeMux()

	rec := doJSON(t, mux, http.MethodPost, "/api/sources/f1/start", SourceRequest{Track: "Monza"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	// The slot is taken until stopped.
	rec = doJSON(t, mux, http.MethodPost, "/api/sources/f1/start", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = doJSON(t, mux, http.MethodGet, "/api/sources", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	statuses := decodeBody[[]ingest.Status](t, rec)
	if len(statuses) != 1 || statuses[0].Name != "f1" || !statuses[0].Running {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/sources/stop", map[string]string{"name": "f1"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = doJSON(t, mux, http.MethodPost, "/api/sources/stop", map[string]string{"name": "gt7"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestStopAllSources(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.ServeMux()

	for _, name := range []string{"f1", "gt7"} {
		rec := doJSON(t, mux, http.MethodPost, "/api/sources/"+name+"/start", SourceRequest{Track: "Spa"})
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	}

	rec := doJSON(t, mux, http.MethodPost, "/api/sources/stopall", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = doJSON(t, mux, http.MethodGet, "/api/sources", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if statuses := decodeBody[[]ingest.Status](t, rec); len(statuses) != 0 {
		t.Fatalf("sources still registered after stop-all: %+v", statuses)
	}

	// Idempotent on an empty manager, and POST-only.
	rec = doJSON(t, mux, http.MethodPost, "/api/sources/stopall", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	rec = doJSON(t, mux, http.MethodGet, "/api/sources/stopall", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestStartSourceFactoryError(t *testing.T) {
	store := lapstore.NewStore()
	manager := ingest.NewManager(store, nil, ingest.BuilderConfig{})
	factory := func(name string, req SourceRequest) (ingest.Source, error) {
		return nil, &telemetry.ValidationError{Reason: "console address required"}
	}
	srv := NewServer(store, manager, factory)

	rec := doJSON(t, srv.ServeMux(), http.MethodPost, "/api/sources/gt7/start", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "console address") {
		t.Errorf("error body = %s", rec.Body.String())
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	mux := srv.ServeMux()
	ids := storeSquareLaps(t, store, 3)

	rec := doJSON(t, mux, http.MethodPost, "/api/analyze", analyzeRequest{LapIDs: ids, Reference: ids[1]})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	result := decodeBody[analysis.Result](t, rec)
	if result.ReferenceID != ids[1] {
		t.Errorf("reference = %s, want %s", result.ReferenceID, ids[1])
	}
	if result.Overlay == nil || len(result.Overlay.Series) == 0 {
		t.Error("missing overlay")
	}
	if len(result.Ribbons) != 2 {
		t.Errorf("got %d ribbons, want 2", len(result.Ribbons))
	}
	if result.TrackMap == nil || len(result.TrackMap.Polyline) == 0 {
		t.Error("missing track map")
	}

	// Selection problems are client errors.
	rec = doJSON(t, mux, http.MethodPost, "/api/analyze", analyzeRequest{})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = doJSON(t, mux, http.MethodPost, "/api/analyze", analyzeRequest{LapIDs: ids, Reference: uuid.New()})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = doJSON(t, mux, http.MethodPost, "/api/analyze", analyzeRequest{LapIDs: []uuid.UUID{uuid.New()}})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestTrackMapEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	mux := srv.ServeMux()
	ids := storeSquareLaps(t, store, 1)

	rec := doJSON(t, mux, http.MethodGet, "/api/trackmap?lap="+ids[0].String(), nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	tm := decodeBody[trackmap.TrackMap](t, rec)
	if len(tm.Polyline) == 0 || len(tm.Sectors) == 0 {
		t.Errorf("incomplete track map: %d polyline points, %d sectors", len(tm.Polyline), len(tm.Sectors))
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/trackmap?lap=not-a-uuid", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = doJSON(t, mux, http.MethodGet, "/api/trackmap?lap="+uuid.NewString(), nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestExportImportRoundTrip(t *testing.T) {
	srv, store := newTestServer(t)
	mux := srv.ServeMux()
	ids := storeSquareLaps(t, store, 2)
	path := filepath.Join(t.TempDir(), "laps.csv")

	rec := doJSON(t, mux, http.MethodPost, "/api/export", map[string]any{
		"path": path, "kind": "csv", "lap_ids": ids,
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("export file missing: %v", err)
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/import", map[string]string{"path": path})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	resp := decodeBody[map[string]any](t, rec)
	if imported, _ := resp["imported"].(float64); imported != 2 {
		t.Errorf("imported = %v, want 2", resp["imported"])
	}
	if store.Len() != 4 {
		t.Errorf("store has %d laps after import, want 4", store.Len())
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/import", map[string]string{"path": filepath.Join(t.TempDir(), "missing.csv")})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadGateway)
}

func TestWorkspaces(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.ServeMux()

	rec := doJSON(t, mux, http.MethodGet, "/api/workspaces", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	blob := map[string]any{"selected_laps": []string{uuid.NewString()}, "channel": "speed_kmh"}
	rec = doJSON(t, mux, http.MethodPost, "/api/workspaces", map[string]any{"name": "quali", "data": blob})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = doJSON(t, mux, http.MethodGet, "/api/workspaces?name=quali", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	loaded := decodeBody[map[string]any](t, rec)
	if loaded["channel"] != "speed_kmh" {
		t.Errorf("workspace blob mangled: %+v", loaded)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/workspaces", nil)
	names := decodeBody[[]string](t, rec)
	if len(names) != 1 || names[0] != "quali" {
		t.Errorf("workspace listing = %v", names)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/workspaces?name=race", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestLoggingMiddlewarePassthrough(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := LoggingMiddleware(srv.ServeMux())

	req := httptest.NewRequest(http.MethodGet, "/api/laps", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}
