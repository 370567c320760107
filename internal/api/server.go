// Package api exposes the engine to UIs and scripts over HTTP. Handlers are
// thin: they translate requests into store, manager and analysis calls and
// map the error taxonomy onto status codes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nickz-gmm/diy-delta/internal/analysis"
	"github.com/nickz-gmm/diy-delta/internal/ingest"
	"github.com/nickz-gmm/diy-delta/internal/lapio"
	"github.com/nickz-gmm/diy-delta/internal/lapstore"
	"github.com/nickz-gmm/diy-delta/internal/monitoring"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
	"github.com/nickz-gmm/diy-delta/internal/trackmap"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// SourceRequest carries the per-connector knobs a client may set when
// starting a source. Unset fields fall back to the connector defaults.
type SourceRequest struct {
	Car   string `json:"car"`
	Track string `json:"track"`

	// f1
	Port          int `json:"port,omitempty"`
	FormatVersion int `json:"format_version,omitempty"`

	// gt7
	ConsoleIP string `json:"console_ip,omitempty"`
	Variant   string `json:"variant,omitempty"`

	// lmu
	MappingPath string `json:"mapping_path,omitempty"`
}

// SourceFactory builds a connector from a start request. Injected so tests
// can start fake sources without opening sockets.
type SourceFactory func(name string, req SourceRequest) (ingest.Source, error)

type Server struct {
	store      *lapstore.Store
	manager    *ingest.Manager
	newSource  SourceFactory
	tuning     trackmap.Tuning
	analysisCf analysis.Config

	wsMu       sync.Mutex
	workspaces map[string]json.RawMessage
}

func NewServer(store *lapstore.Store, manager *ingest.Manager, newSource SourceFactory) *Server {
	return &Server{
		store:      store,
		manager:    manager,
		newSource:  newSource,
		tuning:     trackmap.DefaultTuning(),
		analysisCf: analysis.DefaultConfig(),
		workspaces: make(map[string]json.RawMessage),
	}
}

// SetTuning replaces the track-map tuning used by the trackmap and analyze
// endpoints. Call before serving.
func (s *Server) SetTuning(t trackmap.Tuning) { s.tuning = t }

// SetAnalysisConfig replaces the analysis defaults. Call before serving.
func (s *Server) SetAnalysisConfig(cfg analysis.Config) { s.analysisCf = cfg }

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/laps", s.listLaps)
	mux.HandleFunc("/api/sources", s.listSources)
	for _, name := range []string{"f1", "gt7", "lmu"} {
		mux.HandleFunc("/api/sources/"+name+"/start", s.startSourceHandler(name))
	}
	mux.HandleFunc("/api/sources/stop", s.stopSource)
	mux.HandleFunc("/api/sources/stopall", s.stopAllSources)
	mux.HandleFunc("/api/analyze", s.analyze)
	mux.HandleFunc("/api/trackmap", s.showTrackMap)
	mux.HandleFunc("/api/import", s.importLaps)
	mux.HandleFunc("/api/export", s.exportLaps)
	mux.HandleFunc("/api/workspaces", s.workspacesHandler)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: encode response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeError maps the error taxonomy onto HTTP statuses: validation problems
// are the client's fault, transport and IO problems are upstream failures.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *telemetry.ValidationError
		transportErr  *telemetry.TransportError
		decodeErr     *telemetry.DecodeError
		geometryErr   *telemetry.GeometryError
		ioErr         *telemetry.IOError
	)
	switch {
	case errors.As(err, &validationErr):
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &geometryErr):
		s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &transportErr), errors.As(err, &decodeErr), errors.As(err, &ioErr):
		s.writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// lapInfo is the listing view of a lap; points stay behind the analysis and
// export endpoints.
type lapInfo struct {
	ID        uuid.UUID         `json:"id"`
	Meta      telemetry.LapMeta `json:"meta"`
	LapNumber uint32            `json:"lap_number"`
	TimeMs    uint64            `json:"time_ms"`
	LengthM   float64           `json:"length_m"`
	Points    int               `json:"points"`
}

func (s *Server) listLaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	laps := s.store.List()
	infos := make([]lapInfo, 0, len(laps))
	for _, lap := range laps {
		infos = append(infos, lapInfo{
			ID:        lap.ID,
			Meta:      lap.Meta,
			LapNumber: lap.LapNumber,
			TimeMs:    lap.TimeMs,
			LengthM:   lap.LengthM(),
			Points:    len(lap.Points),
		})
	}
	s.writeJSON(w, infos)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.manager.Statuses())
}

func (s *Server) startSourceHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		var req SourceRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
				return
			}
		}

		src, err := s.newSource(name, req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		meta := telemetry.LapMeta{Game: gameForSource(name), Car: req.Car, Track: req.Track}
		if err := s.manager.Start(src, meta); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]string{"status": "started", "source": name})
	}
}

func gameForSource(name string) telemetry.Game {
	switch name {
	case "f1":
		return telemetry.GameF1
	case "gt7":
		return telemetry.GameGT7
	case "lmu":
		return telemetry.GameLMU
	}
	return telemetry.GameImported
}

func (s *Server) stopSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing source name")
		return
	}
	if err := s.manager.Stop(req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "stopped", "source": req.Name})
}

func (s *Server) stopAllSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stopped := len(s.manager.Statuses())
	s.manager.StopAll()
	s.writeJSON(w, map[string]any{"status": "stopped", "count": stopped})
}

type analyzeRequest struct {
	LapIDs    []uuid.UUID `json:"lap_ids"`
	Reference uuid.UUID   `json:"reference,omitempty"`
	Channels  []string    `json:"channels,omitempty"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	laps, err := s.store.Resolve(req.LapIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	refIdx := 0
	if req.Reference != uuid.Nil {
		refIdx = -1
		for i, lap := range laps {
			if lap.ID == req.Reference {
				refIdx = i
				break
			}
		}
		if refIdx < 0 {
			s.writeJSONError(w, http.StatusBadRequest, "reference lap is not in the selection")
			return
		}
	}

	result, err := analysis.Analyze(laps, refIdx, req.Channels, s.analysisCf, s.tuning)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, result)
}

func (s *Server) showTrackMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, err := uuid.Parse(r.URL.Query().Get("lap"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid 'lap' parameter")
		return
	}
	lap, err := s.store.Get(id)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	tm, err := trackmap.Build(lap, s.tuning)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, tm)
}

func (s *Server) importLaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing import path")
		return
	}

	laps, err := lapio.ImportFile(req.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ids := make([]uuid.UUID, 0, len(laps))
	for _, lap := range laps {
		if err := s.store.Insert(lap); err != nil {
			s.writeError(w, err)
			return
		}
		ids = append(ids, lap.ID)
	}
	monitoring.Logf("api: imported %d laps from %s", len(ids), req.Path)
	s.writeJSON(w, map[string]any{"imported": len(ids), "lap_ids": ids})
}

func (s *Server) exportLaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req struct {
		Path   string      `json:"path"`
		Kind   string      `json:"kind"`
		LapIDs []uuid.UUID `json:"lap_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing export path")
		return
	}
	if req.Kind == "" {
		req.Kind = "csv"
	}

	laps, err := s.store.Resolve(req.LapIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := lapio.ExportFile(req.Kind, req.Path, laps); err != nil {
		s.writeError(w, err)
		return
	}
	monitoring.Logf("api: exported %d laps to %s (%s)", len(laps), req.Path, req.Kind)
	s.writeJSON(w, map[string]any{"exported": len(laps), "path": req.Path})
}

// workspacesHandler stores opaque UI state blobs by name. The engine never
// interprets them.
func (s *Server) workspacesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		name := r.URL.Query().Get("name")
		s.wsMu.Lock()
		defer s.wsMu.Unlock()
		if name == "" {
			names := make([]string, 0, len(s.workspaces))
			for n := range s.workspaces {
				names = append(names, n)
			}
			sort.Strings(names)
			s.writeJSON(w, names)
			return
		}
		blob, ok := s.workspaces[name]
		if !ok {
			s.writeJSONError(w, http.StatusNotFound, "workspace not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(blob)
	case http.MethodPost:
		var req struct {
			Name string          `json:"name"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			s.writeJSONError(w, http.StatusBadRequest, "missing workspace name")
			return
		}
		s.wsMu.Lock()
		s.workspaces[req.Name] = req.Data
		s.wsMu.Unlock()
		s.writeJSON(w, map[string]string{"status": "saved", "workspace": req.Name})
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
