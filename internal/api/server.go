// Package api serves read-only diagnostics over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pewcron/internal/storage"
	"pewcron/internal/task/scheduler"
	logx "pewcron/pkg/logx"
)

const (
	defaultLaunchLimit = 20
	maxLaunchLimit     = 500
)

// Source is the live registry. Implementations swap it on config reload.
type Source interface {
	Settings() []scheduler.Settings
	History() storage.HistoryReader
	// LastRun is the report of the most recent invocation, if any.
	LastRun() (scheduler.RunReport, bool)
}

type Server struct {
	r       *chi.Mux
	src     Source
	metrics http.Handler
	log     logx.Logger
}

// NewServer builds the router. A nil metrics handler leaves /metrics unrouted.
func NewServer(src Source, metrics http.Handler, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := chi.NewRouter()
	s := &Server{r: r, src: src, metrics: metrics, log: log}
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLog, middleware.Recoverer)

	r.Get("/health", s.health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", s.listTasks)
		r.Get("/{id}", s.getTask)
		r.Get("/{id}/launches", s.listLaunches)
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type healthResp struct {
	Status   string     `json:"status"`
	Tasks    int        `json:"tasks"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	Launched int        `json:"last_run_launched"`
	Failed   int        `json:"last_run_failed"`
	Errors   int        `json:"last_run_errors"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResp{Status: "ok", Tasks: len(s.src.Settings())}
	if rep, ok := s.src.LastRun(); ok {
		started := rep.Started
		resp.LastRun = &started
		resp.Launched = rep.Launched()
		resp.Failed = rep.Failed()
		resp.Errors = rep.Errors
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.src.Settings())
}

type taskResp struct {
	scheduler.Settings
	LastLaunch *storage.Launch `json:"last_launch"`
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	set, ok := s.lookup(w, r)
	if !ok {
		return
	}
	resp := taskResp{Settings: set}
	launches, err := s.src.History().Launches(r.Context(), set.TaskID, 1)
	if err != nil {
		s.fail(w, err)
		return
	}
	if len(launches) > 0 {
		resp.LastLaunch = &launches[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listLaunches(w http.ResponseWriter, r *http.Request) {
	set, ok := s.lookup(w, r)
	if !ok {
		return
	}
	limit := defaultLaunchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLaunchLimit)
	}
	launches, err := s.src.History().Launches(r.Context(), set.TaskID, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if launches == nil {
		launches = []storage.Launch{}
	}
	writeJSON(w, http.StatusOK, launches)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (scheduler.Settings, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "task id must be an integer", http.StatusBadRequest)
		return scheduler.Settings{}, false
	}
	for _, set := range s.src.Settings() {
		if set.TaskID == id {
			return set, true
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
	return scheduler.Settings{}, false
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, storage.ErrClosed) {
		status = http.StatusServiceUnavailable
	}
	s.log.Warn("history query failed", logx.Err(err))
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
