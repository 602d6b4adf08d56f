package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opscart/k8s-rightsizer/pkg/reporter"
	"github.com/opscart/k8s-rightsizer/pkg/storage"
)

// Router builds the HTTP API
func (s *Server) Router(log logr.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs", s.listRuns)
		r.Get("/runs/latest", s.latestRun)
		r.Get("/runs/{id}", s.getRun)
		r.Get("/workloads/{namespace}/{name}/history", s.workloadHistory)
	})

	return r
}

func requestLogger(log logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.V(1).Info("Request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"requestID", middleware.GetReqID(r.Context()))
		})
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	status := http.StatusOK

	lastAttempt, lastErr := s.status()
	if !lastAttempt.IsZero() {
		body["lastRun"] = lastAttempt.UTC().Format(time.RFC3339)
	}
	if lastErr != nil {
		body["lastError"] = lastErr.Error()
	}

	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["storage"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, body)
}

// latestRun renders the in-memory run. ?output= accepts any report format.
func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) {
	run := s.Latest()
	if run == nil {
		writeError(w, http.StatusNotFound, "no analysis run has completed yet")
		return
	}

	format := reporter.FormatJSON
	if v := r.URL.Query().Get("output"); v != "" {
		f, err := reporter.ParseFormat(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = f
	}

	switch format {
	case reporter.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case reporter.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	case reporter.FormatYAML, reporter.FormatVPA:
		w.Header().Set("Content-Type", "application/yaml")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if err := reporter.Write(w, run, format); err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "Failed to write report")
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history storage is not configured")
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.store.ListRuns(r.Context(), r.URL.Query().Get("namespace"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*storage.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history storage is not configured")
		return
	}

	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reporter.Report{Run: run, Summary: reporter.Summarize(run)})
}

func (s *Server) workloadHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history storage is not configured")
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.store.WorkloadHistory(r.Context(), chi.URLParam(r, "namespace"), chi.URLParam(r, "name"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*storage.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
