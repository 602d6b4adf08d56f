// Package server runs the analysis on a schedule and serves the results over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"github.com/opscart/k8s-rightsizer/pkg/metrics"
	"github.com/opscart/k8s-rightsizer/pkg/models"
	"github.com/opscart/k8s-rightsizer/pkg/storage"
)

const (
	DefaultAddr     = ":8080"
	DefaultSchedule = "@every 6h"

	shutdownTimeout = 10 * time.Second
)

// RunFunc performs one analysis run
type RunFunc func(ctx context.Context) (*models.AnalysisRun, error)

// Options configures the service
type Options struct {
	Addr     string
	Schedule string

	// RunTimeout bounds a single scheduled run. Zero means no timeout.
	RunTimeout time.Duration

	// Retention prunes stored runs older than this after every run. Zero keeps everything.
	Retention time.Duration
}

// Server keeps the latest run in memory and persists each run when a store is set
type Server struct {
	run     RunFunc
	store   storage.Store
	metrics *metrics.Collector
	opts    Options

	running atomic.Bool

	mu          sync.RWMutex
	latest      *models.AnalysisRun
	lastErr     error
	lastAttempt time.Time
}

// New validates the schedule and builds a server. store and collector may be nil.
func New(run RunFunc, opts Options, store storage.Store, collector *metrics.Collector) (*Server, error) {
	if run == nil {
		return nil, errors.New("run function is required")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", opts.Schedule, err)
	}
	if opts.Retention < 0 {
		return nil, fmt.Errorf("retention cannot be negative, got %s", opts.Retention)
	}

	return &Server{
		run:     run,
		store:   store,
		metrics: collector,
		opts:    opts,
	}, nil
}

// Latest returns the most recent successful run, or nil
func (s *Server) Latest() *models.AnalysisRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Server) status() (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAttempt, s.lastErr
}

// RunOnce performs a run unless one is already in progress
func (s *Server) RunOnce(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx)

	if !s.running.CompareAndSwap(false, true) {
		log.Info("Previous run still in progress, skipping")
		return nil
	}
	defer s.running.Store(false)

	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	started := time.Now()
	run, err := s.run(ctx)

	s.mu.Lock()
	s.lastAttempt = started
	s.lastErr = err
	if err == nil {
		s.latest = run
	}
	s.mu.Unlock()

	if err != nil {
		log.Error(err, "Analysis run failed")
		return err
	}

	log.Info("Analysis run complete",
		"run", run.ID,
		"workloads", len(run.Results),
		"failures", run.FailureCount(),
		"savings", fmt.Sprintf("$%.2f", run.TotalSavings()))

	if s.store != nil {
		if err := s.store.SaveRun(ctx, run); err != nil {
			log.Error(err, "Failed to save run", "run", run.ID)
		}
		s.prune(ctx)
	}
	return nil
}

// prune applies the retention policy. Failures are logged and retried on the next run.
func (s *Server) prune(ctx context.Context) {
	if s.opts.Retention <= 0 {
		return
	}
	log := logr.FromContextOrDiscard(ctx)

	cutoff := time.Now().Add(-s.opts.Retention)
	n, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		log.Error(err, "Failed to prune old runs", "cutoff", cutoff)
		return
	}
	if n > 0 {
		log.Info("Pruned old runs", "deleted", n, "retention", s.opts.Retention.String())
	}
}

// Start runs once immediately, then on the schedule, and serves HTTP until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx)

	if s.store != nil {
		if run, err := s.store.LatestRun(ctx, ""); err == nil {
			s.mu.Lock()
			s.latest = run
			s.mu.Unlock()
		}
	}

	c := cron.New(cron.WithLogger(log.WithName("cron")))
	if _, err := c.AddFunc(s.opts.Schedule, func() {
		_ = s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.opts.Schedule, err)
	}

	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Router(log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Serving", "addr", s.opts.Addr, "schedule", s.opts.Schedule)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go func() { _ = s.RunOnce(ctx) }()
	c.Start()

	select {
	case err, ok := <-errCh:
		<-c.Stop().Done()
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	stopped := c.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	select {
	case <-stopped.Done():
	case <-shutdownCtx.Done():
	}
	return nil
}
