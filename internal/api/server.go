// Package api serves the REST endpoints and live websocket updates for
// starting test runs and browsing stored results.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/store"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	"github.com/thleqel/llm-test-platform/internal/testing/evaluator"
	"github.com/thleqel/llm-test-platform/internal/testing/orchestrator"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

const shutdownTimeout = 10 * time.Second

// SuiteRunner executes a suite synchronously.
type SuiteRunner interface {
	Run(ctx context.Context, req *orchestrator.Request) (*llmtest.TestRun, []*llmtest.TestResult, error)
}

// Config contains the collaborators of the API server.
type Config struct {
	Logger       logrus.FieldLogger
	Addr         string
	Runner       SuiteRunner
	Loader       testdef.Loader
	Store        store.Store
	Evaluator    evaluator.Client
	EvaluatorURL string
	SuitesDir    string
	Adapters     AdapterLister
}

// Server is the HTTP API server
type Server struct {
	addr         string
	runner       SuiteRunner
	loader       testdef.Loader
	store        store.Store
	evaluator    evaluator.Client
	evaluatorURL string
	suitesDir    string
	adapters     AdapterLister

	mux  *http.ServeMux
	hub  *Hub
	runs *RunRegistry
	wg   sync.WaitGroup
	log  logrus.FieldLogger
}

// NewServer creates a new API server
func NewServer(cfg *Config) *Server {
	log := cfg.Logger.WithField("component", "api")

	s := &Server{
		addr:         cfg.Addr,
		runner:       cfg.Runner,
		loader:       cfg.Loader,
		store:        cfg.Store,
		evaluator:    cfg.Evaluator,
		evaluatorURL: cfg.EvaluatorURL,
		suitesDir:    cfg.SuitesDir,
		adapters:     cfg.Adapters,
		mux:          http.NewServeMux(),
		hub:          NewHub(cfg.Logger),
		runs:         NewRunRegistry(),
		log:          log,
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/execution/run", s.handleRun)
	s.mux.HandleFunc("GET /api/execution/runs/active", s.handleActiveRuns)
	s.mux.HandleFunc("GET /api/execution/runs/{id}/status", s.handleRunStatus)
	s.mux.HandleFunc("POST /api/execution/runs/{id}/cancel", s.handleCancel)

	s.mux.HandleFunc("GET /api/results/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /api/results/runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("GET /api/results/runs/{id}/summary", s.handleRunSummary)
	s.mux.HandleFunc("GET /api/results/runs/{id}/results", s.handleRunResults)
	s.mux.HandleFunc("GET /api/results/runs/{id}/export/{format}", s.handleExport)
	s.mux.HandleFunc("GET /api/results/history/{test_case_id}", s.handleHistory)
	s.mux.HandleFunc("GET /api/results/stats/overview", s.handleStatsOverview)
	s.mux.HandleFunc("GET /api/results/stats/by-suite", s.handleStatsBySuite)

	s.mux.HandleFunc("GET /api/suites", s.handleListSuites)
	s.mux.HandleFunc("GET /api/suites/{suite_name}", s.handleGetSuite)
	s.mux.HandleFunc("GET /api/test-cases", s.handleListTestCases)
	s.mux.HandleFunc("GET /api/test-cases/{id}", s.handleGetTestCase)
	s.mux.HandleFunc("GET /api/adapters", s.handleListAdapters)

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/health/evaluator", s.handleEvaluatorHealth)

	s.mux.HandleFunc("GET /ws/test-execution/{run_id}", func(w http.ResponseWriter, r *http.Request) {
		s.hub.ServeRun(w, r, r.PathValue("run_id"))
	})
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves until ctx is done, then shuts down gracefully and waits for
// in-flight runs.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("api server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("api server shutdown incomplete")
	}

	s.Wait()

	return nil
}

// Wait blocks until every run started through the API has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
