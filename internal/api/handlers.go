package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/store"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
	"github.com/thleqel/llm-test-platform/internal/testing/orchestrator"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

const (
	defaultListLimit    = 20
	defaultHistoryLimit = 10
	maxRequestBody      = 1 << 20
)

var (
	errSuiteNotFound = errors.New("suite not found")
	errNoSuite       = errors.New("one of suite, suite_path or suite_name is required")
)

// RunRequest starts a run from a suite file, a suite discovered by name, or
// an inline suite.
type RunRequest struct {
	SuiteName      string         `json:"suite_name,omitempty"`
	SuitePath      string         `json:"suite_path,omitempty"`
	Suite          *testdef.Suite `json:"suite,omitempty"`
	TestIDs        []string       `json:"test_ids,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	MaxConcurrency int            `json:"max_concurrency,omitempty"`
	Runtime        map[string]any `json:"runtime,omitempty"`
}

// RunResponse acknowledges a started run.
type RunResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	suite, err := s.resolveSuite(&req)
	switch {
	case errors.Is(err, errSuiteNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cases := suite.Filter(req.TestIDs, req.Tags)
	if len(cases) == 0 {
		writeError(w, http.StatusBadRequest, "no test cases to run")
		return
	}

	// The id is fixed here so the client can subscribe before results arrive.
	runID := uuid.NewString()
	s.runs.Add(runID, suite.Name, len(cases))

	runReq := &orchestrator.Request{
		Suite:          suite,
		TestIDs:        req.TestIDs,
		Tags:           req.Tags,
		RunID:          runID,
		MaxConcurrency: req.MaxConcurrency,
		Runtime:        req.Runtime,
		Listeners:      []llmtest.Listener{s.runs, s.hub},
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log := s.log.WithFields(logrus.Fields{"run_id": runID, "suite": suite.Name})

		if _, _, err := s.runner.Run(context.WithoutCancel(r.Context()), runReq); err != nil {
			log.WithError(err).Error("test run failed")
			s.runs.Fail(runID, err)
			return
		}

		log.Info("test run finished")
	}()

	writeJSON(w, http.StatusAccepted, &RunResponse{
		RunID:   runID,
		Status:  "started",
		Message: fmt.Sprintf("Started execution of %d tests", len(cases)),
	})
}

func (s *Server) resolveSuite(req *RunRequest) (*testdef.Suite, error) {
	switch {
	case req.Suite != nil:
		if report := testdef.Validate(req.Suite); !report.Valid() {
			return nil, fmt.Errorf("invalid suite: %w", report.Err())
		}
		return req.Suite, nil

	case req.SuitePath != "":
		path := req.SuitePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.suitesDir, filepath.Clean("/"+path))
		}
		return s.loader.LoadSuite(path)

	case req.SuiteName != "":
		suites, err := s.loader.LoadSuites(s.suitesDir)
		if err != nil {
			return nil, err
		}

		for _, suite := range suites {
			if suite.Name == req.SuiteName {
				return suite, nil
			}
		}

		return nil, fmt.Errorf("%w: %s", errSuiteNotFound, req.SuiteName)

	default:
		return nil, errNoSuite
	}
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	if status, ok := s.runs.Get(runID); ok {
		writeJSON(w, http.StatusOK, status)
		return
	}

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &RunStatus{
		RunID:      run.ID,
		Status:     string(run.Status),
		Suite:      run.SuiteName,
		TotalTests: run.TotalTests,
		Completed:  run.Passed + run.Failed + run.Errors + run.Skipped,
		Passed:     run.Passed,
		Failed:     run.Failed,
		Errors:     run.Errors,
		Skipped:    run.Skipped,
		StartedAt:  run.StartTime,
	})
}

func (s *Server) handleActiveRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.runs.Active()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	found, running := s.runs.Cancel(runID)
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run '%s' not found", runID))
		return
	}

	if !running {
		writeError(w, http.StatusBadRequest, "run is not active")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Run cancelled", "run_id": runID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.store.ListRuns(r.Context(), r.URL.Query().Get("suite_name"), limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	report, err := store.BuildReport(r.Context(), s.store, r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.GetSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRunResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.GetRunResults(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	format, err := store.ParseFormat(r.PathValue("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := store.BuildReport(r.Context(), s.store, runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	contentType := "application/json"
	if format == store.FormatHTML {
		contentType = "text/html; charset=utf-8"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=test_report_%s.%s", runID, format))

	if err := store.WriteReport(w, report, format); err != nil {
		s.log.WithError(err).WithField("run_id", runID).Warn("failed to write export")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	testCaseID := r.PathValue("test_case_id")

	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := s.store.GetTestCaseHistory(r.Context(), testCaseID, limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"test_case_id": testCaseID, "history": history})
}

type suiteInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path"`
	TestCases   int    `json:"test_cases"`
}

func (s *Server) handleListSuites(w http.ResponseWriter, _ *http.Request) {
	suites, err := s.loader.LoadSuites(s.suitesDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]suiteInfo, 0, len(suites))
	for _, suite := range suites {
		out = append(out, suiteInfo{
			Name:        suite.Name,
			Version:     suite.Version,
			Description: suite.Description,
			Path:        suite.Path,
			TestCases:   len(suite.TestCases),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"suites": out})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleEvaluatorHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"healthy": true, "url": s.evaluatorURL}

	if err := s.evaluator.Health(r.Context()); err != nil {
		body["healthy"] = false
		body["error"] = err.Error()
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.log.WithError(err).Error("store request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}
