package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
)

// statsRunWindow bounds how many recent runs feed the stats endpoints.
const statsRunWindow = 100

// AdapterLister reports the adapter type tags a run can use.
type AdapterLister interface {
	List() []string
}

var adapterDescriptions = map[string]string{
	"http":            "HTTP/REST API calls with response path extraction",
	"browser":         "Browser automation for UI testing",
	"playwright":      "Browser automation for UI testing",
	"function":        "Direct calls to registered functions",
	"python_function": "Direct calls to registered functions",
	"langchain":       "Chain callables with input and output keys",
	"mock":            "Mock/fixture responses for testing",
	"fixture":         "Mock/fixture responses for testing",
	"shell":           "Shell script and CLI tool execution",
	"websocket":       "WebSocket real-time communication",
}

type adapterInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// testCaseInfo is a test case with the suite it belongs to and its
// effective adapter.
type testCaseInfo struct {
	*testdef.TestCase
	Suite   string                 `json:"suite"`
	Adapter *testdef.AdapterConfig `json:"adapter,omitempty"`
}

func newTestCaseInfo(suite *testdef.Suite, tc *testdef.TestCase) testCaseInfo {
	adapter := tc.Adapter
	if adapter == nil {
		adapter = suite.Adapter()
	}

	return testCaseInfo{TestCase: tc, Suite: suite.Name, Adapter: adapter}
}

func (s *Server) handleGetSuite(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("suite_name")

	suites, err := s.loader.LoadSuites(s.suitesDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, suite := range suites {
		if suite.Name == name {
			writeJSON(w, http.StatusOK, suite)
			return
		}
	}

	writeError(w, http.StatusNotFound, fmt.Sprintf("suite '%s' not found", name))
}

func (s *Server) handleListTestCases(w http.ResponseWriter, r *http.Request) {
	suiteName := r.URL.Query().Get("suite_name")
	tags := splitList(r.URL.Query().Get("tags"))

	suites, err := s.loader.LoadSuites(s.suitesDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]testCaseInfo, 0)
	for _, suite := range suites {
		if suiteName != "" && suite.Name != suiteName {
			continue
		}

		for _, tc := range suite.Filter(nil, tags) {
			out = append(out, newTestCaseInfo(suite, tc))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"test_cases": out})
}

func (s *Server) handleGetTestCase(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	suites, err := s.loader.LoadSuites(s.suitesDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, suite := range suites {
		for _, tc := range suite.TestCases {
			if tc.ID == id {
				writeJSON(w, http.StatusOK, newTestCaseInfo(suite, tc))
				return
			}
		}
	}

	writeError(w, http.StatusNotFound, fmt.Sprintf("test case '%s' not found", id))
}

func (s *Server) handleListAdapters(w http.ResponseWriter, _ *http.Request) {
	out := make([]adapterInfo, 0)

	if s.adapters != nil {
		for _, tag := range s.adapters.List() {
			desc, ok := adapterDescriptions[tag]
			if !ok {
				desc = "Custom adapter"
			}
			out = append(out, adapterInfo{Type: tag, Description: desc})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"adapters": out})
}

// runStats aggregates counters over a set of runs.
type runStats struct {
	Runs     int     `json:"runs"`
	Tests    int     `json:"tests"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Errors   int     `json:"errors"`
	Skipped  int     `json:"skipped"`
	PassRate float64 `json:"pass_rate"`
}

func (st *runStats) finish() {
	if st.Tests > 0 {
		st.PassRate = float64(st.Passed) / float64(st.Tests) * 100
	}
}

func (s *Server) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), "", statsRunWindow)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	var total runStats
	for _, run := range runs {
		total.Runs++
		total.Tests += run.TotalTests
		total.Passed += run.Passed
		total.Failed += run.Failed
		total.Errors += run.Errors
		total.Skipped += run.Skipped
	}
	total.finish()

	recent := runs
	if len(recent) > 10 {
		recent = recent[:10]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_runs":    total.Runs,
		"total_tests":   total.Tests,
		"total_passed":  total.Passed,
		"total_failed":  total.Failed,
		"total_errors":  total.Errors,
		"total_skipped": total.Skipped,
		"pass_rate":     total.PassRate,
		"recent_runs":   recent,
	})
}

func (s *Server) handleStatsBySuite(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), "", statsRunWindow)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	bySuite := make(map[string]*runStats)
	for _, run := range runs {
		name := run.SuiteName
		if name == "" {
			name = "Unknown"
		}

		st, ok := bySuite[name]
		if !ok {
			st = &runStats{}
			bySuite[name] = st
		}

		st.Runs++
		st.Tests += run.TotalTests
		st.Passed += run.Passed
		st.Failed += run.Failed
		st.Errors += run.Errors
		st.Skipped += run.Skipped
	}

	for _, st := range bySuite {
		st.finish()
	}

	writeJSON(w, http.StatusOK, map[string]any{"suites": bySuite})
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
