// Package filestore keeps runs as JSON documents on disk.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/store"
	llmtest "github.com/thleqel/llm-test-platform/internal/testing"
)

const (
	runsDir      = "runs"
	metadataFile = "metadata.json"
	summaryFile  = "summary.json"
)

// Store lays runs out as <root>/runs/<run_id>/{metadata,summary,<test_case_id>}.json.
type Store struct {
	root string
	mu   sync.RWMutex
	log  logrus.FieldLogger
}

var _ store.Store = (*Store)(nil)

// New creates the store root if needed.
func New(root string, log logrus.FieldLogger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, runsDir), 0o750); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}

	return &Store{
		root: root,
		log:  log.WithField("component", "file_store"),
	}, nil
}

// SaveRun writes the run, its summary and every result.
func (s *Store) SaveRun(_ context.Context, run *llmtest.TestRun, results []*llmtest.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.runDir(run.ID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, metadataFile), run); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, summaryFile), store.NewSummary(run)); err != nil {
		return err
	}

	for _, result := range results {
		if err := writeJSON(filepath.Join(dir, resultFileName(result.TestCaseID)), result); err != nil {
			return err
		}
	}

	s.log.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"results": len(results),
		"path":    dir,
	}).Debug("saved test run")

	return nil
}

// GetRun loads a run's metadata.
func (s *Store) GetRun(_ context.Context, runID string) (*llmtest.TestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readRun(runID)
}

// GetRunResults loads every result of a run.
func (s *Store) GetRunResults(_ context.Context, runID string) ([]*llmtest.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.readRun(runID); err != nil {
		return nil, err
	}

	return s.readResults(runID)
}

// ListRuns scans every run directory.
func (s *Store) ListRuns(_ context.Context, suite string, limit int) ([]*llmtest.TestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.runIDs()
	if err != nil {
		return nil, err
	}

	runs := make([]*llmtest.TestRun, 0, len(ids))
	for _, id := range ids {
		run, err := s.readRun(id)
		if err != nil {
			s.log.WithError(err).WithField("run_id", id).Warn("skipping unreadable run")
			continue
		}

		if suite != "" && run.SuiteName != suite {
			continue
		}

		runs = append(runs, run)
	}

	return store.SortRunsNewestFirst(runs, limit), nil
}

// GetTestCaseHistory reads the result file for testCaseID from every run.
func (s *Store) GetTestCaseHistory(_ context.Context, testCaseID string, limit int) ([]*llmtest.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.runIDs()
	if err != nil {
		return nil, err
	}

	name := resultFileName(testCaseID)
	history := make([]*llmtest.TestResult, 0)

	for _, id := range ids {
		var result llmtest.TestResult
		if err := readJSON(filepath.Join(s.runDir(id), name), &result); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}

		if result.TestCaseID != testCaseID {
			continue
		}

		history = append(history, &result)
	}

	return store.SortResultsNewestFirst(history, limit), nil
}

// GetSummary returns the stored summary, recomputing it when the file is absent.
func (s *Store) GetSummary(_ context.Context, runID string) (*store.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary store.Summary
	err := readJSON(filepath.Join(s.runDir(runID), summaryFile), &summary)
	if err == nil {
		return &summary, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	run, err := s.readRun(runID)
	if err != nil {
		return nil, err
	}

	return store.NewSummary(run), nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.root, runsDir, sanitize(runID))
}

func (s *Store) runIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, runsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading runs directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}

	return ids, nil
}

func (s *Store) readRun(runID string) (*llmtest.TestRun, error) {
	var run llmtest.TestRun
	if err := readJSON(filepath.Join(s.runDir(runID), metadataFile), &run); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, runID)
		}
		return nil, err
	}

	if run.Metadata == nil {
		run.Metadata = make(map[string]any)
	}

	return &run, nil
}

func (s *Store) readResults(runID string) ([]*llmtest.TestResult, error) {
	dir := s.runDir(runID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading run directory: %w", err)
	}

	results := make([]*llmtest.TestResult, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || name == metadataFile || name == summaryFile {
			continue
		}

		var result llmtest.TestResult
		if err := readJSON(filepath.Join(dir, name), &result); err != nil {
			return nil, err
		}

		results = append(results, &result)
	}

	store.SortResults(results)

	return results, nil
}

// resultFileName maps a test case id to a file name that cannot escape the
// run directory or shadow the run's own documents.
func resultFileName(testCaseID string) string {
	name := sanitize(testCaseID)
	if name+".json" == metadataFile || name+".json" == summaryFile {
		name += "-" + shortHash(testCaseID)
	}
	return name + ".json"
}

// sanitize makes an id safe as a single path element. Ids it had to rewrite
// carry a hash of the original so distinct ids never share a name.
func sanitize(s string) string {
	out := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		default:
			return r
		}
	}, s)

	if out == "" || out == "." || out == ".." {
		out = "_" + out
	}

	if out != s {
		out += "-" + shortHash(s)
	}

	return out
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the store root
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	return nil
}
