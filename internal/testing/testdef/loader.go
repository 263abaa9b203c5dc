// Package testdef provides test suite loading and validation.
// Suites specify what to run (test cases, metrics, adapters) as opposed to
// how to run them (see testing.TestConfig for execution parameters).
package testdef

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	errSuiteNameRequired   = errors.New("suite name is required")
	errNoTestCases         = errors.New("suite has no test cases")
	errTestCaseIDRequired  = errors.New("test case id is required")
	errDuplicateTestCaseID = errors.New("duplicate test case id")
	errInputRequired       = errors.New("test case input is required")
	errAdapterTypeRequired = errors.New("adapter type is required")
)

// AdapterConfig selects a trigger adapter by type tag. Config is opaque to
// everything but the adapter itself.
type AdapterConfig struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config" json:"config,omitempty"`
}

// TestCase describes one test. It is never mutated once loaded.
type TestCase struct {
	ID               string             `yaml:"id" json:"id"`
	Name             string             `yaml:"name" json:"name"`
	Description      string             `yaml:"description,omitempty" json:"description,omitempty"`
	Input            string             `yaml:"input" json:"input"`
	ExpectedOutput   string             `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`
	RetrievalContext []string           `yaml:"retrieval_context,omitempty" json:"retrieval_context,omitempty"`
	Metrics          []string           `yaml:"metrics" json:"metrics"`
	Thresholds       map[string]float64 `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	Adapter          *AdapterConfig     `yaml:"adapter,omitempty" json:"adapter,omitempty"`
	Context          map[string]any     `yaml:"context,omitempty" json:"context,omitempty"`
	Tags             []string           `yaml:"tags,omitempty" json:"tags,omitempty"`
	Enabled          *bool              `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	SkipReason       string             `yaml:"skip_reason,omitempty" json:"skip_reason,omitempty"`
}

// IsEnabled reports whether the test case should run. Test cases are
// enabled unless explicitly disabled.
func (tc *TestCase) IsEnabled() bool {
	return tc.Enabled == nil || *tc.Enabled
}

// Threshold returns the declared threshold for a metric, if any.
func (tc *TestCase) Threshold(metric string) (float64, bool) {
	v, ok := tc.Thresholds[metric]
	return v, ok
}

// HasTag reports whether the test case carries any of the given tags.
func (tc *TestCase) HasTag(tags ...string) bool {
	for _, want := range tags {
		for _, have := range tc.Tags {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// SuiteConfig holds suite-level execution hints.
type SuiteConfig struct {
	MaxConcurrency int `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty"`
	Timeout        int `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Suite is an ordered collection of test cases with an optional default adapter.
type Suite struct {
	Name           string         `yaml:"name" json:"name"`
	Version        string         `yaml:"version,omitempty" json:"version,omitempty"`
	Description    string         `yaml:"description,omitempty" json:"description,omitempty"`
	Metadata       map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	DefaultAdapter *AdapterConfig `yaml:"default_adapter,omitempty" json:"default_adapter,omitempty"`
	LLMAdapter     *AdapterConfig `yaml:"llm_adapter,omitempty" json:"-"`
	TestConfig     SuiteConfig    `yaml:"test_config,omitempty" json:"test_config,omitempty"`
	TestCases      []*TestCase    `yaml:"test_cases" json:"test_cases"`

	// Path is the file the suite was loaded from, empty for inline suites.
	Path string `yaml:"-" json:"path,omitempty"`
}

// Adapter returns the suite-level default adapter, accepting the legacy
// llm_adapter key when default_adapter is absent.
func (s *Suite) Adapter() *AdapterConfig {
	if s.DefaultAdapter != nil {
		return s.DefaultAdapter
	}
	return s.LLMAdapter
}

// Filter returns the test cases matching the given ids and tags, preserving
// suite order. Empty filters match everything.
func (s *Suite) Filter(ids, tags []string) []*TestCase {
	if len(ids) == 0 && len(tags) == 0 {
		return s.TestCases
	}

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[strings.TrimSpace(id)] = struct{}{}
	}

	out := make([]*TestCase, 0, len(s.TestCases))
	for _, tc := range s.TestCases {
		if len(idSet) > 0 {
			if _, ok := idSet[tc.ID]; !ok {
				continue
			}
		}
		if len(tags) > 0 && !tc.HasTag(tags...) {
			continue
		}
		out = append(out, tc)
	}

	return out
}

// Report is the outcome of validating a suite. Errors make the suite
// unusable; warnings are surfaced to the user but do not block a run.
type Report struct {
	Errors   []error
	Warnings []string
}

// Valid reports whether the suite had no errors.
func (r *Report) Valid() bool {
	return len(r.Errors) == 0
}

// Err joins all validation errors, or returns nil.
func (r *Report) Err() error {
	return errors.Join(r.Errors...)
}

// Validate checks a suite for structural problems.
func Validate(suite *Suite) *Report {
	report := &Report{}

	if suite.Name == "" {
		report.Errors = append(report.Errors, errSuiteNameRequired)
	}

	if len(suite.TestCases) == 0 {
		report.Errors = append(report.Errors, errNoTestCases)
	}

	if def := suite.Adapter(); def != nil && def.Type == "" {
		report.Errors = append(report.Errors, fmt.Errorf("default adapter: %w", errAdapterTypeRequired))
	}

	seen := make(map[string]struct{}, len(suite.TestCases))
	for i, tc := range suite.TestCases {
		if tc.ID == "" {
			report.Errors = append(report.Errors, fmt.Errorf("test case %d: %w", i, errTestCaseIDRequired))
			continue
		}

		if _, dup := seen[tc.ID]; dup {
			report.Errors = append(report.Errors, fmt.Errorf("%w: %s", errDuplicateTestCaseID, tc.ID))
		}
		seen[tc.ID] = struct{}{}

		if tc.Input == "" {
			report.Errors = append(report.Errors, fmt.Errorf("test case %s: %w", tc.ID, errInputRequired))
		}

		if tc.Adapter != nil && tc.Adapter.Type == "" {
			report.Errors = append(report.Errors, fmt.Errorf("test case %s: %w", tc.ID, errAdapterTypeRequired))
		}

		if len(tc.Metrics) == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("test case %s has no metrics", tc.ID))
		}

		if tc.Adapter == nil && suite.Adapter() == nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("test case %s has no adapter and the suite has no default", tc.ID))
		}

		for metric := range tc.Thresholds {
			if !contains(tc.Metrics, metric) {
				report.Warnings = append(report.Warnings, fmt.Sprintf("test case %s declares a threshold for unrequested metric %s", tc.ID, metric))
			}
		}
	}

	return report
}

// Loader loads suite files.
type Loader interface {
	LoadSuite(path string) (*Suite, error)
	LoadSuites(dir string) ([]*Suite, error)
	Parse(data []byte) (*Suite, error)
}

type loader struct {
	log logrus.FieldLogger
}

// NewLoader creates a new suite loader.
func NewLoader(log logrus.FieldLogger) Loader {
	return &loader{
		log: log.WithField("component", "testdef_loader"),
	}
}

// LoadSuite loads and validates a single suite file.
func (l *loader) LoadSuite(path string) (*Suite, error) {
	l.log.WithField("path", path).Debug("loading suite")

	data, err := os.ReadFile(path) //nolint:gosec // path supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("reading suite %s: %w", path, err)
	}

	suite, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing suite %s: %w", path, err)
	}

	suite.Path = path

	return suite, nil
}

// Parse decodes and validates suite YAML.
func (l *loader) Parse(data []byte) (*Suite, error) {
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}

	report := Validate(&suite)
	if !report.Valid() {
		return nil, fmt.Errorf("validating suite %q: %w", suite.Name, report.Err())
	}

	for _, w := range report.Warnings {
		l.log.WithField("suite", suite.Name).Warn(w)
	}

	return &suite, nil
}

// LoadSuites walks dir recursively and loads every .yaml/.yml suite.
// Files that fail to load are logged and skipped.
func (l *loader) LoadSuites(dir string) ([]*Suite, error) {
	suites := make([]*Suite, 0)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() || !isYAML(d.Name()) {
			return nil
		}

		suite, err := l.LoadSuite(path)
		if err != nil {
			l.log.WithError(err).WithField("file", path).Warn("failed to load suite, skipping")
			return nil
		}

		suites = append(suites, suite)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	sort.Slice(suites, func(i, j int) bool {
		return suites[i].Path < suites[j].Path
	})

	return suites, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
