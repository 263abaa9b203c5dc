package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
	"github.com/thleqel/llm-test-platform/internal/testing/variables"
)

// Browser step actions.
const (
	ActionGoto            = "goto"
	ActionNavigate        = "navigate"
	ActionWaitForSelector = "wait_for_selector"
	ActionFill            = "fill"
	ActionClick           = "click"
	ActionExtractText     = "extract_text"
	ActionScreenshot      = "screenshot"
	ActionWait            = "wait"

	saveAsActualOutput = "actual_output"
)

const (
	defaultStepTimeout    = 5 * time.Second
	defaultWaitDuration   = time.Second
	defaultScreenshotDir  = "test_results/screenshots"
	screenshotQuality     = 100 // chromedp encodes PNG only at full quality
	screenshotPermissions = 0o755
)

var (
	errNoSteps            = errors.New("browser adapter needs at least one step")
	errUnknownAction      = errors.New("unknown browser action")
	errSelectorRequired   = errors.New("step needs a selector")
	errURLRequired        = errors.New("step needs a url")
	errUnsupportedBrowser = errors.New("unsupported browser")
	errBrowserNotStarted  = errors.New("browser session not started")
	errNoActualOutput     = errors.New("no step saved the actual output")
)

// BrowserStep is one declarative UI action.
type BrowserStep struct {
	Action   string  `yaml:"action"`
	URL      string  `yaml:"url"`
	Selector string  `yaml:"selector"`
	Value    string  `yaml:"value"`
	SaveAs   string  `yaml:"save_as"`
	Path     string  `yaml:"path"`
	Timeout  float64 `yaml:"timeout"`
	Duration float64 `yaml:"duration"`
}

// BrowserConfig configures the browser adapter. Step timeouts and wait
// durations are in milliseconds.
type BrowserConfig struct {
	Browser           string        `yaml:"browser"`
	Headless          *bool         `yaml:"headless"`
	BaseURL           string        `yaml:"base_url"`
	ScreenshotOnError *bool         `yaml:"screenshot_on_error"`
	ScreenshotDir     string        `yaml:"screenshot_dir"`
	Steps             []BrowserStep `yaml:"steps"`
}

// Browser drives a headless Chrome session through the configured steps.
// The session is started in Setup and closed in Teardown.
type Browser struct {
	cfg           BrowserConfig
	headless      bool
	shotOnError   bool
	screenshotDir string
	log           logrus.FieldLogger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	browserCtx    context.Context
}

// NewBrowser validates the step list and builds a browser adapter.
func NewBrowser(raw map[string]any, opts *Options) (Adapter, error) {
	var cfg BrowserConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Steps) == 0 {
		return nil, errNoSteps
	}

	for i, step := range cfg.Steps {
		if err := validateStep(step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	if cfg.Browser == "" {
		cfg.Browser = "chromium"
	}

	dir := cfg.ScreenshotDir
	if dir == "" {
		dir = opts.ScreenshotDir
	}
	if dir == "" {
		dir = defaultScreenshotDir
	}

	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}

	return &Browser{
		cfg:           cfg,
		headless:      cfg.Headless == nil || *cfg.Headless,
		shotOnError:   cfg.ScreenshotOnError == nil || *cfg.ScreenshotOnError,
		screenshotDir: dir,
		log:           log.WithField("component", "browser_adapter"),
	}, nil
}

func validateStep(step BrowserStep) error {
	switch step.Action {
	case ActionGoto, ActionNavigate:
		if step.URL == "" {
			return errURLRequired
		}
	case ActionWaitForSelector, ActionFill, ActionClick, ActionExtractText:
		if step.Selector == "" {
			return fmt.Errorf("%s: %w", step.Action, errSelectorRequired)
		}
	case ActionScreenshot, ActionWait:
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, step.Action)
	}

	return nil
}

// Setup launches the browser.
func (b *Browser) Setup(context.Context) error {
	switch strings.ToLower(b.cfg.Browser) {
	case "chromium", "chrome":
	default:
		return fmt.Errorf("%w: %w: %s", ErrSetup, errUnsupportedBrowser, b.cfg.Browser)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", b.headless))

	// The session outlives Setup's context; Teardown owns its lifetime.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	b.mu.Lock()
	b.allocCancel = allocCancel
	b.browserCancel = browserCancel
	b.browserCtx = browserCtx
	b.mu.Unlock()

	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("%w: launching browser: %w", ErrSetup, err)
	}

	return nil
}

// Teardown closes the browser. It is safe after a failed Setup.
func (b *Browser) Teardown(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.browserCtx != nil {
		err = chromedp.Cancel(b.browserCtx)
	}

	if b.browserCancel != nil {
		b.browserCancel()
	}

	if b.allocCancel != nil {
		b.allocCancel()
	}

	b.browserCtx = nil
	b.browserCancel = nil
	b.allocCancel = nil

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing browser: %w", err)
	}

	return nil
}

// Execute runs the steps in order.
func (b *Browser) Execute(ctx context.Context, tc *testdef.TestCase, runtime map[string]any) *Result {
	b.mu.Lock()
	browserCtx := b.browserCtx
	b.mu.Unlock()

	screenshots := make([]string, 0)
	metadata := map[string]any{
		"browser":     b.cfg.Browser,
		"screenshots": screenshots,
	}

	if browserCtx == nil {
		return failed(errBrowserNotStarted, metadata)
	}

	vars := scope(tc, runtime)
	extracted := make(map[string]string)

	var (
		actual    string
		haveSaved bool
	)

	for i, step := range b.cfg.Steps {
		text, shot, err := b.runStep(ctx, browserCtx, tc.ID, i, step, vars)
		if shot != "" {
			screenshots = append(screenshots, shot)
		}

		if err != nil {
			if b.shotOnError {
				if path, shotErr := b.capture(browserCtx, b.screenshotPath(tc.ID, "error")); shotErr == nil {
					screenshots = append(screenshots, path)
				} else {
					b.log.WithError(shotErr).Debug("failed to capture error screenshot")
				}
			}

			metadata["screenshots"] = screenshots
			metadata["failed_step"] = i

			return failed(fmt.Errorf("step %d (%s): %w", i, step.Action, err), metadata)
		}

		if step.Action == ActionExtractText {
			if step.SaveAs == "" || step.SaveAs == saveAsActualOutput {
				actual = text
				haveSaved = true
			} else {
				extracted[step.SaveAs] = text
			}
		}
	}

	var pageURL, pageTitle string
	if err := chromedp.Run(browserCtx, chromedp.Location(&pageURL), chromedp.Title(&pageTitle)); err == nil {
		metadata["page_url"] = pageURL
		metadata["page_title"] = pageTitle
	}

	metadata["screenshots"] = screenshots
	if len(extracted) > 0 {
		metadata["extracted"] = extracted
	}

	if !haveSaved {
		return failed(errNoActualOutput, metadata)
	}

	return succeeded(actual, metadata)
}

func (b *Browser) runStep(
	ctx, browserCtx context.Context,
	testCaseID string,
	index int,
	step BrowserStep,
	vars variables.Scope,
) (text, screenshot string, err error) {
	timeout := defaultStepTimeout
	if step.Timeout > 0 {
		timeout = time.Duration(step.Timeout * float64(time.Millisecond))
	}

	if step.Action == ActionWait {
		wait := defaultWaitDuration
		if step.Duration > 0 {
			wait = time.Duration(step.Duration * float64(time.Millisecond))
		}
		timeout = wait + defaultStepTimeout
	}

	stepCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	selector := variables.SubstituteString(step.Selector, vars)

	switch step.Action {
	case ActionGoto, ActionNavigate:
		err = chromedp.Run(stepCtx, chromedp.Navigate(b.resolveURL(variables.SubstituteString(step.URL, vars))))
	case ActionWaitForSelector:
		err = chromedp.Run(stepCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	case ActionFill:
		value := variables.SubstituteString(step.Value, vars)
		err = chromedp.Run(stepCtx,
			chromedp.WaitVisible(selector, chromedp.ByQuery),
			chromedp.SetValue(selector, "", chromedp.ByQuery),
			chromedp.SendKeys(selector, value, chromedp.ByQuery),
		)
	case ActionClick:
		err = chromedp.Run(stepCtx, chromedp.Click(selector, chromedp.ByQuery))
	case ActionExtractText:
		err = chromedp.Run(stepCtx, chromedp.Text(selector, &text, chromedp.ByQuery))
		text = strings.TrimSpace(text)
	case ActionScreenshot:
		path := step.Path
		if path == "" {
			path = b.screenshotPath(testCaseID, fmt.Sprintf("step%d", index))
		}
		screenshot, err = b.capture(stepCtx, variables.SubstituteString(path, vars))
	case ActionWait:
		wait := defaultWaitDuration
		if step.Duration > 0 {
			wait = time.Duration(step.Duration * float64(time.Millisecond))
		}
		err = chromedp.Run(stepCtx, chromedp.Sleep(wait))
	}

	return text, screenshot, err
}

func (b *Browser) resolveURL(raw string) string {
	if b.cfg.BaseURL == "" {
		return raw
	}

	target, err := url.Parse(raw)
	if err != nil || target.IsAbs() {
		return raw
	}

	base, err := url.Parse(b.cfg.BaseURL)
	if err != nil {
		return raw
	}

	return base.ResolveReference(target).String()
}

func (b *Browser) screenshotPath(testCaseID, suffix string) string {
	name := fmt.Sprintf("%s_%s_%d.png", sanitizeFileName(testCaseID), suffix, time.Now().UnixNano())
	return filepath.Join(b.screenshotDir, name)
}

func (b *Browser) capture(ctx context.Context, path string) (string, error) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, screenshotQuality)); err != nil {
		return "", fmt.Errorf("capturing screenshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), screenshotPermissions); err != nil {
		return "", fmt.Errorf("creating screenshot dir: %w", err)
	}

	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}

	return path, nil
}

func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
