package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/thleqel/llm-test-platform/internal/testing/testdef"
	"github.com/thleqel/llm-test-platform/internal/testing/variables"
)

const (
	defaultShellTimeout = 60 * time.Second
	shellWaitDelay      = 2 * time.Second
)

var (
	errCommandRequired = errors.New("shell adapter needs a command")
	errCommandTimeout  = errors.New("command execution timeout")
	errCommandExit     = errors.New("command exited with non-zero status")
)

// ShellConfig configures the shell adapter.
type ShellConfig struct {
	Command      string            `yaml:"command"`
	Args         []string          `yaml:"args"`
	Timeout      float64           `yaml:"timeout"`
	ResponsePath string            `yaml:"response_path"`
	WorkingDir   string            `yaml:"working_dir"`
	Env          map[string]string `yaml:"env"`
}

// Shell runs an external process and reads its stdout.
type Shell struct {
	noopLifecycle
	cfg     ShellConfig
	timeout time.Duration
}

// NewShell builds a shell adapter.
func NewShell(raw map[string]any, _ *Options) (Adapter, error) {
	var cfg ShellConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	if cfg.Command == "" {
		return nil, errCommandRequired
	}

	timeout := defaultShellTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout * float64(time.Second))
	}

	return &Shell{cfg: cfg, timeout: timeout}, nil
}

// Execute runs the command. The process is killed once the timeout expires.
func (s *Shell) Execute(ctx context.Context, tc *testdef.TestCase, runtime map[string]any) *Result {
	vars := scope(tc, runtime)
	command := variables.SubstituteString(s.cfg.Command, vars)

	args := make([]string, len(s.cfg.Args))
	for i, arg := range s.cfg.Args {
		args[i] = variables.SubstituteString(arg, vars)
	}

	metadata := map[string]any{
		"command": commandLine(command, args),
		"args":    args,
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...) //nolint:gosec // command comes from the suite author
	cmd.WaitDelay = shellWaitDelay
	cmd.Dir = s.cfg.WorkingDir

	if len(s.cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range s.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+variables.SubstituteString(v, vars))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	metadata["stderr"] = stderr.String()
	if cmd.ProcessState != nil {
		metadata["return_code"] = cmd.ProcessState.ExitCode()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failed(errCommandTimeout, metadata)
	}

	output := strings.TrimSpace(stdout.String())

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res := failed(fmt.Errorf("%w %d: %s", errCommandExit, exitErr.ExitCode(), strings.TrimSpace(stderr.String())), metadata)
			res.ActualOutput = output
			return res
		}

		return failed(fmt.Errorf("running command: %w", runErr), metadata)
	}

	if s.cfg.ResponsePath == "" {
		return succeeded(output, metadata)
	}

	var parsed any
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return succeeded(output, metadata)
	}

	// Success follows the exit code; a path miss keeps the raw stdout.
	extracted, err := searchPath(s.cfg.ResponsePath, parsed)
	if err != nil {
		metadata["extract_error"] = err.Error()
		return succeeded(output, metadata)
	}

	return succeeded(extracted, metadata)
}

func commandLine(command string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellescape.Quote(command))
	for _, arg := range args {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}
