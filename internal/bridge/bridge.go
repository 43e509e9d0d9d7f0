package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrLaunch means the adb executable itself could not be started (missing,
// unreadable, not executable). This is a configuration problem and is fatal;
// callers surface it once at startup and never retry per call.
var ErrLaunch = errors.New("bridge: cannot launch adb")

// ErrTimeout means a single adb invocation exceeded its deadline. Callers
// treat it as a transient per-item failure, never fatal to the process.
var ErrTimeout = errors.New("bridge: command timed out")

// Result carries the outcome of one adb invocation. A non-zero ExitCode is
// data, not a Go error: command-level failures (package not installed, file
// absent) are inspected by callers that know the operation semantics.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func (r Result) OK() bool { return r.ExitCode == 0 }

// Runner abstracts process execution so tests can substitute a fake adb.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

type osRunner struct{}

func (osRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A dead context means CommandContext killed the process; that is a
		// timeout or cancellation, not a command-level failure.
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		// Command ran and failed; exit status is a value for the caller.
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

// Executor invokes the adb binary with optional per-device scoping and a
// bounded timeout. It keeps no state and applies no retry policy; retries
// belong to callers that know operation semantics.
type Executor struct {
	adbPath string
	timeout time.Duration
	runner  Runner
}

func NewExecutor(adbPath string, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{adbPath: adbPath, timeout: timeout, runner: osRunner{}}
}

// NewExecutorWithRunner is the test constructor.
func NewExecutorWithRunner(adbPath string, timeout time.Duration, runner Runner) *Executor {
	e := NewExecutor(adbPath, timeout)
	e.runner = runner
	return e
}

// Execute runs `adb [-s deviceID] args...`. An empty deviceID targets adb's
// default routing, which is only valid for device-agnostic commands like
// `devices`.
func (e *Executor) Execute(ctx context.Context, deviceID string, args ...string) (Result, error) {
	if len(args) == 0 {
		return Result{}, fmt.Errorf("bridge: empty command")
	}

	argv := make([]string, 0, len(args)+2)
	if deviceID != "" {
		argv = append(argv, "-s", deviceID)
	}
	argv = append(argv, args...)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.runner.Run(runCtx, e.adbPath, argv...)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("%w after %s: adb %v", ErrTimeout, e.timeout, args)
	}
	if errors.Is(err, context.Canceled) {
		return res, err
	}
	// Anything else at this level is a spawn failure.
	return res, fmt.Errorf("%w: %v", ErrLaunch, err)
}

// Verify checks once at startup that the adb binary can be spawned at all.
func (e *Executor) Verify(ctx context.Context) error {
	res, err := e.Execute(ctx, "", "version")
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%w: adb version exited %d: %s", ErrLaunch, res.ExitCode, res.Stderr)
	}
	return nil
}
