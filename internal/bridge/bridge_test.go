package bridge

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

// fakeRunner records invocations and plays back canned results.
type fakeRunner struct {
	lastName string
	lastArgs []string
	res      Result
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	f.lastName = name
	f.lastArgs = args
	if f.err != nil {
		return Result{}, f.err
	}
	return f.res, nil
}

func TestExecuteScopesToDevice(t *testing.T) {
	fr := &fakeRunner{res: Result{Stdout: "Success"}}
	e := NewExecutorWithRunner("adb", time.Second, fr)

	res, err := e.Execute(context.Background(), "SERIAL1", "install", "app.apk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected zero exit, got %d", res.ExitCode)
	}
	want := []string{"-s", "SERIAL1", "install", "app.apk"}
	if len(fr.lastArgs) != len(want) {
		t.Fatalf("args = %v, want %v", fr.lastArgs, want)
	}
	for i := range want {
		if fr.lastArgs[i] != want[i] {
			t.Fatalf("args = %v, want %v", fr.lastArgs, want)
		}
	}
}

func TestExecuteWithoutDeviceOmitsScope(t *testing.T) {
	fr := &fakeRunner{res: Result{}}
	e := NewExecutorWithRunner("adb", time.Second, fr)

	if _, err := e.Execute(context.Background(), "", "devices"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fr.lastArgs) != 1 || fr.lastArgs[0] != "devices" {
		t.Fatalf("args = %v, want [devices]", fr.lastArgs)
	}
}

func TestExecuteEmptyCommandRejected(t *testing.T) {
	e := NewExecutorWithRunner("adb", time.Second, &fakeRunner{})
	if _, err := e.Execute(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestExecuteMapsTimeout(t *testing.T) {
	fr := &fakeRunner{err: context.DeadlineExceeded}
	e := NewExecutorWithRunner("adb", time.Second, fr)

	_, err := e.Execute(context.Background(), "SERIAL1", "push", "a", "b")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

// A hung process must surface as ErrTimeout with the real runner, not as a
// killed-process exit value.
func TestExecuteTimesOutRealProcess(t *testing.T) {
	e := NewExecutor("sleep", 100*time.Millisecond)

	start := time.Now()
	_, err := e.Execute(context.Background(), "", "5")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestExecuteMapsLaunchFailure(t *testing.T) {
	fr := &fakeRunner{err: exec.ErrNotFound}
	e := NewExecutorWithRunner("adb", time.Second, fr)

	_, err := e.Execute(context.Background(), "", "version")
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
}

func TestNonZeroExitIsAValueNotAnError(t *testing.T) {
	fr := &fakeRunner{res: Result{Stderr: "Failure [not installed]", ExitCode: 1}}
	e := NewExecutorWithRunner("adb", time.Second, fr)

	res, err := e.Execute(context.Background(), "SERIAL1", "uninstall", "com.example")
	if err != nil {
		t.Fatalf("command-level failure must not be an error, got %v", err)
	}
	if res.OK() {
		t.Fatal("expected non-zero exit code")
	}
	if res.Stderr != "Failure [not installed]" {
		t.Fatalf("unexpected stderr: %q", res.Stderr)
	}
}

func TestVerifyReportsLaunchError(t *testing.T) {
	fr := &fakeRunner{res: Result{Stderr: "broken", ExitCode: 2}}
	e := NewExecutorWithRunner("adb", time.Second, fr)

	if err := e.Verify(context.Background()); !errors.Is(err, ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
}
