package syncdata

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"usb-fleet/internal/bridge"
)

// adbFake answers enumeration, remote listings and the transfer commands.
type adbFake struct {
	devicesOut string
	// key "<device>" -> raw `find` stdout for that device
	findOut map[string]string
	calls   []string
	during  func()
}

func (f *adbFake) Run(ctx context.Context, name string, args ...string) (bridge.Result, error) {
	device := ""
	rest := args
	if len(args) >= 2 && args[0] == "-s" {
		device = args[1]
		rest = args[2:]
	}
	f.calls = append(f.calls, strings.Join(args, " "))

	if len(rest) > 0 && rest[0] == "devices" {
		return bridge.Result{Stdout: f.devicesOut}, nil
	}
	if f.during != nil {
		f.during()
	}
	if len(rest) > 1 && rest[0] == "shell" && rest[1] == "find" {
		if out, ok := f.findOut[device]; ok {
			return bridge.Result{Stdout: out}, nil
		}
		return bridge.Result{Stderr: "find: no such file or directory", ExitCode: 1}, nil
	}
	return bridge.Result{}, nil
}

func (f *adbFake) callsMatching(sub string) []string {
	var got []string
	for _, c := range f.calls {
		if strings.Contains(c, sub) {
			got = append(got, c)
		}
	}
	return got
}

func newEngine(f *adbFake) *Engine {
	e := New(bridge.NewExecutorWithRunner("adb", time.Second, f), nil, nil)
	e.now = func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	}
	return e
}

func devicesHeader(lines ...string) string {
	return "List of devices attached\n" + strings.Join(lines, "\n") + "\n"
}

func TestRunOverwriteAndDelete(t *testing.T) {
	root := writeLocalTree(t, map[string]string{
		"a.txt":     "new",
		"dir/b.txt": "b",
	})
	fake := &adbFake{
		devicesOut: devicesHeader("d1\tdevice"),
		findOut: map[string]string{
			"d1": "/sdcard/Sync/a.txt\n/sdcard/Sync/c.txt\n",
		},
	}
	e := newEngine(fake)

	policy := Policy{OnConflict: ConflictOverwrite, OnOrphan: OrphanDelete, Scope: ScopeAllDevicesThisSession}
	outcomes, err := e.Run(context.Background(), []string{"d1"}, root, "/sdcard/Sync", policy, Hooks{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// a.txt overwritten, dir/b.txt pushed, c.txt deleted -- in that order.
	want := []struct{ rel, action string }{
		{"a.txt", "push"},
		{"dir/b.txt", "push"},
		{"c.txt", "delete"},
	}
	if len(outcomes) != len(want) {
		t.Fatalf("got %d outcomes: %+v", len(outcomes), outcomes)
	}
	for i, w := range want {
		o := outcomes[i]
		if o.RelPath != w.rel || o.Action != w.action || !o.OK {
			t.Fatalf("outcome %d = %+v, want %s/%s ok", i, o, w.rel, w.action)
		}
	}

	if got := fake.callsMatching("rm /sdcard/Sync/c.txt"); len(got) != 1 {
		t.Fatalf("expected one rm for the orphan, calls: %v", fake.calls)
	}
	// The deletion must come after every push in the command stream.
	lastPush, rmAt := -1, -1
	for i, c := range fake.calls {
		if strings.Contains(c, " push ") {
			lastPush = i
		}
		if strings.Contains(c, "shell rm ") {
			rmAt = i
		}
	}
	if rmAt < lastPush {
		t.Fatalf("rm issued before pushes finished: %v", fake.calls)
	}
}

func TestRunRenameKeepsOrphans(t *testing.T) {
	root := writeLocalTree(t, map[string]string{"a.txt": "new"})
	fake := &adbFake{
		devicesOut: devicesHeader("d1\tdevice"),
		findOut:    map[string]string{"d1": "/sdcard/Sync/a.txt\n/sdcard/Sync/c.txt\n"},
	}
	e := newEngine(fake)

	policy := Policy{OnConflict: ConflictRename, OnOrphan: OrphanKeep, Scope: ScopeAllDevicesThisSession}
	outcomes, err := e.Run(context.Background(), []string{"d1"}, root, "/sdcard/Sync", policy, Hooks{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if outcomes[0].Action != "rename" || outcomes[0].RelPath != "a_20260831_120000.txt" {
		t.Fatalf("conflict outcome = %+v", outcomes[0])
	}
	if got := fake.callsMatching("push"); len(got) != 1 || !strings.Contains(got[0], "/sdcard/Sync/a_20260831_120000.txt") {
		t.Fatalf("push calls: %v", got)
	}
	if got := fake.callsMatching("shell rm"); len(got) != 0 {
		t.Fatalf("orphans must survive with keep, calls: %v", got)
	}
}

func TestRunSkipIsIdempotent(t *testing.T) {
	root := writeLocalTree(t, map[string]string{"a.txt": "same"})
	fake := &adbFake{
		devicesOut: devicesHeader("d1\tdevice"),
		findOut:    map[string]string{"d1": "/sdcard/Sync/a.txt\n"},
	}
	e := newEngine(fake)

	policy := Policy{OnConflict: ConflictSkip, OnOrphan: OrphanKeep, Scope: ScopeAllDevicesThisSession}
	for run := 0; run < 2; run++ {
		outcomes, err := e.Run(context.Background(), []string{"d1"}, root, "/sdcard/Sync", policy, Hooks{})
		if err != nil {
			t.Fatalf("run %d failed: %v", run, err)
		}
		if len(outcomes) != 1 || outcomes[0].Action != "skip" || !outcomes[0].OK {
			t.Fatalf("run %d outcomes = %+v", run, outcomes)
		}
	}
	if got := fake.callsMatching("push"); len(got) != 0 {
		t.Fatalf("skip must not transfer, calls: %v", got)
	}
}

func TestRunMissingRemoteRootReadsAsEmpty(t *testing.T) {
	root := writeLocalTree(t, map[string]string{"a.txt": "a"})
	fake := &adbFake{devicesOut: devicesHeader("d1\tdevice")} // find fails

	outcomes, err := newEngine(fake).Run(context.Background(), []string{"d1"}, root, "/sdcard/Sync", HeadlessPolicy(), Hooks{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Action != "push" || !outcomes[0].OK {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}

func TestRunGatesUnreadyDevices(t *testing.T) {
	root := writeLocalTree(t, map[string]string{"a.txt": "a"})
	fake := &adbFake{
		devicesOut: devicesHeader("d1\tdevice", "d2\tunauthorized"),
		findOut:    map[string]string{"d1": ""},
	}

	outcomes, err := newEngine(fake).Run(context.Background(), []string{"d1", "d2", "d3"}, root, "/sdcard/Sync", HeadlessPolicy(), Hooks{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if outcomes[0].DeviceID != "d1" || !outcomes[0].OK {
		t.Fatalf("d1 = %+v", outcomes[0])
	}
	if outcomes[1].Action != "gate" || !strings.Contains(outcomes[1].Detail, "unauthorized") {
		t.Fatalf("d2 = %+v", outcomes[1])
	}
	if outcomes[2].Action != "gate" || !strings.Contains(outcomes[2].Detail, "absent") {
		t.Fatalf("d3 = %+v", outcomes[2])
	}
	for _, c := range fake.calls {
		if strings.HasPrefix(c, "-s d2 shell find") || strings.HasPrefix(c, "-s d3 shell find") {
			t.Fatalf("gated device received a command: %s", c)
		}
	}
}

func TestRunOrphanDecisionRemembered(t *testing.T) {
	root := writeLocalTree(t, map[string]string{"a.txt": "a"})
	fake := &adbFake{
		devicesOut: devicesHeader("d1\tdevice", "d2\tdevice"),
		findOut: map[string]string{
			"d1": "/sdcard/Sync/old1.txt\n",
			"d2": "/sdcard/Sync/old2.txt\n",
		},
	}

	asked := 0
	hooks := Hooks{
		AskOrphan: func(deviceName string, files []string, firstDevice bool) OrphanDecision {
			asked++
			return OrphanDecision{Action: OrphanDelete, RememberForDevices: true}
		},
	}
	policy := Policy{OnConflict: ConflictOverwrite, OnOrphan: OrphanKeep, Scope: ScopePerDecision}

	_, err := newEngine(fake).Run(context.Background(), []string{"d1", "d2"}, root, "/sdcard/Sync", policy, hooks)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if asked != 1 {
		t.Fatalf("orphan hook asked %d times, want 1", asked)
	}
	if got := fake.callsMatching("shell rm"); len(got) != 2 {
		t.Fatalf("remembered delete must apply to both devices, rm calls: %v", got)
	}
}

func TestRunFilesDecisionSilencesConflictPrompts(t *testing.T) {
	root := writeLocalTree(t, map[string]string{
		"a.txt": "a",
		"b.txt": "b",
	})
	fake := &adbFake{
		devicesOut: devicesHeader("d1\tdevice"),
		findOut: map[string]string{
			"d1": "/sdcard/Sync/a.txt\n/sdcard/Sync/b.txt\n/sdcard/Sync/old.txt\n",
		},
	}

	conflictAsked := 0
	hooks := Hooks{
		AskOrphan: func(deviceName string, files []string, firstDevice bool) OrphanDecision {
			return OrphanDecision{Action: OrphanKeep, RememberForFiles: true}
		},
		AskConflict: func(relPath, deviceName string, firstDevice bool) ConflictAction {
			conflictAsked++
			return ConflictSkip
		},
	}
	policy := Policy{OnConflict: ConflictOverwrite, OnOrphan: OrphanKeep, Scope: ScopePerDecision}

	outcomes, err := newEngine(fake).Run(context.Background(), []string{"d1"}, root, "/sdcard/Sync", policy, hooks)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// The apply-to-all-files answer pins conflicts to the policy default for
	// the rest of the run, so the per-file prompt must never fire.
	if conflictAsked != 0 {
		t.Fatalf("conflict hook asked %d times, want 0", conflictAsked)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	for _, o := range outcomes {
		if o.Action != "push" || !o.OK {
			t.Fatalf("conflicts must resolve to the policy default overwrite, got %+v", o)
		}
	}
	if got := fake.callsMatching("shell rm"); len(got) != 0 {
		t.Fatalf("keep decision must not delete, calls: %v", got)
	}
}

func TestRunRefusesOverlap(t *testing.T) {
	root := writeLocalTree(t, map[string]string{"a.txt": "a"})
	fake := &adbFake{devicesOut: devicesHeader("d1\tdevice"), findOut: map[string]string{"d1": ""}}
	e := newEngine(fake)

	var overlapErr error
	fake.during = func() {
		if overlapErr == nil {
			_, overlapErr = e.Run(context.Background(), []string{"d1"}, root, "/sdcard/Sync", HeadlessPolicy(), Hooks{})
		}
	}

	if _, err := e.Run(context.Background(), []string{"d1"}, root, "/sdcard/Sync", HeadlessPolicy(), Hooks{}); err != nil {
		t.Fatalf("outer run failed: %v", err)
	}
	if !errors.Is(overlapErr, ErrBusy) {
		t.Fatalf("expected ErrBusy for overlapping run, got %v", overlapErr)
	}
}
