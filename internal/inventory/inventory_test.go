package inventory

import (
	"context"
	"strings"
	"testing"
	"time"

	"usb-fleet/internal/bridge"
)

// scriptedRunner dispatches on the scoped device id (-s <id>).
type scriptedRunner struct {
	byDevice map[string]bridge.Result
}

func (s *scriptedRunner) Run(ctx context.Context, name string, args ...string) (bridge.Result, error) {
	device := ""
	if len(args) >= 2 && args[0] == "-s" {
		device = args[1]
	}
	res, ok := s.byDevice[device]
	if !ok {
		return bridge.Result{Stderr: "device offline", ExitCode: 1}, nil
	}
	return res, nil
}

func pmOutput(pkgs ...string) string {
	var b strings.Builder
	for _, p := range pkgs {
		b.WriteString("package:" + p + "\n")
	}
	return b.String()
}

func newTestInventory(runner bridge.Runner) *Inventory {
	return New(bridge.NewExecutorWithRunner("adb", time.Second, runner))
}

func TestScanBuildsPresenceMatrix(t *testing.T) {
	inv := newTestInventory(&scriptedRunner{byDevice: map[string]bridge.Result{
		"A": {Stdout: pmOutput("p1", "p2")},
		"B": {Stdout: pmOutput("p2", "p3")},
	}})

	m, warnings := inv.Scan(context.Background(), []string{"A", "B"})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(m.Packages) != 3 || m.Packages[0] != "p1" || m.Packages[1] != "p2" || m.Packages[2] != "p3" {
		t.Fatalf("unexpected package set: %v", m.Packages)
	}
	if !m.Present("p1", "A") || m.Present("p1", "B") {
		t.Fatal("p1 presence wrong")
	}
	if !m.Present("p2", "A") || !m.Present("p2", "B") {
		t.Fatal("p2 presence wrong")
	}
	if m.Present("p3", "A") || !m.Present("p3", "B") {
		t.Fatal("p3 presence wrong")
	}

	missing := MissingOnly(m)
	if len(missing) != 2 || missing[0] != "p1" || missing[1] != "p3" {
		t.Fatalf("expected missing [p1 p3], got %v", missing)
	}
}

func TestScanContinuesPastFailedDevice(t *testing.T) {
	inv := newTestInventory(&scriptedRunner{byDevice: map[string]bridge.Result{
		"A": {Stdout: pmOutput("p1")},
		// B missing from script -> non-zero exit
	}})

	m, warnings := inv.Scan(context.Background(), []string{"A", "B"})
	if len(warnings) != 1 {
		t.Fatalf("expected one warning for device B, got %v", warnings)
	}
	if !m.Present("p1", "A") {
		t.Fatal("surviving device data lost")
	}
	if m.Present("p1", "B") {
		t.Fatal("failed device must contribute an empty set")
	}
}

func TestListPackagesIgnoresNoise(t *testing.T) {
	inv := newTestInventory(&scriptedRunner{byDevice: map[string]bridge.Result{
		"A": {Stdout: "package:com.example.app\nnoise line\npackage:\npackage:com.other\n"},
	}})

	pkgs, err := inv.ListPackages(context.Background(), "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pkgs) != 2 || pkgs[0] != "com.example.app" || pkgs[1] != "com.other" {
		t.Fatalf("unexpected packages: %v", pkgs)
	}
}

func TestParseSystemPackages(t *testing.T) {
	out := strings.Join([]string{
		"Packages:",
		"  Package [com.android.settings] (a1b2c3):",
		"    userId=1000",
		"    flags=[ SYSTEM HAS_CODE ALLOW_CLEAR_USER_DATA ]",
		"  Package [com.example.game] (d4e5f6):",
		"    userId=10051",
		"    flags=[ HAS_CODE ALLOW_BACKUP ]",
		"  Package [broken",
		"    flags=[ SYSTEM ]",
		"  Package [com.android.shell] (x):",
		"    pkgFlags=[ SYSTEM ]",
	}, "\n")

	system := ParseSystemPackages(out)
	if !system["com.android.settings"] {
		t.Fatal("settings should be system")
	}
	if system["com.example.game"] {
		t.Fatal("game should not be system")
	}
	if !system["com.android.shell"] {
		t.Fatal("pkgFlags SYSTEM marker should count")
	}
	if len(system) != 2 {
		t.Fatalf("unexpected extra entries: %v", system)
	}
}
