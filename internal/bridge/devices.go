package bridge

import (
	"context"
	"fmt"
	"strings"
)

// Status is the per-call connection state reported by `adb devices`.
// Derived fresh on every enumeration, never persisted.
type Status string

const (
	StatusDevice       Status = "device"       // authorized, ready
	StatusUnauthorized Status = "unauthorized" // awaiting on-device approval
	StatusOffline      Status = "offline"      // adb sees the id but it is not ready
	StatusAbsent       Status = "absent"       // not reported by enumeration at all
)

// LiveDevice is a transient enumeration record. Callers must re-derive it
// before gating any operation; a stale snapshot is never trusted.
type LiveDevice struct {
	ID     string
	Status Status
}

// Devices enumerates attached devices via `adb devices`.
func (e *Executor) Devices(ctx context.Context) ([]LiveDevice, error) {
	res, err := e.Execute(ctx, "", "devices")
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("bridge: adb devices exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseDevicesOutput(res.Stdout), nil
}

// ParseDevicesOutput parses `adb devices` output. Every line after the
// header is `<id>\t<status>`; anything else (blank lines, daemon startup
// noise) is skipped.
func ParseDevicesOutput(out string) []LiveDevice {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "List of devices") {
		lines = lines[1:]
	}

	var live []LiveDevice
	for _, line := range lines {
		parts := strings.Split(strings.TrimSpace(line), "\t")
		if len(parts) < 2 {
			continue
		}
		id := strings.TrimSpace(parts[0])
		if id == "" {
			continue
		}
		switch Status(strings.TrimSpace(parts[1])) {
		case StatusDevice:
			live = append(live, LiveDevice{ID: id, Status: StatusDevice})
		case StatusUnauthorized:
			live = append(live, LiveDevice{ID: id, Status: StatusUnauthorized})
		case StatusOffline:
			live = append(live, LiveDevice{ID: id, Status: StatusOffline})
		}
	}
	return live
}

// ReadyDevices returns the ids of devices currently reporting authorized
// `device` status. This is the gate every mutating operation goes through.
func (e *Executor) ReadyDevices(ctx context.Context) ([]string, error) {
	live, err := e.Devices(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, d := range live {
		if d.Status == StatusDevice {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

// StatusOf re-enumerates and reports the current status of one device id.
func (e *Executor) StatusOf(ctx context.Context, id string) (Status, error) {
	live, err := e.Devices(ctx)
	if err != nil {
		return StatusAbsent, err
	}
	for _, d := range live {
		if d.ID == id {
			return d.Status, nil
		}
	}
	return StatusAbsent, nil
}
