package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"usb-fleet/internal/bridge"
	"usb-fleet/internal/events"
	"usb-fleet/internal/history"
)

// ErrBusy is returned when a run is requested while another run is active.
// Concurrent pushes to USB-attached devices are unsafe for the hardware, so
// overlap is refused here rather than left to caller discipline.
var ErrBusy = errors.New("batch: another run is active")

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	// OutcomeNotInstalled means uninstall found the package already absent:
	// the desired end state is reached, so this is not a failure.
	OutcomeNotInstalled Outcome = "not_installed"
)

type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
)

// Step is one per-item outcome of a run. The ordered step list is the source
// of truth for overall success; there is no aggregate error.
type Step struct {
	DeviceID   string
	DeviceName string
	Item       string // apk path or package id
	Outcome    Outcome
	Detail     string
	Index      int // 1-based running counter
	Total      int
}

// NicknameResolver maps device ids to display names for progress lines.
type NicknameResolver interface {
	Nickname(id string) string
}

// Orchestrator applies install/uninstall actions across a device list,
// sequentially by design: devices outer, items inner, with per-item failure
// isolation. Progress is published on the global bus in strict execution
// order.
type Orchestrator struct {
	exec  *bridge.Executor
	names NicknameResolver
	log   *history.Log

	mu    sync.Mutex
	busy  bool
	state State
}

func New(exec *bridge.Executor, names NicknameResolver, log *history.Log) *Orchestrator {
	return &Orchestrator{exec: exec, names: names, log: log}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrBusy
	}
	o.busy = true
	o.state = StateRunning
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.busy = false
	o.state = StateCompleted
	o.mu.Unlock()
}

func (o *Orchestrator) nickname(id string) string {
	if o.names == nil {
		return id
	}
	return o.names.Nickname(id)
}

// statuses re-enumerates once at run start; every mutating step is gated on
// the device reporting authorized `device` status in this snapshot.
func (o *Orchestrator) statuses(ctx context.Context) (map[string]bridge.Status, error) {
	live, err := o.exec.Devices(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]bridge.Status, len(live))
	for _, d := range live {
		m[d.ID] = d.Status
	}
	return m, nil
}

func (o *Orchestrator) emit(step Step) {
	events.GlobalBus.Publish(events.EventBatchStep, step)
}

// RunInstall pushes every apk to every device in turn: devices outer,
// apks inner, |apks| x |devices| steps total. One step's failure never
// aborts the rest of the run.
func (o *Orchestrator) RunInstall(ctx context.Context, apkPaths []string, deviceIDs []string) ([]Step, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	ready, err := o.statuses(ctx)
	if err != nil {
		return nil, err
	}

	total := len(apkPaths) * len(deviceIDs)
	steps := make([]Step, 0, total)
	events.GlobalBus.Publish(events.EventBatchStarted, total)

	counter := 0
	for _, id := range deviceIDs {
		name := o.nickname(id)
		for _, apk := range apkPaths {
			counter++
			step := Step{
				DeviceID:   id,
				DeviceName: name,
				Item:       apk,
				Index:      counter,
				Total:      total,
			}

			if st, ok := ready[id]; !ok || st != bridge.StatusDevice {
				step.Outcome = OutcomeFailed
				step.Detail = fmt.Sprintf("device not ready (%s)", statusLabel(ready, id))
			} else {
				step.Outcome, step.Detail = o.installOne(ctx, id, apk)
			}

			o.appendHistory(id, "install", filepath.Base(apk), step, apk)
			steps = append(steps, step)
			o.emit(step)
		}
	}

	events.GlobalBus.Publish(events.EventBatchCompleted, steps)
	return steps, nil
}

func (o *Orchestrator) installOne(ctx context.Context, deviceID, apk string) (Outcome, string) {
	res, err := o.exec.Execute(ctx, deviceID, "install", apk)
	if err != nil {
		return OutcomeFailed, err.Error()
	}
	if !res.OK() {
		return OutcomeFailed, strings.TrimSpace(res.Stderr)
	}
	return OutcomeSuccess, ""
}

// RunUninstall removes one package from each device in list order. A device
// that reports the package as not installed yields OutcomeNotInstalled; the
// absent end state is already achieved.
func (o *Orchestrator) RunUninstall(ctx context.Context, pkg string, deviceIDs []string) ([]Step, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	ready, err := o.statuses(ctx)
	if err != nil {
		return nil, err
	}

	total := len(deviceIDs)
	steps := make([]Step, 0, total)
	events.GlobalBus.Publish(events.EventBatchStarted, total)

	for i, id := range deviceIDs {
		step := Step{
			DeviceID:   id,
			DeviceName: o.nickname(id),
			Item:       pkg,
			Index:      i + 1,
			Total:      total,
		}

		if st, ok := ready[id]; !ok || st != bridge.StatusDevice {
			step.Outcome = OutcomeFailed
			step.Detail = fmt.Sprintf("device not ready (%s)", statusLabel(ready, id))
		} else {
			step.Outcome, step.Detail = o.uninstallOne(ctx, id, pkg)
		}

		o.appendHistory(id, "uninstall", pkg, step, "")
		steps = append(steps, step)
		o.emit(step)
	}

	events.GlobalBus.Publish(events.EventBatchCompleted, steps)
	return steps, nil
}

func (o *Orchestrator) uninstallOne(ctx context.Context, deviceID, pkg string) (Outcome, string) {
	res, err := o.exec.Execute(ctx, deviceID, "uninstall", pkg)
	if err != nil {
		return OutcomeFailed, err.Error()
	}
	if res.OK() {
		return OutcomeSuccess, ""
	}
	combined := strings.ToLower(res.Stdout + " " + res.Stderr)
	if strings.Contains(combined, "not installed") {
		return OutcomeNotInstalled, ""
	}
	return OutcomeFailed, strings.TrimSpace(res.Stderr)
}

func (o *Orchestrator) appendHistory(deviceID, action, item string, step Step, localFile string) {
	rec := history.OperationRecord{
		DeviceID: deviceID,
		Action:   action,
		Item:     item,
		Outcome:  string(step.Outcome),
		Detail:   step.Detail,
	}
	if localFile != "" && step.Outcome == OutcomeSuccess {
		if digest, err := history.FileDigest(localFile); err == nil {
			rec.Digest = digest
		}
	}
	_ = o.log.Append(rec)
}

func statusLabel(m map[string]bridge.Status, id string) string {
	if st, ok := m[id]; ok {
		return string(st)
	}
	return string(bridge.StatusAbsent)
}
