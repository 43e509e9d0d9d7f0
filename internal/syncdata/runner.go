package syncdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"usb-fleet/internal/bridge"
	"usb-fleet/internal/events"
	"usb-fleet/internal/history"
)

// ErrBusy is returned when a sync run is requested while another is active.
var ErrBusy = errors.New("syncdata: another sync run is active")

// NicknameResolver maps device ids to display names for progress lines.
type NicknameResolver interface {
	Nickname(id string) string
}

// FileOutcome is one per-file result of a sync run, emitted in strict
// execution order. The collected list is the source of truth; a failed file
// never aborts the remaining queue.
type FileOutcome struct {
	DeviceID   string
	DeviceName string
	RelPath    string
	Action     string // push, rename, skip, delete, gate
	OK         bool
	Detail     string
}

// Engine mirrors a local directory tree onto each device's remote root:
// full listings up front, frozen plan, conflict/orphan resolution under a
// session-scoped policy, then pushes followed by deletions. Local is the
// source of truth; the diff is one-directional.
type Engine struct {
	exec  *bridge.Executor
	names NicknameResolver
	log   *history.Log
	now   func() time.Time

	mu   sync.Mutex
	busy bool
}

func New(exec *bridge.Executor, names NicknameResolver, log *history.Log) *Engine {
	return &Engine{exec: exec, names: names, log: log, now: time.Now}
}

func (e *Engine) nickname(id string) string {
	if e.names == nil {
		return id
	}
	return e.names.Nickname(id)
}

func (e *Engine) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrBusy
	}
	e.busy = true
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// Run syncs localRoot onto remoteRoot for every device in list order.
// The policy and hooks are session-scoped: decision memory is rebuilt here
// and dies with the run.
func (e *Engine) Run(ctx context.Context, deviceIDs []string, localRoot, remoteRoot string, policy Policy, hooks Hooks) ([]FileOutcome, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	local, err := ListLocal(localRoot)
	if err != nil {
		return nil, fmt.Errorf("syncdata: cannot list local tree: %v", err)
	}

	// One enumeration gates the whole run; each device must report
	// authorized status before any command is issued to it.
	live, err := e.exec.Devices(ctx)
	if err != nil {
		return nil, err
	}
	status := make(map[string]bridge.Status, len(live))
	for _, d := range live {
		status[d.ID] = d.Status
	}

	sess := newSession(policy)
	var outcomes []FileOutcome
	events.GlobalBus.Publish(events.EventSyncStarted, len(deviceIDs))

	for i, id := range deviceIDs {
		name := e.nickname(id)
		events.GlobalBus.Publish(events.EventSyncDeviceBegin, name)

		if st, ok := status[id]; !ok || st != bridge.StatusDevice {
			out := FileOutcome{
				DeviceID:   id,
				DeviceName: name,
				Action:     "gate",
				Detail:     fmt.Sprintf("device not ready (%s)", gateLabel(status, id)),
			}
			outcomes = e.record(outcomes, out)
			continue
		}

		outcomes = e.syncDevice(ctx, id, name, local, remoteRoot, sess, hooks, i == 0, outcomes)
	}

	events.GlobalBus.Publish(events.EventSyncCompleted, outcomes)
	return outcomes, nil
}

func (e *Engine) syncDevice(ctx context.Context, id, name string, local []LocalEntry, remoteRoot string, sess *session, hooks Hooks, firstDevice bool, outcomes []FileOutcome) []FileOutcome {
	remote, err := e.listRemote(ctx, id, remoteRoot)
	if err != nil {
		return e.record(outcomes, FileOutcome{
			DeviceID: id, DeviceName: name, Action: "gate",
			Detail: fmt.Sprintf("remote listing failed: %v", err),
		})
	}

	plan := BuildPlan(local, remote)

	// Orphan decision comes before any transfer so counts shown to the
	// decision hook match what would actually be deleted.
	orphanAction := OrphanKeep
	if len(plan.ToDelete) > 0 {
		orphanAction = sess.orphanAction(hooks, name, plan.ToDelete, firstDevice)
	}

	// Push phase: conflicts first consult the session, then additions go
	// through untouched.
	for _, entry := range plan.Conflicts {
		action := sess.conflictAction(hooks, entry.RelPath, name, firstDevice)
		switch action {
		case ConflictSkip:
			outcomes = e.record(outcomes, FileOutcome{
				DeviceID: id, DeviceName: name, RelPath: entry.RelPath, Action: "skip", OK: true,
			})
		case ConflictRename:
			stamp := e.now().Format("20060102_150405")
			target := renameWithTimestamp(entry.RelPath, stamp)
			outcomes = e.record(outcomes, e.pushOne(ctx, id, name, entry, remoteRoot, target, "rename"))
		default:
			outcomes = e.record(outcomes, e.pushOne(ctx, id, name, entry, remoteRoot, entry.RelPath, "push"))
		}
	}
	for _, entry := range plan.Additions {
		outcomes = e.record(outcomes, e.pushOne(ctx, id, name, entry, remoteRoot, entry.RelPath, "push"))
	}

	// Deletions run last, restricted to the plan's frozen ToDelete set so a
	// file pushed moments ago can never be re-derived as an orphan.
	if orphanAction == OrphanDelete {
		for _, rel := range plan.ToDelete {
			outcomes = e.record(outcomes, e.deleteOne(ctx, id, name, remoteRoot, rel))
		}
	}
	return outcomes
}

func (e *Engine) pushOne(ctx context.Context, id, name string, entry LocalEntry, remoteRoot, targetRel, action string) FileOutcome {
	out := FileOutcome{DeviceID: id, DeviceName: name, RelPath: targetRel, Action: action}
	remotePath := joinRemote(remoteRoot, targetRel)

	if dir := remoteParent(remotePath); dir != "" {
		res, err := e.exec.Execute(ctx, id, "shell", "mkdir", "-p", dir)
		if err != nil {
			out.Detail = err.Error()
			e.appendHistory(id, "push", targetRel, out, "")
			return out
		}
		if !res.OK() {
			out.Detail = fmt.Sprintf("mkdir failed: %s", strings.TrimSpace(res.Stderr))
			e.appendHistory(id, "push", targetRel, out, "")
			return out
		}
	}

	res, err := e.exec.Execute(ctx, id, "push", entry.AbsPath, remotePath)
	if err != nil {
		out.Detail = err.Error()
	} else if !res.OK() {
		out.Detail = strings.TrimSpace(res.Stderr)
	} else {
		out.OK = true
	}
	e.appendHistory(id, "push", targetRel, out, entry.AbsPath)
	return out
}

func (e *Engine) deleteOne(ctx context.Context, id, name, remoteRoot, rel string) FileOutcome {
	out := FileOutcome{DeviceID: id, DeviceName: name, RelPath: rel, Action: "delete"}
	res, err := e.exec.Execute(ctx, id, "shell", "rm", joinRemote(remoteRoot, rel))
	if err != nil {
		out.Detail = err.Error()
	} else if !res.OK() {
		out.Detail = strings.TrimSpace(res.Stderr)
	} else {
		out.OK = true
	}
	e.appendHistory(id, "delete", rel, out, "")
	return out
}

func (e *Engine) record(outcomes []FileOutcome, out FileOutcome) []FileOutcome {
	events.GlobalBus.Publish(events.EventSyncFileOutcome, out)
	return append(outcomes, out)
}

func (e *Engine) appendHistory(deviceID, action, item string, out FileOutcome, localFile string) {
	rec := history.OperationRecord{
		DeviceID: deviceID,
		Action:   action,
		Item:     item,
		Detail:   out.Detail,
	}
	if out.OK {
		rec.Outcome = "success"
	} else {
		rec.Outcome = "failed"
	}
	if localFile != "" && out.OK {
		if digest, err := history.FileDigest(localFile); err == nil {
			rec.Digest = digest
		}
	}
	_ = e.log.Append(rec)
}

// RemoteRootExists probes the remote root with `shell ls -la`; a non-zero
// exit means the folder is absent.
func (e *Engine) RemoteRootExists(ctx context.Context, deviceID, remoteRoot string) (bool, error) {
	res, err := e.exec.Execute(ctx, deviceID, "shell", "ls", "-la", remoteRoot)
	if err != nil {
		return false, err
	}
	return res.OK(), nil
}

// EnsureRemoteRoot creates the remote root (idempotent).
func (e *Engine) EnsureRemoteRoot(ctx context.Context, deviceID, remoteRoot string) error {
	res, err := e.exec.Execute(ctx, deviceID, "shell", "mkdir", "-p", remoteRoot)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("syncdata: mkdir %s failed: %s", remoteRoot, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func joinRemote(remoteRoot, rel string) string {
	return strings.TrimSuffix(remoteRoot, "/") + "/" + rel
}

func remoteParent(remotePath string) string {
	idx := strings.LastIndex(remotePath, "/")
	if idx <= 0 {
		return ""
	}
	return remotePath[:idx]
}

func gateLabel(m map[string]bridge.Status, id string) string {
	if st, ok := m[id]; ok {
		return string(st)
	}
	return string(bridge.StatusAbsent)
}
