package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"usb-fleet/internal/bridge"
)

// ErrNotFound is returned when an operation references a device id the
// registry has never seen.
var ErrNotFound = errors.New("registry: unknown device id")

// Registry reconciles persisted device identities against live enumeration
// snapshots. Records are never removed implicitly; only Remove deletes.
//
// Writes are confined to the control path (single writer); background
// workers only read nicknames for logging and tolerate eventually-fresh
// values, so reads take the same mutex for simplicity.
type Registry struct {
	mu      sync.Mutex
	records map[string]DeviceRecord
	store   Store
	now     func() time.Time
}

func New(store Store) (*Registry, error) {
	r := &Registry{
		records: make(map[string]DeviceRecord),
		store:   store,
		now:     time.Now,
	}
	loaded, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range loaded {
		r.records[rec.DeviceID] = rec
	}
	return r, nil
}

// DefaultNickname derives the deterministic default nickname for a device id.
func DefaultNickname(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("Device_%s", short)
}

// Reconcile merges a live enumeration snapshot into the registry: unseen
// devices get a record with a default nickname, known devices get a fresh
// last-seen date. Any status reported by adb (device/unauthorized/offline)
// counts as a sighting. Records absent from the snapshot are left untouched.
func (r *Registry) Reconcile(live []bridge.LiveDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := r.now().Format("2006-01-02")
	for _, d := range live {
		if rec, ok := r.records[d.ID]; ok {
			rec.LastSeen = today
			r.records[d.ID] = rec
			continue
		}
		r.records[d.ID] = DeviceRecord{
			DeviceID: d.ID,
			Nickname: DefaultNickname(d.ID),
			LastSeen: today,
		}
	}
	return r.saveLocked()
}

// Rename sets the nickname for a known device.
func (r *Registry) Rename(id, nickname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Nickname = nickname
	r.records[id] = rec
	return r.saveLocked()
}

// Remove deletes a record. Manual action only; reconcile never removes.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.records, id)
	return r.saveLocked()
}

// Nickname resolves a device id to its display name, falling back to the
// deterministic default for ids the registry has not recorded.
func (r *Registry) Nickname(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[id]; ok {
		return rec.Nickname
	}
	return DefaultNickname(id)
}

// List returns all records sorted case-insensitively by nickname, with the
// device id as tiebreak so ordering is stable across calls.
func (r *Registry) List() []DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DeviceRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a := strings.ToLower(out[i].Nickname)
		b := strings.ToLower(out[j].Nickname)
		if a != b {
			return a < b
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}

// saveLocked rewrites the backing store wholesale. Caller holds r.mu.
func (r *Registry) saveLocked() error {
	records := make([]DeviceRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DeviceID < records[j].DeviceID })
	return r.store.SaveAll(records)
}
