package registry

import (
	"errors"
	"testing"
	"time"

	"usb-fleet/internal/bridge"
)

// memStore keeps records in memory and counts full rewrites.
type memStore struct {
	records []DeviceRecord
	saves   int
}

func (m *memStore) LoadAll() ([]DeviceRecord, error) { return m.records, nil }

func (m *memStore) SaveAll(records []DeviceRecord) error {
	m.records = append([]DeviceRecord(nil), records...)
	m.saves++
	return nil
}

func newTestRegistry(t *testing.T, store *memStore) *Registry {
	t.Helper()
	r, err := New(store)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	r.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestReconcileCreatesWithDefaultNickname(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store)

	live := []bridge.LiveDevice{{ID: "1WMHH812345678", Status: bridge.StatusDevice}}
	if err := r.Reconcile(live); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	recs := r.List()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Nickname != "Device_1WMHH812" {
		t.Fatalf("unexpected default nickname: %q", recs[0].Nickname)
	}
	if recs[0].LastSeen != "2026-08-31" {
		t.Fatalf("unexpected last seen: %q", recs[0].LastSeen)
	}
	if store.saves != 1 {
		t.Fatalf("expected 1 full rewrite, got %d", store.saves)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, &memStore{})
	live := []bridge.LiveDevice{
		{ID: "AAAA", Status: bridge.StatusDevice},
		{ID: "BBBB", Status: bridge.StatusUnauthorized},
	}

	if err := r.Reconcile(live); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	first := r.List()
	if err := r.Reconcile(live); err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	second := r.List()

	if len(first) != len(second) {
		t.Fatalf("record count changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Nickname != second[i].Nickname || first[i].LastSeen != second[i].LastSeen {
			t.Fatalf("record %d changed across identical reconciles: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestReconcileSightsOfflineAndUnauthorized(t *testing.T) {
	r := newTestRegistry(t, &memStore{})
	live := []bridge.LiveDevice{
		{ID: "OFF1", Status: bridge.StatusOffline},
		{ID: "UNA1", Status: bridge.StatusUnauthorized},
	}
	if err := r.Reconcile(live); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(r.List()) != 2 {
		t.Fatal("offline/unauthorized sightings must create records")
	}
}

func TestReconcileNeverRemoves(t *testing.T) {
	r := newTestRegistry(t, &memStore{})
	if err := r.Reconcile([]bridge.LiveDevice{{ID: "GONE", Status: bridge.StatusDevice}}); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if err := r.Reconcile(nil); err != nil {
		t.Fatalf("empty reconcile failed: %v", err)
	}
	if len(r.List()) != 1 {
		t.Fatal("record for absent device must be left untouched")
	}
}

func TestRenameUnknownDevice(t *testing.T) {
	r := newTestRegistry(t, &memStore{})
	if err := r.Rename("nope", "Headset 1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRenamePersists(t *testing.T) {
	store := &memStore{}
	r := newTestRegistry(t, store)
	if err := r.Reconcile([]bridge.LiveDevice{{ID: "AAAA", Status: bridge.StatusDevice}}); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if err := r.Rename("AAAA", "Left Shelf"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if r.Nickname("AAAA") != "Left Shelf" {
		t.Fatalf("nickname not applied: %q", r.Nickname("AAAA"))
	}
	if store.saves != 2 {
		t.Fatalf("every mutation must rewrite the store, got %d saves", store.saves)
	}
}

func TestListOrderingStableAndCaseInsensitive(t *testing.T) {
	r := newTestRegistry(t, &memStore{})
	live := []bridge.LiveDevice{
		{ID: "ZZZ", Status: bridge.StatusDevice},
		{ID: "AAA", Status: bridge.StatusDevice},
		{ID: "MMM", Status: bridge.StatusDevice},
	}
	if err := r.Reconcile(live); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if err := r.Rename("ZZZ", "alpha"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if err := r.Rename("AAA", "Alpha"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if err := r.Rename("MMM", "beta"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	recs := r.List()
	// "alpha"/"Alpha" tie case-insensitively; id AAA sorts before ZZZ.
	if recs[0].DeviceID != "AAA" || recs[1].DeviceID != "ZZZ" || recs[2].DeviceID != "MMM" {
		t.Fatalf("unexpected order: %v", recs)
	}

	again := r.List()
	for i := range recs {
		if recs[i].DeviceID != again[i].DeviceID {
			t.Fatal("ordering not stable across calls")
		}
	}
}

func TestNicknameFallsBackToDefault(t *testing.T) {
	r := newTestRegistry(t, &memStore{})
	if got := r.Nickname("UNSEEN123456"); got != "Device_UNSEEN12" {
		t.Fatalf("unexpected fallback nickname: %q", got)
	}
}
