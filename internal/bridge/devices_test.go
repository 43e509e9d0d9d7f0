package bridge

import (
	"context"
	"testing"
	"time"
)

func TestParseDevicesOutput(t *testing.T) {
	out := "List of devices attached\n" +
		"SERIAL1\tdevice\n" +
		"SERIAL2\tunauthorized\n" +
		"SERIAL3\toffline\n" +
		"\n" +
		"garbage line without tab\n"

	live := ParseDevicesOutput(out)
	if len(live) != 3 {
		t.Fatalf("expected 3 devices, got %d: %v", len(live), live)
	}
	if live[0].ID != "SERIAL1" || live[0].Status != StatusDevice {
		t.Fatalf("unexpected first device: %+v", live[0])
	}
	if live[1].Status != StatusUnauthorized {
		t.Fatalf("unexpected second status: %+v", live[1])
	}
	if live[2].Status != StatusOffline {
		t.Fatalf("unexpected third status: %+v", live[2])
	}
}

func TestParseDevicesOutputEmpty(t *testing.T) {
	if live := ParseDevicesOutput("List of devices attached\n\n"); len(live) != 0 {
		t.Fatalf("expected no devices, got %v", live)
	}
}

func TestStatusOfAbsentDevice(t *testing.T) {
	fr := &fakeRunner{res: Result{Stdout: "List of devices attached\nSERIAL1\tdevice\n"}}
	e := NewExecutorWithRunner("adb", time.Second, fr)

	st, err := e.StatusOf(context.Background(), "UNKNOWN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != StatusAbsent {
		t.Fatalf("expected absent, got %s", st)
	}
}

func TestReadyDevicesFiltersUnauthorized(t *testing.T) {
	fr := &fakeRunner{res: Result{Stdout: "List of devices attached\nA\tdevice\nB\tunauthorized\nC\tdevice\n"}}
	e := NewExecutorWithRunner("adb", time.Second, fr)

	ids, err := e.ReadyDevices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "C" {
		t.Fatalf("expected [A C], got %v", ids)
	}
}
