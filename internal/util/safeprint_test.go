package util

import "testing"

func TestForwardChannelReceivesPrints(t *testing.T) {
	s := &SafePrinter{}
	ch := make(chan string, 4)
	if prev := s.SetForwardChannel(ch); prev != nil {
		t.Fatalf("fresh printer must have no previous channel")
	}

	s.Printf("pushed %s\n", "a.txt")
	select {
	case got := <-ch:
		if got != "pushed a.txt\n" {
			t.Fatalf("forwarded %q", got)
		}
	default:
		t.Fatal("print was not forwarded")
	}

	if prev := s.SetForwardChannel(nil); prev != ch {
		t.Fatal("SetForwardChannel must return the replaced channel")
	}
}

func TestForwardNeverBlocksOnFullChannel(t *testing.T) {
	s := &SafePrinter{}
	ch := make(chan string, 1)
	s.SetForwardChannel(ch)

	s.Println("first")
	// Channel is full now; this must drop instead of deadlocking.
	s.Println("second")

	if got := <-ch; got != "first\n" {
		t.Fatalf("got %q", got)
	}
	select {
	case got := <-ch:
		t.Fatalf("overflow line should have been dropped, got %q", got)
	default:
	}
}

func TestSuspendSilencesForwardedOutput(t *testing.T) {
	s := &SafePrinter{}
	ch := make(chan string, 4)
	s.SetForwardChannel(ch)

	s.Suspend()
	if !s.IsSuspended() {
		t.Fatal("IsSuspended must report true after Suspend")
	}
	s.Println("hidden")
	select {
	case got := <-ch:
		t.Fatalf("suspended print leaked: %q", got)
	default:
	}

	s.Resume()
	if s.IsSuspended() {
		t.Fatal("IsSuspended must report false after Resume")
	}
	s.Println("visible")
	if got := <-ch; got != "visible\n" {
		t.Fatalf("got %q", got)
	}
}
