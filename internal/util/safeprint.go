package util

import (
	"fmt"
	"strings"
	"sync"
)

type SafePrinter struct {
	mu        sync.Mutex
	suspended bool
	forward   chan string
}

// Default is the shared SafePrinter used across the application to
// ensure all packages serialize their output to the terminal and avoid
// interleaving between goroutines.
var Default = &SafePrinter{}

// SetForwardChannel redirects subsequent prints into ch instead of stdout.
// Used while a Bubble Tea view owns the screen. Pass nil to restore normal
// printing. Returns the previously installed channel.
func (s *SafePrinter) SetForwardChannel(ch chan string) chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.forward
	s.forward = ch
	return prev
}

func (s *SafePrinter) emit(text string) {
	if s.suspended {
		return
	}
	if s.forward != nil {
		select {
		case s.forward <- text:
		default:
			// Never block a worker on a full UI channel.
		}
		return
	}
	fmt.Print(text)
}

func (s *SafePrinter) Print(a ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(fmt.Sprint(a...))
}

func (s *SafePrinter) Printf(format string, a ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(fmt.Sprintf(format, a...))
}

func (s *SafePrinter) Println(a ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(fmt.Sprintln(a...))
}

// PrintBlock prints a potentially multi-line block atomically. If clearLine is
// true it will first clear the current line (useful to overwrite a status
// line) and then print the block exactly as provided.
func (s *SafePrinter) PrintBlock(block string, clearLine bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clearLine {
		s.emit("\r\x1b[K")
	}
	s.emit(block)
	if !strings.HasSuffix(block, "\n") {
		s.emit("\n")
	}
}

// ClearLine clears the current line and returns the cursor to the beginning.
func (s *SafePrinter) ClearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forward != nil {
		return
	}
	s.emit("\r\x1b[K")
}

// Suspend silences all subsequent prints until Resume is called.
// Useful to temporarily hide status messages while interactive prompts
// take over the terminal.
func (s *SafePrinter) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = true
}

// Resume re-enables printing after Suspend.
func (s *SafePrinter) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
}

func (s *SafePrinter) IsSuspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}
