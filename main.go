package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"usb-fleet/cmd"
	"usb-fleet/internal/events"
	"usb-fleet/internal/util"
)

func main() {
	// Ensure .fleet_temp/logs directory exists for logging
	if err := os.MkdirAll(".fleet_temp/logs", 0755); err != nil {
		log.Fatalf("failed to create .fleet_temp/logs directory: %v", err)
	}

	f, err := os.OpenFile(".fleet_temp/logs/usb-fleet.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer f.Close()

	// Standard logger goes to the file; the terminal belongs to SafePrinter.
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Context used to issue graceful cancellation to the command tree.
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("interrupt received, cancelling")
		cancel()
	}()

	var wg sync.WaitGroup
	done := make(chan struct{})
	shutdown := make(chan struct{})

	// Listen for shutdown events from components via EventBus
	events.GlobalBus.Subscribe(events.EventShutdownRequested, func(reason string) {
		log.Printf("shutdown requested from component: %s\n", reason)
		cancel()
		close(shutdown)
	})

	// Run the CLI in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cmd.ExecuteContext(ctx)
		close(done)
	}()

waitLoop:
	for {
		select {
		case <-shutdown:
			select {
			case <-done:
				log.Println("goroutine exited cleanly after component shutdown")
				break waitLoop
			case <-time.After(5 * time.Second):
				log.Println("timeout waiting for goroutine after component shutdown, forcing exit")
				os.Exit(1)
			}
		case <-done:
			log.Println("goroutine finished; exiting.")
			util.Default.ClearLine()
			break waitLoop
		}
	}

	wg.Wait()
}
