package events

import "github.com/asaskevich/EventBus"

// GlobalBus is the shared event bus for the entire application
var GlobalBus EventBus.Bus

func init() {
	GlobalBus = EventBus.New()
}

// Event types for application-wide coordination
const (
	// Shutdown events
	EventShutdownRequested = "app:shutdown:requested"
	EventShutdownComplete  = "app:shutdown:complete"

	// Batch run events (install/uninstall). Payload is batch.Step.
	EventBatchStarted   = "batch:started"
	EventBatchStep      = "batch:step"
	EventBatchCompleted = "batch:completed"

	// Sync run events. Payload is syncdata.FileOutcome for progress.
	EventSyncStarted     = "sync:started"
	EventSyncDeviceBegin = "sync:device:begin"
	EventSyncFileOutcome = "sync:file:outcome"
	EventSyncCompleted   = "sync:completed"

	// Watch mode events
	EventWatcherStarted = "watcher:started"
	EventWatcherStopped = "watcher:stopped"
)
