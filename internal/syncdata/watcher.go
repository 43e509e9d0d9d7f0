package syncdata

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rjeczalik/notify"

	"usb-fleet/internal/events"
	"usb-fleet/internal/util"
)

const watchDebounce = 2 * time.Second

// Watcher re-runs a sync whenever the local tree changes. Filesystem events
// are debounced so a burst of writes (an unpacking archive, a large copy)
// triggers one run, not one per file.
type Watcher struct {
	localRoot string
	resync    func(ctx context.Context) error
	watchChan chan notify.EventInfo
}

func NewWatcher(localRoot string, resync func(ctx context.Context) error) *Watcher {
	return &Watcher{
		localRoot: localRoot,
		resync:    resync,
		watchChan: make(chan notify.EventInfo, 100),
	}
}

// Watch blocks until ctx is cancelled, running resync after each quiet
// period that follows a change. A resync that fails is reported and watching
// continues; transient device states should not kill the watch loop.
func (w *Watcher) Watch(ctx context.Context) error {
	pattern := filepath.Join(w.localRoot, "...")
	if err := notify.Watch(pattern, w.watchChan, notify.All); err != nil {
		return fmt.Errorf("syncdata: cannot watch %s: %v", w.localRoot, err)
	}
	defer notify.Stop(w.watchChan)

	events.GlobalBus.Publish(events.EventWatcherStarted, w.localRoot)
	defer events.GlobalBus.Publish(events.EventWatcherStopped, w.localRoot)
	util.Default.Printf("👁️  Watching %s (Ctrl+C to stop)\n", w.localRoot)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.watchChan:
			util.Default.Printf("📝 Change: %s\n", ev.Path())
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-fire
				}
				timer.Reset(watchDebounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			if err := w.resync(ctx); err != nil {
				util.Default.Printf("⚠️  Sync after change failed: %v\n", err)
			}
		}
	}
}
