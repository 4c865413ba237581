// Package processor keeps download records in step with the artifacts on
// disk by applying watcher events to the store.
package processor

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/watcher"
)

// pathLockStripes is the number of mutexes events are serialized on.
// Paths that hash to the same stripe share a lock.
const pathLockStripes = 64

// StatusUpdater is the slice of the store the processor writes to.
type StatusUpdater interface {
	SetDownloadStatusByPath(ctx context.Context, path string, status domain.DownloadStatus, size int64) (int64, error)
}

// EventProcessor turns artifact events into download status changes:
// a removed artifact marks its records missing and a settled one marks them
// verified with the current size.
//
// Events for the same path are applied one at a time so a quick
// remove-then-add cannot land in the wrong order.
type EventProcessor struct {
	store  StatusUpdater
	logger *slog.Logger

	pathLocks [pathLockStripes]sync.Mutex
}

// NewEventProcessor creates a new EventProcessor instance
func NewEventProcessor(st StatusUpdater, logger *slog.Logger) *EventProcessor {
	return &EventProcessor{
		store:  st,
		logger: logger,
	}
}

// ProcessEvent applies one watcher event. Paths without download records
// are ignored.
func (ep *EventProcessor) ProcessEvent(ctx context.Context, event watcher.Event) error {
	ep.logger.Debug("processing event",
		"type", event.Type.String(),
		"path", event.Path,
	)

	var (
		status domain.DownloadStatus
		size   int64
	)
	switch event.Type {
	case watcher.EventAdded:
		status, size = domain.DownloadVerified, event.Size
	case watcher.EventRemoved:
		status, size = domain.DownloadMissing, -1
	default:
		ep.logger.Warn("unknown event type",
			"type", event.Type,
			"path", event.Path,
		)
		return nil
	}

	lock := ep.pathLock(event.Path)
	lock.Lock()
	defer lock.Unlock()

	n, err := ep.store.SetDownloadStatusByPath(ctx, event.Path, status, size)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", event.Path, status, err)
	}
	if n > 0 {
		ep.logger.Info("download status updated",
			"path", event.Path,
			"status", status,
			"records", n,
		)
	}
	return nil
}

// Run applies events from w until ctx is done.
func (ep *EventProcessor) Run(ctx context.Context, w *watcher.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.Events():
			if err := ep.ProcessEvent(ctx, event); err != nil {
				ep.logger.Error("failed to process event", "path", event.Path, "error", err)
			}
		case err := <-w.Errors():
			ep.logger.Warn("watcher error", "error", err)
		}
	}
}

// pathLock returns the stripe mutex for path.
func (ep *EventProcessor) pathLock(path string) *sync.Mutex {
	return &ep.pathLocks[pathStripe(path)]
}

func pathStripe(path string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return h.Sum32() % pathLockStripes
}
