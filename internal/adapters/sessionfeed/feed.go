// Package sessionfeed implements the session-change stream shared by the auth
// backends: local listeners plus an optional cross-process broadcaster.
package sessionfeed

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/ports"
)

// Feed fans session events out to the listeners of one portal client.
// The broadcaster subscription is held only while at least one listener exists.
type Feed struct {
	clientID    string
	broadcaster ports.SessionBroadcaster
	logger      *slog.Logger

	mu         sync.Mutex
	listeners  map[int]func(domainauth.SessionEvent)
	nextID     int
	stopRemote func()
}

// New constructs a feed. broadcaster may be nil.
func New(clientID string, broadcaster ports.SessionBroadcaster, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		clientID:    clientID,
		broadcaster: broadcaster,
		logger:      logger,
		listeners:   make(map[int]func(domainauth.SessionEvent)),
	}
}

// Subscribe registers fn and returns its idempotent unsubscribe func.
func (f *Feed) Subscribe(fn func(domainauth.SessionEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.listeners[id] = fn
	if f.broadcaster != nil && f.stopRemote == nil {
		f.stopRemote = f.broadcaster.Listen(f.clientID, f.deliver)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.listeners, id)
			if len(f.listeners) == 0 && f.stopRemote != nil {
				f.stopRemote()
				f.stopRemote = nil
			}
		})
	}
}

// Emit delivers ev to local listeners, then publishes it to other processes.
// Publish failures are logged; the local transition already happened.
func (f *Feed) Emit(ctx context.Context, ev domainauth.SessionEvent) {
	f.deliver(ev)
	if f.broadcaster == nil {
		return
	}
	if err := f.broadcaster.Publish(context.WithoutCancel(ctx), f.clientID, ev); err != nil {
		f.logger.WarnContext(ctx, "broadcast session event failed", "kind", ev.Kind, "error", err)
	}
}

// Len returns the number of local listeners.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *Feed) deliver(ev domainauth.SessionEvent) {
	f.mu.Lock()
	ids := make([]int, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(domainauth.SessionEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.listeners[id])
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
