package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/observability/metrics"
	"github.com/swachh/portal-core/internal/ports"
)

const defaultRestoreTimeout = 10 * time.Second

// Ticket orders session transitions by the moment their operation was dispatched.
// A result carrying a ticket older than the last committed one is stale.
type Ticket uint64

// SessionReader is the read side of the session store used by guards and coordinators.
type SessionReader interface {
	Current() domainauth.Session
	Subscribe(fn func(domainauth.Session)) (unsubscribe func())
}

// SessionStoreOptions groups dependencies for SessionStore.
type SessionStoreOptions struct {
	Backend        ports.AuthBackend
	Logger         *slog.Logger
	Metrics        *metrics.Portal
	RestoreTimeout time.Duration
	Clock          func() time.Time
}

// SessionStore is the single authoritative holder of one portal client's session.
//
// Writers obtain a Ticket with Begin before calling the remote service and
// settle with Commit or Abandon. A commit whose ticket is not newer than the
// last committed one is discarded, so a slow earlier call never overwrites a
// later one. Session-change events from the backend stream are committed with
// a fresh ticket on arrival, unless a writer is in flight: the writer's own
// result supersedes them and only the latest such event is kept for Abandon.
//
// Subscribers run on a single dispatcher goroutine in commit order.
type SessionStore struct {
	backend ports.AuthBackend
	logger  *slog.Logger
	metrics *metrics.Portal
	now     func() time.Time

	current atomic.Pointer[domainauth.Session]

	mu        sync.Mutex
	cond      *sync.Cond
	issued    uint64
	committed uint64
	inflight  int
	stashed   *domainauth.SessionEvent
	queue     []domainauth.Session
	listeners map[uint64]func(domainauth.Session)
	nextID    uint64
	closed    bool

	restored      chan struct{}
	cancelRestore context.CancelFunc
	stopStream    func()
}

// ErrStoreClosed is returned by operations attempted after Close.
var ErrStoreClosed = errors.New("session store closed")

// NewSessionStore constructs the store and starts exactly one restore.
// Until restore settles, Current reports IsRestoring.
func NewSessionStore(opts SessionStoreOptions) (*SessionStore, error) {
	if opts.Backend == nil {
		return nil, errors.New("auth backend is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	timeout := opts.RestoreTimeout
	if timeout <= 0 {
		timeout = defaultRestoreTimeout
	}

	s := &SessionStore{
		backend:   opts.Backend,
		logger:    logger.With("component", "session_store"),
		metrics:   opts.Metrics,
		now:       now,
		listeners: make(map[uint64]func(domainauth.Session)),
		restored:  make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	initial := domainauth.Restoring()
	s.current.Store(&initial)

	go s.dispatch()

	ticket := s.Begin()
	s.stopStream = opts.Backend.OnSessionChange(s.handleEvent)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	s.cancelRestore = cancel
	go s.restore(ctx, ticket)

	return s, nil
}

// Current returns the latest committed session. It never blocks.
func (s *SessionStore) Current() domainauth.Session {
	return *s.current.Load()
}

// Restored is closed once the initial restore has settled, successfully or not.
func (s *SessionStore) Restored() <-chan struct{} {
	return s.restored
}

// WaitRestored blocks until restore settles or ctx is done.
func (s *SessionStore) WaitRestored(ctx context.Context) error {
	select {
	case <-s.restored:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn for future transitions. The current value is not replayed.
// fn must not block; it runs on the store's dispatcher goroutine.
func (s *SessionStore) Subscribe(fn func(domainauth.Session)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Begin reserves a ticket for an operation about to be dispatched.
// Every Begin must be settled by exactly one Commit or Abandon.
func (s *SessionStore) Begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	s.inflight++
	return Ticket(s.issued)
}

// Commit settles the operation holding t with sess. It reports the committed
// value and true, or the unchanged current value and false when t is stale.
func (s *SessionStore) Commit(t Ticket, sess domainauth.Session) (domainauth.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked()
	s.stashed = nil
	return s.commitLocked(t, sess)
}

// Abandon settles the operation holding t without changing the session.
// A stream event withheld while the operation was in flight is committed now.
func (s *SessionStore) Abandon(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked()
	if s.inflight == 0 && s.stashed != nil {
		ev := *s.stashed
		s.stashed = nil
		s.issued++
		s.commitLocked(Ticket(s.issued), sessionFromEvent(ev, s.now()))
	}
	s.logger.Debug("session operation abandoned", "ticket", uint64(t))
}

// Close stops restore and the backend stream, drops pending notifications and
// resets the store to its initial restoring value. Listeners are not called again.
func (s *SessionStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.stashed = nil
	s.listeners = map[uint64]func(domainauth.Session){}
	initial := domainauth.Restoring()
	s.current.Store(&initial)
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancelRestore()
	if s.stopStream != nil {
		s.stopStream()
	}
}

func (s *SessionStore) settleLocked() {
	if s.inflight > 0 {
		s.inflight--
	}
}

func (s *SessionStore) commitLocked(t Ticket, sess domainauth.Session) (domainauth.Session, bool) {
	if s.closed {
		return *s.current.Load(), false
	}
	if uint64(t) <= s.committed {
		s.logger.Debug("stale session result discarded",
			"ticket", uint64(t),
			"committed", s.committed,
		)
		s.metrics.RecordDiscard()
		return *s.current.Load(), false
	}

	s.committed = uint64(t)
	sess.IsRestoring = false
	sess.Seq = uint64(t)
	if sess.EstablishedAt.IsZero() {
		sess.EstablishedAt = s.now()
	}
	if sess.Identity != nil {
		id := *sess.Identity
		sess.Identity = &id
	}

	s.current.Store(&sess)
	s.queue = append(s.queue, sess)
	s.cond.Signal()
	s.metrics.RecordTransition(sess.Authenticated())
	return sess, true
}

func (s *SessionStore) handleEvent(ev domainauth.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.inflight > 0 {
		s.stashed = &ev
		return
	}
	s.issued++
	s.commitLocked(Ticket(s.issued), sessionFromEvent(ev, s.now()))
}

func (s *SessionStore) restore(ctx context.Context, t Ticket) {
	defer close(s.restored)
	defer s.cancelRestore()

	sess, err := s.backend.RestoreSession(ctx)
	switch {
	case err != nil:
		// Fail closed: an unreadable persisted session is treated as none.
		s.logger.Warn("session restore failed", "error", err)
		s.Commit(t, domainauth.Anonymous(s.now()))
	case sess == nil || !sess.Authenticated():
		s.Commit(t, domainauth.Anonymous(s.now()))
	default:
		s.Commit(t, *sess)
	}
}

func (s *SessionStore) dispatch() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		fns := s.snapshotListenersLocked()
		s.mu.Unlock()

		for _, fn := range fns {
			s.notify(fn, next)
		}
	}
}

func (s *SessionStore) snapshotListenersLocked() []func(domainauth.Session) {
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(domainauth.Session), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	return fns
}

func (s *SessionStore) notify(fn func(domainauth.Session), sess domainauth.Session) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session listener panicked", "panic", r)
		}
	}()
	fn(sess)
}

func sessionFromEvent(ev domainauth.SessionEvent, at time.Time) domainauth.Session {
	if ev.Kind == domainauth.EventSignedOut || ev.Session == nil || !ev.Session.Authenticated() {
		return domainauth.Anonymous(at)
	}
	return *ev.Session
}
