package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/ports"
)

var _ ports.SessionBroadcaster = (*SessionEventBus)(nil)

// SessionEventBusOptions configures a SessionEventBus.
type SessionEventBusOptions struct {
	Channel string // default "portal:session-events"
	Origin  string // default random; identifies this process
	Logger  *slog.Logger
}

type busMessage struct {
	Origin   string                  `json:"origin"`
	ClientID string                  `json:"client_id"`
	Event    domainauth.SessionEvent `json:"event"`
}

// SessionEventBus relays session events between portal processes over Redis
// pub/sub. One Run loop per process feeds the registered listeners.
type SessionEventBus struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[string]map[int]func(domainauth.SessionEvent)
	nextID   int
}

// NewSessionEventBus constructs a bus; call Run to start receiving.
func NewSessionEventBus(client redis.UniversalClient, opts SessionEventBusOptions) *SessionEventBus {
	channel := opts.Channel
	if channel == "" {
		channel = "portal:session-events"
	}
	origin := opts.Origin
	if origin == "" {
		origin = uuid.New().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionEventBus{
		client:   client,
		channel:  channel,
		origin:   origin,
		logger:   logger.With("component", "session_event_bus"),
		handlers: make(map[string]map[int]func(domainauth.SessionEvent)),
	}
}

// Publish sends ev for clientID to every other process.
func (b *SessionEventBus) Publish(ctx context.Context, clientID string, ev domainauth.SessionEvent) error {
	data, err := json.Marshal(busMessage{Origin: b.origin, ClientID: clientID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Listen registers fn for events published about clientID by other processes.
func (b *SessionEventBus) Listen(clientID string, fn func(domainauth.SessionEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.handlers[clientID] == nil {
		b.handlers[clientID] = make(map[int]func(domainauth.SessionEvent))
	}
	b.handlers[clientID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[clientID], id)
			if len(b.handlers[clientID]) == 0 {
				delete(b.handlers, clientID)
			}
		})
	}
}

// Run subscribes to the channel and dispatches messages until ctx is done.
func (b *SessionEventBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			b.logger.Warn("close subscription", "error", err)
		}
	}()

	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.logger.Info("session event bus subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch([]byte(msg.Payload))
		}
	}
}

func (b *SessionEventBus) dispatch(payload []byte) {
	var msg busMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("discard malformed session event", "error", err)
		return
	}
	if msg.Origin == b.origin {
		return
	}

	b.mu.RLock()
	fns := make([]func(domainauth.SessionEvent), 0, len(b.handlers[msg.ClientID]))
	for _, fn := range b.handlers[msg.ClientID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(msg.Event)
	}
}
