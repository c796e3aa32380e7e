package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Variant controls how the presentation layer styles a notice.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice is a short-lived message shown to the user after an operation settles.
type Notice struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Variant     Variant           `json:"variant"`
	Outcome     string            `json:"outcome"`
	UserID      string            `json:"user_id,omitempty"`
	RedirectTo  string            `json:"redirect_to,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SinkFunc adapts a function to the notification sink contract (useful for tests).
type SinkFunc func(ctx context.Context, notice Notice) error

// Notify implements the sink contract.
func (f SinkFunc) Notify(ctx context.Context, notice Notice) error {
	if f == nil {
		return nil
	}
	return f(ctx, notice)
}

// LogSink writes notices to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Notify logs the notice at info, or warn for destructive notices.
func (s LogSink) Notify(ctx context.Context, notice Notice) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if notice.Variant == VariantDestructive {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "notice",
		"title", notice.Title,
		"outcome", notice.Outcome,
		"user_id", notice.UserID,
	)
	return nil
}

// Inbox buffers notices for a view layer that polls for them.
// When full, the oldest notice is dropped.
type Inbox struct {
	mu      sync.Mutex
	notices []Notice
	limit   int
}

// NewInbox returns an inbox holding at most limit notices (default 20).
func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = 20
	}
	return &Inbox{limit: limit}
}

// Notify appends the notice.
func (i *Inbox) Notify(_ context.Context, notice Notice) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.notices) >= i.limit {
		i.notices = i.notices[1:]
	}
	i.notices = append(i.notices, notice)
	return nil
}

// Drain returns and clears the buffered notices, oldest first.
func (i *Inbox) Drain() []Notice {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.notices
	i.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

// Fanout delivers a notice to every sink, continuing past failures.
type Fanout []interface {
	Notify(ctx context.Context, notice Notice) error
}

// Notify returns the first error encountered after attempting every sink.
func (f Fanout) Notify(ctx context.Context, notice Notice) error {
	var firstErr error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, notice); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
