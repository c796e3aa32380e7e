package ports

import (
	"context"

	"github.com/swachh/portal-core/internal/observability/notify"
)

// NotificationSink is the presentation collaborator that shows outcome notices.
// Delivery is fire-and-forget: the caller that triggered the notice may be gone.
type NotificationSink interface {
	Notify(ctx context.Context, notice notify.Notice) error
}
