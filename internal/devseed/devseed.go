// Package devseed populates the in-memory backend with accounts and sample
// events so a fresh development portal has something to show.
package devseed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swachh/portal-core/internal/adapters/devauth"
	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/domain/model"
	"github.com/swachh/portal-core/internal/ports"
)

// Seeds bundles the dependencies needed for development seeding.
type Seeds struct {
	Directory *devauth.Directory
	Records   ports.RecordStore
	// Accounts are email:password:role entries; role may be omitted.
	Accounts []string
	Clock    func() time.Time
}

// Run creates the configured accounts and, when an organizer account exists,
// a few upcoming events owned by it. Individual failures are logged and counted.
func Run(ctx context.Context, s Seeds, logger *slog.Logger) error {
	if s.Directory == nil {
		return errors.New("devseed: directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := s.Clock
	if now == nil {
		now = time.Now
	}

	organizer, failures := seedAccounts(ctx, s.Directory, s.Accounts, logger)
	if organizer != "" && s.Records != nil {
		failures += seedEvents(ctx, s.Records, organizer, now(), logger)
	}
	if failures > 0 {
		return fmt.Errorf("devseed: %d item(s) failed", failures)
	}
	return nil
}

// ParseAccount parses an email:password:role seed entry.
func ParseAccount(entry string) (ports.AccountInput, error) {
	parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ports.AccountInput{}, fmt.Errorf("devseed: malformed account entry %q", entry)
	}
	in := ports.AccountInput{
		Email:       strings.ToLower(parts[0]),
		Password:    parts[1],
		DisplayName: strings.SplitN(parts[0], "@", 2)[0],
		Role:        domainauth.RoleCitizen,
	}
	if len(parts) == 3 {
		role, ok := domainauth.ParseRole(parts[2])
		if !ok {
			return ports.AccountInput{}, fmt.Errorf("devseed: unknown role %q", parts[2])
		}
		in.Role = role
	}
	return in, nil
}

// seedAccounts returns the user id of the first employee or admin account.
func seedAccounts(ctx context.Context, dir *devauth.Directory, entries []string, logger *slog.Logger) (string, int) {
	organizer := ""
	failures := 0
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		in, err := ParseAccount(entry)
		if err != nil {
			logger.WarnContext(ctx, "skipping seed account", "error", err)
			failures++
			continue
		}
		err = dir.Register(in)
		switch {
		case errors.Is(err, ports.ErrEmailAlreadyRegistered):
			logger.DebugContext(ctx, "seed account exists", "email", in.Email)
		case err != nil:
			logger.WarnContext(ctx, "failed to seed account", "email", in.Email, "error", err)
			failures++
			continue
		default:
			logger.InfoContext(ctx, "seeded account", "email", in.Email, "role", in.Role)
		}

		if organizer != "" || (in.Role != domainauth.RoleEmployee && in.Role != domainauth.RoleAdmin) {
			continue
		}
		sess, err := dir.Issue(in.Email, in.Password)
		if err != nil {
			logger.WarnContext(ctx, "failed to resolve seed organizer", "email", in.Email, "error", err)
			failures++
			continue
		}
		dir.Revoke(sess.Token)
		organizer = sess.UserID()
	}
	return organizer, failures
}

func seedEvents(ctx context.Context, records ports.RecordStore, organizer string, now time.Time, logger *slog.Logger) int {
	failures := 0
	for _, ev := range defaultEvents(organizer, now) {
		var stored model.Event
		if err := records.Insert(ctx, ports.CollectionEvents, ev, &stored); err != nil {
			logger.WarnContext(ctx, "failed to seed event", "title", ev.Title, "error", err)
			failures++
			continue
		}
		logger.InfoContext(ctx, "seeded event", "id", stored.ID, "title", stored.Title)
	}
	return failures
}

func defaultEvents(organizer string, now time.Time) []model.Event {
	day := func(offset int) string { return now.AddDate(0, 0, offset).Format("2006-01-02") }
	return []model.Event{
		{
			ID:              uuid.New().String(),
			Title:           "Riverbank Cleanup Drive",
			Description:     stringPtr("cleanup: Bring gloves; bags are provided."),
			EventDate:       day(7),
			EventTime:       stringPtr("07:30"),
			Location:        "Ghat No. 4",
			MaxParticipants: intPtr(50),
			Status:          model.EventUpcoming,
			CreatedBy:       organizer,
			CreatedAt:       now,
		},
		{
			ID:          uuid.New().String(),
			Title:       "Ward 12 Plantation Morning",
			Description: stringPtr("plantation: Saplings and tools provided by the ward office."),
			EventDate:   day(14),
			Location:    "Community Park, Ward 12",
			Status:      model.EventUpcoming,
			CreatedBy:   organizer,
			CreatedAt:   now,
		},
	}
}

func stringPtr(s string) *string { return &s }
func intPtr(i int) *int          { return &i }
