package devseed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/swachh/portal-core/internal/adapters/devauth"
	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/domain/model"
	"github.com/swachh/portal-core/internal/ports"
)

func TestParseAccount(t *testing.T) {
	in, err := ParseAccount("Officer@Example.org:secret1:employee")
	require.NoError(t, err)
	assert.Equal(t, "officer@example.org", in.Email)
	assert.Equal(t, domainauth.RoleEmployee, in.Role)
	assert.Equal(t, "Officer", in.DisplayName)

	in, err = ParseAccount("c@example.org:secret1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleCitizen, in.Role)

	_, err = ParseAccount("c@example.org")
	require.Error(t, err)
	_, err = ParseAccount("c@example.org:secret1:mayor")
	require.Error(t, err)
}

func TestRun_SeedsAccountsAndEvents(t *testing.T) {
	dir := devauth.NewDirectory(devauth.Config{HashCost: bcrypt.MinCost})
	records := devauth.NewRecords()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seeds := Seeds{
		Directory: dir,
		Records:   records,
		Accounts:  []string{"citizen@example.org:secret1", "admin@example.org:secret2:admin"},
		Clock:     func() time.Time { return now },
	}
	require.NoError(t, Run(context.Background(), seeds, nil))

	sess, err := dir.Issue("admin@example.org", "secret2")
	require.NoError(t, err)

	var events []model.Event
	require.NoError(t, records.Query(context.Background(), ports.CollectionEvents,
		ports.Where("created_by", sess.UserID()), ports.Order{Column: "event_date"}, &events))
	require.Len(t, events, 2)
	assert.Equal(t, "2024-05-08", events[0].EventDate)

	// Re-running is idempotent for accounts.
	seeds.Records = nil
	require.NoError(t, Run(context.Background(), seeds, nil))
}

func TestRun_CountsFailures(t *testing.T) {
	dir := devauth.NewDirectory(devauth.Config{HashCost: bcrypt.MinCost})
	err := Run(context.Background(), Seeds{Directory: dir, Accounts: []string{"bad-entry", "weak@example.org:abc"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 item(s) failed")
}
