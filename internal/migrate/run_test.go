package migrate_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swachh/portal-core/internal/migrate"
	"github.com/swachh/portal-core/internal/testutil"
)

func TestMigrationsAreOrdered(t *testing.T) {
	ms, err := migrate.Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, "001_portal_records", ms[0].Version)
	for i := 1; i < len(ms); i++ {
		assert.Less(t, ms[i-1].Version, ms[i].Version)
	}
}

func TestRunIsIdempotentAndReported(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		// WithAutoDB has already migrated the schema; a second run is a no-op.
		require.NoError(t, migrate.Run(ctx, db))

		states, err := migrate.Status(ctx, db)
		require.NoError(t, err)
		require.NotEmpty(t, states)
		for _, st := range states {
			assert.False(t, st.Pending(), "migration %s should be applied", st.Version)
		}
	})
}
