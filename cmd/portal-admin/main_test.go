package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swachh/portal-core/config"
	redisadapter "github.com/swachh/portal-core/internal/adapters/redis"
	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/migrate"
)

func TestPrintUsageListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	assert.Contains(t, out, "Usage: portal-admin <command> [flags]")
	list := strings.Index(out, "list-tokens")
	migrate := strings.Index(out, "migrate")
	revoke := strings.Index(out, "revoke-token")
	assert.True(t, list < migrate && migrate < revoke, "commands should be sorted:\n%s", out)
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	assert.False(t, opts.Status)

	opts, err = parseMigrateFlags([]string{"--status"})
	require.NoError(t, err)
	assert.True(t, opts.Status)

	_, err = parseMigrateFlags([]string{"--timeout", "0s"})
	require.Error(t, err)
}

func TestPrintMigrationStatus(t *testing.T) {
	applied := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, printMigrationStatus(&buf, []migrate.State{
		{Version: "001_portal_records", AppliedAt: &applied},
		{Version: "002_next"},
	}))
	out := buf.String()
	assert.Contains(t, out, "2026-10-01T08:00:00Z")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "2 migration(s), 1 pending")
}

func TestParseRevokeFlagsRequiresClientID(t *testing.T) {
	_, err := parseRevokeFlags([]string{"--yes"})
	require.EqualError(t, err, "--client-id is required")

	opts, err := parseRevokeFlags([]string{"--client-id", " abc ", "--dry-run"})
	require.NoError(t, err)
	assert.Equal(t, "abc", opts.ClientID)
	assert.True(t, opts.DryRun)
}

func TestRunRevokeTokenDryRunDoesNotConnect(t *testing.T) {
	var out bytes.Buffer
	cmdCtx := &commandContext{Ctx: t.Context(), Stdout: &out}

	require.NoError(t, runRevokeToken(cmdCtx, []string{"--client-id", "abc", "--dry-run"}))
	assert.Equal(t, "[dry-run] would delete token handle for client abc (broadcast: true)\n", out.String())
}

func TestPrintHandles(t *testing.T) {
	expires := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	handles := []redisadapter.StoredHandle{
		{
			ClientID: "client-1",
			Session: domainauth.Session{
				Identity:  &domainauth.Identity{UserID: "u1", Email: "asha@example.com", Role: domainauth.RoleEmployee},
				ExpiresAt: expires,
			},
			TTL: 90 * time.Second,
		},
		{ClientID: "client-2", TTL: time.Hour},
	}

	var buf bytes.Buffer
	require.NoError(t, printHandles(&buf, handles))
	out := buf.String()
	assert.Contains(t, out, "asha@example.com")
	assert.Contains(t, out, "2024-05-01T12:00:00Z")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "2 handle(s)")

	buf.Reset()
	require.NoError(t, printHandles(&buf, nil))
	assert.Equal(t, "No token handles found.\n", buf.String())
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, confirm(strings.NewReader("y\n"), &out, "Proceed?"))
	assert.Equal(t, "Proceed? [y/N]: ", out.String())

	require.EqualError(t, confirm(strings.NewReader("\n"), &out, "Proceed?"), "aborted by user")
	require.EqualError(t, confirm(strings.NewReader(""), &out, "Proceed?"), "aborted by user")
}

func TestHasRedisConfig(t *testing.T) {
	assert.False(t, hasRedisConfig(nil))
	assert.True(t, hasRedisConfig(&config.RedisConfig{URI: "localhost:6379"}))
	assert.False(t, hasRedisConfig(&config.RedisConfig{UseSentinel: true}))
	assert.True(t, hasRedisConfig(&config.RedisConfig{UseCluster: true, ClusterNodes: []string{"a:1"}}))
}
