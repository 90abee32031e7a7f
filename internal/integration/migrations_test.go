package integration

import (
	"context"
	"testing"

	"github.com/aliuyar1234/ctlplane/internal/db"
	"github.com/aliuyar1234/ctlplane/internal/plans"
	"github.com/stretchr/testify/require"
)

func TestIntegration_MigrationsApplyToFreshPostgres(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	for _, table := range []string{"users", "profiles", "teams", "team_members", "licenses", "plans", "platform_settings", "admin_audit_logs", "bridge_tokens", "research_jobs", "research_findings", "research_job_deletions"} {
		var count int
		err := pool.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		`, table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, table)
	}

	// A second run is a no-op.
	require.NoError(t, db.RunMigrations(ctx, pool))
}

func TestIntegration_SeededPlansMatchCatalog(t *testing.T) {
	s := newTestStore(t)

	got, err := s.ListPlans(context.Background())
	require.NoError(t, err)

	want := plans.DefaultPlans()
	require.Len(t, got, len(want))
	byID := make(map[string][]string, len(got))
	for _, p := range got {
		byID[p.ID] = p.Features
	}
	for _, p := range want {
		require.ElementsMatch(t, p.Features, byID[p.ID], p.ID)
	}
}
