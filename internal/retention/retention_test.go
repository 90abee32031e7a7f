package retention

import (
	"context"
	"testing"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/store/memory"
	"github.com/stretchr/testify/require"
)

func TestPurgeStaleBridgeTokens(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := &store.User{Email: "dev@example.com"}
	require.NoError(t, s.CreateUser(ctx, u))

	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tokens := []*store.BridgeToken{
		{Name: "revoked long ago", RevokedAt: &old},
		{Name: "expired long ago", ExpiresAt: &old},
		{Name: "revoked recently", RevokedAt: &recent},
		{Name: "live", ExpiresAt: &future},
	}
	for i, tok := range tokens {
		tok.UserID = u.ID
		tok.TokenHash = []byte{byte(i)}
		require.NoError(t, s.CreateBridgeToken(ctx, tok))
	}

	n, err := PurgeStaleBridgeTokens(ctx, s, now, 30)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	left, err := s.ListBridgeTokensByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, left, 2)

	require.NoError(t, RunRetentionJob(ctx, s, 30))
}

func TestPurgeResearchTombstones(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := &store.User{Email: "dev@example.com"}
	require.NoError(t, s.CreateUser(ctx, u))

	job := &store.ResearchJob{UserID: u.ID, Title: "t", Query: "q", Status: store.ResearchActive}
	require.NoError(t, s.CreateResearchJob(ctx, job))
	require.NoError(t, s.DeleteResearchJob(ctx, job.ID))

	now := time.Now().UTC()
	n, err := PurgeResearchTombstones(ctx, s, now, 30)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = PurgeResearchTombstones(ctx, s, now.Add(31*24*time.Hour), 30)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	ids, err := s.ListDeletedResearchJobs(ctx, u.ID, time.Time{})
	require.NoError(t, err)
	require.Empty(t, ids)
}
