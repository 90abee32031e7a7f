// Package retention removes bridge tokens that can no longer authenticate and
// research tombstones older than the sync window.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Purger is the store surface the job needs.
type Purger interface {
	DeleteStaleBridgeTokens(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteResearchTombstones(ctx context.Context, cutoff time.Time) (int64, error)
}

func cutoff(now time.Time, retentionDays int) time.Time {
	return now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
}

// PurgeStaleBridgeTokens deletes tokens revoked or expired more than
// retentionDays before now. Safe to run repeatedly.
func PurgeStaleBridgeTokens(ctx context.Context, s Purger, now time.Time, retentionDays int) (int64, error) {
	n, err := s.DeleteStaleBridgeTokens(ctx, cutoff(now, retentionDays))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale bridge tokens: %w", err)
	}
	return n, nil
}

// PurgeResearchTombstones deletes job deletion records older than
// retentionDays. A client that has not synced within that window should do a
// full sync instead of an incremental one.
func PurgeResearchTombstones(ctx context.Context, s Purger, now time.Time, retentionDays int) (int64, error) {
	n, err := s.DeleteResearchTombstones(ctx, cutoff(now, retentionDays))
	if err != nil {
		return 0, fmt.Errorf("failed to delete research tombstones: %w", err)
	}
	return n, nil
}

// RunRetentionJob is the entry point called by the cron scheduler.
func RunRetentionJob(ctx context.Context, s Purger, retentionDays int) error {
	log.Info().Int("token_retention_days", retentionDays).Msg("Starting retention job")
	start := time.Now()
	now := start.UTC()

	tokens, err := PurgeStaleBridgeTokens(ctx, s, now, retentionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge stale bridge tokens")
		return fmt.Errorf("bridge token cleanup failed: %w", err)
	}

	tombstones, err := PurgeResearchTombstones(ctx, s, now, retentionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge research tombstones")
		return fmt.Errorf("research tombstone cleanup failed: %w", err)
	}

	log.Info().
		Int64("bridge_tokens_deleted", tokens).
		Int64("research_tombstones_deleted", tombstones).
		Dur("duration", time.Since(start)).
		Msg("Retention job completed")
	return nil
}
