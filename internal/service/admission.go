package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yishin/mimbonode/internal/models"
	"github.com/yishin/mimbonode/internal/repository"
)

// requestGroupSeconds is the dedup bucket width: one settlement attempt per
// user per hour, keyed the same way across all server instances.
const requestGroupSeconds = 3600

// admission is the gate's output: an open HARVESTING record plus the
// server-computed timing the rest of the pipeline must use.
type admission struct {
	harvest *models.Harvest
	now     time.Time
	refTime time.Time // last harvest, or first package creation for new accounts
	elapsed int64     // authoritative elapsed seconds
}

// admit deduplicates concurrent settlement requests per user within the hour
// bucket and reopens a recently FAILED attempt instead of creating a new one.
// The caller's claimed elapsed seconds are recorded for drift diagnostics and
// never enter payout math.
func (s *Service) admit(ctx context.Context, user *models.User, clientElapsed int64, packages []models.Package) (*admission, error) {
	if user.IsBlock {
		return nil, ErrBlocked
	}

	now := s.now()

	refTime := packages[0].CreatedAt
	if user.LastHarvest != nil {
		refTime = *user.LastHarvest
	}

	// Defense against corrupted legacy state from before the data
	// migration: such accounts need manual repair, not a payout.
	if refTime.Before(s.cfg.CutoffTime()) {
		s.logger.Warnf("user %d last_harvest %s predates cutoff", user.ID, refTime)
		return nil, ErrStaleHarvest
	}

	elapsed := int64(now.Sub(refTime).Seconds())
	s.logger.Infof("user %d server seconds: %d, client seconds: %d", user.ID, elapsed, clientElapsed)

	if elapsed < s.cfg.MiningCooldown {
		return nil, &PolicyError{Reason: PolicyCooldown}
	}

	group := now.Unix() / requestGroupSeconds
	harvest := &models.Harvest{
		UserID:         user.ID,
		Username:       user.Username,
		RequestGroup:   group,
		Status:         models.HarvestStatusHarvesting,
		ElapsedSeconds: elapsed,
		ClientElapsed:  clientElapsed,
	}

	err := s.repo.CreateHarvest(ctx, harvest)
	if err == nil {
		return &admission{harvest: harvest, now: now, refTime: refTime, elapsed: elapsed}, nil
	}
	if !errors.Is(err, repository.ErrDuplicateHarvest) {
		return nil, fmt.Errorf("failed to create harvest record: %w", err)
	}

	// A record already exists in this bucket. Only a FAILED one may be
	// reopened; anything else is a duplicate in flight or already paid.
	prior, err := s.repo.GetFailedHarvestInGroup(ctx, user.ID, group)
	if err != nil {
		return nil, fmt.Errorf("failed to check for retryable harvest: %w", err)
	}
	if prior == nil {
		s.logger.Warnf("❕ duplicate harvest request from user %d in group %d", user.ID, group)
		return nil, ErrDuplicate
	}

	if err := s.repo.ReopenHarvest(ctx, prior.ID, elapsed, clientElapsed); err != nil {
		if errors.Is(err, repository.ErrDuplicateHarvest) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to reopen harvest %d: %w", prior.ID, err)
	}

	s.logger.Infof("reopened failed harvest %d for retry (count %d)", prior.ID, prior.RetryCount+1)
	prior.Status = models.HarvestStatusHarvesting
	prior.ElapsedSeconds = elapsed
	prior.ClientElapsed = clientElapsed
	prior.RetryCount++

	return &admission{harvest: prior, now: now, refTime: refTime, elapsed: elapsed}, nil
}
