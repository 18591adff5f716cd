package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yishin/mimbonode/internal/models"
)

type HarvestResult struct {
	HarvestAmount float64
	HarvestTime   time.Time
	FeeAmount     float64
}

// Harvest settles all accrued yield for one account: admission, allocation,
// on-chain disbursement, ledger recording, then the upline bonus cascade.
//
// The commit point is the principal transfer. Ledger writes after it are
// best-effort: a failure there is logged, never rolled back, and never turns
// a paid settlement into a failed one.
func (s *Service) Harvest(ctx context.Context, user *models.User, clientElapsed int64) (*HarvestResult, error) {
	// The caller's snapshot may predate a concurrent cascade credit; the
	// bonus pool consumed below must be the current one.
	fresh, err := s.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if fresh != nil {
		user = fresh
	}

	if user.Wallet == nil {
		wallet, err := s.repo.GetWalletByUserID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load wallet: %w", err)
		}
		user.Wallet = wallet
	}
	if user.Wallet == nil || user.Wallet.Address == "" {
		return nil, ErrNoWallet
	}

	packages, err := s.repo.GetActivePackages(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}
	if len(packages) == 0 {
		return nil, ErrNoCapacity
	}

	adm, err := s.admit(ctx, user, clientElapsed, packages)
	if err != nil {
		return nil, err
	}

	bonusPool := user.MatchingBonus
	alloc, err := allocate(packages, adm.elapsed, adm.refTime, adm.now, bonusPool)
	if err != nil {
		s.failHarvest(ctx, adm.harvest.ID, err.Error())
		return nil, err
	}

	fee := s.cfg.HarvestFee
	// Equality declines too: a settlement must leave a positive principal.
	if alloc.Total <= fee {
		policyErr := &PolicyError{Reason: PolicyInsufficientYield}
		s.failHarvest(ctx, adm.harvest.ID, policyErr.Reason)
		return nil, policyErr
	}

	reward := HotWallet{Address: s.cfg.RewardWalletAddress, Seed: s.cfg.RewardWalletSeed}
	feeWallet := HotWallet{Address: s.cfg.FeeWalletAddress, Seed: s.cfg.FeeWalletSeed}

	result := s.disburse(ctx, alloc.Total, fee, reward, feeWallet, user.Wallet.Address)
	if result.Reason != "" {
		s.failHarvest(ctx, adm.harvest.ID, result.Reason)
		if result.ManualIntervention {
			s.notifyAsync(fmt.Sprintf(
				"🛑 harvest %d (user %s): principal failed and fee reversal failed, manual recovery required. fee_tx=%s",
				adm.harvest.ID, user.Username, result.FeeTxHash))
		}
		return nil, &TransferError{Reason: result.Reason, Err: result.Err}
	}

	profit := alloc.Total - fee

	// Tokens have moved; everything below is bookkeeping.
	s.recordSettlement(ctx, user, adm, alloc, bonusPool, profit, fee, result)

	s.notifyAsync(fmt.Sprintf("✅ harvest: %s mined %f (fee %f)", user.Username, profit, fee))

	s.cascade(ctx, user, profit)

	return &HarvestResult{
		HarvestAmount: profit,
		HarvestTime:   adm.now,
		FeeAmount:     fee,
	}, nil
}

// recordSettlement persists the outcome of a disbursed settlement: package
// counters, mining entries, the account's harvest clock and bonus pool, and
// the settlement record itself. Failures are logged only.
func (s *Service) recordSettlement(ctx context.Context, user *models.User, adm *admission, alloc *Allocation, bonusPool, profit, fee float64, result SagaResult) {
	// Ledger writes ride one transaction when possible; if that cannot be
	// opened they still happen individually rather than not at all.
	tx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		s.logger.Errorf("settlement %d: failed to begin ledger transaction: %v", adm.harvest.ID, err)
		tx = nil
	}

	ok := true
	first := true
	for i := range alloc.PerPackage {
		pa := &alloc.PerPackage[i]
		if !pa.Changed {
			continue
		}

		if err := s.repo.UpdatePackageMined(ctx, tx, pa.PackageID, pa.NewTotal); err != nil {
			s.logger.Errorf("settlement %d: %v", adm.harvest.ID, err)
			ok = false
			break
		}

		if pa.Mined <= 0 {
			continue
		}

		entry := &models.MiningEntry{
			UserID:    user.ID,
			PackageID: &pa.PackageID,
			Name:      pa.Name,
			Amount:    pa.Mined,
			UserLevel: user.UserLevel,
			TxHash:    result.TxHash,
		}
		// The flat fee is booked once, against the first paying package.
		if first {
			entry.FeeAmount = fee
			entry.FeeTxHash = result.FeeTxHash
			first = false
		}
		if err := s.repo.CreateMiningEntry(ctx, tx, entry); err != nil {
			s.logger.Errorf("settlement %d: %v", adm.harvest.ID, err)
			ok = false
			break
		}
	}

	if ok && alloc.UsedBonus > 0 {
		entry := &models.MiningEntry{
			UserID:    user.ID,
			Name:      "Matching Bonus",
			Amount:    alloc.UsedBonus,
			UserLevel: user.UserLevel,
			TxHash:    result.TxHash,
		}
		if err := s.repo.CreateMiningEntry(ctx, tx, entry); err != nil {
			s.logger.Errorf("settlement %d: %v", adm.harvest.ID, err)
			ok = false
		}
	}

	if tx != nil {
		if ok {
			if err := s.repo.Commit(tx); err != nil {
				s.logger.Errorf("settlement %d: failed to commit ledger writes: %v", adm.harvest.ID, err)
			}
		} else {
			s.repo.Rollback(tx)
		}
	}

	if err := s.repo.SetLastHarvest(ctx, user.ID, adm.now); err != nil {
		s.logger.Errorf("settlement %d: %v", adm.harvest.ID, err)
	}

	// The whole snapshot is consumed: what the allocator could not place
	// is forfeited, not rolled over.
	if bonusPool > 0 {
		if err := s.repo.DecrementMatchingBonus(ctx, user.ID, bonusPool); err != nil {
			s.logger.Errorf("settlement %d: %v", adm.harvest.ID, err)
		}
	}

	// Off-chain mirror of what just landed in the user's wallet.
	if err := s.repo.IncrementTokenBalance(ctx, user.ID, profit); err != nil {
		s.logger.Errorf("settlement %d: %v", adm.harvest.ID, err)
	}

	harvest := adm.harvest
	harvest.HarvestAmount = profit
	harvest.FeeAmount = fee
	harvest.MatchingBonusUsed = alloc.UsedBonus
	harvest.TxHash = result.TxHash
	harvest.FeeTxHash = result.FeeTxHash
	harvest.Data = settlementAudit(adm, alloc, bonusPool)

	if err := s.repo.CompleteHarvest(ctx, nil, harvest); err != nil {
		s.logger.Errorf("settlement %d: %v", adm.harvest.ID, err)
	}
}

func (s *Service) failHarvest(ctx context.Context, id uint64, reason string) {
	if err := s.repo.FailHarvest(ctx, id, reason); err != nil {
		s.logger.Errorf("failed to mark harvest %d failed: %v", id, err)
	}
}

func settlementAudit(adm *admission, alloc *Allocation, bonusPool float64) string {
	type packageAudit struct {
		ID         uint64  `json:"id"`
		Name       string  `json:"name"`
		Mined      float64 `json:"mined"`
		TotalMined float64 `json:"total_mined"`
	}

	packages := make([]packageAudit, 0, len(alloc.PerPackage))
	for _, pa := range alloc.PerPackage {
		packages = append(packages, packageAudit{
			ID:         pa.PackageID,
			Name:       pa.Name,
			Mined:      pa.Mined,
			TotalMined: pa.NewTotal,
		})
	}

	audit := map[string]interface{}{
		"seconds_diff":   adm.elapsed,
		"client_elapsed": adm.harvest.ClientElapsed,
		"time_yield":     alloc.TimeYield,
		"total_mined":    alloc.Total,
		"packages":       packages,
		"matching_bonus": map[string]float64{
			"start_amount":  bonusPool,
			"used_amount":   alloc.UsedBonus,
			"remain_amount": bonusPool - alloc.UsedBonus,
		},
	}

	data, err := json.Marshal(audit)
	if err != nil {
		return "{}"
	}
	return string(data)
}
