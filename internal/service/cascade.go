package service

import (
	"context"
	"fmt"
	"math"

	"github.com/yishin/mimbonode/internal/models"
	"github.com/yishin/mimbonode/utils"
)

// maxTotalRate is the global ceiling on matching-bonus rates applied across
// one cascade, in percent.
const maxTotalRate = 35.0

const cascadeTiers = 6

// matchingBonusRates is the per-tier rate table for a harvester at the given
// level. A higher starting level concentrates the payout on its own tier.
func matchingBonusRates(level int) [cascadeTiers]float64 {
	switch level {
	case 0:
		return [cascadeTiers]float64{10, 5, 5, 5, 5, 5}
	case 1:
		return [cascadeTiers]float64{0, 15, 5, 5, 5, 5}
	case 2:
		return [cascadeTiers]float64{0, 0, 20, 5, 5, 5}
	case 3:
		return [cascadeTiers]float64{0, 0, 0, 25, 5, 5}
	case 4:
		return [cascadeTiers]float64{0, 0, 0, 0, 30, 5}
	case 5:
		return [cascadeTiers]float64{0, 0, 0, 0, 0, 35}
	}
	return [cascadeTiers]float64{}
}

// cascade walks the sponsorship chain upward and credits tier-differential
// commissions on the harvested profit. Runs only after the transfer saga is
// done; per-ancestor failures are logged and never revert the settlement.
// Returns the number of ancestors credited.
func (s *Service) cascade(ctx context.Context, user *models.User, profit float64) int {
	rates := matchingBonusRates(user.UserLevel)
	var applied [cascadeTiers]float64
	totalApplied := 0.0
	credited := 0

	levelCount := user.UserLevel
	uplineCode := user.UplineCode

	// The sponsorship graph is assumed to be a tree, but a corrupted or
	// adversarial chain could loop; the visited set bounds the walk even
	// then.
	visited := map[string]bool{user.MyReferralCode: true}

	for uplineCode != "" && levelCount < cascadeTiers {
		if visited[uplineCode] {
			s.logger.Errorf("sponsorship cycle detected at code %s for user %d", uplineCode, user.ID)
			break
		}
		visited[uplineCode] = true

		upline, err := s.repo.GetUserByReferralCode(ctx, uplineCode)
		if err != nil {
			s.logger.Errorf("failed to fetch upline %s: %v", uplineCode, err)
			break
		}
		if upline == nil {
			break
		}

		// An ancestor must outrank the cursor to collect; otherwise it
		// is skipped and the tier passes by unpaid.
		if upline.UserLevel <= levelCount {
			s.logger.Debugf("skipping upline %s: level %d not above tier %d",
				upline.Username, upline.UserLevel, levelCount)
			uplineCode = upline.UplineCode
			levelCount++
			continue
		}

		rate := 0.0
		for tier := levelCount; tier < upline.UserLevel && tier < cascadeTiers; tier++ {
			available := rates[tier] - applied[tier]
			if available <= 0 {
				continue
			}

			toApply := math.Min(available, maxTotalRate-totalApplied)
			rate += toApply
			applied[tier] += toApply
			totalApplied += toApply

			if totalApplied >= maxTotalRate {
				break
			}
		}

		if rate > 0 {
			bonus := utils.RoundTo(profit*rate/100, amountDecimals)
			s.logger.Infof("crediting %s: %.2f%% of %f = %f (total applied %.2f%%)",
				upline.Username, rate, profit, bonus, totalApplied)

			if err := s.repo.IncrementMatchingBonus(ctx, upline.ID, bonus); err != nil {
				s.logger.Errorf("failed to credit matching bonus to user %d: %v", upline.ID, err)
			} else {
				credited++
				commission := &models.Commission{
					UserID:      upline.ID,
					Token:       "MGG",
					Type:        "matching bonus",
					Amount:      bonus,
					TotalAmount: profit,
					BonusRate:   rate,
					Message:     fmt.Sprintf("Matching bonus from %s (tier %d)", user.Username, levelCount+1),
				}
				if err := s.repo.CreateCommission(ctx, commission); err != nil {
					s.logger.Errorf("failed to record commission for user %d: %v", upline.ID, err)
				}
			}
		}

		if totalApplied >= maxTotalRate {
			break
		}

		uplineCode = upline.UplineCode
		levelCount++
	}

	s.logger.Infof("cascade for user %d done: %d credited, %.2f%% applied", user.ID, credited, totalApplied)
	return credited
}
