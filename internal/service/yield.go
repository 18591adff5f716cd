package service

import (
	"math"
	"time"

	"github.com/yishin/mimbonode/internal/models"
	"github.com/yishin/mimbonode/utils"
)

const amountDecimals = 6

// PackageAllocation is one package's share of a settlement. Mined is the
// time-yield portion only (the matching-bonus portion is recorded as its own
// synthetic ledger entry, not attributed to a package).
type PackageAllocation struct {
	PackageID uint64
	Name      string
	Mined     float64
	NewTotal  float64
	Changed   bool
}

type Allocation struct {
	PerPackage []PackageAllocation
	TimeYield  float64
	UsedBonus  float64
	Total      float64 // TimeYield + UsedBonus
}

// allocate runs the dual-cap allocator: a time-yield pass followed by a
// matching-bonus pass over the same package order and the capacities the
// first pass left behind. Bonus not placeable within remaining capacity is
// forfeited, not rolled over.
//
// Packages must arrive sorted by id; both passes depend on that order.
func allocate(packages []models.Package, elapsedSeconds int64, refTime, now time.Time, bonusPool float64) (*Allocation, error) {
	if len(packages) == 0 {
		return nil, ErrNoCapacity
	}

	alloc := &Allocation{
		PerPackage: make([]PackageAllocation, len(packages)),
	}

	remaining := make([]float64, len(packages))
	pool := 0.0
	for i := range packages {
		pkg := &packages[i]
		alloc.PerPackage[i] = PackageAllocation{
			PackageID: pkg.ID,
			Name:      pkg.Name,
			NewTotal:  pkg.TotalMined,
		}
		remaining[i] = pkg.Remaining()
		if remaining[i] <= 0 {
			continue
		}

		// A package bought after the last settlement has only been
		// mining since its own creation.
		effective := float64(elapsedSeconds)
		if pkg.CreatedAt.After(refTime) {
			effective = now.Sub(pkg.CreatedAt).Seconds()
			if effective < 0 {
				effective = 0
			}
		}

		potential := pkg.MiningPower * effective
		pool += math.Min(potential, remaining[i])
	}

	if pool+bonusPool <= 0 {
		return nil, &PolicyError{Reason: PolicyZeroYield}
	}

	// Pass 1: time yield, capacity-capped, in package order.
	for i := range packages {
		if pool <= 0 {
			break
		}
		if remaining[i] <= 0 {
			continue
		}

		amount := utils.RoundTo(math.Min(pool, remaining[i]), amountDecimals)
		pool -= amount
		remaining[i] -= amount

		pa := &alloc.PerPackage[i]
		pa.Mined = amount
		pa.NewTotal += amount
		pa.Changed = true
		alloc.TimeYield += amount
	}

	// Pass 2: matching bonus against what pass 1 left.
	bonus := bonusPool
	for i := range packages {
		if bonus <= 0 {
			break
		}
		if remaining[i] <= 0 {
			continue
		}

		amount := utils.RoundTo(math.Min(bonus, remaining[i]), amountDecimals)
		bonus -= amount
		remaining[i] -= amount

		pa := &alloc.PerPackage[i]
		pa.NewTotal += amount
		pa.Changed = true
		alloc.UsedBonus += amount
	}

	alloc.TimeYield = utils.RoundTo(alloc.TimeYield, amountDecimals)
	alloc.UsedBonus = utils.RoundTo(alloc.UsedBonus, amountDecimals)
	alloc.Total = utils.RoundTo(alloc.TimeYield+alloc.UsedBonus, amountDecimals)

	if alloc.Total <= 0 {
		return nil, &PolicyError{Reason: PolicyZeroYield}
	}

	return alloc, nil
}
