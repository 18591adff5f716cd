package models

import "time"

// Harvest settlement statuses.
const (
	HarvestStatusHarvesting = "HARVESTING"
	HarvestStatusCompleted  = "COMPLETED"
	HarvestStatusFailed     = "FAILED"
)

// Package statuses.
const (
	PackageStatusActive   = "active"
	PackageStatusInactive = "inactive"
)

type User struct {
	ID             uint64 `gorm:"primaryKey" json:"id"`
	Username       string `gorm:"uniqueIndex" json:"username"`
	AccessToken    string `gorm:"uniqueIndex" json:"-"`
	UserLevel      int    `gorm:"default:0" json:"user_level"`
	UplineCode     string `gorm:"index" json:"upline_code"`
	MyReferralCode string `gorm:"uniqueIndex" json:"my_referral_code"`

	// Referral commissions accumulate here and are consumed by this
	// user's own next harvest, not paid on-chain immediately.
	MatchingBonus float64    `gorm:"default:0" json:"matching_bonus"`
	LastHarvest   *time.Time `json:"last_harvest"`
	IsBlock       bool       `gorm:"default:false" json:"is_block"`

	Wallet   *Wallet   `gorm:"foreignKey:UserID" json:"wallet,omitempty"`
	Packages []Package `gorm:"foreignKey:UserID" json:"packages,omitempty"`
}

type Wallet struct {
	ID      uint64 `gorm:"primaryKey" json:"id"`
	UserID  uint64 `gorm:"uniqueIndex" json:"user_id"`
	Address string `gorm:"unique" json:"address"`

	// Off-chain mirror of the reward-token balance; kept in sync by
	// atomic increments, never treated as the on-chain source of truth.
	TokenBalance float64 `gorm:"default:0" json:"token_balance"`
}

// Package is a purchased mining capacity unit with a lifetime payout cap.
// Invariant: TotalMined <= MaxOut. A package at its cap is excluded from
// allocation but its status is left untouched.
type Package struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	UserID      uint64    `gorm:"index" json:"user_id"`
	Name        string    `json:"name"`
	MiningPower float64   `json:"mining_power"` // units per second
	TotalMined  float64   `gorm:"default:0" json:"total_mined"`
	MaxOut      float64   `json:"max_out"`
	Status      string    `gorm:"default:active" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p *Package) Remaining() float64 {
	if p.TotalMined >= p.MaxOut {
		return 0
	}
	return p.MaxOut - p.TotalMined
}

// Harvest is one settlement attempt. The unique (user_id, request_group)
// index is the admission gate's dedup constraint: one attempt per user per
// hour bucket, enforced by the database rather than an in-process lock.
type Harvest struct {
	ID           uint64 `gorm:"primaryKey" json:"id"`
	UserID       uint64 `gorm:"uniqueIndex:idx_user_request_group" json:"user_id"`
	Username     string `json:"username"`
	RequestGroup int64  `gorm:"uniqueIndex:idx_user_request_group" json:"request_group"`
	Status       string `gorm:"default:HARVESTING" json:"status"`

	// ElapsedSeconds is server-computed and authoritative; ClientElapsed
	// is what the caller claimed, recorded for drift diagnostics only.
	ElapsedSeconds int64 `json:"elapsed_seconds"`
	ClientElapsed  int64 `json:"client_elapsed"`

	HarvestAmount     float64 `json:"harvest_amount"`
	FeeAmount         float64 `json:"fee_amount"`
	MatchingBonusUsed float64 `json:"matching_bonus_used"`
	TxHash            string  `json:"tx_hash"`
	FeeTxHash         string  `json:"fee_tx_hash"`
	RetryCount        int     `gorm:"default:0" json:"retry_count"`
	FailReason        string  `json:"fail_reason"`
	Data              string  `gorm:"type:jsonb" json:"data"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// MiningEntry is an immutable per-package payout record, written only after
// the on-chain principal transfer confirmed.
type MiningEntry struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UserID    uint64    `gorm:"index" json:"user_id"`
	PackageID *uint64   `json:"package_id"` // nil for the matching-bonus entry
	Name      string    `json:"name"`
	Amount    float64   `json:"amount"`
	UserLevel int       `json:"user_level"`
	TxHash    string    `json:"tx_hash"`
	FeeAmount float64   `json:"fee_amount"`
	FeeTxHash string    `json:"fee_tx_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// Commission is an immutable per-ancestor referral payout record.
type Commission struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	UserID      uint64    `gorm:"index" json:"user_id"` // the ancestor credited
	Token       string    `gorm:"default:MGG" json:"token"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	TotalAmount float64   `json:"total_amount"` // the profit the rate applied to
	BonusRate   float64   `json:"bonus_rate"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
