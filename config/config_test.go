package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		DBURL:               "postgres://localhost/harvest",
		TonConfigURL:        "https://example.com/global.config.json",
		MiningCooldown:      3600,
		HarvestFee:          10,
		InterSendDelay:      1,
		HarvestCutoff:       "2025-03-18",
		RewardWalletAddress: "reward-addr",
		RewardWalletSeed:    "reward seed words",
		FeeWalletAddress:    "fee-addr",
		FeeWalletSeed:       "fee seed words",
	}
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Date(2025, 3, 18, 0, 0, 0, 0, time.UTC), cfg.CutoffTime())
}

func TestValidateMissingRequiredKey(t *testing.T) {
	cfg := validConfig()
	cfg.RewardWalletSeed = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REWARD_WALLET_SEED")
}

func TestValidateBadCutoff(t *testing.T) {
	cfg := validConfig()
	cfg.HarvestCutoff = "18-03-2025"

	assert.Error(t, cfg.Validate())
}

func TestValidateInterSendDelayFloor(t *testing.T) {
	cfg := validConfig()
	cfg.InterSendDelay = 0

	assert.Error(t, cfg.Validate())
}
