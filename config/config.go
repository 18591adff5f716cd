package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config carries every setting the service needs, loaded once at startup.
// The legacy deployment kept these in a key/value settings table; here each
// key is a typed field and Validate enumerates what is required.
type Config struct {
	DBURL      string `mapstructure:"DB_URL"`
	ListenAddr string `mapstructure:"LISTEN_ADDR"`

	TonConfigURL string `mapstructure:"TON_CONFIG_URL"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `mapstructure:"TELEGRAM_CHAT_ID"`

	// Harvest policy.
	MiningCooldown int64   `mapstructure:"MINING_COOLDOWN"`  // seconds
	HarvestFee     float64 `mapstructure:"HARVEST_FEE"`      // flat fee per settlement
	InterSendDelay int64   `mapstructure:"INTER_SEND_DELAY"` // seconds between chained sends
	HarvestCutoff  string  `mapstructure:"HARVEST_CUTOFF"`   // YYYY-MM-DD, reject older last_harvest

	// Shared hot wallets.
	RewardWalletAddress string `mapstructure:"REWARD_WALLET_ADDRESS"`
	RewardWalletSeed    string `mapstructure:"REWARD_WALLET_SEED"`
	FeeWalletAddress    string `mapstructure:"FEE_WALLET_ADDRESS"`
	FeeWalletSeed       string `mapstructure:"FEE_WALLET_SEED"`

	cutoffTime time.Time
}

func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	viper.AddConfigPath(filepath.Dir(absPath))
	viper.SetConfigName(filepath.Base(absPath))
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("LISTEN_ADDR", ":8080")
	viper.SetDefault("MINING_COOLDOWN", 3600)
	viper.SetDefault("INTER_SEND_DELAY", 1)
	viper.SetDefault("HARVEST_CUTOFF", "2025-03-18")

	if err := viper.ReadInConfig(); err != nil {
		return config, fmt.Errorf("failed to read config: %w", err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// Validate checks every required key and parses derived values.
func (c *Config) Validate() error {
	required := map[string]string{
		"DB_URL":                c.DBURL,
		"TON_CONFIG_URL":        c.TonConfigURL,
		"REWARD_WALLET_ADDRESS": c.RewardWalletAddress,
		"REWARD_WALLET_SEED":    c.RewardWalletSeed,
		"FEE_WALLET_ADDRESS":    c.FeeWalletAddress,
		"FEE_WALLET_SEED":       c.FeeWalletSeed,
	}
	for key, value := range required {
		if value == "" {
			return fmt.Errorf("missing required config key %s", key)
		}
	}

	if c.MiningCooldown < 0 {
		return fmt.Errorf("MINING_COOLDOWN must not be negative")
	}
	if c.HarvestFee < 0 {
		return fmt.Errorf("HARVEST_FEE must not be negative")
	}
	if c.InterSendDelay < 1 {
		return fmt.Errorf("INTER_SEND_DELAY must be at least 1 second")
	}

	cutoff, err := time.Parse("2006-01-02", c.HarvestCutoff)
	if err != nil {
		return fmt.Errorf("invalid HARVEST_CUTOFF %q: %w", c.HarvestCutoff, err)
	}
	c.cutoffTime = cutoff

	return nil
}

// CutoffTime is the data-migration cutoff: accounts whose last_harvest
// predates it are treated as corrupted legacy state.
func (c *Config) CutoffTime() time.Time {
	if c.cutoffTime.IsZero() {
		c.cutoffTime, _ = time.Parse("2006-01-02", c.HarvestCutoff)
	}
	return c.cutoffTime
}
