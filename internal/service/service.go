package service

import (
	"context"
	"time"

	"github.com/yishin/mimbonode/config"
	"github.com/yishin/mimbonode/internal/models"
	"github.com/yishin/mimbonode/utils"
	"gorm.io/gorm"
)

// Service is the harvest settlement engine. One Harvest call runs the whole
// pipeline: admission, yield allocation, the on-chain transfer saga, ledger
// recording and the upline bonus cascade.
type Service struct {
	repo     Repository
	transfer Transferer
	notifier Notifier
	cfg      *config.Config
	logger   *utils.Logger

	// Injectable for tests.
	sleep Sleeper
	now   func() time.Time
}

type Repository interface {
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	SetLastHarvest(ctx context.Context, userID uint64, t time.Time) error
	IncrementMatchingBonus(ctx context.Context, userID uint64, amount float64) error
	DecrementMatchingBonus(ctx context.Context, userID uint64, amount float64) error

	GetWalletByUserID(ctx context.Context, userID uint64) (*models.Wallet, error)
	IncrementTokenBalance(ctx context.Context, userID uint64, amount float64) error

	GetActivePackages(ctx context.Context, userID uint64) ([]models.Package, error)
	UpdatePackageMined(ctx context.Context, tx *gorm.DB, packageID uint64, totalMined float64) error

	CreateHarvest(ctx context.Context, harvest *models.Harvest) error
	GetFailedHarvestInGroup(ctx context.Context, userID uint64, requestGroup int64) (*models.Harvest, error)
	ReopenHarvest(ctx context.Context, id uint64, elapsedSeconds, clientElapsed int64) error
	CompleteHarvest(ctx context.Context, tx *gorm.DB, harvest *models.Harvest) error
	FailHarvest(ctx context.Context, id uint64, reason string) error
	ListHarvests(ctx context.Context, userID uint64, limit int) ([]models.Harvest, error)

	CreateMiningEntry(ctx context.Context, tx *gorm.DB, entry *models.MiningEntry) error
	CreateCommission(ctx context.Context, commission *models.Commission) error

	BeginTransaction(ctx context.Context) (*gorm.DB, error)
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)
}

// Transferer moves reward tokens on-chain. Signing, fee estimation and
// sequencing live behind this interface, not in the engine.
type Transferer interface {
	Send(ctx context.Context, fromSeed, toAddress string, amount float64) (txHash string, err error)
}

// Notifier is a best-effort operator channel; implementations swallow errors.
type Notifier interface {
	Notify(message string)
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

func NewService(repo Repository, transfer Transferer, notifier Notifier, cfg *config.Config, logger *utils.Logger) *Service {
	return &Service{
		repo:     repo,
		transfer: transfer,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		sleep:    realSleeper{},
		now:      time.Now,
	}
}

func (s *Service) notifyAsync(message string) {
	if s.notifier == nil {
		return
	}
	go s.notifier.Notify(message)
}

func (s *Service) RecentHarvests(ctx context.Context, userID uint64, limit int) ([]models.Harvest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListHarvests(ctx, userID, limit)
}
