package service

import (
	"context"
	"fmt"
	"time"

	"github.com/yishin/mimbonode/config"
	"github.com/yishin/mimbonode/internal/models"
	"github.com/yishin/mimbonode/internal/repository"
	"github.com/yishin/mimbonode/utils"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

type fakeRepo struct {
	usersByCode map[string]*models.User
	packages    []models.Package

	harvests          map[uint64]*models.Harvest
	nextHarvestID     uint64
	duplicateOnCreate bool
	failedInGroup     *models.Harvest
	reopenErr         error
	reopened          []uint64

	bonusIncrements map[uint64]float64
	bonusDecrements map[uint64]float64
	incrementErr    error

	wallets         map[uint64]*models.Wallet
	tokenIncrements map[uint64]float64

	packageTotals map[uint64]float64
	entries       []models.MiningEntry
	commissions   []models.Commission

	lastHarvest map[uint64]time.Time
	completed   []*models.Harvest
	failReasons map[uint64]string

	beginErr   error
	committed  bool
	rolledBack bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		usersByCode:     make(map[string]*models.User),
		harvests:        make(map[uint64]*models.Harvest),
		bonusIncrements: make(map[uint64]float64),
		bonusDecrements: make(map[uint64]float64),
		wallets:         make(map[uint64]*models.Wallet),
		tokenIncrements: make(map[uint64]float64),
		packageTotals:   make(map[uint64]float64),
		lastHarvest:     make(map[uint64]time.Time),
		failReasons:     make(map[uint64]string),
	}
}

func (r *fakeRepo) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	return nil, nil
}

func (r *fakeRepo) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.usersByCode[code], nil
}

func (r *fakeRepo) SetLastHarvest(ctx context.Context, userID uint64, t time.Time) error {
	r.lastHarvest[userID] = t
	return nil
}

func (r *fakeRepo) IncrementMatchingBonus(ctx context.Context, userID uint64, amount float64) error {
	if r.incrementErr != nil {
		return r.incrementErr
	}
	r.bonusIncrements[userID] += amount
	return nil
}

func (r *fakeRepo) DecrementMatchingBonus(ctx context.Context, userID uint64, amount float64) error {
	r.bonusDecrements[userID] += amount
	return nil
}

func (r *fakeRepo) GetWalletByUserID(ctx context.Context, userID uint64) (*models.Wallet, error) {
	return r.wallets[userID], nil
}

func (r *fakeRepo) IncrementTokenBalance(ctx context.Context, userID uint64, amount float64) error {
	r.tokenIncrements[userID] += amount
	return nil
}

func (r *fakeRepo) GetActivePackages(ctx context.Context, userID uint64) ([]models.Package, error) {
	return r.packages, nil
}

func (r *fakeRepo) UpdatePackageMined(ctx context.Context, tx *gorm.DB, packageID uint64, totalMined float64) error {
	r.packageTotals[packageID] = totalMined
	return nil
}

func (r *fakeRepo) CreateHarvest(ctx context.Context, harvest *models.Harvest) error {
	if r.duplicateOnCreate {
		return repository.ErrDuplicateHarvest
	}
	r.nextHarvestID++
	harvest.ID = r.nextHarvestID
	r.harvests[harvest.ID] = harvest
	return nil
}

func (r *fakeRepo) GetFailedHarvestInGroup(ctx context.Context, userID uint64, requestGroup int64) (*models.Harvest, error) {
	return r.failedInGroup, nil
}

func (r *fakeRepo) ReopenHarvest(ctx context.Context, id uint64, elapsedSeconds, clientElapsed int64) error {
	if r.reopenErr != nil {
		return r.reopenErr
	}
	r.reopened = append(r.reopened, id)
	return nil
}

func (r *fakeRepo) CompleteHarvest(ctx context.Context, tx *gorm.DB, harvest *models.Harvest) error {
	r.completed = append(r.completed, harvest)
	return nil
}

func (r *fakeRepo) FailHarvest(ctx context.Context, id uint64, reason string) error {
	r.failReasons[id] = reason
	return nil
}

func (r *fakeRepo) ListHarvests(ctx context.Context, userID uint64, limit int) ([]models.Harvest, error) {
	out := make([]models.Harvest, 0, len(r.harvests))
	for _, h := range r.harvests {
		out = append(out, *h)
	}
	return out, nil
}

func (r *fakeRepo) CreateMiningEntry(ctx context.Context, tx *gorm.DB, entry *models.MiningEntry) error {
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeRepo) CreateCommission(ctx context.Context, commission *models.Commission) error {
	r.commissions = append(r.commissions, *commission)
	return nil
}

func (r *fakeRepo) BeginTransaction(ctx context.Context) (*gorm.DB, error) {
	if r.beginErr != nil {
		return nil, r.beginErr
	}
	return &gorm.DB{}, nil
}

func (r *fakeRepo) Commit(tx *gorm.DB) error {
	r.committed = true
	return nil
}

func (r *fakeRepo) Rollback(tx *gorm.DB) {
	r.rolledBack = true
}

type transferCall struct {
	fromSeed string
	to       string
	amount   float64
}

type fakeTransfer struct {
	calls []transferCall
	errOn map[int]error
}

func (t *fakeTransfer) Send(ctx context.Context, fromSeed, toAddress string, amount float64) (string, error) {
	idx := len(t.calls)
	t.calls = append(t.calls, transferCall{fromSeed: fromSeed, to: toAddress, amount: amount})
	if err := t.errOn[idx]; err != nil {
		return "", err
	}
	return fmt.Sprintf("hash-%d", idx), nil
}

type fakeSleeper struct {
	slept []time.Duration
}

func (s *fakeSleeper) Sleep(d time.Duration) {
	s.slept = append(s.slept, d)
}

type fakeNotifier struct {
	messages chan string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{messages: make(chan string, 8)}
}

func (n *fakeNotifier) Notify(message string) {
	select {
	case n.messages <- message:
	default:
	}
}

func testConfig() *config.Config {
	return &config.Config{
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

func newTestService(repo *fakeRepo, transfer *fakeTransfer) (*Service, *fakeSleeper) {
	sleeper := &fakeSleeper{}
	svc := NewService(repo, transfer, nil, testConfig(), utils.InitLogger())
	svc.sleep = sleeper
	svc.now = func() time.Time { return testNow }
	return svc, sleeper
}
