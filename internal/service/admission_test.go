package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yishin/mimbonode/internal/models"
	"github.com/yishin/mimbonode/internal/repository"
)

func admissionUser(lastHarvest time.Time) *models.User {
	return &models.User{
		ID:          1,
		Username:    "miner",
		LastHarvest: &lastHarvest,
	}
}

func admissionPackages(createdAt time.Time) []models.Package {
	return []models.Package{
		{ID: 1, Name: "basic", MiningPower: 1, MaxOut: 10000, CreatedAt: createdAt},
	}
}

func TestAdmitCreatesHarvestingRecord(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, &fakeTransfer{})
	user := admissionUser(testNow.Add(-2 * time.Hour))

	adm, err := svc.admit(context.Background(), user, 7100, admissionPackages(testNow.Add(-24*time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, models.HarvestStatusHarvesting, adm.harvest.Status)
	assert.Equal(t, testNow.Unix()/3600, adm.harvest.RequestGroup)
	assert.Equal(t, int64(7200), adm.elapsed)
	assert.Equal(t, int64(7200), adm.harvest.ElapsedSeconds)
	// The client's own clock is recorded but never trusted.
	assert.Equal(t, int64(7100), adm.harvest.ClientElapsed)
}

func TestAdmitBlockedUser(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, &fakeTransfer{})
	user := admissionUser(testNow.Add(-2 * time.Hour))
	user.IsBlock = true

	_, err := svc.admit(context.Background(), user, 0, admissionPackages(testNow.Add(-24*time.Hour)))
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Empty(t, repo.harvests)
}

func TestAdmitRejectsPreCutoffState(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, &fakeTransfer{})
	user := admissionUser(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))

	_, err := svc.admit(context.Background(), user, 0, admissionPackages(testNow.Add(-24*time.Hour)))
	assert.ErrorIs(t, err, ErrStaleHarvest)
	assert.Empty(t, repo.harvests)
}

func TestAdmitCooldownNotElapsed(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, &fakeTransfer{})
	user := admissionUser(testNow.Add(-10 * time.Minute))

	_, err := svc.admit(context.Background(), user, 0, admissionPackages(testNow.Add(-24*time.Hour)))

	var policyErr *PolicyError
	require.True(t, errors.As(err, &policyErr))
	assert.Equal(t, PolicyCooldown, policyErr.Reason)
	assert.Empty(t, repo.harvests)
}

func TestAdmitNewAccountUsesPackageCreation(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, &fakeTransfer{})
	user := &models.User{ID: 1, Username: "fresh"}

	adm, err := svc.admit(context.Background(), user, 0, admissionPackages(testNow.Add(-90*time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, int64(5400), adm.elapsed)
}

func TestAdmitDuplicateInFlight(t *testing.T) {
	repo := newFakeRepo()
	repo.duplicateOnCreate = true
	svc, _ := newTestService(repo, &fakeTransfer{})
	user := admissionUser(testNow.Add(-2 * time.Hour))

	_, err := svc.admit(context.Background(), user, 0, admissionPackages(testNow.Add(-24*time.Hour)))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAdmitReopensFailedAttempt(t *testing.T) {
	repo := newFakeRepo()
	repo.duplicateOnCreate = true
	repo.failedInGroup = &models.Harvest{
		ID:           42,
		UserID:       1,
		Status:       models.HarvestStatusFailed,
		RequestGroup: testNow.Unix() / 3600,
		RetryCount:   1,
	}
	svc, _ := newTestService(repo, &fakeTransfer{})
	user := admissionUser(testNow.Add(-2 * time.Hour))

	adm, err := svc.admit(context.Background(), user, 7150, admissionPackages(testNow.Add(-24*time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, []uint64{42}, repo.reopened)
	assert.Equal(t, uint64(42), adm.harvest.ID)
	assert.Equal(t, models.HarvestStatusHarvesting, adm.harvest.Status)
	assert.Equal(t, 2, adm.harvest.RetryCount)
	assert.Equal(t, int64(7200), adm.harvest.ElapsedSeconds)
}

func TestAdmitReopenRaceIsDuplicate(t *testing.T) {
	repo := newFakeRepo()
	repo.duplicateOnCreate = true
	repo.failedInGroup = &models.Harvest{ID: 42, UserID: 1, Status: models.HarvestStatusFailed}
	repo.reopenErr = repository.ErrDuplicateHarvest
	svc, _ := newTestService(repo, &fakeTransfer{})
	user := admissionUser(testNow.Add(-2 * time.Hour))

	_, err := svc.admit(context.Background(), user, 0, admissionPackages(testNow.Add(-24*time.Hour)))
	assert.ErrorIs(t, err, ErrDuplicate)
}
