package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-eval-api/internal/dto"
	"github.com/noah-isme/course-eval-api/internal/models"
	appErrors "github.com/noah-isme/course-eval-api/pkg/errors"
)

type fakeLedger struct {
	granted     map[string]int
	redemptions []models.RewardPointRedemption
	events      map[string]models.RewardPointRedemptionEvent
	lockCalls   int
	listCalls   int
	createErr   error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{granted: map[string]int{}, events: map[string]models.RewardPointRedemptionEvent{}}
}

func (f *fakeLedger) balance(userID string) models.PointBalance {
	balance := models.PointBalance{Granted: f.granted[userID]}
	for _, r := range f.redemptions {
		if r.UserProfileID == userID {
			balance.Redeemed += r.Value
		}
	}
	return balance
}

func (f *fakeLedger) LockLedger(ctx context.Context, exec sqlx.ExtContext, userID string) (models.PointBalance, error) {
	f.lockCalls++
	return f.balance(userID), nil
}

func (f *fakeLedger) Balance(ctx context.Context, userID string) (models.PointBalance, error) {
	return f.balance(userID), nil
}

func (f *fakeLedger) FindEventsByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.RewardPointRedemptionEvent, error) {
	var events []models.RewardPointRedemptionEvent
	for _, id := range ids {
		if event, ok := f.events[id]; ok {
			events = append(events, event)
		}
	}
	return events, nil
}

func (f *fakeLedger) ListOpenEvents(ctx context.Context, day time.Time) ([]models.RewardPointRedemptionEvent, error) {
	f.listCalls++
	var events []models.RewardPointRedemptionEvent
	for _, event := range f.events {
		if event.OpenOn(day) {
			events = append(events, event)
		}
	}
	return events, nil
}

func (f *fakeLedger) CreateRedemption(ctx context.Context, exec sqlx.ExtContext, redemption *models.RewardPointRedemption) error {
	if f.createErr != nil {
		return f.createErr
	}
	redemption.ID = "r" + redemption.EventID
	f.redemptions = append(f.redemptions, *redemption)
	return nil
}

type memoryCache struct {
	values map[string]interface{}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	value, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*[]dto.RedemptionEventItem)) = value.([]dto.RedemptionEventItem)
	return nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.values[key] = value
	return nil
}

var redemptionToday = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newRedemptionFixture(t *testing.T) (*RedemptionService, *fakeLedger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMockTx(t)
	ledger := newFakeLedger()
	ledger.granted["u1"] = 100
	ledger.events["A"] = models.RewardPointRedemptionEvent{ID: "A", Name: "Party", Date: redemptionToday.AddDate(0, 0, 10), RedeemEndDate: redemptionToday.AddDate(0, 0, 5), Step: 10}
	ledger.events["B"] = models.RewardPointRedemptionEvent{ID: "B", Name: "Concert", Date: redemptionToday.AddDate(0, 0, 20), RedeemEndDate: redemptionToday, Step: 10}
	ledger.events["C"] = models.RewardPointRedemptionEvent{ID: "C", Name: "Lunch", Date: redemptionToday.AddDate(0, 0, 3), RedeemEndDate: redemptionToday.AddDate(0, 0, 2), Step: 5}
	ledger.events["old"] = models.RewardPointRedemptionEvent{ID: "old", Name: "Past", Date: redemptionToday.AddDate(0, 0, -3), RedeemEndDate: redemptionToday.AddDate(0, 0, -1), Step: 1}

	svc := NewRedemptionService(db, ledger, nil, NewMetricsService(), nil, nil, RedemptionServiceConfig{})
	svc.now = func() time.Time { return redemptionToday }
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	mock.ExpectBegin()
	return svc, ledger, mock
}

func fieldErrors(t *testing.T, err error) []dto.FieldError {
	t.Helper()
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	details, ok := appErr.Details.([]dto.FieldError)
	require.True(t, ok, "expected field error details, got %T", appErr.Details)
	return details
}

func TestRedemptionServiceRedeemsBatch(t *testing.T) {
	svc, ledger, mock := newRedemptionFixture(t)
	mock.ExpectCommit()

	created, err := svc.Redeem(context.Background(), "u1", dto.RedeemPointsRequest{Lines: []dto.RedemptionLine{
		{EventID: "A", Points: 30},
		{EventID: "B", Points: 40},
	}})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, 30, created[0].Value)
	assert.Equal(t, "B", created[1].EventID)
	assert.Equal(t, 30, ledger.balance("u1").Available())
}

func TestRedemptionServiceSkipsZeroLines(t *testing.T) {
	svc, ledger, mock := newRedemptionFixture(t)
	mock.ExpectCommit()

	created, err := svc.Redeem(context.Background(), "u1", dto.RedeemPointsRequest{Lines: []dto.RedemptionLine{
		{EventID: "A", Points: 0},
		{EventID: "C", Points: 15},
	}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "C", created[0].EventID)
	assert.Len(t, ledger.redemptions, 1)
}

func TestRedemptionServiceRejectsOverdraft(t *testing.T) {
	svc, ledger, mock := newRedemptionFixture(t)
	mock.ExpectRollback()

	_, err := svc.Redeem(context.Background(), "u1", dto.RedeemPointsRequest{Lines: []dto.RedemptionLine{
		{EventID: "A", Points: 60},
		{EventID: "B", Points: 50},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	details := fieldErrors(t, err)
	require.Len(t, details, 1)
	assert.Nil(t, details[0].Line)
	assert.Equal(t, "You don't have enough reward points.", details[0].Message)
	assert.Empty(t, ledger.redemptions)
}

func TestRedemptionServiceRejectsZeroTotal(t *testing.T) {
	cases := map[string][]dto.RedemptionLine{
		"zero line":   {{EventID: "A", Points: 0}},
		"empty batch": {},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			svc, ledger, mock := newRedemptionFixture(t)
			mock.ExpectRollback()

			_, err := svc.Redeem(context.Background(), "u1", dto.RedeemPointsRequest{Lines: lines})
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrValidation)
			details := fieldErrors(t, err)
			require.Len(t, details, 1)
			assert.Nil(t, details[0].Line)
			assert.Equal(t, "You cannot redeem 0 points.", details[0].Message)
			assert.Empty(t, ledger.redemptions)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedemptionServiceRejectsLineErrors(t *testing.T) {
	svc, ledger, mock := newRedemptionFixture(t)
	mock.ExpectRollback()

	_, err := svc.Redeem(context.Background(), "u1", dto.RedeemPointsRequest{Lines: []dto.RedemptionLine{
		{EventID: "C", Points: 7},
		{EventID: "old", Points: 1},
		{EventID: "A", Points: 105},
		{EventID: "missing", Points: 10},
		{EventID: "A", Points: -10},
	}})
	require.Error(t, err)
	details := fieldErrors(t, err)

	messages := map[int][]string{}
	for _, d := range details {
		require.NotNil(t, d.Line)
		messages[*d.Line] = append(messages[*d.Line], d.Message)
	}
	assert.Equal(t, []string{"Ensure this value is a multiple of step size 5."}, messages[0])
	assert.Equal(t, []string{"Sorry, the deadline for this event expired already."}, messages[1])
	assert.Equal(t, []string{"Ensure this value is less than or equal to 100.", "Ensure this value is a multiple of step size 10."}, messages[2])
	assert.Equal(t, []string{"Select a valid choice. That choice is not one of the available choices."}, messages[3])
	assert.Equal(t, []string{"Ensure this value is greater than or equal to 0."}, messages[4])
	assert.Empty(t, ledger.redemptions)
}

func TestRedemptionServiceDeadlineIsInclusive(t *testing.T) {
	svc, _, mock := newRedemptionFixture(t)
	svc.now = func() time.Time { return redemptionToday.Add(13 * time.Hour) }
	mock.ExpectCommit()

	created, err := svc.Redeem(context.Background(), "u1", dto.RedeemPointsRequest{Lines: []dto.RedemptionLine{{EventID: "B", Points: 10}}})
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestRedemptionServiceDetectsConcurrentRedemption(t *testing.T) {
	svc, ledger, mock := newRedemptionFixture(t)
	ledger.redemptions = append(ledger.redemptions, models.RewardPointRedemption{UserProfileID: "u1", EventID: "A", Value: 20})
	mock.ExpectRollback()

	seen := 0
	_, err := svc.Redeem(context.Background(), "u1", dto.RedeemPointsRequest{
		PreviousRedeemedPoints: &seen,
		Lines:                  []dto.RedemptionLine{{EventID: "A", Points: 10}},
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Len(t, ledger.redemptions, 1)
}

func TestRedemptionServiceFlagsRetryableStoreErrors(t *testing.T) {
	svc, ledger, mock := newRedemptionFixture(t)
	ledger.createErr = &pq.Error{Code: "40001"}
	mock.ExpectRollback()

	_, err := svc.Redeem(context.Background(), "u1", dto.RedeemPointsRequest{Lines: []dto.RedemptionLine{{EventID: "A", Points: 10}}})
	assert.True(t, appErrors.IsRetryable(err))
}

func TestRedemptionServiceRejectsInvalidPayloadWithoutLocking(t *testing.T) {
	db, mock := newSQLMockTx(t)
	ledger := newFakeLedger()
	svc := NewRedemptionService(db, ledger, nil, nil, nil, nil, RedemptionServiceConfig{})

	_, err := svc.Redeem(context.Background(), "u1", dto.RedeemPointsRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.Redeem(context.Background(), "", dto.RedeemPointsRequest{Lines: []dto.RedemptionLine{{EventID: "A", Points: 1}}})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.Zero(t, ledger.lockCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedemptionServiceCommitRequiresValidatedBatch(t *testing.T) {
	svc := NewRedemptionService(nil, newFakeLedger(), nil, nil, nil, nil, RedemptionServiceConfig{})

	_, err := svc.commit(context.Background(), &validatedBatch{})
	assert.Error(t, err)
}

func TestRedemptionServiceOverviewUsesCache(t *testing.T) {
	ledger := newFakeLedger()
	ledger.granted["u1"] = 50
	ledger.redemptions = []models.RewardPointRedemption{{UserProfileID: "u1", EventID: "A", Value: 20}}
	ledger.events["A"] = models.RewardPointRedemptionEvent{ID: "A", Name: "Party", RedeemEndDate: redemptionToday, Step: 1}
	ledger.events["old"] = models.RewardPointRedemptionEvent{ID: "old", Name: "Past", RedeemEndDate: redemptionToday.AddDate(0, 0, -1), Step: 1}
	cache := NewCacheService(&memoryCache{values: map[string]interface{}{}}, nil, time.Minute, nil, true)
	svc := NewRedemptionService(nil, ledger, cache, nil, nil, nil, RedemptionServiceConfig{})
	svc.now = func() time.Time { return redemptionToday }

	for i := 0; i < 2; i++ {
		overview, err := svc.Overview(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, 30, overview.AvailablePoints)
		assert.Equal(t, 20, overview.RedeemedPoints)
		require.Len(t, overview.Events, 1)
		assert.Equal(t, "Party", overview.Events[0].Name)
	}
	assert.Equal(t, 1, ledger.listCalls)
}
