package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-eval-api/internal/models"
)

const redemptionEventColumns = `id, name, date, redeem_end_date, step`

// RewardRepository reads and appends to the reward point ledger.
type RewardRepository struct {
	db *sqlx.DB
}

// NewRewardRepository constructs the repository.
func NewRewardRepository(db *sqlx.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockLedger row-locks every granting and redemption of the user and returns the resulting balance.
// It must run inside a transaction for the locks to hold until commit.
func (r *RewardRepository) LockLedger(ctx context.Context, exec sqlx.ExtContext, userID string) (models.PointBalance, error) {
	target := r.exec(exec)
	var balance models.PointBalance

	var granted []int
	const grantingQuery = `SELECT value FROM reward_point_grantings WHERE user_profile_id = $1 ORDER BY id FOR UPDATE`
	if err := sqlx.SelectContext(ctx, target, &granted, grantingQuery, userID); err != nil {
		return balance, fmt.Errorf("lock reward point grantings: %w", err)
	}
	var redeemed []int
	const redemptionQuery = `SELECT value FROM reward_point_redemptions WHERE user_profile_id = $1 ORDER BY id FOR UPDATE`
	if err := sqlx.SelectContext(ctx, target, &redeemed, redemptionQuery, userID); err != nil {
		return balance, fmt.Errorf("lock reward point redemptions: %w", err)
	}

	for _, v := range granted {
		balance.Granted += v
	}
	for _, v := range redeemed {
		balance.Redeemed += v
	}
	return balance, nil
}

// Balance sums the user's ledger without locking.
func (r *RewardRepository) Balance(ctx context.Context, userID string) (models.PointBalance, error) {
	var balance models.PointBalance
	const query = `SELECT
	(SELECT COALESCE(SUM(value), 0) FROM reward_point_grantings WHERE user_profile_id = $1) AS granted,
	(SELECT COALESCE(SUM(value), 0) FROM reward_point_redemptions WHERE user_profile_id = $1) AS redeemed`
	if err := r.db.GetContext(ctx, &balance, query, userID); err != nil {
		return balance, fmt.Errorf("sum reward points: %w", err)
	}
	return balance, nil
}

// FindEventsByIDs loads the requested redemption events; unknown ids are absent from the result.
func (r *RewardRepository) FindEventsByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.RewardPointRedemptionEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + redemptionEventColumns + ` FROM reward_point_redemption_events WHERE id = ANY($1)`
	var events []models.RewardPointRedemptionEvent
	if err := sqlx.SelectContext(ctx, r.exec(exec), &events, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find redemption events: %w", err)
	}
	return events, nil
}

// ListOpenEvents returns events whose redemption deadline is on or after day.
func (r *RewardRepository) ListOpenEvents(ctx context.Context, day time.Time) ([]models.RewardPointRedemptionEvent, error) {
	query := `SELECT ` + redemptionEventColumns + ` FROM reward_point_redemption_events WHERE redeem_end_date >= $1 ORDER BY date ASC, name ASC`
	var events []models.RewardPointRedemptionEvent
	if err := r.db.SelectContext(ctx, &events, query, day.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list open redemption events: %w", err)
	}
	return events, nil
}

// CreateRedemption appends a ledger entry.
func (r *RewardRepository) CreateRedemption(ctx context.Context, exec sqlx.ExtContext, redemption *models.RewardPointRedemption) error {
	if redemption.ID == "" {
		redemption.ID = uuid.NewString()
	}
	if redemption.RedemptionTime.IsZero() {
		redemption.RedemptionTime = time.Now().UTC()
	}
	const query = `INSERT INTO reward_point_redemptions (id, user_profile_id, event_id, value, redemption_time)
VALUES (:id, :user_profile_id, :event_id, :value, :redemption_time)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, redemption); err != nil {
		return fmt.Errorf("insert reward point redemption: %w", err)
	}
	return nil
}
