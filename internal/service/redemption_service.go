package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/course-eval-api/internal/dto"
	"github.com/noah-isme/course-eval-api/internal/models"
	"github.com/noah-isme/course-eval-api/internal/repository"
	appErrors "github.com/noah-isme/course-eval-api/pkg/errors"
	"github.com/noah-isme/course-eval-api/pkg/logger"
)

const openEventsCacheKeyPrefix = "rewards:events:open:"

const (
	msgUnknownEvent    = "Select a valid choice. That choice is not one of the available choices."
	msgDeadlineExpired = "Sorry, the deadline for this event expired already."
	msgNegativePoints  = "Ensure this value is greater than or equal to 0."
	msgZeroPoints      = "You cannot redeem 0 points."
	msgNotEnoughPoints = "You don't have enough reward points."
	msgRedeemedMoved   = "Your redeemed points changed in the meantime. Please try again."
	msgStepFormat      = "Ensure this value is a multiple of step size %d."
	msgMaxValueFormat  = "Ensure this value is less than or equal to %d."
	fieldEventID       = "eventId"
	fieldPoints        = "points"
)

type rewardLedgerRepository interface {
	LockLedger(ctx context.Context, exec sqlx.ExtContext, userID string) (models.PointBalance, error)
	Balance(ctx context.Context, userID string) (models.PointBalance, error)
	FindEventsByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.RewardPointRedemptionEvent, error)
	ListOpenEvents(ctx context.Context, day time.Time) ([]models.RewardPointRedemptionEvent, error)
	CreateRedemption(ctx context.Context, exec sqlx.ExtContext, redemption *models.RewardPointRedemption) error
}

// RedemptionServiceConfig tunes the redemption workflow.
type RedemptionServiceConfig struct {
	Location      *time.Location
	EventCacheTTL time.Duration
}

// RedemptionService lets users exchange reward points for event entries.
type RedemptionService struct {
	db        txProvider
	rewards   rewardLedgerRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       RedemptionServiceConfig
	now       func() time.Time
}

// NewRedemptionService constructs a RedemptionService.
func NewRedemptionService(db txProvider, rewards rewardLedgerRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, log *zap.Logger, cfg RedemptionServiceConfig) *RedemptionService {
	if validate == nil {
		validate = validator.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &RedemptionService{
		db:        db,
		rewards:   rewards,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// LedgerLock is held while a user's granting and redemption rows are locked. It can only be
// obtained inside withLedgerLock, so validation and commit cannot run unlocked.
type LedgerLock struct {
	userID  string
	exec    sqlx.ExtContext
	balance models.PointBalance
}

// Available returns the points available to the user as seen under the lock.
func (l *LedgerLock) Available() int {
	return l.balance.Available()
}

type validatedLine struct {
	event  models.RewardPointRedemptionEvent
	points int
}

// validatedBatch is a batch that passed validation under lock.
type validatedBatch struct {
	lock  *LedgerLock
	lines []validatedLine
}

func (b *validatedBatch) total() int {
	sum := 0
	for _, line := range b.lines {
		sum += line.points
	}
	return sum
}

// withLedgerLock runs fn inside a transaction that holds the row locks on userID's ledger.
func (s *RedemptionService) withLedgerLock(ctx context.Context, userID string, fn func(lock *LedgerLock) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin redemption transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	balance, err := s.rewards.LockLedger(ctx, tx, userID)
	if err != nil {
		return err
	}
	if err = fn(&LedgerLock{userID: userID, exec: tx, balance: balance}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit redemption: %w", err)
	}
	return nil
}

// Redeem validates and stores the batch atomically, returning the created ledger entries.
func (s *RedemptionService) Redeem(ctx context.Context, userID string, req dto.RedeemPointsRequest) (created []models.RewardPointRedemption, err error) {
	defer func() {
		points := 0
		for _, r := range created {
			points += r.Value
		}
		s.metrics.ObserveRedemption(redemptionOutcome(err), points)
	}()

	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid redemption payload")
	}

	err = s.withLedgerLock(ctx, userID, func(lock *LedgerLock) error {
		if req.PreviousRedeemedPoints != nil && *req.PreviousRedeemedPoints != lock.balance.Redeemed {
			return appErrors.Clone(appErrors.ErrConflict, msgRedeemedMoved)
		}
		batch, err := s.validate(ctx, lock, req.Lines)
		if err != nil {
			return err
		}
		created, err = s.commit(ctx, batch)
		return err
	})
	if err != nil {
		created = nil
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		if repository.IsRetryable(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrTransactionConflict.Code, appErrors.ErrTransactionConflict.Status, "redemption conflicted with a concurrent update")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to redeem points")
	}

	logger.FromContext(ctx, s.logger).Info("reward points redeemed", zap.String("user_id", userID), zap.Int("entries", len(created)))
	return created, nil
}

// validate checks every line and then, if all lines are valid, the batch as a whole.
func (s *RedemptionService) validate(ctx context.Context, lock *LedgerLock, lines []dto.RedemptionLine) (*validatedBatch, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.EventID)
	}
	events, err := s.rewards.FindEventsByIDs(ctx, lock.exec, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.RewardPointRedemptionEvent, len(events))
	for _, event := range events {
		byID[event.ID] = event
	}

	today := dateOnly(s.now().In(s.cfg.Location))
	available := lock.Available()
	batch := &validatedBatch{lock: lock}
	var problems []dto.FieldError

	for i, line := range lines {
		lineErrs := validateLine(i, line, byID, today, available)
		if len(lineErrs) > 0 {
			problems = append(problems, lineErrs...)
			continue
		}
		batch.lines = append(batch.lines, validatedLine{event: byID[line.EventID], points: line.Points})
	}
	if len(problems) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid redemption request", problems)
	}

	total := batch.total()
	if total <= 0 {
		return nil, batchError(msgZeroPoints)
	}
	if total > available {
		return nil, batchError(msgNotEnoughPoints)
	}
	return batch, nil
}

func validateLine(index int, line dto.RedemptionLine, events map[string]models.RewardPointRedemptionEvent, today time.Time, available int) []dto.FieldError {
	idx := index
	var problems []dto.FieldError
	add := func(field, message string) {
		problems = append(problems, dto.FieldError{Line: &idx, Field: field, Message: message})
	}

	event, ok := events[line.EventID]
	switch {
	case !ok:
		add(fieldEventID, msgUnknownEvent)
	case !event.OpenOn(today):
		add(fieldEventID, msgDeadlineExpired)
	}

	if line.Points < 0 {
		add(fieldPoints, msgNegativePoints)
	}
	if line.Points > available {
		add(fieldPoints, fmt.Sprintf(msgMaxValueFormat, available))
	}
	if ok && event.Step > 0 && line.Points%event.Step != 0 {
		add(fieldPoints, fmt.Sprintf(msgStepFormat, event.Step))
	}
	return problems
}

func batchError(message string) error {
	return appErrors.WithDetails(appErrors.ErrValidation, message, []dto.FieldError{{Message: message}})
}

// commit writes one ledger entry per non-zero line of a validated batch.
func (s *RedemptionService) commit(ctx context.Context, batch *validatedBatch) ([]models.RewardPointRedemption, error) {
	if batch == nil || batch.lock == nil {
		return nil, fmt.Errorf("redemption batch was not validated under a ledger lock")
	}
	now := s.now().UTC()
	created := make([]models.RewardPointRedemption, 0, len(batch.lines))
	for _, line := range batch.lines {
		if line.points == 0 {
			continue
		}
		redemption := models.RewardPointRedemption{
			UserProfileID:  batch.lock.userID,
			EventID:        line.event.ID,
			Value:          line.points,
			RedemptionTime: now,
		}
		if err := s.rewards.CreateRedemption(ctx, batch.lock.exec, &redemption); err != nil {
			return nil, err
		}
		created = append(created, redemption)
	}
	return created, nil
}

// Overview returns the user's balance and the events currently accepting redemptions.
func (s *RedemptionService) Overview(ctx context.Context, userID string) (*dto.RedemptionOverview, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	balance, err := s.rewards.Balance(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reward points")
	}

	today := dateOnly(s.now().In(s.cfg.Location))
	key := openEventsCacheKeyPrefix + today.Format("2006-01-02")
	events, err := remember(ctx, s.cache, key, s.cfg.EventCacheTTL, func(ctx context.Context) ([]dto.RedemptionEventItem, error) {
		open, err := s.rewards.ListOpenEvents(ctx, today)
		if err != nil {
			return nil, err
		}
		items := make([]dto.RedemptionEventItem, 0, len(open))
		for _, event := range open {
			items = append(items, dto.RedemptionEventItem{
				ID:            event.ID,
				Name:          event.Name,
				Date:          event.Date,
				RedeemEndDate: event.RedeemEndDate,
				Step:          event.Step,
			})
		}
		return items, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load redemption events")
	}

	return &dto.RedemptionOverview{
		AvailablePoints: balance.Available(),
		RedeemedPoints:  balance.Redeemed,
		Events:          events,
	}, nil
}

func redemptionOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, appErrors.ErrValidation):
		return "rejected"
	case errors.Is(err, appErrors.ErrConflict), errors.Is(err, appErrors.ErrTransactionConflict):
		return "conflict"
	default:
		return "error"
	}
}
