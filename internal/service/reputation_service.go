package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/tradebot/internal/domain"
	"github.com/spec-kit/tradebot/internal/events"
	"github.com/spec-kit/tradebot/internal/repository"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

// ReputationRecorder is the write side vouch sessions depend on.
type ReputationRecorder interface {
	Record(ctx context.Context, userID string, stars int, comment string) (*domain.ReputationRecord, error)
}

// ReputationService owns the per-user vouch aggregates.
type ReputationService struct {
	repo       repository.ReputationRepository
	locks      *KeyedMutex
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// ReputationDependencies bundles collaborators for the reputation service.
type ReputationDependencies struct {
	Repo       repository.ReputationRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewReputationService constructs the service.
func NewReputationService(deps ReputationDependencies) *ReputationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReputationService{
		repo:       deps.Repo,
		locks:      NewKeyedMutex(),
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Record adds one vouch to userID's aggregate. Writers for the same user are
// serialized; different users proceed in parallel.
func (s *ReputationService) Record(ctx context.Context, userID string, stars int, comment string) (*domain.ReputationRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidationError("user id is required", nil)
	}
	if !domain.ValidStars(stars) {
		return nil, apperrors.NewInvalidRating(stars)
	}
	return s.record(ctx, userID, stars, domain.NormalizeComment(comment))
}

// record stores an already normalized comment.
func (s *ReputationService) record(ctx context.Context, userID string, stars int, comment string) (*domain.ReputationRecord, error) {
	unlock := s.locks.Lock(userID)
	rec, err := s.repo.Record(ctx, userID, stars, comment, s.now().UTC())
	unlock()
	if err != nil {
		return nil, err
	}

	avg, _ := rec.Average()
	s.publishEvent(ctx, events.New(events.EventReputationRecorded, userID, "", events.ReputationRecordedPayload{
		RecipientID: userID,
		Stars:       stars,
		Count:       rec.Count,
		Average:     avg,
	}))
	return rec, nil
}

// AddManualVouch records an administrator-entered vouch.
func (s *ReputationService) AddManualVouch(ctx context.Context, adminName, userID string, stars int, comment string) (*domain.ReputationRecord, error) {
	adminName = strings.TrimSpace(adminName)
	if adminName == "" {
		return nil, apperrors.NewValidationError("admin name is required", nil)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidationError("user id is required", nil)
	}
	if !domain.ValidStars(stars) {
		return nil, apperrors.NewInvalidRating(stars)
	}
	// The length cap applies to the admin's text, not the attribution prefix.
	prefixed := fmt.Sprintf("Admin vouch by %s: %s", adminName, domain.NormalizeComment(comment))
	return s.record(ctx, userID, stars, prefixed)
}

// Get returns the user's aggregate; found is false when the user was never rated.
func (s *ReputationService) Get(ctx context.Context, userID string) (*domain.ReputationRecord, bool, error) {
	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}

// Top returns the leaderboard; n defaults to 10.
func (s *ReputationService) Top(ctx context.Context, n int) ([]domain.ReputationRecord, error) {
	if n <= 0 {
		n = defaultTopLimit
	}
	if n > maxTopLimit {
		n = maxTopLimit
	}
	return s.repo.Top(ctx, n)
}

func (s *ReputationService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
