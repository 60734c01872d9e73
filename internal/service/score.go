package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/score-ledger/internal/config"
	"github.com/score-ledger/internal/domain"
)

// Store is the durable ledger the service runs on. Implementations must
// back InsertScore with an atomic uniqueness check on session_id and
// ClaimScore with a conditional update plus a storage-level nickname
// constraint; the service's own pre-checks only produce friendlier errors.
type Store interface {
	InsertScore(ctx context.Context, sub domain.ScoreSubmission, playedAt time.Time) (*domain.ScoreRecord, error)
	GetScore(ctx context.Context, sessionID string) (*domain.ScoreRecord, error)
	ScoreRank(ctx context.Context, sessionID string) (rank, total int64, err error)
	ClaimScore(ctx context.Context, sessionID, email, nickname string) (*domain.ScoreRecord, error)
	NicknameTaken(ctx context.Context, nickname string) (bool, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	AllScores(ctx context.Context) ([]domain.ScoreSummary, error)
	ClaimedEmails(ctx context.Context) ([]domain.ClaimedEmail, error)
	CountClaimed(ctx context.Context) (int64, error)
}

// Cache holds leaderboard pages; a nil Cache disables caching
type Cache interface {
	GetLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, bool)
	SetLeaderboard(ctx context.Context, limit int, entries []domain.LeaderboardEntry)
	InvalidateLeaderboard(ctx context.Context)
}

// Broadcaster pushes leaderboard updates to live viewers
type Broadcaster interface {
	BroadcastLeaderboard(entries []domain.LeaderboardEntry, totalClaimed int64)
}

// ScoreService provides the score ledger and claim/ranking operations
type ScoreService struct {
	store       Store
	cache       Cache
	broadcaster Broadcaster
	config      *config.LeaderboardConfig
	logger      *slog.Logger
}

// NewScoreService creates a new score service
func NewScoreService(store Store, cache Cache, cfg *config.LeaderboardConfig, logger *slog.Logger) *ScoreService {
	return &ScoreService{
		store:  store,
		cache:  cache,
		config: cfg,
		logger: logger,
	}
}

// SetBroadcaster attaches a live-update broadcaster
func (s *ScoreService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SubmitScore records a session's outcome exactly once. played_at always
// comes from the server clock; the client timestamp rides along as metadata
// and never influences ranking.
func (s *ScoreService) SubmitScore(ctx context.Context, sub domain.ScoreSubmission) (*domain.ScoreRecord, error) {
	if sub.SessionID == "" || sub.FinalBill < 0 || sub.TotalSavings < 0 {
		return nil, domain.ErrInvalidRequest
	}

	record, err := s.store.InsertScore(ctx, sub, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.Info("score submitted",
		"session_id", record.SessionID,
		"final_bill", record.FinalBill,
		"total_savings", record.TotalSavings,
	)
	return record, nil
}

// GetScore returns a single score record
func (s *ScoreService) GetScore(ctx context.Context, sessionID string) (*domain.ScoreRecord, error) {
	return s.store.GetScore(ctx, sessionID)
}

// CheckHighScore computes the record's rank against the whole ledger,
// claimed and unclaimed alike, at this moment. The result is never cached;
// rank moves as new scores arrive.
func (s *ScoreService) CheckHighScore(ctx context.Context, sessionID string) (*domain.HighScoreResult, error) {
	rank, total, err := s.store.ScoreRank(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &domain.HighScoreResult{
		IsHighScore: domain.IsHighScore(rank, total),
		Rank:        rank,
		TotalScores: total,
	}, nil
}

// ClaimScore attaches an email and nickname to an unclaimed score. Failure
// modes are checked in a fixed order so the caller can always tell which
// precondition broke: missing record, already claimed, bad nickname, taken
// nickname. The final write re-asserts "unclaimed" and relies on the
// storage constraint for nickname races, so at most one claimant wins.
func (s *ScoreService) ClaimScore(ctx context.Context, sessionID string, req domain.ClaimRequest) (*domain.HighScoreResult, error) {
	record, err := s.store.GetScore(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record.Claimed() {
		return nil, domain.ErrAlreadyClaimed
	}

	nickname, err := domain.NormalizeNickname(req.Nickname)
	if err != nil {
		return nil, err
	}

	taken, err := s.store.NicknameTaken(ctx, nickname)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrNicknameTaken
	}

	claimed, err := s.store.ClaimScore(ctx, sessionID, req.Email, nickname)
	if err != nil {
		return nil, err
	}

	s.logger.Info("score claimed",
		"session_id", sessionID,
		"nickname", nickname,
	)

	if s.cache != nil {
		s.cache.InvalidateLeaderboard(ctx)
	}
	s.publishLeaderboard(ctx)

	rank, total, err := s.store.ScoreRank(ctx, claimed.SessionID)
	if err != nil {
		return nil, err
	}
	return &domain.HighScoreResult{
		IsHighScore: domain.IsHighScore(rank, total),
		Rank:        rank,
		TotalScores: total,
	}, nil
}

// Leaderboard returns the top claimed scores. Non-positive limits fall back
// to the configured default; oversized limits are clamped.
func (s *ScoreService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}

	if s.cache != nil {
		if entries, ok := s.cache.GetLeaderboard(ctx, limit); ok {
			return entries, nil
		}
	}

	entries, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetLeaderboard(ctx, limit, entries)
	}
	return entries, nil
}

// AllScores returns every score ranked by savings, claimed flag only
func (s *ScoreService) AllScores(ctx context.Context) ([]domain.ScoreSummary, error) {
	return s.store.AllScores(ctx)
}

// ClaimedEmails returns the collected emails for the admin export
func (s *ScoreService) ClaimedEmails(ctx context.Context) ([]domain.ClaimedEmail, error) {
	return s.store.ClaimedEmails(ctx)
}

// RefreshLeaderboard re-reads the default leaderboard page from the store,
// rewarms the cache and pushes it to live viewers. Run periodically by the
// refresh worker and after each claim.
func (s *ScoreService) RefreshLeaderboard(ctx context.Context) error {
	entries, err := s.store.Leaderboard(ctx, s.config.DefaultLimit)
	if err != nil {
		return fmt.Errorf("refreshing leaderboard: %w", err)
	}

	if s.cache != nil {
		s.cache.SetLeaderboard(ctx, s.config.DefaultLimit, entries)
	}

	if s.broadcaster != nil {
		total, err := s.store.CountClaimed(ctx)
		if err != nil {
			return fmt.Errorf("counting claimed scores: %w", err)
		}
		s.broadcaster.BroadcastLeaderboard(entries, total)
	}
	return nil
}

// publishLeaderboard refreshes viewers after a claim without failing the
// claim itself
func (s *ScoreService) publishLeaderboard(ctx context.Context) {
	if s.broadcaster == nil {
		return
	}
	if err := s.RefreshLeaderboard(ctx); err != nil {
		s.logger.Warn("failed to publish leaderboard update", "error", err)
	}
}
