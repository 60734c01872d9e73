package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/score-ledger/internal/config"
	"github.com/score-ledger/internal/domain"
)

// stubStore implements Store with canned responses and call recording
type stubStore struct {
	records map[string]*domain.ScoreRecord

	rank  int64
	total int64

	nicknameTaken bool

	leaderboard     []domain.LeaderboardEntry
	leaderboardArgs []int

	claimErr   error
	claimCalls int
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]*domain.ScoreRecord)}
}

func (s *stubStore) InsertScore(_ context.Context, sub domain.ScoreSubmission, playedAt time.Time) (*domain.ScoreRecord, error) {
	if _, ok := s.records[sub.SessionID]; ok {
		return nil, domain.ErrDuplicateSession
	}
	rec := &domain.ScoreRecord{
		ID:           int64(len(s.records) + 1),
		SessionID:    sub.SessionID,
		FinalBill:    sub.FinalBill,
		TotalSavings: sub.TotalSavings,
		PlayedAt:     playedAt,
	}
	s.records[sub.SessionID] = rec
	return rec, nil
}

func (s *stubStore) GetScore(_ context.Context, sessionID string) (*domain.ScoreRecord, error) {
	rec, ok := s.records[sessionID]
	if !ok {
		return nil, domain.ErrScoreNotFound
	}
	return rec, nil
}

func (s *stubStore) ScoreRank(_ context.Context, sessionID string) (int64, int64, error) {
	if _, ok := s.records[sessionID]; !ok {
		return 0, 0, domain.ErrScoreNotFound
	}
	return s.rank, s.total, nil
}

func (s *stubStore) ClaimScore(_ context.Context, sessionID, email, nickname string) (*domain.ScoreRecord, error) {
	s.claimCalls++
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	rec, ok := s.records[sessionID]
	if !ok {
		return nil, domain.ErrScoreNotFound
	}
	now := time.Now()
	rec.Email = &email
	rec.Nickname = &nickname
	rec.ClaimedAt = &now
	return rec, nil
}

func (s *stubStore) NicknameTaken(_ context.Context, _ string) (bool, error) {
	return s.nicknameTaken, nil
}

func (s *stubStore) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.leaderboardArgs = append(s.leaderboardArgs, limit)
	return s.leaderboard, nil
}

func (s *stubStore) AllScores(_ context.Context) ([]domain.ScoreSummary, error) {
	return nil, nil
}

func (s *stubStore) ClaimedEmails(_ context.Context) ([]domain.ClaimedEmail, error) {
	return nil, nil
}

func (s *stubStore) CountClaimed(_ context.Context) (int64, error) {
	return int64(len(s.leaderboard)), nil
}

// stubCache records leaderboard cache traffic
type stubCache struct {
	entries     map[int][]domain.LeaderboardEntry
	invalidated int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[int][]domain.LeaderboardEntry)}
}

func (c *stubCache) GetLeaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, bool) {
	entries, ok := c.entries[limit]
	return entries, ok
}

func (c *stubCache) SetLeaderboard(_ context.Context, limit int, entries []domain.LeaderboardEntry) {
	c.entries[limit] = entries
}

func (c *stubCache) InvalidateLeaderboard(_ context.Context) {
	c.invalidated++
	c.entries = make(map[int][]domain.LeaderboardEntry)
}

type stubBroadcaster struct {
	calls int
	last  []domain.LeaderboardEntry
}

func (b *stubBroadcaster) BroadcastLeaderboard(entries []domain.LeaderboardEntry, _ int64) {
	b.calls++
	b.last = entries
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.LeaderboardConfig {
	return &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100, CacheTTL: 30 * time.Second}
}

func TestSubmitScoreValidation(t *testing.T) {
	store := newStubStore()
	svc := NewScoreService(store, nil, testConfig(), testLogger())
	ctx := context.Background()

	_, err := svc.SubmitScore(ctx, domain.ScoreSubmission{FinalBill: 10, TotalSavings: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", FinalBill: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", TotalSavings: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	rec, err := svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", FinalBill: 100, TotalSavings: 40})
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.SessionID)
	assert.False(t, rec.PlayedAt.IsZero())
}

func TestSubmitScoreDuplicateSession(t *testing.T) {
	store := newStubStore()
	svc := NewScoreService(store, nil, testConfig(), testLogger())
	ctx := context.Background()

	_, err := svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", FinalBill: 100, TotalSavings: 40})
	require.NoError(t, err)

	_, err = svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", FinalBill: 200, TotalSavings: 80})
	assert.ErrorIs(t, err, domain.ErrDuplicateSession)
}

func TestClaimScorePreconditionOrder(t *testing.T) {
	ctx := context.Background()
	req := domain.ClaimRequest{Email: "a@b.com", Nickname: "Winner"}

	t.Run("missing record", func(t *testing.T) {
		store := newStubStore()
		svc := NewScoreService(store, nil, testConfig(), testLogger())

		_, err := svc.ClaimScore(ctx, "missing", req)
		assert.ErrorIs(t, err, domain.ErrScoreNotFound)
		assert.Zero(t, store.claimCalls)
	})

	t.Run("already claimed", func(t *testing.T) {
		store := newStubStore()
		svc := NewScoreService(store, nil, testConfig(), testLogger())

		_, err := svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", FinalBill: 100, TotalSavings: 40})
		require.NoError(t, err)
		_, err = svc.ClaimScore(ctx, "s1", req)
		require.NoError(t, err)

		_, err = svc.ClaimScore(ctx, "s1", domain.ClaimRequest{Email: "c@d.com", Nickname: "Other"})
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	})

	t.Run("invalid nickname checked before taken", func(t *testing.T) {
		store := newStubStore()
		store.nicknameTaken = true
		svc := NewScoreService(store, nil, testConfig(), testLogger())

		_, err := svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", FinalBill: 100, TotalSavings: 40})
		require.NoError(t, err)

		_, err = svc.ClaimScore(ctx, "s1", domain.ClaimRequest{Email: "a@b.com", Nickname: "!!"})
		assert.ErrorIs(t, err, domain.ErrInvalidNickname)
		assert.Zero(t, store.claimCalls)
	})

	t.Run("taken nickname", func(t *testing.T) {
		store := newStubStore()
		store.nicknameTaken = true
		svc := NewScoreService(store, nil, testConfig(), testLogger())

		_, err := svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", FinalBill: 100, TotalSavings: 40})
		require.NoError(t, err)

		_, err = svc.ClaimScore(ctx, "s1", req)
		assert.ErrorIs(t, err, domain.ErrNicknameTaken)
		assert.Zero(t, store.claimCalls)
	})
}

func TestClaimScoreTrimsNicknameAndReturnsRank(t *testing.T) {
	store := newStubStore()
	store.rank = 3
	store.total = 50
	cache := newStubCache()
	svc := NewScoreService(store, cache, testConfig(), testLogger())
	ctx := context.Background()

	_, err := svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", FinalBill: 100, TotalSavings: 40})
	require.NoError(t, err)

	result, err := svc.ClaimScore(ctx, "s1", domain.ClaimRequest{Email: "a@b.com", Nickname: "  Saver One  "})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Rank)
	assert.Equal(t, int64(50), result.TotalScores)
	assert.True(t, result.IsHighScore)

	rec := store.records["s1"]
	require.NotNil(t, rec.Nickname)
	assert.Equal(t, "Saver One", *rec.Nickname)

	// A successful claim must drop cached leaderboard pages
	assert.Equal(t, 1, cache.invalidated)
}

func TestClaimScoreStorageRaceSurfaces(t *testing.T) {
	store := newStubStore()
	store.claimErr = domain.ErrNicknameTaken
	svc := NewScoreService(store, nil, testConfig(), testLogger())
	ctx := context.Background()

	_, err := svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", FinalBill: 100, TotalSavings: 40})
	require.NoError(t, err)

	_, err = svc.ClaimScore(ctx, "s1", domain.ClaimRequest{Email: "a@b.com", Nickname: "Racer"})
	assert.ErrorIs(t, err, domain.ErrNicknameTaken)
}

func TestCheckHighScore(t *testing.T) {
	store := newStubStore()
	store.rank = 11
	store.total = 100
	svc := NewScoreService(store, nil, testConfig(), testLogger())
	ctx := context.Background()

	_, err := svc.SubmitScore(ctx, domain.ScoreSubmission{SessionID: "s1", FinalBill: 100, TotalSavings: 40})
	require.NoError(t, err)

	result, err := svc.CheckHighScore(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, result.IsHighScore)
	assert.Equal(t, int64(11), result.Rank)

	_, err = svc.CheckHighScore(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrScoreNotFound)
}

func TestLeaderboardLimitHandling(t *testing.T) {
	store := newStubStore()
	svc := NewScoreService(store, nil, testConfig(), testLogger())
	ctx := context.Background()

	_, err := svc.Leaderboard(ctx, 0)
	require.NoError(t, err)
	_, err = svc.Leaderboard(ctx, -5)
	require.NoError(t, err)
	_, err = svc.Leaderboard(ctx, 500)
	require.NoError(t, err)
	_, err = svc.Leaderboard(ctx, 25)
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10, 100, 25}, store.leaderboardArgs)
}

func TestLeaderboardUsesCache(t *testing.T) {
	store := newStubStore()
	store.leaderboard = []domain.LeaderboardEntry{{Rank: 1, Nickname: "Top", TotalSavings: 900}}
	cache := newStubCache()
	svc := NewScoreService(store, cache, testConfig(), testLogger())
	ctx := context.Background()

	entries, err := svc.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []int{10}, store.leaderboardArgs)

	// Second read is served from cache
	entries, err = svc.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []int{10}, store.leaderboardArgs)
}

func TestRefreshLeaderboardBroadcasts(t *testing.T) {
	store := newStubStore()
	store.leaderboard = []domain.LeaderboardEntry{
		{Rank: 1, Nickname: "Top", TotalSavings: 900},
		{Rank: 2, Nickname: "Next", TotalSavings: 800},
	}
	cache := newStubCache()
	broadcaster := &stubBroadcaster{}
	svc := NewScoreService(store, cache, testConfig(), testLogger())
	svc.SetBroadcaster(broadcaster)

	require.NoError(t, svc.RefreshLeaderboard(context.Background()))

	assert.Equal(t, 1, broadcaster.calls)
	assert.Len(t, broadcaster.last, 2)

	cached, ok := cache.GetLeaderboard(context.Background(), 10)
	require.True(t, ok)
	assert.Len(t, cached, 2)
}
