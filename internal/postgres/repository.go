package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/score-ledger/internal/config"
	"github.com/score-ledger/internal/domain"
)

// Unique constraint names referenced when mapping violations to domain errors.
const (
	sessionUniqueConstraint  = "scores_session_id_key"
	nicknameUniqueConstraint = "idx_scores_nickname_claimed"
)

const scoreColumns = `id, session_id, final_bill, total_savings, played_at, client_played_at, email, nickname, claimed_at, created_at`

// Repository provides PostgreSQL-based access to the score ledger
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// NewRepositoryWithPool wraps an existing pool, used by tests
func NewRepositoryWithPool(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations. The unique constraint on
// session_id and the partial unique index over claimed nicknames are the
// storage-level guarantees the claim model relies on; they are not
// optimizations.
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS scores (
			id BIGSERIAL PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			final_bill BIGINT NOT NULL CHECK (final_bill >= 0),
			total_savings BIGINT NOT NULL CHECK (total_savings >= 0),
			played_at TIMESTAMPTZ NOT NULL,
			client_played_at TIMESTAMPTZ,
			email VARCHAR(255),
			nickname VARCHAR(32),
			claimed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT scores_session_id_key UNIQUE (session_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_scores_nickname_claimed
			ON scores (LOWER(nickname)) WHERE claimed_at IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_scores_savings ON scores (total_savings DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_claimed ON scores (email) WHERE email IS NOT NULL`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// InsertScore records a session's outcome as a new row. played_at comes from
// the server clock; the client timestamp is stored alongside as metadata.
// The insert and the one-record-per-session check are a single atomic
// statement: a concurrent duplicate loses on the session_id constraint and
// surfaces as ErrDuplicateSession.
func (r *Repository) InsertScore(ctx context.Context, sub domain.ScoreSubmission, playedAt time.Time) (*domain.ScoreRecord, error) {
	query := `
		INSERT INTO scores (session_id, final_bill, total_savings, played_at, client_played_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + scoreColumns

	var clientPlayedAt *time.Time
	if sub.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, sub.Timestamp); err == nil {
			clientPlayedAt = &ts
		}
	}

	var record domain.ScoreRecord
	err := r.pool.QueryRow(ctx, query,
		sub.SessionID,
		sub.FinalBill,
		sub.TotalSavings,
		playedAt,
		clientPlayedAt,
	).Scan(scoreFields(&record)...)
	if err != nil {
		if isUniqueViolation(err, sessionUniqueConstraint) {
			return nil, domain.ErrDuplicateSession
		}
		return nil, fmt.Errorf("inserting score: %w", mapStorageErr(err))
	}
	return &record, nil
}

// GetScore retrieves a score by session ID
func (r *Repository) GetScore(ctx context.Context, sessionID string) (*domain.ScoreRecord, error) {
	query := `SELECT ` + scoreColumns + ` FROM scores WHERE session_id = $1`

	var record domain.ScoreRecord
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(scoreFields(&record)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScoreNotFound
		}
		return nil, fmt.Errorf("getting score: %w", mapStorageErr(err))
	}
	return &record, nil
}

// ScoreRank computes a record's 1-based rank and the ledger size. Both
// counts are evaluated inside one statement so they come from the same
// snapshot; rank can never exceed the total it is reported against. Records
// with equal savings share a rank by construction of the count.
func (r *Repository) ScoreRank(ctx context.Context, sessionID string) (rank, total int64, err error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM scores WHERE total_savings > s.total_savings) + 1 AS rank,
			(SELECT COUNT(*) FROM scores) AS total
		FROM scores s
		WHERE s.session_id = $1
	`
	err = r.pool.QueryRow(ctx, query, sessionID).Scan(&rank, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, domain.ErrScoreNotFound
		}
		return 0, 0, fmt.Errorf("computing rank: %w", mapStorageErr(err))
	}
	return rank, total, nil
}

// ClaimScore performs the one-time claim transition. The WHERE clause
// re-asserts "still unclaimed" so a lost race shows up as zero rows updated
// instead of overwriting a finished claim, and the partial unique index over
// claimed nicknames turns a simultaneous same-nickname claim into a
// catchable violation: exactly one claimant wins.
func (r *Repository) ClaimScore(ctx context.Context, sessionID, email, nickname string) (*domain.ScoreRecord, error) {
	query := `
		UPDATE scores
		SET email = $2, nickname = $3, claimed_at = NOW()
		WHERE session_id = $1 AND email IS NULL
		RETURNING ` + scoreColumns

	var record domain.ScoreRecord
	err := r.pool.QueryRow(ctx, query, sessionID, email, nickname).Scan(scoreFields(&record)...)
	if err != nil {
		if isUniqueViolation(err, nicknameUniqueConstraint) {
			return nil, domain.ErrNicknameTaken
		}
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the record never existed or someone else claimed it first.
			if _, getErr := r.GetScore(ctx, sessionID); getErr != nil {
				return nil, getErr
			}
			return nil, domain.ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("claiming score: %w", mapStorageErr(err))
	}
	return &record, nil
}

// NicknameTaken checks whether a claimed record already holds the nickname,
// case-insensitively. Unclaimed rows never participate. This is a courtesy
// pre-check for friendly errors; the unique index is the real guarantee.
func (r *Repository) NicknameTaken(ctx context.Context, nickname string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM scores
			WHERE claimed_at IS NOT NULL AND LOWER(nickname) = LOWER($1)
		)
	`
	var taken bool
	err := r.pool.QueryRow(ctx, query, nickname).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("checking nickname: %w", mapStorageErr(err))
	}
	return taken, nil
}

// Leaderboard returns the top claimed scores. Ties in total_savings order by
// earlier played_at, then session_id, so repeated reads are deterministic.
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT nickname, total_savings, final_bill, played_at,
			   ROW_NUMBER() OVER (ORDER BY total_savings DESC, played_at ASC, session_id ASC) AS rank
		FROM scores
		WHERE email IS NOT NULL AND nickname IS NOT NULL
		ORDER BY total_savings DESC, played_at ASC, session_id ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard: %w", mapStorageErr(err))
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.Nickname, &entry.TotalSavings, &entry.FinalBill, &entry.PlayedAt, &entry.Rank); err != nil {
			return nil, fmt.Errorf("scanning leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaderboard: %w", mapStorageErr(err))
	}
	return entries, nil
}

// AllScores returns every score, claimed or not, ranked by savings. No
// identity leaves this query.
func (r *Repository) AllScores(ctx context.Context) ([]domain.ScoreSummary, error) {
	query := `
		SELECT total_savings, final_bill,
			   ROW_NUMBER() OVER (ORDER BY total_savings DESC, played_at ASC, session_id ASC) AS rank,
			   (email IS NOT NULL) AS claimed
		FROM scores
		ORDER BY total_savings DESC, played_at ASC, session_id ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("getting all scores: %w", mapStorageErr(err))
	}
	defer rows.Close()

	var summaries []domain.ScoreSummary
	for rows.Next() {
		var s domain.ScoreSummary
		if err := rows.Scan(&s.TotalSavings, &s.FinalBill, &s.Rank, &s.Claimed); err != nil {
			return nil, fmt.Errorf("scanning score summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scores: %w", mapStorageErr(err))
	}
	return summaries, nil
}

// ClaimedEmails returns all claimed records with their emails, newest claim first
func (r *Repository) ClaimedEmails(ctx context.Context) ([]domain.ClaimedEmail, error) {
	query := `
		SELECT email, nickname, total_savings, final_bill, claimed_at, played_at
		FROM scores
		WHERE email IS NOT NULL
		ORDER BY claimed_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("getting claimed emails: %w", mapStorageErr(err))
	}
	defer rows.Close()

	var claims []domain.ClaimedEmail
	for rows.Next() {
		var c domain.ClaimedEmail
		if err := rows.Scan(&c.Email, &c.Nickname, &c.TotalSavings, &c.FinalBill, &c.ClaimedAt, &c.PlayedAt); err != nil {
			return nil, fmt.Errorf("scanning claimed email: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimed emails: %w", mapStorageErr(err))
	}
	return claims, nil
}

// CountClaimed returns the number of claimed records
func (r *Repository) CountClaimed(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scores WHERE email IS NOT NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting claimed scores: %w", mapStorageErr(err))
	}
	return count, nil
}

// scoreFields returns scan targets matching scoreColumns order
func scoreFields(r *domain.ScoreRecord) []any {
	return []any{
		&r.ID,
		&r.SessionID,
		&r.FinalBill,
		&r.TotalSavings,
		&r.PlayedAt,
		&r.ClientPlayedAt,
		&r.Email,
		&r.Nickname,
		&r.ClaimedAt,
		&r.CreatedAt,
	}
}

// isUniqueViolation reports whether err is a unique violation on the named
// constraint. An empty name matches any unique violation.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// mapStorageErr tags connection-level failures as retryable so callers can
// tell them apart from terminal request errors.
func mapStorageErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return err
}
