package domain

import (
	"time"
)

// ScoreRecord is one row in the score ledger: a single completed game
// session. A record is created exactly once on submission and mutated at
// most once by the claim transition; email, nickname and claimed_at are
// either all nil or all set.
type ScoreRecord struct {
	ID             int64      `json:"id"`
	SessionID      string     `json:"session_id"`
	FinalBill      int64      `json:"final_bill"`
	TotalSavings   int64      `json:"total_savings"`
	PlayedAt       time.Time  `json:"played_at"`
	ClientPlayedAt *time.Time `json:"client_played_at,omitempty"`
	Email          *string    `json:"-"`
	Nickname       *string    `json:"nickname,omitempty"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Claimed reports whether the record has gone through the claim transition.
func (r *ScoreRecord) Claimed() bool {
	return r.Email != nil
}

// ScoreSubmission is a request to record a session's outcome. Timestamp is
// the client's own clock reading and is kept as informational metadata only;
// the server clock decides played_at.
type ScoreSubmission struct {
	SessionID    string `json:"session_id"`
	FinalBill    int64  `json:"final_bill"`
	TotalSavings int64  `json:"total_savings"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// ClaimRequest attaches an email and public nickname to a submitted score.
type ClaimRequest struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

// HighScoreResult is the rank of one record against the whole ledger at a
// single point in time. Rank is 1-based: one plus the number of records with
// strictly greater savings, so equal savings share a rank.
type HighScoreResult struct {
	IsHighScore bool  `json:"is_high_score"`
	Rank        int64 `json:"rank"`
	TotalScores int64 `json:"total_scores"`
}

// LeaderboardEntry is a claimed score on the public leaderboard.
type LeaderboardEntry struct {
	Rank         int64     `json:"rank"`
	Nickname     string    `json:"nickname"`
	TotalSavings int64     `json:"total_savings"`
	FinalBill    int64     `json:"final_bill"`
	PlayedAt     time.Time `json:"played_at"`
}

// ScoreSummary is a minimal ranked view of any score, claimed or not. It
// carries no identity so the game client can show high-score context for
// anonymous sessions.
type ScoreSummary struct {
	Rank         int64 `json:"rank"`
	TotalSavings int64 `json:"total_savings"`
	FinalBill    int64 `json:"final_bill"`
	Claimed      bool  `json:"claimed"`
}

// ClaimedEmail is one claimed record as exported to the admin email listing.
type ClaimedEmail struct {
	Email        string    `json:"email"`
	Nickname     string    `json:"nickname"`
	TotalSavings int64     `json:"total_savings"`
	FinalBill    int64     `json:"final_bill"`
	ClaimedAt    time.Time `json:"claimed_at"`
	PlayedAt     time.Time `json:"game_played"`
}

// IsHighScore applies the top-10% rule with a floor of one slot, so the very
// first score on an empty ledger always qualifies.
func IsHighScore(rank, total int64) bool {
	slots := total / 10
	if slots < 1 {
		slots = 1
	}
	return rank <= slots
}
