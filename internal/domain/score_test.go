package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsHighScore(t *testing.T) {
	tests := []struct {
		name  string
		rank  int64
		total int64
		want  bool
	}{
		{name: "only score is a high score", rank: 1, total: 1, want: true},
		{name: "first of few", rank: 1, total: 5, want: true},
		{name: "second of few is not", rank: 2, total: 5, want: false},
		{name: "exactly at ten percent", rank: 10, total: 100, want: true},
		{name: "just past ten percent", rank: 11, total: 100, want: false},
		{name: "truncated division", rank: 1, total: 19, want: true},
		{name: "rank two of nineteen", rank: 2, total: 19, want: false},
		{name: "bottom of big board", rank: 950, total: 1000, want: false},
		{name: "top of big board", rank: 100, total: 1000, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHighScore(tt.rank, tt.total))
		})
	}
}

func TestScoreRecordClaimed(t *testing.T) {
	var rec ScoreRecord
	assert.False(t, rec.Claimed())

	email := "player@example.com"
	now := time.Now()
	rec.Email = &email
	rec.ClaimedAt = &now
	assert.True(t, rec.Claimed())
}
