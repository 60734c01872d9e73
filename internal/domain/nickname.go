package domain

import (
	"regexp"
	"strings"
)

// Nickname length bounds, applied after trimming surrounding whitespace.
const (
	NicknameMinLen = 2
	NicknameMaxLen = 20
)

var (
	nicknameCharset  = regexp.MustCompile(`^[A-Za-z0-9 ._!-]+$`)
	nicknameHasAlnum = regexp.MustCompile(`[A-Za-z0-9]`)
)

// NormalizeNickname trims and validates a leaderboard nickname. The stored
// form is the trimmed one. A valid nickname is 2-20 characters of letters,
// digits, spaces and the symbols - _ . ! and contains at least one letter or
// digit, so a nickname of symbols alone is rejected.
func NormalizeNickname(raw string) (string, error) {
	nickname := strings.TrimSpace(raw)
	if len(nickname) < NicknameMinLen || len(nickname) > NicknameMaxLen {
		return "", ErrInvalidNickname
	}
	if !nicknameCharset.MatchString(nickname) {
		return "", ErrInvalidNickname
	}
	if !nicknameHasAlnum.MatchString(nickname) {
		return "", ErrInvalidNickname
	}
	return nickname, nil
}
