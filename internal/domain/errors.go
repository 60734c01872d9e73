package domain

import "errors"

// Domain errors
var (
	ErrDuplicateSession   = errors.New("session already has a recorded score")
	ErrScoreNotFound      = errors.New("score not found")
	ErrAlreadyClaimed     = errors.New("score has already been claimed")
	ErrInvalidNickname    = errors.New("invalid nickname")
	ErrNicknameTaken      = errors.New("nickname is already taken")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInternalError      = errors.New("internal server error")
)

// IsConflictError checks if an error is a conflict with already-stored state
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateSession) ||
		errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrNicknameTaken)
}
