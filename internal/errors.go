package internal

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSession    = errors.New("no such game")
	ErrUnknownPlayer     = errors.New("player is not in this game")
	ErrWrongPhase        = errors.New("not allowed in this phase")
	ErrGameFinished      = errors.New("game is finished")
	ErrAlreadyPlaying    = errors.New("player is already in a game")
	ErrUnknownMode       = errors.New("unknown game mode")
	ErrSamePlayer        = errors.New("a player cannot play against themselves")
	ErrQueueFull         = errors.New("matchmaking queue is full")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrAlreadyAuthorized = errors.New("already authenticated")
	ErrBadPayload        = errors.New("malformed payload")
	ErrRateLimited       = errors.New("too many messages")
)

// PersistenceError reports a failed store call. The in-memory session it
// belongs to is unaffected and keeps serving.
type PersistenceError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s game %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
