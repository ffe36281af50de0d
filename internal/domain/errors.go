package domain

import "errors"

// Precondition violations surfaced by the engine. Each write operation
// checks all of its preconditions before mutating anything, so a returned
// error implies no state change.
var (
	ErrNotFound            = errors.New("not found")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrEventEnded          = errors.New("market has ended")
	ErrEventNotStarted     = errors.New("market has not started")
	ErrPlayerExists        = errors.New("player already registered")
	ErrPlayerNotRegistered = errors.New("player not registered")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrRevealWindowExpired = errors.New("reveal window expired")
	ErrResolutionExpired   = errors.New("resolution window expired")
	ErrAlreadyResolved     = errors.New("market already resolved")
	ErrAlreadyRevealed     = errors.New("player already revealed")
	ErrNoParticipants      = errors.New("no participants")
	ErrNotResolved         = errors.New("market not resolved")
	ErrAlreadyClaimed      = errors.New("already claimed")
	ErrNotWinner           = errors.New("player is not the winner")
	ErrMarketClosed        = errors.New("market closed")
	ErrMarketStillActive   = errors.New("market still active")
	ErrFeesAlreadyClaimed  = errors.New("fees already claimed")
	ErrLockHeld            = errors.New("lock already held")
)
