package game

import "errors"

var (
	// ErrUnknownMode rejects a mode outside the fixed set.
	ErrUnknownMode = errors.New("unknown game mode")

	// ErrInvalidSelection rejects a selection that is not a number
	// 0-9, a color, or BIG/SMALL.
	ErrInvalidSelection = errors.New("invalid bet selection")

	// ErrInvalidStake rejects a stake outside the allowed range.
	ErrInvalidStake = errors.New("invalid stake amount")

	// ErrBettingClosed rejects placement inside the close window or
	// against a round that is already closing.
	ErrBettingClosed = errors.New("betting is closed for this round")

	// ErrInsufficientBalance is returned by the ledger when the
	// account cannot cover the stake.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound is returned by the ledger for an unknown
	// account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidOverride rejects an operator override outside the
	// number range or directive set.
	ErrInvalidOverride = errors.New("invalid override directive")

	// ErrBeforeEpoch rejects clock queries for a time before the Unix
	// epoch.
	ErrBeforeEpoch = errors.New("time before unix epoch")
)
