package game

import (
	"fmt"
	"strconv"
	"time"
)

// Mode is a fixed round duration under which an independent round
// sequence runs. Each mode has its own engine and its own history.
type Mode string

const (
	ModeThirtySeconds Mode = "30s"
	ModeOneMinute     Mode = "1m"
	ModeThreeMinutes  Mode = "3m"
	ModeFiveMinutes   Mode = "5m"
)

// Modes lists every supported mode in display order.
var Modes = []Mode{ModeThirtySeconds, ModeOneMinute, ModeThreeMinutes, ModeFiveMinutes}

var modeSeconds = map[Mode]int{
	ModeThirtySeconds: 30,
	ModeOneMinute:     60,
	ModeThreeMinutes:  180,
	ModeFiveMinutes:   300,
}

func (m Mode) Valid() bool {
	_, ok := modeSeconds[m]
	return ok
}

// Seconds returns the round duration in whole seconds.
func (m Mode) Seconds() int {
	return modeSeconds[m]
}

func (m Mode) Duration() time.Duration {
	return time.Duration(modeSeconds[m]) * time.Second
}

// ParseMode validates a mode taken from an external caller.
func ParseMode(raw string) (Mode, error) {
	m := Mode(raw)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
	return m, nil
}

type Color string

const (
	ColorGreen  Color = "GREEN"
	ColorRed    Color = "RED"
	ColorViolet Color = "VIOLET"
)

// Size is the coarse high/low selection class.
type Size string

const (
	SizeBig   Size = "BIG"   // outcome 5-9
	SizeSmall Size = "SMALL" // outcome 0-4
)

// SelectionKind tags the bet selection union.
type SelectionKind string

const (
	SelectionNumber SelectionKind = "NUMBER"
	SelectionColor  SelectionKind = "COLOR"
	SelectionSize   SelectionKind = "SIZE"
)

// Selection is the tagged union of the three bet families: an exact
// number 0-9, one of the three color classes, or BIG/SMALL. Exactly
// one of the value fields is meaningful for a given Kind.
type Selection struct {
	Kind   SelectionKind `json:"kind"`
	Number int           `json:"number,omitempty"`
	Color  Color         `json:"color,omitempty"`
	Size   Size          `json:"size,omitempty"`
}

func NumberSelection(n int) Selection {
	return Selection{Kind: SelectionNumber, Number: n}
}

func ColorSelection(c Color) Selection {
	return Selection{Kind: SelectionColor, Color: c}
}

func SizeSelection(s Size) Selection {
	return Selection{Kind: SelectionSize, Size: s}
}

// ParseSelection parses the wire form of a selection: a digit "0"-"9",
// a color name, or "BIG"/"SMALL".
func ParseSelection(raw string) (Selection, error) {
	switch raw {
	case string(ColorGreen), string(ColorRed), string(ColorViolet):
		return ColorSelection(Color(raw)), nil
	case string(SizeBig), string(SizeSmall):
		return SizeSelection(Size(raw)), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < MinNumber || n > MaxNumber {
		return Selection{}, fmt.Errorf("%w: %q", ErrInvalidSelection, raw)
	}
	return NumberSelection(n), nil
}

func (s Selection) Valid() bool {
	switch s.Kind {
	case SelectionNumber:
		return s.Number >= MinNumber && s.Number <= MaxNumber
	case SelectionColor:
		return s.Color == ColorGreen || s.Color == ColorRed || s.Color == ColorViolet
	case SelectionSize:
		return s.Size == SizeBig || s.Size == SizeSmall
	}
	return false
}

// String returns the wire form accepted by ParseSelection.
func (s Selection) String() string {
	switch s.Kind {
	case SelectionNumber:
		return strconv.Itoa(s.Number)
	case SelectionColor:
		return string(s.Color)
	case SelectionSize:
		return string(s.Size)
	}
	return ""
}

// BetStatus transitions exactly once, from PENDING to WIN or LOSS.
type BetStatus string

const (
	BetPending BetStatus = "PENDING"
	BetWon     BetStatus = "WIN"
	BetLost    BetStatus = "LOSS"
)

// Bet is a wager against one round. Amounts are in the smallest
// currency unit. NetStake is the stake after the platform fee and is
// the only value payout multipliers are ever applied to.
type Bet struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Mode         Mode      `json:"mode"`
	PeriodID     string    `json:"period_id"`
	Selection    Selection `json:"selection"`
	Stake        int64     `json:"stake"`
	NetStake     int64     `json:"net_stake"`
	Status       BetStatus `json:"status"`
	Payout       int64     `json:"payout"`
	ResultNumber int       `json:"result_number"` // -1 until settled
	PlacedAt     time.Time `json:"placed_at"`
}

// Outcome is a settled round result: the drawn number plus its derived
// color set. Price is a synthetic index value shown alongside results.
type Outcome struct {
	Mode      Mode      `json:"mode"`
	PeriodID  string    `json:"period_id"`
	Number    int       `json:"number"`
	Colors    []Color   `json:"colors"`
	Price     int64     `json:"price"`
	SettledAt time.Time `json:"settled_at"`
}

// RoundStatus is the polled view of the live round for a mode.
type RoundStatus struct {
	Mode             Mode   `json:"mode"`
	PeriodID         string `json:"period_id"`
	SecondsRemaining int    `json:"seconds_remaining"`
	BettingOpen      bool   `json:"betting_open"`
}

// Event is the fire-and-forget message pushed to connected clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
