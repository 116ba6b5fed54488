package game

import (
	"fmt"
	"strconv"
	"sync"
)

// OverrideKind tags the operator override union.
type OverrideKind string

const (
	OverrideNumber OverrideKind = "NUMBER"
	OverrideBig    OverrideKind = "BIG"
	OverrideSmall  OverrideKind = "SMALL"
)

// Override is an operator-supplied directive that preempts the random
// draw for the next round of a mode: either an exact number or a
// high/low half directive.
type Override struct {
	Kind   OverrideKind `json:"kind"`
	Number int          `json:"number,omitempty"`
}

// ParseOverride parses the wire form: a digit "0"-"9", "BIG" or
// "SMALL". Invalid values are rejected at set time so the pending
// override is never replaced by garbage.
func ParseOverride(raw string) (*Override, error) {
	switch raw {
	case string(SizeBig):
		return &Override{Kind: OverrideBig}, nil
	case string(SizeSmall):
		return &Override{Kind: OverrideSmall}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < MinNumber || n > MaxNumber {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOverride, raw)
	}
	return &Override{Kind: OverrideNumber, Number: n}, nil
}

func (o *Override) String() string {
	if o == nil {
		return ""
	}
	if o.Kind == OverrideNumber {
		return strconv.Itoa(o.Number)
	}
	return string(o.Kind)
}

// OverrideCell holds at most one pending override for a mode. Consume
// swaps the value out under the same lock an operator Set takes, so a
// directive can never leak into more than one round.
type OverrideCell struct {
	mu sync.Mutex
	v  *Override
}

// Set replaces the pending override. A nil value clears it.
func (c *OverrideCell) Set(ov *Override) {
	c.mu.Lock()
	c.v = ov
	c.mu.Unlock()
}

// Get returns the pending override without consuming it.
func (c *OverrideCell) Get() *Override {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// Consume atomically takes the pending override and clears the cell.
func (c *OverrideCell) Consume() *Override {
	c.mu.Lock()
	defer c.mu.Unlock()
	ov := c.v
	c.v = nil
	return ov
}
