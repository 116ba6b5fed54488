package game

import (
	"crypto/rand"
	"math/big"
	"time"
)

const (
	MinNumber = 0
	MaxNumber = 9
)

// numberColors maps each outcome number to its color set. The two edge
// numbers (0 and 5) belong to two colors at once; every other even
// number is red and every other odd number is green.
var numberColors = map[int][]Color{
	0: {ColorRed, ColorViolet},
	1: {ColorGreen},
	2: {ColorRed},
	3: {ColorGreen},
	4: {ColorRed},
	5: {ColorGreen, ColorViolet},
	6: {ColorRed},
	7: {ColorGreen},
	8: {ColorRed},
	9: {ColorGreen},
}

// ColorsFor returns the color set for an outcome number.
func ColorsFor(number int) []Color {
	return numberColors[number]
}

// IsEdge reports whether the number belongs to two colors at once.
func IsEdge(number int) bool {
	return number == 0 || number == 5
}

// Resolver turns an optional override directive into a settled outcome.
// Resolution itself is side-effect free; consuming the override is the
// caller's job and must happen atomically with the read.
type Resolver struct {
	// draw returns a uniform integer in [0, n).
	draw func(n int) int
}

// NewResolver returns a resolver backed by crypto/rand.
func NewResolver() *Resolver {
	return &Resolver{draw: secureIntn}
}

// NewResolverWithDraw injects the uniform source, for deterministic
// tests.
func NewResolverWithDraw(draw func(n int) int) *Resolver {
	return &Resolver{draw: draw}
}

// Resolve produces the outcome for a closing round. A numeric override
// is used verbatim; a BIG/SMALL directive narrows the draw to the
// matching half of the range; otherwise the full range is drawn.
func (r *Resolver) Resolve(mode Mode, periodID string, ov *Override) Outcome {
	var number int
	switch {
	case ov != nil && ov.Kind == OverrideNumber:
		number = ov.Number
	case ov != nil && ov.Kind == OverrideBig:
		number = 5 + r.draw(5)
	case ov != nil && ov.Kind == OverrideSmall:
		number = r.draw(5)
	default:
		number = r.draw(10)
	}

	return Outcome{
		Mode:      mode,
		PeriodID:  periodID,
		Number:    number,
		Colors:    ColorsFor(number),
		Price:     40000 + int64(r.draw(10000)),
		SettledAt: time.Now(),
	}
}

func secureIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform source is broken;
		// there is no meaningful fallback for a fairness-critical draw.
		panic("game: crypto rand unavailable: " + err.Error())
	}
	return int(v.Int64())
}
