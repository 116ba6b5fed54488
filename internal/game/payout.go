package game

// Payout rules. All amounts are int64 in the smallest currency unit;
// multipliers are exact rationals so the only rounding in the whole
// payout path is the single half-up division in mulDiv.
const (
	// Platform fee: net stake is 98% of the raw stake.
	feeNumerator   = 98
	feeDenominator = 100

	numberMultiplier = 9 // exact number hit
	sizeMultiplier   = 2 // BIG/SMALL hit
	colorMultiplier  = 2 // color hit on a plain outcome

	// Split multiplier (3/2) applies when RED or GREEN wins on an
	// edge outcome shared with VIOLET; VIOLET itself pays 9/2.
	splitNumerator    = 3
	splitDenominator  = 2
	violetNumerator   = 9
	violetDenominator = 2
)

// NetStake derives the contract money from a raw stake: the fee is
// applied here and nowhere else, rounding half-up to the smallest
// currency unit exactly once.
func NetStake(stake int64) int64 {
	return mulDiv(stake, feeNumerator, feeDenominator)
}

// Payout returns the amount won by a selection against a settled
// outcome number, applied to the stored net stake. Zero means the bet
// lost. The function is deterministic and total over valid selections.
func Payout(sel Selection, outcomeNumber int, netStake int64) int64 {
	switch sel.Kind {
	case SelectionNumber:
		if sel.Number == outcomeNumber {
			return netStake * numberMultiplier
		}
		return 0

	case SelectionSize:
		if sel.Size == SizeBig && outcomeNumber >= 5 {
			return netStake * sizeMultiplier
		}
		if sel.Size == SizeSmall && outcomeNumber <= 4 {
			return netStake * sizeMultiplier
		}
		return 0

	case SelectionColor:
		colors := ColorsFor(outcomeNumber)
		if !containsColor(colors, sel.Color) {
			return 0
		}
		if sel.Color == ColorViolet {
			return mulDiv(netStake, violetNumerator, violetDenominator)
		}
		// RED or GREEN sharing an edge outcome with VIOLET pays the
		// split multiplier instead of the full one.
		if IsEdge(outcomeNumber) {
			return mulDiv(netStake, splitNumerator, splitDenominator)
		}
		return netStake * colorMultiplier
	}
	return 0
}

func containsColor(colors []Color, c Color) bool {
	for _, v := range colors {
		if v == c {
			return true
		}
	}
	return false
}

// mulDiv computes amount*num/den rounded half-up.
func mulDiv(amount, num, den int64) int64 {
	return (amount*num + den/2) / den
}
