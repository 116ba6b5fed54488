package game

import "testing"

func TestNetStake(t *testing.T) {
	tests := []struct {
		name  string
		stake int64
		want  int64
	}{
		{"round figure", 10000, 9800},
		{"minimum stake", 100, 98},
		{"half rounds up", 75, 74}, // 73.5 rounds to 74
		{"just above half", 153, 150},
		{"maximum stake", 1000000, 980000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NetStake(tt.stake); got != tt.want {
				t.Errorf("NetStake(%d) = %d, want %d", tt.stake, got, tt.want)
			}
		})
	}
}

func TestPayout(t *testing.T) {
	tests := []struct {
		name     string
		sel      Selection
		outcome  int
		netStake int64
		want     int64
	}{
		{"number hit", NumberSelection(7), 7, 9800, 88200},
		{"number miss", NumberSelection(7), 3, 9800, 0},
		{"number hit on zero", NumberSelection(0), 0, 9800, 88200},

		{"big hit", SizeSelection(SizeBig), 5, 9800, 19600},
		{"big hit high", SizeSelection(SizeBig), 9, 9800, 19600},
		{"big miss", SizeSelection(SizeBig), 4, 9800, 0},
		{"small hit", SizeSelection(SizeSmall), 0, 4900, 9800},
		{"small miss", SizeSelection(SizeSmall), 7, 4900, 0},

		{"green plain", ColorSelection(ColorGreen), 7, 10000, 20000},
		{"green split on five", ColorSelection(ColorGreen), 5, 10000, 15000},
		{"green miss", ColorSelection(ColorGreen), 2, 10000, 0},
		{"red plain", ColorSelection(ColorRed), 4, 10000, 20000},
		{"red split on zero", ColorSelection(ColorRed), 0, 10000, 15000},
		{"red miss on five", ColorSelection(ColorRed), 5, 10000, 0},
		{"violet on zero", ColorSelection(ColorViolet), 0, 10000, 45000},
		{"violet on five", ColorSelection(ColorViolet), 5, 10000, 45000},
		{"violet miss", ColorSelection(ColorViolet), 3, 10000, 0},

		{"violet rounds half up", ColorSelection(ColorViolet), 0, 9801, 44105}, // 44104.5
		{"split rounds half up", ColorSelection(ColorGreen), 5, 9801, 14702},   // 14701.5
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Payout(tt.sel, tt.outcome, tt.netStake); got != tt.want {
				t.Errorf("Payout(%s, %d, %d) = %d, want %d",
					tt.sel.String(), tt.outcome, tt.netStake, got, tt.want)
			}
		})
	}
}

func TestPayout_NumberBeatsEverySize(t *testing.T) {
	// A winning number bet pays more than any other family on the same
	// net stake.
	net := int64(9800)
	number := Payout(NumberSelection(5), 5, net)
	size := Payout(SizeSelection(SizeBig), 5, net)
	violet := Payout(ColorSelection(ColorViolet), 5, net)

	if number <= size || number <= violet {
		t.Errorf("number payout %d should exceed size %d and violet %d", number, size, violet)
	}
}
