package game

import (
	"fmt"
	"time"
)

// periodIndexDigits is the zero-padded width of the per-day slice index.
const periodIndexDigits = 4

// CurrentRound derives the round identifier and remaining seconds for a
// mode from wall-clock time. The identifier is the calendar date plus a
// 1-based index of the time slice within the day, so any two processes
// looking at the same clock agree on round boundaries without
// coordination.
func CurrentRound(mode Mode, now time.Time) (string, int, error) {
	if !mode.Valid() {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if now.Unix() < 0 {
		return "", 0, ErrBeforeEpoch
	}

	secs := now.Hour()*3600 + now.Minute()*60 + now.Second()
	dur := mode.Seconds()

	index := secs/dur + 1
	remaining := dur - secs%dur

	year, month, day := now.Date()
	periodID := fmt.Sprintf("%04d%02d%02d%0*d", year, int(month), day, periodIndexDigits, index)

	return periodID, remaining, nil
}
