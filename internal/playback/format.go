package playback

import (
	"fmt"
	"math"
)

// FormatTime renders seconds as M:SS. Invalid values render as 0:00;
// seconds are always zero-padded, minutes are not.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
