// Package calc formats and rounds values shown by the panel.
package calc

import (
	"fmt"
	"math"
	"strconv"

	"ytpanel/pkg/ptr"
)

// Percent rounds a progress value to the nearest integer and clamps it to 0..100.
// NaN and infinities count as 0.
func Percent(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return int(math.Round(math.Max(0, math.Min(100, v))))
}

// Duration renders seconds as H:MM:SS, or M:SS below one hour.
// A nil or zero duration is "Unknown".
func Duration(seconds *float64) string {
	v := ptr.Deref(seconds)
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return "Unknown"
	}

	total := int64(math.Floor(v))
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}

	return fmt.Sprintf("%d:%02d", minutes, secs)
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FileSize renders a byte count using 1024-based units up to GB.
func FileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	const k = 1024

	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(k)))
	i = min(i, len(sizeUnits)-1)

	v := float64(bytes) / math.Pow(k, float64(i))

	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizeUnits[i]
}
