// Package format holds the human-readable rendering helpers shared by the
// bot handlers: byte sizes, durations, speeds and the ten-cell progress bar.
package format

import (
	"fmt"
	"strings"
	"time"
)

const barCells = 10

func Bytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func Speed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "--"
	}
	return Bytes(int64(bytesPerSec)) + "/s"
}

func Duration(seconds int64) string {
	if seconds <= 0 {
		return "--"
	}
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Bar renders the download progress bar, e.g. "▰▰▰▱▱▱▱▱▱▱ 32.5%".
func Bar(current, total int64) string {
	percent := float64(0)
	filled := 0
	if total > 0 {
		percent = float64(current) * 100 / float64(total)
		filled = int(float64(barCells) * float64(current) / float64(total))
		if filled > barCells {
			filled = barCells
		}
	}
	bar := strings.Repeat("▰", filled) + strings.Repeat("▱", barCells-filled)
	return fmt.Sprintf("%s %.1f%%", bar, percent)
}
