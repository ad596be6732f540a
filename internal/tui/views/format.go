package views

import (
	"fmt"
	"strings"
	"time"
)

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02 15:04")
}

func formatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int(km*1000+0.5))
	}
	return fmt.Sprintf("%.1f km", km)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
