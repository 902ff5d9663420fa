package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDueDateAfter(t *testing.T) {
	day := func(s string) time.Time {
		d, err := time.Parse(DateLayout, s)
		if err != nil {
			t.Fatalf("bad date %q: %v", s, err)
		}
		return d
	}

	tests := []struct {
		name      string
		current   string
		frequency string
		want      string
	}{
		{"weekly", "2026-01-01", FrequencyWeekly, "2026-01-08"},
		{"weekly across month boundary", "2026-01-28", FrequencyWeekly, "2026-02-04"},
		{"monthly", "2026-03-15", FrequencyMonthly, "2026-04-15"},
		{"monthly clamps jan 31 to feb 28", "2026-01-31", FrequencyMonthly, "2026-02-28"},
		{"monthly clamps jan 31 to feb 29 in leap year", "2028-01-31", FrequencyMonthly, "2028-02-29"},
		{"monthly clamps mar 31 to apr 30", "2026-03-31", FrequencyMonthly, "2026-04-30"},
		{"monthly from feb 28 keeps the day", "2026-02-28", FrequencyMonthly, "2026-03-28"},
		{"quarterly", "2026-01-15", FrequencyQuarterly, "2026-04-15"},
		{"quarterly clamps nov 30 to feb 28", "2025-11-30", FrequencyQuarterly, "2026-02-28"},
		{"yearly", "2026-06-01", FrequencyYearly, "2027-06-01"},
		{"yearly clamps leap day", "2028-02-29", FrequencyYearly, "2029-02-28"},
		{"unknown frequency is a no-op", "2026-01-01", "DAILY", "2026-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDueDateAfter(day(tt.current), tt.frequency)
			assert.Equal(t, day(tt.want), got)
		})
	}
}
