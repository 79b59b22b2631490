package hours

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// Period is a [From, To) window over segment start times
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Preset names accepted by PeriodPreset
const (
	PresetToday   = "today"
	PresetWeek    = "week"
	PresetMonth   = "month"
	PresetQuarter = "quarter"
	PresetYear    = "year"
)

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// PeriodPreset resolves a named period around now, in now's location.
// Weeks start on Monday.
func PeriodPreset(name string, now time.Time) (*Period, error) {
	day := startOfDay(now)
	switch name {
	case PresetToday:
		return &Period{From: day, To: day.AddDate(0, 0, 1)}, nil
	case PresetWeek:
		offset := (int(day.Weekday()) + 6) % 7
		from := day.AddDate(0, 0, -offset)
		return &Period{From: from, To: from.AddDate(0, 0, 7)}, nil
	case PresetMonth:
		from := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return &Period{From: from, To: from.AddDate(0, 1, 0)}, nil
	case PresetQuarter:
		first := time.Month((int(day.Month())-1)/3*3 + 1)
		from := time.Date(day.Year(), first, 1, 0, 0, 0, 0, day.Location())
		return &Period{From: from, To: from.AddDate(0, 3, 0)}, nil
	case PresetYear:
		from := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, day.Location())
		return &Period{From: from, To: from.AddDate(1, 0, 0)}, nil
	default:
		return nil, &pipelineerr.ValidationError{Field: "period", Message: fmt.Sprintf("unknown period %q", name)}
	}
}

// DateRange builds a period covering whole calendar days, both ends
// inclusive. Dates are YYYY-MM-DD; an empty string leaves that side open.
func DateRange(start, end string, loc *time.Location) (*Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	var p Period
	if start != "" {
		t, err := time.ParseInLocation(time.DateOnly, start, loc)
		if err != nil {
			return nil, &pipelineerr.ValidationError{Field: "start_date", Message: "must be YYYY-MM-DD"}
		}
		p.From = t
	}
	if end != "" {
		t, err := time.ParseInLocation(time.DateOnly, end, loc)
		if err != nil {
			return nil, &pipelineerr.ValidationError{Field: "end_date", Message: "must be YYYY-MM-DD"}
		}
		p.To = t.AddDate(0, 0, 1)
	}
	if !p.From.IsZero() && !p.To.IsZero() && !p.From.Before(p.To) {
		return nil, &pipelineerr.ValidationError{Field: "end_date", Message: "must not be before start_date"}
	}
	return &p, nil
}

// FormatSeconds renders a duration as HH:MM:SS; hours may exceed 99
func FormatSeconds(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// FormatHours renders an hour amount for display. Under 36 seconds it falls
// back to minutes, and under 6 seconds to whole seconds.
func FormatHours(hours float64) string {
	if hours < 0.01 {
		minutes := hours * 60
		if minutes < 0.1 {
			return fmt.Sprintf("%d sec", int64(math.Round(hours*3600)))
		}
		return strconv.FormatFloat(math.Round(minutes*10)/10, 'f', -1, 64) + " min"
	}
	s := strconv.FormatFloat(math.Round(hours*10000)/10000, 'f', 4, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + " hrs"
}

// SecondsToHours converts seconds to hours rounded to two decimals
func SecondsToHours(seconds int64) float64 {
	return round2(float64(seconds) / 3600)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
