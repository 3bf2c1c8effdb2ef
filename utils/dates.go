package utils

import (
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

var indonesianDays = map[time.Weekday]string{
	time.Sunday:    "minggu",
	time.Monday:    "senin",
	time.Tuesday:   "selasa",
	time.Wednesday: "rabu",
	time.Thursday:  "kamis",
	time.Friday:    "jumat",
	time.Saturday:  "sabtu",
}

var dayLabels = map[string]string{
	"senin":  "Senin",
	"selasa": "Selasa",
	"rabu":   "Rabu",
	"kamis":  "Kamis",
	"jumat":  "Jumat",
	"sabtu":  "Sabtu",
	"minggu": "Minggu",
}

var dayIcons = map[string]string{
	"senin":  "🌟",
	"selasa": "⭐",
	"rabu":   "💫",
	"kamis":  "✨",
	"jumat":  "🌙",
}

// DayName maps a weekday to its lowercase Indonesian name.
func DayName(w time.Weekday) string {
	return indonesianDays[w]
}

// DayLabel capitalises an Indonesian day key; unknown keys are returned as is.
func DayLabel(day string) string {
	if l, ok := dayLabels[day]; ok {
		return l
	}
	return day
}

// DayIcon returns the emoji used for a piket day in chat messages.
func DayIcon(day string) string {
	if i, ok := dayIcons[day]; ok {
		return i
	}
	return "📅"
}

// IsWeekend reports whether an Indonesian day key is sabtu or minggu.
func IsWeekend(day string) bool {
	return day == "sabtu" || day == "minggu"
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay is the last nanosecond of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfMonth truncates t to the first of its month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// ParseDate reads Y-m-d in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// FormatDate turns a Y-m-d string into d/m/Y. Unparseable input is
// returned unchanged.
func FormatDate(ymd string) string {
	t, err := time.Parse(DateLayout, ymd)
	if err != nil {
		return ymd
	}
	return t.Format("02/01/2006")
}
