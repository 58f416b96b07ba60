package moderation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxDuration caps temporary bans.
const MaxDuration = 366 * 24 * time.Hour

var unitDurations = map[string]time.Duration{
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseDuration reads a ban length as a count and a unit ("10", "m") or, when
// unit is empty, as one token such as "90m", "2h30m" or "3d".
func ParseDuration(value, unit string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	unit = strings.ToLower(strings.TrimSpace(unit))

	if unit == "" {
		if n, ok := strings.CutSuffix(strings.ToLower(value), "d"); ok {
			if _, err := strconv.Atoi(n); err == nil {
				return ParseDuration(n, "d")
			}
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid duration %q (try 10 m, 2 h or 1 d)", ErrBadInput, value)
		}
		return checkDuration(d)
	}

	per, ok := unitDurations[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q (use m, h or d)", ErrBadInput, unit)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: duration must be a positive whole number, got %q", ErrBadInput, value)
	}
	if n > int64(MaxDuration/per) {
		return 0, fmt.Errorf("%w: duration longer than %s", ErrBadInput, FormatDuration(MaxDuration))
	}
	return time.Duration(n) * per, nil
}

func checkDuration(d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, fmt.Errorf("%w: duration must be positive", ErrBadInput)
	}
	if d > MaxDuration {
		return 0, fmt.Errorf("%w: duration longer than %s", ErrBadInput, FormatDuration(MaxDuration))
	}
	return d, nil
}

// ParseSubjectID strips mention decoration ("<@!123>", "<@123>", "@123") and
// requires a numeric user id.
func ParseSubjectID(raw string) (string, error) {
	id := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '@', '!':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if id == "" {
		return "", fmt.Errorf("%w: empty user id", ErrBadInput)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q is not a user id", ErrBadInput, raw)
		}
	}
	return id, nil
}

// SplitIDs splits a whitespace or comma separated id list.
func SplitIDs(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}

// FormatDuration renders d compactly ("1d2h", "45m", "30s").
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	d = d.Round(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd", days)
	}
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	return b.String()
}
