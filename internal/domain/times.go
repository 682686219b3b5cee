package domain

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(s))
}

func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ToHHMM normalizes "7:30 PM", "07:30pm" or "19:30" to "19:30".
func ToHHMM(in string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(in))
	for _, layout := range []string{"3:04 PM", "3:04PM", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTime, in)
}

// To12h renders "19:30" as "7:30 PM". Unparseable input is returned as-is.
func To12h(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}

// FormatETA renders a wait as "2m 5s" or "45s".
func FormatETA(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	m, s := secs/60, secs%60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
