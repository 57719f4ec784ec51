package transit

import (
	"fmt"
	"time"
)

// clock returns the current time in the service location.
func (s *Service) clock() time.Time {
	return s.now().In(s.location)
}

// secondsFrom renders now plus secs as a clock time.
func secondsFrom(now time.Time, secs int) string {
	return now.Add(time.Duration(secs) * time.Second).Format(ClockLayout)
}

// parseClock resolves an "HH:MM" board time to the occurrence nearest now.
// Times more than twelve hours in the past roll over to the next day.
func parseClock(now time.Time, hhmm string) (time.Time, bool) {
	t, err := time.ParseInLocation("15:04", hhmm, now.Location())
	if err != nil {
		return time.Time{}, false
	}

	y, m, d := now.Date()
	at := time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, now.Location())
	if at.Before(now.Add(-12 * time.Hour)) {
		at = at.AddDate(0, 0, 1)
	}
	return at, true
}

// minutesText renders a duration as whole minutes.
func minutesText(d time.Duration) string {
	mins := int(d.Round(time.Minute) / time.Minute)
	if mins == 1 {
		return "1 min"
	}
	return fmt.Sprintf("%d mins", mins)
}
