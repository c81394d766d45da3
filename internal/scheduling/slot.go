package scheduling

import (
	"fmt"
	"time"
)

// Slot is a {start, end} time interval within one calendar date.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two slots share any time. Touching endpoints
// (one slot ending exactly when the other starts) do not overlap.
func (s Slot) Overlaps(o Slot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Date returns the slot's calendar date (start of day, slot location).
func (s Slot) Date() time.Time {
	y, m, d := s.Start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.Start.Location())
}

func (s Slot) String() string {
	return fmt.Sprintf("%s–%s", s.Start.Format("2006-01-02 15:04"), s.End.Format("15:04"))
}

// minutesOfDay converts a time to minutes since midnight.
func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// parseClock parses a "15:04" clock string into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return minutesOfDay(t), nil
}
