package schedule

import (
	"fmt"
	"strings"
	"time"

	"registration-verifier/internal/config"
)

// Window is one configured cadence: the days and clock range it covers and
// the batch interval that applies while it is active. Ranges that wrap
// midnight (e.g. 18:00-08:00) cover the evening of a listed day and the
// following early morning.
type Window struct {
	Name     string
	Days     [7]bool // indexed by time.Weekday
	StartMin int     // minutes since midnight, inclusive
	EndMin   int     // minutes since midnight, exclusive; 1440 = end of day
	Interval time.Duration
}

// Scheduler picks the active cadence window for a wall-clock instant. It is
// pure: all decisions derive from the injected time and the parsed windows.
type Scheduler struct {
	loc      *time.Location
	business Window
	offHours Window
	weekend  Window
	smart    bool
}

var dayNames = map[string]time.Weekday{
	"SUN": time.Sunday, "MON": time.Monday, "TUE": time.Tuesday, "WED": time.Wednesday,
	"THU": time.Thursday, "FRI": time.Friday, "SAT": time.Saturday,
}

// New parses the configured window expressions. Malformed expressions are a
// configuration error and must abort startup.
func New(cfg config.Config) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	business, err := ParseWindow("business-hours", cfg.BusinessHoursWindow, cfg.BusinessHoursInterval)
	if err != nil {
		return nil, err
	}
	offHours, err := ParseWindow("off-hours", cfg.OffHoursWindow, cfg.OffHoursInterval)
	if err != nil {
		return nil, err
	}
	weekend, err := ParseWindow("weekend", cfg.WeekendWindow, cfg.WeekendInterval)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		loc:      loc,
		business: business,
		offHours: offHours,
		weekend:  weekend,
		smart:    cfg.SmartScheduling,
	}, nil
}

// ParseWindow parses an expression of the form "MON-FRI 08:00-18:00" or
// "SAT,SUN 00:00-24:00" into a Window.
func ParseWindow(name, expr string, interval time.Duration) (Window, error) {
	w := Window{Name: name, Interval: interval}
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 2 {
		return w, fmt.Errorf("window %s: expected \"DAYS HH:MM-HH:MM\", got %q", name, expr)
	}
	if err := parseDays(fields[0], &w.Days); err != nil {
		return w, fmt.Errorf("window %s: %w", name, err)
	}
	start, end, ok := strings.Cut(fields[1], "-")
	if !ok {
		return w, fmt.Errorf("window %s: bad time range %q", name, fields[1])
	}
	var err error
	if w.StartMin, err = parseClock(start); err != nil {
		return w, fmt.Errorf("window %s: %w", name, err)
	}
	if w.EndMin, err = parseClock(end); err != nil {
		return w, fmt.Errorf("window %s: %w", name, err)
	}
	if w.StartMin == w.EndMin {
		return w, fmt.Errorf("window %s: empty time range %q", name, fields[1])
	}
	return w, nil
}

func parseDays(expr string, days *[7]bool) error {
	if from, to, ok := strings.Cut(expr, "-"); ok {
		start, okFrom := dayNames[from]
		end, okTo := dayNames[to]
		if !okFrom || !okTo {
			return fmt.Errorf("unknown day in range %q", expr)
		}
		for d := start; ; d = (d + 1) % 7 {
			days[d] = true
			if d == end {
				return nil
			}
		}
	}
	for _, tok := range strings.Split(expr, ",") {
		d, ok := dayNames[strings.TrimSpace(tok)]
		if !ok {
			return fmt.Errorf("unknown day %q", tok)
		}
		days[d] = true
	}
	return nil
}

func parseClock(s string) (int, error) {
	if s == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// contains reports whether the window covers the given local instant.
func (w Window) contains(day time.Weekday, minute int) bool {
	if w.StartMin < w.EndMin {
		return w.Days[day] && minute >= w.StartMin && minute < w.EndMin
	}
	// Wrapping range: the tail before EndMin belongs to the previous day's
	// window.
	if w.Days[day] && minute >= w.StartMin {
		return true
	}
	prev := (day + 6) % 7
	return w.Days[prev] && minute < w.EndMin
}

// CurrentCadence returns the active window for now. Exactly one window is
// active for any instant: business hours wins over off hours, off hours over
// weekend, and weekend is the fallback when neither matches.
func (s *Scheduler) CurrentCadence(now time.Time) Window {
	local := now.In(s.loc)
	day := local.Weekday()
	minute := local.Hour()*60 + local.Minute()

	if s.business.contains(day, minute) {
		return s.business
	}
	if s.offHours.contains(day, minute) {
		return s.offHours
	}
	return s.weekend
}

// NextRunDelay returns how long the batch loop should wait before its next
// run. With smart scheduling disabled it always uses the business-hours
// interval.
func (s *Scheduler) NextRunDelay(now time.Time) time.Duration {
	if !s.smart {
		return s.business.Interval
	}
	return s.CurrentCadence(now).Interval
}
