package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule computes the next run strictly after from.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

type dailySchedule struct {
	hour   int
	minute int
	loc    *time.Location
}

func (s dailySchedule) Next(from time.Time) time.Time {
	local := from.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d %s", s.hour, s.minute, s.loc)
}

func Every(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// DailyAt fires once a day at hour:minute wall-clock time in loc, so a run
// pinned to 02:00 stays at 02:00 across daylight saving changes.
func DailyAt(hour, minute int, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return dailySchedule{hour: hour, minute: minute, loc: loc}
}

// ParseDaily parses "HH:MM" into a DailyAt schedule.
func ParseDaily(clock string, loc *time.Location) (Schedule, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(clock), ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClock, clock)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClock, clock)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClock, clock)
	}
	return DailyAt(hour, minute, loc), nil
}
