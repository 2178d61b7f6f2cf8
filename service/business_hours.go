package service

import (
	"casewatch/config"
	"fmt"
	"time"
)

// BusinessHoursPolicy measures elapsed minutes between two instants
type BusinessHoursPolicy interface {
	ElapsedMinutes(from, to time.Time) int
}

// WallClockPolicy counts every minute. Result is integer-truncated and never negative.
type WallClockPolicy struct{}

// ElapsedMinutes returns whole minutes from from to to
func (WallClockPolicy) ElapsedMinutes(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}

// BusinessCalendar counts only minutes inside the daily working window on working days,
// skipping holidays. Days are evaluated in Location.
type BusinessCalendar struct {
	Location    *time.Location
	StartMinute int // minutes after midnight
	EndMinute   int
	Days        map[time.Weekday]bool
	Holidays    map[string]bool // YYYY-MM-DD in Location
}

// DefaultBusinessCalendar is Monday to Friday 08:00-17:00 UTC with no holidays
func DefaultBusinessCalendar() *BusinessCalendar {
	return &BusinessCalendar{
		Location:    time.UTC,
		StartMinute: 8 * 60,
		EndMinute:   17 * 60,
		Days: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
		Holidays: map[string]bool{},
	}
}

// NewBusinessCalendar builds a calendar from configuration
func NewBusinessCalendar(cfg config.BusinessHoursConfig) (*BusinessCalendar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid business hours: %w", err)
	}
	loc, _ := time.LoadLocation(cfg.Timezone)
	start, _ := config.ParseClock(cfg.Start)
	end, _ := config.ParseClock(cfg.End)

	cal := &BusinessCalendar{
		Location:    loc,
		StartMinute: start,
		EndMinute:   end,
		Days:        make(map[time.Weekday]bool, len(cfg.Days)),
		Holidays:    make(map[string]bool, len(cfg.Holidays)),
	}
	for _, d := range cfg.Days {
		wd, _ := config.ParseWeekday(d)
		cal.Days[wd] = true
	}
	for _, h := range cfg.Holidays {
		cal.Holidays[h] = true
	}
	return cal, nil
}

func (c *BusinessCalendar) isWorkingDay(day time.Time) bool {
	return c.Days[day.Weekday()] && !c.Holidays[day.Format("2006-01-02")]
}

// ElapsedMinutes returns whole business minutes between from and to
func (c *BusinessCalendar) ElapsedMinutes(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	from = from.In(c.Location)
	to = to.In(c.Location)

	var total time.Duration
	y, m, d := from.Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, c.Location); day.Before(to); {
		if c.isWorkingDay(day) {
			windowStart := time.Date(day.Year(), day.Month(), day.Day(), c.StartMinute/60, c.StartMinute%60, 0, 0, c.Location)
			windowEnd := time.Date(day.Year(), day.Month(), day.Day(), c.EndMinute/60, c.EndMinute%60, 0, 0, c.Location)
			start := laterOf(windowStart, from)
			end := earlierOf(windowEnd, to)
			if end.After(start) {
				total += end.Sub(start)
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, c.Location)
	}
	return int(total / time.Minute)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
