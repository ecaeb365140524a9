package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edvin/automation/internal/model"
)

// parseClock parses "HH:MM" or "HH:MM:SS" into hour and minute.
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, 0, fmt.Errorf("invalid second in %q", s)
		}
	}
	return hour, minute, nil
}

// mondayIndex numbers weekdays from Monday=0 to Sunday=6.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// ScheduleLocation resolves the schedule's timezone, defaulting to UTC.
func ScheduleLocation(s *model.Schedule) (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// ComputeNextRun returns the next execution instant of the schedule in UTC.
// Wall-clock construction happens in the schedule's timezone.
func ComputeNextRun(s *model.Schedule, now time.Time) (time.Time, error) {
	loc, err := ScheduleLocation(s)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := parseClock(s.StartTime)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	var next time.Time
	switch s.Frequency {
	case model.FrequencyOnce:
		sd := s.StartDate
		next = time.Date(sd.Year(), sd.Month(), sd.Day(), hour, minute, 0, 0, loc)
	case model.FrequencyHourly:
		next = time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), minute, 0, 0, loc)
		if !next.After(local) {
			next = next.Add(time.Hour)
		}
	case model.FrequencyDaily:
		next = today
		if !next.After(local) {
			next = next.AddDate(0, 0, 1)
		}
	case model.FrequencyWeekly:
		// Weekly runs land on the start of the next week (Monday). On a
		// Monday whose start time has already passed, the following week
		// is skipped as well.
		daysAhead := 7 - mondayIndex(local.Weekday())
		if daysAhead == 7 && !today.After(local) {
			daysAhead += 7
		}
		next = today.AddDate(0, 0, daysAhead)
	case model.FrequencyCustom:
		if s.CronExpression == "" {
			next = today.AddDate(0, 0, 1)
			break
		}
		sched, err := cron.ParseStandard(s.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", s.CronExpression, err)
		}
		next = sched.Next(local)
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("cron expression %q has no future occurrence", s.CronExpression)
		}
	case model.FrequencyMonthly, model.FrequencyQuarterly, model.FrequencyYearly:
		// TODO: replace with calendar arithmetic (AddDate by 1/3/12 months
		// clamped to month end) once run-time parity with the legacy
		// scheduler is no longer required.
		next = today.AddDate(0, 0, 1)
	default:
		return time.Time{}, fmt.Errorf("unknown schedule frequency %q", s.Frequency)
	}

	return next.UTC(), nil
}

// PastEndDate reports whether t falls after the schedule's end date, which
// is inclusive of the whole day in the schedule's timezone.
func PastEndDate(s *model.Schedule, t time.Time) bool {
	if s.EndDate == nil {
		return false
	}
	loc, err := ScheduleLocation(s)
	if err != nil {
		loc = time.UTC
	}
	ed := *s.EndDate
	endOfDay := time.Date(ed.Year(), ed.Month(), ed.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return !t.Before(endOfDay)
}
