// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Each field accepts *, n, n-m, lists (a,b,c) and steps (*/n, n-m/s, n/s).
// Day of week runs 0-7 with both 0 and 7 meaning Sunday. When day of month
// and day of week are both restricted, a day matching either one matches.
type Schedule struct {
	expr string

	minute, hour, dom, month, dow uint64

	domAny, dowAny bool
}

// ErrNoNextRun is returned when a schedule never fires again within the
// search horizon, for example "0 0 30 2 *".
var ErrNoNextRun = fmt.Errorf("cron schedule has no run within %d years", searchYears)

const searchYears = 5

type fieldSpec struct {
	name     string
	min, max int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// ParseSchedule parses a 5-field cron expression.
//
//	"0 3 * * *"     daily at 03:00
//	"*/15 * * * *"  every 15 minutes
//	"0 9 * * 1-5"   weekdays at 09:00
func ParseSchedule(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var sets [5]uint64
	for i, f := range fields {
		bits, err := parseField(f, fieldSpecs[i].min, fieldSpecs[i].max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field %q: %w", fieldSpecs[i].name, f, err)
		}
		sets[i] = bits
	}

	dow := sets[4]
	if dow&(1<<7) != 0 {
		dow = dow&^(1<<7) | 1
	}

	return &Schedule{
		expr:   strings.Join(fields, " "),
		minute: sets[0],
		hour:   sets[1],
		dom:    sets[2],
		month:  sets[3],
		dow:    dow,
		domAny: fields[2] == "*",
		dowAny: fields[4] == "*",
	}, nil
}

// MustParseSchedule is ParseSchedule for expressions known to be valid.
func MustParseSchedule(expr string) *Schedule {
	s, err := ParseSchedule(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the normalized expression.
func (s *Schedule) String() string { return s.expr }

// Next returns the first matching minute strictly after t, evaluated in loc
// (UTC when nil).
func (s *Schedule) Next(t time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(searchYears, 0, 0)

	for t.Before(limit) {
		if !has(s.month, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !has(s.hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !has(s.minute, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}
	return time.Time{}, ErrNoNextRun
}

func (s *Schedule) dayMatches(t time.Time) bool {
	domOK := has(s.dom, t.Day())
	dowOK := has(s.dow, int(t.Weekday()))
	switch {
	case s.domAny && s.dowAny:
		return true
	case s.domAny:
		return dowOK
	case s.dowAny:
		return domOK
	default:
		return domOK || dowOK
	}
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

func parseField(field string, minVal, maxVal int) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		bits, err := parsePart(part, minVal, maxVal)
		if err != nil {
			return 0, err
		}
		set |= bits
	}
	return set, nil
}

func parsePart(part string, minVal, maxVal int) (uint64, error) {
	if part == "" {
		return 0, fmt.Errorf("empty list element")
	}

	rangePart, stepPart, stepped := strings.Cut(part, "/")
	step := 1
	if stepped {
		n, err := strconv.Atoi(stepPart)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid step %q", stepPart)
		}
		step = n
	}

	lo, hi := minVal, maxVal
	switch {
	case rangePart == "*":
	case strings.Contains(rangePart, "-"):
		a, b, _ := strings.Cut(rangePart, "-")
		var err error
		if lo, err = bound(a, minVal, maxVal); err != nil {
			return 0, err
		}
		if hi, err = bound(b, minVal, maxVal); err != nil {
			return 0, err
		}
		if lo > hi {
			return 0, fmt.Errorf("range %d-%d is reversed", lo, hi)
		}
	default:
		v, err := bound(rangePart, minVal, maxVal)
		if err != nil {
			return 0, err
		}
		lo = v
		if !stepped {
			hi = v
		}
	}

	var set uint64
	for v := lo; v <= hi; v += step {
		set |= 1 << uint(v)
	}
	return set, nil
}

func bound(s string, minVal, maxVal int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < minVal || v > maxVal {
		return 0, fmt.Errorf("value %d out of range %d-%d", v, minVal, maxVal)
	}
	return v, nil
}

// NextRun parses expr and returns its first run after t in the named time
// zone. An empty timezone means UTC.
func NextRun(expr string, t time.Time, timezone string) (time.Time, error) {
	s, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	loc := time.UTC
	if timezone != "" {
		if loc, err = time.LoadLocation(timezone); err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}
	next, err := s.Next(t, loc)
	if err != nil {
		return time.Time{}, err
	}
	return next.UTC(), nil
}
