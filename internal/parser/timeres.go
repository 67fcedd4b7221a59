package parser

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	dateWidth = 6
	// timestampLayout reads DDMMYY followed by HHMM
	timestampLayout = "0201061504"
)

var timePattern = regexp.MustCompile(`\d{4}`)

var errDateOutOfRange = errors.New("date column out of range")

// findTime claims the first HHMM run in the unclaimed text
func findTime(line string, used consumed) (string, consumed, bool) {
	view := used.mask(line)
	loc := timePattern.FindStringIndex(view)
	if loc == nil {
		return "", used, false
	}
	return view[loc[0]:loc[1]], used.with(loc[0], loc[1]), true
}

// timestamp combines the fixed-column date of line with an HHMM token
func (f Feed) timestamp(line, hhmm string) (time.Time, error) {
	end := f.DateOffset + dateWidth
	if f.DateOffset < 0 || end > len(line) {
		return time.Time{}, errDateOutOfRange
	}
	t, err := time.ParseInLocation(timestampLayout, line[f.DateOffset:end]+hhmm, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", line[f.DateOffset:end]+hhmm, err)
	}
	return t, nil
}
