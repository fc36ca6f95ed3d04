package constants

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	sharederrors "electric-ping/app/src/shared/errors"

	"github.com/google/uuid"
)

// NewPingID returns a fresh random identity for a ping.
func NewPingID() string {
	return uuid.NewString()
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// minEpochMillis rejects integers too small to be a millisecond epoch
// (anything before 2001-09-09), such as a bare year.
const minEpochMillis = 1_000_000_000_000

// ParseTime accepts an ISO-8601 timestamp with or without zone (zoneless
// values are taken as UTC) or a Unix epoch in milliseconds.
func ParseTime(value string) (time.Time, error) {
	return ParseTimeIn(value, time.UTC)
}

// ParseTimeIn is ParseTime with zoneless values read in loc. The result is
// always in UTC.
func ParseTimeIn(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", sharederrors.ErrInvalidTimestamp)
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		if ms < minEpochMillis {
			return time.Time{}, fmt.Errorf("%w: %q is not a millisecond epoch", sharederrors.ErrInvalidTimestamp, value)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", sharederrors.ErrInvalidTimestamp, value)
}
