package constants

import "time"

const (
	// TimeFormat is the canonical client_start_time layout, ISO-8601 UTC with millisecond precision.
	TimeFormat = "2006-01-02T15:04:05.000Z07:00"

	// PingTable is the table whose shape is streamed back to clients.
	PingTable = "ping"
	// PingResultsTable stores the finalized measurements.
	PingResultsTable = "ping_results"
)

// FormatTime renders t in TimeFormat, always in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
