package domain

import "time"

// PingRecord is the row written when a ping starts.
type PingRecord struct {
	PingID          string
	ClientStartTime time.Time
}

// PingResult is the normalized set of offsets collected for a single ping.
// Every offset is expressed in milliseconds relative to ClientStartTime.
type PingResult struct {
	PingID               string
	ClientStartTime      time.Time
	RequestSentAt        int64
	ResponseReceivedAt   int64
	PgTimeOffset         int64
	ElectricArriveOffset int64
	ClientEndOffset      int64
}

// Record returns the PingRecord the result extends.
func (r PingResult) Record() PingRecord {
	return PingRecord{PingID: r.PingID, ClientStartTime: r.ClientStartTime}
}

// Frame anchors every measurement of a ping to one instant.
type Frame struct {
	PingID string
	Start  time.Time
}

// OffsetMS returns the signed number of milliseconds between the frame start and t.
func (f Frame) OffsetMS(t time.Time) int64 {
	return t.Sub(f.Start).Milliseconds()
}

// Observation is the outcome of waiting for a ping to arrive on the change feed.
type Observation struct {
	Observed bool
	OffsetMS int64
}

// Err returns ErrNotObserved for an unresolved observation.
func (o Observation) Err() error {
	if o.Observed {
		return nil
	}
	return ErrNotObserved
}

// PendingMeasurements holds what the client gathered before the manual
// arrival timestamp is supplied.
type PendingMeasurements struct {
	Frame              Frame
	RequestSentAt      int64
	ResponseReceivedAt int64
	PgTimeOffset       int64
	DBInsertTime       float64
	Stream             Observation
}

// ChangeMessage is a single row-level event delivered by the shape stream.
type ChangeMessage struct {
	Key       string
	Operation string
	Control   string
	Value     map[string]any
}

const (
	OperationInsert = "insert"
	OperationUpdate = "update"
	OperationDelete = "delete"

	ControlUpToDate    = "up-to-date"
	ControlMustRefetch = "must-refetch"
)

// IsChange reports whether the message carries row data rather than a control signal.
func (m ChangeMessage) IsChange() bool {
	return m.Control == "" && m.Operation != ""
}

// RowID returns the value of the row's id column as a string.
func (m ChangeMessage) RowID() (string, bool) {
	if m.Value == nil {
		return "", false
	}
	id, ok := m.Value["id"].(string)
	return id, ok
}
