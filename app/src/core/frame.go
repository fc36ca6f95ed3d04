package core

import (
	"time"

	"electric-ping/app/src/domain"
	"electric-ping/app/src/shared/constants"
)

// BeginPing allocates a fresh identity and captures the reference instant in
// one step. The instant is truncated to milliseconds so the serialized
// client_start_time and the in-memory anchor are the same value.
func BeginPing(clock domain.Clock) domain.Frame {
	if clock == nil {
		clock = time.Now
	}
	return domain.Frame{
		PingID: constants.NewPingID(),
		Start:  clock().UTC().Truncate(time.Millisecond),
	}
}

// PgTimeOffset estimates when the insert committed, relative to the frame
// start. The request/response transit not spent inside the database is split
// evenly between the two directions, and the estimate never leaves the
// [requestSentAt, responseReceivedAt] window.
func PgTimeOffset(requestSentAt, responseReceivedAt int64, dbInsertTime float64) int64 {
	if responseReceivedAt < requestSentAt {
		return requestSentAt
	}

	insert := int64(dbInsertTime + 0.5)
	if insert < 0 {
		insert = 0
	}
	transit := responseReceivedAt - requestSentAt - insert
	if transit < 0 {
		transit = 0
	}

	offset := requestSentAt + transit/2 + insert
	if offset > responseReceivedAt {
		offset = responseReceivedAt
	}
	return offset
}
