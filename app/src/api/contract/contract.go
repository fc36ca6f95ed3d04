// Package contract holds the JSON bodies exchanged between the ping client
// and the recorder endpoints.
package contract

import (
	"strings"
	"time"

	"electric-ping/app/src/domain"
	"electric-ping/app/src/shared/constants"
)

const (
	PathPing           = "/v1/ping"
	PathPingResult     = "/v1/ping-result"
	PathIncompletePing = "/v1/pings/incomplete"
	PathShapeProxy     = "/shape-proxy/ping"
)

type PingRequest struct {
	PingID          string `json:"ping_id"`
	ClientStartTime string `json:"client_start_time"`
}

// PingResultRequest uses pointers so that a missing offset can be told apart from zero.
type PingResultRequest struct {
	PingID               string `json:"ping_id"`
	ClientStartTime      string `json:"client_start_time"`
	RequestSentAt        *int64 `json:"request_sent_at"`
	ResponseReceivedAt   *int64 `json:"response_received_at"`
	PgTimeOffset         *int64 `json:"pg_time_offset"`
	ElectricArriveOffset *int64 `json:"electric_arrive_offset"`
	ClientEndOffset      *int64 `json:"client_end_offset"`
}

type InsertResponse struct {
	DBInsertTime float64 `json:"db_insert_time"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type IncompletePing struct {
	PingID          string `json:"ping_id"`
	ClientStartTime string `json:"client_start_time"`
}

func NewPingRequest(record domain.PingRecord) PingRequest {
	return PingRequest{
		PingID:          record.PingID,
		ClientStartTime: constants.FormatTime(record.ClientStartTime),
	}
}

// Record validates the request and converts it to a PingRecord.
func (r PingRequest) Record() (domain.PingRecord, error) {
	id := r.PingID
	if strings.TrimSpace(id) == "" {
		return domain.PingRecord{}, domain.NewValidationError("ping_id", "is required")
	}
	if id != strings.TrimSpace(id) {
		return domain.PingRecord{}, domain.NewValidationError("ping_id", "must not have surrounding whitespace")
	}
	start, err := parseStart(r.ClientStartTime)
	if err != nil {
		return domain.PingRecord{}, err
	}
	return domain.PingRecord{PingID: id, ClientStartTime: start}, nil
}

func NewPingResultRequest(result domain.PingResult) PingResultRequest {
	return PingResultRequest{
		PingID:               result.PingID,
		ClientStartTime:      constants.FormatTime(result.ClientStartTime),
		RequestSentAt:        int64Ptr(result.RequestSentAt),
		ResponseReceivedAt:   int64Ptr(result.ResponseReceivedAt),
		PgTimeOffset:         int64Ptr(result.PgTimeOffset),
		ElectricArriveOffset: int64Ptr(result.ElectricArriveOffset),
		ClientEndOffset:      int64Ptr(result.ClientEndOffset),
	}
}

// Result validates the request and converts it to a PingResult.
func (r PingResultRequest) Result() (domain.PingResult, error) {
	record, err := PingRequest{PingID: r.PingID, ClientStartTime: r.ClientStartTime}.Record()
	if err != nil {
		return domain.PingResult{}, err
	}

	fields := []struct {
		name  string
		value *int64
	}{
		{"request_sent_at", r.RequestSentAt},
		{"response_received_at", r.ResponseReceivedAt},
		{"pg_time_offset", r.PgTimeOffset},
		{"electric_arrive_offset", r.ElectricArriveOffset},
		{"client_end_offset", r.ClientEndOffset},
	}
	for _, f := range fields {
		if f.value == nil {
			return domain.PingResult{}, domain.NewValidationError(f.name, "is required")
		}
	}

	return domain.PingResult{
		PingID:               record.PingID,
		ClientStartTime:      record.ClientStartTime,
		RequestSentAt:        *r.RequestSentAt,
		ResponseReceivedAt:   *r.ResponseReceivedAt,
		PgTimeOffset:         *r.PgTimeOffset,
		ElectricArriveOffset: *r.ElectricArriveOffset,
		ClientEndOffset:      *r.ClientEndOffset,
	}, nil
}

func NewIncompletePings(records []domain.PingRecord) []IncompletePing {
	out := make([]IncompletePing, len(records))
	for i, record := range records {
		out[i] = IncompletePing{PingID: record.PingID, ClientStartTime: constants.FormatTime(record.ClientStartTime)}
	}
	return out
}

// Record converts the listing entry back to a PingRecord.
func (p IncompletePing) Record() (domain.PingRecord, error) {
	return PingRequest(p).Record()
}

func parseStart(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, domain.NewValidationError("client_start_time", "is required")
	}
	start, err := constants.ParseTime(value)
	if err != nil {
		return time.Time{}, domain.NewValidationError("client_start_time", err.Error())
	}
	return start, nil
}

func int64Ptr(v int64) *int64 {
	return &v
}
