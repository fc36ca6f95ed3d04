package contract

import (
	"encoding/json"
	"testing"
	"time"

	"electric-ping/app/src/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingRequestRoundTrip(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 123000000, time.UTC)
	req := NewPingRequest(domain.PingRecord{PingID: "p-1", ClientStartTime: start})
	assert.Equal(t, "2024-05-01T12:00:00.123Z", req.ClientStartTime)

	record, err := req.Record()
	require.NoError(t, err)
	assert.Equal(t, "p-1", record.PingID)
	assert.True(t, start.Equal(record.ClientStartTime))
}

func TestPingRequestValidation(t *testing.T) {
	_, err := PingRequest{ClientStartTime: "2024-05-01T12:00:00.000Z"}.Record()
	assert.True(t, domain.IsValidation(err))

	_, err = PingRequest{PingID: "p-1"}.Record()
	assert.True(t, domain.IsValidation(err))

	_, err = PingRequest{PingID: "p-1", ClientStartTime: "not a time"}.Record()
	assert.True(t, domain.IsValidation(err))
}

func TestPingRequestRejectsPaddedID(t *testing.T) {
	for _, id := range []string{" x", "x ", "\tx", "x\n"} {
		_, err := PingRequest{PingID: id, ClientStartTime: "2024-05-01T12:00:00.000Z"}.Record()
		var validation *domain.ValidationError
		require.ErrorAs(t, err, &validation, "%q", id)
		assert.Equal(t, "ping_id", validation.Field)
	}

	_, err := PingResultRequest{PingID: " x", ClientStartTime: "2024-05-01T12:00:00.000Z"}.Result()
	assert.True(t, domain.IsValidation(err))
}

func TestPingResultRequestRequiresEveryOffset(t *testing.T) {
	body := `{"ping_id":"p-1","client_start_time":"2024-05-01T12:00:00.000Z",
		"request_sent_at":0,"response_received_at":50,"pg_time_offset":31,"electric_arrive_offset":5000}`

	var req PingResultRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	_, err := req.Result()
	require.Error(t, err)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "client_end_offset", validation.Field)
}

func TestPingResultRequestConversion(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	result := domain.PingResult{
		PingID:               "p-1",
		ClientStartTime:      start,
		RequestSentAt:        0,
		ResponseReceivedAt:   50,
		PgTimeOffset:         31,
		ElectricArriveOffset: 5000,
		ClientEndOffset:      6000,
	}

	payload, err := json.Marshal(NewPingResultRequest(result))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ping_id":"p-1","client_start_time":"2024-05-01T12:00:00.000Z",
		"request_sent_at":0,"response_received_at":50,"pg_time_offset":31,
		"electric_arrive_offset":5000,"client_end_offset":6000}`, string(payload))

	var decoded PingResultRequest
	require.NoError(t, json.Unmarshal(payload, &decoded))
	got, err := decoded.Result()
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestIncompletePings(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	list := NewIncompletePings([]domain.PingRecord{{PingID: "p-1", ClientStartTime: start}})
	require.Len(t, list, 1)
	assert.Equal(t, "2024-05-01T12:00:00.000Z", list[0].ClientStartTime)

	record, err := list[0].Record()
	require.NoError(t, err)
	assert.True(t, start.Equal(record.ClientStartTime))
}
