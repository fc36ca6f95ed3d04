package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"electric-ping/app/src/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedResponse struct {
	status  int
	headers map[string]string
	body    string
}

// scriptedShape answers requests with the scripted responses in order and
// then holds further long-polls until the client goes away.
type scriptedShape struct {
	mu        sync.Mutex
	responses []scriptedResponse
	queries   []url.Values
}

func (s *scriptedShape) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.queries = append(s.queries, r.URL.Query())
	idx := len(s.queries) - 1
	s.mu.Unlock()

	if idx >= len(s.responses) {
		<-r.Context().Done()
		return
	}

	resp := s.responses[idx]
	for k, v := range resp.headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (s *scriptedShape) recorded() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.queries...)
}

func collect(t *testing.T, shape *scriptedShape, want int) ([][]domain.ChangeMessage, error) {
	t.Helper()
	server := httptest.NewServer(shape)
	defer server.Close()

	stream, err := New(Config{URL: server.URL + "/v1/shape", Table: "ping", MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var batches [][]domain.ChangeMessage
	err = stream.Subscribe(ctx, func(batch []domain.ChangeMessage) {
		batches = append(batches, batch)
		if len(batches) == want {
			cancel()
		}
	})
	return batches, err
}

func TestShapeStreamFollowsOffsetsIntoLiveMode(t *testing.T) {
	shape := &scriptedShape{responses: []scriptedResponse{
		{
			status:  http.StatusOK,
			headers: map[string]string{headerHandle: "h-1", headerOffset: "0_0", headerCursor: "c-1"},
			body: `[{"key":"\"public\".\"ping\"/\"p-0\"","value":{"id":"p-0"},"headers":{"operation":"insert"}},
				{"headers":{"control":"up-to-date"}}]`,
		},
		{
			status:  http.StatusOK,
			headers: map[string]string{headerHandle: "h-1", headerOffset: "1_0", headerCursor: "c-2"},
			body:    `[{"key":"k","value":{"id":"p-1"},"headers":{"operation":"insert"}},{"headers":{"control":"up-to-date"}}]`,
		},
	}}

	t.Log("Шаг 1: читаем начальный снимок и первую live-порцию")
	batches, err := collect(t, shape, 2)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, batches, 2)

	first := batches[0]
	require.Len(t, first, 2)
	assert.Equal(t, domain.OperationInsert, first[0].Operation)
	id, ok := first[0].RowID()
	assert.True(t, ok)
	assert.Equal(t, "p-0", id)
	assert.Equal(t, domain.ControlUpToDate, first[1].Control)
	assert.False(t, first[1].IsChange())

	t.Log("Шаг 2: проверяем параметры запросов")
	queries := shape.recorded()
	require.GreaterOrEqual(t, len(queries), 2)
	assert.Equal(t, "ping", queries[0].Get("table"))
	assert.Equal(t, "-1", queries[0].Get("offset"))
	assert.Empty(t, queries[0].Get("handle"))
	assert.Empty(t, queries[0].Get("live"))

	assert.Equal(t, "0_0", queries[1].Get("offset"))
	assert.Equal(t, "h-1", queries[1].Get("handle"))
	assert.Equal(t, "true", queries[1].Get("live"))
	assert.Equal(t, "c-1", queries[1].Get("cursor"))
}

func TestShapeStreamRestartsOnConflict(t *testing.T) {
	shape := &scriptedShape{responses: []scriptedResponse{
		{status: http.StatusOK, headers: map[string]string{headerHandle: "h-1", headerOffset: "0_0"}, body: `[]`},
		{status: http.StatusConflict, body: `{"message":"shape rotated"}`},
		{
			status:  http.StatusOK,
			headers: map[string]string{headerHandle: "h-2", headerOffset: "0_0"},
			body:    `[{"key":"k","value":{"id":"p-1"},"headers":{"operation":"insert"}}]`,
		},
	}}

	batches, err := collect(t, shape, 2)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, batches, 2)
	assert.Equal(t, domain.ControlMustRefetch, batches[0][0].Control)

	queries := shape.recorded()
	require.GreaterOrEqual(t, len(queries), 3)
	assert.Equal(t, "h-1", queries[1].Get("handle"))
	assert.Equal(t, "-1", queries[2].Get("offset"))
	assert.Empty(t, queries[2].Get("handle"))
}

func TestShapeStreamRetriesServerErrors(t *testing.T) {
	shape := &scriptedShape{responses: []scriptedResponse{
		{status: http.StatusServiceUnavailable, body: `busy`},
		{status: http.StatusBadGateway, body: `bad gateway`},
		{
			status:  http.StatusOK,
			headers: map[string]string{headerHandle: "h-1", headerOffset: "0_0"},
			body:    `[{"key":"k","value":{"id":"p-1"},"headers":{"operation":"insert"}}]`,
		},
	}}

	batches, err := collect(t, shape, 1)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, batches, 1)

	queries := shape.recorded()
	require.GreaterOrEqual(t, len(queries), 3)
	assert.Equal(t, "-1", queries[2].Get("offset"))
}

func TestShapeStreamStopsOnClientError(t *testing.T) {
	shape := &scriptedShape{responses: []scriptedResponse{
		{status: http.StatusUnauthorized, body: `{"message":"invalid token"}`},
	}}

	batches, err := collect(t, shape, 1)
	require.Error(t, err)
	assert.Empty(t, batches)

	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestShapeStreamSkipsEmptyBatches(t *testing.T) {
	shape := &scriptedShape{responses: []scriptedResponse{
		{status: http.StatusOK, headers: map[string]string{headerHandle: "h-1", headerOffset: "0_0"}, body: `[]`},
		{status: http.StatusNoContent, headers: map[string]string{headerOffset: "0_1"}},
		{
			status:  http.StatusOK,
			headers: map[string]string{headerOffset: "1_0"},
			body:    `[{"key":"k","value":{"id":"p-1"},"headers":{"operation":"update"}}]`,
		},
	}}

	batches, err := collect(t, shape, 1)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, batches, 1)
	assert.Equal(t, domain.OperationUpdate, batches[0][0].Operation)

	queries := shape.recorded()
	require.GreaterOrEqual(t, len(queries), 3)
	assert.Equal(t, "0_1", queries[2].Get("offset"))
	assert.Equal(t, "h-1", queries[2].Get("handle"))
}

func TestNewValidatesURL(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	_, err = New(Config{URL: "ftp://example.com/shape"}, nil)
	assert.Error(t, err)

	_, err = New(Config{URL: "http://example.com/v1/shape", MinBackoff: time.Second, MaxBackoff: time.Millisecond}, nil)
	assert.NoError(t, err)
}
