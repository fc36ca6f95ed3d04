//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	httpapi "electric-ping/app/src/api/http"
	"electric-ping/app/src/client"
	"electric-ping/app/src/core"
	"electric-ping/app/src/database"
	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderOverPostgres(t *testing.T) {
	ctx := context.Background()
	logger := infra.NewLogger(testWriter{t}, "integration")

	t.Log("Шаг 1: поднимаем репозиторий с миграциями")
	cfg := infra.Config{
		DatabaseDriver: "pgx",
		DatabaseDSN:    runPostgres(t),
		MigrationsDir:  migrationsDir(t),
	}
	repo, cleanup, err := database.SetupRepository(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	server := httptest.NewServer(httpapi.NewServer(core.NewRecorder(repo, logger), nil, logger))
	t.Cleanup(server.Close)

	api, err := client.New(server.URL, nil, logger)
	require.NoError(t, err)

	t.Log("Шаг 2: регистрируем пинг через HTTP")
	record := domain.PingRecord{PingID: uuid.NewString(), ClientStartTime: time.Now().UTC().Truncate(time.Millisecond)}
	insertTime, err := api.StartPing(ctx, record)
	require.NoError(t, err)
	assert.Greater(t, insertTime, 0.0)

	pending, err := api.IncompletePings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, record.PingID, pending[0].PingID)

	t.Log("Шаг 3: повторный пинг отклоняется со статусом 400")
	_, err = api.StartPing(ctx, record)
	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Status)

	t.Log("Шаг 4: отправляем результат, пинг пропадает из незавершённых")
	_, err = api.SubmitResult(ctx, domain.PingResult{
		PingID:               record.PingID,
		ClientStartTime:      record.ClientStartTime,
		RequestSentAt:        0,
		ResponseReceivedAt:   50,
		PgTimeOffset:         31,
		ElectricArriveOffset: 5000,
		ClientEndOffset:      6200,
	})
	require.NoError(t, err)

	pending, err = api.IncompletePings(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
