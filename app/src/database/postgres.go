package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"
	"electric-ping/app/src/shared/constants"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const (
	insertPingSQL = `
INSERT INTO ping (id, client_start_time)
VALUES ($1, $2)
`
	insertResultSQL = `
INSERT INTO ping_results (
    ping_id,
    client_start_time,
    request_sent_at,
    response_received_at,
    pg_time_offset,
    electric_arrive_offset,
    client_end_offset
)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	selectPingSQL = `
SELECT id, client_start_time FROM ping WHERE id = $1
`
	selectIncompleteSQL = `
SELECT p.id, p.client_start_time
FROM ping p
LEFT JOIN ping_results r ON r.ping_id = p.id
WHERE r.ping_id IS NULL
ORDER BY p.client_start_time DESC
LIMIT $1
`
)

// Config contains the dependencies of the Postgres repository.
type Config struct {
	DB     *sql.DB
	Logger *infra.Logger
}

// Repository stores pings and ping results in Postgres. Every write is a
// single statement; no transactions span the two tables.
type Repository struct {
	db     *sql.DB
	logger *infra.Logger

	closeOnce sync.Once
}

// New creates a repository on top of an open connection pool.
func New(cfg Config) (*Repository, error) {
	if cfg.DB == nil {
		return nil, errors.New("postgres repository: db is required")
	}
	return &Repository{db: cfg.DB, logger: cfg.Logger}, nil
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.db.Close()
	})
	return err
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InsertPing stores a new ping row. A second insert with the same id fails
// with domain.ErrDuplicatePing.
func (r *Repository) InsertPing(ctx context.Context, record domain.PingRecord) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, insertPingSQL, record.PingID, record.ClientStartTime.UTC())
	infra.RecordDBInsert(constants.PingTable, time.Since(start), err)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres repository: insert ping %s: %w", record.PingID, domain.ErrDuplicatePing)
		}
		return fmt.Errorf("postgres repository: insert ping: %w", err)
	}
	return nil
}

// InsertResult stores the final measurements of a ping.
func (r *Repository) InsertResult(ctx context.Context, result domain.PingResult) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, insertResultSQL,
		result.PingID,
		result.ClientStartTime.UTC(),
		result.RequestSentAt,
		result.ResponseReceivedAt,
		result.PgTimeOffset,
		result.ElectricArriveOffset,
		result.ClientEndOffset,
	)
	infra.RecordDBInsert(constants.PingResultsTable, time.Since(start), err)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres repository: insert result %s: %w", result.PingID, domain.ErrDuplicatePing)
		}
		return fmt.Errorf("postgres repository: insert result: %w", err)
	}
	return nil
}

// PingByID returns the ping row for the provided identifier.
func (r *Repository) PingByID(ctx context.Context, pingID string) (domain.PingRecord, error) {
	var record domain.PingRecord
	err := r.db.QueryRowContext(ctx, selectPingSQL, pingID).Scan(&record.PingID, &record.ClientStartTime)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PingRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PingRecord{}, fmt.Errorf("postgres repository: ping by id: %w", err)
	}
	record.ClientStartTime = record.ClientStartTime.UTC()
	return record, nil
}

// IncompletePings lists pings that never received a result, newest first.
func (r *Repository) IncompletePings(ctx context.Context, limit int) ([]domain.PingRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectIncompleteSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres repository: incomplete pings: %w", err)
	}
	defer rows.Close()

	records := make([]domain.PingRecord, 0, limit)
	for rows.Next() {
		var record domain.PingRecord
		if err := rows.Scan(&record.PingID, &record.ClientStartTime); err != nil {
			return nil, fmt.Errorf("postgres repository: incomplete pings scan: %w", err)
		}
		record.ClientStartTime = record.ClientStartTime.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres repository: incomplete pings rows: %w", err)
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}

	type sqlState interface {
		SQLState() string
	}
	var state sqlState
	if errors.As(err, &state) {
		return state.SQLState() == uniqueViolation
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "duplicate key value") || strings.Contains(message, "unique constraint")
}

var _ domain.PingRepository = (*Repository)(nil)
