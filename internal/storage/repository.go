package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"mtgprices/internal/prices"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertSnapshotSQL = `INSERT INTO price_snapshots (
        price_date,
        provider,
        records
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (price_date, provider) DO UPDATE
    SET records = EXCLUDED.records;`

	listSnapshotsSinceSQL = `SELECT
        price_date,
        provider,
        records,
        created_at
    FROM price_snapshots
    WHERE price_date >= $1
    ORDER BY price_date, provider;`

	deleteSnapshotsBeforeSQL = `DELETE FROM price_snapshots WHERE price_date < $1;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM price_snapshots;`

	insertRunSQL = `INSERT INTO pipeline_runs (
        run_id,
        run_date,
        providers,
        failed,
        records,
        duration_ms
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, created_at;`

	listRecentRunsSQL = `SELECT
        id,
        run_id,
        run_date,
        providers,
        failed,
        records,
        duration_ms,
        created_at
    FROM pipeline_runs
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotStore defines persistence for per-provider day snapshots.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, row SnapshotRow) error
	ListSnapshotsSince(ctx context.Context, from time.Time) ([]SnapshotRow, error)
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountSnapshots(ctx context.Context) (int64, error)
}

// RunStore defines persistence for run auditing.
type RunStore interface {
	InsertRun(ctx context.Context, run RunRecord) (RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to snapshots and run records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertSnapshot persists or updates one provider's day snapshot.
func (s *Store) UpsertSnapshot(ctx context.Context, row SnapshotRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(row.Records)
	if err != nil {
		return fmt.Errorf("marshal snapshot records: %w", err)
	}

	if _, execErr := pool.Exec(ctx, upsertSnapshotSQL, row.PriceDate, row.Provider, payload); execErr != nil {
		return fmt.Errorf("upsert snapshot: %w", execErr)
	}
	return nil
}

// ListSnapshotsSince lists snapshots dated on or after from.
func (s *Store) ListSnapshotsSince(ctx context.Context, from time.Time) ([]SnapshotRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsSinceSQL, from)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots: %w", queryErr)
	}
	defer rows.Close()

	out := make([]SnapshotRow, 0)
	for rows.Next() {
		var row SnapshotRow
		var payload []byte
		if scanErr := rows.Scan(&row.PriceDate, &row.Provider, &payload, &row.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		row.Records = make(prices.Snapshot)
		if unmarshalErr := json.Unmarshal(payload, &row.Records); unmarshalErr != nil {
			return nil, fmt.Errorf("decode snapshot records: %w", unmarshalErr)
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// DeleteSnapshotsBefore removes snapshots older than the cutoff and reports
// how many rows were dropped.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteSnapshotsBeforeSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("delete snapshots: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// CountSnapshots counts stored snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// InsertRun persists a run audit record.
func (s *Store) InsertRun(ctx context.Context, run RunRecord) (RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RunRecord{}, err
	}

	row := pool.QueryRow(ctx, insertRunSQL,
		run.RunID,
		run.RunDate,
		run.Providers,
		run.Failed,
		run.Records,
		run.Duration.Milliseconds(),
	)

	rec := run
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", scanErr)
	}
	return rec, nil
}

// ListRecentRuns lists the most recent run records.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	out := make([]RunRecord, 0, limit)
	for rows.Next() {
		var rec RunRecord
		var durationMS int64
		if scanErr := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.RunDate,
			&rec.Providers,
			&rec.Failed,
			&rec.Records,
			&durationMS,
			&rec.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

var (
	_ SnapshotStore  = (*Store)(nil)
	_ RunStore       = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
