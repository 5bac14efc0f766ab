package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/polyharvest/polyharvest/internal/models"
)

// DuckDBStore implements Store over an embedded DuckDB database. DuckDB
// prefers a single writer, so the connection pool is pinned to one
// connection.
type DuckDBStore struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

// NewDuckDBStore opens (or creates) the database at dbPath. ":memory:"
// gives an ephemeral database.
func NewDuckDBStore(dbPath string, logger *slog.Logger) (*DuckDBStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &DuckDBStore{
		db:     db,
		dbPath: dbPath,
		logger: logger.With("component", "storage"),
	}, nil
}

// Initialize creates the daily_rows and volume_rows tables.
func (s *DuckDBStore) Initialize(ctx context.Context) error {
	s.logger.Debug("initializing duckdb store", "db_path", s.dbPath)

	statements := []struct {
		table string
		query string
	}{
		{"daily_rows", `
		CREATE TABLE IF NOT EXISTS daily_rows (
			run_id VARCHAR NOT NULL,
			market_id VARCHAR NOT NULL,
			slug VARCHAR NOT NULL,
			title VARCHAR,
			date DATE NOT NULL,
			yes_price DOUBLE,
			no_price DOUBLE,
			total_volume VARCHAR,
			final_outcome_proxy VARCHAR,
			uma_resolution_status VARCHAR,
			t_days DOUBLE,
			start_ts BIGINT,
			end_date_ts BIGINT,
			closed_ts BIGINT,
			CONSTRAINT daily_rows_pk PRIMARY KEY (run_id, market_id, date)
		)`},
		{"volume_rows", `
		CREATE TABLE IF NOT EXISTS volume_rows (
			run_id VARCHAR NOT NULL,
			market_id VARCHAR NOT NULL,
			date DATE NOT NULL,
			daily_volume DOUBLE NOT NULL,
			trade_count INTEGER NOT NULL,
			truncated BOOLEAN NOT NULL,
			CONSTRAINT volume_rows_pk PRIMARY KEY (run_id, market_id, date),
			CONSTRAINT volume_rows_non_negative CHECK (daily_volume >= 0 AND trade_count >= 0)
		)`},
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt.query); err != nil {
			return &StorageError{Op: "initialize", Table: stmt.table, Err: err}
		}
	}
	return nil
}

// StoreDailyRows inserts daily series rows in one transaction.
func (s *DuckDBStore) StoreDailyRows(ctx context.Context, runID string, rows []models.DailyRow) error {
	if len(rows) == 0 {
		return nil
	}
	return s.insertBatch(ctx, "daily_rows", `
		INSERT OR REPLACE INTO daily_rows
		(run_id, market_id, slug, title, date, yes_price, no_price, total_volume,
		 final_outcome_proxy, uma_resolution_status, t_days, start_ts, end_date_ts, closed_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rows), func(i int) []any {
			r := rows[i]
			return []any{
				runID, r.MarketID, r.Slug, r.Title, r.Date,
				nullableFloat(r.YesPrice), nullableFloat(r.NoPrice), r.TotalVolume,
				r.OutcomeProxy, r.UMAStatus, nullableFloat(r.TDays),
				nullableTs(r.StartTs), nullableTs(r.EndDateTs), nullableTs(r.ClosedTs),
			}
		})
}

// StoreVolumeRows inserts volume rows in one transaction.
func (s *DuckDBStore) StoreVolumeRows(ctx context.Context, runID string, rows []models.VolumeRow) error {
	if len(rows) == 0 {
		return nil
	}
	return s.insertBatch(ctx, "volume_rows", `
		INSERT OR REPLACE INTO volume_rows
		(run_id, market_id, date, daily_volume, trade_count, truncated)
		VALUES (?, ?, ?, ?, ?, ?)`,
		len(rows), func(i int) []any {
			r := rows[i]
			vol, _ := r.Volume.Float64()
			return []any{runID, r.MarketID, r.Date, vol, r.TradeCount, r.Truncated}
		})
}

func (s *DuckDBStore) insertBatch(ctx context.Context, table, query string, n int, args func(int) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin", Table: table, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return &StorageError{Op: "prepare", Table: table, Err: err}
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return &StorageError{Op: "insert", Table: table, Err: fmt.Errorf("row %d: %w", i, err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit", Table: table, Err: err}
	}
	s.logger.Debug("batch stored", "table", table, "rows", n)
	return nil
}

// Close releases the database handle.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullableTs(ts int64) any {
	if ts == 0 {
		return nil
	}
	return ts
}
