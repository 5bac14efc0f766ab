// Package storage provides the optional DuckDB analytical sink. When
// enabled, the pipelines mirror their CSV output into a database so the
// harvested series can be queried directly instead of re-parsed from
// files.
package storage

import (
	"context"
	"fmt"

	"github.com/polyharvest/polyharvest/internal/models"
)

// Store is the analytical sink the pipelines write to.
type Store interface {
	// Initialize creates the schema if needed.
	Initialize(ctx context.Context) error
	// StoreDailyRows inserts a batch of daily series rows for one run.
	StoreDailyRows(ctx context.Context, runID string, rows []models.DailyRow) error
	// StoreVolumeRows inserts a batch of daily volume rows for one run.
	StoreVolumeRows(ctx context.Context, runID string, rows []models.VolumeRow) error
	// Close releases the underlying database.
	Close() error
}

// StorageError wraps a storage failure with the operation and table it
// occurred in.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
