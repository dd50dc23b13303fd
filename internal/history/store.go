// Package history persists comparison reports in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// Entry is a stored comparison.
type Entry struct {
	ID         string                 `json:"id"`
	Label      string                 `json:"label"`
	CreatedAt  time.Time              `json:"created_at"`
	Comparison *evaluation.Comparison `json:"comparison"`
}

// Summary is the list view of a stored comparison.
type Summary struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	BeforeSource string    `json:"before_source"`
	AfterSource  string    `json:"after_source"`
	Cutoffs      int       `json:"cutoffs"`
	MeanPercent  *float64  `json:"mean_percent"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is a SQLite-backed comparison history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the history database at path and applies
// migrations. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, apperrors.StorageError("failed to create history directory", err)
			}
		}
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, apperrors.StorageError("failed to open history database", err)
	}

	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, apperrors.StorageError("failed to enable foreign keys", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, apperrors.StorageError("failed to apply migrations", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores cmp under label and returns its ID.
func (s *Store) Save(ctx context.Context, label string, cmp *evaluation.Comparison) (string, error) {
	if cmp == nil || cmp.Before == nil || cmp.After == nil {
		return "", apperrors.ValidationError("comparison is incomplete")
	}

	id := uuid.NewString()
	if label == "" {
		label = cmp.Label
	}

	report, err := json.Marshal(cmp)
	if err != nil {
		return "", apperrors.InternalError("failed to encode comparison", err)
	}

	var mean *float64
	if cmp.Summary.Defined > 0 {
		m := cmp.Summary.MeanPercent
		mean = &m
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", apperrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO comparisons (id, label, before_source, after_source, cutoffs, mean_percent, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, label, cmp.Before.Source, cmp.After.Source, len(cmp.Records), nullFloat(mean), string(report), s.now().UnixNano())
	if err != nil {
		return "", apperrors.StorageError("failed to save comparison", err)
	}

	for _, r := range cmp.Records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comparison_records (comparison_id, cutoff, before_score, after_score, improvement, percent_improvement)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, r.Cutoff, r.Before, r.After, r.Improvement, nullFloat(r.PercentImprovement))
		if err != nil {
			return "", apperrors.StorageError(fmt.Sprintf("failed to save record k=%d", r.Cutoff), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", apperrors.StorageError("failed to commit comparison", err)
	}
	return id, nil
}

// Get loads a stored comparison.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	var (
		entry   Entry
		report  string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, label, report, created_at FROM comparisons WHERE id = ?", id,
	).Scan(&entry.ID, &entry.Label, &report, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundError(fmt.Sprintf("comparison %s", id))
	}
	if err != nil {
		return nil, apperrors.StorageError("failed to load comparison", err)
	}

	var cmp evaluation.Comparison
	if err := json.Unmarshal([]byte(report), &cmp); err != nil {
		return nil, apperrors.StorageError("failed to decode comparison", err)
	}
	entry.Comparison = &cmp
	entry.CreatedAt = time.Unix(0, created).UTC()
	return &entry, nil
}

// List returns the most recent comparisons first. A non-positive limit
// uses DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, before_source, after_source, cutoffs, mean_percent, created_at
		FROM comparisons
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperrors.StorageError("failed to list comparisons", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			mean    sql.NullFloat64
			created int64
		)
		if err := rows.Scan(&sum.ID, &sum.Label, &sum.BeforeSource, &sum.AfterSource, &sum.Cutoffs, &mean, &created); err != nil {
			return nil, apperrors.StorageError("failed to scan comparison", err)
		}
		if mean.Valid {
			m := mean.Float64
			sum.MeanPercent = &m
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError("failed to list comparisons", err)
	}
	return out, nil
}

// Records returns the stored per-cutoff records of a comparison, ascending
// by cutoff.
func (s *Store) Records(ctx context.Context, id string) ([]evaluation.ComparisonRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cutoff, before_score, after_score, improvement, percent_improvement
		FROM comparison_records
		WHERE comparison_id = ?
		ORDER BY cutoff
	`, id)
	if err != nil {
		return nil, apperrors.StorageError("failed to load records", err)
	}
	defer rows.Close()

	var out []evaluation.ComparisonRecord
	for rows.Next() {
		var (
			r   evaluation.ComparisonRecord
			pct sql.NullFloat64
		)
		if err := rows.Scan(&r.Cutoff, &r.Before, &r.After, &r.Improvement, &pct); err != nil {
			return nil, apperrors.StorageError("failed to scan record", err)
		}
		if pct.Valid {
			p := pct.Float64
			r.PercentImprovement = &p
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError("failed to load records", err)
	}

	if len(out) == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM comparisons WHERE id = ?", id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError(fmt.Sprintf("comparison %s", id))
		}
		if err != nil {
			return nil, apperrors.StorageError("failed to load comparison", err)
		}
	}
	return out, nil
}

// Delete removes a stored comparison.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM comparison_records WHERE comparison_id = ?", id); err != nil {
		return apperrors.StorageError("failed to delete records", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM comparisons WHERE id = ?", id)
	if err != nil {
		return apperrors.StorageError("failed to delete comparison", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.StorageError("failed to delete comparison", err)
	}
	if n == 0 {
		return apperrors.NotFoundError(fmt.Sprintf("comparison %s", id))
	}

	if err := tx.Commit(); err != nil {
		return apperrors.StorageError("failed to commit delete", err)
	}
	return nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
