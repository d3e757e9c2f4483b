package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/umputun/digestscope/pkg/domain"
)

// RunRepository handles run-related database operations. Runs are the audit
// trail of digest cycles, rows are created once and never updated.
type RunRepository struct {
	db    *sqlx.DB
	items *ItemRepository
}

// runSQL represents a run for SQL operations
type runSQL struct {
	ID             int64     `db:"id"`
	Timestamp      time.Time `db:"timestamp"`
	Status         string    `db:"status"`
	ItemsFound     int       `db:"items_found"`
	ItemsNew       int       `db:"items_new"`
	ItemsIncluded  int       `db:"items_included"`
	OutputPath     string    `db:"output_path"`
	RuntimeSeconds float64   `db:"runtime_seconds"`
	ErrorLog       string    `db:"error_log"`
}

// NewRunRepository creates a new run repository
func NewRunRepository(database *sqlx.DB) *RunRepository {
	return &RunRepository{db: database, items: NewItemRepository(database)}
}

// RecordRunRequest carries everything a cycle persists at its end
type RecordRunRequest struct {
	Status         domain.RunStatus
	ItemsFound     []domain.Item
	ItemsNew       []domain.Item
	ItemsIncluded  []domain.Item
	OutputPath     string
	RuntimeSeconds float64
	ErrorLog       string
}

// RecordRun persists a cycle atomically: every new item is upserted into the
// store, one run row is inserted, and one run_items row is written per
// included item with rank equal to its shortlist position. Items are linked
// by URL, never by struct identity: the same URL seen by different pipeline
// stages resolves to the same row and the same rank slot.
func (r *RunRepository) RecordRun(ctx context.Context, req RecordRunRequest) (int64, error) {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	var runID int64
	err := retrier.Do(ctx, func() error {
		txErr := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
			var err error
			runID, err = r.recordRunTx(ctx, tx, req)
			return err
		})
		if txErr != nil {
			if isLockError(txErr) {
				return txErr // repeater will retry this
			}
			return &criticalError{err: txErr}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return runID, nil
}

func (r *RunRepository) recordRunTx(ctx context.Context, tx *sqlx.Tx, req RecordRunRequest) (int64, error) {
	status := req.Status
	if status == "" {
		status = domain.RunSuccess
	}

	run := &runSQL{
		Status:         string(status),
		ItemsFound:     len(req.ItemsFound),
		ItemsNew:       len(req.ItemsNew),
		ItemsIncluded:  len(req.ItemsIncluded),
		OutputPath:     req.OutputPath,
		RuntimeSeconds: req.RuntimeSeconds,
		ErrorLog:       req.ErrorLog,
	}

	query := `
		INSERT INTO runs (status, items_found, items_new, items_included, output_path, runtime_seconds, error_log)
		VALUES (:status, :items_found, :items_new, :items_included, :output_path, :runtime_seconds, :error_log)
	`
	result, err := sqlx.NamedExecContext(ctx, tx, query, run)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get run id: %w", err)
	}

	// identity is the URL, compare on it and nothing else
	urlToRank := make(map[string]int, len(req.ItemsIncluded))
	for rank, item := range req.ItemsIncluded {
		urlToRank[item.URL] = rank
	}

	idByURL := make(map[string]int64, len(req.ItemsNew))
	for i := range req.ItemsNew {
		item := req.ItemsNew[i]
		id, err := r.items.UpsertTx(ctx, tx, &item)
		if err != nil {
			return 0, fmt.Errorf("upsert new item %q: %w", item.URL, err)
		}
		idByURL[item.URL] = id
	}

	for rank, item := range req.ItemsIncluded {
		id, ok := idByURL[item.URL]
		if !ok {
			// included but not new, e.g. supplemented from recent history
			upserted := item
			id, err = r.items.UpsertTx(ctx, tx, &upserted)
			if err != nil {
				return 0, fmt.Errorf("resolve included item %q: %w", item.URL, err)
			}
			idByURL[item.URL] = id
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO run_items (run_id, item_id, rank) VALUES (?, ?, ?)", runID, id, rank); err != nil {
			return 0, fmt.Errorf("link item %q to run %d: %w", item.URL, runID, err)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE items SET included_in_digest = 1 WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("mark item %d included: %w", id, err)
		}
	}

	return runID, nil
}

// GetRecentRuns returns the latest runs, newest first
func (r *RunRepository) GetRecentRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	var sqlRuns []runSQL
	query := "SELECT * FROM runs ORDER BY timestamp DESC, id DESC LIMIT ?"
	if err := r.db.SelectContext(ctx, &sqlRuns, query, limit); err != nil {
		return nil, fmt.Errorf("get recent runs: %w", err)
	}

	runs := make([]domain.Run, len(sqlRuns))
	for i, run := range sqlRuns {
		runs[i] = domain.Run{
			ID:             run.ID,
			Timestamp:      run.Timestamp,
			Status:         domain.RunStatus(run.Status),
			ItemsFound:     run.ItemsFound,
			ItemsNew:       run.ItemsNew,
			ItemsIncluded:  run.ItemsIncluded,
			OutputPath:     run.OutputPath,
			RuntimeSeconds: run.RuntimeSeconds,
			ErrorLog:       run.ErrorLog,
		}
	}
	return runs, nil
}

// GetRunItems returns the ranked items of a run in shortlist order
func (r *RunRepository) GetRunItems(ctx context.Context, runID int64) ([]domain.RunItem, error) {
	query := `
		SELECT ri.run_id, ri.item_id, ri.rank, ri.theme, i.url, i.title
		FROM run_items ri
		JOIN items i ON i.id = ri.item_id
		WHERE ri.run_id = ?
		ORDER BY ri.rank
	`
	var rows []struct {
		RunID  int64  `db:"run_id"`
		ItemID int64  `db:"item_id"`
		Rank   int    `db:"rank"`
		Theme  string `db:"theme"`
		URL    string `db:"url"`
		Title  string `db:"title"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("get run items: %w", err)
	}

	items := make([]domain.RunItem, len(rows))
	for i, row := range rows {
		items[i] = domain.RunItem{
			RunID:  row.RunID,
			ItemID: row.ItemID,
			Rank:   row.Rank,
			Theme:  row.Theme,
			URL:    row.URL,
			Title:  row.Title,
		}
	}
	return items, nil
}

// CountRunItems returns how many items are linked to a run
func (r *RunRepository) CountRunItems(ctx context.Context, runID int64) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM run_items WHERE run_id = ?", runID); err != nil {
		return 0, fmt.Errorf("count run items: %w", err)
	}
	return count, nil
}
