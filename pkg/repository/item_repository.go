package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/umputun/digestscope/pkg/domain"
)

// ItemRepository handles item-related database operations
type ItemRepository struct {
	db *sqlx.DB
}

// itemSQL represents an item for SQL operations
type itemSQL struct {
	ID               int64        `db:"id"`
	URL              string       `db:"url"`
	Fingerprint      string       `db:"content_fingerprint"`
	Title            string       `db:"title"`
	Snippet          string       `db:"snippet"`
	Content          string       `db:"content"`
	Source           string       `db:"source"`
	Category         string       `db:"category"`
	Author           string       `db:"author"`
	Metadata         metadataSQL  `db:"source_metadata"`
	Published        sql.NullTime `db:"published"`
	FirstSeen        time.Time    `db:"first_seen"`
	LastChecked      time.Time    `db:"last_checked"`
	TimesSurfaced    int          `db:"times_surfaced"`
	IncludedInDigest bool         `db:"included_in_digest"`
}

// metadataSQL is a JSON object of source-specific attributes for SQL operations
type metadataSQL map[string]any

// Value implements driver.Valuer for database storage
func (m metadataSQL) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database retrieval
func (m *metadataSQL) Scan(value interface{}) error {
	if value == nil {
		*m = metadataSQL{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		*m = metadataSQL{}
		return nil
	}

	return json.Unmarshal(data, m)
}

// NewItemRepository creates a new item repository
func NewItemRepository(database *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: database}
}

// Upsert inserts an item or resolves it to the existing row when the URL is
// already known. Content fields win on first write, a repeat sighting only
// bumps last_checked and times_surfaced. Returns the row id either way.
// Retries on SQLite lock errors.
func (r *ItemRepository) Upsert(ctx context.Context, item *domain.Item) (int64, error) {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	var id int64
	err := retrier.Do(ctx, func() error {
		var upsertErr error
		id, upsertErr = upsertItem(ctx, r.db, item)
		if upsertErr != nil {
			if isLockError(upsertErr) {
				return upsertErr // repeater will retry this
			}
			return &criticalError{err: upsertErr}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpsertTx is Upsert running on an already-open transaction. The run recorder
// composes item upserts into its own transaction this way, SQLite would
// deadlock on a second independent one.
func (r *ItemRepository) UpsertTx(ctx context.Context, tx *sqlx.Tx, item *domain.Item) (int64, error) {
	return upsertItem(ctx, tx, item)
}

// upsertItem does the INSERT OR IGNORE dance against any executor, plain
// connection or open transaction alike.
func upsertItem(ctx context.Context, e sqlx.ExtContext, item *domain.Item) (int64, error) {
	if item.URL == "" {
		return 0, fmt.Errorf("upsert item: empty url")
	}

	sqlItem := toSQLItem(item)

	query := `
		INSERT OR IGNORE INTO items (
			url, content_fingerprint, title, snippet, content,
			source, category, author, source_metadata, published
		) VALUES (
			:url, :content_fingerprint, :title, :snippet, :content,
			:source, :category, :author, :source_metadata, :published
		)
	`
	result, err := sqlx.NamedExecContext(ctx, e, query, sqlItem)
	if err != nil {
		return 0, fmt.Errorf("upsert item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		id, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("get insert id: %w", err)
		}
		item.ID = id
		return id, nil
	}

	// row already existed, resolve to its id and record the repeat sighting
	var id int64
	if err := sqlx.GetContext(ctx, e, &id, "SELECT id FROM items WHERE url = ?", item.URL); err != nil {
		return 0, fmt.Errorf("get existing item id: %w", err)
	}

	bump := `UPDATE items SET last_checked = datetime('now'), times_surfaced = times_surfaced + 1 WHERE id = ?`
	if _, err := e.ExecContext(ctx, bump, id); err != nil {
		return 0, fmt.Errorf("bump item sighting: %w", err)
	}

	item.ID = id
	return id, nil
}

// ExistingURLs returns url->id for every given URL already present in the
// store, as a single batched query.
func (r *ItemRepository) ExistingURLs(ctx context.Context, urls []string) (map[string]int64, error) {
	return r.existingKeys(ctx, "url", urls)
}

// ExistingFingerprints returns fingerprint->id for every given content
// fingerprint already present in the store, as a single batched query.
func (r *ItemRepository) ExistingFingerprints(ctx context.Context, fingerprints []string) (map[string]int64, error) {
	return r.existingKeys(ctx, "content_fingerprint", fingerprints)
}

// existingKeys batches "which of these keys exist" for an indexed column
func (r *ItemRepository) existingKeys(ctx context.Context, column string, keys []string) (map[string]int64, error) {
	result := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(
		fmt.Sprintf("SELECT id, %s AS key FROM items WHERE %s IN (?)", column, column), keys) //nolint:gosec // column name is a compile-time constant
	if err != nil {
		return nil, fmt.Errorf("build %s existence query: %w", column, err)
	}

	var rows []struct {
		ID  int64  `db:"id"`
		Key string `db:"key"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("check existing %s: %w", column, err)
	}

	for _, row := range rows {
		result[row.Key] = row.ID
	}
	return result, nil
}

// GetItem retrieves an item by ID
func (r *ItemRepository) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var sqlItem itemSQL
	err := r.db.GetContext(ctx, &sqlItem, "SELECT * FROM items WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item %d not found", id)
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return toDomainItem(&sqlItem), nil
}

// GetItemByURL retrieves an item by its identity key
func (r *ItemRepository) GetItemByURL(ctx context.Context, url string) (*domain.Item, error) {
	var sqlItem itemSQL
	err := r.db.GetContext(ctx, &sqlItem, "SELECT * FROM items WHERE url = ?", url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item %q not found", url)
		}
		return nil, fmt.Errorf("get item by url: %w", err)
	}
	return toDomainItem(&sqlItem), nil
}

// GetRecentItems returns items first seen within the lookback window, newest
// first. Used to supplement a thin pool of new items with recent history.
func (r *ItemRepository) GetRecentItems(ctx context.Context, lookbackDays, limit int) ([]domain.Item, error) {
	query := `
		SELECT * FROM items
		WHERE datetime(first_seen) >= datetime('now', '-' || ? || ' days')
		ORDER BY first_seen DESC
		LIMIT ?
	`
	var sqlItems []itemSQL
	if err := r.db.SelectContext(ctx, &sqlItems, query, lookbackDays, limit); err != nil {
		return nil, fmt.Errorf("get recent items: %w", err)
	}

	items := make([]domain.Item, len(sqlItems))
	for i, item := range sqlItems {
		items[i] = *toDomainItem(&item)
	}
	return items, nil
}

// CountItems returns the total number of stored items
func (r *ItemRepository) CountItems(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM items"); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

// SearchHistory performs full-text search over all stored items, most
// relevant first
func (r *ItemRepository) SearchHistory(ctx context.Context, query string, limit int) ([]domain.Item, error) {
	searchQuery := `
		SELECT items.*
		FROM items_fts
		JOIN items ON items_fts.rowid = items.id
		WHERE items_fts MATCH ?
		ORDER BY bm25(items_fts)
		LIMIT ?
	`
	var sqlItems []itemSQL
	if err := r.db.SelectContext(ctx, &sqlItems, searchQuery, query, limit); err != nil {
		if isFTSSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return nil, fmt.Errorf("search history: %w", err)
	}

	items := make([]domain.Item, len(sqlItems))
	for i, item := range sqlItems {
		items[i] = *toDomainItem(&item)
	}
	return items, nil
}

// toSQLItem converts domain.Item to itemSQL, filling the content fingerprint
func toSQLItem(item *domain.Item) *itemSQL {
	sqlItem := &itemSQL{
		URL:         item.URL,
		Fingerprint: domain.ContentFingerprint(item.Content),
		Title:       item.Title,
		Snippet:     item.Snippet,
		Content:     item.Content,
		Source:      item.Source,
		Category:    item.Category,
		Author:      item.Author,
		Metadata:    metadataSQL(item.Metadata),
	}
	if !item.Published.IsZero() {
		sqlItem.Published = sql.NullTime{Time: item.Published, Valid: true}
	}
	return sqlItem
}

// toDomainItem converts itemSQL to domain.Item
func toDomainItem(sqlItem *itemSQL) *domain.Item {
	item := &domain.Item{
		ID:               sqlItem.ID,
		URL:              sqlItem.URL,
		Fingerprint:      sqlItem.Fingerprint,
		Title:            sqlItem.Title,
		Snippet:          sqlItem.Snippet,
		Content:          sqlItem.Content,
		Source:           sqlItem.Source,
		Category:         sqlItem.Category,
		Author:           sqlItem.Author,
		Metadata:         domain.Metadata(sqlItem.Metadata),
		FirstSeen:        sqlItem.FirstSeen,
		LastChecked:      sqlItem.LastChecked,
		TimesSurfaced:    sqlItem.TimesSurfaced,
		IncludedInDigest: sqlItem.IncludedInDigest,
	}
	if sqlItem.Published.Valid {
		item.Published = sqlItem.Published.Time
	}
	return item
}
