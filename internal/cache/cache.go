// Package cache is the durable store for fetched item facts and the
// process-wide filter settings. It is the single source of truth for
// facts; decisions are always recomputed on read, so threshold and tag
// changes take effect without invalidating fetched data.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Cache struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

func Open(dbPath string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	c := &Cache{readDB: readDB, writeDB: writeDB}
	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	_, err := c.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			url           TEXT PRIMARY KEY,
			rating        REAL NOT NULL,
			review_count  INTEGER NOT NULL,
			review_scores TEXT,
			tags          TEXT,
			fetched_at    DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_items_fetched_at ON items(fetched_at);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	var errs []error
	if c.readDB != nil {
		errs = append(errs, c.readDB.Close())
	}
	if c.writeDB != nil {
		errs = append(errs, c.writeDB.Close())
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// Get returns the record for an item URL. The second result is false on
// a miss. A row that fails shape validation (undecodable JSON) counts
// as a miss, forcing a refetch rather than serving corrupt facts.
func (c *Cache) Get(url string) (Record, bool, error) {
	var (
		rec        Record
		scoresJSON sql.NullString
		tagsJSON   sql.NullString
	)
	err := c.readDB.QueryRow(`
		SELECT rating, review_count, review_scores, tags, fetched_at
		FROM items WHERE url = ?
	`, url).Scan(&rec.Facts.Rating, &rec.Facts.ReviewCount, &scoresJSON, &tagsJSON, &rec.Facts.FetchedAt)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("reading item %s: %w", url, err)
	}

	if scoresJSON.Valid {
		if err := json.Unmarshal([]byte(scoresJSON.String), &rec.Facts.ReviewScores); err != nil {
			return Record{}, false, nil
		}
	}
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &rec.Facts.Tags); err != nil {
			return Record{}, false, nil
		}
	}
	return rec, true, nil
}

// Put stores facts for an item URL, replacing any existing record.
func (c *Cache) Put(url string, facts Facts) error {
	scoresJSON, err := nullableJSON(facts.ReviewScores)
	if err != nil {
		return fmt.Errorf("encoding review scores for %s: %w", url, err)
	}
	tagsJSON, err := nullableJSON(facts.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags for %s: %w", url, err)
	}

	_, err = c.writeDB.Exec(`
		INSERT INTO items (url, rating, review_count, review_scores, tags, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			rating = excluded.rating,
			review_count = excluded.review_count,
			review_scores = excluded.review_scores,
			tags = excluded.tags,
			fetched_at = excluded.fetched_at
	`, url, facts.Rating, facts.ReviewCount, scoresJSON, tagsJSON, facts.FetchedAt)
	if err != nil {
		return fmt.Errorf("upserting item %s: %w", url, err)
	}
	return nil
}

func nullableJSON[T any](v []T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Prune deletes records fetched longer than olderThan ago and returns
// how many were removed.
func (c *Cache) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := c.writeDB.Exec("DELETE FROM items WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning items: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns the item count and the database file size.
func (c *Cache) Stats(dbPath string) (count int64, size int64, err error) {
	if err := c.readDB.QueryRow("SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		return 0, 0, fmt.Errorf("counting items: %w", err)
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		return 0, 0, fmt.Errorf("statting db file: %w", err)
	}
	return count, info.Size(), nil
}
