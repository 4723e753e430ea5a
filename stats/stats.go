// Package stats records per-post view counts in a dedicated SQLite
// database, kept separate from the content database so write bursts from
// traffic never contend with admin edits.
package stats

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// PostViews is the aggregated view count for one post.
type PostViews struct {
	PostID int64 `json:"post_id"`
	Views  int64 `json:"views"`
}

// DailyViews is the view count for one post on one day.
type DailyViews struct {
	PostID int64  `json:"post_id"`
	Day    string `json:"day"` // YYYY-MM-DD, UTC
	Views  int64  `json:"views"`
}

// Store provides database operations for view counting.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the stats database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS post_views (
    post_id INTEGER NOT NULL,
    day TEXT NOT NULL,
    views INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (post_id, day)
);
`)
	return err
}

// Record increments today's view count for a post.
func (s *Store) Record(postID int64) error {
	day := s.now().UTC().Format("2006-01-02")
	_, err := s.db.Exec(`
INSERT INTO post_views (post_id, day, views) VALUES (?, ?, 1)
ON CONFLICT(post_id, day) DO UPDATE SET views = views + 1`, postID, day)
	return err
}

// Totals returns the all-time view count per post, most viewed first.
func (s *Store) Totals() ([]PostViews, error) {
	rows, err := s.db.Query(`SELECT post_id, SUM(views) FROM post_views GROUP BY post_id ORDER BY SUM(views) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []PostViews
	for rows.Next() {
		var pv PostViews
		if err := rows.Scan(&pv.PostID, &pv.Views); err != nil {
			return nil, err
		}
		totals = append(totals, pv)
	}
	return totals, rows.Err()
}

// Daily returns per-day counts for one post over the last n days.
func (s *Store) Daily(postID int64, days int) ([]DailyViews, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.Query(`SELECT post_id, day, views FROM post_views WHERE post_id = ? AND day >= ? ORDER BY day`, postID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var daily []DailyViews
	for rows.Next() {
		var dv DailyViews
		if err := rows.Scan(&dv.PostID, &dv.Day, &dv.Views); err != nil {
			return nil, err
		}
		daily = append(daily, dv)
	}
	return daily, rows.Err()
}

// Cleanup deletes rows older than retentionDays.
func (s *Store) Cleanup(retentionDays int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")
	res, err := s.db.Exec(`DELETE FROM post_views WHERE day < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StartCleanupScheduler enforces retention immediately and then runs
// Cleanup every interval until the returned stop function is called.
func (s *Store) StartCleanupScheduler(retentionDays int, interval time.Duration) func() {
	s.Cleanup(retentionDays)
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup(retentionDays)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
