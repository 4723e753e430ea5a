package inkpress

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/inkpress/inkpress/slug"
)

// ErrSlugTaken is returned when an insert or update violates the unique
// index on posts.slug. The in-memory uniqueness check is advisory only;
// this error is the database acting as final arbiter, and callers treat
// it as retryable (regenerate the slug and try again).
var ErrSlugTaken = errors.New("inkpress: slug already taken")

// Store wraps a SQLite database and provides CRUD operations for posts,
// tags, users, settings, revisions, and uploaded images.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema setup.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL for concurrent read/write access, busy timeout so writers wait
	// instead of failing with SQLITE_BUSY, synchronous=NORMAL to avoid an
	// fsync per transaction (safe with WAL).
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT NOT NULL,
    title TEXT NOT NULL,
    date TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    cover_url TEXT NOT NULL DEFAULT '',
    published INTEGER NOT NULL DEFAULT 0,
    archived INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_posts_slug ON posts(slug);

CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS post_tags (
    post_id INTEGER NOT NULL REFERENCES posts(id),
    tag_id INTEGER NOT NULL REFERENCES tags(id),
    PRIMARY KEY (post_id, tag_id)
);

CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS post_revisions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_id INTEGER NOT NULL REFERENCES posts(id),
    title TEXT NOT NULL,
    summary TEXT NOT NULL,
    content TEXT NOT NULL,
    saved_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS images (
    filename TEXT PRIMARY KEY,
    original_name TEXT NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    size INTEGER NOT NULL,
    uploaded_at TEXT NOT NULL
);
`)
	return err
}

const postColumns = `p.id, p.slug, p.title, p.date, p.summary, p.content, p.cover_url, p.published, p.archived,
	COALESCE((SELECT GROUP_CONCAT(t.name, ',') FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id = p.id), '')`

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var p Post
	var published, archived int
	var tags string
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Date, &p.Summary, &p.Content, &p.CoverURL, &published, &archived, &tags)
	if err != nil {
		return Post{}, err
	}
	p.Published = published == 1
	p.Archived = archived == 1
	if tags != "" {
		p.Tags = strings.Split(tags, ",")
	}
	p.Link = "/blog/" + p.Slug
	return p, nil
}

func (s *Store) queryPosts(query string, args ...any) ([]Post, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListPosts returns all published posts ordered by date descending.
// If tag is non-empty, results are filtered to posts carrying that tag.
func (s *Store) ListPosts(tag string) ([]Post, error) {
	if tag == "" {
		return s.queryPosts(`SELECT ` + postColumns + ` FROM posts p WHERE p.published = 1 AND p.archived = 0 ORDER BY p.date DESC, p.id DESC`)
	}
	normalized := strings.ToLower(strings.TrimSpace(tag))
	return s.queryPosts(`SELECT `+postColumns+` FROM posts p
		WHERE p.published = 1 AND p.archived = 0
		AND p.id IN (SELECT pt.post_id FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE t.name = ?)
		ORDER BY p.date DESC, p.id DESC`, normalized)
}

// ListAllPosts returns every post (drafts and archived included) ordered by
// date descending, for the admin dashboard.
func (s *Store) ListAllPosts() ([]Post, error) {
	return s.queryPosts(`SELECT ` + postColumns + ` FROM posts p ORDER BY p.date DESC, p.id DESC`)
}

// SearchPosts returns published posts whose title, summary, or content
// contains q, newest first.
func (s *Store) SearchPosts(q string) ([]Post, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	pattern := "%" + q + "%"
	return s.queryPosts(`SELECT `+postColumns+` FROM posts p
		WHERE p.published = 1 AND p.archived = 0
		AND (p.title LIKE ? OR p.summary LIKE ? OR p.content LIKE ?)
		ORDER BY p.date DESC, p.id DESC`, pattern, pattern, pattern)
}

// ListTags returns a sorted, deduplicated slice of tags used by published posts.
func (s *Store) ListTags() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT t.name FROM tags t
		JOIN post_tags pt ON pt.tag_id = t.id
		JOIN posts p ON p.id = pt.post_id
		WHERE p.published = 1 AND p.archived = 0
		ORDER BY t.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// GetPost returns a single published post by exact slug.
func (s *Store) GetPost(sl string) (Post, error) {
	return scanPost(s.db.QueryRow(`SELECT `+postColumns+` FROM posts p WHERE p.slug = ? AND p.published = 1 AND p.archived = 0`, sl))
}

// GetPostAny returns a post by exact slug regardless of status (for admin).
func (s *Store) GetPostAny(sl string) (Post, error) {
	return scanPost(s.db.QueryRow(`SELECT `+postColumns+` FROM posts p WHERE p.slug = ?`, sl))
}

// GetPostByID returns a post by id regardless of publish status. Preview
// links resolve through here so drafts are reachable with a valid token.
func (s *Store) GetPostByID(id int64) (Post, error) {
	return scanPost(s.db.QueryRow(`SELECT `+postColumns+` FROM posts p WHERE p.id = ?`, id))
}

// FindPublishedBySlug looks up a published post by slug, case-insensitively.
// The stored slug can therefore differ from the key; the slug resolver uses
// that difference to decide on a permanent redirect.
func (s *Store) FindPublishedBySlug(key string) (Post, error) {
	return scanPost(s.db.QueryRow(`SELECT `+postColumns+` FROM posts p WHERE p.slug = ? COLLATE NOCASE AND p.published = 1 AND p.archived = 0`, key))
}

// TakenSlugs returns the set of every slug currently in use, as an advisory
// snapshot for uniqueness resolution.
func (s *Store) TakenSlugs() (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT slug FROM posts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taken := make(map[string]struct{})
	for rows.Next() {
		var sl string
		if err := rows.Scan(&sl); err != nil {
			return nil, err
		}
		taken[sl] = struct{}{}
	}
	return taken, rows.Err()
}

func isUniqueViolation(err error, index string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+index)
}

// SavePost inserts or updates a post together with its tags in one
// transaction. Updates snapshot the previous content as a revision first.
// A slug collision at the database level surfaces as ErrSlugTaken.
func (s *Store) SavePost(p Post) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	published, archived := 0, 0
	if p.Published {
		published = 1
	}
	if p.Archived {
		archived = 1
	}

	id := p.ID
	if id != 0 {
		if _, err := tx.Exec(`INSERT INTO post_revisions (post_id, title, summary, content, saved_at)
			SELECT id, title, summary, content, ? FROM posts WHERE id = ?`,
			time.Now().UTC().Format(time.RFC3339), id); err != nil {
			return 0, err
		}
		_, err = tx.Exec(`UPDATE posts SET slug = ?, title = ?, date = ?, summary = ?, content = ?, cover_url = ?, published = ?, archived = ? WHERE id = ?`,
			p.Slug, p.Title, p.Date, p.Summary, p.Content, p.CoverURL, published, archived, id)
		if isUniqueViolation(err, "posts.slug") {
			return 0, ErrSlugTaken
		}
		if err != nil {
			return 0, err
		}
	} else {
		res, err := tx.Exec(`INSERT INTO posts (slug, title, date, summary, content, cover_url, published, archived) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Slug, p.Title, p.Date, p.Summary, p.Content, p.CoverURL, published, archived)
		if isUniqueViolation(err, "posts.slug") {
			return 0, ErrSlugTaken
		}
		if err != nil {
			return 0, err
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	}

	if _, err := tx.Exec(`DELETE FROM post_tags WHERE post_id = ?`, id); err != nil {
		return 0, err
	}
	for _, tag := range p.Tags {
		name := strings.ToLower(strings.TrimSpace(tag))
		if name == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO post_tags (post_id, tag_id) SELECT ?, id FROM tags WHERE name = ?`, id, name); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// DeletePost removes a post, its tag links, and its revisions.
func (s *Store) DeletePost(sl string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRow(`SELECT id FROM posts WHERE slug = ?`, sl).Scan(&id); err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM post_tags WHERE post_id = ?`,
		`DELETE FROM post_revisions WHERE post_id = ?`,
		`DELETE FROM posts WHERE id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRevisions returns all revisions of a post, newest first.
func (s *Store) ListRevisions(postID int64) ([]Revision, error) {
	rows, err := s.db.Query(`SELECT id, post_id, title, summary, content, saved_at FROM post_revisions WHERE post_id = ? ORDER BY id DESC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var r Revision
		var savedAt string
		if err := rows.Scan(&r.ID, &r.PostID, &r.Title, &r.Summary, &r.Content, &savedAt); err != nil {
			return nil, err
		}
		r.SavedAt, _ = time.Parse(time.RFC3339, savedAt)
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

// GetUser returns a user by username.
func (s *Store) GetUser(username string) (User, error) {
	var u User
	err := s.db.QueryRow(`SELECT id, username, password_hash FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	return u, err
}

// CreateUser inserts a new admin user with an already-hashed password.
func (s *Store) CreateUser(username, passwordHash string) error {
	_, err := s.db.Exec(`INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, passwordHash)
	return err
}

// GetSetting returns the value for key, or "" when unset.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a settings value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// SaveImage stores cover image metadata.
func (s *Store) SaveImage(img Image) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO images (filename, original_name, width, height, size, uploaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		img.Filename, img.OriginalName, img.Width, img.Height, img.Size, img.UploadedAt)
	return err
}

// ListImages returns all uploaded images, newest first.
func (s *Store) ListImages() ([]Image, error) {
	rows, err := s.db.Query(`SELECT filename, original_name, width, height, size, uploaded_at FROM images ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.Filename, &img.OriginalName, &img.Width, &img.Height, &img.Size, &img.UploadedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// DeleteImage removes image metadata by filename.
func (s *Store) DeleteImage(filename string) error {
	_, err := s.db.Exec(`DELETE FROM images WHERE filename = ?`, filename)
	return err
}

// MigrateSlugs rewrites every non-canonical slug to a canonical one derived
// from the post title, inside a single transaction: either every rename
// lands or none do. A post whose unique-slug resolution is exhausted is
// skipped (reported through logf) without aborting the batch; any storage
// error rolls the whole batch back.
func (s *Store) MigrateSlugs(logf func(format string, args ...any)) (int, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id, slug, title FROM posts ORDER BY id`)
	if err != nil {
		return 0, err
	}
	type candidate struct {
		id    int64
		slug  string
		title string
	}
	var all []candidate
	taken := make(map[string]struct{})
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.slug, &c.title); err != nil {
			rows.Close()
			return 0, err
		}
		all = append(all, c)
		taken[c.slug] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	renamed := 0
	for _, c := range all {
		if slug.IsCanonical(c.slug) {
			continue
		}
		base := slug.Canonical(c.title)
		delete(taken, c.slug)
		unique, err := slug.ResolveUnique(base, taken, nil)
		if err != nil {
			// Exhaustion is fatal to this one post only.
			logf("slug migration: skipping post %d (%q): %v", c.id, c.slug, err)
			taken[c.slug] = struct{}{}
			continue
		}
		if _, err := tx.Exec(`UPDATE posts SET slug = ? WHERE id = ?`, unique, c.id); err != nil {
			return 0, err
		}
		taken[unique] = struct{}{}
		renamed++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return renamed, nil
}
