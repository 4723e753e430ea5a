package inkpress

import "time"

// Post is the core content type stored in SQLite and rendered by templates.
// Slug is assigned at creation time and never silently changed by read
// paths; renames happen only through the explicit migration flow.
type Post struct {
	ID        int64
	Slug      string
	Title     string
	Date      string // YYYY-MM-DD
	Tags      []string
	Summary   string
	Content   string
	CoverURL  string
	Link      string
	Published bool
	Archived  bool
}

// Revision is a snapshot of a post's editable fields, taken before every
// overwrite so edits are never destructive.
type Revision struct {
	ID      int64
	PostID  int64
	Title   string
	Summary string
	Content string
	SavedAt time.Time
}

// User is an admin account that can sign in to the dashboard.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

// Image describes an uploaded cover image stored under the static dir.
type Image struct {
	Filename     string
	OriginalName string
	Width        int
	Height       int
	Size         int
	UploadedAt   string
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
}
