package inkpress

import (
	"database/sql"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkpress/inkpress/preview"
	"github.com/inkpress/inkpress/slug"
)

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(false, CsrfToken(c)))
	}
	return a.renderAdminDashboard(c, c.QueryParam("msg"))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	if !a.loginLimiter.Check(c.RealIP()) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	username := strings.TrimSpace(c.FormValue("username"))
	if username == "" {
		username = a.Config.AdminUser
	}
	pass := c.FormValue("password")

	user, err := a.Store.GetUser(username)
	if err != nil {
		if err != sql.ErrNoRows {
			return err
		}
		// Unknown user: burn a hash comparison anyway so the response time
		// does not reveal which usernames exist.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(pass))
		a.loginLimiter.Record(c.RealIP())
		return Render(c, a.Views.AdminLogin(true, CsrfToken(c)))
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(pass)) != nil {
		a.loginLimiter.Record(c.RealIP())
		return Render(c, a.Views.AdminLogin(true, CsrfToken(c)))
	}
	if err := setAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func (a *App) handleAdminPost(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	post, err := a.Store.GetPostAny(c.Param("slug"))
	if err != nil {
		if err == sql.ErrNoRows {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return Render(c, a.Views.AdminFormPartial(post, CsrfToken(c)))
}

func (a *App) handleAdminRevisions(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	post, err := a.Store.GetPostAny(c.Param("slug"))
	if err != nil {
		if err == sql.ErrNoRows {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	revisions, err := a.Store.ListRevisions(post.ID)
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminRevisions(post, revisions, CsrfToken(c)))
}

// resolvePostSlug picks the slug for a save: an explicit override wins
// (normalized if not already canonical), otherwise the slug derives from
// the title. Uniqueness is resolved against an advisory snapshot of every
// slug in use, excluding the post's own current slug on edits.
func (a *App) resolvePostSlug(override, title, current string) (string, error) {
	base := strings.TrimSpace(override)
	if base == "" {
		base = title
	}
	if !slug.IsCanonical(base) {
		base = slug.Canonical(base)
	}
	if base == current {
		return base, nil
	}
	taken, err := a.Store.TakenSlugs()
	if err != nil {
		return "", err
	}
	delete(taken, current)
	return slug.ResolveUnique(base, taken, nil)
}

func (a *App) handleAdminSave(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	if err := c.Request().ParseForm(); err != nil {
		return err
	}
	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" && strings.TrimSpace(c.FormValue("slug")) == "" {
		return c.Redirect(http.StatusSeeOther, "/admin/?msg=Title+or+slug+is+required.")
	}
	date := strings.TrimSpace(c.FormValue("date"))
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return c.Redirect(http.StatusSeeOther, "/admin/?msg=Invalid+date+format.+Use+YYYY-MM-DD.")
	}

	var id int64
	var currentSlug string
	if v := c.FormValue("id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.Redirect(http.StatusSeeOther, "/admin/?msg=Invalid+post+id.")
		}
		existing, err := a.Store.GetPostByID(parsed)
		if err != nil {
			if err == sql.ErrNoRows {
				return c.Redirect(http.StatusSeeOther, "/admin/?msg=Post+not+found.")
			}
			return err
		}
		id = existing.ID
		currentSlug = existing.Slug
	}

	postSlug, err := a.resolvePostSlug(c.FormValue("slug"), title, currentSlug)
	if err != nil {
		if err == slug.ErrGenerationExhausted {
			return c.Redirect(http.StatusSeeOther, "/admin/?msg=Could+not+find+a+unique+slug.+Pick+one+manually.")
		}
		return err
	}

	tags := strings.Split(c.FormValue("tags"), ",")
	for i := range tags {
		tags[i] = strings.TrimSpace(tags[i])
	}
	post := Post{
		ID:        id,
		Slug:      postSlug,
		Title:     title,
		Date:      date,
		Tags:      FilterEmpty(tags),
		Summary:   c.FormValue("summary"),
		Content:   c.FormValue("content"),
		CoverURL:  strings.TrimSpace(c.FormValue("cover_url")),
		Published: c.FormValue("published") != "",
		Archived:  c.FormValue("archived") != "",
	}

	if _, err := a.Store.SavePost(post); err != nil {
		// The unique index beat our advisory check in a race; retry once
		// with a random suffix before surfacing the failure.
		if err == ErrSlugTaken {
			post.Slug = postSlug + "-" + slug.RandomID(slug.RandomIDLength)
			_, err = a.Store.SavePost(post)
		}
		if err != nil {
			return err
		}
	}
	a.Cache.Invalidate()
	return a.renderAdminDashboard(c, "saved")
}

func (a *App) handleAdminDelete(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	if err := a.Store.DeletePost(c.Param("slug")); err != nil && err != sql.ErrNoRows {
		return err
	}
	a.Cache.Invalidate()
	return a.renderAdminDashboard(c, "deleted")
}

func (a *App) renderAdminDashboard(c echo.Context, msg string) error {
	posts, err := a.Store.ListAllPosts()
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminDashboard(posts, msg, CsrfToken(c)))
}

// handlePreviewToken issues a signed preview link for one post. Drafts are
// the point; archived posts are refused.
func (a *App) handlePreviewToken(c echo.Context) error {
	if !IsAdmin(c) {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid post id")
	}
	post, err := a.Store.GetPostByID(id)
	if err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "post not found")
		}
		return err
	}
	if post.Archived {
		return echo.NewHTTPError(http.StatusConflict, "post is archived")
	}

	var ttl time.Duration
	if v := c.FormValue("ttl_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid ttl_ms")
		}
		ttl = time.Duration(ms) * time.Millisecond
	}

	tok, err := a.previews.Create(post.ID, ttl)
	if err != nil {
		return err
	}
	expiresAt := tok.Payload.ExpiresAt()
	effectiveTTL := ttl
	if effectiveTTL <= 0 {
		effectiveTTL = preview.DefaultTTL
	}
	return c.JSON(http.StatusOK, map[string]any{
		"token":       tok.Value,
		"previewUrl":  a.Config.URL + "/preview/" + url.PathEscape(tok.Value),
		"expiresAt":   expiresAt.UTC().Format(time.RFC3339),
		"expiresInMs": time.Until(expiresAt).Milliseconds(),
		"ttlMs":       effectiveTTL.Milliseconds(),
	})
}

// handlePostStats returns per-post view totals for the admin dashboard.
func (a *App) handlePostStats(c echo.Context) error {
	if !IsAdmin(c) {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	totals, err := a.statsStore.Totals()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, totals)
}
