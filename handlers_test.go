package inkpress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/inkpress/inkpress/slug"
)

// testViews renders just enough markup for assertions.
func testViews() ViewFuncs {
	text := func(s string) templ.Component {
		return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			_, err := io.WriteString(w, s)
			return err
		})
	}
	return ViewFuncs{
		Home: func(posts []Post, activeTag string, tags []string, siteURL string) templ.Component {
			return text(fmt.Sprintf("home:%d", len(posts)))
		},
		HomePartial: func(posts []Post, activeTag string, tags []string, siteURL string) templ.Component {
			return text("home-partial")
		},
		BlogSection: func(posts []Post, activeTag string, tags []string) templ.Component {
			return text("blog-section")
		},
		Post: func(post Post, posts []Post, siteURL string) templ.Component {
			return text("post:" + post.Slug)
		},
		PostPartial: func(post Post, posts []Post, siteURL string) templ.Component {
			return text("post-partial:" + post.Slug)
		},
		Preview: func(post Post, expiresAt time.Time, siteURL string) templ.Component {
			return text("preview:" + post.Slug)
		},
		Search: func(posts []Post, query string, siteURL string) templ.Component {
			return text(fmt.Sprintf("search:%s:%d", query, len(posts)))
		},
		AdminLogin: func(showError bool, csrfToken string) templ.Component {
			return text("login:" + csrfToken)
		},
		AdminDashboard: func(posts []Post, message string, csrfToken string) templ.Component {
			return text("dashboard")
		},
		AdminFormPartial: func(post Post, csrfToken string) templ.Component {
			return text("form")
		},
		AdminRevisions: func(post Post, revisions []Revision, csrfToken string) templ.Component {
			return text("revisions")
		},
		AdminImages: func(images []Image, csrfToken string) templ.Component {
			return text("images")
		},
		NotFound:    func() templ.Component { return text("not-found") },
		ServerError: func() templ.Component { return text("server-error") },
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a := New(SiteConfig{
		DatabasePath:  filepath.Join(t.TempDir(), "blog.db"),
		AdminPassword: "test-password",
		SessionSecret: "test-session-secret",
	}, testViews())
	if err := a.bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func (a *App) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHandlePost(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.Store.SavePost(Post{
		Slug: "hello-world", Title: "Hello", Date: "2026-01-15",
		Content: "body", Published: true,
	}); err != nil {
		t.Fatalf("SavePost: %v", err)
	}

	rec := a.get(t, "/blog/hello-world/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "post:hello-world") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandlePostRedirects(t *testing.T) {
	a := newTestApp(t)
	for _, p := range []Post{
		{Slug: "hello-world", Title: "Hello", Date: "2026-01-15", Content: "x", Published: true},
		{Slug: "cafe", Title: "Cafe", Date: "2026-01-16", Content: "x", Published: true},
	} {
		if _, err := a.Store.SavePost(p); err != nil {
			t.Fatalf("SavePost %q: %v", p.Slug, err)
		}
	}

	tests := []struct {
		path     string
		location string
	}{
		{"/blog/Hello-World/", "/blog/hello-world/"},
		{"/blog/caf%C3%A9/", "/blog/cafe/"},
		{"/blog/Hello%20World!/", "/blog/hello-world/"},
	}
	for _, tt := range tests {
		rec := a.get(t, tt.path)
		if rec.Code != http.StatusPermanentRedirect {
			t.Errorf("%s: status = %d, want 308", tt.path, rec.Code)
			continue
		}
		if loc := rec.Header().Get("Location"); loc != tt.location {
			t.Errorf("%s: Location = %q, want %q", tt.path, loc, tt.location)
		}
	}
}

func TestResolveSlugMemoizedPerRequest(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.Store.SavePost(Post{
		Slug: "hello-world", Title: "Hello", Date: "2026-01-15",
		Content: "x", Published: true,
	}); err != nil {
		t.Fatalf("SavePost: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/blog/hello-world/", nil)
	c := a.Echo.NewContext(req, httptest.NewRecorder())

	if res := a.resolveSlug(c, "hello-world"); res.Outcome != slug.Found {
		t.Fatalf("first resolution Outcome = %v, want Found", res.Outcome)
	}

	// A page render consults the same slug more than once. Deleting the
	// post between consultations proves the second one never reaches the
	// store: the memoized result must still come back.
	if err := a.Store.DeletePost("hello-world"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if res := a.resolveSlug(c, "hello-world"); res.Outcome != slug.Found {
		t.Errorf("second resolution Outcome = %v, want Found from the request cache", res.Outcome)
	}

	// A new request starts with an empty cache and sees the deletion.
	fresh := a.Echo.NewContext(httptest.NewRequest(http.MethodGet, "/blog/hello-world/", nil), httptest.NewRecorder())
	if res := a.resolveSlug(fresh, "hello-world"); res.Outcome != slug.NotFound {
		t.Errorf("fresh request Outcome = %v, want NotFound", res.Outcome)
	}
}

func TestHandlePostNotFound(t *testing.T) {
	a := newTestApp(t)
	rec := a.get(t, "/blog/never-existed/")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not-found") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandlePostDraftHidden(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.Store.SavePost(Post{
		Slug: "secret-draft", Title: "Secret", Date: "2026-01-15",
		Content: "x", Published: false,
	}); err != nil {
		t.Fatalf("SavePost: %v", err)
	}
	if rec := a.get(t, "/blog/secret-draft/"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandlePreview(t *testing.T) {
	a := newTestApp(t)
	id, err := a.Store.SavePost(Post{
		Slug: "draft-post", Title: "Draft", Date: "2026-01-15",
		Content: "x", Published: false,
	})
	if err != nil {
		t.Fatalf("SavePost: %v", err)
	}

	tok, err := a.previews.Create(id, time.Hour)
	if err != nil {
		t.Fatalf("Create token: %v", err)
	}

	rec := a.get(t, "/preview/"+tok.Value)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "preview:draft-post") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
}

func TestHandlePreviewInvalidToken(t *testing.T) {
	a := newTestApp(t)
	for _, tok := range []string{"garbage", "a.b", "a.b.c"} {
		if rec := a.get(t, "/preview/"+tok); rec.Code != http.StatusNotFound {
			t.Errorf("token %q: status = %d, want 404", tok, rec.Code)
		}
	}
}

func TestHandleSearch(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.Store.SavePost(Post{
		Slug: "findable", Title: "Findable Thing", Date: "2026-01-15",
		Content: "x", Published: true,
	}); err != nil {
		t.Fatalf("SavePost: %v", err)
	}

	rec := a.get(t, "/search?q=findable")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "search:findable:1") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleRobots(t *testing.T) {
	a := newTestApp(t)
	rec := a.get(t, "/robots.txt")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Disallow: /admin/", "Disallow: /preview/", "sitemap.xml"} {
		if !strings.Contains(body, want) {
			t.Errorf("robots.txt missing %q", want)
		}
	}
}

func TestHandleFeedAndSitemap(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.Store.SavePost(Post{
		Slug: "feed-post", Title: "Feed Post", Date: "2026-01-15",
		Content: "x", Summary: "sum", Published: true,
	}); err != nil {
		t.Fatalf("SavePost: %v", err)
	}

	rec := a.get(t, "/feed.xml")
	if rec.Code != http.StatusOK {
		t.Fatalf("feed status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/blog/feed-post/") {
		t.Errorf("feed body missing post link: %q", rec.Body.String())
	}

	rec = a.get(t, "/sitemap.xml")
	if rec.Code != http.StatusOK {
		t.Fatalf("sitemap status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/blog/feed-post/") {
		t.Errorf("sitemap body missing post URL: %q", rec.Body.String())
	}
}

func TestAdminRequiresLogin(t *testing.T) {
	a := newTestApp(t)
	rec := a.get(t, "/admin/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "login") {
		t.Errorf("body = %q, want the login page", rec.Body.String())
	}
}

func TestPreviewTokenEndpointRejectsForgedRequest(t *testing.T) {
	a := newTestApp(t)
	// A cross-site POST carries neither the CSRF cookie nor the header
	// token; it must be stopped before the handler runs.
	req := httptest.NewRequest(http.MethodPost, "/api/posts/1/preview-token", nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestPreviewTokenEndpointRequiresAuth(t *testing.T) {
	a := newTestApp(t)

	// Obtain a CSRF token and cookie the way a browser session would.
	page := a.get(t, "/admin/")
	body := page.Body.String()
	idx := strings.Index(body, "login:")
	if idx < 0 {
		t.Fatalf("login page body = %q, no token", body)
	}
	token := body[idx+len("login:"):]

	req := httptest.NewRequest(http.MethodPost, "/api/posts/1/preview-token", nil)
	req.Header.Set("X-CSRF-Token", token)
	for _, ck := range page.Result().Cookies() {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
