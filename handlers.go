package inkpress

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/inkpress/inkpress/slug"
)

func (a *App) handleHome(c echo.Context) error {
	tag := c.QueryParam("tag")
	posts, err := a.Cache.ListPosts(tag)
	if err != nil {
		return err
	}
	tags, err := a.Cache.ListTags()
	if err != nil {
		return err
	}
	if c.Request().Header.Get("HX-Request") == "true" {
		partial := c.QueryParam("partial")
		switch partial {
		case "blog":
			return Render(c, a.Views.BlogSection(posts, tag, tags))
		case "home":
			return Render(c, a.Views.HomePartial(posts, tag, tags, a.Config.URL))
		}
	}
	return Render(c, a.Views.Home(posts, tag, tags, a.Config.URL))
}

// resolutionCacheKey indexes the per-request slug resolution cache on the
// echo context. One page render may consult the same raw slug more than
// once (body and metadata); the second consultation must not hit the store.
const resolutionCacheKey = "inkpress_slug_resolutions"

// resolveSlug resolves a raw inbound slug against the published-post index,
// memoizing results for the lifetime of the request.
func (a *App) resolveSlug(c echo.Context, raw string) slug.Resolution {
	cached, _ := c.Get(resolutionCacheKey).(map[string]slug.Resolution)
	if cached == nil {
		cached = make(map[string]slug.Resolution)
		c.Set(resolutionCacheKey, cached)
	}
	if res, ok := cached[raw]; ok {
		return res
	}
	res := slug.Resolve(raw, func(key string) (string, bool) {
		p, err := a.Store.FindPublishedBySlug(key)
		if err != nil {
			return "", false
		}
		return p.Slug, true
	})
	cached[raw] = res
	return res
}

// handlePost serves a single blog post. Legacy, percent-encoded, or
// differently-cased slugs are repaired with a permanent redirect to the
// canonical path rather than a 404.
func (a *App) handlePost(c echo.Context) error {
	raw := c.Param("slug")
	res := a.resolveSlug(c, raw)
	switch res.Outcome {
	case slug.Redirect:
		return c.Redirect(http.StatusPermanentRedirect, "/blog/"+res.Location+"/")
	case slug.NotFound:
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}

	post, err := a.Cache.GetPost(res.Slug)
	if err != nil {
		if err == ErrNotFound {
			return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		}
		return err
	}
	if a.statsStore != nil {
		if err := a.statsStore.Record(post.ID); err != nil {
			c.Logger().Warnf("record view for post %d: %v", post.ID, err)
		}
	}
	posts, err := a.Cache.ListPosts("")
	if err != nil {
		return err
	}
	if c.Request().Header.Get("HX-Request") == "true" && c.QueryParam("partial") == "post" {
		return Render(c, a.Views.PostPartial(post, posts, a.Config.URL))
	}
	return Render(c, a.Views.Post(post, posts, a.Config.URL))
}

// handlePreview serves a draft (or any) post through a signed, time-limited
// token. Invalid and expired tokens render the not-found page; only a
// missing signing secret is a server error.
func (a *App) handlePreview(c echo.Context) error {
	payload, err := a.previews.Verify(c.Param("token"))
	if err != nil {
		return err
	}
	if payload == nil {
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}
	post, err := a.Store.GetPostByID(payload.PostID)
	if err != nil {
		if err == sql.ErrNoRows {
			return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		}
		return err
	}
	return Render(c, a.Views.Preview(post, payload.ExpiresAt(), a.Config.URL))
}

func (a *App) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	posts, err := a.Store.SearchPosts(query)
	if err != nil {
		return err
	}
	return Render(c, a.Views.Search(posts, query, a.Config.URL))
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Cache.ListPosts("")
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.ListPosts("")
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func handleBlogRedirect(c echo.Context) error {
	return c.Redirect(http.StatusMovedPermanently, "/")
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(a.staticDir + "/favicon.svg")
}

// handleRobots generates robots.txt dynamically so the sitemap URL tracks
// the configured site URL.
func (a *App) handleRobots(c echo.Context) error {
	body := fmt.Sprintf("User-agent: *\nAllow: /\nDisallow: /admin/\nDisallow: /preview/\n\nSitemap: %s/sitemap.xml\n", a.Config.URL)
	return c.String(http.StatusOK, body)
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
