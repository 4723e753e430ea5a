// Package inkpress is a server-rendered blog platform built with Go, Echo,
// and templ. It provides post CRUD with revisions and tags, an admin
// dashboard, slug generation with CJK transliteration, signed preview
// links for drafts, RSS, and sitemaps out of the box.
//
// Users provide their own templ templates via the ViewFuncs struct;
// inkpress owns the handlers, middleware, and database operations.
package inkpress

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkpress/inkpress/preview"
	"github.com/inkpress/inkpress/stats"
)

// ViewFuncs holds user-provided templ components that the framework calls
// when rendering pages. This is the inversion-of-control mechanism that
// lets users own and customize all templates.
type ViewFuncs struct {
	Home             func(posts []Post, activeTag string, tags []string, siteURL string) templ.Component
	HomePartial      func(posts []Post, activeTag string, tags []string, siteURL string) templ.Component
	BlogSection      func(posts []Post, activeTag string, tags []string) templ.Component
	Post             func(post Post, posts []Post, siteURL string) templ.Component
	PostPartial      func(post Post, posts []Post, siteURL string) templ.Component
	Preview          func(post Post, expiresAt time.Time, siteURL string) templ.Component
	Search           func(posts []Post, query string, siteURL string) templ.Component
	AdminLogin       func(showError bool, csrfToken string) templ.Component
	AdminDashboard   func(posts []Post, message string, csrfToken string) templ.Component
	AdminFormPartial func(post Post, csrfToken string) templ.Component
	AdminRevisions   func(post Post, revisions []Revision, csrfToken string) templ.Component
	AdminImages      func(images []Image, csrfToken string) templ.Component
	NotFound         func() templ.Component
	ServerError      func() templ.Component
}

// App is the central inkpress application. It wires together the store,
// cache, handlers, middleware, and user-provided templates.
type App struct {
	Config SiteConfig
	Echo   *echo.Echo
	Store  *Store
	Cache  *PostCache
	Views  ViewFuncs

	previews     *preview.Issuer
	loginLimiter *LoginLimiter
	statsStore   *stats.Store
	customRoutes []func(*App)
	staticDir    string
}

// New creates a new inkpress App with the given configuration and view functions.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     views,
		staticDir: "public",
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// bootstrap initializes everything short of listening: store, admin user,
// token issuer, cache, limiter, stats, middleware, and routes.
func (a *App) bootstrap() error {
	if a.Config.AdminPassword == "" {
		return fmt.Errorf("inkpress: AdminPassword is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("inkpress: SessionSecret is required")
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("inkpress: init store: %w", err)
	}
	a.Store = store

	if err := a.ensureAdminUser(); err != nil {
		return fmt.Errorf("inkpress: bootstrap admin user: %w", err)
	}

	// The preview secret resolves lazily at first token operation; the
	// session secret is the documented fallback.
	a.previews = preview.NewIssuer(a.Config.PreviewSecret, a.Config.SessionSecret)

	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	if a.Config.StatsEnabled {
		statsStore, err := stats.NewStore(a.Config.StatsDatabasePath)
		if err != nil {
			return fmt.Errorf("inkpress: init stats: %w", err)
		}
		a.statsStore = statsStore
	}

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start initializes the application and serves HTTP until shutdown.
func (a *App) Start() error {
	if err := a.bootstrap(); err != nil {
		return err
	}

	if a.statsStore != nil {
		stopCleanup := a.statsStore.StartCleanupScheduler(a.Config.StatsRetentionDays, 24*time.Hour)
		defer stopCleanup()
	}

	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ensureAdminUser creates the configured admin account on first run. An
// existing user is left untouched, so password changes go through the
// database, not the environment.
func (a *App) ensureAdminUser() error {
	if _, err := a.Store.GetUser(a.Config.AdminUser); err == nil {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(a.Config.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return a.Store.CreateUser(a.Config.AdminUser, string(hash))
}

func (a *App) setupRoutes() {
	e := a.Echo

	// User's static assets
	e.Static("/public", a.staticDir)
	e.GET("/favicon.svg", a.handleFavicon)
	e.GET("/robots.txt", a.handleRobots)

	// Public routes
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/blog", handleBlogRedirect)
	e.GET("/", a.handleHome)
	e.GET("/search", a.handleSearch)
	e.GET("/blog/:slug/", a.handlePost)
	e.GET("/preview/:token", a.handlePreview)

	// Admin routes
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)
	e.GET("/admin/post/:slug/", a.handleAdminPost)
	e.GET("/admin/revisions/:slug/", a.handleAdminRevisions)
	e.POST("/admin/save/", a.handleAdminSave)
	e.DELETE("/admin/post/:slug/", a.handleAdminDelete)
	e.GET("/admin/images/", a.handleImageList)
	e.POST("/admin/images/upload/", a.handleImageUpload)
	e.DELETE("/admin/images/:filename/", a.handleImageDelete)

	// JSON API (authenticated)
	e.POST("/api/posts/:id/preview-token", a.handlePreviewToken)
	if a.Config.StatsEnabled {
		e.GET("/api/stats/posts", a.handlePostStats)
	}
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.Store != nil {
		a.Store.Close()
	}
	if a.statsStore != nil {
		a.statsStore.Close()
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("inkpress: required environment variable %s is not set", key)
	}
	return v
}
