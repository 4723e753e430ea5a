package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/inkpress/inkpress"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	// Missing .env is fine, real deployments set the environment directly.
	_ = godotenv.Load()

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		if err := runServe(); err != nil {
			log.Fatal(err)
		}
	case "migrate-slugs":
		if err := runMigrateSlugs(); err != nil {
			log.Fatal(err)
		}
	case "version":
		fmt.Printf("inkpress %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func configFromEnv() inkpress.SiteConfig {
	return inkpress.SiteConfig{
		Name:        inkpress.EnvOr("SITE_NAME", "Blog"),
		URL:         inkpress.EnvOr("SITE_URL", "http://localhost:3000"),
		Description: os.Getenv("SITE_DESCRIPTION"),
		Author:      os.Getenv("SITE_AUTHOR"),

		Addr:         inkpress.EnvOr("ADDR", ":3000"),
		DatabasePath: inkpress.EnvOr("DATABASE_PATH", "data/blog.db"),

		AdminUser:     inkpress.EnvOr("ADMIN_USER", "admin"),
		AdminPassword: inkpress.MustEnv("ADMIN_PASSWORD"),
		SessionSecret: inkpress.MustEnv("SESSION_SECRET"),
		PreviewSecret: os.Getenv("PREVIEW_TOKEN_SECRET"),
		CookieSecure:  envBool("COOKIE_SECURE"),

		StatsEnabled:       envBool("STATS_ENABLED"),
		StatsDatabasePath:  inkpress.EnvOr("STATS_DATABASE_PATH", "data/stats.db"),
		StatsRetentionDays: envInt("STATS_RETENTION_DAYS", 365),

		PostCacheTTL: envDuration("POST_CACHE_TTL", 5*time.Minute),
	}
}

func runServe() error {
	app := inkpress.New(configFromEnv(), defaultViews(),
		inkpress.WithStaticDir(inkpress.EnvOr("STATIC_DIR", "public")))
	defer app.Close()
	return app.Start()
}

func runMigrateSlugs() error {
	store, err := inkpress.NewStore(inkpress.EnvOr("DATABASE_PATH", "data/blog.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.MigrateSlugs(log.Printf)
	if err != nil {
		return err
	}
	fmt.Printf("migrated %d slug(s)\n", n)
	return nil
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println(`inkpress - A server-rendered blog engine built with Go, Echo, and templ

Usage:
  inkpress <command> [arguments]

Commands:
  serve          Start the blog server (default)
  migrate-slugs  Rewrite stored post slugs into canonical form
  version        Print the inkpress version
  help           Show this help message

Configuration is read from the environment (or a .env file).
ADMIN_PASSWORD and SESSION_SECRET are required; optional variables include
SITE_NAME, SITE_URL, ADDR, DATABASE_PATH, PREVIEW_TOKEN_SECRET,
STATS_ENABLED, and STATS_RETENTION_DAYS.`)
}
