package main

import (
	"context"
	"fmt"
	"html"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/inkpress/inkpress"
	"github.com/inkpress/inkpress/markdown"
)

// defaultViews returns a minimal unstyled template set. Real sites replace
// these with their own templ components via inkpress.ViewFuncs.
func defaultViews() inkpress.ViewFuncs {
	return inkpress.ViewFuncs{
		Home:        homeView,
		HomePartial: postListView,
		BlogSection: func(posts []inkpress.Post, activeTag string, tags []string) templ.Component {
			return postListView(posts, activeTag, tags, "")
		},
		Post:        postView,
		PostPartial: postView,
		Preview: func(post inkpress.Post, expiresAt time.Time, siteURL string) templ.Component {
			return page(post.Title, func(ctx context.Context, w io.Writer) error {
				fmt.Fprintf(w, "<p><em>Preview, link expires %s</em></p>",
					html.EscapeString(expiresAt.Format(time.RFC1123)))
				return postBody(ctx, w, post)
			})
		},
		Search: func(posts []inkpress.Post, query string, siteURL string) templ.Component {
			return page("Search: "+query, func(ctx context.Context, w io.Writer) error {
				return renderPostList(ctx, w, posts)
			})
		},
		AdminLogin: func(showError bool, csrfToken string) templ.Component {
			return page("Login", func(ctx context.Context, w io.Writer) error {
				if showError {
					io.WriteString(w, "<p>Invalid credentials.</p>")
				}
				fmt.Fprintf(w, `<form method="post" action="/admin/login/">`+
					`<input type="hidden" name="csrf" value="%s">`+
					`<input name="username" placeholder="Username">`+
					`<input name="password" type="password" placeholder="Password">`+
					`<button>Log in</button></form>`, html.EscapeString(csrfToken))
				return nil
			})
		},
		AdminDashboard: func(posts []inkpress.Post, message string, csrfToken string) templ.Component {
			return page("Admin", func(ctx context.Context, w io.Writer) error {
				if message != "" {
					fmt.Fprintf(w, "<p>%s</p>", html.EscapeString(message))
				}
				return renderPostList(ctx, w, posts)
			})
		},
		AdminFormPartial: func(post inkpress.Post, csrfToken string) templ.Component {
			return page("Edit: "+post.Title, func(ctx context.Context, w io.Writer) error {
				fmt.Fprintf(w, "<p>Editing %s</p>", html.EscapeString(post.Slug))
				return nil
			})
		},
		AdminRevisions: func(post inkpress.Post, revisions []inkpress.Revision, csrfToken string) templ.Component {
			return page("Revisions: "+post.Title, func(ctx context.Context, w io.Writer) error {
				for _, r := range revisions {
					fmt.Fprintf(w, "<p>%s: %s</p>",
						html.EscapeString(r.SavedAt.Format(time.RFC3339)),
						html.EscapeString(r.Title))
				}
				return nil
			})
		},
		AdminImages: func(images []inkpress.Image, csrfToken string) templ.Component {
			return page("Images", func(ctx context.Context, w io.Writer) error {
				for _, img := range images {
					fmt.Fprintf(w, "<p>%s (%dx%d)</p>",
						html.EscapeString(img.Filename), img.Width, img.Height)
				}
				return nil
			})
		},
		NotFound: func() templ.Component {
			return page("Not Found", func(ctx context.Context, w io.Writer) error {
				_, err := io.WriteString(w, "<p>Page not found.</p>")
				return err
			})
		},
		ServerError: func() templ.Component {
			return page("Error", func(ctx context.Context, w io.Writer) error {
				_, err := io.WriteString(w, "<p>Something went wrong.</p>")
				return err
			})
		},
	}
}

func page(title string, body func(ctx context.Context, w io.Writer) error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		fmt.Fprintf(w, "<!doctype html><html><head><title>%s</title></head><body><h1>%s</h1>",
			html.EscapeString(title), html.EscapeString(title))
		if err := body(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

func homeView(posts []inkpress.Post, activeTag string, tags []string, siteURL string) templ.Component {
	title := "Blog"
	if activeTag != "" {
		title = "Blog: " + activeTag
	}
	return page(title, func(ctx context.Context, w io.Writer) error {
		return renderPostList(ctx, w, posts)
	})
}

func postListView(posts []inkpress.Post, activeTag string, tags []string, siteURL string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return renderPostList(ctx, w, posts)
	})
}

func renderPostList(ctx context.Context, w io.Writer, posts []inkpress.Post) error {
	io.WriteString(w, "<ul>")
	for _, p := range posts {
		fmt.Fprintf(w, `<li><a href="/blog/%s/">%s</a> <small>%s</small></li>`,
			inkpress.PathEscape(p.Slug), html.EscapeString(p.Title), html.EscapeString(p.Date))
	}
	_, err := io.WriteString(w, "</ul>")
	return err
}

func postView(post inkpress.Post, posts []inkpress.Post, siteURL string) templ.Component {
	return page(post.Title, func(ctx context.Context, w io.Writer) error {
		return postBody(ctx, w, post)
	})
}

func postBody(ctx context.Context, w io.Writer, post inkpress.Post) error {
	fmt.Fprintf(w, "<p><time>%s</time></p><article>", html.EscapeString(post.Date))
	if err := markdown.Markdown(post.Content).Render(ctx, w); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</article>")
	return err
}
