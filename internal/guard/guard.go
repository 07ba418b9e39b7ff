// Package guard gates every protected route on the current session. For a
// navigation attempt it decides one of three outcomes: serve the content,
// serve a loading placeholder while the silent restore resolves, or
// redirect.
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/barkeep-app/barkeep/internal/roles"
	"github.com/barkeep-app/barkeep/internal/session"
	"github.com/barkeep-app/barkeep/internal/shared"
	"github.com/barkeep-app/barkeep/internal/view"
)

// SessionResolver yields the session for a browser, running the silent
// restore when needed. Implemented by session.Controller.
type SessionResolver interface {
	Resolve(ctx context.Context, browserID string) session.Session
}

// Gate builds route-guard middleware from session state.
type Gate struct {
	Sessions SessionResolver
	Views    *view.Engine
	Logger   *slog.Logger
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Protect returns middleware enforcing a route access policy. An empty
// role set means any authenticated role may pass. The decision order is
// fixed: restoring wins over everything (even a role-mismatched route
// shows loading, never a redirect), then authentication, then role.
func (g Gate) Protect(allowed ...roles.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			br := shared.BrowserFromContext(r.Context())
			if br == nil {
				http.Redirect(w, r, roles.LoginRoute, http.StatusSeeOther)
				return
			}

			sess := g.Sessions.Resolve(r.Context(), br.ID)

			if sess.Status == session.StatusInitializing {
				g.renderLoading(w, r)
				return
			}

			// The originally requested target is discarded, not queued:
			// after a fresh login the user starts at their role's landing
			// page, not here.
			if !sess.AuthenticatedAt(g.now()) {
				http.Redirect(w, r, roles.LoginRoute, http.StatusSeeOther)
				return
			}

			if len(allowed) > 0 && !roles.Member(sess.CurrentUser.Role, allowed) {
				http.Redirect(w, r, roles.LandingRoute(sess.CurrentUser.Role), http.StatusSeeOther)
				return
			}

			ctx := ContextWithProfile(r.Context(), *sess.CurrentUser)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g Gate) renderLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "1")
	if g.Views == nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Signing you in..."))
		return
	}
	data := view.TemplateData{Title: "Loading", CurrentPath: r.URL.Path}
	if err := g.Views.Render(w, "pages/loading.html", data); err != nil {
		if g.Logger != nil {
			g.Logger.Error("render loading", slog.Any("error", err))
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (g Gate) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now()
}

type profileContextKey struct{}

// ContextWithProfile stores the authenticated profile in context.
func ContextWithProfile(ctx context.Context, user session.Profile) context.Context {
	return context.WithValue(ctx, profileContextKey{}, user)
}

// ProfileFromContext extracts the authenticated profile set by Protect.
func ProfileFromContext(ctx context.Context) (session.Profile, bool) {
	user, ok := ctx.Value(profileContextKey{}).(session.Profile)
	return user, ok
}
