package app

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/barkeep-app/barkeep/internal/authweb"
	"github.com/barkeep-app/barkeep/internal/dashboard"
	"github.com/barkeep-app/barkeep/internal/guard"
	"github.com/barkeep-app/barkeep/internal/observability"
	"github.com/barkeep-app/barkeep/internal/roles"
	"github.com/barkeep-app/barkeep/internal/shared"
	"github.com/barkeep-app/barkeep/jobs"
	"github.com/barkeep-app/barkeep/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Browsers         *shared.BrowserManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *authweb.Handler
	DashboardHandler *dashboard.Handler
	Gate             guard.Gate
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Barkeep defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Browsers:    params.Browsers,
		CSRFManager: params.CSRFManager,
		Metrics:     params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// The bare root resolves to the role landing page; the guard takes
	// care of bouncing unauthenticated visitors to the login form.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		br := shared.BrowserFromContext(r.Context())
		if br == nil {
			http.Redirect(w, r, roles.LoginRoute, http.StatusSeeOther)
			return
		}
		sess := params.Gate.Sessions.Resolve(r.Context(), br.ID)
		if sess.CurrentUser != nil {
			http.Redirect(w, r, roles.LandingRoute(sess.CurrentUser.Role), http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, roles.LoginRoute, http.StatusSeeOther)
	})

	r.Route("/auth", func(r chi.Router) {
		loginLimit := 10
		if params.Config != nil && params.Config.LoginRateLimit > 0 {
			loginLimit = params.Config.LoginRateLimit
		}
		// Tighter rate limit on the credential exchange than on the rest
		// of the app.
		r.Use(httprate.Limit(loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		params.AuthHandler.MountRoutes(r)
	})

	d := params.DashboardHandler
	section := func(path, title string, allowed ...roles.Role) {
		r.Route(path, func(r chi.Router) {
			r.Use(params.Gate.Protect(allowed...))
			r.Get("/dashboard", d.Shell(title))
		})
	}
	section("/saas-admin", "Platform administration", roles.SaasAdmin)
	section("/tenant-admin", "Tenant administration", roles.TenantAdmin)
	// Tenant admins may review the shop manager dashboards.
	section("/manager", "Shop management", roles.Manager, roles.TenantAdmin)
	section("/assistant-manager", "Shift operations", roles.AssistantManager)
	section("/executive", "Executive overview", roles.Executive)

	// Generic landing: any authenticated role.
	r.Group(func(r chi.Router) {
		r.Use(params.Gate.Protect())
		r.Get(roles.DefaultLanding, d.Shell("Dashboard"))
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
