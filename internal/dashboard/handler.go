// Package dashboard serves the per-role dashboard shells. The shells are
// collaborators of the session core: they consume the profile the route
// guard injected and render a frame for the role's widgets.
package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/barkeep-app/barkeep/internal/guard"
	"github.com/barkeep-app/barkeep/internal/shared"
	"github.com/barkeep-app/barkeep/internal/view"
)

// Handler renders dashboard shells.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{logger: logger, templates: templates, csrf: csrf}
}

type shellData struct {
	Section string
}

// Shell returns a handler rendering the named dashboard section for the
// authenticated user.
func (h *Handler) Shell(section string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := guard.ProfileFromContext(r.Context())
		if !ok {
			// Shells are only mounted behind the guard.
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}

		br := shared.BrowserFromContext(r.Context())
		csrfToken := ""
		var flash *shared.FlashMessage
		if br != nil {
			csrfToken, _ = h.csrf.EnsureToken(r.Context(), br)
			flash = br.PopFlash()
		}

		data := view.TemplateData{
			Title:       section,
			CSRFToken:   csrfToken,
			Flash:       flash,
			CurrentPath: r.URL.Path,
			User:        &user,
			Data:        shellData{Section: section},
		}
		if err := h.templates.Render(w, "pages/dashboard.html", data); err != nil {
			h.logger.Error("render dashboard", slog.String("section", section), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}
