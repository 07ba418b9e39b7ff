// Package authweb wires the HTTP endpoints for login and logout. It is a
// thin adapter: form handling and rendering live here, every state
// transition lives in the session controller.
package authweb

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/barkeep-app/barkeep/internal/observability"
	"github.com/barkeep-app/barkeep/internal/roles"
	"github.com/barkeep-app/barkeep/internal/session"
	"github.com/barkeep-app/barkeep/internal/shared"
	"github.com/barkeep-app/barkeep/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	sessions  *session.Controller
	templates *view.Engine
	browsers  *shared.BrowserManager
	csrf      *shared.CSRFManager
	metrics   *observability.Metrics
	validate  *validator.Validate
}

// NewHandler constructs a Handler instance. Metrics may be nil.
func NewHandler(logger *slog.Logger, sessions *session.Controller, templates *view.Engine, browsers *shared.BrowserManager, csrf *shared.CSRFManager, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		sessions:  sessions,
		templates: templates,
		browsers:  browsers,
		csrf:      csrf,
		metrics:   metrics,
		validate:  validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	br := shared.BrowserFromContext(r.Context())

	// A browser that already holds a live session goes straight to its
	// landing page.
	if br != nil {
		sess := h.sessions.Resolve(r.Context(), br.ID)
		if sess.AuthenticatedAt(time.Now()) {
			http.Redirect(w, r, roles.LandingRoute(sess.CurrentUser.Role), http.StatusSeeOther)
			return
		}
	}

	h.renderLogin(w, r, http.StatusOK, loginPageData{Form: loginForm{}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	br := shared.BrowserFromContext(r.Context())
	if br == nil {
		h.logger.Error("browser session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	formErrors := make(map[string]string)
	if err := h.validate.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			formErrors[fieldErr.Field()] = fieldErr.Error()
		}
	}

	if len(formErrors) == 0 {
		ctx := session.ContextWithRequestMetadata(r.Context(), session.RequestMetadata{
			IP:        r.RemoteAddr,
			UserAgent: r.UserAgent(),
		})
		sess, route, err := h.sessions.Login(ctx, br.ID, form.Email, form.Password)
		switch {
		case err == session.ErrLoginInFlight:
			br.AddFlash(shared.FlashMessage{Kind: "info", Message: "Sign-in already in progress"})
			http.Redirect(w, r, roles.LoginRoute, http.StatusSeeOther)
			return
		case err != nil:
			h.logger.Error("login", slog.Any("error", err))
			formErrors["general"] = session.GenericLoginError
		case route != "":
			h.metrics.RecordLogin("success")
			br.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
			http.Redirect(w, r, route, http.StatusSeeOther)
			return
		default:
			h.metrics.RecordLogin("rejected")
			formErrors["general"] = sess.LastError
		}
	}

	form.Password = ""
	h.renderLogin(w, r, http.StatusBadRequest, loginPageData{Form: form, Errors: formErrors})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	br := shared.BrowserFromContext(r.Context())
	route := roles.LoginRoute
	if br != nil {
		_, route = h.sessions.Logout(r.Context(), br.ID)
		h.browsers.Destroy(br)
	}
	http.Redirect(w, r, route, http.StatusSeeOther)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	br := shared.BrowserFromContext(r.Context())
	csrfToken := ""
	var flash *shared.FlashMessage
	if br != nil {
		csrfToken, _ = h.csrf.EnsureToken(r.Context(), br)
		flash = br.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
