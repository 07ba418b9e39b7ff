// Package idstub is a self-contained identity API for local development.
// It speaks the same HTTP contract as the production identity service:
// credential exchange, profile lookup and token revocation, with bearer
// tokens issued as signed JWTs.
package idstub

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/barkeep-app/barkeep/internal/platform/httpx"
	"github.com/barkeep-app/barkeep/internal/roles"
	"github.com/barkeep-app/barkeep/internal/session"
)

const invalidCredentialsMessage = "Invalid email or password"

// Account pairs a seeded profile with its password hash.
type Account struct {
	Profile      session.Profile
	PasswordHash []byte
}

// Server implements the identity API against an in-memory account table.
type Server struct {
	logger   *slog.Logger
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time

	mu       sync.Mutex
	accounts map[string]Account
	revoked  map[string]struct{}
}

// Config configures the stub. A nil Clock uses time.Now.
type Config struct {
	Logger   *slog.Logger
	Secret   string
	TokenTTL time.Duration
	Clock    func() time.Time
}

// NewServer constructs a Server with no accounts seeded.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Server{
		logger:   logger,
		secret:   []byte(cfg.Secret),
		tokenTTL: ttl,
		now:      clock,
		accounts: make(map[string]Account),
		revoked:  make(map[string]struct{}),
	}
}

// Seed registers an account. The profile ID is generated when empty.
func (s *Server) Seed(profile session.Profile, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(profile.Email)] = Account{Profile: profile, PasswordHash: hash}
	return nil
}

// SeedDefaults loads one account per role, all with the given password.
func (s *Server) SeedDefaults(password string) error {
	seeds := []session.Profile{
		{Email: "saas@barkeep.dev", FullName: "Sasha Admin", Role: roles.SaasAdmin},
		{Email: "tenant@barkeep.dev", FullName: "Toni Admin", Role: roles.TenantAdmin, TenantID: "tenant-demo"},
		{Email: "manager@barkeep.dev", FullName: "Morgan Manager", Role: roles.Manager, TenantID: "tenant-demo",
			AssignedShops: []session.Shop{{ID: "shop-1", Name: "Riverside Liquors"}}},
		{Email: "assistant@barkeep.dev", FullName: "Ashley Shift", Role: roles.AssistantManager, TenantID: "tenant-demo",
			AssignedShops: []session.Shop{{ID: "shop-1", Name: "Riverside Liquors"}}},
		{Email: "exec@barkeep.dev", FullName: "Evelyn Exec", Role: roles.Executive, TenantID: "tenant-demo"},
	}
	for _, profile := range seeds {
		if err := s.Seed(profile, password); err != nil {
			return err
		}
	}
	return nil
}

// Routes builds the stub's HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/logout", s.handleLogout)
	r.Get("/api/auth/me", s.handleProfile)
	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string          `json:"token"`
	User  session.Profile `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}

	s.mu.Lock()
	account, ok := s.accounts[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok {
		// Burn a comparison anyway so lookups and mismatches take the
		// same time.
		_ = bcrypt.CompareHashAndPassword(placeholderHash, []byte(req.Password))
		httpx.Error(w, http.StatusUnauthorized, invalidCredentialsMessage)
		return
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(req.Password)); err != nil {
		httpx.Error(w, http.StatusUnauthorized, invalidCredentialsMessage)
		return
	}

	token, err := s.issueToken(account.Profile)
	if err != nil {
		s.logger.Error("issue token", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "token issuance failed")
		return
	}
	httpx.JSON(w, http.StatusOK, authResponse{Token: token, User: account.Profile})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	s.mu.Lock()
	s.revoked[raw] = struct{}{}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		httpx.Error(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	s.mu.Lock()
	_, isRevoked := s.revoked[raw]
	s.mu.Unlock()
	if isRevoked {
		httpx.Error(w, http.StatusUnauthorized, "token revoked")
		return
	}

	claims, err := s.verifyToken(raw)
	if err != nil {
		httpx.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}

	s.mu.Lock()
	account, ok := s.accounts[strings.ToLower(claims.Email)]
	s.mu.Unlock()
	if !ok || account.Profile.ID != claims.Subject {
		httpx.Error(w, http.StatusUnauthorized, "unknown account")
		return
	}
	httpx.JSON(w, http.StatusOK, authResponse{User: account.Profile})
}

type stubClaims struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(profile session.Profile) (string, error) {
	now := s.now()
	claims := stubClaims{
		Email:    profile.Email,
		Role:     profile.Role.String(),
		TenantID: profile.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			Issuer:    "barkeep-idstub",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) verifyToken(raw string) (*stubClaims, error) {
	claims := &stubClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Pre-computed bcrypt hash of an unguessable value, used to equalize
// timing for unknown accounts.
var placeholderHash = func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return hash
}()
