package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlashMessage represents a one-time notification stored in the browser session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BrowserManager orchestrates cookie based browser sessions backed by Redis.
// A browser session carries presentation state (flashes, CSRF token) and is
// the key under which the auth token cache stores credentials. It is shared
// across tabs of the same browser profile; a logout in one tab is observed
// by another tab on its next request, not pushed live.
type BrowserManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Browser holds per-request browser session data.
type Browser struct {
	ID        string
	values    map[string]string
	flashes   []FlashMessage
	isNew     bool
	dirty     bool
	destroyed bool
}

type browserPayload struct {
	Values  map[string]string `json:"values"`
	Flashes []FlashMessage    `json:"flashes"`
}

// NewBrowserManager constructs a BrowserManager.
func NewBrowserManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *BrowserManager {
	return &BrowserManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load loads or creates a browser session for the request.
func (bm *BrowserManager) Load(ctx context.Context, r *http.Request) (*Browser, error) {
	cookie, err := r.Cookie(bm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return bm.newBrowser(), nil
		}
		return nil, err
	}

	payload, err := bm.client.Get(ctx, bm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			br := bm.newBrowser()
			br.ID = cookie.Value
			br.isNew = true
			return br, nil
		}
		return nil, err
	}

	var stored browserPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}

	br := bm.newBrowser()
	br.ID = cookie.Value
	br.values = stored.Values
	br.flashes = stored.Flashes
	br.isNew = false
	return br, nil
}

// Commit persists the browser session and writes cookie headers as needed.
func (bm *BrowserManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, br *Browser) error {
	if br == nil {
		return nil
	}

	if br.destroyed {
		if err := bm.client.Del(ctx, bm.redisKey(br.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     bm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   bm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if br.isNew && br.ID == "" {
		br.ID = bm.generateID()
	}

	if br.dirty || br.isNew {
		payload := browserPayload{Values: br.values, Flashes: br.flashes}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := bm.client.Set(ctx, bm.redisKey(br.ID), data, bm.ttl).Err(); err != nil {
			return err
		}
		br.dirty = false
	}

	if br.ID != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     bm.cookieName,
			Value:    br.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   bm.secure,
			SameSite: http.SameSiteStrictMode,
			Expires:  time.Now().Add(bm.ttl),
		})
	}

	return nil
}

// Destroy marks the browser session for deletion.
func (bm *BrowserManager) Destroy(br *Browser) {
	if br == nil {
		return
	}
	br.destroyed = true
}

// TTL exposes the configured browser session lifetime.
func (bm *BrowserManager) TTL() time.Duration {
	return bm.ttl
}

// CookieName returns the cookie identifier used for browser sessions.
func (bm *BrowserManager) CookieName() string {
	return bm.cookieName
}

// Set stores a key-value pair.
func (b *Browser) Set(key, value string) {
	if b.values == nil {
		b.values = make(map[string]string)
	}
	b.values[key] = value
	b.dirty = true
}

// Get retrieves a value.
func (b *Browser) Get(key string) string {
	if b.values == nil {
		return ""
	}
	return b.values[key]
}

// Delete removes a value.
func (b *Browser) Delete(key string) {
	if b.values == nil {
		return
	}
	delete(b.values, key)
	b.dirty = true
}

// AddFlash queues a flash message.
func (b *Browser) AddFlash(msg FlashMessage) {
	b.flashes = append(b.flashes, msg)
	b.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (b *Browser) PopFlash() *FlashMessage {
	if len(b.flashes) == 0 {
		return nil
	}
	msg := b.flashes[0]
	b.flashes = b.flashes[1:]
	b.dirty = true
	return &msg
}

func (bm *BrowserManager) newBrowser() *Browser {
	return &Browser{
		ID:     bm.generateID(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
	}
}

func (bm *BrowserManager) redisKey(id string) string {
	return "browser:" + id
}

func (bm *BrowserManager) generateID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(bm.secret) > 0 {
		for i := range b {
			b[i] ^= bm.secret[i%len(bm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
