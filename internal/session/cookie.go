package session

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const (
	CookieName = "melt_render_session"
	idKey      = "session_id"
)

// CookieManager hands every browser a signed cookie carrying a session id and
// binds that id to the request context.
type CookieManager struct {
	store  *sessions.CookieStore
	logger *slog.Logger
}

// NewCookieManager signs cookies with secret. An empty secret gets a random
// one, which invalidates cookies on restart.
func NewCookieManager(secret string, logger *slog.Logger) *CookieManager {
	if secret == "" {
		secret = generateSecret()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CookieManager{
		store:  sessions.NewCookieStore([]byte(secret)),
		logger: logger,
	}
}

func generateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.StdEncoding.EncodeToString(b)
}

// Middleware ensures the session cookie exists before the handler runs.
func (cm *CookieManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := cm.ensure(w, r)
		if err != nil {
			cm.logger.Warn("failed to save session cookie", "error", err)
		}
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}

func (cm *CookieManager) ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := cm.store.Get(r, CookieName)
	if err != nil {
		cm.logger.Debug("discarding undecodable session cookie", "error", err)
	}

	if id, ok := sess.Values[idKey].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	sess.Values[idKey] = id
	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	}
	return id, sess.Save(r, w)
}
