package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/session"
)

type contextKey string

const (
	RequestIDKey   contextKey = "request_id"
	requestTagsKey contextKey = "request_tags"
)

// AccessTokenParam carries the bearer token for GET requests that cannot set
// headers, such as a <video> element loading a render output.
const AccessTokenParam = "access_token"

// requestTags collects identifiers learned while a request is handled so the
// access log line can carry them.
type requestTags struct {
	mu        sync.Mutex
	requestID string
	sessionID string
	runID     string
}

func tagsFrom(ctx context.Context) *requestTags {
	tags, _ := ctx.Value(requestTagsKey).(*requestTags)
	return tags
}

// tagRun attaches a render run id to the request's access log line.
func tagRun(r *http.Request, runID string) {
	if tags := tagsFrom(r.Context()); tags != nil {
		tags.mu.Lock()
		tags.runID = runID
		tags.mu.Unlock()
	}
}

// RequestLogger returns base annotated with the request and session ids.
func RequestLogger(base *slog.Logger, r *http.Request) *slog.Logger {
	logger := base
	if id, _ := r.Context().Value(RequestIDKey).(string); id != "" {
		logger = logging.WithRequestID(logger, id)
	}
	if sid := session.IDFromContext(r.Context()); sid != session.DefaultID {
		logger = logging.WithSessionID(logger, sid)
	}
	return logger
}

func AuthMiddleware(store ConfigStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, msg := bearerToken(r)
			if msg != "" {
				WriteError(w, http.StatusUnauthorized, msg, "UNAUTHORIZED")
				return
			}

			storedToken, err := store.GetConfig(r.Context(), "auth_token")
			if err != nil {
				logger.Error("failed to get auth token from config", "error", err)
				WriteError(w, http.StatusInternalServerError, "auth configuration error", "INTERNAL_ERROR")
				return
			}
			if storedToken == "" {
				logger.Error("no auth token configured")
				WriteError(w, http.StatusServiceUnavailable, "agent has no auth token yet", "AUTH_NOT_CONFIGURED")
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(storedToken)) != 1 {
				logger.Warn("invalid auth token", "provided", logging.SanitizeToken(token), "path", r.URL.Path)
				WriteError(w, http.StatusUnauthorized, "invalid token", "UNAUTHORIZED")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken reads the token from the Authorization header, or from the
// access_token query parameter on GET and HEAD requests. msg is non-empty
// when no usable token was sent.
func bearerToken(r *http.Request) (token, msg string) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			if q := r.URL.Query().Get(AccessTokenParam); q != "" {
				return q, ""
			}
		}
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", "invalid authorization format"
	}
	token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}

// SessionTagMiddleware records the cookie session id for the access log. It
// runs after the cookie middleware.
func SessionTagMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tags := tagsFrom(r.Context()); tags != nil {
			tags.mu.Lock()
			tags.sessionID = session.IDFromContext(r.Context())
			tags.mu.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if tags := tagsFrom(r.Context()); tags != nil {
				tags.mu.Lock()
				attrs = append(attrs, "request_id", tags.requestID)
				if tags.sessionID != "" {
					attrs = append(attrs, "session_id", tags.sessionID)
				}
				if tags.runID != "" {
					attrs = append(attrs, "run_id", tags.runID)
				}
				tags.mu.Unlock()
			}

			level := slog.LevelInfo
			if wrapped.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request", attrs...)
		})
	}
}

func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					RequestLogger(logger, r).Error("panic recovered", "error", err, "path", r.URL.Path)
					WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware assigns a short request id and installs the tag set
// the access log reads.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()[:8]
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, requestTagsKey, &requestTags{requestID: requestID})
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func WriteError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
