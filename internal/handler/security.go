package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/atelier-billing/internal/domain/auth"
)

const (
	apiKeyHeader       = "X-API-Key"
	legacyAPIKeyHeader = "api_key"
)

// errBadCredentials marks a request whose key is missing or does not match.
var errBadCredentials = errors.New("invalid api key")

// Security authenticates API requests by the HMAC-SHA256 of their API key.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security that hashes keys with pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

// Authenticate resolves the presented key to its stored record.
func (s *Security) Authenticate(r *http.Request) (*auth.APIKeyInfo, error) {
	key := r.Header.Get(apiKeyHeader)
	if key == "" {
		key = r.Header.Get(legacyAPIKeyHeader)
	}
	if key == "" {
		return nil, errors.Wrap(errBadCredentials, "missing")
	}

	hash := auth.HashKey(s.pepper, key)
	info, err := s.apikeys.FindByHash(r.Context(), hash)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, errors.Wrap(errBadCredentials, "unknown")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}
	// Require an exact match on the returned row.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return nil, errors.Wrap(errBadCredentials, "hash mismatch")
	}
	return info, nil
}

// Middleware rejects requests without a valid key with 401 and stores the
// key in the context otherwise. A failing key store yields 503.
func (s *Security) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := s.Authenticate(r)
		switch {
		case errors.Is(err, errBadCredentials):
			zctx.From(r.Context()).Debug("Authentication failed", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			zctx.From(r.Context()).Error("Authentication unavailable", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
			return
		}
		lg := zctx.From(r.Context()).With(zap.String("api_key", info.Name))
		ctx := zctx.Base(auth.WithKey(r.Context(), info), lg)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects authenticated requests whose key lacks scope with 403.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.KeyFrom(r.Context())
			if !ok || !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
