package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"mdl-rewrite/internal/config"
)

// Authentication methods recorded on a Principal.
const (
	MethodJWT       = "jwt"
	MethodAPIKey    = "api_key"
	MethodAnonymous = "anonymous"
)

// Principal is the caller a request was authenticated as.
type Principal struct {
	Name   string
	Method string
}

type principalKey struct{}

// WithPrincipal stores the principal in the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticator checks a Bearer JWT first, then an API key. With neither
// configured every request passes as anonymous.
type Authenticator struct {
	validator JWTValidator
	keyHashes [][]byte // SHA-256 of each accepted key
	header    string
	logger    *slog.Logger
}

// NewAuthenticator returns an Authenticator. validator may be nil to disable
// JWT auth.
func NewAuthenticator(validator JWTValidator, cfg config.AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	a := &Authenticator{validator: validator, header: header, logger: logger}
	for _, k := range cfg.APIKeys {
		sum := sha256.Sum256([]byte(k))
		a.keyHashes = append(a.keyHashes, sum[:])
	}
	return a
}

func (a *Authenticator) enabled() bool {
	return a.validator != nil || len(a.keyHashes) > 0
}

// Middleware returns the HTTP middleware. Unauthenticated requests get a
// 401 JSON body.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.enabled() {
				ctx := WithPrincipal(r.Context(), Principal{Name: MethodAnonymous, Method: MethodAnonymous})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if p, ok := a.fromBearer(r); ok {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}
			if p, ok := a.fromAPIKey(r); ok {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}

			writeJSONError(w, http.StatusUnauthorized, "unauthorized: provide a valid JWT Bearer token or API key")
		})
	}
}

func (a *Authenticator) fromBearer(r *http.Request) (Principal, bool) {
	auth := r.Header.Get("Authorization")
	if a.validator == nil || !strings.HasPrefix(auth, "Bearer ") {
		return Principal{}, false
	}
	claims, err := a.validator.Validate(r.Context(), strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		a.logger.Debug("jwt rejected", "request_id", RequestIDFromContext(r.Context()), "error", err)
		return Principal{}, false
	}
	name := claims.Subject
	if claims.Email != nil && *claims.Email != "" {
		name = *claims.Email
	}
	if name == "" {
		return Principal{}, false
	}
	return Principal{Name: name, Method: MethodJWT}, true
}

func (a *Authenticator) fromAPIKey(r *http.Request) (Principal, bool) {
	key := r.Header.Get(a.header)
	if key == "" || len(a.keyHashes) == 0 {
		return Principal{}, false
	}
	sum := sha256.Sum256([]byte(key))
	for _, h := range a.keyHashes {
		if subtle.ConstantTimeCompare(sum[:], h) == 1 {
			return Principal{Name: "key-" + hex.EncodeToString(sum[:4]), Method: MethodAPIKey}, true
		}
	}
	return Principal{}, false
}
