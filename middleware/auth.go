package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

// TokenIDContextKey stores the authenticated token's id in request context.
const TokenIDContextKey contextKey = "token_id"

// ErrTokenInvalid covers any malformed, unsigned, or mis-signed token.
var ErrTokenInvalid = errors.New("middleware: invalid token")

// ErrTokenExpired is returned by ParseToken for a structurally valid
// token whose expiry has passed.
var ErrTokenExpired = errors.New("middleware: token expired")

const tokenTTL = 24 * time.Hour

// blacklistChecker abstracts the store dependency so auth can be
// tested without a real database.
type blacklistChecker interface {
	IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error)
}

// AuthMiddleware validates bearer tokens signed by secret on incoming
// admin requests, rejecting any token present in the blacklist.
type AuthMiddleware struct {
	secret []byte
	store  blacklistChecker
	logger zerolog.Logger
}

// NewAuthMiddleware builds an AuthMiddleware. secret is the configured
// session-signing secret (validated at config load time to be at
// least 32 bytes).
func NewAuthMiddleware(secret string, store blacklistChecker, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		store:  store,
		logger: logger,
	}
}

// IssueToken mints a new signed token with a fresh random id and an
// expiry tokenTTL from now.
func (am *AuthMiddleware) IssueToken() (token string, tokenID string, expiresAt time.Time) {
	var idBytes [16]byte
	_, _ = rand.Read(idBytes[:])
	tokenID = base64.RawURLEncoding.EncodeToString(idBytes[:])
	expiresAt = time.Now().Add(tokenTTL)
	return am.sign(tokenID, expiresAt), tokenID, expiresAt
}

func (am *AuthMiddleware) sign(tokenID string, expiresAt time.Time) string {
	payload := fmt.Sprintf("%s.%d", tokenID, expiresAt.Unix())
	mac := hmac.New(sha256.New, am.secret)
	mac.Write([]byte(payload))
	sig := mac.Sum(nil)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// ParseToken verifies the signature on token and returns its id and
// expiry. It does not consult the blacklist.
func (am *AuthMiddleware) ParseToken(token string) (tokenID string, expiresAt time.Time, err error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", time.Time{}, ErrTokenInvalid
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", time.Time{}, ErrTokenInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", time.Time{}, ErrTokenInvalid
	}

	mac := hmac.New(sha256.New, am.secret)
	mac.Write(payloadRaw)
	expected := mac.Sum(nil)
	if !hmac.Equal(sig, expected) {
		return "", time.Time{}, ErrTokenInvalid
	}

	payload := string(payloadRaw)
	idPart, tsPart, ok := strings.Cut(payload, ".")
	if !ok || idPart == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	var unix int64
	if _, err := fmt.Sscanf(tsPart, "%d", &unix); err != nil {
		return "", time.Time{}, ErrTokenInvalid
	}
	expiresAt = time.Unix(unix, 0)
	if time.Now().After(expiresAt) {
		return idPart, expiresAt, ErrTokenExpired
	}
	return idPart, expiresAt, nil
}

// Handler gates a request on a valid, non-blacklisted bearer token.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error":"missing authentication"}`, http.StatusUnauthorized)
			return
		}
		token := authHeader
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			token = authHeader[7:]
		}

		tokenID, _, err := am.ParseToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		blacklisted, err := am.store.IsTokenBlacklisted(r.Context(), tokenID)
		if err != nil {
			am.logger.Error().Err(err).Msg("blacklist lookup failed")
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		if blacklisted {
			http.Error(w, `{"error":"token revoked"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), TokenIDContextKey, tokenID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CheckPassword compares candidate against the configured app password
// in constant time.
func CheckPassword(candidate, configured string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(configured)) == 1
}

// TokenIDFromContext extracts the authenticated token id, used by the
// logout handler to blacklist the caller's own token.
func TokenIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(TokenIDContextKey).(string); ok {
		return v
	}
	return ""
}
