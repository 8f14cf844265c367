package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthConfig enables authentication of API requests. Auth is off when
// both JWTSecret and Users are empty.
type AuthConfig struct {
	// JWTSecret signs and verifies HS256 bearer tokens
	JWTSecret string
	// TokenTTL is the lifetime of issued tokens
	TokenTTL time.Duration
	// Users maps user names to bcrypt password hashes for basic auth
	Users map[string]string
}

// Enabled reports whether any credential is configured.
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != "" || len(c.Users) > 0
}

const tokenIssuer = "templater"

var (
	errNoCredentials  = errors.New("authorization required")
	errBadCredentials = errors.New("invalid credentials")
)

// Authenticator checks bearer tokens and basic auth credentials.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	users  map[string]string
}

// NewAuthenticator creates an authenticator. A zero TokenTTL means 24h.
func NewAuthenticator(config AuthConfig) *Authenticator {
	ttl := config.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{
		secret: []byte(config.JWTSecret),
		ttl:    ttl,
		users:  config.Users,
	}
}

// IssueToken signs a token for subject.
func (a *Authenticator) IssueToken(subject string) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("token signing is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken verifies a token and returns its subject.
func (a *Authenticator) ValidateToken(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "", errBadCredentials
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errBadCredentials
	}
	return claims.Subject, nil
}

// CheckUser compares password against the user's bcrypt hash.
func (a *Authenticator) CheckUser(user, password string) bool {
	hash, ok := a.users[user]
	if !ok {
		return false
	}
	return CheckPassword(password, hash)
}

// authenticate returns the subject of the request's credentials.
func (a *Authenticator) authenticate(r *http.Request) (string, error) {
	if user, password, ok := r.BasicAuth(); ok {
		if a.CheckUser(user, password) {
			return user, nil
		}
		return "", errBadCredentials
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errBadCredentials
	}
	return a.ValidateToken(token)
}

type subjectKey struct{}

// Subject returns the authenticated user of a request context.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// requireAuth rejects requests without valid credentials, except on skipPaths.
func requireAuth(a *Authenticator, skipPaths ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range skipPaths {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}
			subject, err := a.authenticate(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="templater"`)
				renderJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error:   errorCodeFromStatus(http.StatusUnauthorized),
					Message: err.Error(),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, subject)))
		})
	}
}

// HashPassword hashes a password for AuthConfig.Users.
// Passwords longer than 72 bytes are rejected.
func HashPassword(password string) (string, error) {
	if len(password) > 72 {
		return "", fmt.Errorf("password exceeds maximum length of 72 bytes")
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword compares a plain text password with a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
