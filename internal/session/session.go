// Package session issues and verifies the signed session cookie that ties a
// browser to a followmail user.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName is the cookie carrying the session token.
	CookieName = "token"

	// DefaultTTL is how long a session stays valid after login.
	DefaultTTL = 7 * 24 * time.Hour
)

// ErrInvalidToken is returned for missing, malformed, expired or forged tokens.
var ErrInvalidToken = errors.New("invalid session token")

// Claims is the session token payload.
type Claims struct {
	GoogleID string `json:"googleId"`
	jwt.RegisteredClaims
}

// Manager signs session tokens with an HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSecureCookie marks the cookie Secure, for deployments behind HTTPS.
func WithSecureCookie(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

// NewManager creates a manager. The secret must not be empty.
func NewManager(secret string, opts ...Option) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	m := &Manager{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue returns a signed token for googleID.
func (m *Manager) Issue(googleID string) (string, error) {
	if googleID == "" {
		return "", fmt.Errorf("google ID is required")
	}
	now := m.now()
	claims := Claims{
		GoogleID: googleID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns the Google ID it was issued for.
func (m *Manager) Verify(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.GoogleID == "" {
		return "", ErrInvalidToken
	}
	return claims.GoogleID, nil
}

// FromRequest verifies the session cookie of r.
func (m *Manager) FromRequest(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", ErrInvalidToken
	}
	return m.Verify(c.Value)
}

// SetCookie issues a token for googleID and writes it as an HttpOnly cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, googleID string) error {
	token, err := m.Issue(googleID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
