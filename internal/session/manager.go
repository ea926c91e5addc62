// Package session issues, reads and destroys the signed cookie that proves
// a user signed in. Tokens are self-contained HS256 JWTs: the subject is the
// user id and the expiry is checked on every read. Anything that does not
// verify reads as "no session".
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultCookieName = "session"
	DefaultMaxAge     = 30 * 24 * time.Hour
)

// ErrNoSecret is returned by NewManager without a signing secret.
var ErrNoSecret = errors.New("session: signing secret is required")

type Options struct {
	// Secrets verify incoming tokens; the first one also signs new tokens.
	Secrets []string
	Cookie  CookieOptions
	// Revoker is optional. Without it signing out only clears the cookie.
	Revoker Revoker
	Now     func() time.Time
}

type Manager struct {
	keys    [][]byte
	cookie  CookieOptions
	revoker Revoker
	now     func() time.Time
}

func NewManager(opts Options) (*Manager, error) {
	var keys [][]byte
	for _, s := range opts.Secrets {
		if s != "" {
			keys = append(keys, []byte(s))
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoSecret
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		keys:    keys,
		cookie:  opts.Cookie.normalize(),
		revoker: opts.Revoker,
		now:     opts.Now,
	}, nil
}

// CookieName is the name of the session cookie.
func (m *Manager) CookieName() string { return m.cookie.Name }

// Create signs a token for userID.
func (m *Manager) Create(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("session: empty user id")
	}
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.cookie.MaxAge)),
	})
	signed, err := token.SignedString(m.keys[0])
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return signed, nil
}

// Issue creates a token for userID and attaches it to the response.
func (m *Manager) Issue(w http.ResponseWriter, userID string) error {
	token, err := m.Create(userID)
	if err != nil {
		return err
	}
	setCookie(w, token, m.now(), m.cookie)
	return nil
}

// Read returns the user id carried by the request's session cookie. A
// missing, tampered, expired or revoked token yields ("", false).
func (m *Manager) Read(r *http.Request) (string, bool) {
	claims, ok := m.claims(r)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}

// Destroy clears the session cookie and, when a revoker is configured,
// denylists the presented token until it would have expired.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	clearCookie(w, m.cookie)

	if m.revoker == nil {
		return nil
	}
	claims, ok := m.claims(r)
	if !ok || claims.ExpiresAt == nil {
		return nil
	}
	return m.revoker.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Sub(m.now()))
}

func (m *Manager) claims(r *http.Request) (*jwt.RegisteredClaims, bool) {
	cookie, err := r.Cookie(m.cookie.Name)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	claims, err := m.parse(cookie.Value)
	if err != nil {
		return nil, false
	}
	if m.revoker != nil && m.isRevoked(r.Context(), claims.ID) {
		return nil, false
	}
	return claims, true
}

// isRevoked fails closed: an unreachable revocation store reads as revoked.
func (m *Manager) isRevoked(ctx context.Context, tokenID string) bool {
	if tokenID == "" {
		return true
	}
	revoked, err := m.revoker.Revoked(ctx, tokenID)
	return err != nil || revoked
}

func (m *Manager) parse(raw string) (*jwt.RegisteredClaims, error) {
	var lastErr error
	for _, key := range m.keys {
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return key, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(m.now),
		)
		if err != nil {
			lastErr = err
			if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
				continue
			}
			return nil, err
		}
		if !token.Valid || claims.Subject == "" {
			return nil, errors.New("session: invalid token")
		}
		return claims, nil
	}
	return nil, lastErr
}
