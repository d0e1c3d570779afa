package identity

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/socialmedia/internal/social"
)

const (
	sessionTokenType = "session"
	sessionKeyID     = "social-session-key-1"
)

// SessionClaims are the JWT claims of a session token. The subject is the
// caller's checksummed address.
type SessionClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// Caller returns the identity the session was issued to.
func (c *SessionClaims) Caller() social.Identity {
	return social.Identity(c.Subject)
}

// SessionIssuer issues and verifies session JWTs.
type SessionIssuer struct {
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates a SessionIssuer.
//
//	issuerURL: The "iss" claim value; matches the node's base URL.
//	ttl      : Token lifetime (default: 24 hours).
func NewSessionIssuer(key *rsa.PrivateKey, issuerURL string, ttl time.Duration) *SessionIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &SessionIssuer{
		key:    key,
		pub:    &key.PublicKey,
		issuer: issuerURL,
		ttl:    ttl,
		now:    time.Now,
	}
}

// PublicKey returns the key session tokens are verified with.
func (s *SessionIssuer) PublicKey() *rsa.PublicKey { return s.pub }

// TTL returns the lifetime of issued tokens.
func (s *SessionIssuer) TTL() time.Duration { return s.ttl }

// Issue creates a signed session token for caller.
func (s *SessionIssuer) Issue(caller social.Identity) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   caller.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Type: sessionTokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = sessionKeyID
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates a session token, returning its claims.
func (s *SessionIssuer) Verify(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return s.pub, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify session token: %w", err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token claims")
	}
	if claims.Type != sessionTokenType {
		return nil, fmt.Errorf("not a session token")
	}
	if _, err := ParseAddress(claims.Subject); err != nil {
		return nil, fmt.Errorf("session subject: %w", err)
	}
	return claims, nil
}
