package auth

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 caller tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) (*Authenticator, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth.jwt_secret must be at least 16 bytes")
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

func (a *Authenticator) Issue(c domain.Caller, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: string(c.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies token and returns the caller it names.
func (a *Authenticator) Parse(token string) (domain.Caller, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, a.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Caller{}, domain.Forbiddenf("invalid token")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return domain.Caller{}, domain.Forbiddenf("invalid token subject")
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Caller{}, domain.Forbiddenf("invalid token role")
	}
	return domain.Caller{UserID: id, Role: role}, nil
}

func (a *Authenticator) key(*jwt.Token) (any, error) {
	return a.secret, nil
}
