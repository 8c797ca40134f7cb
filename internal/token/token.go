// Package token mints HS256-signed JWTs that grant a client access to a
// single device.
package token

import (
	"fmt"
	"time"

	"github.com/dskow/newtoken/internal/grant"
	"github.com/golang-jwt/jwt/v5"
)

// TTL is the lifetime of every minted token.
const TTL = 30 * time.Minute

// Claims is the claim set signed into a device token. The payload
// serializes as {"iss","sub","exp","grants"} in that order.
type Claims struct {
	jwt.RegisteredClaims
	Grants []string `json:"grants"`
}

// Request names the parties and the device a token is minted for.
type Request struct {
	Issuer   string
	Subject  string
	DeviceID string
}

// SigningError indicates the signing primitive rejected the key or claims.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing token: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// Minter signs claim sets with a shared symmetric secret.
type Minter struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// Option configures a Minter.
type Option func(*Minter)

// WithClock overrides the time source used for the expiry claim.
func WithClock(now func() time.Time) Option {
	return func(m *Minter) {
		m.now = now
	}
}

// WithSigningMethod overrides the signing method. Only HMAC methods produce
// tokens a holder of the secret can verify.
func WithSigningMethod(method jwt.SigningMethod) Option {
	return func(m *Minter) {
		m.method = method
	}
}

// New returns a Minter keyed by secret. The secret is used as the HMAC key
// as-is.
func New(secret []byte, opts ...Option) *Minter {
	m := &Minter{
		secret: secret,
		method: jwt.SigningMethodHS256,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Claims builds the claim set for req at the current clock reading.
func (m *Minter) Claims(req Request) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    req.Issuer,
			Subject:   req.Subject,
			ExpiresAt: jwt.NewNumericDate(m.now().Add(TTL)),
		},
		Grants: []string{grant.ConnectDevice(req.DeviceID)},
	}
}

// Mint builds and signs the claim set for req. It returns the compact
// token and the claims that were signed.
func (m *Minter) Mint(req Request) (string, *Claims, error) {
	if len(m.secret) == 0 {
		return "", nil, &SigningError{Err: jwt.ErrInvalidKey}
	}

	claims := m.Claims(req)
	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, &SigningError{Err: err}
	}
	return signed, claims, nil
}
