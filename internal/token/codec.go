package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vantage-academy/portal-api/internal/models"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
)

// Codec encodes and verifies session tokens. The signing mechanism is
// swappable behind this interface; the authenticator, role switcher and
// authorization gate only deal with the logical claims.
type Codec interface {
	// Encode signs the claims, filling in the registered claim set
	// (issuer, issued-at, absolute expiry). Returns the serialized token
	// and its expiry time.
	Encode(claims *models.SessionClaims) (string, time.Time, error)
	// Decode verifies a serialized token and returns its claims.
	Decode(token string) (*models.SessionClaims, error)
}

// JWTCodec signs session claims as HS256 JWTs with a fixed absolute lifetime.
type JWTCodec struct {
	secret   []byte
	lifetime time.Duration
	issuer   string
}

// NewJWTCodec constructs a codec with the given secret and token lifetime.
func NewJWTCodec(secret string, lifetime time.Duration, issuer string) *JWTCodec {
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &JWTCodec{secret: []byte(secret), lifetime: lifetime, issuer: issuer}
}

// Encode implements Codec.
func (c *JWTCodec) Encode(claims *models.SessionClaims) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(c.lifetime)

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   claims.UserID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Decode implements Codec. Any parse, signature or expiry failure is
// reported as an unauthorized error.
func (c *JWTCodec) Decode(tokenString string) (*models.SessionClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(tok *jwt.Token) (interface{}, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid session token")
	}

	claims, ok := tok.Claims.(*models.SessionClaims)
	if !ok || !tok.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session claims")
	}

	return claims, nil
}
