package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"genflow/internal/pkg/errs"
)

var (
	ErrInvalidToken = errs.New("invalid service token")
	ErrExpiredToken = errs.New("expired service token")
)

// Claims identify the internal caller (the product layer) on requests
// into the orchestration core.
type Claims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

func (i *Issuer) Issue(service string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", errs.Wrap(err, "failed to sign service token")
	}
	return signed, nil
}

func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		if errs.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !t.Valid || claims.Service == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
