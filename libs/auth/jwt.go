package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid token")

// Roles a token may carry.
const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (c *Claims) Valid() error {
	if err := c.RegisteredClaims.Valid(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Subject) == "" {
		return errors.New("token has no subject")
	}
	return nil
}

// Verifier accepts HS256 tokens signed with a shared secret and RS256 tokens
// whose key id resolves through a JWKS endpoint. Either may be disabled.
type Verifier struct {
	secret    []byte
	rsaKeys   jwt.Keyfunc
	closeJWKS func()
	parser    *jwt.Parser
}

func (v *Verifier) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	tok, err := v.parser.ParseWithClaims(raw, claims, v.keyFor)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func (v *Verifier) keyFor(tok *jwt.Token) (any, error) {
	switch tok.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("hs256 tokens not accepted")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.rsaKeys == nil {
			return nil, errors.New("rs256 tokens not accepted")
		}
		return v.rsaKeys(tok)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", tok.Method.Alg())
	}
}

func (v *Verifier) Close() {
	if v.closeJWKS != nil {
		v.closeJWKS()
	}
}

// SignHS256 is used by tooling and tests to mint tokens the gateway accepts.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString([]byte(secret))
}
