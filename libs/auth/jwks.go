package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

type VerifierConfig struct {
	HS256Secret string
	JWKSURL     string
	// How often the JWKS is refetched in the background. Unknown key ids
	// also trigger a rate-limited refresh.
	RefreshInterval time.Duration
	Logger          *slog.Logger
}

func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{
		secret: []byte(strings.TrimSpace(cfg.HS256Secret)),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "RS256"})),
	}
	if cfg.JWKSURL != "" {
		logger := cfg.Logger
		if logger == nil {
			logger = slog.Default()
		}
		interval := cfg.RefreshInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			Ctx:               ctx,
			RefreshInterval:   interval,
			RefreshRateLimit:  30 * time.Second,
			RefreshTimeout:    5 * time.Second,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.Warn("jwks refresh failed", "url", cfg.JWKSURL, "err", err)
			},
		})
		if err != nil {
			return nil, err
		}
		v.rsaKeys = jwks.Keyfunc
		v.closeJWKS = jwks.EndBackground
	}
	if len(v.secret) == 0 && v.rsaKeys == nil {
		return nil, errors.New("auth: neither JWT secret nor JWKS URL configured")
	}
	return v, nil
}
