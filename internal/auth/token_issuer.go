package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceRole is the role claim carried by tokens minted for automation.
const ServiceRole = "service_role"

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingIssuer        = errors.New("issuer must be provided")
	errMissingAudience      = errors.New("audience must be provided")
	errInvalidTokenTTL      = errors.New("token ttl must be positive")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
)

// TokenIssuerConfig configures the service token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer mints HS256 tokens that the SessionValidator accepts, for cron callers of the API.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	ttl           time.Duration
	clock         func() time.Time
}

// NewTokenIssuer validates the configuration and constructs a TokenIssuer.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, errMissingAudience
	}
	if cfg.TokenTTL <= 0 {
		return nil, errInvalidTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		audience:      audience,
		ttl:           cfg.TokenTTL,
		clock:         clock,
	}, nil
}

// IssueServiceToken produces a signed JWT and its lifetime in seconds for the given subject.
func (i *TokenIssuer) IssueServiceToken(_ context.Context, subject string) (string, int64, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", 0, errMissingSubjectClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl).UTC()

	claims := SessionClaims{
		Role: ServiceRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}
