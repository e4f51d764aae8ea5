package auth

import (
	"context"
	"testing"
	"time"
)

func TestTokenIssuerIssuesTokensTheValidatorAccepts(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		Issuer:        testSessionIssuer,
		Audience:      testSessionAudience,
		TokenTTL:      30 * time.Minute,
		Clock: func() time.Time {
			return clockNow
		},
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, expiresIn, err := issuer.IssueServiceToken(context.Background(), "cron-snapshots")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds %d", expiresIn)
	}

	claims, err := newTestValidator(t, clockNow.Add(time.Minute)).ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if claims.Subject != "cron-snapshots" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Role != ServiceRole {
		t.Fatalf("unexpected role %s", claims.Role)
	}

	if _, err := newTestValidator(t, clockNow.Add(time.Hour)).ValidateToken(tokenString); err == nil {
		t.Fatalf("expected the token to expire after its ttl")
	}
}

func TestTokenIssuerRejectsEmptySubject(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        testSessionIssuer,
		Audience:      testSessionAudience,
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.IssueServiceToken(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestNewTokenIssuerValidatesConfiguration(t *testing.T) {
	testCases := []struct {
		name   string
		config TokenIssuerConfig
	}{
		{name: "missing secret", config: TokenIssuerConfig{Issuer: "supabase", Audience: "authenticated", TokenTTL: time.Minute}},
		{name: "missing issuer", config: TokenIssuerConfig{SigningSecret: []byte("secret"), Audience: "authenticated", TokenTTL: time.Minute}},
		{name: "blank audience", config: TokenIssuerConfig{SigningSecret: []byte("secret"), Issuer: "supabase", Audience: " ", TokenTTL: time.Minute}},
		{name: "non-positive ttl", config: TokenIssuerConfig{SigningSecret: []byte("secret"), Issuer: "supabase", Audience: "authenticated"}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewTokenIssuer(testCase.config); err == nil {
				t.Fatalf("expected constructor error")
			}
		})
	}
}
