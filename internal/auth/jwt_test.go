package auth

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		AccountID: "account-1",
		Email:     "admin@example.com",
		Role:      "admin",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if claims.AccountID != "account-1" || claims.Email != "admin@example.com" || claims.Role != "admin" {
		t.Fatalf("unexpected claims")
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", -time.Minute, Claims{
		AccountID: "account-1",
		Role:      "user",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if _, err := ParseToken("secret", token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestAccessTokenWrongSecret(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{AccountID: "account-1"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other-secret", token); err == nil {
		t.Fatalf("expected signature mismatch to be rejected")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	token, err := NewRefreshToken("refresh-secret", "issuer", time.Hour, "account-7")
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseRefreshToken("refresh-secret", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.AccountID != "account-7" {
		t.Fatalf("unexpected account id %q", claims.AccountID)
	}

	// A refresh token must not validate as an access token secret-wise.
	if _, err := ParseToken("secret", token); err == nil {
		t.Fatalf("expected refresh token to fail access validation")
	}
}

func TestHasRole(t *testing.T) {
	if HasRole(nil, "admin") {
		t.Fatalf("nil claims must not grant a role")
	}
	if HasRole(&Claims{}, "admin") {
		t.Fatalf("blank role must not grant a role")
	}
	if HasRole(&Claims{Role: "user"}, "admin") {
		t.Fatalf("user role must not grant admin")
	}
	if !HasRole(&Claims{Role: "admin"}, "admin") {
		t.Fatalf("admin role expected to grant admin")
	}
}
