package crypto

import (
	"strings"
	"testing"
)

func TestNewLinkToken(t *testing.T) {
	a, err := NewLinkToken()
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	b, err := NewLinkToken()
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct link tokens")
	}
	if len(a) < 40 {
		t.Fatalf("link token too short: %q", a)
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatalf("hash must be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatalf("distinct tokens must not collide trivially")
	}
}

func TestNewAccessCodeFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewAccessCode()
		if err != nil {
			t.Fatalf("code error: %v", err)
		}
		if !strings.HasPrefix(code, "BHP-") {
			t.Fatalf("expected BHP- prefix, got %q", code)
		}
		digits := strings.TrimPrefix(code, "BHP-")
		if len(digits) != 6 {
			t.Fatalf("expected 6 digits, got %q", digits)
		}
		for _, r := range digits {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
	}
}
