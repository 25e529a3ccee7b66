package auth

import (
	"testing"
	"time"
)

func TestMintAndParseToken(t *testing.T) {
	a, err := New("rollsync", time.Hour)
	if err != nil {
		t.Fatalf("new auth failed: %v", err)
	}

	token, err := a.MintToken("peer-a")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	subject, err := a.ParseToken(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if subject != "peer-a" {
		t.Fatalf("expected subject peer-a, got %q", subject)
	}
}

func TestParseTokenRejectsForeignKey(t *testing.T) {
	a, err := New("rollsync", time.Hour)
	if err != nil {
		t.Fatalf("new auth failed: %v", err)
	}
	other, err := New("rollsync", time.Hour)
	if err != nil {
		t.Fatalf("new auth failed: %v", err)
	}

	token, err := other.MintToken("peer-a")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if _, err := a.ParseToken(token); err == nil {
		t.Fatalf("expected token from another key to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	a, err := New("rollsync", time.Hour)
	if err != nil {
		t.Fatalf("new auth failed: %v", err)
	}
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := a.MintToken("peer-a")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if _, err := a.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsEmpty(t *testing.T) {
	a, err := New("rollsync", time.Hour)
	if err != nil {
		t.Fatalf("new auth failed: %v", err)
	}
	if _, err := a.ParseToken(""); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
}
