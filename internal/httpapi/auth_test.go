package httpapi

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour)

	token, expiresAt, err := auth.IssueToken("admin", "admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatal("token already expired")
	}

	actor, err := auth.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-a", time.Hour)
	verifier := NewAuthManager("secret-b", time.Hour)

	token, _, err := issuer.IssueToken("admin", "admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.VerifyToken(token); err == nil {
		t.Fatal("token signed with another secret was accepted")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("test-secret", time.Hour)
	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := auth.VerifyToken(raw); err == nil {
			t.Errorf("VerifyToken(%q) accepted", raw)
		}
	}
}

func TestAttemptLimiter(t *testing.T) {
	limiter := newAttemptLimiter(3, time.Minute)

	if !limiter.allowed("admin") {
		t.Fatal("fresh key should be allowed")
	}
	for i := 0; i < 3; i++ {
		limiter.fail("admin")
	}
	if limiter.allowed("admin") {
		t.Fatal("key should be locked after max failures")
	}
	if !limiter.allowed("other") {
		t.Fatal("lockout must be per key")
	}

	limiter.reset("admin")
	if !limiter.allowed("admin") {
		t.Fatal("reset should clear the lockout")
	}
}
