package security

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, exp, err := p.IssueAccess("lect-a", RoleLecturer)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	uid, role, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if uid != "lect-a" || role != RoleLecturer {
		t.Errorf("ValidateAccess: got userID=%q role=%q", uid, role)
	}
}

func TestTokenProvider_ValidateAccessInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, _, err := p.ValidateAccess("invalid-token"); err != ErrInvalidToken {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_RejectsOtherIssuerAndAudience(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	other := NewTokenProvider(p.privateKey, nil, "someone-else", "test-audience", time.Minute)
	token, _, err := other.IssueAccess("u1", RoleStudent)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, _, err := p.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("other issuer: want ErrInvalidToken, got %v", err)
	}

	other = NewTokenProvider(p.privateKey, nil, "test-issuer", "other-api", time.Minute)
	token, _, err = other.IssueAccess("u1", RoleStudent)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, _, err := p.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("other audience: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	expired := NewTokenProvider(p.privateKey, p.publicKey, "test-issuer", "test-audience", -time.Minute)
	token, _, err := expired.IssueAccess("u1", RoleStudent)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, _, err := p.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_WrongKey(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	forger := NewTokenProvider(ec, nil, "test-issuer", "test-audience", time.Minute)
	token, _, err := forger.IssueAccess("root", RoleAdmin)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, _, err := p.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_EdDSA(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p := NewTokenProvider(priv, nil, "iss", "aud", time.Minute)
	token, _, err := p.IssueAccess("stu-1", RoleStudent)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	uid, role, err := p.ValidateAccess(token)
	if err != nil || uid != "stu-1" || role != RoleStudent {
		t.Errorf("ValidateAccess = %q, %q, %v", uid, role, err)
	}
}

func TestTokenProvider_VerifyOnly(t *testing.T) {
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	p := NewTokenProvider(nil, pub, "test-issuer", "test-audience", time.Minute)
	if _, _, err := p.IssueAccess("u1", RoleStudent); err != ErrNoSigningKey {
		t.Errorf("IssueAccess: want ErrNoSigningKey, got %v", err)
	}

	signer, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := signer.IssueAccess("u1", RoleStudent)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if uid, _, err := p.ValidateAccess(token); err != nil || uid != "u1" {
		t.Errorf("ValidateAccess = %q, %v", uid, err)
	}
}
