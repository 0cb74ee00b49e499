package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("expected username admin, got %q", claims.Username)
	}
	if claims.Issuer != "okx-trading-bot" {
		t.Errorf("unexpected issuer %q", claims.Issuer)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).GenerateToken("admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := NewJWTManager("secret-b", time.Hour).ValidateToken(token); err == nil {
		t.Error("expected validation failure with a different secret")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := &JWTManager{secret: []byte("test-secret"), tokenTTL: -time.Minute}

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Error("expected validation failure for an expired token")
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !VerifyPassword(hash, "hunter2") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "hunter3") {
		t.Error("wrong password accepted")
	}
	if VerifyPassword("not-a-hash", "hunter2") {
		t.Error("malformed hash accepted")
	}
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc := NewService(NewJWTManager("test-secret", time.Hour), "admin", hash)

	token, err := svc.Login("admin", "correct-horse")
	if err != nil || token == "" {
		t.Fatalf("expected a token for valid credentials, got %q, %v", token, err)
	}

	if _, err := svc.Login("admin", "wrong"); err == nil {
		t.Error("expected rejection for a wrong password")
	}
	if _, err := svc.Login("root", "correct-horse"); err == nil {
		t.Error("expected rejection for an unknown user")
	}
}
