package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt"

func TestGenerateAccessToken_Success(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateAccessToken("user-1", RoleAthlete)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %s", claims.Subject)
	}
	if claims.Role != RoleAthlete {
		t.Errorf("expected role %s, got %s", RoleAthlete, claims.Role)
	}
}

func TestGenerateAccessToken_EmptyUserID(t *testing.T) {
	svc := NewJWTService(testSecret)

	if _, err := svc.GenerateAccessToken("", RoleCoach); err != ErrEmptyUserID {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
}

func TestGenerateAccessToken_InvalidRole(t *testing.T) {
	svc := NewJWTService(testSecret)

	if _, err := svc.GenerateAccessToken("user-1", "admin"); err != ErrInvalidRole {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := NewJWTService(testSecret)
	other := NewJWTService("a-different-secret")

	token, err := svc.GenerateAccessToken("user-1", RoleCoach)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := other.ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	svc := NewJWTServiceWithLeeway(testSecret, 0)

	// Mint a token that expired well in the past.
	now := time.Now().Add(-2 * time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenExpiry)),
		},
		Role: RoleAthlete,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := svc.ValidateToken(signed); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateToken_Malformed(t *testing.T) {
	svc := NewJWTService(testSecret)

	if _, err := svc.ValidateToken("not.a.token"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_NoneAlgorithmRejected(t *testing.T) {
	svc := NewJWTService(testSecret)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleCoach,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := svc.ValidateToken(signed); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for alg=none, got %v", err)
	}
}

func TestValidateToken_MissingRole(t *testing.T) {
	svc := NewJWTService(testSecret)

	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := svc.ValidateToken(signed); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for missing role, got %v", err)
	}
}
