package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv("OPTICONNECT_AUTH_SECRET", value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("u1", "Technician", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if claims.Role != "technician" {
		t.Fatalf("role = %q, want normalized technician", claims.Role)
	}
	if claims.Issuer != "opticonnect" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	withSecret(t, "test-secret")

	if _, err := GenerateToken("", "user", time.Minute); err == nil {
		t.Fatalf("expected error for empty user id")
	}
	if _, err := GenerateToken("u1", "user", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestMissingSecret(t *testing.T) {
	withSecret(t, "")

	if _, err := GenerateToken("u1", "user", time.Minute); err == nil {
		t.Fatalf("expected error without a configured secret")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	withSecret(t, "test-secret")

	for _, token := range []string{"", "  ", "not.a.jwt"} {
		if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: err = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	withSecret(t, "secret-a")
	token, err := GenerateToken("u1", "user", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	withSecret(t, "secret-b")
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithUser(context.Background(), " u1 ")
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "u1" {
		t.Fatalf("UserIDFromContext = %q, %v", id, ok)
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatalf("empty context must not carry a user")
	}
}
