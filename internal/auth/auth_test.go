package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestInitializeAuth(t *testing.T) {
	InitializeAuth("test-secret", true)

	if authConfig == nil {
		t.Fatal("authConfig should not be nil after initialization")
	}
	if string(authConfig.JwtSecret) != "test-secret" {
		t.Errorf("Expected JwtSecret 'test-secret', got %q", string(authConfig.JwtSecret))
	}
	if !authConfig.Enabled {
		t.Error("Expected Enabled to be true")
	}
}

func TestIsAuthEnabled(t *testing.T) {
	// Test when auth config is nil
	authConfig = nil
	if IsAuthEnabled() {
		t.Error("Expected IsAuthEnabled to return false when authConfig is nil")
	}

	// Test when auth is disabled
	InitializeAuth("secret", false)
	if IsAuthEnabled() {
		t.Error("Expected IsAuthEnabled to return false when auth is disabled")
	}

	// Test when auth is enabled
	InitializeAuth("secret", true)
	if !IsAuthEnabled() {
		t.Error("Expected IsAuthEnabled to return true when auth is enabled")
	}
}

func TestGenerateAndValidateJWT(t *testing.T) {
	InitializeAuth("test-secret", true)

	user := &User{Login: "alice", Name: "Alice", Email: "alice@example.com"}
	token, err := GenerateJWT(user)
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}
	if token == "" {
		t.Fatal("GenerateJWT returned empty token")
	}

	got, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT failed: %v", err)
	}
	if got.Login != "alice" || got.Name != "Alice" || got.Email != "alice@example.com" {
		t.Errorf("ValidateJWT returned %+v", got)
	}
}

func TestGenerateJWT_NotInitialized(t *testing.T) {
	authConfig = nil
	if _, err := GenerateJWT(&User{Login: "bob"}); err == nil {
		t.Error("Expected error when authConfig is nil")
	}
}

func TestValidateJWT_WrongSecret(t *testing.T) {
	InitializeAuth("secret-one", true)
	token, err := GenerateJWT(&User{Login: "alice"})
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	InitializeAuth("secret-two", true)
	if _, err := ValidateJWT(token); err == nil {
		t.Error("Expected validation to fail with a different secret")
	}
}

func TestValidateJWT_Expired(t *testing.T) {
	InitializeAuth("test-secret", true)

	claims := Claims{
		Login: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			Subject:   "alice",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(authConfig.JwtSecret)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	if _, err := ValidateJWT(signed); err == nil {
		t.Error("Expected validation to fail for expired token")
	}
}

func TestOptionalAuthMiddleware_Disabled(t *testing.T) {
	InitializeAuth("secret", false)

	called := false
	handler := OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest("GET", "/search", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if !called {
		t.Error("Handler should be called when auth is disabled")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestOptionalAuthMiddleware_MissingToken(t *testing.T) {
	InitializeAuth("secret", true)

	handler := OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called without a token")
	})

	req := httptest.NewRequest("GET", "/search", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestOptionalAuthMiddleware_ValidToken(t *testing.T) {
	InitializeAuth("secret", true)

	token, err := GenerateJWT(&User{Login: "alice"})
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	var gotUser *User
	handler := OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserFromContext(r)
	})

	req := httptest.NewRequest("GET", "/search", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if gotUser == nil || gotUser.Login != "alice" {
		t.Errorf("Expected user alice in context, got %+v", gotUser)
	}
}

func TestOptionalAuthMiddleware_CookieToken(t *testing.T) {
	InitializeAuth("secret", true)

	token, err := GenerateJWT(&User{Login: "bob"})
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	var gotUser *User
	handler := OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserFromContext(r)
	})

	req := httptest.NewRequest("GET", "/search", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if gotUser == nil || gotUser.Login != "bob" {
		t.Errorf("Expected user bob in context, got %+v", gotUser)
	}
}

func TestOptionalAuthMiddleware_InvalidToken(t *testing.T) {
	InitializeAuth("secret", true)

	handler := OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called with an invalid token")
	})

	req := httptest.NewRequest("GET", "/search", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}
