package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"aos/pkg/auth"
)

func newAuthApp(t *testing.T, apiKey string, jwtAuth *auth.LocalJWTAuth) *fiber.App {
	t.Helper()

	app := fiber.New()
	app.Get("/protected", APIKeyOrJWTMiddleware(apiKey, jwtAuth), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestAuthMiddleware_OpenMode(t *testing.T) {
	app := newAuthApp(t, "", nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Open mode should pass everything, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware_APIKey(t *testing.T) {
	app := newAuthApp(t, "secret-key", nil)

	// No credentials
	resp, _ := app.Test(httptest.NewRequest("GET", "/protected", nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", resp.StatusCode)
	}

	// Wrong key
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", resp.StatusCode)
	}

	// Correct key
	req = httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", "secret-key")
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected 200 with correct key, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware_JWT(t *testing.T) {
	jwtAuth, err := auth.NewLocalJWTAuth("jwt-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewLocalJWTAuth failed: %v", err)
	}
	app := newAuthApp(t, "", jwtAuth)

	token, err := jwtAuth.GenerateToken("user-1", "admin")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected 200 with valid token, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401 with invalid token, got %d", resp.StatusCode)
	}
}
