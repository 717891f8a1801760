package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test_secret"

func signToken(t *testing.T, subject string, role string, ttl time.Duration) string {
	t.Helper()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func protectedRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthMiddleware(testSecret)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userID": c.GetInt("userID"),
			"role":   c.GetString("role"),
		})
	})
	r.GET("/protected", handlers...)
	return r
}

func doGet(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	r := protectedRouter()
	token := signToken(t, "42", "user", time.Hour)

	w := doGet(r, "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"userID":42`) {
		t.Fatalf("userID not propagated: %s", w.Body.String())
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	w := doGet(protectedRouter(), "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	r := protectedRouter()
	token := signToken(t, "42", "user", -time.Minute)

	w := doGet(r, "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Token expired") {
		t.Fatalf("expected expiry message: %s", w.Body.String())
	}
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other_secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	w := doGet(protectedRouter(), "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_DefaultRole(t *testing.T) {
	r := protectedRouter()
	token := signToken(t, "42", "", time.Hour)

	w := doGet(r, "Bearer "+token)
	if !strings.Contains(w.Body.String(), `"role":"user"`) {
		t.Fatalf("expected default role user: %s", w.Body.String())
	}
}

func TestAdminRequired(t *testing.T) {
	r := protectedRouter(AdminRequired())

	w := doGet(r, "Bearer "+signToken(t, "1", "admin", time.Hour))
	if w.Code != http.StatusOK {
		t.Fatalf("admin expected 200, got %d", w.Code)
	}

	w = doGet(r, "Bearer "+signToken(t, "2", "user", time.Hour))
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin expected 403, got %d", w.Code)
	}
}
