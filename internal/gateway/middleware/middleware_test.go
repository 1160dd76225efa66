package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"asset-audit/internal/utils"
)

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/audits/history", JWTAuth(), RequireRole(utils.RoleSuperadmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "user": Claims(c).Username})
	})
	return r
}

func token(t *testing.T, role string, ttl time.Duration) string {
	t.Helper()
	s, _, err := utils.GenerateToken(7, "jane", role, ttl)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJWTAuthAndRole(t *testing.T) {
	r := protectedRouter()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"expired", "Bearer " + token(t, utils.RoleSuperadmin, -time.Minute), http.StatusUnauthorized},
		{"wrong role", "Bearer " + token(t, "staff", time.Hour), http.StatusForbidden},
		{"superadmin", "Bearer " + token(t, utils.RoleSuperadmin, time.Hour), http.StatusOK},
		{"lowercase scheme", "bearer " + token(t, utils.RoleSuperadmin, time.Hour), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/audits/history", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRequireRoleWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRole(utils.RoleSuperadmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limit, err := RateLimit("2-M")
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	r.Use(limit)
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestRateLimitInvalidFormat(t *testing.T) {
	if _, err := RateLimit("sixty per minute"); err == nil {
		t.Fatal("expected error for malformed rate")
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		production bool
		origins    []string
		origin     string
		allowed    bool
	}{
		{"dev allows all", false, nil, "http://localhost:5173", true},
		{"listed origin", true, []string{"https://assets.example.com"}, "https://assets.example.com", true},
		{"unlisted origin", true, []string{"https://assets.example.com"}, "https://evil.example.com", false},
		{"production without list", true, nil, "https://assets.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(CORS(tt.production, tt.origins))
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get("Access-Control-Allow-Origin") != ""
			if got != tt.allowed {
				t.Fatalf("allowed=%t want %t (status=%d)", got, tt.allowed, w.Code)
			}
		})
	}
}
