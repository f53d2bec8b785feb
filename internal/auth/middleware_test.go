package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin", JWTMiddleware(testSecret, "damage-estimator"), RequireRole(RoleAdmin), func(c *gin.Context) {
		subject, _ := GetSubject(c.Request.Context())
		c.String(http.StatusOK, subject)
	})
	return router
}

func doRequest(router http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAdminTokenIsAccepted(t *testing.T) {
	token, err := IssueToken(testSecret, "damage-estimator", "ops", RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	rec := doRequest(newTestRouter(), "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "ops" {
		t.Fatalf("expected subject in context, got %q", rec.Body.String())
	}
}

func TestRejectedTokens(t *testing.T) {
	userToken, _ := IssueToken(testSecret, "damage-estimator", "u1", "user", time.Minute)
	wrongAudience, _ := IssueToken(testSecret, "other", "ops", RoleAdmin, time.Minute)
	wrongSecret, _ := IssueToken("other-secret", "damage-estimator", "ops", RoleAdmin, time.Minute)
	expired, _ := IssueToken(testSecret, "damage-estimator", "ops", RoleAdmin, -time.Minute)
	noSubject, _ := IssueToken(testSecret, "damage-estimator", "", RoleAdmin, time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + wrongSecret, http.StatusUnauthorized},
		{"wrong audience", "Bearer " + wrongAudience, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"no subject", "Bearer " + noSubject, http.StatusUnauthorized},
		{"unsigned", "Bearer " + none, http.StatusUnauthorized},
		{"not admin", "Bearer " + userToken, http.StatusForbidden},
	}
	router := newTestRouter()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(router, tc.header)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueToken(" ", "", "ops", RoleAdmin, time.Minute); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
