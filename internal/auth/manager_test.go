package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/paper-rename/internal/config"
)

const testPassword = "correct-horse"

func newAuthRouter(t *testing.T) (*gin.Engine, *Manager) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	cfg := &config.Config{
		AppUsername:     "admin",
		AppPasswordHash: string(hash),
		SessionSecret:   "test-secret",
	}
	manager := NewManager(cfg)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sessions.Sessions(SessionCookieName, cookie.NewStore([]byte(cfg.SessionSecret))))
	router.POST("/api/auth/login", manager.Login)
	router.POST("/api/auth/logout", manager.RequireLogin(), manager.VerifyCSRF(), manager.Logout)
	router.GET("/whoami", manager.Resolve(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(ContextUserKey)})
	})
	router.GET("/private", manager.RequireLogin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router, manager
}

func loginRequestBody(t *testing.T, username, password string) *bytes.Buffer {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		t.Fatalf("failed to marshal login body: %v", err)
	}
	return bytes.NewBuffer(payload)
}

func doLogin(t *testing.T, router *gin.Engine, username, password string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", loginRequestBody(t, username, password))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginSuccess(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := doLogin(t, router, "admin", testPassword)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(csrfHeader) == "" {
		t.Error("expected CSRF token header on login")
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Error("expected a session cookie to be set")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := doLogin(t, router, "admin", "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected error message in body")
	}
	if body["remaining_attempts"] != float64(4) {
		t.Errorf("expected 4 remaining attempts, got %v", body["remaining_attempts"])
	}
}

func TestLoginLockout(t *testing.T) {
	router, _ := newAuthRouter(t)

	for i := 0; i < 5; i++ {
		rec := doLogin(t, router, "admin", "wrong")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	// ロック中は正しいパスワードでも受け付けない。
	rec := doLogin(t, router, "admin", testPassword)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while locked, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header while locked")
	}
}

func TestResolveTagsLoggedInUser(t *testing.T) {
	router, _ := newAuthRouter(t)

	login := doLogin(t, router, "admin", testPassword)
	if login.Code != http.StatusNoContent {
		t.Fatalf("login failed: %d", login.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["user"] != "admin" {
		t.Errorf("expected resolved user admin, got %q", body["user"])
	}
}

func TestResolveLeavesAnonymousAlone(t *testing.T) {
	router, _ := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// 未ログインでも処理は継続し、ユーザー名は空のまま。
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["user"] != "" {
		t.Errorf("expected no user for anonymous caller, got %q", body["user"])
	}
}

func TestRequireLoginRejectsAnonymous(t *testing.T) {
	router, _ := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}
}

func TestLogoutRequiresCSRFToken(t *testing.T) {
	router, _ := newAuthRouter(t)

	login := doLogin(t, router, "admin", testPassword)
	if login.Code != http.StatusNoContent {
		t.Fatalf("login failed: %d", login.Code)
	}
	token := login.Header().Get(csrfHeader)

	// トークンなしのログアウトは拒否する。
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}

	// トークン付きなら成功する。
	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	req.Header.Set(csrfHeader, token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with CSRF token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	m := NewManager(&config.Config{AppPasswordHash: string(hash)})

	if !m.verifyPassword("secret") {
		t.Error("expected matching password to verify")
	}
	if m.verifyPassword("other") {
		t.Error("expected mismatched password to fail")
	}
}

func TestRecordFailureWindowReset(t *testing.T) {
	m := NewManager(&config.Config{})
	ip := "203.0.113.1"

	for i := 0; i < 3; i++ {
		m.recordFailure(ip)
	}
	if remaining := maxLoginAttempts - m.attempts[ip].count; remaining != 2 {
		t.Fatalf("expected 2 attempts left, got %d", remaining)
	}

	m.resetAttempts(ip)
	if _, ok := m.attempts[ip]; ok {
		t.Error("expected attempts to be cleared on reset")
	}
}

func TestCheckLockExpires(t *testing.T) {
	m := NewManager(&config.Config{})
	ip := fmt.Sprintf("203.0.113.%d", 2)

	for i := 0; i < maxLoginAttempts; i++ {
		m.recordFailure(ip)
	}
	if m.checkLock(ip) <= 0 {
		t.Fatal("expected a lock after max failures")
	}

	// ロック期限を過去に倒すと解除される。
	m.lock.Lock()
	m.attempts[ip].lockedUntil = m.attempts[ip].lockedUntil.Add(-2 * lockDuration)
	m.lock.Unlock()

	if m.checkLock(ip) != 0 {
		t.Error("expected lock to expire")
	}
}
