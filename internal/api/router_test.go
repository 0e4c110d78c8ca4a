package api

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cert-checker/internal/conf"
	"cert-checker/internal/domain"
	"cert-checker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fakeChecker() *service.CheckerService {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	return service.NewCheckerService(service.ProbeFunc(func(d string) domain.CertificateCheckResult {
		host := service.NormalizeDomain(d)
		if strings.HasPrefix(host, "bad") {
			return domain.NewErrorResult(host, domain.KindDNSFailure, domain.MsgDNSFailure)
		}
		return domain.NewOKResult(host, now.Add(45*24*time.Hour), now)
	}), 0)
}

func newTestRouter(auth conf.AuthConfig) *gin.Engine {
	return NewRouter(auth, Handlers{
		Check: NewCheckHandler(fakeChecker()),
		Tool:  NewToolHandler(service.NewInspectorService()),
	})
}

func doRequest(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHomeAndHealth(t *testing.T) {
	r := newTestRouter(conf.AuthConfig{Token: "secret"})

	w := doRequest(r, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "SSL Checker API is ready. POST to /check") {
		t.Fatalf("unexpected home response %d %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"status":"ok"}` {
		t.Fatalf("unexpected health response %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}
}

func TestCheckReturnsOrderedResults(t *testing.T) {
	r := newTestRouter(conf.AuthConfig{})

	w := doRequest(r, http.MethodPost, "/check", "", domain.CheckRequest{Domains: []string{"https://b.com/x", " ", "bad.com", "a.com"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0]["server"] != "b.com" || got[1]["server"] != "bad.com" || got[2]["server"] != "a.com" {
		t.Fatalf("unexpected order %v", got)
	}
	if got[0]["status"] != "ok" || got[0]["days_left"] != float64(45) || got[0]["error_message"] != nil {
		t.Errorf("unexpected ok result %v", got[0])
	}
	if got[1]["status"] != "error" || got[1]["error_message"] != "DNS lookup failed" || got[1]["days_left"] != nil {
		t.Errorf("unexpected error result %v", got[1])
	}
	if _, ok := got[1]["expiry_date"]; !ok {
		t.Error("expected expiry_date key to be present as null")
	}
}

func TestCheckEmptyAndMalformed(t *testing.T) {
	r := newTestRouter(conf.AuthConfig{})

	w := doRequest(r, http.MethodPost, "/check", "", `{"domains": []}`)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %d %s", w.Code, w.Body.String())
	}

	for _, body := range []string{`{}`, `{"domains": "a.com"}`, `not json`} {
		w = doRequest(r, http.MethodPost, "/check", "", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	auth := conf.AuthConfig{Token: "secret", TokenHash: string(hash)}
	r := newTestRouter(auth)

	sign := func(key string, exp time.Time, method jwt.SigningMethod) string {
		s, err := jwt.NewWithClaims(method, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}).SignedString([]byte(key))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"plain", "secret", http.StatusOK},
		{"bcrypt", "hashed-token", http.StatusOK},
		{"jwt", sign("secret", time.Now().Add(5*time.Minute), jwt.SigningMethodHS256), http.StatusOK},
		{"jwt expired", sign("secret", time.Now().Add(-time.Minute), jwt.SigningMethodHS256), http.StatusUnauthorized},
		{"jwt wrong key", sign("other", time.Now().Add(5*time.Minute), jwt.SigningMethodHS256), http.StatusUnauthorized},
		{"jwt wrong alg", sign("secret", time.Now().Add(5*time.Minute), jwt.SigningMethodHS512), http.StatusUnauthorized},
	}

	for _, test := range tests {
		w := doRequest(r, http.MethodPost, "/check", test.token, `{"domains": ["a.com"]}`)
		if w.Code != test.status {
			t.Errorf("%s: expected %d, got %d", test.name, test.status, w.Code)
		}
		if test.status == http.StatusUnauthorized && strings.TrimSpace(w.Body.String()) != `{"error":"Unauthorized"}` {
			t.Errorf("%s: unexpected 401 body %s", test.name, w.Body.String())
		}
	}

	// liveness stays open
	if w := doRequest(r, http.MethodGet, "/", "", nil); w.Code != http.StatusOK {
		t.Errorf("expected open home route, got %d", w.Code)
	}
}

func TestAuthMiddlewareRejectsNonBearer(t *testing.T) {
	r := newTestRouter(conf.AuthConfig{Token: "secret"})
	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(`{"domains":[]}`))
	req.Header.Set("Authorization", "Basic secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"error":"Unauthorized"}` {
		t.Errorf("unexpected 401 body %s", w.Body.String())
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := newTestRouter(conf.AuthConfig{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected propagated id, got %q", got)
	}
}

func TestDecodeCertificateHandler(t *testing.T) {
	r := newTestRouter(conf.AuthConfig{})

	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})

	w := doRequest(r, http.MethodPost, "/api/v1/tools/decode-cert", "", map[string]string{"cert_content": string(certPEM)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data  domain.CertDetails   `json:"data"`
		Chain []domain.CertDetails `json:"chain"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Chain) != 1 || resp.Data.NotAfter.IsZero() {
		t.Fatalf("unexpected decode response %s", w.Body.String())
	}

	w = doRequest(r, http.MethodPost, "/api/v1/tools/decode-cert", "", map[string]string{"cert_content": "hello"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for junk, got %d", w.Code)
	}
}

func TestInspectHandlerValidation(t *testing.T) {
	r := newTestRouter(conf.AuthConfig{})

	if w := doRequest(r, http.MethodGet, "/api/v1/inspect", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without domain, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/v1/inspect?domain=a.com&port=x", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad port, got %d", w.Code)
	}
}

func TestWatchRoutes(t *testing.T) {
	release := make(chan struct{})
	checker := service.NewCheckerService(service.ProbeFunc(func(d string) domain.CertificateCheckResult {
		<-release
		return domain.NewErrorResult(d, domain.KindTimeout, domain.MsgTimeout)
	}), 0)
	notifier := service.NewNotifierService(domain.NotificationSettings{})
	t.Cleanup(notifier.Close)
	cron := service.NewCronService(checker, nil, notifier, conf.WatchConfig{Domains: []string{"a.com"}, WarnDays: 30})

	r := NewRouter(conf.AuthConfig{}, Handlers{
		Check: NewCheckHandler(checker),
		Watch: NewWatchHandler(cron, notifier),
	})

	if w := doRequest(r, http.MethodGet, "/api/v1/watch/last", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first scan, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/v1/watch/scan", "", nil); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/v1/watch/scan", "", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while running, got %d", w.Code)
	}
	close(release)

	deadline := time.Now().Add(3 * time.Second)
	for cron.LastScan() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	w := doRequest(r, http.MethodGet, "/api/v1/watch/last", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"errors":1`) {
		t.Fatalf("unexpected last scan %d %s", w.Code, w.Body.String())
	}

	if w := doRequest(r, http.MethodPost, "/api/v1/watch/test-notify", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without channels, got %d", w.Code)
	}
}
