package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cert-checker/internal/domain"
)

type capturedRequest struct {
	Path string
	User string
	Pass string
	Body map[string]string
}

// newCaptureServer records every JSON POST it receives.
func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var got []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		user, pass, _ := r.BasicAuth()
		mu.Lock()
		got = append(got, capturedRequest{Path: r.URL.Path, User: user, Pass: pass, Body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), got...)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func intPtr(i int) *int { return &i }

func TestAlertReason(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		res      domain.CertificateCheckResult
		expected string
	}{
		{"healthy", domain.NewOKResult("a.com", now.Add(90*24*time.Hour), now), ""},
		{"expiring", domain.NewOKResult("a.com", now.Add(5*24*time.Hour), now), "certificate expires in 5 days"},
		{"expired", domain.NewOKResult("a.com", now.Add(-48*time.Hour), now), "certificate expired"},
		{"failed", domain.NewErrorResult("a.com", domain.KindDNSFailure, domain.MsgDNSFailure), "❌ DNS lookup failed"},
	}

	for _, test := range tests {
		if got := AlertReason(test.res, 30); got != test.expected {
			t.Errorf("%s: AlertReason = %q, expected %q", test.name, got, test.expected)
		}
	}
}

func TestNotifyExpiringSendsWebhook(t *testing.T) {
	srv, received := newCaptureServer(t, http.StatusOK)
	n := newNotifierService(domain.NotificationSettings{
		WebhookEnabled:  true,
		WebhookURL:      srv.URL,
		WebhookUser:     "bot",
		WebhookPassword: "pw",
		ExpiryTemplate:  "{{.Domain}} {{.Days}} {{.Reason}}",
	}, time.Millisecond, srv.URL)
	t.Cleanup(n.Close)

	res := domain.CertificateCheckResult{Server: "a.com", Status: domain.StatusOK, ExpiryDate: new(string), DaysLeft: intPtr(3)}
	if !n.NotifyExpiring(res, 30) {
		t.Fatal("expected alert to be queued")
	}

	waitFor(t, func() bool { return len(received()) == 1 })
	got := received()[0]
	if got.Body["text"] != "a.com 3 certificate expires in 3 days" {
		t.Errorf("unexpected webhook text %q", got.Body["text"])
	}
	if got.User != "bot" || got.Pass != "pw" {
		t.Errorf("expected basic auth bot/pw, got %s/%s", got.User, got.Pass)
	}
}

func TestNotifyExpiringSkipsHealthy(t *testing.T) {
	srv, received := newCaptureServer(t, http.StatusOK)
	n := newNotifierService(domain.NotificationSettings{WebhookEnabled: true, WebhookURL: srv.URL}, time.Millisecond, srv.URL)
	t.Cleanup(n.Close)

	res := domain.CertificateCheckResult{Server: "a.com", Status: domain.StatusOK, ExpiryDate: new(string), DaysLeft: intPtr(90)}
	if n.NotifyExpiring(res, 30) {
		t.Fatal("healthy certificate should not alert")
	}
	time.Sleep(50 * time.Millisecond)
	if len(received()) != 0 {
		t.Fatalf("expected no requests, got %d", len(received()))
	}
}

func TestNotifyExpiringDisabledChannels(t *testing.T) {
	n := newNotifierService(domain.NotificationSettings{}, time.Millisecond, "http://127.0.0.1:0")
	t.Cleanup(n.Close)

	res := domain.NewErrorResult("a.com", domain.KindTimeout, domain.MsgTimeout)
	if n.NotifyExpiring(res, 30) {
		t.Fatal("expected nothing queued without enabled channels")
	}
}

func TestNotifyExpiringFallsBackOnBadTemplate(t *testing.T) {
	srv, received := newCaptureServer(t, http.StatusOK)
	n := newNotifierService(domain.NotificationSettings{
		WebhookEnabled: true,
		WebhookURL:     srv.URL,
		ExpiryTemplate: "{{.Nope",
	}, time.Millisecond, srv.URL)
	t.Cleanup(n.Close)

	n.NotifyExpiring(domain.NewErrorResult("b.com", domain.KindTimeout, domain.MsgTimeout), 30)

	waitFor(t, func() bool { return len(received()) == 1 })
	if text := received()[0].Body["text"]; !strings.Contains(text, "b.com") || !strings.Contains(text, "Connection timed out") {
		t.Errorf("unexpected fallback text %q", text)
	}
}

func TestNotifyScanFinishTelegram(t *testing.T) {
	srv, received := newCaptureServer(t, http.StatusOK)
	n := newNotifierService(domain.NotificationSettings{
		TelegramEnabled:    true,
		TelegramBotToken:   "TOKEN",
		TelegramChatID:     "42",
		NotifyOnScanFinish: true,
	}, time.Millisecond, srv.URL)
	t.Cleanup(n.Close)

	ok := n.NotifyScanFinish(domain.ScanSummary{Total: 4, OK: 2, Expiring: 1, Errors: 1, Duration: "1s"})
	if !ok {
		t.Fatal("expected summary to be queued")
	}

	waitFor(t, func() bool { return len(received()) == 1 })
	got := received()[0]
	if got.Path != "/botTOKEN/sendMessage" {
		t.Errorf("unexpected telegram path %s", got.Path)
	}
	if got.Body["chat_id"] != "42" || !strings.Contains(got.Body["text"], "Total: 4") {
		t.Errorf("unexpected telegram body %v", got.Body)
	}
}

func TestNotifyExpiringTelegramSendsPlainText(t *testing.T) {
	srv, received := newCaptureServer(t, http.StatusOK)
	n := newNotifierService(domain.NotificationSettings{
		TelegramEnabled:  true,
		TelegramBotToken: "TOKEN",
		TelegramChatID:   "42",
		ExpiryTemplate:   "{{.Domain}}: {{.Reason}}",
	}, time.Millisecond, srv.URL)
	t.Cleanup(n.Close)

	res := domain.NewErrorResult("a&b.com", domain.KindTLSFailure, "SSL Error: <bad cert> & more")
	if !n.NotifyExpiring(res, 30) {
		t.Fatal("expected alert to be queued")
	}

	waitFor(t, func() bool { return len(received()) == 1 })
	got := received()[0]
	if _, ok := got.Body["parse_mode"]; ok {
		t.Errorf("expected no parse_mode, got %q", got.Body["parse_mode"])
	}
	if want := "a&b.com: ❌ SSL Error: <bad cert> & more"; got.Body["text"] != want {
		t.Errorf("expected %q, got %q", want, got.Body["text"])
	}
}

func TestNotifyScanFinishRespectsToggle(t *testing.T) {
	n := newNotifierService(domain.NotificationSettings{WebhookEnabled: true, WebhookURL: "http://127.0.0.1:0"}, time.Millisecond, "")
	t.Cleanup(n.Close)

	if n.NotifyScanFinish(domain.ScanSummary{Total: 1}) {
		t.Fatal("scan summary should be off by default")
	}
}

func TestWorkerPacesMessages(t *testing.T) {
	srv, received := newCaptureServer(t, http.StatusOK)
	const interval = 100 * time.Millisecond
	n := newNotifierService(domain.NotificationSettings{WebhookEnabled: true, WebhookURL: srv.URL}, interval, srv.URL)
	t.Cleanup(n.Close)

	start := time.Now()
	for i := 0; i < 3; i++ {
		n.NotifyExpiring(domain.NewErrorResult("a.com", domain.KindTimeout, domain.MsgTimeout), 30)
	}
	waitFor(t, func() bool { return len(received()) == 3 })

	// first send is immediate, the next two wait one interval each
	if elapsed := time.Since(start); elapsed < 2*interval-10*time.Millisecond {
		t.Errorf("3 messages sent in %s, expected pacing of %s", elapsed, interval)
	}
}

func TestSendTestMessageReportsErrors(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusInternalServerError)
	n := newNotifierService(domain.NotificationSettings{}, time.Millisecond, srv.URL)
	t.Cleanup(n.Close)

	err := n.SendTestMessage(context.Background(), domain.NotificationSettings{
		WebhookEnabled:   true,
		WebhookURL:       srv.URL,
		TelegramEnabled:  true,
		TelegramBotToken: "T",
		TelegramChatID:   "1",
	})
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if !strings.Contains(err.Error(), "webhook: status code 500") || !strings.Contains(err.Error(), "telegram: status code 500") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestUpdateSettings(t *testing.T) {
	n := newNotifierService(domain.NotificationSettings{}, time.Millisecond, "")
	t.Cleanup(n.Close)

	n.UpdateSettings(domain.NotificationSettings{WebhookEnabled: true, WebhookURL: "http://x"})
	if !n.Settings().AnyEnabled() {
		t.Fatal("expected updated settings to be visible")
	}
}
