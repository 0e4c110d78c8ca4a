package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"cert-checker/internal/domain"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Telegram rejects bursts to one chat, so every channel sends at most one
// message per sendInterval.
const (
	sendInterval   = 1100 * time.Millisecond
	queueSize      = 1000
	telegramAPIURL = "https://api.telegram.org"
)

const (
	defaultExpiryTpl     = "⚠️ [Certificate alert]\nDomain: {{.Domain}}\nStatus: {{.Status}}\nReason: {{.Reason}}\nDays left: {{.Days}}\nExpires: {{.ExpiryDate}}"
	defaultScanFinishTpl = "🔍 [Certificate scan finished]\nTotal: {{.Total}}\nOK: {{.OK}}\nExpiring: {{.Expiring}}\nErrors: {{.Errors}}\nDuration: {{.Duration}}"
	testMessage          = "🔔 [Test] This is a test alert from cert-checker."
)

type ExpiryTemplateData struct {
	Domain     string
	Status     string
	Days       int
	ExpiryDate string
	Reason     string
}

type telegramJob struct {
	Token   string
	ChatID  string
	Message string
}

type webhookJob struct {
	URL      string
	Message  string
	User     string
	Password string
}

// NotifierService renders alerts and delivers them to Telegram and a generic
// webhook. Delivery is queued; each channel has its own paced worker.
type NotifierService struct {
	mu       sync.RWMutex
	settings domain.NotificationSettings

	client       *http.Client
	telegramAPI  string
	tgQueue      chan telegramJob
	webhookQueue chan webhookJob
	tgLimiter    *rate.Limiter
	hookLimiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotifierService(settings domain.NotificationSettings) *NotifierService {
	return newNotifierService(settings, sendInterval, telegramAPIURL)
}

func newNotifierService(settings domain.NotificationSettings, interval time.Duration, telegramAPI string) *NotifierService {
	ctx, cancel := context.WithCancel(context.Background())
	n := &NotifierService{
		settings:     settings,
		client:       &http.Client{Timeout: 10 * time.Second},
		telegramAPI:  telegramAPI,
		tgQueue:      make(chan telegramJob, queueSize),
		webhookQueue: make(chan webhookJob, queueSize),
		tgLimiter:    rate.NewLimiter(rate.Every(interval), 1),
		hookLimiter:  rate.NewLimiter(rate.Every(interval), 1),
		ctx:          ctx,
		cancel:       cancel,
	}

	n.wg.Add(2)
	go n.startTelegramWorker()
	go n.startWebhookWorker()
	return n
}

// UpdateSettings swaps the channel settings, used on config reload.
func (n *NotifierService) UpdateSettings(settings domain.NotificationSettings) {
	n.mu.Lock()
	n.settings = settings
	n.mu.Unlock()
}

func (n *NotifierService) Settings() domain.NotificationSettings {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.settings
}

// Close stops the workers. Queued messages that have not been sent are dropped.
func (n *NotifierService) Close() {
	n.cancel()
	n.wg.Wait()
}

func (n *NotifierService) startTelegramWorker() {
	defer n.wg.Done()
	logrus.Debug("[Notifier] Telegram worker started")
	for {
		select {
		case <-n.ctx.Done():
			return
		case job := <-n.tgQueue:
			if err := n.tgLimiter.Wait(n.ctx); err != nil {
				return
			}
			if err := n.sendTelegram(n.ctx, job.Token, job.ChatID, job.Message); err != nil {
				logrus.Errorf("[Notifier] Telegram send failed: %v", err)
			}
		}
	}
}

func (n *NotifierService) startWebhookWorker() {
	defer n.wg.Done()
	logrus.Debug("[Notifier] Webhook worker started")
	for {
		select {
		case <-n.ctx.Done():
			return
		case job := <-n.webhookQueue:
			if err := n.hookLimiter.Wait(n.ctx); err != nil {
				return
			}
			if err := n.sendWebhook(n.ctx, job.URL, job.Message, job.User, job.Password); err != nil {
				logrus.Errorf("[Notifier] Webhook send failed: %v", err)
			}
		}
	}
}

// AlertReason reports why a result needs attention, or "" when it does not.
// Failed checks always alert; successful ones alert below warnDays.
func AlertReason(res domain.CertificateCheckResult, warnDays int) string {
	if !res.IsOK() {
		if res.ErrorMessage != nil {
			return "❌ " + *res.ErrorMessage
		}
		return "❌ check failed"
	}
	if res.DaysLeft == nil {
		return ""
	}
	switch days := *res.DaysLeft; {
	case days < 0:
		return "certificate expired"
	case days < warnDays:
		return fmt.Sprintf("certificate expires in %d days", days)
	}
	return ""
}

// NotifyExpiring queues an alert for res if it is failing or expiring within
// warnDays. It reports whether an alert was queued.
func (n *NotifierService) NotifyExpiring(res domain.CertificateCheckResult, warnDays int) bool {
	reason := AlertReason(res, warnDays)
	if reason == "" {
		return false
	}
	settings := n.Settings()
	if !settings.AnyEnabled() {
		return false
	}

	data := ExpiryTemplateData{
		Domain: res.Server,
		Status: string(res.Status),
		Reason: reason,
	}
	if res.DaysLeft != nil {
		data.Days = *res.DaysLeft
	}
	if res.ExpiryDate != nil {
		data.ExpiryDate = *res.ExpiryDate
	}

	tmplStr := settings.ExpiryTemplate
	if tmplStr == "" {
		tmplStr = defaultExpiryTpl
	}
	msg, err := renderTemplate(tmplStr, data)
	if err != nil {
		logrus.Errorf("[Notifier] Expiry template failed: %v", err)
		msg = fmt.Sprintf("⚠️ Alert: %s (template error)\nReason: %s", res.Server, reason)
	}

	n.sendToChannels(settings, msg)
	return true
}

// NotifyScanFinish queues the run summary when scan reports are enabled.
func (n *NotifierService) NotifyScanFinish(summary domain.ScanSummary) bool {
	settings := n.Settings()
	if !settings.NotifyOnScanFinish || !settings.AnyEnabled() {
		return false
	}

	tmplStr := settings.ScanFinishTemplate
	if tmplStr == "" {
		tmplStr = defaultScanFinishTpl
	}
	msg, err := renderTemplate(tmplStr, summary)
	if err != nil {
		logrus.Error("[Notifier] Scan summary template failed: ", err)
		return false
	}

	n.sendToChannels(settings, msg)
	return true
}

// SendTestMessage delivers a test message synchronously, bypassing the queues,
// so callers see delivery errors.
func (n *NotifierService) SendTestMessage(ctx context.Context, settings domain.NotificationSettings) error {
	var errs []error
	if settings.TelegramEnabled && settings.TelegramBotToken != "" && settings.TelegramChatID != "" {
		if err := n.sendTelegram(ctx, settings.TelegramBotToken, settings.TelegramChatID, testMessage); err != nil {
			errs = append(errs, fmt.Errorf("telegram: %w", err))
		}
	}
	if settings.WebhookEnabled && settings.WebhookURL != "" {
		if err := n.sendWebhook(ctx, settings.WebhookURL, testMessage, settings.WebhookUser, settings.WebhookPassword); err != nil {
			errs = append(errs, fmt.Errorf("webhook: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (n *NotifierService) sendToChannels(settings domain.NotificationSettings, msg string) {
	if settings.TelegramEnabled && settings.TelegramBotToken != "" && settings.TelegramChatID != "" {
		select {
		case n.tgQueue <- telegramJob{Token: settings.TelegramBotToken, ChatID: settings.TelegramChatID, Message: msg}:
			logrus.Debugf("[Queue] Telegram message queued (backlog %d)", len(n.tgQueue))
		default:
			logrus.Warn("[Queue] Telegram queue full, dropping message")
		}
	}

	if settings.WebhookEnabled && settings.WebhookURL != "" {
		select {
		case n.webhookQueue <- webhookJob{URL: settings.WebhookURL, Message: msg, User: settings.WebhookUser, Password: settings.WebhookPassword}:
			logrus.Debugf("[Queue] Webhook message queued (backlog %d)", len(n.webhookQueue))
		default:
			logrus.Warn("[Queue] Webhook queue full, dropping message")
		}
	}
}

// Payload shape shared by Slack, Discord and Teams incoming webhooks.
type WebhookPayload struct {
	Text string `json:"text"`
}

func (n *NotifierService) sendWebhook(ctx context.Context, url, message, user, password string) error {
	body, err := json.Marshal(WebhookPayload{Text: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" || password != "" {
		req.SetBasicAuth(user, password)
	}

	return n.do(req)
}

func (n *NotifierService) sendTelegram(ctx context.Context, token, chatID, message string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(n.telegramAPI, "/"), token)
	body, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return n.do(req)
}

func (n *NotifierService) do(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status code %d", resp.StatusCode)
	}
	return nil
}

func renderTemplate(tmplStr string, data any) (string, error) {
	t, err := template.New("notify").Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
