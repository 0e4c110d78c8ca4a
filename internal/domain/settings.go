package domain

type NotificationSettings struct {
	// Webhook
	WebhookEnabled  bool   `mapstructure:"webhook_enabled" json:"webhook_enabled"`
	WebhookURL      string `mapstructure:"webhook_url" json:"webhook_url" validate:"omitempty,url"`
	WebhookUser     string `mapstructure:"webhook_user" json:"webhook_user"`
	WebhookPassword string `mapstructure:"webhook_password" json:"-"`

	// Telegram
	TelegramEnabled  bool   `mapstructure:"telegram_enabled" json:"telegram_enabled"`
	TelegramBotToken string `mapstructure:"telegram_bot_token" json:"-"`
	TelegramChatID   string `mapstructure:"telegram_chat_id" json:"telegram_chat_id"`

	// Templates, empty means the built-in default
	ExpiryTemplate     string `mapstructure:"expiry_template" json:"expiry_template"`
	ScanFinishTemplate string `mapstructure:"scan_finish_template" json:"scan_finish_template"`

	NotifyOnScanFinish bool `mapstructure:"notify_on_scan_finish" json:"notify_on_scan_finish"`
}

func (s NotificationSettings) AnyEnabled() bool {
	return (s.WebhookEnabled && s.WebhookURL != "") ||
		(s.TelegramEnabled && s.TelegramBotToken != "" && s.TelegramChatID != "")
}
