package conf

import (
	"errors"
	"fmt"
	"strings"

	"cert-checker/internal/domain"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig                `mapstructure:"server"`
	Log        LogConfig                   `mapstructure:"log"`
	Auth       AuthConfig                  `mapstructure:"auth"`
	Probe      ProbeConfig                 `mapstructure:"probe"`
	Watch      WatchConfig                 `mapstructure:"watch"`
	Cloudflare CloudflareConfig            `mapstructure:"cloudflare"`
	Notify     domain.NotificationSettings `mapstructure:"notify"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	// gin mode: debug, release or test
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type AuthConfig struct {
	// Token is the shared bearer secret, also the HS256 key for JWTs.
	Token string `mapstructure:"token"`
	// TokenHash is a bcrypt hash accepted in place of a plain token.
	TokenHash string `mapstructure:"token_hash"`
}

func (a AuthConfig) Enabled() bool {
	return a.Token != "" || a.TokenHash != ""
}

type ProbeConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"min=0"`
}

type WatchConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Schedule      string   `mapstructure:"schedule" validate:"required_if=Enabled true"`
	Domains       []string `mapstructure:"domains"`
	WarnDays      int      `mapstructure:"warn_days" validate:"min=0"`
	UseCloudflare bool     `mapstructure:"use_cloudflare"`
}

type CloudflareConfig struct {
	APIToken string `mapstructure:"api_token"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads .env, ./config/config.yaml (or the given directories) and
// the environment, in increasing order of precedence.
func LoadConfig(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env not found, using process environment")
	}

	v := newViper(paths)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logrus.Info("No config file found, using defaults and environment")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	logrus.Debug("Config loaded")
	return cfg, nil
}

// WatchFile calls onChange with the re-read config whenever the config file
// changes. Invalid edits are logged and skipped.
func WatchFile(onChange func(*Config), paths ...string) error {
	v := newViper(paths)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logrus.Infof("Config file changed: %s", e.Name)
		cfg, err := decode(v)
		if err != nil {
			logrus.Errorf("Ignoring invalid config change: %v", err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(paths []string) *viper.Viper {
	v := viper.New()
	if len(paths) == 0 {
		paths = []string{"./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_hash", "")
	v.SetDefault("probe.max_concurrency", 0)
	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.schedule", "30 2 * * *")
	v.SetDefault("watch.domains", []string{})
	v.SetDefault("watch.warn_days", 30)
	v.SetDefault("watch.use_cloudflare", false)
	v.SetDefault("cloudflare.api_token", "")
	v.SetDefault("notify.webhook_enabled", false)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.webhook_user", "")
	v.SetDefault("notify.webhook_password", "")
	v.SetDefault("notify.telegram_enabled", false)
	v.SetDefault("notify.telegram_bot_token", "")
	v.SetDefault("notify.telegram_chat_id", "")
	v.SetDefault("notify.expiry_template", "")
	v.SetDefault("notify.scan_finish_template", "")
	v.SetDefault("notify.notify_on_scan_finish", false)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Watch.UseCloudflare && cfg.Cloudflare.APIToken == "" {
		return nil, errors.New("invalid config: watch.use_cloudflare needs cloudflare.api_token")
	}
	return &cfg, nil
}
