package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"trimbot/internal/shortener"
)

type Config struct {
	Version int `toml:"version"`

	Engine    EngineConfig    `toml:"engine"`
	Shortener ShortenerConfig `toml:"shortener"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Log       LogConfig       `toml:"log"`
}

type EngineConfig struct {
	Stats bool `toml:"stats"`
}

type ShortenerConfig struct {
	Endpoint    string   `toml:"endpoint"`
	APIKey      string   `toml:"api_key"`
	Timeout     Duration `toml:"timeout"`
	Concurrency int      `toml:"concurrency"`
	SkipHosts   []string `toml:"skip_hosts"`
}

type TelegramConfig struct {
	Token       string `toml:"token"`
	Mode        string `toml:"mode"`
	PollTimeout int    `toml:"poll_timeout"`
	WebhookURL  string `toml:"webhook_url"`
	ListenAddr  string `toml:"listen_addr"`
	Debug       bool   `toml:"debug"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration decodes TOML strings such as "5s" or "1m30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", string(text))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Environment variables that override values from the config file.
const (
	EnvShortenerKey = "URL_SHORTENER_API_KEY"
	EnvTelegramKey  = "TELEGRAM_BOT_API_KEY"
	EnvListenAddr   = "TRIMBOT_LISTEN_ADDR"
)

// Default returns a configuration with every default applied and no
// credentials. Environment overrides are not applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return Parse(string(b))
}

// Parse decodes a TOML document, applies defaults and environment overrides,
// and validates the result.
func Parse(doc string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(doc, &cfg)
	if err != nil {
		return nil, errors.Wrap(err, "parse toml")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, errors.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	applyDefaults(&cfg)
	ApplyEnv(&cfg, os.LookupEnv)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds a configuration from defaults plus environment overrides,
// for running without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	ApplyEnv(cfg, os.LookupEnv)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays non-empty environment values onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvShortenerKey); ok && strings.TrimSpace(v) != "" {
		cfg.Shortener.APIKey = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTelegramKey); ok && strings.TrimSpace(v) != "" {
		cfg.Telegram.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvListenAddr); ok && strings.TrimSpace(v) != "" {
		cfg.Telegram.ListenAddr = strings.TrimSpace(v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if cfg.Shortener.Endpoint == "" {
		cfg.Shortener.Endpoint = shortener.DefaultEndpoint
	}
	if cfg.Shortener.Timeout.Duration == 0 {
		cfg.Shortener.Timeout.Duration = 5 * time.Second
	}
	if cfg.Shortener.Concurrency == 0 {
		cfg.Shortener.Concurrency = 8
	}

	if cfg.Telegram.Mode == "" {
		cfg.Telegram.Mode = ModePolling
	}
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = 30
	}
	if cfg.Telegram.ListenAddr == "" {
		cfg.Telegram.ListenAddr = ":8080"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// Update delivery modes for the Telegram transport.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

func validate(cfg *Config) error {
	if cfg.Version != 1 {
		return errors.Errorf("unsupported version: %d", cfg.Version)
	}
	if !strings.HasPrefix(cfg.Shortener.Endpoint, "http://") && !strings.HasPrefix(cfg.Shortener.Endpoint, "https://") {
		return errors.Errorf("shortener.endpoint must be an http(s) URL")
	}
	if cfg.Shortener.Timeout.Duration < 0 {
		return errors.New("shortener.timeout must be positive")
	}
	if cfg.Shortener.Concurrency < 1 {
		return errors.New("shortener.concurrency must be >= 1")
	}
	for i, h := range cfg.Shortener.SkipHosts {
		if strings.TrimSpace(h) == "" {
			return errors.Errorf("shortener.skip_hosts[%d] is empty", i)
		}
	}

	switch cfg.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if cfg.Telegram.WebhookURL == "" {
			return errors.New("telegram.webhook_url is required for webhook mode")
		}
	default:
		return errors.Errorf("telegram.mode must be %q or %q", ModePolling, ModeWebhook)
	}
	if cfg.Telegram.PollTimeout < 0 {
		return errors.New("telegram.poll_timeout must be >= 0")
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		return errors.Errorf("log.format must be \"console\" or \"json\"")
	}
	return nil
}

// RequireShortener reports whether the shortener credential is present.
// Only commands that actually call the shortener need it.
func (c *Config) RequireShortener() error {
	if c.Shortener.APIKey == "" {
		return errors.Errorf("shortener.api_key is required (or set %s)", EnvShortenerKey)
	}
	return nil
}

// RequireTelegram reports whether the bot token is present.
func (c *Config) RequireTelegram() error {
	if c.Telegram.Token == "" {
		return errors.Errorf("telegram.token is required (or set %s)", EnvTelegramKey)
	}
	return nil
}
