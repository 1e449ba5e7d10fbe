package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidChannel = errors.New("channel must be an @username or a numeric chat id")

type Config struct {
	BotToken      string  `env:"BOT_TOKEN,required,notEmpty"`
	AdminUsername string  `env:"ADMIN_USERNAME" envDefault:"YOUR_USERNAME"`
	AdminIDs      []int64 `env:"ADMIN_IDS" envSeparator:","`

	// ForceChannels must all report active membership before a user is served.
	ForceChannels []string `env:"FORCE_CHANNELS" envSeparator:"," envDefault:"@SMSFARS_1,@SMSFARS_2"`

	Channels Channels

	FiveSimAPIKey     string `env:"FIVESIM_API_KEY"`
	SMSActivateAPIKey string `env:"SMSACTIVATE_API_KEY"`
	Currency          string `env:"CURRENCY" envDefault:"₽"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite://crazy_sms.db"`

	Kafka Kafka
	SMTP  SMTP

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// Channels are the notification destinations and the public channel handles
// shown to operators.
type Channels struct {
	Attempts          int64  `env:"CH_ATTEMPTS" envDefault:"-1002627555519"`
	Login             int64  `env:"CH_LOGIN" envDefault:"-10026017331"`
	SupportIn         int64  `env:"CH_SUPPORT_IN" envDefault:"-1002555952121"`
	PublicActivations string `env:"PUBLIC_ACTIVATIONS" envDefault:"@SMSFARS_2"`
	PublicOfficial    string `env:"PUBLIC_OFFICIAL" envDefault:"@SMSFARS_1"`
}

type Kafka struct {
	BootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	Topic            string `env:"KAFKA_TOPIC" envDefault:"sms_orders"`
}

func (k Kafka) Enabled() bool { return k.BootstrapServers != "" }

type SMTP struct {
	Host     string `env:"SMTP_HOST"`
	Port     string `env:"SMTP_PORT"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"MAIL_FROM"`
}

func (s SMTP) Enabled() bool {
	return s.Host != "" && s.Port != "" && s.User != "" && s.Password != "" && s.From != ""
}

// Load reads an optional .env file and parses the environment. A missing bot
// token is an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil {
		log.WithError(err).Warn("Could not load .env file.")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	channels, err := normalizeChannels(cfg.ForceChannels)
	if err != nil {
		return nil, err
	}
	cfg.ForceChannels = channels
	return &cfg, nil
}

// normalizeChannels trims every entry and drops empty ones, so
// "@one, @two," yields two channels.
func normalizeChannels(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, ch := range in {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if !validChannel(ch) {
			return nil, fmt.Errorf("invalid FORCE_CHANNELS entry %q: %w", ch, ErrInvalidChannel)
		}
		out = append(out, ch)
	}
	return out, nil
}

func validChannel(ch string) bool {
	if name, ok := strings.CutPrefix(ch, "@"); ok {
		return name != "" && !strings.ContainsAny(name, " @")
	}
	_, err := strconv.ParseInt(ch, 10, 64)
	return err == nil
}

func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.AdminIDs, userID)
}
