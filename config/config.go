package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT"`
	ServerPort     int    `env:"PORT" envDefault:"8000"`
	ServerDNS      string `env:"SERVER_DNS" envDefault:"http://localhost:8000"`
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"keepshot.sqlite"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`

	Monitoring struct {
		TickIntervalSecs    int     `env:"SCHEDULER_TICK_SECS" envDefault:"300"`
		MaxConcurrentChecks int     `env:"MAX_CONCURRENT_CHECKS" envDefault:"10"`
		DefaultIntervalMins int     `env:"DEFAULT_CHECK_INTERVAL" envDefault:"60"`
		MinIntervalMins     int     `env:"MIN_CHECK_INTERVAL" envDefault:"5"`
		MaxIntervalMins     int     `env:"MAX_CHECK_INTERVAL" envDefault:"10080"`
		NotifyThreshold     float64 `env:"NOTIFY_THRESHOLD" envDefault:"0.5"`
		FetchTimeoutSecs    int     `env:"FETCH_TIMEOUT_SECS" envDefault:"30"`
	}

	OpenAI struct {
		BaseURL     string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
		APIKey      string `env:"OPENAI_API_KEY"`
		Model       string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
		TimeoutSecs int    `env:"OPENAI_TIMEOUT_SECS" envDefault:"60"`
	}

	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"30"`
	}

	log   *zap.Logger
	creds map[string]string
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	env.Parse(cfg)

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.Env != "production" {
			cfg.log.Sugar().Infof("%s (credentials will be set to default in development env)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			cfg.log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

func (cfg *Config) TickInterval() time.Duration {
	return time.Duration(cfg.Monitoring.TickIntervalSecs) * time.Second
}

func (cfg *Config) FetchTimeout() time.Duration {
	return time.Duration(cfg.Monitoring.FetchTimeoutSecs) * time.Second
}

// ClampCheckInterval bounds a check interval (minutes) to the configured
// [min, max] range; zero falls back to the default.
func (cfg *Config) ClampCheckInterval(mins int) int {
	if mins == 0 {
		mins = cfg.Monitoring.DefaultIntervalMins
	}
	if mins < cfg.Monitoring.MinIntervalMins {
		return cfg.Monitoring.MinIntervalMins
	}
	if mins > cfg.Monitoring.MaxIntervalMins {
		return cfg.Monitoring.MaxIntervalMins
	}
	return mins
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
