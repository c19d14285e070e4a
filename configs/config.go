package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TABERNA_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		Env      string `koanf:"env"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		RequestTimeout  time.Duration `koanf:"request_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`

	MySQL struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	} `koanf:"mysql"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Idempotency struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`

	Recovery struct {
		TTL         time.Duration `koanf:"ttl"`
		MaxAttempts int           `koanf:"max_attempts"`
		CodeLength  int           `koanf:"code_length"`
		ExposeCode  bool          `koanf:"expose_code"`
	} `koanf:"recovery"`

	Rabbit struct {
		URL      string `koanf:"url"`
		Exchange string `koanf:"exchange"`
		Queue    string `koanf:"queue"`
		Prefetch int    `koanf:"prefetch"`
	} `koanf:"rabbitmq"`

	Kafka struct {
		Brokers     []string `koanf:"brokers"`
		GroupID     string   `koanf:"group_id"`
		StatusTopic string   `koanf:"status_topic"`
		EventsTopic string   `koanf:"events_topic"`
	} `koanf:"kafka"`

	Outbox struct {
		Interval  time.Duration `koanf:"interval"`
		BatchSize int           `koanf:"batch_size"`
	} `koanf:"outbox"`

	Security struct {
		JWTSecret     string        `koanf:"jwt_secret"`
		Issuer        string        `koanf:"issuer"`
		Audience      string        `koanf:"audience"`
		TTL           time.Duration `koanf:"ttl"`
		SessionSecret string        `koanf:"session_secret"`
		SecureCookie  bool          `koanf:"secure_cookie"`
	} `koanf:"security"`

	Email struct {
		Region          string `koanf:"region"`
		Sender          string `koanf:"sender"`
		AccessKeyID     string `koanf:"access_key_id"`
		SecretAccessKey string `koanf:"secret_access_key"`
	} `koanf:"email"`

	Checkout struct {
		PaymentMethods []string `koanf:"payment_methods"`
	} `koanf:"checkout"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	// 1) base
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// 2) env override (dev/staging/prod). Optional: allow missing for local runs.
	_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())

	// 3) environment variables override (prefix TABERNA_, nested with __)
	// e.g. TABERNA_MYSQL__DSN, TABERNA_SECURITY__JWT_SECRET
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if cfg.App.Env == "" {
		cfg.App.Env = envName
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn required")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret required")
	}
	if c.Recovery.MaxAttempts < 0 || c.Recovery.CodeLength < 0 {
		return fmt.Errorf("recovery: attempts and code length must not be negative")
	}
	return nil
}

// Development reports whether development-only behaviour (exposed recovery codes) may be enabled.
func (c Config) Development() bool { return c.App.Env == "dev" }
