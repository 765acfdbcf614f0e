// Package config loads process settings for the sessionctl binary from the
// environment, optionally seeded from a dotenv file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/edudashpro/sessionctl"
)

// EnvPrefix namespaces every variable, e.g. EDUDASH_GOTRUE_URL.
const EnvPrefix = "EDUDASH"

type GoTrue struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type JWT struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Postgres struct {
	DSN          string
	MaxOpenConns int
	ScopeClaims  bool
}

type AMQP struct {
	URL      string
	Exchange string
	Queue    string
}

// Throttle bounds credential attempts per email. It only applies when Redis
// is configured.
type Throttle struct {
	MaxSignInFailures int
	SignInCooldown    time.Duration
	MaxResetRequests  int
	ResetWindow       time.Duration
}

// Settings is everything the binary wires together.
type Settings struct {
	Controller sessionctl.Config

	DeviceID         string
	SessionRetention time.Duration
	RefreshMargin    time.Duration

	GoTrue   GoTrue
	JWT      JWT
	Redis    Redis
	Postgres Postgres
	AMQP     AMQP
	Throttle Throttle
}

func defaults(v *viper.Viper) {
	base := sessionctl.DefaultConfig()

	v.SetDefault("navigation.landing_route", base.Navigation.LandingRoute)
	v.SetDefault("navigation.signout_delay", base.Navigation.SignOutDelay)
	v.SetDefault("navigation.disabled", false)
	v.SetDefault("auth.reset_redirect", base.Auth.PasswordResetRedirect)
	v.SetDefault("auth.min_password_length", base.Auth.MinPasswordLength)
	v.SetDefault("profile.load_timeout", base.Profile.LoadTimeout)
	v.SetDefault("audit.enabled", base.Audit.Enabled)
	v.SetDefault("audit.buffer_size", base.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", base.Audit.DropIfFull)
	v.SetDefault("metrics.enabled", base.Metrics.Enabled)
	v.SetDefault("metrics.latency_histograms", base.Metrics.EnableLatencyHistograms)
	v.SetDefault("log.level", base.Logging.Level)
	v.SetDefault("log.format", base.Logging.Format)

	v.SetDefault("device_id", "")
	v.SetDefault("session.retention", 30*24*time.Hour)
	v.SetDefault("session.refresh_margin", time.Minute)

	v.SetDefault("gotrue.url", "")
	v.SetDefault("gotrue.api_key", "")
	v.SetDefault("gotrue.timeout", 30*time.Second)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.audience", "authenticated")
	v.SetDefault("jwt.leeway", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "sessionctl")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.scope_claims", false)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "")
	v.SetDefault("amqp.queue", "")

	v.SetDefault("throttle.signin_max", 5)
	v.SetDefault("throttle.signin_cooldown", 15*time.Minute)
	v.SetDefault("throttle.reset_max", 3)
	v.SetDefault("throttle.reset_window", time.Hour)
}

// Load reads envFile when given, or ./.env when present, then the process
// environment. Variables already set in the environment win over the file.
func Load(envFile string) (*Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config.godotenv(%s): %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("config.godotenv(.env): %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config.os.Stat(.env): %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.AutomaticEnv()

	s := &Settings{
		Controller: sessionctl.Config{
			Navigation: sessionctl.NavigationConfig{
				LandingRoute: v.GetString("navigation.landing_route"),
				SignOutDelay: v.GetDuration("navigation.signout_delay"),
				Disabled:     v.GetBool("navigation.disabled"),
			},
			Auth: sessionctl.AuthConfig{
				PasswordResetRedirect: v.GetString("auth.reset_redirect"),
				MinPasswordLength:     v.GetInt("auth.min_password_length"),
			},
			Profile: sessionctl.ProfileConfig{
				LoadTimeout: v.GetDuration("profile.load_timeout"),
			},
			Audit: sessionctl.AuditConfig{
				Enabled:    v.GetBool("audit.enabled"),
				BufferSize: v.GetInt("audit.buffer_size"),
				DropIfFull: v.GetBool("audit.drop_if_full"),
			},
			Metrics: sessionctl.MetricsConfig{
				Enabled:                 v.GetBool("metrics.enabled"),
				EnableLatencyHistograms: v.GetBool("metrics.latency_histograms"),
			},
			Logging: sessionctl.LoggingConfig{
				Level:  v.GetString("log.level"),
				Format: v.GetString("log.format"),
			},
		},
		DeviceID:         v.GetString("device_id"),
		SessionRetention: v.GetDuration("session.retention"),
		RefreshMargin:    v.GetDuration("session.refresh_margin"),
		GoTrue: GoTrue{
			URL:     v.GetString("gotrue.url"),
			APIKey:  v.GetString("gotrue.api_key"),
			Timeout: v.GetDuration("gotrue.timeout"),
		},
		JWT: JWT{
			Secret:   v.GetString("jwt.secret"),
			Issuer:   v.GetString("jwt.issuer"),
			Audience: v.GetString("jwt.audience"),
			Leeway:   v.GetDuration("jwt.leeway"),
		},
		Redis: Redis{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
		},
		Postgres: Postgres{
			DSN:          v.GetString("postgres.dsn"),
			MaxOpenConns: v.GetInt("postgres.max_open_conns"),
			ScopeClaims:  v.GetBool("postgres.scope_claims"),
		},
		AMQP: AMQP{
			URL:      v.GetString("amqp.url"),
			Exchange: v.GetString("amqp.exchange"),
			Queue:    v.GetString("amqp.queue"),
		},
		Throttle: Throttle{
			MaxSignInFailures: v.GetInt("throttle.signin_max"),
			SignInCooldown:    v.GetDuration("throttle.signin_cooldown"),
			MaxResetRequests:  v.GetInt("throttle.reset_max"),
			ResetWindow:       v.GetDuration("throttle.reset_window"),
		},
	}

	if s.DeviceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "local"
		}
		s.DeviceID = "cli-" + host
	}
	return s, nil
}

// Validate checks the settings the binary cannot run without.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.GoTrue.URL) == "" {
		return errors.New("EDUDASH_GOTRUE_URL must be set")
	}
	if s.AMQP.URL == "" && (s.AMQP.Exchange != "" || s.AMQP.Queue != "") {
		return errors.New("EDUDASH_AMQP_URL must be set when an exchange or queue is configured")
	}
	if s.Controller.Audit.Enabled && s.AMQP.URL == "" {
		return errors.New("EDUDASH_AUDIT_ENABLED requires EDUDASH_AMQP_URL")
	}
	return s.Controller.Validate()
}
