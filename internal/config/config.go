// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads accountd configuration.
//
// Values are layered lowest to highest: flag defaults, the YAML config file,
// ACCOUNTD_* environment variables, then flags set on the command line.
// Environment names map to keys by dropping the prefix, lowercasing and
// turning "__" into "." (ACCOUNTD_SESSION__SECRET sets session.secret).
package config

import (
	"net/url"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Notifier drivers.
const (
	NotifierLog  = "log"
	NotifierAMQP = "amqp"
)

// CodeInvalid is the oops code of every validation failure.
const CodeInvalid = "CONFIG_INVALID"

const minSecretLength = 32

// Config is the complete accountd configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" json:"http,omitempty" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics,omitempty" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty" yaml:"log"`
	Database DatabaseConfig `koanf:"database" json:"database,omitempty" yaml:"database"`
	Store    StoreConfig    `koanf:"store" json:"store,omitempty" yaml:"store"`
	Session  SessionConfig  `koanf:"session" json:"session,omitempty" yaml:"session"`
	Tokens   TokensConfig   `koanf:"tokens" json:"tokens,omitempty" yaml:"tokens"`
	Hasher   HasherConfig   `koanf:"hasher" json:"hasher,omitempty" yaml:"hasher"`
	Notifier NotifierConfig `koanf:"notifier" json:"notifier,omitempty" yaml:"notifier"`
	Signup   SignupConfig   `koanf:"signup" json:"signup,omitempty" yaml:"signup"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string   `koanf:"addr" json:"addr,omitempty" yaml:"addr" jsonschema:"description=API listen address"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr" jsonschema:"description=Metrics and health probe listen address; empty disables"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL             string `koanf:"url" json:"url,omitempty" yaml:"url" jsonschema:"description=PostgreSQL connection URL"`
	ConnectAttempts uint64 `koanf:"connect_attempts" json:"connect_attempts,omitempty" yaml:"connect_attempts" jsonschema:"minimum=1"`
}

// StoreConfig selects the user store.
type StoreConfig struct {
	Driver string `koanf:"driver" json:"driver,omitempty" yaml:"driver" jsonschema:"enum=postgres,enum=memory"`
}

// SessionConfig configures session tokens.
type SessionConfig struct {
	Secret string   `koanf:"secret" json:"secret,omitempty" yaml:"secret" jsonschema:"minLength=32,description=HS256 signing key"`
	TTL    Duration `koanf:"ttl" json:"ttl,omitempty" yaml:"ttl"`
	Issuer string   `koanf:"issuer" json:"issuer,omitempty" yaml:"issuer"`
}

// TokensConfig sets one-time token lifetimes.
type TokensConfig struct {
	VerificationTTL Duration `koanf:"verification_ttl" json:"verification_ttl,omitempty" yaml:"verification_ttl"`
	ResetTTL        Duration `koanf:"reset_ttl" json:"reset_ttl,omitempty" yaml:"reset_ttl"`
}

// HasherConfig selects the password hash algorithm.
type HasherConfig struct {
	Algorithm string `koanf:"algorithm" json:"algorithm,omitempty" yaml:"algorithm" jsonschema:"enum=argon2id,enum=bcrypt"`
}

// NotifierConfig configures email delivery.
type NotifierConfig struct {
	Driver   string `koanf:"driver" json:"driver,omitempty" yaml:"driver" jsonschema:"enum=log,enum=amqp"`
	AMQPURL  string `koanf:"amqp_url" json:"amqp_url,omitempty" yaml:"amqp_url"`
	Exchange string `koanf:"exchange" json:"exchange,omitempty" yaml:"exchange"`
	BaseURL  string `koanf:"base_url" json:"base_url,omitempty" yaml:"base_url" jsonschema:"description=Public URL emailed links point at"`
}

// SignupConfig restricts signups.
type SignupConfig struct {
	AllowedEmailDomains []string `koanf:"allowed_email_domains" json:"allowed_email_domains,omitempty" yaml:"allowed_email_domains" jsonschema:"description=Glob patterns; empty allows every domain"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP:     HTTPConfig{Addr: ":8080", ShutdownTimeout: Duration(10 * time.Second)},
		Metrics:  MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:      LogConfig{Format: "json", Level: "info"},
		Database: DatabaseConfig{ConnectAttempts: 5},
		Store:    StoreConfig{Driver: StorePostgres},
		Session:  SessionConfig{TTL: Duration(time.Hour), Issuer: "accountd"},
		Tokens:   TokensConfig{VerificationTTL: Duration(time.Hour), ResetTTL: Duration(time.Hour)},
		Hasher:   HasherConfig{Algorithm: "argon2id"},
		Notifier: NotifierConfig{Driver: NotifierLog, Exchange: "accountd.email", BaseURL: "http://localhost:3000"},
		Signup:   SignupConfig{AllowedEmailDomains: []string{}},
	}
}

// Validate checks values the schema cannot express.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database.url is required for the postgres store")
		}
	case StoreMemory:
	default:
		return invalid("store.driver", "unknown store driver %q", c.Store.Driver)
	}

	if len(c.Session.Secret) < minSecretLength {
		return invalid("session.secret", "session.secret must be at least %d bytes", minSecretLength)
	}
	for _, ttl := range []struct {
		key string
		d   Duration
	}{
		{"session.ttl", c.Session.TTL},
		{"tokens.verification_ttl", c.Tokens.VerificationTTL},
		{"tokens.reset_ttl", c.Tokens.ResetTTL},
	} {
		if ttl.d <= 0 {
			return invalid(ttl.key, "%s must be positive", ttl.key)
		}
	}

	switch c.Hasher.Algorithm {
	case "argon2id", "bcrypt":
	default:
		return invalid("hasher.algorithm", "unknown hash algorithm %q", c.Hasher.Algorithm)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "unknown log format %q", c.Log.Format)
	}

	switch c.Notifier.Driver {
	case NotifierLog:
	case NotifierAMQP:
		if c.Notifier.AMQPURL == "" {
			return invalid("notifier.amqp_url", "notifier.amqp_url is required for the amqp notifier")
		}
	default:
		return invalid("notifier.driver", "unknown notifier driver %q", c.Notifier.Driver)
	}
	if u, err := url.Parse(c.Notifier.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return invalid("notifier.base_url", "notifier.base_url must be an http or https URL")
	}

	for _, p := range c.Signup.AllowedEmailDomains {
		if _, err := glob.Compile(p, '.'); err != nil {
			return oops.Code(CodeInvalid).
				With("key", "signup.allowed_email_domains").
				With("pattern", p).
				Wrapf(err, "invalid email domain pattern")
		}
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code(CodeInvalid).With("key", key).Errorf(format, args...)
}
