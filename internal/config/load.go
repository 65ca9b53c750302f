// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ACCOUNTD_"

// RegisterFlags adds one flag per config key to fs, defaulting to Default().
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http.addr", d.HTTP.Addr, "API listen address")
	fs.Duration("http.shutdown_timeout", d.HTTP.ShutdownTimeout.Std(), "graceful shutdown timeout")
	fs.String("metrics.addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("log.format", d.Log.Format, "log format (json, text)")
	fs.String("log.level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("database.url", d.Database.URL, "PostgreSQL connection URL")
	fs.Uint64("database.connect_attempts", d.Database.ConnectAttempts, "database connection attempts at startup")
	fs.String("store.driver", d.Store.Driver, "user store (postgres, memory)")
	fs.String("session.secret", d.Session.Secret, "session signing secret (at least 32 bytes)")
	fs.Duration("session.ttl", d.Session.TTL.Std(), "session token lifetime")
	fs.String("session.issuer", d.Session.Issuer, "session token issuer")
	fs.Duration("tokens.verification_ttl", d.Tokens.VerificationTTL.Std(), "email verification token lifetime")
	fs.Duration("tokens.reset_ttl", d.Tokens.ResetTTL.Std(), "password reset token lifetime")
	fs.String("hasher.algorithm", d.Hasher.Algorithm, "password hash algorithm (argon2id, bcrypt)")
	fs.String("notifier.driver", d.Notifier.Driver, "email notifier (log, amqp)")
	fs.String("notifier.amqp_url", d.Notifier.AMQPURL, "RabbitMQ URL for the amqp notifier")
	fs.String("notifier.exchange", d.Notifier.Exchange, "RabbitMQ exchange for email jobs")
	fs.String("notifier.base_url", d.Notifier.BaseURL, "public base URL used in emailed links")
	fs.StringSlice("signup.allowed_email_domains", d.Signup.AllowedEmailDomains, "email domain glob patterns allowed to sign up")
}

// Load builds a Config from fs, the YAML file at path (skipped when empty)
// and the environment. It does not call Validate.
func Load(fs *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(posflag.Provider(fs, ".", nil), nil); err != nil {
		return nil, oops.Code(CodeInvalid).With("source", "flags").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).With("source", "file").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code(CodeInvalid).With("source", "env").Wrap(err)
	}

	// Flags given on the command line win over file and environment.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, oops.Code(CodeInvalid).With("source", "flags").Wrap(err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(CodeInvalid).With("operation", "decode config").Wrap(err)
	}
	return &cfg, nil
}

// envKey maps ACCOUNTD_SESSION__SECRET to session.secret.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
