// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/accountd/internal/account"
)

// Defaults for the AMQP notifier.
const (
	DefaultExchange = "accountd.email"
	publishTimeout  = 5 * time.Second
	dialAttempts    = 5
)

// routing keys by message kind
var routingKeys = map[string]string{
	KindVerification: "email.verification",
	KindReset:        "email.reset",
}

// publisher is the part of *amqp.Channel the notifier uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes email jobs to a RabbitMQ topic exchange. A mail
// worker outside this service consumes and sends them.
type AMQPNotifier struct {
	pub      publisher
	exchange string
	composer *Composer
	closer   func() error
}

var _ account.Notifier = (*AMQPNotifier)(nil)

// DialAMQP connects to the broker at url, declares a durable topic exchange
// and returns a notifier publishing to it. The dial is retried with backoff.
func DialAMQP(ctx context.Context, url, exchange string, composer *Composer) (*AMQPNotifier, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	var conn *amqp.Connection
	backoff := retry.WithMaxRetries(dialAttempts-1, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := amqp.Dial(url)
		if err != nil {
			slog.WarnContext(ctx, "broker not ready", "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, oops.Code("AMQP_CONNECT_FAILED").With("operation", "dial broker").Wrap(err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close() //nolint:errcheck // channel error takes precedence
		return nil, oops.Code("AMQP_CONNECT_FAILED").With("operation", "open channel").Wrap(err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close() //nolint:errcheck // declare error takes precedence
		return nil, oops.Code("AMQP_CONNECT_FAILED").
			With("operation", "declare exchange").
			With("exchange", exchange).
			Wrap(err)
	}

	n := NewAMQPNotifier(ch, exchange, composer)
	n.closer = func() error {
		chErr := ch.Close()
		connErr := conn.Close()
		if chErr != nil {
			return oops.With("operation", "close channel").Wrap(chErr)
		}
		if connErr != nil {
			return oops.With("operation", "close connection").Wrap(connErr)
		}
		return nil
	}
	return n, nil
}

// NewAMQPNotifier creates a notifier publishing through pub.
func NewAMQPNotifier(pub publisher, exchange string, composer *Composer) *AMQPNotifier {
	return &AMQPNotifier{pub: pub, exchange: exchange, composer: composer}
}

// SendVerification publishes a verification email job.
func (n *AMQPNotifier) SendVerification(ctx context.Context, email, token string) error {
	msg, err := n.composer.Verification(email, token)
	if err != nil {
		return err
	}
	return n.publish(ctx, msg)
}

// SendReset publishes a password reset email job.
func (n *AMQPNotifier) SendReset(ctx context.Context, email, token string) error {
	msg, err := n.composer.Reset(email, token)
	if err != nil {
		return err
	}
	return n.publish(ctx, msg)
}

// Close closes the channel and connection opened by DialAMQP.
func (n *AMQPNotifier) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}

func (n *AMQPNotifier) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return oops.With("operation", "marshal email job").With("kind", msg.Kind).Wrap(err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := routingKeys[msg.Kind]
	err = n.pub.PublishWithContext(publishCtx, n.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ulid.Make().String(),
		Timestamp:    msg.IssuedAt,
		Type:         msg.Kind,
		Body:         body,
	})
	if err != nil {
		return oops.
			With("operation", "publish email job").
			With("exchange", n.exchange).
			With("routing_key", key).
			Wrap(err)
	}
	return nil
}
