// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers verification and password reset emails.
//
// The Service hands each notifier a recipient and a plaintext one-time
// token. Notifiers turn that into a Message with a clickable link and
// deliver it: LogNotifier writes it to a logger for local development,
// AMQPNotifier publishes it as an email job for a mail worker.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// DefaultBaseURL is used when no public base URL is configured.
const DefaultBaseURL = "http://localhost:3000"

// Message kinds.
const (
	KindVerification = "verification"
	KindReset        = "reset"
)

// Message is a rendered email ready for delivery.
type Message struct {
	Kind     string    `json:"kind"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Link     string    `json:"link"`
	HTML     string    `json:"html"`
	IssuedAt time.Time `json:"issued_at"`
}

// Links builds the URLs embedded in emails.
type Links struct {
	base string
}

// NewLinks parses baseURL. An empty baseURL uses DefaultBaseURL.
func NewLinks(baseURL string) (Links, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return Links{}, oops.With("base_url", baseURL).Wrap(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Links{}, oops.With("base_url", baseURL).Errorf("base url must be http or https")
	}
	return Links{base: strings.TrimRight(baseURL, "/")}, nil
}

// Verification returns the email verification link for token.
func (l Links) Verification(token string) string {
	return l.base + "/auth/verify-email?token=" + url.QueryEscape(token)
}

// Reset returns the password reset link for token.
func (l Links) Reset(token string) string {
	return l.base + "/auth/reset-password?token=" + url.QueryEscape(token)
}

var (
	verificationTmpl = template.Must(template.New("verification").Parse(`<p>Thank you for signing up!</p>
<p>Please click the link below to verify your email:</p>
<a href="{{.Link}}">{{.Link}}</a>
<p>This link will expire in {{.TTL}}.</p>
`))
	resetTmpl = template.Must(template.New("reset").Parse(`<p>You requested a password reset.</p>
<p>Click the link below to reset your password:</p>
<a href="{{.Link}}">{{.Link}}</a>
<p>This link will expire in {{.TTL}}.</p>
`))
)

// Composer renders messages for both token kinds.
type Composer struct {
	links           Links
	verificationTTL string
	resetTTL        string
	now             func() time.Time
}

// NewComposer creates a Composer. The TTLs are shown to the reader
// ("1 hour") in the matching email.
func NewComposer(links Links, verificationTTL, resetTTL time.Duration) *Composer {
	return &Composer{
		links:           links,
		verificationTTL: humanDuration(verificationTTL),
		resetTTL:        humanDuration(resetTTL),
		now:             time.Now,
	}
}

// Verification renders the verification email for token.
func (c *Composer) Verification(to, token string) (Message, error) {
	return c.render(KindVerification, to, "Verify Your Email", c.links.Verification(token), c.verificationTTL, verificationTmpl)
}

// Reset renders the password reset email for token.
func (c *Composer) Reset(to, token string) (Message, error) {
	return c.render(KindReset, to, "Reset Your Password", c.links.Reset(token), c.resetTTL, resetTmpl)
}

func (c *Composer) render(kind, to, subject, link, ttl string, tmpl *template.Template) (Message, error) {
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, struct {
		Link string
		TTL  string
	}{Link: link, TTL: ttl})
	if err != nil {
		return Message{}, oops.With("operation", "render email").With("kind", kind).Wrap(err)
	}
	return Message{
		Kind:     kind,
		To:       to,
		Subject:  subject,
		Link:     link,
		HTML:     buf.String(),
		IssuedAt: c.now().UTC(),
	}, nil
}

func humanDuration(d time.Duration) string {
	if d <= 0 {
		d = time.Hour
	}
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d == time.Minute:
		return "1 minute"
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
