// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/memstore"
)

var errBoom = errors.New("boom")

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// plainHasher is a fast, transparent PasswordHasher for service tests.
type plainHasher struct {
	prefix string
	legacy string
	fail   error
}

func (h *plainHasher) Hash(password string) (string, error) {
	if h.fail != nil {
		return "", h.fail
	}
	if password == "" {
		return "", account.ErrEmptyPassword
	}
	return h.prefix + password, nil
}

func (h *plainHasher) Verify(password, hash string) bool {
	if h.legacy != "" && hash == h.legacy+password {
		return true
	}
	return hash == h.prefix+password
}

func (h *plainHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, h.prefix)
}

// sequenceTokens hands out tok-1, tok-2, ...
type sequenceTokens struct {
	mu   sync.Mutex
	n    int
	fail error
}

func (g *sequenceTokens) Generate() (string, error) {
	if g.fail != nil {
		return "", g.fail
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("tok-%03d", g.n), nil
}

type sentMessage struct {
	Kind  string
	Email string
	Token string
}

// recordingNotifier records every delivery and can be told to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

func (n *recordingNotifier) SendVerification(_ context.Context, email, token string) error {
	return n.record("verification", email, token)
}

func (n *recordingNotifier) SendReset(_ context.Context, email, token string) error {
	return n.record("reset", email, token)
}

func (n *recordingNotifier) record(kind, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, sentMessage{Kind: kind, Email: email, Token: token})
	return nil
}

func (n *recordingNotifier) last(t *testing.T, kind string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i].Token
		}
	}
	t.Fatalf("no %s message sent", kind)
	return ""
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.Kind == kind {
			c++
		}
	}
	return c
}

type recordingMetrics struct {
	mu            sync.Mutex
	operations    map[string][]string
	notifyFailure map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		operations:    make(map[string][]string),
		notifyFailure: make(map[string]int),
	}
}

func (m *recordingMetrics) RecordOperation(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[operation] = append(m.operations[operation], outcome)
}

func (m *recordingMetrics) RecordNotificationFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyFailure[kind]++
}

func (m *recordingMetrics) outcomes(operation string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.operations[operation]...)
}

// faultyStore wraps a memstore and fails selected methods.
type faultyStore struct {
	*memstore.Store
	findErr   error
	insertErr error
	saveErr   error
	deleteErr error
	listErr   error
	saves     int
}

func (f *faultyStore) FindByEmail(ctx context.Context, email string) (*account.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Store.FindByEmail(ctx, email)
}

func (f *faultyStore) FindByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Store.FindByID(ctx, id)
}

func (f *faultyStore) Insert(ctx context.Context, u *account.User) (*account.User, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return f.Store.Insert(ctx, u)
}

func (f *faultyStore) Save(ctx context.Context, u *account.User) (*account.User, error) {
	f.saves++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return f.Store.Save(ctx, u)
}

func (f *faultyStore) DeleteByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return f.Store.DeleteByID(ctx, id)
}

func (f *faultyStore) List(ctx context.Context) ([]*account.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.List(ctx)
}

type harness struct {
	svc      *account.Service
	store    *faultyStore
	notifier *recordingNotifier
	hasher   *plainHasher
	tokens   *sequenceTokens
	clock    *fixedClock
	metrics  *recordingMetrics
	sessions *account.JWTIssuer
}

var testEpoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, opts ...account.Option) *harness {
	t.Helper()

	h := &harness{
		store:    &faultyStore{Store: memstore.New()},
		notifier: &recordingNotifier{},
		hasher:   &plainHasher{prefix: "plain$"},
		tokens:   &sequenceTokens{},
		clock:    &fixedClock{now: testEpoch},
		metrics:  newRecordingMetrics(),
	}

	sessions, err := account.NewJWTIssuer(testSecret, "accountd", time.Hour)
	require.NoError(t, err)
	h.sessions = sessions.WithClock(h.clock.Now)

	all := append([]account.Option{
		account.WithClock(h.clock.Now),
		account.WithMetrics(h.metrics),
	}, opts...)

	h.svc, err = account.NewService(h.store, h.notifier, h.hasher, h.tokens, h.sessions, all...)
	require.NoError(t, err)
	return h
}

func janeSignup() account.SignupInput {
	return account.SignupInput{
		Name:            "Jane Doe",
		Email:           "jane@x.com",
		Password:        "hunter2!!",
		PasswordConfirm: "hunter2!!",
	}
}

// signupVerified signs up the default user and redeems the verification token.
func (h *harness) signupVerified(t *testing.T) *account.SignupResult {
	t.Helper()
	ctx := context.Background()
	res, err := h.svc.Signup(ctx, janeSignup())
	require.NoError(t, err)
	require.NoError(t, h.svc.VerifyEmail(ctx, h.notifier.last(t, "verification")))
	return res
}
