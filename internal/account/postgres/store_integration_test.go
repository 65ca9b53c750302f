// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/postgres"
)

func newUser(email string) *account.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &account.User{
		ID:           ulid.Make(),
		Name:         "Jane Doe",
		Email:        email,
		PasswordHash: "$argon2id$hash",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		users *postgres.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = postgres.NewStore(pool)
	})

	Describe("Insert", func() {
		It("round trips a user with settings and tokens", func() {
			u := newUser("Jane@X.com")
			u.Verification = account.NewOneTimeToken("verify-me", u.CreatedAt.Add(time.Hour))
			u.Settings = &account.Settings{ReceiveNotifications: true}

			_, err := users.Insert(ctx, u)
			Expect(err).NotTo(HaveOccurred())

			got, err := users.FindByEmail(ctx, "jane@x.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(u.ID))
			Expect(got.Email).To(Equal("jane@x.com"))
			Expect(got.Verification).NotTo(BeNil())
			Expect(got.Verification.Hash).To(Equal(account.HashToken("verify-me")))
			Expect(got.Verification.ExpiresAt).To(BeTemporally("==", u.Verification.ExpiresAt))
			Expect(got.Reset).To(BeNil())
			Expect(got.Settings).To(Equal(&account.Settings{ReceiveNotifications: true}))
		})

		It("rejects a duplicate email", func() {
			_, err := users.Insert(ctx, newUser("jane@x.com"))
			Expect(err).NotTo(HaveOccurred())

			_, err = users.Insert(ctx, newUser("JANE@x.com"))
			Expect(err).To(MatchError(account.ErrEmailTaken))
		})
	})

	Describe("token lookups", func() {
		It("matches digests exactly", func() {
			u := newUser("jane@x.com")
			u.Reset = account.NewOneTimeToken("reset-me", u.CreatedAt.Add(time.Hour))
			_, err := users.Insert(ctx, u)
			Expect(err).NotTo(HaveOccurred())

			got, err := users.FindByResetToken(ctx, account.HashToken("reset-me"))
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(u.ID))

			_, err = users.FindByResetToken(ctx, account.HashToken("reset-me "))
			Expect(err).To(MatchError(account.ErrNotFound))

			_, err = users.FindByVerificationToken(ctx, account.HashToken("reset-me"))
			Expect(err).To(MatchError(account.ErrNotFound))
		})
	})

	Describe("Save", func() {
		It("clears tokens and replaces settings", func() {
			u := newUser("jane@x.com")
			u.Verification = account.NewOneTimeToken("verify-me", u.CreatedAt.Add(time.Hour))
			_, err := users.Insert(ctx, u)
			Expect(err).NotTo(HaveOccurred())

			u.IsVerified = true
			u.Verification = nil
			u.Settings = &account.Settings{ReceiveNotifications: false}
			_, err = users.Save(ctx, u)
			Expect(err).NotTo(HaveOccurred())

			got, err := users.FindByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IsVerified).To(BeTrue())
			Expect(got.Verification).To(BeNil())
			Expect(got.Settings).To(Equal(&account.Settings{}))

			_, err = users.FindByVerificationToken(ctx, account.HashToken("verify-me"))
			Expect(err).To(MatchError(account.ErrNotFound))
		})

		It("reports a missing user", func() {
			_, err := users.Save(ctx, newUser("ghost@x.com"))
			Expect(err).To(MatchError(account.ErrNotFound))
		})
	})

	Describe("DeleteByID", func() {
		It("removes the settings row with the user", func() {
			u := newUser("jane@x.com")
			u.Settings = &account.Settings{ReceiveNotifications: true}
			_, err := users.Insert(ctx, u)
			Expect(err).NotTo(HaveOccurred())

			deleted, err := users.DeleteByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted.Email).To(Equal("jane@x.com"))

			var orphans int
			err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_settings WHERE user_id = $1`, u.ID.String()).Scan(&orphans)
			Expect(err).NotTo(HaveOccurred())
			Expect(orphans).To(BeZero())

			_, err = users.DeleteByID(ctx, u.ID)
			Expect(err).To(MatchError(account.ErrNotFound))
		})
	})

	Describe("List", func() {
		It("orders by creation time", func() {
			first := newUser("b@x.com")
			second := newUser("a@x.com")
			second.CreatedAt = first.CreatedAt.Add(time.Second)
			for _, u := range []*account.User{second, first} {
				_, err := users.Insert(ctx, u)
				Expect(err).NotTo(HaveOccurred())
			}

			all, err := users.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[0].Email).To(Equal("b@x.com"))
			Expect(all[1].Email).To(Equal("a@x.com"))
		})
	})
})
