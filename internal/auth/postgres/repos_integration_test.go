// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/postgres"
)

var _ = Describe("Auth repositories", func() {
	var (
		credentials *postgres.CredentialRepository
		sessions    *postgres.SessionRepository
		resets      *postgres.ResetTokenRepository
		identity    = "ada@example.com"
	)

	BeforeEach(func() {
		truncate()
		credentials = postgres.NewCredentialRepository(pool)
		sessions = postgres.NewSessionRepository(pool)
		resets = postgres.NewResetTokenRepository(pool)

		hash := "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"
		cred, err := auth.NewCredential(identity, &hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(credentials.Create(suiteCtx, cred)).To(Succeed())
	})

	Describe("CredentialRepository", func() {
		It("rejects a duplicate identity", func() {
			dup, err := auth.NewCredential(identity, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(credentials.Create(suiteCtx, dup)).To(MatchError(auth.ErrAlreadyExists))
		})

		It("stores federated accounts without a password", func() {
			fed, err := auth.NewCredential("grace@example.com", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(credentials.Create(suiteCtx, fed)).To(Succeed())

			got, err := credentials.GetByIdentity(suiteCtx, "grace@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.HasPassword()).To(BeFalse())
		})

		It("updates the password hash", func() {
			Expect(credentials.UpdatePassword(suiteCtx, identity, "new-hash")).To(Succeed())
			got, err := credentials.GetByIdentity(suiteCtx, identity)
			Expect(err).NotTo(HaveOccurred())
			Expect(*got.PasswordHash).To(Equal("new-hash"))
		})
	})

	Describe("SessionRepository", func() {
		It("round-trips and revokes sessions", func() {
			authority, err := auth.NewSessionAuthority(sessions, auth.DefaultSessionConfig())
			Expect(err).NotTo(HaveOccurred())

			handle, created, err := authority.Create(suiteCtx, identity, auth.SessionMetadata{IPAddress: "198.51.100.7"})
			Expect(err).NotTo(HaveOccurred())

			got, err := authority.Validate(suiteCtx, handle)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(created.ID))

			n, err := authority.RevokeAll(suiteCtx, identity)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))

			_, err = authority.Validate(suiteCtx, handle)
			Expect(err).To(MatchError(auth.ErrInvalidSession))
		})

		It("sweeps only expired sessions", func() {
			now := time.Now().UTC()
			for i, exp := range []time.Duration{-time.Hour, -time.Minute, time.Hour} {
				s := &auth.Session{
					ID:        ulid.Make(),
					Identity:  identity,
					TokenHash: auth.HashToken(string(rune('a' + i))),
					CreatedAt: now,
					ExpiresAt: now.Add(exp),
				}
				Expect(sessions.Create(suiteCtx, s)).To(Succeed())
			}
			n, err := sessions.DeleteExpired(suiteCtx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))
		})
	})

	Describe("ResetTokenRepository", func() {
		var authority *auth.ResetTokenAuthority

		BeforeEach(func() {
			var err error
			authority, err = auth.NewResetTokenAuthority(resets, auth.DefaultResetConfig())
			Expect(err).NotTo(HaveOccurred())
		})

		It("supersedes earlier tokens", func() {
			first, _, err := authority.Issue(suiteCtx, identity)
			Expect(err).NotTo(HaveOccurred())
			second, _, err := authority.Issue(suiteCtx, identity)
			Expect(err).NotTo(HaveOccurred())

			_, err = authority.Lookup(suiteCtx, first)
			Expect(err).To(MatchError(auth.ErrInvalidResetToken))
			_, err = authority.Lookup(suiteCtx, second)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps exactly one token when requests race for an identity", func() {
			const workers = 16
			var wg sync.WaitGroup
			tokens := make([]string, workers)
			start := make(chan struct{})
			for i := range workers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					token, _, err := authority.Issue(suiteCtx, identity)
					Expect(err).NotTo(HaveOccurred())
					tokens[i] = token
				}()
			}
			close(start)
			wg.Wait()

			var rows int
			Expect(pool.QueryRow(suiteCtx, `SELECT count(*) FROM password_resets WHERE identity = $1`, identity).
				Scan(&rows)).To(Succeed())
			Expect(rows).To(Equal(1))

			live := 0
			for _, token := range tokens {
				if _, err := authority.Lookup(suiteCtx, token); err == nil {
					live++
				}
			}
			Expect(live).To(Equal(1))
		})

		It("lets exactly one concurrent consumer win", func() {
			token, _, err := authority.Issue(suiteCtx, identity)
			Expect(err).NotTo(HaveOccurred())

			const workers = 16
			var (
				wg   sync.WaitGroup
				wins atomic.Int32
			)
			start := make(chan struct{})
			for range workers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					if _, err := authority.Consume(suiteCtx, token); err == nil {
						wins.Add(1)
					} else {
						Expect(err).To(MatchError(auth.ErrInvalidResetToken))
					}
				}()
			}
			close(start)
			wg.Wait()
			Expect(wins.Load()).To(Equal(int32(1)))
		})
	})

	Describe("Transactor", func() {
		It("rolls back the consume when the password update fails", func() {
			authority, err := auth.NewResetTokenAuthority(resets, auth.DefaultResetConfig())
			Expect(err).NotTo(HaveOccurred())
			token, record, err := authority.Issue(suiteCtx, identity)
			Expect(err).NotTo(HaveOccurred())

			tx := postgres.NewTransactor(pool)
			err = tx.WithinTransaction(suiteCtx, func(ctx context.Context, s auth.Stores) error {
				if _, err := s.ResetTokens.Consume(ctx, record.TokenHash); err != nil {
					return err
				}
				return s.Credentials.UpdatePassword(ctx, "nobody@example.com", "x")
			})
			Expect(err).To(MatchError(auth.ErrNotFound))

			_, err = authority.Lookup(suiteCtx, token)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
