// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

//go:build integration

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wardkey/wardkey/internal/auth"
	authpg "github.com/wardkey/wardkey/internal/auth/postgres"
	"github.com/wardkey/wardkey/internal/store"
)

// setupPostgres starts a PostgreSQL container, runs migrations, and returns
// a ready service plus its pool.
func setupPostgres() (*auth.Service, *pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("wardkey_test"),
		postgres.WithUsername("wardkey"),
		postgres.WithPassword("wardkey"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		return nil, nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, nil, err
	}

	pool, err := store.NewPool(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, nil, err
	}

	svc, err := auth.NewService(
		authpg.NewAccountRepository(pool),
		authpg.NewSessionRepository(pool),
		auth.NewArgon2idHasher(),
	)
	if err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return svc, pool, cleanup, nil
}

var _ = Describe("Account lifecycle", Ordered, func() {
	var (
		svc     *auth.Service
		pool    *pgxpool.Pool
		cleanup func()
	)

	BeforeAll(func() {
		var err error
		svc, pool, cleanup, err = setupPostgres()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		cleanup()
	})

	AfterEach(func() {
		ctx := context.Background()
		_, err := pool.Exec(ctx, `DELETE FROM sessions`)
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx, `DELETE FROM accounts`)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Register", func() {
		It("canonicalizes the display name and stores a hashed password", func() {
			ctx := context.Background()

			account, err := svc.Register(ctx, "Jane   Doe", "jane@example.com", "hunter2hunter2")
			Expect(err).NotTo(HaveOccurred())
			Expect(account.DisplayName).To(Equal("jane-doe"))
			Expect(account.PasswordHash).To(HavePrefix("$argon2id$"))
			Expect(account.PasswordHash).NotTo(ContainSubstring("hunter2hunter2"))
		})

		It("rejects a taken name case-insensitively", func() {
			ctx := context.Background()

			_, err := svc.Register(ctx, "jane-doe", "jane@example.com", "hunter2hunter2")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Register(ctx, "JANE DOE", "other@example.com", "hunter2hunter2")
			Expect(err).To(MatchError(auth.ErrConflict))
		})

		It("rejects a taken email regardless of case", func() {
			ctx := context.Background()

			_, err := svc.Register(ctx, "jane-doe", "jane@example.com", "hunter2hunter2")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Register(ctx, "someone-else", "JANE@EXAMPLE.COM", "hunter2hunter2")
			Expect(err).To(MatchError(auth.ErrConflict))
		})

		It("admits exactly one of many concurrent registrants", func() {
			ctx := context.Background()

			const registrants = 8
			var wg sync.WaitGroup
			errs := make([]error, registrants)
			for i := range registrants {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, errs[i] = svc.Register(ctx, "contested", "contested@example.com", "hunter2hunter2")
				}()
			}
			wg.Wait()

			var successes int
			for _, err := range errs {
				if err == nil {
					successes++
				} else {
					Expect(err).To(MatchError(auth.ErrConflict))
				}
			}
			Expect(successes).To(Equal(1))
		})
	})

	Describe("Login and sessions", func() {
		It("issues independent per-device sessions", func() {
			ctx := context.Background()

			account, err := svc.Register(ctx, "jane-doe", "jane@example.com", "hunter2hunter2")
			Expect(err).NotTo(HaveOccurred())

			_, _, laptopToken, err := svc.Login(ctx, "jane-doe", "hunter2hunter2", "Laptop")
			Expect(err).NotTo(HaveOccurred())
			_, phoneSession, phoneToken, err := svc.Login(ctx, "jane-doe", "hunter2hunter2", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(phoneSession.DeviceLabel).To(Equal(auth.DefaultDeviceLabel))

			sessions, err := svc.ListSessions(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(2))
			Expect(sessions[0].IssuedAt).To(BeTemporally("<=", sessions[1].IssuedAt))

			// Tokens are never stored in the clear.
			for _, s := range sessions {
				Expect(s.TokenHash).NotTo(Equal(laptopToken))
				Expect(s.TokenHash).NotTo(Equal(phoneToken))
			}

			// Revoking one leaves the other valid.
			Expect(svc.Logout(ctx, laptopToken)).To(Succeed())

			_, err = svc.ResolveSession(ctx, laptopToken)
			Expect(err).To(MatchError(auth.ErrUnauthenticated))

			resolved, err := svc.ResolveSession(ctx, phoneToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved.ID).To(Equal(account.ID))
		})

		It("collapses unknown login and wrong password into one error", func() {
			ctx := context.Background()

			_, err := svc.Register(ctx, "jane-doe", "jane@example.com", "hunter2hunter2")
			Expect(err).NotTo(HaveOccurred())

			_, _, _, wrongPw := svc.Login(ctx, "jane-doe", "wrongpassword", "")
			_, _, _, unknown := svc.Login(ctx, "no-such-user", "hunter2hunter2", "")

			Expect(wrongPw).To(MatchError(auth.ErrUnauthorized))
			Expect(unknown).To(MatchError(auth.ErrUnauthorized))
			Expect(wrongPw.Error()).To(Equal(unknown.Error()))
		})
	})

	Describe("DeleteAccount", func() {
		It("cascades all sessions atomically", func() {
			ctx := context.Background()

			account, err := svc.Register(ctx, "jane-doe", "jane@example.com", "hunter2hunter2")
			Expect(err).NotTo(HaveOccurred())

			_, _, token1, err := svc.Login(ctx, "jane-doe", "hunter2hunter2", "Laptop")
			Expect(err).NotTo(HaveOccurred())
			_, _, token2, err := svc.Login(ctx, "jane-doe", "hunter2hunter2", "Phone")
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.DeleteAccount(ctx, account.ID, "jane-doe", "hunter2hunter2")).To(Succeed())

			_, err = svc.ResolveSession(ctx, token1)
			Expect(err).To(MatchError(auth.ErrUnauthenticated))
			_, err = svc.ResolveSession(ctx, token2)
			Expect(err).To(MatchError(auth.ErrUnauthenticated))

			var count int
			Expect(pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)).To(Succeed())
			Expect(count).To(BeZero())

			// The name is free again.
			_, err = svc.Register(ctx, "jane-doe", "jane@example.com", "newpassword")
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses credentials belonging to another account", func() {
			ctx := context.Background()

			_, err := svc.Register(ctx, "jane-doe", "jane@example.com", "hunter2hunter2")
			Expect(err).NotTo(HaveOccurred())
			other, err := svc.Register(ctx, "john-doe", "john@example.com", "hunter2hunter2")
			Expect(err).NotTo(HaveOccurred())

			err = svc.DeleteAccount(ctx, other.ID, "jane-doe", "hunter2hunter2")
			Expect(err).To(MatchError(auth.ErrForbidden))
		})
	})

	Describe("ResetPassword", func() {
		It("invalidates the old password and honors the new one", func() {
			ctx := context.Background()

			account, err := svc.Register(ctx, "jane-doe", "jane@example.com", "hunter2hunter2")
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.ResetPassword(ctx, account.ID, "correct-horse-battery")).To(Succeed())

			_, _, _, err = svc.Login(ctx, "jane-doe", "hunter2hunter2", "")
			Expect(err).To(MatchError(auth.ErrUnauthorized))

			_, _, _, err = svc.Login(ctx, "jane-doe", "correct-horse-battery", "")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
