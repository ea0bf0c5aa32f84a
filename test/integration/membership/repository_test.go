// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package membership_test

import (
	"errors"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/membership/internal/auth"
)

var _ = Describe("Account repository on PostgreSQL", func() {
	It("creates, authenticates, and deletes an account", func() {
		acct, err := env.Accounts.Create(env.ctx, "app1", "alice", "secret-1", "alice@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(acct.Key).To(HavePrefix(auth.AccountKeyPrefix))

		ok, err := env.Accounts.Authenticate(env.ctx, "app1", "ALICE", "secret-1", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		got, err := env.Accounts.Get(env.ctx, "app1", "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.LastLoginAt).NotTo(BeNil())

		deleted, err := env.Accounts.Delete(env.ctx, "app1", "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(BeTrue())

		_, err = env.Accounts.Create(env.ctx, "app1", "alice", "secret-1", "")
		Expect(err).NotTo(HaveOccurred())
	})

	It("lets exactly one of many concurrent creates win", func() {
		const writers = 16
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			wins       int
			duplicates int
			others     []error
		)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := env.Accounts.Create(env.ctx, "app1", "racer", "secret-1", fmt.Sprintf("r%d@example.com", i))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, auth.ErrDuplicateUsername):
					duplicates++
				default:
					others = append(others, err)
				}
			}()
		}
		wg.Wait()

		Expect(others).To(BeEmpty())
		Expect(wins).To(Equal(1))
		Expect(duplicates).To(Equal(writers - 1))

		_, total, err := env.Accounts.All(env.ctx, "app1", auth.Page{Size: 100})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))
	})

	It("enforces unique email only where the policy asks for it", func() {
		_, err := env.Accounts.Create(env.ctx, "unique", "alice", "secret-1", "shared@example.com")
		Expect(err).NotTo(HaveOccurred())
		_, err = env.Accounts.Create(env.ctx, "unique", "bob", "secret-1", "SHARED@example.com")
		Expect(err).To(MatchError(auth.ErrDuplicateEmail))

		_, err = env.Accounts.Create(env.ctx, "app1", "alice", "secret-1", "shared@example.com")
		Expect(err).NotTo(HaveOccurred())
		_, err = env.Accounts.Create(env.ctx, "app1", "bob", "secret-1", "shared@example.com")
		Expect(err).NotTo(HaveOccurred())
	})

	It("moves the email reservation on update", func() {
		acct, err := env.Accounts.Create(env.ctx, "unique", "alice", "secret-1", "old@example.com")
		Expect(err).NotTo(HaveOccurred())

		acct.Email = "new@example.com"
		Expect(env.Accounts.Update(env.ctx, acct)).To(Succeed())

		_, err = env.Accounts.Create(env.ctx, "unique", "bob", "secret-1", "old@example.com")
		Expect(err).NotTo(HaveOccurred())

		name, err := env.Accounts.UsernameByEmail(env.ctx, "unique", "new@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("alice"))
	})
})

var _ = Describe("Role repository on PostgreSQL", func() {
	BeforeEach(func() {
		for _, u := range []string{"alice", "bob"} {
			_, err := env.Accounts.Create(env.ctx, "app1", u, "secret-1", "")
			Expect(err).NotTo(HaveOccurred())
		}
		_, err := env.Roles.CreateRole(env.ctx, "app1", "admin", "")
		Expect(err).NotTo(HaveOccurred())
		_, err = env.Roles.CreateRole(env.ctx, "app1", "editor", "admin")
		Expect(err).NotTo(HaveOccurred())
	})

	It("adds and removes members", func() {
		Expect(env.Roles.AddUsersToRoles(env.ctx, "app1", []string{"alice", "bob"}, []string{"editor"})).To(Succeed())

		members, err := env.Roles.UsersInRole(env.ctx, "app1", "editor")
		Expect(err).NotTo(HaveOccurred())
		Expect(members).To(ConsistOf("alice", "bob"))

		Expect(env.Roles.RemoveUsersFromRoles(env.ctx, "app1", []string{"bob"}, []string{"editor"})).To(Succeed())
		in, err := env.Roles.IsUserInRole(env.ctx, "app1", "bob", "editor")
		Expect(err).NotTo(HaveOccurred())
		Expect(in).To(BeFalse())
	})

	It("changes nothing when one name is unknown", func() {
		err := env.Roles.AddUsersToRoles(env.ctx, "app1", []string{"alice", "ghost"}, []string{"admin"})
		Expect(err).To(MatchError(auth.ErrNotFound))

		roles, err := env.Roles.RolesForUser(env.ctx, "app1", "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(roles).To(BeEmpty())
	})

	It("refuses to delete a populated role unless forced", func() {
		Expect(env.Roles.AddUsersToRoles(env.ctx, "app1", []string{"alice"}, []string{"editor"})).To(Succeed())

		_, err := env.Roles.DeleteRole(env.ctx, "app1", "editor", false)
		Expect(err).To(MatchError(auth.ErrRolePopulated))

		deleted, err := env.Roles.DeleteRole(env.ctx, "app1", "editor", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(BeTrue())

		roles, err := env.Roles.RolesForUser(env.ctx, "app1", "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(roles).To(BeEmpty())
	})
})
