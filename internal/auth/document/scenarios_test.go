// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package document_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/membership/internal/auth"
	"github.com/holomush/membership/internal/auth/document"
	"github.com/holomush/membership/internal/docstore/memory"
)

// expectedReservations derives the reservation set that must exist for the
// accounts currently stored in namespace.
func expectedReservations(ctx context.Context, f *fixture, namespace string, uniqueEmail bool) map[string]string {
	accts, _, err := f.accounts.All(ctx, namespace, auth.Page{Size: 1 << 20})
	Expect(err).NotTo(HaveOccurred())
	want := make(map[string]string, 2*len(accts))
	for _, a := range accts {
		want[document.ReservationID(document.FieldUsername, namespace, a.Username)] = a.Key
		if uniqueEmail && a.Email != "" {
			want[document.ReservationID(document.FieldEmail, namespace, a.Email)] = a.Key
		}
	}
	return want
}

// randomOps applies n random create, rename, email change, and delete
// operations drawn from small value pools so collisions are frequent.
// Returns the number of operations that failed.
func randomOps(ctx context.Context, f *fixture, rng *rand.Rand, namespace string, n int) int {
	names := []string{"alice", "Bob", "carol", "dave", "ERIN", "frank"}
	emails := []string{"a@x.com", "b@x.com", "C@x.com", "d@x.com"}
	pick := func(pool []string) string { return pool[rng.IntN(len(pool))] }

	failures := 0
	for range n {
		var err error
		switch rng.IntN(4) {
		case 0:
			_, err = f.accounts.Create(ctx, namespace, pick(names), "secret1", pick(emails))
		case 1:
			var acct *auth.Account
			if acct, err = f.accounts.Get(ctx, namespace, pick(names)); err == nil {
				acct.Username = pick(names)
				err = f.accounts.Update(ctx, acct)
			}
		case 2:
			var acct *auth.Account
			if acct, err = f.accounts.Get(ctx, namespace, pick(names)); err == nil {
				acct.Email = pick(emails)
				err = f.accounts.Update(ctx, acct)
			}
		case 3:
			_, err = f.accounts.Delete(ctx, namespace, pick(names))
		}
		if err != nil {
			failures++
		}
	}
	return failures
}

var _ = Describe("Reservations", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture(GinkgoT())
	})

	Describe("concurrent creates of one username", func() {
		const goroutines = 32

		It("lets exactly one caller win", func() {
			var (
				wg   sync.WaitGroup
				wins atomic.Int32
				errs = make([]error, goroutines)
			)
			for i := range goroutines {
				wg.Add(1)
				go func(idx int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := f.accounts.Create(ctx, nsUnique, "alice", "secret1", fmt.Sprintf("alice%d@x.com", idx))
					if err == nil {
						wins.Add(1)
					}
					errs[idx] = err
				}(i)
			}
			wg.Wait()

			Expect(wins.Load()).To(Equal(int32(1)))
			for i, err := range errs {
				if err == nil {
					continue
				}
				Expect(errors.Is(err, auth.ErrDuplicateUsername)).To(BeTrue(),
					fmt.Sprintf("goroutine %d: expected ErrDuplicateUsername, got %v", i, err))
			}

			_, total, err := f.accounts.All(ctx, nsUnique, auth.Page{Size: 100})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))
			Expect(f.reservationIDs(GinkgoT())).To(Equal(expectedReservations(ctx, f, nsUnique, true)))
		})
	})

	Describe("random operation sequences", func() {
		It("keep reservations equal to the values held by live accounts", func() {
			rng := rand.New(rand.NewPCG(7, 11)) //nolint:gosec // deterministic test data
			failures := randomOps(ctx, f, rng, nsUnique, 400)
			Expect(failures).To(BeNumerically(">", 0), "pools are small enough to collide")

			Expect(f.reservationIDs(GinkgoT())).To(Equal(expectedReservations(ctx, f, nsUnique, true)))
		})

		It("hold under concurrent writers", func() {
			const writers = 8
			var wg sync.WaitGroup
			for i := range writers {
				wg.Add(1)
				go func(seed uint64) {
					defer GinkgoRecover()
					defer wg.Done()
					rng := rand.New(rand.NewPCG(seed, seed*31)) //nolint:gosec // deterministic test data
					randomOps(ctx, f, rng, nsUnique, 100)
				}(uint64(i + 1))
			}
			wg.Wait()

			Expect(f.reservationIDs(GinkgoT())).To(Equal(expectedReservations(ctx, f, nsUnique, true)))
		})

		It("never reserve emails where duplicates are allowed", func() {
			rng := rand.New(rand.NewPCG(3, 5)) //nolint:gosec // deterministic test data
			randomOps(ctx, f, rng, nsApp, 200)

			Expect(f.reservationIDs(GinkgoT())).To(Equal(expectedReservations(ctx, f, nsApp, false)))
		})
	})
})

var _ = Describe("Membership scenarios", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture(GinkgoT())
	})

	Context("in a namespace that allows shared email addresses", func() {
		BeforeEach(func() {
			_, err := f.accounts.Create(ctx, nsApp, "alice", "secret1", "team@x.com")
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a second alice", func() {
			_, err := f.accounts.Create(ctx, nsApp, "Alice", "secret2", "")
			Expect(err).To(MatchError(auth.ErrDuplicateUsername))
		})

		It("accepts bob with alice's address", func() {
			_, err := f.accounts.Create(ctx, nsApp, "bob", "secret2", "team@x.com")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Context("in a namespace that requires unique email addresses", func() {
		BeforeEach(func() {
			_, err := f.accounts.Create(ctx, nsUnique, "alice", "secret1", "team@x.com")
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects bob with alice's address", func() {
			_, err := f.accounts.Create(ctx, nsUnique, "bob", "secret2", "Team@X.com")
			Expect(err).To(MatchError(auth.ErrDuplicateEmail))
		})

		It("rejects a second alice with a fresh address", func() {
			_, err := f.accounts.Create(ctx, nsUnique, "alice", "secret2", "other@x.com")
			Expect(err).To(MatchError(auth.ErrDuplicateUsername))
		})

		It("frees the address when alice changes it", func() {
			acct, err := f.accounts.Get(ctx, nsUnique, "alice")
			Expect(err).NotTo(HaveOccurred())
			acct.Email = "alice@x.com"
			Expect(f.accounts.Update(ctx, acct)).To(Succeed())

			_, err = f.accounts.Create(ctx, nsUnique, "bob", "secret2", "team@x.com")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Context("deleting a role", func() {
		BeforeEach(func() {
			_, err := f.accounts.Create(ctx, nsApp, "alice", "secret1", "")
			Expect(err).NotTo(HaveOccurred())
			_, err = f.roles.CreateRole(ctx, nsApp, "admin", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.roles.AddUsersToRoles(ctx, nsApp, []string{"alice"}, []string{"admin"})).To(Succeed())
		})

		It("is refused while the role has members", func() {
			deleted, err := f.roles.DeleteRole(ctx, nsApp, "admin", false)
			Expect(err).To(MatchError(auth.ErrRolePopulated))
			Expect(deleted).To(BeFalse())

			in, err := f.roles.IsUserInRole(ctx, nsApp, "alice", "admin")
			Expect(err).NotTo(HaveOccurred())
			Expect(in).To(BeTrue())
		})

		It("removes memberships when forced", func() {
			deleted, err := f.roles.DeleteRole(ctx, nsApp, "admin", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeTrue())

			roles, err := f.roles.RolesForUser(ctx, nsApp, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(BeEmpty())
		})

		It("treats re-creating the role as a no-op", func() {
			before, err := f.roles.AllRoles(ctx, nsApp)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.roles.CreateRole(ctx, nsApp, "admin", "")
			Expect(err).NotTo(HaveOccurred())
			after, err := f.roles.AllRoles(ctx, nsApp)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))

			in, err := f.roles.IsUserInRole(ctx, nsApp, "alice", "admin")
			Expect(err).NotTo(HaveOccurred())
			Expect(in).To(BeTrue())
		})
	})

	Context("passwords", func() {
		var acct *auth.Account

		BeforeEach(func() {
			var err error
			acct, err = f.accounts.Create(ctx, nsApp, "alice", "secret1", "")
			Expect(err).NotTo(HaveOccurred())
		})

		It("leaves the stored digest untouched when the new password is too short", func() {
			err := f.accounts.ChangePassword(ctx, nsApp, "alice", "secret1", "short")
			Expect(err).To(MatchError(auth.ErrInvalidPassword))

			stored := f.storedAccount(GinkgoT(), acct.Key)
			Expect(stored.PasswordHash).To(Equal(acct.PasswordHash))
			Expect(stored.PasswordSalt).To(Equal(acct.PasswordSalt))
		})

		It("authenticates with a reset password", func() {
			pw, err := f.accounts.ResetPassword(ctx, nsApp, "alice")
			Expect(err).NotTo(HaveOccurred())

			ok, err := f.accounts.Authenticate(ctx, nsApp, "alice", pw, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})
	})
})

var _ = Describe("Index lag", func() {
	var (
		ctx     context.Context
		f       *fixture
		backend *memory.Backend
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = memory.New(memory.WithIndexLag(50*time.Millisecond), memory.WithPollInterval(time.Millisecond))
		DeferCleanup(backend.Close)
		hasher, err := auth.NewHasher(auth.AlgorithmSHA256)
		Expect(err).NotTo(HaveOccurred())
		f = newFixtureWith(GinkgoT(), backend, hasher)
	})

	It("authenticates immediately after create", func() {
		_, err := f.accounts.Create(ctx, nsApp, "alice", "secret1", "")
		Expect(err).NotTo(HaveOccurred())

		ok, err := f.accounts.Authenticate(ctx, nsApp, "alice", "secret1", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("waits for the index before listing", func() {
		_, err := f.accounts.Create(ctx, nsApp, "alice", "secret1", "")
		Expect(err).NotTo(HaveOccurred())

		accts, total, err := f.accounts.All(ctx, nsApp, auth.Page{Size: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))
		Expect(accts[0].Username).To(Equal("alice"))
	})

	It("sees a role member right after it was added", func() {
		_, err := f.accounts.Create(ctx, nsApp, "alice", "secret1", "")
		Expect(err).NotTo(HaveOccurred())
		_, err = f.roles.CreateRole(ctx, nsApp, "admin", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(f.roles.AddUsersToRoles(ctx, nsApp, []string{"alice"}, []string{"admin"})).To(Succeed())

		users, err := f.roles.UsersInRole(ctx, nsApp, "admin")
		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(ConsistOf("alice"))
	})
})
