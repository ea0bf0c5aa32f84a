// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package membership_test

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/membership/internal/docstore"
	pgstore "github.com/holomush/membership/internal/docstore/postgres"
)

type note struct {
	Text string `json:"text"`
}

var _ = Describe("PostgreSQL backend", func() {
	It("reports the applied schema version", func() {
		m, err := pgstore.NewMigrator(env.connStr)
		Expect(err).NotTo(HaveOccurred())
		defer m.Close()

		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		pending, err := m.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("rejects a second insert of the same id", func() {
		s := env.store.OpenSession()
		defer s.Close()
		_, err := s.Insert("notes/1", "notes", note{Text: "a"})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SaveChanges(env.ctx)).To(Succeed())

		s2 := env.store.OpenSession()
		defer s2.Close()
		_, err = s2.Insert("notes/1", "notes", note{Text: "b"})
		Expect(err).NotTo(HaveOccurred())
		err = s2.SaveChanges(env.ctx)
		Expect(err).To(MatchError(docstore.ErrConcurrency))

		ce, ok := docstore.AsConcurrencyError(err)
		Expect(ok).To(BeTrue())
		Expect(ce.ID).To(Equal("notes/1"))
		Expect(ce.Actual).To(Equal(int64(1)))
	})

	It("rejects a write based on a stale version", func() {
		s := env.store.OpenSession()
		_, err := s.Insert("notes/2", "notes", note{Text: "a"})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SaveChanges(env.ctx)).To(Succeed())
		s.Close()

		first := env.store.OpenSession()
		defer first.Close()
		second := env.store.OpenSession()
		defer second.Close()

		for _, sess := range []*docstore.Session{first, second} {
			_, err := docstore.Load[note](env.ctx, sess, "notes/2")
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(first.Put("notes/2", "notes", note{Text: "first"})).To(Succeed())
		Expect(first.SaveChanges(env.ctx)).To(Succeed())

		Expect(second.Put("notes/2", "notes", note{Text: "second"})).To(Succeed())
		Expect(second.SaveChanges(env.ctx)).To(MatchError(docstore.ErrConcurrency))

		check := env.store.OpenSession()
		defer check.Close()
		got, err := docstore.Load[note](env.ctx, check, "notes/2")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Text).To(Equal("first"))
	})

	It("rolls back every op of a failed commit", func() {
		s := env.store.OpenSession()
		_, err := s.Insert("notes/3", "notes", note{Text: "a"})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SaveChanges(env.ctx)).To(Succeed())
		s.Close()

		s2 := env.store.OpenSession()
		defer s2.Close()
		_, err = s2.Insert("notes/4", "notes", note{Text: "b"})
		Expect(err).NotTo(HaveOccurred())
		_, err = s2.Insert("notes/3", "notes", note{Text: "c"})
		Expect(err).NotTo(HaveOccurred())
		Expect(s2.SaveChanges(env.ctx)).To(MatchError(docstore.ErrConcurrency))

		check := env.store.OpenSession()
		defer check.Close()
		_, err = docstore.Load[note](env.ctx, check, "notes/4")
		Expect(err).To(MatchError(docstore.ErrNotFound))
	})

	It("returns a collection in insertion order", func() {
		s := env.store.OpenSession()
		defer s.Close()
		for _, id := range []string{"notes/c", "notes/a", "notes/b"} {
			_, err := s.Insert(id, "notes", note{Text: id})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(s.SaveChanges(env.ctx)).To(Succeed())

		got, err := docstore.Query[note](env.ctx, s, "notes", nil, docstore.NonStale())
		Expect(err).NotTo(HaveOccurred())
		texts := make([]string, len(got))
		for i, n := range got {
			texts[i] = n.Text
		}
		Expect(texts).To(Equal([]string{"notes/c", "notes/a", "notes/b"}))
	})
})
