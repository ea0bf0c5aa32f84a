// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package document

import (
	"context"
	"errors"
	"net/url"

	"github.com/samber/oops"

	"github.com/holomush/membership/internal/auth"
	"github.com/holomush/membership/internal/docstore"
)

// Collections used by the repositories.
const (
	CollectionAccounts     = "accounts"
	CollectionRoles        = "roles"
	CollectionReservations = "reservations"
)

// Field names a guarded account attribute.
type Field string

// Guarded fields.
const (
	FieldUsername Field = "username"
	FieldEmail    Field = "email"
)

// Reservation is the sentinel document guarding one unique value. Only its
// identifier carries meaning; the payload is kept for diagnostics and for
// resolving the owning account.
type Reservation struct {
	Field     Field  `json:"field"`
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
	OwnerKey  string `json:"owner_key"`
}

// ID returns the sentinel identifier: field, escaped namespace, and
// normalized value.
func (r Reservation) ID() string {
	return ReservationID(r.Field, r.Namespace, r.Value)
}

// ReservationID returns the sentinel identifier for a value.
func ReservationID(field Field, namespace, value string) string {
	return string(field) + "/" + url.PathEscape(namespace) + "/" + auth.NormalizeValue(value)
}

// SameValue reports whether r and other guard the same normalized value.
func (r Reservation) SameValue(other Reservation) bool {
	return r.ID() == other.ID()
}

// DuplicateKind classifies a commit conflict.
type DuplicateKind int

// Conflict classifications.
const (
	// Unclassified means the conflict was not on any candidate reservation.
	Unclassified DuplicateKind = iota
	DuplicateUsername
	DuplicateEmail
)

// String returns the kind's name.
func (k DuplicateKind) String() string {
	switch k {
	case DuplicateUsername:
		return "duplicate_username"
	case DuplicateEmail:
		return "duplicate_email"
	default:
		return "unclassified"
	}
}

// Reserve stages creation of r's sentinel. The commit fails with a
// conflict on r.ID() if the value is already taken.
func Reserve(s *docstore.Session, r Reservation) error {
	if r.Value == "" {
		return oops.Code("RESERVATION_EMPTY_VALUE").With("field", string(r.Field)).Errorf("cannot reserve an empty value")
	}
	if _, err := s.Insert(r.ID(), CollectionReservations, r); err != nil {
		return oops.Code("RESERVATION_STAGE_FAILED").With("id", r.ID()).Wrap(err)
	}
	return nil
}

// Release stages deletion of r's sentinel if it is owned by ownerKey.
// A missing sentinel, or one owned by another account, is left alone.
func Release(ctx context.Context, s *docstore.Session, r Reservation, ownerKey string) error {
	if r.Value == "" {
		return nil
	}
	cur, err := docstore.Load[Reservation](ctx, s, r.ID())
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return oops.Code("RESERVATION_LOAD_FAILED").With("id", r.ID()).Wrap(err)
	}
	if cur.OwnerKey != ownerKey {
		return nil
	}
	if err := s.Delete(r.ID()); err != nil {
		return oops.Code("RESERVATION_STAGE_FAILED").With("id", r.ID()).Wrap(err)
	}
	return nil
}

// Swap stages release of old and reservation of next in the same session.
// Nothing is staged when both guard the same normalized value. An empty
// old or next value only reserves or only releases.
func Swap(ctx context.Context, s *docstore.Session, old, next Reservation, ownerKey string) error {
	if old.Value != "" && next.Value != "" && old.SameValue(next) {
		return nil
	}
	if err := Release(ctx, s, old, ownerKey); err != nil {
		return err
	}
	if next.Value == "" {
		return nil
	}
	next.OwnerKey = ownerKey
	return Reserve(s, next)
}

// InterpretConflict matches the document named by a commit conflict against
// the candidate reservations.
func InterpretConflict(err error, candidates ...Reservation) DuplicateKind {
	ce, ok := docstore.AsConcurrencyError(err)
	if !ok {
		return Unclassified
	}
	for _, c := range candidates {
		if c.Value == "" || ce.ID != c.ID() {
			continue
		}
		switch c.Field {
		case FieldUsername:
			return DuplicateUsername
		case FieldEmail:
			return DuplicateEmail
		}
	}
	return Unclassified
}

func usernameReservation(a *auth.Account) Reservation {
	return Reservation{Field: FieldUsername, Namespace: a.Namespace, Value: a.Username, OwnerKey: a.Key}
}

func emailReservation(a *auth.Account) Reservation {
	return Reservation{Field: FieldEmail, Namespace: a.Namespace, Value: a.Email, OwnerKey: a.Key}
}
