// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package document

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/membership/internal/auth"
	"github.com/holomush/membership/internal/docstore"
)

// dummySalt and dummyDigest are verified against when a user doesn't exist
// so that unknown usernames take as long as wrong passwords. They are not
// credentials; no password produces an all-zero digest.
//
//nolint:gosec // G101: intentionally fake values for timing attack prevention.
const (
	dummySalt   = "AAAAAAAAAAAAAAAAAAAAAA=="
	dummyDigest = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
)

// AccountRepository implements auth.AccountStore.
type AccountRepository struct {
	repository
	gate   *auth.Gate
	hasher auth.PasswordHasher
}

// NewAccountRepository creates an AccountRepository.
func NewAccountRepository(store *docstore.Store, gate *auth.Gate, hasher auth.PasswordHasher, opts ...Option) (*AccountRepository, error) {
	if gate == nil {
		return nil, oops.Code("REPOSITORY_INVALID_CONFIG").Errorf("validation gate is required")
	}
	if hasher == nil {
		return nil, oops.Code("REPOSITORY_INVALID_CONFIG").Errorf("password hasher is required")
	}
	base, err := newRepository(store, opts)
	if err != nil {
		return nil, err
	}
	return &AccountRepository{repository: base, gate: gate, hasher: hasher}, nil
}

// Create implements auth.AccountStore.
func (r *AccountRepository) Create(ctx context.Context, namespace, username, password, email string) (_ *auth.Account, err error) {
	defer r.finish(ctx, "create_account", time.Now(), &err)

	in, err := r.gate.CheckCreate(ctx, namespace, username, password, email)
	if err != nil {
		return nil, err
	}

	acct := &auth.Account{
		Namespace:         namespace,
		Username:          in.Username,
		Email:             in.Email,
		PasswordAlgorithm: r.hasher.Algorithm(),
		CreatedAt:         r.now().UTC(),
	}
	if err := r.setPassword(acct, in.Password); err != nil {
		return nil, err
	}

	s := r.store.OpenSession()
	defer s.Close()

	if _, err := s.Insert(auth.AccountKeyPrefix, CollectionAccounts, acct); err != nil {
		return nil, storageError("stage account", err)
	}
	reserved := []Reservation{usernameReservation(acct)}
	if r.gate.Policy(namespace).RequiresUniqueEmail && acct.Email != "" {
		reserved = append(reserved, emailReservation(acct))
	}
	for _, res := range reserved {
		if err := Reserve(s, res); err != nil {
			return nil, storageError("stage reservation", err)
		}
	}

	if err := r.commit(ctx, s, "create account", reserved...); err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "account created", "namespace", namespace, "username", acct.Username, "key", acct.Key)
	return acct, nil
}

// Get implements auth.AccountStore.
func (r *AccountRepository) Get(ctx context.Context, namespace, username string) (_ *auth.Account, err error) {
	defer r.finish(ctx, "get_account", time.Now(), &err)

	username, err = auth.CheckUsername(username)
	if err != nil {
		return nil, err
	}
	s := r.store.OpenSession()
	defer s.Close()
	return r.accountByUsername(ctx, s, namespace, username)
}

// GetByKey implements auth.AccountStore.
func (r *AccountRepository) GetByKey(ctx context.Context, key string) (_ *auth.Account, err error) {
	defer r.finish(ctx, "get_account_by_key", time.Now(), &err)

	s := r.store.OpenSession()
	defer s.Close()
	return loadAccount(ctx, s, key)
}

func loadAccount(ctx context.Context, s *docstore.Session, key string) (*auth.Account, error) {
	acct, err := docstore.Load[auth.Account](ctx, s, key)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFound("ACCOUNT_NOT_FOUND", "key", key)
	}
	if err != nil {
		return nil, storageError("load account", err)
	}
	return acct, nil
}

// UsernameByEmail implements auth.AccountStore. When the namespace reserves
// email addresses the lookup goes through the reservation; otherwise the
// first account created with the address wins.
func (r *AccountRepository) UsernameByEmail(ctx context.Context, namespace, email string) (_ string, err error) {
	defer r.finish(ctx, "username_by_email", time.Now(), &err)

	email, err = r.gate.CheckEmail(namespace, email)
	if err != nil {
		return "", err
	}
	if email == "" {
		return "", oops.Code("AUTH_INVALID_EMAIL").Wrapf(auth.ErrInvalidEmail, "email is required")
	}

	s := r.store.OpenSession()
	defer s.Close()

	if r.gate.Policy(namespace).RequiresUniqueEmail {
		acct, err := r.accountByReservation(ctx, s, FieldEmail, namespace, email)
		if err != nil {
			return "", err
		}
		return acct.Username, nil
	}

	want := auth.NormalizeValue(email)
	accts, err := accountsWhere(ctx, s, namespace, func(a *auth.Account) bool {
		return a.Email != "" && auth.NormalizeValue(a.Email) == want
	})
	if err != nil {
		return "", err
	}
	if len(accts) == 0 {
		return "", notFound("ACCOUNT_NOT_FOUND", "email", email)
	}
	return accts[0].Username, nil
}

// ChangePassword implements auth.AccountStore.
func (r *AccountRepository) ChangePassword(ctx context.Context, namespace, username, oldPassword, newPassword string) (err error) {
	defer r.finish(ctx, "change_password", time.Now(), &err)

	if username, err = auth.CheckUsername(username); err != nil {
		return err
	}
	if oldPassword, err = auth.CheckPassword(oldPassword); err != nil {
		return err
	}

	s := r.store.OpenSession()
	defer s.Close()

	acct, err := r.accountByUsername(ctx, s, namespace, username)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return invalidCredentials(namespace, username)
		}
		return err
	}
	ok, err := r.hasher.Verify(acct.PasswordAlgorithm, oldPassword, acct.PasswordSalt, acct.PasswordHash)
	if err != nil {
		return storageError("verify password", err)
	}
	if !ok {
		return invalidCredentials(namespace, username)
	}

	newPassword, err = r.gate.CheckNewPassword(ctx, namespace, acct.Username, newPassword)
	if err != nil {
		return err
	}
	acct.PasswordAlgorithm = r.hasher.Algorithm()
	if err := r.setPassword(acct, newPassword); err != nil {
		return err
	}
	return r.saveAccount(ctx, s, acct, "change password")
}

// ResetPassword implements auth.AccountStore.
func (r *AccountRepository) ResetPassword(ctx context.Context, namespace, username string) (_ string, err error) {
	defer r.finish(ctx, "reset_password", time.Now(), &err)

	if username, err = auth.CheckUsername(username); err != nil {
		return "", err
	}

	s := r.store.OpenSession()
	defer s.Close()

	acct, err := r.accountByUsername(ctx, s, namespace, username)
	if err != nil {
		return "", err
	}
	password, err := r.gate.GeneratePolicyPassword(ctx, namespace, acct.Username)
	if err != nil {
		return "", err
	}
	acct.PasswordAlgorithm = r.hasher.Algorithm()
	if err := r.setPassword(acct, password); err != nil {
		return "", err
	}
	if err := r.saveAccount(ctx, s, acct, "reset password"); err != nil {
		return "", err
	}
	r.logger.InfoContext(ctx, "password reset", "namespace", namespace, "username", acct.Username)
	return password, nil
}

// Update implements auth.AccountStore. Only the username, email, and last
// login time are taken from account; everything else is kept as stored.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) (err error) {
	defer r.finish(ctx, "update_account", time.Now(), &err)

	if account == nil {
		return oops.Code("AUTH_INVALID_ACCOUNT").Wrapf(auth.ErrInvalidInput, "account is required")
	}
	username, err := auth.CheckUsername(account.Username)
	if err != nil {
		return err
	}

	s := r.store.OpenSession()
	defer s.Close()

	cur, err := loadAccount(ctx, s, account.Key)
	if err != nil {
		return err
	}
	email, err := r.gate.CheckEmail(cur.Namespace, account.Email)
	if err != nil {
		return err
	}

	next := *cur
	next.Username = username
	next.Email = email
	next.LastLoginAt = account.LastLoginAt

	var reserved []Reservation
	oldUser, newUser := usernameReservation(cur), usernameReservation(&next)
	if !oldUser.SameValue(newUser) {
		if err := Swap(ctx, s, oldUser, newUser, cur.Key); err != nil {
			return storageError("swap username reservation", err)
		}
		reserved = append(reserved, newUser)
	}
	if r.gate.Policy(cur.Namespace).RequiresUniqueEmail {
		oldEmail, newEmail := emailReservation(cur), emailReservation(&next)
		if !oldEmail.SameValue(newEmail) {
			if err := Swap(ctx, s, oldEmail, newEmail, cur.Key); err != nil {
				return storageError("swap email reservation", err)
			}
			reserved = append(reserved, newEmail)
		}
	}

	if err := s.Put(next.Key, CollectionAccounts, &next); err != nil {
		return storageError("stage account", err)
	}
	if err := r.commit(ctx, s, "update account", reserved...); err != nil {
		return err
	}
	*account = next
	return nil
}

// Delete implements auth.AccountStore.
func (r *AccountRepository) Delete(ctx context.Context, namespace, username string) (_ bool, err error) {
	defer r.finish(ctx, "delete_account", time.Now(), &err)

	if username, err = auth.CheckUsername(username); err != nil {
		return false, err
	}

	s := r.store.OpenSession()
	defer s.Close()

	acct, err := r.accountByUsername(ctx, s, namespace, username)
	if errors.Is(err, auth.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, res := range []Reservation{usernameReservation(acct), emailReservation(acct)} {
		if err := Release(ctx, s, res, acct.Key); err != nil {
			return false, storageError("release reservation", err)
		}
	}
	if err := s.Delete(acct.Key); err != nil {
		return false, storageError("stage delete", err)
	}
	if err := r.commit(ctx, s, "delete account"); err != nil {
		return false, err
	}
	r.logger.InfoContext(ctx, "account deleted", "namespace", namespace, "username", acct.Username, "key", acct.Key)
	return true, nil
}

// Find implements auth.AccountStore.
func (r *AccountRepository) Find(ctx context.Context, namespace string, filter auth.Filter, page auth.Page) (_ []*auth.Account, _ int, err error) {
	defer r.finish(ctx, "find_accounts", time.Now(), &err)

	if page.Size < 1 || page.Index < 0 {
		return nil, 0, oops.Code("AUTH_INVALID_PAGE").
			With("index", page.Index).
			With("size", page.Size).
			Wrapf(auth.ErrInvalidInput, "page index must be >= 0 and size >= 1")
	}

	var field func(*auth.Account) string
	switch filter.Field {
	case auth.FilterNone:
	case auth.FilterUsername:
		field = func(a *auth.Account) string { return a.Username }
	case auth.FilterEmail:
		field = func(a *auth.Account) string { return a.Email }
	default:
		return nil, 0, oops.Code("AUTH_INVALID_FILTER").Wrapf(auth.ErrInvalidInput, "unknown filter field %d", filter.Field)
	}

	var match func(*auth.Account) bool
	if field != nil {
		m, err := auth.NewMatcher(filter.Pattern)
		if err != nil {
			return nil, 0, err
		}
		match = func(a *auth.Account) bool { return m(field(a)) }
	}

	s := r.store.OpenSession()
	defer s.Close()

	accts, err := accountsWhere(ctx, s, namespace, match)
	if err != nil {
		return nil, 0, err
	}

	switch page.Order {
	case auth.OrderInsertion:
	case auth.OrderUsername:
		sort.SliceStable(accts, func(i, j int) bool {
			return auth.NormalizeValue(accts[i].Username) < auth.NormalizeValue(accts[j].Username)
		})
	default:
		return nil, 0, oops.Code("AUTH_INVALID_ORDER").Wrapf(auth.ErrInvalidInput, "unknown order %d", page.Order)
	}

	total := len(accts)
	pages := total / page.Size
	if total%page.Size != 0 {
		pages++
	}
	if page.Index >= pages {
		return []*auth.Account{}, total, nil
	}
	start := page.Index * page.Size
	end := start + min(page.Size, total-start)
	return accts[start:end], total, nil
}

// All implements auth.AccountStore.
func (r *AccountRepository) All(ctx context.Context, namespace string, page auth.Page) ([]*auth.Account, int, error) {
	return r.Find(ctx, namespace, auth.Filter{}, page)
}

// FindByUsername implements auth.AccountStore.
func (r *AccountRepository) FindByUsername(ctx context.Context, namespace, pattern string, page auth.Page) ([]*auth.Account, int, error) {
	return r.Find(ctx, namespace, auth.Filter{Field: auth.FilterUsername, Pattern: pattern}, page)
}

// FindByEmail implements auth.AccountStore.
func (r *AccountRepository) FindByEmail(ctx context.Context, namespace, pattern string, page auth.Page) ([]*auth.Account, int, error) {
	return r.Find(ctx, namespace, auth.Filter{Field: auth.FilterEmail, Pattern: pattern}, page)
}

// Authenticate implements auth.AccountStore. Unknown users and wrong
// passwords both return (false, nil) after the same amount of hashing.
func (r *AccountRepository) Authenticate(ctx context.Context, namespace, username, password string, touchLastLogin bool) (_ bool, err error) {
	defer r.finish(ctx, "authenticate", time.Now(), &err)

	if username, err = auth.CheckUsername(username); err != nil {
		return false, err
	}
	if password, err = auth.CheckPassword(password); err != nil {
		return false, err
	}

	s := r.store.OpenSession()
	defer s.Close()

	acct, lookupErr := r.accountByUsername(ctx, s, namespace, username)
	algorithm, salt, digest := r.hasher.Algorithm(), dummySalt, dummyDigest
	switch {
	case lookupErr == nil:
		algorithm, salt, digest = acct.PasswordAlgorithm, acct.PasswordSalt, acct.PasswordHash
	case errors.Is(lookupErr, auth.ErrNotFound):
	default:
		return false, lookupErr
	}

	valid, verifyErr := r.hasher.Verify(algorithm, password, salt, digest)
	if acct == nil {
		return false, nil
	}
	if verifyErr != nil {
		return false, storageError("verify password", verifyErr)
	}

	now := r.now()
	policy := r.gate.Policy(namespace)
	if !valid {
		acct.RecordFailure(policy.Lockout, now)
		if err := r.saveAccount(ctx, s, acct, "record failed login"); err != nil {
			return false, err
		}
		if acct.IsLocked(now) {
			r.logger.WarnContext(ctx, "account locked", "namespace", namespace, "username", acct.Username,
				"failed_attempts", acct.FailedAttempts, "locked_until", acct.LockedUntil)
		}
		return false, nil
	}

	// Lockout is checked after verification.
	if acct.IsLocked(now) {
		return false, oops.Code("ACCOUNT_LOCKED").
			With("username", acct.Username).
			With("locked_until", acct.LockedUntil).
			Wrap(auth.ErrAccountLocked)
	}

	dirty := acct.FailedAttempts > 0 || acct.LockedUntil != nil
	acct.RecordSuccess()
	if touchLastLogin {
		stamp := now.UTC()
		acct.LastLoginAt = &stamp
		dirty = true
	}
	if r.hasher.NeedsUpgrade(acct.PasswordAlgorithm) {
		acct.PasswordAlgorithm = r.hasher.Algorithm()
		if err := r.setPassword(acct, password); err != nil {
			return false, err
		}
		dirty = true
	}
	if !dirty {
		return true, nil
	}
	if err := r.saveAccount(ctx, s, acct, "authenticate"); err != nil {
		return false, err
	}
	return true, nil
}

// Unlock implements auth.AccountStore.
func (r *AccountRepository) Unlock(ctx context.Context, namespace, username string) (err error) {
	defer r.finish(ctx, "unlock_account", time.Now(), &err)

	if username, err = auth.CheckUsername(username); err != nil {
		return err
	}

	s := r.store.OpenSession()
	defer s.Close()

	acct, err := r.accountByUsername(ctx, s, namespace, username)
	if err != nil {
		return err
	}
	if acct.FailedAttempts == 0 && acct.LockedUntil == nil {
		return nil
	}
	acct.RecordSuccess()
	return r.saveAccount(ctx, s, acct, "unlock account")
}

// saveAccount stages acct and commits.
func (r *AccountRepository) saveAccount(ctx context.Context, s *docstore.Session, acct *auth.Account, operation string) error {
	if err := s.Put(acct.Key, CollectionAccounts, acct); err != nil {
		return storageError("stage account", err)
	}
	return r.commit(ctx, s, operation)
}

// setPassword derives a fresh salt and digest for password.
func (r *AccountRepository) setPassword(acct *auth.Account, password string) error {
	salt, err := r.hasher.NewSalt()
	if err != nil {
		return storageError("generate salt", err)
	}
	digest, err := r.hasher.Hash(password, salt)
	if err != nil {
		return storageError("hash password", err)
	}
	acct.PasswordSalt = salt
	acct.PasswordHash = digest
	return nil
}

func invalidCredentials(namespace, username string) error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").
		With("namespace", namespace).
		With("username", username).
		Wrap(auth.ErrInvalidCredentials)
}

// Compile-time interface check.
var _ auth.AccountStore = (*AccountRepository)(nil)
