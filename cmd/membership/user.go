// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/membership/internal/auth"
)

// NewUserCmd creates the user subcommand tree.
func NewUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserCreateCmd(deps))
	cmd.AddCommand(newUserDeleteCmd(deps))
	cmd.AddCommand(newUserPasswdCmd(deps))
	cmd.AddCommand(newUserResetPasswordCmd(deps))
	cmd.AddCommand(newUserListCmd(deps))
	cmd.AddCommand(newUserShowCmd(deps))
	cmd.AddCommand(newUserAuthCmd(deps))
	cmd.AddCommand(newUserUnlockCmd(deps))
	return cmd
}

func newUserCreateCmd(deps *Deps) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create USERNAME",
		Short: "Create an account",
		Long: `Create an account. Without --password a password satisfying the
namespace policy is generated and printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				ctx := cmd.Context()
				ns := a.cfg.Namespace
				pw := password
				if pw == "" {
					var err error
					if pw, err = a.gate.GeneratePolicyPassword(ctx, ns, args[0]); err != nil {
						return err
					}
				}
				acct, err := a.accounts.Create(ctx, ns, args[0], pw, email)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created user %s (%s)\n", acct.Username, acct.Key)
				if password == "" {
					fmt.Fprintf(out, "Password: %s\n", pw)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "initial password (generated when empty)")
	return cmd
}

func newUserDeleteCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete USERNAME",
		Short: "Delete an account and release its username and email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				deleted, err := a.accounts.Delete(cmd.Context(), a.cfg.Namespace, args[0])
				if err != nil {
					return err
				}
				if !deleted {
					return notFoundError("USER_NOT_FOUND", "user", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", args[0])
				return nil
			})
		},
	}
}

func newUserPasswdCmd(deps *Deps) *cobra.Command {
	var oldPassword, newPassword string
	cmd := &cobra.Command{
		Use:   "passwd USERNAME",
		Short: "Change a password after verifying the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				err := a.accounts.ChangePassword(cmd.Context(), a.cfg.Namespace, args[0], oldPassword, newPassword)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Password changed for %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&oldPassword, "old", "", "current password")
	cmd.Flags().StringVar(&newPassword, "new", "", "new password")
	_ = cmd.MarkFlagRequired("old") //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("new") //nolint:errcheck // flag is defined above
	return cmd
}

func newUserResetPasswordCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password USERNAME",
		Short: "Replace a password with a generated one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				pw, err := a.accounts.ResetPassword(cmd.Context(), a.cfg.Namespace, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Password: %s\n", pw)
				return nil
			})
		},
	}
}

// userListConfig holds the flags of user list.
type userListConfig struct {
	username   string
	email      string
	page       int
	size       int
	order      string
	jsonOutput bool
}

func newUserListCmd(deps *Deps) *cobra.Command {
	cfg := &userListConfig{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts, optionally filtered by username or email",
		Long: `List accounts one page at a time. --username and --email take a
substring, or a glob when the pattern contains *, ?, [ or {.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := cfg.filter()
			if err != nil {
				return err
			}
			order, err := parseOrder(cfg.order)
			if err != nil {
				return err
			}
			page := auth.Page{Index: cfg.page, Size: cfg.size, Order: order}

			return withApp(cmd, deps, func(a *app) error {
				accounts, total, err := a.accounts.Find(cmd.Context(), a.cfg.Namespace, filter, page)
				if err != nil {
					return err
				}
				if cfg.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), accountList{Total: total, Accounts: toAccountViews(accounts)})
				}
				return writeAccountTable(cmd.OutOrStdout(), accounts, total)
			})
		},
	}
	cmd.Flags().StringVar(&cfg.username, "username", "", "username pattern")
	cmd.Flags().StringVar(&cfg.email, "email", "", "email pattern")
	cmd.Flags().IntVar(&cfg.page, "page", 0, "zero-based page index")
	cmd.Flags().IntVar(&cfg.size, "size", 50, "page size")
	cmd.Flags().StringVar(&cfg.order, "order", auth.OrderInsertion.String(), "page order (insertion or username)")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output as JSON")
	cmd.MarkFlagsMutuallyExclusive("username", "email")
	return cmd
}

func (c *userListConfig) filter() (auth.Filter, error) {
	switch {
	case c.username != "":
		return auth.Filter{Field: auth.FilterUsername, Pattern: c.username}, nil
	case c.email != "":
		return auth.Filter{Field: auth.FilterEmail, Pattern: c.email}, nil
	default:
		return auth.Filter{}, nil
	}
}

func parseOrder(name string) (auth.Order, error) {
	for _, o := range []auth.Order{auth.OrderInsertion, auth.OrderUsername} {
		if strings.EqualFold(name, o.String()) {
			return o, nil
		}
	}
	return 0, oops.Code("INVALID_ORDER").
		With("order", name).
		Errorf("order must be %q or %q, got %q", auth.OrderInsertion, auth.OrderUsername, name)
}

func newUserShowCmd(deps *Deps) *cobra.Command {
	var byEmail, jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show USERNAME",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				ctx := cmd.Context()
				username := args[0]
				if byEmail {
					var err error
					if username, err = a.accounts.UsernameByEmail(ctx, a.cfg.Namespace, args[0]); err != nil {
						return err
					}
				}
				acct, err := a.accounts.Get(ctx, a.cfg.Namespace, username)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), toAccountView(acct))
				}
				return writeAccount(cmd.OutOrStdout(), acct)
			})
		},
	}
	cmd.Flags().BoolVar(&byEmail, "by-email", false, "treat the argument as an email address")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newUserAuthCmd(deps *Deps) *cobra.Command {
	var password string
	var noTouch bool
	cmd := &cobra.Command{
		Use:   "auth USERNAME",
		Short: "Check a password",
		Long: `Check a password. Exits non-zero when the credentials are rejected.
Failed attempts count toward the namespace lockout policy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				ok, err := a.accounts.Authenticate(cmd.Context(), a.cfg.Namespace, args[0], password, !noTouch)
				if err != nil {
					return err
				}
				if !ok {
					return oops.Code("AUTH_REJECTED").
						With("username", args[0]).
						Wrap(auth.ErrInvalidCredentials)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Authenticated %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password to check")
	cmd.Flags().BoolVar(&noTouch, "no-touch", false, "do not record the login time")
	_ = cmd.MarkFlagRequired("password") //nolint:errcheck // flag is defined above
	return cmd
}

func newUserUnlockCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock USERNAME",
		Short: "Clear a lockout and the failed attempt counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				if err := a.accounts.Unlock(cmd.Context(), a.cfg.Namespace, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s\n", args[0])
				return nil
			})
		},
	}
}

func notFoundError(code, kind, name string) error {
	return oops.Code(code).With(kind, name).Wrapf(auth.ErrNotFound, "%s %q not found", kind, name)
}
