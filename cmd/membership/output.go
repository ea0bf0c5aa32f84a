// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/membership/internal/auth"
)

// accountView is the printable form of an account. Password material is
// never printed.
type accountView struct {
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	Key            string     `json:"key"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	Roles          []string   `json:"roles,omitempty"`
	FailedAttempts int        `json:"failed_attempts,omitempty"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

type accountList struct {
	Total    int           `json:"total"`
	Accounts []accountView `json:"accounts"`
}

func toAccountView(a *auth.Account) accountView {
	roles := make([]string, len(a.Roles))
	for i, id := range a.Roles {
		roles[i] = auth.RoleNameFromID(id)
	}
	return accountView{
		Username:       a.Username,
		Email:          a.Email,
		Key:            a.Key,
		CreatedAt:      a.CreatedAt,
		LastLoginAt:    a.LastLoginAt,
		Roles:          roles,
		FailedAttempts: a.FailedAttempts,
		LockedUntil:    a.LockedUntil,
	}
}

func toAccountViews(accounts []*auth.Account) []accountView {
	out := make([]accountView, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountView(a)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeAccountTable(w io.Writer, accounts []*auth.Account, total int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tEMAIL\tCREATED\tLAST LOGIN")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			a.Username, orDash(a.Email), a.CreatedAt.Format(time.RFC3339), formatTime(a.LastLoginAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d accounts\n", len(accounts), total)
	return err
}

func writeAccount(w io.Writer, a *auth.Account) error {
	v := toAccountView(a)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Username:\t%s\n", v.Username)
	fmt.Fprintf(tw, "Email:\t%s\n", orDash(v.Email))
	fmt.Fprintf(tw, "Key:\t%s\n", v.Key)
	fmt.Fprintf(tw, "Created:\t%s\n", v.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Last login:\t%s\n", formatTime(v.LastLoginAt))
	fmt.Fprintf(tw, "Roles:\t%s\n", orDash(strings.Join(v.Roles, ", ")))
	if v.FailedAttempts > 0 {
		fmt.Fprintf(tw, "Failed attempts:\t%d\n", v.FailedAttempts)
	}
	if v.LockedUntil != nil {
		fmt.Fprintf(tw, "Locked until:\t%s\n", formatTime(v.LockedUntil))
	}
	return tw.Flush()
}

func writeLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
