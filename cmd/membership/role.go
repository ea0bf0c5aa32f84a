// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/holomush/membership/internal/auth"
)

// NewRoleCmd creates the role subcommand tree.
func NewRoleCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles and role membership",
	}
	cmd.AddCommand(newRoleCreateCmd(deps))
	cmd.AddCommand(newRoleDeleteCmd(deps))
	cmd.AddCommand(newRoleListCmd(deps))
	cmd.AddCommand(newRoleMembershipCmd(deps, "assign", "Add users to roles", true))
	cmd.AddCommand(newRoleMembershipCmd(deps, "remove", "Remove users from roles", false))
	cmd.AddCommand(newRoleMembersCmd(deps))
	cmd.AddCommand(newRoleOfCmd(deps))
	cmd.AddCommand(newRoleHasCmd(deps))
	return cmd
}

func newRoleCreateCmd(deps *Deps) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a role; creating an existing role changes nothing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				role, err := a.roles.CreateRole(cmd.Context(), a.cfg.Namespace, args[0], parent)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Role %s (%s)\n", role.Name, role.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent role name")
	return cmd
}

func newRoleDeleteCmd(deps *Deps) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a role",
		Long: `Delete a role. A role that still has members is refused unless --force
is given, which first removes it from every member. A role with child roles
is always refused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				deleted, err := a.roles.DeleteRole(cmd.Context(), a.cfg.Namespace, args[0], force)
				if err != nil {
					return err
				}
				if !deleted {
					return notFoundError("ROLE_NOT_FOUND", "role", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted role %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "remove the role from its members first")
	return cmd
}

func newRoleListCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the roles of the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, deps, func(a *app) error {
				roles, err := a.roles.AllRoles(cmd.Context(), a.cfg.Namespace)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tPARENT\tID")
				for _, r := range roles {
					parent := ""
					if r.ParentID != "" {
						parent = auth.RoleNameFromID(r.ParentID)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, orDash(parent), r.ID)
				}
				return tw.Flush()
			})
		},
	}
}

func newRoleMembershipCmd(deps *Deps, use, short string, add bool) *cobra.Command {
	var users, roles []string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `. Every user and role must exist; the change is applied to
all of them in one commit or not at all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, deps, func(a *app) error {
				ctx := cmd.Context()
				var err error
				if add {
					err = a.roles.AddUsersToRoles(ctx, a.cfg.Namespace, users, roles)
				} else {
					err = a.roles.RemoveUsersFromRoles(ctx, a.cfg.Namespace, users, roles)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %d user(s) in %d role(s)\n", len(users), len(roles))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&users, "users", "u", nil, "usernames (comma separated)")
	cmd.Flags().StringSliceVarP(&roles, "roles", "r", nil, "role names (comma separated)")
	_ = cmd.MarkFlagRequired("users") //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("roles") //nolint:errcheck // flag is defined above
	return cmd
}

func newRoleMembersCmd(deps *Deps) *cobra.Command {
	var match string
	cmd := &cobra.Command{
		Use:   "members ROLE",
		Short: "List the members of a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				ctx := cmd.Context()
				var (
					users []string
					err   error
				)
				if match != "" {
					users, err = a.roles.FindUsersInRole(ctx, a.cfg.Namespace, args[0], match)
				} else {
					users, err = a.roles.UsersInRole(ctx, a.cfg.Namespace, args[0])
				}
				if err != nil {
					return err
				}
				return writeLines(cmd.OutOrStdout(), users)
			})
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "only members whose username matches this pattern")
	return cmd
}

func newRoleOfCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "of USERNAME",
		Short: "List the roles a user holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				roles, err := a.roles.RolesForUser(cmd.Context(), a.cfg.Namespace, args[0])
				if err != nil {
					return err
				}
				return writeLines(cmd.OutOrStdout(), roles)
			})
		},
	}
}

func newRoleHasCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "has USERNAME ROLE",
		Short: "Report whether a user holds a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, deps, func(a *app) error {
				in, err := a.roles.IsUserInRole(cmd.Context(), a.cfg.Namespace, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), in)
				return nil
			})
		},
	}
}
