package main

import (
	goGate "github.com/MrEthical07/goGate"
	"github.com/spf13/cobra"
)

type rolesView struct {
	Principal string   `json:"principal"`
	Roles     []string `json:"roles"`
}

func newRolesCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles PRINCIPAL",
		Short: "List, grant or revoke the roles of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), st.cfg, func(e *goGate.Engine) error {
				return printRoles(cmd, e, args[0])
			})
		},
	}

	change := func(use, short string, apply func(*goGate.Engine, *cobra.Command, string, string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " PRINCIPAL ROLE",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), st.cfg, func(e *goGate.Engine) error {
					if err := apply(e, cmd, args[0], args[1]); err != nil {
						return err
					}
					return printRoles(cmd, e, args[0])
				})
			},
		}
	}
	cmd.AddCommand(
		change("grant", "Grant a role", func(e *goGate.Engine, cmd *cobra.Command, principal, role string) error {
			return e.GrantRole(cmd.Context(), principal, role)
		}),
		change("revoke", "Revoke a role", func(e *goGate.Engine, cmd *cobra.Command, principal, role string) error {
			return e.RevokeRole(cmd.Context(), principal, role)
		}),
	)
	return cmd
}

func printRoles(cmd *cobra.Command, e *goGate.Engine, principal string) error {
	roles, err := e.Roles(cmd.Context(), principal)
	if err != nil {
		return err
	}
	if roles == nil {
		roles = []string{}
	}
	return printJSON(cmd.OutOrStdout(), rolesView{Principal: principal, Roles: roles})
}
