package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	domainauth "github.com/zime-ai/nucleus/internal/domain/auth"
)

func newStaffCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage local staff accounts for password sign-in",
	}
	cmd.AddCommand(newStaffAddCommand(ctx))
	cmd.AddCommand(newStaffDisableCommand(ctx))
	return cmd
}

func newStaffAddCommand(ctx *commandContext) *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a staff account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !domainauth.EmailAllowed(email, cfg.Auth.AllowedDomain) {
				return fmt.Errorf("email must end with %s", cfg.Auth.AllowedDomain)
			}
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters")
			}

			db, err := ctx.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			acct, err := domainauth.NewPasswordProvider(db).CreateAccount(cmd.Context(), email, password, name)
			if errors.Is(err, domainauth.ErrAccountExists) {
				return fmt.Errorf("staff account %s already exists", email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created staff account %s (%s)\n", acct.Email, acct.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Staff email address")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newStaffDisableCommand(ctx *commandContext) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Block password sign-in for a staff account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			revoked, err := domainauth.NewPasswordProvider(db).DisableAccount(cmd.Context(), email)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("no staff account for %s", email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "disabled staff account %s, revoked %d session(s)\n", email, revoked)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Staff email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
