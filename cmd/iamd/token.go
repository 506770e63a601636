package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-iam"
)

// newTokenCommand mints a bearer token offline, handy for seeding an admin
func newTokenCommand(configFile *string) *cobra.Command {
	var (
		subject string
		email   string
		role    string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*configFile)
			if err != nil {
				return err
			}

			r, ok := iam.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}

			if subject == "" {
				subject = uuid.NewString()
			}

			token, err := iam.NewTokenService(cfg.Auth).Issue(iam.Claims{
				SubjectID: subject,
				Email:     email,
				Role:      r,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "subject id, random when empty")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", string(iam.RoleUser), "ADMIN, EMPLOYEE or USER")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
