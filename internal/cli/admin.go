package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"playas/internal/db"
	"playas/internal/seed"
)

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.settings()
			if err != nil {
				return err
			}
			conn, err := db.Open(s.DatabaseURL)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newSeedCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load lots, spaces and rates from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := flags.settings()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()
			loader := &seed.Loader{Lots: a.repos.lots, Spaces: a.repos.spaces, Rates: a.repos.rates, Now: time.Now}
			n, err := loader.Load(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d lots created\n", n)
			return nil
		},
	}
}

func newCreateAdminCmd(flags *rootFlags) *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.settings()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()
			u, err := a.services.auth.CreateAdmin(cmd.Context(), email, password, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created with id %d\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.Flags().StringVar(&name, "name", "Administrator", "full name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
