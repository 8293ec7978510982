package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/services"
	"github.com/nis-portal/portal-api/internal/store"
	"github.com/spf13/cobra"
)

// adminPasswordEnv supplies the password when --password is omitted.
const adminPasswordEnv = "PORTALCTL_ADMIN_PASSWORD"

func seedAdminCmd() *cobra.Command {
	var input models.CreateUserInput

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an Administrator account",
		Example: `  portalctl seed-admin --email admin@nis.gov.bb --first-name Ada --last-name Grant
  PORTALCTL_ADMIN_PASSWORD=... portalctl seed-admin --email admin@nis.gov.bb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input.Password == "" {
				input.Password = os.Getenv(adminPasswordEnv)
			}
			if strings.TrimSpace(input.Password) == "" {
				return fmt.Errorf("password required: pass --password or set %s", adminPasswordEnv)
			}
			input.Role = models.RoleAdministrator

			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if _, err := store.Migrate(ctx, pool); err != nil {
				return err
			}

			users := services.NewUserService(store.NewPostgresStore(pool), nil, nil, logging.Logger)
			created, err := users.Create(ctx, input)
			if errors.Is(err, models.ErrConflict) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", input.Email)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s <%s> as %s (id %d)\n",
				created.FirstName, created.LastName, created.Email, created.Role, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Email, "email", "", "account email")
	cmd.Flags().StringVar(&input.FirstName, "first-name", "System", "first name")
	cmd.Flags().StringVar(&input.LastName, "last-name", "Administrator", "last name")
	cmd.Flags().StringVar(&input.Password, "password", "", "account password (prefer "+adminPasswordEnv+")")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
