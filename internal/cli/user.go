package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
	"github.com/iliyamo/cinema-seat-booking/internal/utils"
)

var validRoles = []string{"CUSTOMER", "STAFF"}

// NewCreateUserCommand creates create-user.
func NewCreateUserCommand() *cobra.Command {
	var email, password, role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Provision a buyer or staff account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			role = strings.ToUpper(strings.TrimSpace(role))
			if err := validateUser(email, password, role); err != nil {
				return err
			}

			db, cfg, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			hash, err := utils.HashPassword(password, cfg.BcryptCost)
			if err != nil {
				return err
			}
			u := &model.User{Email: email, PasswordHash: hash, Role: role, IsActive: true}
			err = repository.NewMySQLStore(db).Users().Create(cmd.Context(), u)
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("user %s already exists", email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s, %s)\n", u.ID, u.Email, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringVar(&role, "role", "CUSTOMER", "CUSTOMER or STAFF")
	return cmd
}

func validateUser(email, password, role string) error {
	var errs []error
	if email == "" || !strings.Contains(email, "@") {
		errs = append(errs, errors.New("--email must be an email address"))
	}
	if len(password) < 8 {
		errs = append(errs, errors.New("--password must be at least 8 characters"))
	}
	if !lo.Contains(validRoles, role) {
		errs = append(errs, fmt.Errorf("--role must be one of %v", validRoles))
	}
	return errors.Join(errs...)
}
