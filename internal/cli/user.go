package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/g960059/ehrsim/internal/api"
)

func newUserCmd(rt *env) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage trainees and instructors",
	}

	var req api.RegisterUserRequest
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := rt.api().RegisterUser(cmd.Context(), req)
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return writeJSON(cmd.OutOrStdout(), u)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "registered user %d %s (%s)\n", u.ID, u.Username, u.Role)
			return err
		},
	}
	registerCmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	registerCmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	registerCmd.Flags().StringVar(&req.Username, "username", "", "unique username")
	registerCmd.Flags().StringVar(&req.Email, "email", "", "unique email address")
	registerCmd.Flags().StringVar(&req.Role, "role", "", "student, instructor or admin (default student)")

	userCmd.AddCommand(registerCmd)
	return userCmd
}
