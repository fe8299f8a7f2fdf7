package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and persist the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				return writeCommandError(cmd, fmt.Errorf("--password is required"))
			}
			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			sess, err := app.Engine.Login(cmd.Context(), args[0], password)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return printSession(cmd, sess)
		},
	}
	cmd.Flags().StringP("password", "p", "", "account password")
	return cmd
}

// NewSignupCmd creates the signup command.
func NewSignupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			password, _ := cmd.Flags().GetString("password")
			phone, _ := cmd.Flags().GetString("phone")
			roles, _ := cmd.Flags().GetStringSlice("role")

			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			sess, err := app.Engine.Signup(cmd.Context(), domain.SignupRequest{
				FullName: name,
				Email:    args[0],
				Phone:    phone,
				Password: password,
				Roles:    roles,
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return printSession(cmd, sess)
		},
	}
	cmd.Flags().String("name", "", "full name")
	cmd.Flags().StringP("password", "p", "", "account password")
	cmd.Flags().String("phone", "", "phone number")
	cmd.Flags().StringSlice("role", nil, "account role (trainer, trainee); repeatable")
	return cmd
}

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			if err := app.Engine.Logout(cmd.Context()); err != nil {
				return writeCommandError(cmd, err)
			}
			if !jsonMode(cmd) {
				fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			}
			return nil
		},
	}
}

// NewWhoamiCmd creates the whoami command.
func NewWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the restored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			return printSession(cmd, app.Engine.Session().Current())
		},
	}
}

// NewRoleCmd creates the role command.
func NewRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role [role]",
		Short: "Show or switch the active role",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			sess := app.Engine.Session().Current()
			if len(args) == 1 {
				role := strings.ToLower(strings.TrimSpace(args[0]))
				if sess.Authenticated() && !sess.HasRole(role) {
					return writeCommandError(cmd, fmt.Errorf("role %q is not one of: %s", role, strings.Join(sess.Roles, ", ")))
				}
				sess, err = app.Engine.Session().SetActiveRole(cmd.Context(), role)
				if err != nil {
					return writeCommandError(cmd, err)
				}
			}
			if !sess.Authenticated() {
				return writeCommandError(cmd, domain.ErrUnauthenticated)
			}
			if jsonMode(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"active_role": sess.ActiveRole, "roles": sess.Roles})
			}
			fmt.Fprintln(cmd.OutOrStdout(), sess.ActiveRole)
			return nil
		},
	}
}

// NewDeleteAccountCmd creates the delete-account command.
func NewDeleteAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return writeCommandError(cmd, fmt.Errorf("refusing to delete the account without --yes"))
			}
			app, err := openApp(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer app.Close()

			if err := app.Engine.DeleteAccount(cmd.Context()); err != nil {
				return writeCommandError(cmd, err)
			}
			if !jsonMode(cmd) {
				fmt.Fprintln(cmd.OutOrStdout(), "account deleted")
			}
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "confirm the deletion")
	return cmd
}

func printSession(cmd *cobra.Command, sess domain.Session) error {
	if jsonMode(cmd) {
		return writeJSON(cmd.OutOrStdout(), sess)
	}
	formatSession(cmd.OutOrStdout(), sess)
	return nil
}
