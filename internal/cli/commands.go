package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edudashpro/sessionctl"
)

func newSignInCommand(opts *rootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password, then wait for the profile to load.

The password is prompted for when --password is omitted.

Examples:
  sessionctl signin --email teacher@school.example`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("--email is required")
			}
			if password == "" {
				var err error
				password, err = newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).secret("Password")
				if err != nil {
					return err
				}
			}

			a, err := openApp(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.signIn(cmd.Context(), email, password); err != nil {
				return fmt.Errorf("sign in failed: %w", err)
			}
			state, err := awaitSettled(cmd.Context(), a.controller, opts.timeout)
			if err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), state, opts.json)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

type signUpFlags struct {
	email       string
	password    string
	firstName   string
	lastName    string
	role        string
	preschoolID string
	phone       string
}

func (f signUpFlags) data() sessionctl.SignUpData {
	return sessionctl.SignUpData{
		FirstName:   strings.TrimSpace(f.firstName),
		LastName:    strings.TrimSpace(f.lastName),
		Role:        sessionctl.ParseRole(f.role),
		PreschoolID: strings.TrimSpace(f.preschoolID),
		Phone:       strings.TrimSpace(f.phone),
	}
}

func newSignUpCommand(opts *rootOptions) *cobra.Command {
	var f signUpFlags

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Long: `Register a new account. The profile row is created by the backend once the
account exists; unless the server auto-confirms, a confirmation email is sent.

Examples:
  sessionctl signup --email parent@example.com --first-name Lerato --last-name Mokoena --role parent`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(f.email) == "" {
				return fmt.Errorf("--email is required")
			}
			if f.password == "" {
				var err error
				f.password, err = newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).secret("Password")
				if err != nil {
					return err
				}
			}

			a, err := openApp(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.controller.SignUp(cmd.Context(), f.email, f.password, f.data()); err != nil {
				return fmt.Errorf("sign up failed: %w", err)
			}

			state, err := awaitSettled(cmd.Context(), a.controller, opts.timeout)
			if err != nil {
				return err
			}
			if state.SignedIn() {
				return printState(cmd.OutOrStdout(), state, opts.json)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Registration submitted. Check your email to confirm the account.")
			return nil
		},
	}
	cmd.Flags().StringVar(&f.email, "email", "", "account email")
	cmd.Flags().StringVar(&f.password, "password", "", "account password (prompted when omitted)")
	cmd.Flags().StringVar(&f.firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&f.lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&f.role, "role", "parent", "superadmin, principal_admin, teacher or parent")
	cmd.Flags().StringVar(&f.preschoolID, "preschool-id", "", "preschool the account belongs to")
	cmd.Flags().StringVar(&f.phone, "phone", "", "phone number in E.164 form")
	return cmd
}

func newSignOutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.controller.State().SignedIn() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			if err := a.controller.SignOut(cmd.Context()); err != nil {
				return fmt.Errorf("sign out failed: %w", err)
			}

			nav := a.settings.Controller.Navigation
			if !nav.Disabled {
				ctx, cancel := context.WithTimeout(cmd.Context(), nav.SignOutDelay+2*time.Second)
				defer cancel()
				if _, ok := a.navigator.wait(ctx); !ok {
					a.logger.Warn("landing navigation did not happen before exit")
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoAmICommand(opts *rootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the restored session and profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if refresh {
				if err := a.controller.RefreshProfile(cmd.Context()); err != nil {
					return fmt.Errorf("refresh profile: %w", err)
				}
			}
			state, err := awaitSettled(cmd.Context(), a.controller, opts.timeout)
			if err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), state, opts.json)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload the profile from the store first")
	return cmd
}

func newResetPasswordCommand(opts *rootOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Email a password recovery link",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("--email is required")
			}
			a, err := openApp(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.resetPassword(cmd.Context(), email); err != nil {
				return fmt.Errorf("reset password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "If the account exists, a recovery email is on its way.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

var errPasswordMismatch = errors.New("passwords do not match")

func newUpdatePasswordCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update-password",
		Short: "Change the signed-in account's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			next, err := p.secret("New password")
			if err != nil {
				return err
			}
			confirm, err := p.secret("Confirm password")
			if err != nil {
				return err
			}
			if next != confirm {
				return errPasswordMismatch
			}

			a, err := openApp(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.controller.UpdatePassword(cmd.Context(), next); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password updated.")
			return nil
		},
	}
}
