package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/app"
	"github.com/matheus3301/helpline/internal/identity"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const passwordEnv = "HELPLINE_PASSWORD"

func newLoginCmd(f *rootFlags) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session in the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd, false, func(ctx context.Context, a *app.App) error {
				var err error
				if email == "" {
					if email, err = promptLine(cmd, "Email: "); err != nil {
						return err
					}
				}
				password, err := readPassword(cmd)
				if err != nil {
					return err
				}
				if err := identity.ValidateLogin(email, password); err != nil {
					return err
				}
				resp, err := a.API.Login(ctx, email, password)
				if err != nil {
					return err
				}
				return saveLogin(cmd, a, resp)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func newRegisterCmd(f *rootFlags) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd, false, func(ctx context.Context, a *app.App) error {
				var err error
				if name == "" {
					if name, err = promptLine(cmd, "Name: "); err != nil {
						return err
					}
				}
				if email == "" {
					if email, err = promptLine(cmd, "Email: "); err != nil {
						return err
					}
				}
				password, err := readPassword(cmd)
				if err != nil {
					return err
				}
				if err := identity.ValidateRegister(name, email, password); err != nil {
					return err
				}
				resp, err := a.API.Register(ctx, name, email, password)
				if err != nil {
					return err
				}
				return saveLogin(cmd, a, resp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func saveLogin(cmd *cobra.Command, a *app.App, resp *api.AuthResponse) error {
	if err := a.Identity.Login(resp.Token, resp.User); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s) on profile %q.\n", resp.User.Name, resp.User.ID, a.Profile)
	return nil
}

func newLogoutCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd, false, func(_ context.Context, a *app.App) error {
				if err := a.Identity.Logout(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}

func newWhoamiCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user of the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd, false, func(_ context.Context, a *app.App) error {
				u, ok := a.Identity.User()
				if !ok {
					return identity.ErrNotLoggedIn
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Profile: %s\n", a.Profile)
				fmt.Fprintf(cmd.OutOrStdout(), "User:    %s (%s)\n", u.Name, u.ID)
				if u.Email != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Email:   %s\n", u.Email)
				}
				if exp, ok := identity.TokenExpiry(a.Identity.Token()); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Expires: %s\n", exp.Local().Format(time.DateTime))
				}
				if id, ok := a.Identity.LastChat(); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Last chat: %s\n", id)
				}
				return nil
			})
		},
	}
}

func newProfileCmd(f *rootFlags) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your account details",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd, false, func(ctx context.Context, a *app.App) error {
				_, token, err := a.Identity.Credentials()
				if err != nil {
					return err
				}
				var u *api.User
				if cmd.Flags().Changed("name") || cmd.Flags().Changed("email") {
					if name != "" {
						if err := identity.ValidateName(name); err != nil {
							return err
						}
					}
					if email != "" {
						if err := identity.ValidateEmail(email); err != nil {
							return err
						}
					}
					if u, err = a.API.UpdateProfile(ctx, token, name, email); err != nil {
						return err
					}
				} else if u, err = a.API.Profile(ctx, token); err != nil {
					return err
				}
				if err := a.Identity.UpdateUser(*u); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Name:  %s\nEmail: %s\nID:    %s\n", u.Name, u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&email, "email", "", "new email")
	return cmd
}

func promptLine(cmd *cobra.Command, prompt string) (string, error) {
	cmd.Print(prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword takes the password from the environment or, on a terminal,
// prompts without echo.
func readPassword(cmd *cobra.Command) (string, error) {
	if pw, ok := os.LookupEnv(passwordEnv); ok {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to read the password from; set " + passwordEnv)
	}
	cmd.Print("Password: ")
	pw, err := term.ReadPassword(fd)
	cmd.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
