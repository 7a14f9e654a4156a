package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-go-golems/streamchat/pkg/auth"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"
)

type loginFunc func(svc *auth.Service, cmd *cobra.Command, username, password string) (*auth.UserInfo, error)

func newLoginCommand() *cobra.Command {
	return newCredentialsCommand("login", "Log in and store the access token",
		func(svc *auth.Service, cmd *cobra.Command, u, p string) (*auth.UserInfo, error) {
			return svc.Login(cmd.Context(), u, p)
		})
}

func newRegisterCommand() *cobra.Command {
	return newCredentialsCommand("register", "Create an account and store its access token",
		func(svc *auth.Service, cmd *cobra.Command, u, p string) (*auth.UserInfo, error) {
			return svc.Register(cmd.Context(), u, p)
		})
}

func newCredentialsCommand(use, short string, fn loginFunc) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if username == "" || password == "" {
				u, p, err := promptCredentials(username)
				if err != nil {
					return err
				}
				username, password = u, p
			}
			user, err := fn(a.auth, cmd, username, password)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "logged in as %s\n", userStyle.Render(user.Username))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when empty)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when empty)")
	return cmd
}

func promptCredentials(username string) (string, string, error) {
	ui := &input.UI{Writer: os.Stderr, Reader: os.Stdin}
	if username == "" {
		u, err := ui.Ask("Username", &input.Options{Required: true, Loop: true, HideOrder: true})
		if err != nil {
			return "", "", errors.Wrap(err, "read username")
		}
		username = strings.TrimSpace(u)
	}
	p, err := ui.Ask("Password", &input.Options{Required: true, Loop: true, Mask: true, HideOrder: true})
	if err != nil {
		return "", "", errors.Wrap(err, "read password")
	}
	return username, p, nil
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user the stored token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			u, err := a.auth.Me(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s %s\n", userStyle.Render(u.Username), dimStyle.Render(u.ID))
			return nil
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return a.chat.Logout()
		},
	}
}
