package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/captorfm/gqlbroker/internal/app"
)

// passwordEnv is read before prompting, so scripts can log in without a terminal.
const passwordEnv = "CAPTOR_PASSWORD"

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in through the browser, or with --password using a username and password",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "password",
				Usage: "exchange a username and password instead of opening the browser; the token is not stored",
			},
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "username for --password",
				Sources: cli.EnvVars("CAPTOR_USERNAME"),
			},
			&cli.IntFlag{
				Name:  "login--port",
				Usage: "port of the local callback listener",
				Value: app.DefaultConfigLoginPort,
			},
			&cli.DurationFlag{
				Name:  "login--timeout",
				Usage: "how long to wait for the browser callback (negative waits indefinitely)",
				Value: app.DefaultConfigLoginTimeout,
			},
		},
		Action: appAction(loginAction),
	}
}

func loginAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	w := cmd.Root().Writer

	if !cmd.Bool("password") {
		tok, err := a.Login(ctx)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		_, _ = fmt.Fprintf(w, "Logged in, token stored for %s\n", tok.Audience)
		return nil
	}

	username := cmd.String("username")
	if username == "" {
		return errors.New("--username is required with --password")
	}
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	tok, err := a.LoginWithPassword(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	name := tok.UserDisplayName
	if name == "" {
		name = username
	}
	_, _ = fmt.Fprintf(w, "Logged in as %s\n", name)
	return nil
}

func readPassword(cmd *cli.Command) (string, error) {
	if password := os.Getenv(passwordEnv); password != "" {
		return password, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to prompt for a password, set %s", passwordEnv)
	}

	_, _ = fmt.Fprint(cmd.Root().ErrWriter, "Password: ")
	password, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(cmd.Root().ErrWriter)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}
