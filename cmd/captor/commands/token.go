package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/captorfm/gqlbroker/internal/app"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:   "token",
		Usage:  "print a valid access token, logging in if needed",
		Action: appAction(tokenAction),
	}
}

func tokenAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	tok, err := a.Token(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, tok.Raw)
	return err
}
