package commands

import (
	"context"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"github.com/captorfm/gqlbroker/internal/app"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "list stored tokens",
		Action: appAction(statusAction),
	}
}

func statusAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	statuses, err := a.Status(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.Root().Writer)
	t.AppendHeader(table.Row{"Audience", "Subject", "User", "Expires", "Valid"})
	for _, s := range statuses {
		expires := "never"
		if s.Expiry != nil {
			expires = s.Expiry.Local().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{
			s.Audience,
			lo.Ternary(s.Subject == "", "-", s.Subject),
			lo.Ternary(s.UserDisplayName == "", "-", s.UserDisplayName),
			expires,
			lo.Ternary(s.Valid, "yes", "no"),
		})
	}
	if len(statuses) == 0 {
		t.AppendFooter(table.Row{"no stored tokens"})
	}
	t.Render()
	return nil
}
