package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/captorfm/gqlbroker/internal/app"
	"github.com/captorfm/gqlbroker/internal/graphql"
)

// ErrQueryErrors is returned when the server answered with an errors field.
var ErrQueryErrors = errors.New("graphql query returned errors")

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "run a GraphQL query and print its data",
		ArgsUsage: "[QUERY]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "read the query from a file",
			},
			&cli.StringFlag{
				Name:  "variables",
				Usage: "query variables as a JSON object",
			},
			&cli.DurationFlag{
				Name:  "graphql--timeout",
				Usage: "request timeout",
				Value: app.DefaultConfigGraphQLTimeout,
			},
		},
		Action: appAction(queryAction),
	}
}

func queryAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	req, err := queryRequest(cmd.String("file"), cmd.Args().First(), cmd.String("variables"))
	if err != nil {
		return err
	}

	result, err := a.Query(ctx, req)
	if err != nil {
		return err
	}

	if result.HasErrors() {
		_, _ = fmt.Fprintln(cmd.Root().ErrWriter, indent(result.Errors))
	}
	if result.Data != nil {
		if _, err := fmt.Fprintln(cmd.Root().Writer, indent(result.Data)); err != nil {
			return err
		}
	}
	if result.HasErrors() {
		return ErrQueryErrors
	}
	return nil
}

func queryRequest(path, arg, variables string) (graphql.Request, error) {
	var req graphql.Request

	switch {
	case path != "" && arg != "":
		return req, errors.New("give the query either as an argument or with --file, not both")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return req, fmt.Errorf("reading query file: %w", err)
		}
		req.Query = string(data)
	case arg != "":
		req.Query = arg
	default:
		return req, errors.New("missing query")
	}

	if variables != "" {
		if err := json.Unmarshal([]byte(variables), &req.Variables); err != nil {
			return req, fmt.Errorf("parsing --variables: %w", err)
		}
	}
	return req, nil
}

func indent(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
