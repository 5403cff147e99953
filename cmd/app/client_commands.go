package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/rentora/apiguard/cmd/app/commands"
	"github.com/rentora/apiguard/internal/app"
	"github.com/rentora/apiguard/internal/config"
)

func getClientCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "send",
			Usage:     "Send one request through the resilient client pipeline",
			ArgsUsage: "URL",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "method",
					Aliases: []string{"X"},
					Value:   "GET",
					Usage:   "HTTP method",
				},
				&cli.StringFlag{
					Name:    "body",
					Aliases: []string{"d"},
					Value:   "",
					Usage:   "Request body (sent as application/json)",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				if cmd.Args().Len() != 1 {
					return fmt.Errorf("exactly one URL argument is required")
				}

				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				resilientClient, err := container.Client()
				if err != nil {
					return err
				}

				return commands.RunSend(
					ctx,
					resilientClient,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("method"),
					cmd.Args().First(),
					cmd.String("body"),
					cmd.String("format"),
				)
			},
		},
	}
}
