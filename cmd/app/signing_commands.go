package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/rentora/apiguard/cmd/app/commands"
	"github.com/rentora/apiguard/internal/app"
	"github.com/rentora/apiguard/internal/config"
)

func getSigningCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "rotate-secret",
			Usage: "Rotate the active signing secret immediately",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				manager, err := container.SecretManager()
				if err != nil {
					return err
				}

				return commands.RunRotateSecret(
					ctx,
					manager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "list-secrets",
			Usage: "List retained signing secrets",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				manager, err := container.SecretManager()
				if err != nil {
					return err
				}

				return commands.RunListSecrets(
					ctx,
					manager,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "clean-nonces",
			Usage: "Purge expired nonces from the replay guard",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCleanNonces(
					ctx,
					container.NonceRegistry(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
	}
}
