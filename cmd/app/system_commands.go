package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/rentora/apiguard/cmd/app/commands"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "gateway",
			Usage: "Start the gateway HTTP server",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunGateway(ctx, version)
			},
		},
	}
}
