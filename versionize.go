package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/versionize/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "versionize",
		Usage:   "Semantic versioning and changelogs for every project in a git working tree",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` instead of the default locations",
				EnvVars: []string{"VERSIONIZE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			cmd.ReleaseCommand(),
			cmd.PlanCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
