package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "taskbench",
		Usage: "Benchmark lightweight workers against a bounded OS-thread pool",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"TASKBENCH_CONFIG"},
			},
			&cli.IntFlag{
				Name:  "pool-size",
				Usage: "Bounded pool worker count (overrides config)",
			},
			&cli.IntFlag{
				Name:  "max-batch-size",
				Usage: "Largest accepted batch (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "console or json (overrides config)",
			},
		},
		Commands: []*cli.Command{
			ServeCommand(),
			CompareCommand(),
			RunCommand(),
			ReportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
