package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-task-bench/core"
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run one batch under a single strategy",
		ArgsUsage: "<strategy>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"n"},
				Value:   100,
				Usage:   "Batch size",
			},
			&cli.StringFlag{
				Name:    "workload",
				Aliases: []string{"w"},
				Value:   "generic",
				Usage:   "generic, blocking, parallel, reactive or scheduler_compare",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the result as JSON",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one strategy argument", 2)
	}
	kind, err := core.ParseStrategyKind(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.bench.Run(c.Context, kind, c.Int("tasks"), c.String("workload"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Println(res)
	fmt.Printf("lightweight workers: %d, tasks/s: %.1f\n", res.LightweightWorkers(), res.TasksPerSecond())
	for kind, n := range res.Failures {
		fmt.Printf("  %s: %d\n", kind, n)
	}
	return nil
}
