package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-task-bench/core"
)

func CompareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Run the same batch under several strategies, one after another",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"n"},
				Value:   100,
				Usage:   "Batch size",
			},
			&cli.StringSliceFlag{
				Name:    "strategy",
				Aliases: []string{"s"},
				Usage:   "Strategy to include (repeatable); defaults to compare.strategies",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print results as JSON",
			},
		},
		Action: compareAction,
	}
}

func compareAction(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	kinds, err := a.cfg.Strategies()
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if names := c.StringSlice("strategy"); len(names) > 0 {
		kinds = kinds[:0]
		for _, name := range names {
			kind, err := core.ParseStrategyKind(name)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			kinds = append(kinds, kind)
		}
	}

	results, err := a.bench.Compare(c.Context, c.Int("tasks"), kinds...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, kind := range kinds {
		if res, ok := results[kind]; ok {
			fmt.Printf("%s (%.1f tasks/s)\n", res, res.TasksPerSecond())
		}
	}
	return nil
}
