package main

import (
	"encoding/json"
	"os"

	"github.com/urfave/cli/v2"
)

func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:   "report",
		Usage:  "Print a resource and counter report as JSON",
		Action: reportAction,
	}
}

func reportAction(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(a.bench.Report())
}
