package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/versionize/internal/release"
)

// PlanCommand returns the plan command
func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Show the versions a release would produce without changing anything",
		Flags: []cli.Flag{
			dirFlag,
			verboseFlag,
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format: text, json or yaml",
				Value:   "text",
			},
		},
		Action: runPlan,
	}
}

func runPlan(c *cli.Context) error {
	output := c.String("output")
	switch output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format: %s", output)
	}

	wc, runLog, err := setup(c)
	if err != nil {
		return err
	}
	defer runLog.Close()

	result, err := wc.Plan(context.Background())
	if err != nil {
		return fmt.Errorf("plan failed during %s: %w", result.Stage, err)
	}
	return writePlan(c.App.Writer, output, result)
}

func writePlan(w io.Writer, format string, result *release.Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	}

	if !result.Changed() {
		since := result.Transaction.PreviousTag
		if since == "" {
			since = "the first commit"
		}
		_, err := fmt.Fprintf(w, "Nothing to release since %s\n", since)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tFROM\tTO\tTAG\tCOMMITS")
	for _, r := range result.Releases {
		to := r.To
		if r.Initial {
			to += " (initial)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.Scope, r.From, to, r.Tag, r.CommitCount)
	}
	return tw.Flush()
}
