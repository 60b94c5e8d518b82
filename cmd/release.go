package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// ReleaseCommand returns the release command
func ReleaseCommand() *cli.Command {
	return &cli.Command{
		Name:  "release",
		Usage: "Bump versions, update changelogs, commit and tag every affected project",
		Flags: []cli.Flag{
			dirFlag,
			verboseFlag,
		},
		Action: runRelease,
	}
}

func runRelease(c *cli.Context) error {
	wc, runLog, err := setup(c)
	if err != nil {
		return err
	}
	defer runLog.Close()

	// Interrupts are honoured until files start changing.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := wc.Versionize(ctx)
	if err != nil {
		return fmt.Errorf("release failed during %s: %w", result.Stage, err)
	}

	if !result.Changed() {
		fmt.Fprintln(c.App.Writer, "Nothing to release")
		return nil
	}
	for _, r := range result.Releases {
		fmt.Fprintf(c.App.Writer, "%s %s -> %s (%s)\n", r.Scope, r.From, r.To, r.Tag)
	}
	fmt.Fprintf(c.App.Writer, "Release commit %s\n", shortSHA(result.Transaction.Commit))
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
