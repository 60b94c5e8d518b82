package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/versionize/internal/config"
	"github.com/versionize/internal/conventional"
	"github.com/versionize/internal/gitrepo"
	"github.com/versionize/internal/logging"
	"github.com/versionize/internal/project"
	"github.com/versionize/internal/release"
)

var dirFlag = &cli.StringFlag{
	Name:    "dir",
	Aliases: []string{"C"},
	Usage:   "Run in `DIR`; any directory inside the working copy works",
	Value:   ".",
}

var verboseFlag = &cli.BoolFlag{
	Name:    "verbose",
	Aliases: []string{"v"},
	Usage:   "Log at debug level",
}

// setup loads and validates configuration, starts the run logger and opens
// the working copy. The caller closes the returned logger.
func setup(c *cli.Context) (*release.WorkingCopy, *logging.RunLogger, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Log.Level
	if c.Bool("verbose") {
		level = "debug"
	}
	runLog, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Out:    c.App.ErrWriter,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start logging: %w", err)
	}
	logger := runLog.Logger()

	types, err := conventional.ParseTypeSet(cfg.Release.CommitTypes)
	if err != nil {
		runLog.Close()
		return nil, nil, err
	}

	discoverer := project.NewFileDiscoverer(logger)
	discoverer.VersionFile = cfg.Discovery.VersionFile
	discoverer.Manifests = cfg.Discovery.Manifests
	discoverer.SkipDirs = cfg.Discovery.SkipDirs

	wc, err := release.Discover(c.String("dir"), discoverer, conventional.NewParser(types), logger, optionsFrom(cfg))
	if err != nil {
		runLog.Close()
		return nil, nil, err
	}
	return wc, runLog, nil
}

func optionsFrom(cfg *config.Config) release.Options {
	return release.Options{
		IgnoreInsignificant: cfg.Release.IgnoreInsignificant,
		IncludeAllCommits:   cfg.Changelog.IncludeAllCommits,
		ChangelogFile:       cfg.Changelog.File,
		PerScopeChangelog:   cfg.Changelog.PerScope,
		Identity: gitrepo.Signature{
			Name:  cfg.Identity.Name,
			Email: cfg.Identity.Email,
		},
	}
}
