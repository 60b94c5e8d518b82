package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/versionize/internal/changelog"
	"github.com/versionize/internal/conventional"
	"github.com/versionize/internal/project"
)

// EnvPrefix marks environment variables read as configuration. Sections are
// separated by a double underscore, e.g. VERSIONIZE_RELEASE__IGNORE_INSIGNIFICANT.
const EnvPrefix = "VERSIONIZE_"

// EnvFile is loaded into the environment before configuration is read.
// Variables already set win.
const EnvFile = ".env"

// DefaultPaths are searched in order when no configuration file is given.
var DefaultPaths = []string{"./versionize.toml", "./.versionize.toml", "$HOME/.config/versionize/versionize.toml"}

// listKeys hold comma separated values when set from the environment.
var listKeys = map[string]bool{
	"discovery.skip_dirs": true,
	"discovery.manifests": true,
}

// Config represents the application configuration
type Config struct {
	Release struct {
		IgnoreInsignificant bool   `koanf:"ignore_insignificant" yaml:"ignore_insignificant"`
		CommitTypes         string `koanf:"commit_types" yaml:"commit_types"`
	} `koanf:"release" yaml:"release"`

	Changelog struct {
		File              string `koanf:"file" yaml:"file"`
		IncludeAllCommits bool   `koanf:"include_all_commits" yaml:"include_all_commits"`
		PerScope          bool   `koanf:"per_scope" yaml:"per_scope"`
	} `koanf:"changelog" yaml:"changelog"`

	Discovery struct {
		VersionFile string   `koanf:"version_file" yaml:"version_file"`
		SkipDirs    []string `koanf:"skip_dirs" yaml:"skip_dirs"`
		Manifests   []string `koanf:"manifests" yaml:"manifests"`
	} `koanf:"discovery" yaml:"discovery"`

	// Identity overrides user.name and user.email from git config for the
	// release commit and tags.
	Identity struct {
		Name  string `koanf:"name" yaml:"name"`
		Email string `koanf:"email" yaml:"email"`
	} `koanf:"identity" yaml:"identity"`

	Log struct {
		Level  string `koanf:"level" yaml:"level"`
		Format string `koanf:"format" yaml:"format"`
		File   string `koanf:"file" yaml:"file"`
	} `koanf:"log" yaml:"log"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"release.ignore_insignificant":  true,
		"release.commit_types":          string(conventional.TypesConventional),
		"changelog.file":                changelog.DefaultFileName,
		"changelog.include_all_commits": false,
		"changelog.per_scope":           false,
		"discovery.version_file":        project.DefaultVersionFile,
		"discovery.skip_dirs":           append([]string{}, project.DefaultSkipDirs...),
		"discovery.manifests":           append([]string{}, project.DefaultManifests...),
		"log.level":                     "info",
		"log.format":                    "console",
	}
}

// LoadConfig loads the configuration from a file, falling back to the
// default locations when configPath is empty. Environment variables
// override both.
func LoadConfig(configPath string) (*Config, error) {
	return load(configPath, DefaultPaths, EnvFile)
}

func load(configPath string, searchPaths []string, envFile string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range searchPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("error loading config %s: %w", path, err)
			}
			break
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// envKey maps VERSIONIZE_CHANGELOG__PER_SCOPE to changelog.per_scope.
func envKey(name, value string) (string, interface{}) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}

const sampleConfig = `# versionize configuration

[release]
# Keep versions unchanged when only chores, docs and the like were committed.
ignore_insignificant = true
# Commit type set: minimal, conventional or falco.
commit_types = "conventional"

[changelog]
file = "CHANGELOG.md"
include_all_commits = false
# Write one changelog next to each version.json instead of one at the root.
per_scope = false

[discovery]
version_file = "version.json"
skip_dirs = [".git", "node_modules", "vendor"]
manifests = ["go.mod", "package.json", "*.csproj", "Cargo.toml", "pyproject.toml"]

# [identity]
# name = "Release Bot"
# email = "release@example.com"

[log]
level = "info"
format = "console"
# file = "versionize.log"
`

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if _, err := conventional.ParseTypeSet(config.Release.CommitTypes); err != nil {
		return err
	}

	if config.Changelog.File == "" {
		return fmt.Errorf("changelog file is required")
	}
	if filepath.Base(config.Changelog.File) != config.Changelog.File {
		return fmt.Errorf("changelog file %q must be a file name, not a path", config.Changelog.File)
	}

	if config.Discovery.VersionFile == "" {
		return fmt.Errorf("discovery version_file is required")
	}
	if filepath.Base(config.Discovery.VersionFile) != config.Discovery.VersionFile {
		return fmt.Errorf("discovery version_file %q must be a file name, not a path", config.Discovery.VersionFile)
	}
	if len(config.Discovery.Manifests) == 0 {
		return fmt.Errorf("at least one discovery manifest pattern is required")
	}
	for _, pattern := range config.Discovery.Manifests {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid manifest pattern %q: %w", pattern, err)
		}
	}

	if (config.Identity.Name == "") != (config.Identity.Email == "") {
		return fmt.Errorf("identity needs both name and email")
	}

	if _, err := zerolog.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", config.Log.Level)
	}
	switch config.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", config.Log.Format)
	}

	return nil
}
