package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load("", nil, "")
	require.NoError(t, err)

	assert.True(t, cfg.Release.IgnoreInsignificant)
	assert.Equal(t, "conventional", cfg.Release.CommitTypes)
	assert.Equal(t, "CHANGELOG.md", cfg.Changelog.File)
	assert.False(t, cfg.Changelog.PerScope)
	assert.Equal(t, "version.json", cfg.Discovery.VersionFile)
	assert.Equal(t, []string{".git", "node_modules", "vendor"}, cfg.Discovery.SkipDirs)
	assert.Contains(t, cfg.Discovery.Manifests, "*.csproj")
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, Validate(cfg))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "versionize.toml", `
[release]
ignore_insignificant = false

[changelog]
file = "HISTORY.md"
per_scope = true

[discovery]
manifests = ["BUILD.bazel"]

[identity]
name = "Release Bot"
email = "release@example.com"
`)

	cfg, err := load(path, nil, "")
	require.NoError(t, err)

	assert.False(t, cfg.Release.IgnoreInsignificant)
	assert.Equal(t, "HISTORY.md", cfg.Changelog.File)
	assert.True(t, cfg.Changelog.PerScope)
	assert.Equal(t, []string{"BUILD.bazel"}, cfg.Discovery.Manifests)
	assert.Equal(t, []string{".git", "node_modules", "vendor"}, cfg.Discovery.SkipDirs)
	assert.Equal(t, "Release Bot", cfg.Identity.Name)
	assert.NoError(t, Validate(cfg))
}

func TestLoadSearchPaths(t *testing.T) {
	dir := t.TempDir()
	second := writeConfig(t, dir, "second.toml", "[changelog]\nfile = \"NOTES.md\"\n")

	cfg, err := load("", []string{filepath.Join(dir, "missing.toml"), second}, "")
	require.NoError(t, err)
	assert.Equal(t, "NOTES.md", cfg.Changelog.File)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.toml"), nil, "")
	require.Error(t, err)
}

func TestLoadBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "versionize.toml", "[release\n")

	_, err := load("", []string{path}, "")
	require.Error(t, err)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("VERSIONIZE_RELEASE__IGNORE_INSIGNIFICANT", "false")
	t.Setenv("VERSIONIZE_CHANGELOG__INCLUDE_ALL_COMMITS", "true")
	t.Setenv("VERSIONIZE_DISCOVERY__SKIP_DIRS", ".git, build ,")
	t.Setenv("VERSIONIZE_IDENTITY__NAME", "CI")

	dir := t.TempDir()
	path := writeConfig(t, dir, "versionize.toml", "[release]\nignore_insignificant = true\n")

	cfg, err := load(path, nil, "")
	require.NoError(t, err)

	assert.False(t, cfg.Release.IgnoreInsignificant)
	assert.True(t, cfg.Changelog.IncludeAllCommits)
	assert.Equal(t, []string{".git", "build"}, cfg.Discovery.SkipDirs)
	assert.Equal(t, "CI", cfg.Identity.Name)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := writeConfig(t, dir, ".env", "VERSIONIZE_LOG__FORMAT=json\nVERSIONIZE_LOG__LEVEL=debug\n")
	// the process environment wins over .env
	t.Setenv("VERSIONIZE_LOG__LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("VERSIONIZE_LOG__FORMAT") })

	cfg, err := load("", nil, envFile)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := load("", nil, filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
}

func TestEnvKey(t *testing.T) {
	key, value := envKey("VERSIONIZE_CHANGELOG__PER_SCOPE", "true")
	assert.Equal(t, "changelog.per_scope", key)
	assert.Equal(t, "true", value)

	key, value = envKey("VERSIONIZE_DISCOVERY__MANIFESTS", "go.mod,*.csproj")
	assert.Equal(t, "discovery.manifests", key)
	assert.Equal(t, []string{"go.mod", "*.csproj"}, value)
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versionize.toml")
	require.NoError(t, InitConfig(path))

	cfg, err := load(path, nil, "")
	require.NoError(t, err)
	assert.NoError(t, Validate(cfg))

	err = InitConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown commit types", func(c *Config) { c.Release.CommitTypes = "angular" }, "unknown commit type set"},
		{"empty changelog", func(c *Config) { c.Changelog.File = "" }, "changelog file is required"},
		{"changelog path", func(c *Config) { c.Changelog.File = "docs/CHANGELOG.md" }, "must be a file name"},
		{"empty version file", func(c *Config) { c.Discovery.VersionFile = "" }, "version_file is required"},
		{"no manifests", func(c *Config) { c.Discovery.Manifests = nil }, "manifest pattern is required"},
		{"bad manifest glob", func(c *Config) { c.Discovery.Manifests = []string{"[go.mod"} }, "invalid manifest pattern"},
		{"half identity", func(c *Config) { c.Identity.Name = "Bot" }, "both name and email"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load("", nil, "")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
