package project

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// Discoverer finds the versionable projects under a working tree root.
type Discoverer interface {
	Discover(root string) ([]*Project, error)
}

// DefaultVersionFile is the version record file name.
const DefaultVersionFile = "version.json"

// DefaultManifests are the project manifests accepted next to a version record.
var DefaultManifests = []string{"go.mod", "package.json", "*.csproj", "Cargo.toml", "pyproject.toml"}

// DefaultSkipDirs are directory names never descended into.
var DefaultSkipDirs = []string{".git", "node_modules", "vendor"}

// FileDiscoverer walks the file system for version records. Records that fail
// to load are logged with their reason and left out.
type FileDiscoverer struct {
	VersionFile string
	Manifests   []string
	SkipDirs    []string
	Logger      zerolog.Logger
}

// NewFileDiscoverer returns a FileDiscoverer with the default file names.
func NewFileDiscoverer(logger zerolog.Logger) *FileDiscoverer {
	return &FileDiscoverer{
		VersionFile: DefaultVersionFile,
		Manifests:   append([]string{}, DefaultManifests...),
		SkipDirs:    append([]string{}, DefaultSkipDirs...),
		Logger:      logger,
	}
}

// Discover returns the loadable projects under root in path order. Only walk
// failures are returned as errors.
func (d *FileDiscoverer) Discover(root string) ([]*Project, error) {
	paths, err := d.versionFiles(root)
	if err != nil {
		return nil, err
	}

	var projects []*Project
	for _, path := range paths {
		p, err := Load(path, d.Manifests)
		if err != nil {
			d.logExclusion(err)
			continue
		}
		d.Logger.Debug().
			Str("scope", p.Scope()).
			Str("version", p.Version().String()).
			Str("manifest", p.ManifestFile()).
			Msg("discovered project")
		projects = append(projects, p)
	}
	return projects, nil
}

func (d *FileDiscoverer) versionFiles(root string) ([]string, error) {
	name := d.VersionFile
	if name == "" {
		name = DefaultVersionFile
	}
	skip := make(map[string]bool, len(d.SkipDirs))
	for _, dir := range d.SkipDirs {
		skip[dir] = true
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != root && skip[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.Name() == name {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (d *FileDiscoverer) logExclusion(err error) {
	event := d.Logger.Warn().Err(err)
	var excl *ExclusionError
	if errors.As(err, &excl) {
		event = event.Str("path", excl.Path)
	}
	switch {
	case errors.Is(err, ErrMissingManifest):
		event.Msg("skipping version record without project manifest")
	case errors.Is(err, ErrInvalidVersionRecord):
		event.Msg("skipping invalid version record")
	default:
		event.Msg("skipping version record")
	}
}
