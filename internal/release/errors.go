package release

import "errors"

var (
	// ErrNoVersionableProjects is returned when discovery finds no project
	// with a valid version record. Nothing is changed.
	ErrNoVersionableProjects = errors.New("no versionable projects")
	// ErrTagExists is returned before any mutation when a release tag the run
	// would create is already present.
	ErrTagExists = errors.New("release tag already exists")
	// ErrPersist wraps failures while writing, staging or committing files.
	// Files and their index entries are restored before it is returned.
	ErrPersist = errors.New("persist release files")
	// ErrTagging wraps tag creation failures. Tags created by the run are
	// removed and the release commit is undone together with its files.
	ErrTagging = errors.New("tag release")
)
