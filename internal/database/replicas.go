package database

import (
	"os"
	"path/filepath"
	"sort"
)

// ReplicaSource reports concurrent on-disk versions of the same logical
// store. The environment that coordinates files decides what counts as
// a conflicting version; the store only reacts.
type ReplicaSource interface {
	// List returns the paths of conflicting replicas, if any.
	List() ([]string, error)
	// Discard removes a replica after it has been merged.
	Discard(path string) error
}

// DirectoryReplicaSource detects conflicting replicas as sibling files
// named `<store>.conflict-*.db`, the convention used by synced-folder
// providers that keep both sides of a concurrent write.
type DirectoryReplicaSource struct {
	storePath string
}

// NewDirectoryReplicaSource returns a source scanning next to storePath.
func NewDirectoryReplicaSource(storePath string) *DirectoryReplicaSource {
	return &DirectoryReplicaSource{storePath: storePath}
}

// List returns conflicting replica paths in stable order.
func (source *DirectoryReplicaSource) List() ([]string, error) {
	pattern := source.storePath + ".conflict-*.db"
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Discard deletes the replica file.
func (source *DirectoryReplicaSource) Discard(path string) error {
	return os.Remove(path)
}
