package modules

import (
	"fmt"
	"os"
	"path/filepath"
)

// Kind classifies a path as seen by a Source.
type Kind int

const (
	KindMissing Kind = iota
	KindFile
	KindDir
)

// Source is the file-access collaborator the resolver probes and the
// loader reads module text through.
type Source interface {
	Stat(path string) Kind
	ReadFile(path string) ([]byte, error)
	// Realpath returns the canonical absolute form of path, used as the
	// module cache key.
	Realpath(path string) (string, error)
}

// OSSource reads modules from the local filesystem.
type OSSource struct{}

func NewOSSource() OSSource { return OSSource{} }

func (OSSource) Stat(path string) Kind {
	info, err := os.Stat(path)
	if err != nil {
		return KindMissing
	}
	if info.IsDir() {
		return KindDir
	}
	if info.Mode().IsRegular() {
		return KindFile
	}
	return KindMissing
}

func (OSSource) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OSSource) Realpath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path of %s: %w", path, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks of %s: %w", abs, err)
	}
	return real, nil
}
