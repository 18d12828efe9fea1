package embedjs

import "github.com/cryguy/embedjs/internal/modules"

// Source is where module files are read from.
type Source = modules.Source

// SourceKind classifies a path as seen by a Source.
type SourceKind = modules.Kind

const (
	KindMissing = modules.KindMissing
	KindFile    = modules.KindFile
	KindDir     = modules.KindDir
)

// SQLiteSource serves modules stored in a SQLite table.
type SQLiteSource = modules.SQLiteSource

// NewOSSource returns a Source over the local filesystem.
func NewOSSource() Source { return modules.NewOSSource() }

// NewSQLiteSource opens a SQLite-backed module store at dsn.
func NewSQLiteSource(dsn string) (*SQLiteSource, error) {
	return modules.NewSQLiteSource(dsn)
}

// ModuleState is a module's lifecycle state.
type ModuleState = modules.State

const (
	ModuleUnloaded = modules.Unloaded
	ModuleLoading  = modules.Loading
	ModuleLoaded   = modules.Loaded
)

// ModuleInfo describes one module cache entry.
type ModuleInfo struct {
	ID       string
	Builtin  bool
	State    ModuleState
	Filename string
}
