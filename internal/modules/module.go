// Package modules implements CommonJS module resolution and the module
// cache independently of any script engine. The engine side only asks for
// the next Step and reports how the body finished.
package modules

import "path/filepath"

// State is a module's position in the Unloaded -> Loading -> Loaded
// lifecycle. Loaded is terminal.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Origin tells built-in modules apart from modules read through a Source.
type Origin int

const (
	OriginFile Origin = iota
	OriginBuiltin
)

func (o Origin) String() string {
	if o == OriginBuiltin {
		return "builtin"
	}
	return "file"
}

// Module is one cache entry. The exports value itself lives in the engine,
// keyed by ID.
type Module struct {
	ID       string
	Origin   Origin
	State    State
	Filename string
	Dirname  string
	// Dirs are searched first when this module requires a bare id.
	Dirs []string
}

// DirsFor returns the resolution directories of a module living in dir.
func DirsFor(dir string) []string {
	return []string{dir, filepath.Join(dir, "node_modules")}
}
