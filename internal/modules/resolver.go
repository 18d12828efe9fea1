package modules

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNotFound is wrapped by Resolve when no candidate path exists.
var ErrNotFound = errors.New("module not found")

// DefaultExtensions are tried, in order, after the exact path.
var DefaultExtensions = []string{".js", ".json", ".mjs", ".cjs", ".ts", ".js.br"}

// Options configure a Resolver.
type Options struct {
	// BaseDir anchors relative ids required from the top level.
	BaseDir string
	// DefaultDirs are searched after the requesting module's own dirs.
	DefaultDirs []string
	Extensions  []string
	// BuiltinShadowing lets a file in the parent's own dirs override a
	// built-in of the same name.
	BuiltinShadowing bool
	IsBuiltin        func(name string) bool
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	Key      string
	Filename string
	Builtin  bool
}

type Resolver struct {
	src  Source
	opts Options
}

func NewResolver(src Source, opts Options) *Resolver {
	if opts.Extensions == nil {
		opts.Extensions = DefaultExtensions
	}
	if opts.IsBuiltin == nil {
		opts.IsBuiltin = func(string) bool { return false }
	}
	return &Resolver{src: src, opts: opts}
}

// Resolve maps id, required from parent (nil at the top level), to a
// canonical cache key.
func (r *Resolver) Resolve(parent *Module, id string) (Resolution, error) {
	if id == "" {
		return Resolution{}, fmt.Errorf("empty module id")
	}
	pathLike := isPathLike(id)

	if !pathLike && r.opts.IsBuiltin(id) {
		if r.opts.BuiltinShadowing && parent != nil && parent.Origin == OriginFile {
			for _, dir := range parent.Dirs {
				if file, ok := r.probe(filepath.Join(dir, id)); ok {
					return r.fileResolution(file)
				}
			}
		}
		return Resolution{Key: id, Filename: id, Builtin: true}, nil
	}

	for _, cand := range r.Candidates(parent, id) {
		if file, ok := r.probe(cand); ok {
			return r.fileResolution(file)
		}
	}
	return Resolution{}, fmt.Errorf("%w: cannot find module '%s'", ErrNotFound, id)
}

// Candidates lists the base paths probed for id, in order.
func (r *Resolver) Candidates(parent *Module, id string) []string {
	if isRelative(id) {
		base := r.opts.BaseDir
		if parent != nil && parent.Origin == OriginFile {
			base = parent.Dirname
		}
		return []string{filepath.Join(base, id)}
	}
	if filepath.IsAbs(id) {
		return []string{filepath.Clean(id)}
	}

	var dirs []string
	if parent != nil && parent.Origin == OriginFile {
		dirs = append(dirs, parent.Dirs...)
	}
	dirs = append(dirs, r.opts.DefaultDirs...)
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, filepath.Join(d, id))
	}
	return out
}

func (r *Resolver) fileResolution(file string) (Resolution, error) {
	key, err := r.src.Realpath(file)
	if err != nil {
		return Resolution{}, fmt.Errorf("canonicalizing %s: %w", file, err)
	}
	return Resolution{Key: key, Filename: key}, nil
}

// probe tries path as a file, then with each extension, then as a
// directory entry point.
func (r *Resolver) probe(path string) (string, bool) {
	kind := r.src.Stat(path)
	if kind == KindFile {
		return path, true
	}
	if file, ok := r.probeExtensions(path); ok {
		return file, true
	}
	if kind == KindDir {
		return r.probeDir(path)
	}
	return "", false
}

func (r *Resolver) probeExtensions(path string) (string, bool) {
	for _, ext := range r.opts.Extensions {
		if r.src.Stat(path+ext) == KindFile {
			return path + ext, true
		}
	}
	return "", false
}

func (r *Resolver) probeDir(dir string) (string, bool) {
	if main := r.packageMain(dir); main != "" {
		target := filepath.Join(dir, main)
		kind := r.src.Stat(target)
		if kind == KindFile {
			return target, true
		}
		if file, ok := r.probeExtensions(target); ok {
			return file, true
		}
		if kind == KindDir {
			if file, ok := r.probeExtensions(filepath.Join(target, "index")); ok {
				return file, true
			}
		}
	}
	return r.probeExtensions(filepath.Join(dir, "index"))
}

func (r *Resolver) packageMain(dir string) string {
	manifest := filepath.Join(dir, "package.json")
	if r.src.Stat(manifest) != KindFile {
		return ""
	}
	data, err := r.src.ReadFile(manifest)
	if err != nil {
		return ""
	}
	var pkg struct {
		Main string `json:"main"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Main
}

func isRelative(id string) bool {
	return id == "." || id == ".." || strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../")
}

func isPathLike(id string) bool {
	return isRelative(id) || filepath.IsAbs(id)
}
