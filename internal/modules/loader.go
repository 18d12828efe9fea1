package modules

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// StepStatus tells the engine glue what to do next with a require call.
type StepStatus string

const (
	StepCached    StepStatus = "cached"
	StepLoad      StepStatus = "load"
	StepResolved  StepStatus = "resolved"
	StepNotFound  StepStatus = "notfound"
	StepExhausted StepStatus = "exhausted"
	StepError     StepStatus = "error"
)

// Step is the loader's answer to one require or require.resolve call. It
// crosses into script as JSON.
type Step struct {
	Status   StepStatus `json:"s"`
	Key      string     `json:"key,omitempty"`
	Filename string     `json:"filename,omitempty"`
	Dirname  string     `json:"dirname,omitempty"`
	Paths    []string   `json:"paths,omitempty"`
	Format   Format     `json:"format,omitempty"`
	Source   string     `json:"source,omitempty"`
	Msg      string     `json:"msg,omitempty"`
}

// Loader drives the module state machine over a Cache, a Resolver and a
// Source. Body execution itself is left to the engine.
type Loader struct {
	cache    *Cache
	resolver *Resolver
	src      Source
	maxDepth int
	log      *zap.Logger

	// loading holds the keys of bodies currently executing, innermost last.
	loading []string
}

// NewLoader builds a loader. Built-in detection is wired to the cache, so
// opts.IsBuiltin is ignored.
func NewLoader(src Source, opts Options, maxDepth int, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Loader{cache: NewCache(), src: src, maxDepth: maxDepth, log: log}
	opts.IsBuiltin = l.isBuiltin
	l.resolver = NewResolver(src, opts)
	return l
}

func (l *Loader) Cache() *Cache       { return l.cache }
func (l *Loader) Resolver() *Resolver { return l.resolver }

// Depth is the number of module bodies currently executing.
func (l *Loader) Depth() int { return len(l.loading) }

func (l *Loader) isBuiltin(name string) bool {
	m, ok := l.cache.Get(name)
	return ok && m.Origin == OriginBuiltin
}

// BeginBuiltin registers name as a built-in in Loading state. The caller
// populates its exports and then calls Settle.
func (l *Loader) BeginBuiltin(name string) error {
	if _, ok := l.cache.Get(name); ok {
		return fmt.Errorf("built-in module %q already registered", name)
	}
	l.cache.Put(&Module{ID: name, Origin: OriginBuiltin, State: Loading, Filename: name})
	return nil
}

// Require resolves id against parentKey ("" for the top level) and either
// reports a cached module or marks a new one Loading and returns its
// prepared source. The cache is untouched on failure.
func (l *Loader) Require(parentKey, id string) Step {
	res, step, ok := l.resolve(parentKey, id)
	if !ok {
		return step
	}
	if m, ok := l.cache.Get(res.Key); ok {
		l.log.Debug("module cache hit", zap.String("id", id), zap.String("key", m.ID), zap.Stringer("state", m.State))
		return Step{Status: StepCached, Key: m.ID}
	}
	if res.Builtin {
		return Step{Status: StepError, Msg: fmt.Sprintf("built-in module %q is not loaded", id)}
	}
	if l.maxDepth > 0 && len(l.loading) >= l.maxDepth {
		return Step{Status: StepExhausted, Msg: fmt.Sprintf("require depth exceeds %d loading '%s'", l.maxDepth, id)}
	}

	raw, err := l.src.ReadFile(res.Filename)
	if err != nil {
		return Step{Status: StepError, Msg: fmt.Sprintf("reading %s: %v", res.Filename, err)}
	}
	source, format, err := Prepare(res.Filename, raw)
	if err != nil {
		return Step{Status: StepError, Msg: err.Error()}
	}

	dirname := filepath.Dir(res.Filename)
	m := &Module{
		ID:       res.Key,
		Origin:   OriginFile,
		State:    Loading,
		Filename: res.Filename,
		Dirname:  dirname,
		Dirs:     DirsFor(dirname),
	}
	l.cache.Put(m)
	l.loading = append(l.loading, m.ID)
	l.log.Debug("loading module", zap.String("id", id), zap.String("key", m.ID), zap.String("format", string(format)))

	return Step{
		Status:   StepLoad,
		Key:      m.ID,
		Filename: m.Filename,
		Dirname:  m.Dirname,
		Paths:    m.Dirs,
		Format:   format,
		Source:   source,
	}
}

// Lookup resolves id without loading anything.
func (l *Loader) Lookup(parentKey, id string) Step {
	res, step, ok := l.resolve(parentKey, id)
	if !ok {
		return step
	}
	return Step{Status: StepResolved, Key: res.Key, Filename: res.Filename}
}

func (l *Loader) resolve(parentKey, id string) (Resolution, Step, bool) {
	var parent *Module
	if parentKey != "" {
		parent, _ = l.cache.Get(parentKey)
	}
	res, err := l.resolver.Resolve(parent, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			l.log.Debug("module not found", zap.String("id", id), zap.String("parent", parentKey))
			return Resolution{}, Step{Status: StepNotFound, Msg: err.Error()}, false
		}
		return Resolution{}, Step{Status: StepError, Msg: err.Error()}, false
	}
	return res, Step{}, true
}

// Settle records how the body of key finished. A failed module is removed
// so a later require can retry it.
func (l *Loader) Settle(key string, loaded bool) {
	if n := len(l.loading); n > 0 && l.loading[n-1] == key {
		l.loading = l.loading[:n-1]
	}
	m, ok := l.cache.Get(key)
	if !ok {
		return
	}
	if loaded {
		m.State = Loaded
		return
	}
	l.log.Debug("module body failed", zap.String("key", key))
	l.cache.Remove(key)
}

// Rollback drops every module still Loading above depth and returns their
// keys. It recovers from bodies whose completion was never reported.
func (l *Loader) Rollback(depth int) []string {
	var dropped []string
	for len(l.loading) > depth {
		n := len(l.loading) - 1
		key := l.loading[n]
		l.loading = l.loading[:n]
		if m, ok := l.cache.Get(key); ok && m.State == Loading {
			l.cache.Remove(key)
			dropped = append(dropped, key)
		}
	}
	return dropped
}
