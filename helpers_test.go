package embedjs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestEnv creates an Env rooted at a fresh temp dir. mutate may adjust
// the config before the Env starts.
func newTestEnv(t *testing.T, mutate func(*Config), opts ...Option) (*Env, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.BaseDir = dir
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEnv(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, dir
}

func writeModule(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// evalString runs src and returns its completion value as a string.
func evalString(t *testing.T, e *Env, src string) string {
	t.Helper()
	h, err := e.RunScript(src)
	require.NoError(t, err)
	s, err := e.GetValueString(h)
	require.NoError(t, err)
	return s
}

func evalNumber(t *testing.T, e *Env, src string) float64 {
	t.Helper()
	h, err := e.RunScript(src)
	require.NoError(t, err)
	f, err := e.GetValueDouble(h)
	require.NoError(t, err)
	return f
}

func evalBool(t *testing.T, e *Env, src string) bool {
	t.Helper()
	h, err := e.RunScript(src)
	require.NoError(t, err)
	b, err := e.GetValueBool(h)
	require.NoError(t, err)
	return b
}

// setGlobal publishes h as globalThis[name].
func setGlobal(t *testing.T, e *Env, name string, h Handle) {
	t.Helper()
	g, err := e.GetGlobal()
	require.NoError(t, err)
	require.NoError(t, e.SetNamedProperty(g, name, h))
}

// slotCount reports how many values the engine-side slot table holds.
func slotCount(t *testing.T, e *Env) int {
	t.Helper()
	n, err := e.rt.EvalInt("__embedjs.size()")
	require.NoError(t, err)
	return n
}

func mustString(t *testing.T, e *Env, s string) Handle {
	t.Helper()
	h, err := e.CreateString(s)
	require.NoError(t, err)
	return h
}
