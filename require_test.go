package embedjs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequire_ReturnsSameExportsTwice(t *testing.T) {
	e, dir := newTestEnv(t, nil)
	writeModule(t, dir, "counter.js", `globalThis.count = (globalThis.count || 0) + 1; module.exports = { n: 1 };`)

	first, err := e.Require("./counter")
	require.NoError(t, err)
	second, err := e.Require("./counter.js")
	require.NoError(t, err)

	same, err := e.StrictEquals(first, second)
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, 1.0, evalNumber(t, e, "globalThis.count"))
	assert.True(t, evalBool(t, e, "require('./counter') === require('./counter.js')"))
}

func TestRequire_CycleSeesPartialExports(t *testing.T) {
	e, dir := newTestEnv(t, nil)
	writeModule(t, dir, "a.js", `exports.early = true; var b = require('./b'); exports.bSawEarly = b.sawEarly; exports.done = true;`)
	writeModule(t, dir, "b.js", `var a = require('./a'); exports.sawEarly = a.early === true; exports.sawDone = a.done === true;`)

	a, err := e.Require("./a")
	require.NoError(t, err)
	setGlobal(t, e, "a", a)
	assert.True(t, evalBool(t, e, "a.bSawEarly"))
	assert.True(t, evalBool(t, e, "a.done"))
	assert.False(t, evalBool(t, e, "require('./b').sawDone"))

	for _, m := range e.Modules() {
		assert.Equal(t, ModuleLoaded, m.State, m.ID)
	}
}

func TestRequire_NotFound(t *testing.T) {
	e, _ := newTestEnv(t, nil)
	before := e.Modules()

	_, err := e.Require("./nope")
	assert.True(t, errors.Is(err, ErrModuleNotFound))
	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "./nope", be.ID)
	assert.Contains(t, be.Msg, "./nope")
	assert.Equal(t, before, e.Modules())

	pending, err := e.IsExceptionPending()
	require.NoError(t, err)
	assert.False(t, pending)

	_, err = e.Require("")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestRequire_NestedNotFoundIsCatchable(t *testing.T) {
	e, dir := newTestEnv(t, nil)
	writeModule(t, dir, "outer.js", `require('./inner-missing');`)

	got := evalString(t, e, `(function(){
		try { require('./outer'); return 'loaded'; }
		catch (e) { return e.code + ':' + e.moduleId; }
	})()`)
	assert.Equal(t, "MODULE_NOT_FOUND:./inner-missing", got)

	// A missing dependency is the dependent's failure, not a lookup miss.
	_, err := e.Require("./outer")
	assert.True(t, errors.Is(err, ErrPendingException))
	_, err = e.GetAndClearLastException()
	require.NoError(t, err)

	for _, m := range e.Modules() {
		assert.NotEqual(t, "outer.js", filepath.Base(m.Filename))
	}
}

func TestRequire_FailedModuleCanRetry(t *testing.T) {
	e, dir := newTestEnv(t, nil)
	writeModule(t, dir, "flaky.js", `if (!globalThis.ready) throw new Error('not ready'); module.exports = 'ok';`)

	_, err := e.Require("./flaky")
	assert.True(t, errors.Is(err, ErrPendingException))
	exc, err := e.GetAndClearLastException()
	require.NoError(t, err)
	setGlobal(t, e, "exc", exc)
	assert.Equal(t, "not ready", evalString(t, e, "exc.message"))

	_, err = e.RunScript("globalThis.ready = true")
	require.NoError(t, err)
	h, err := e.Require("./flaky")
	require.NoError(t, err)
	s, err := e.GetValueString(h)
	require.NoError(t, err)
	assert.Equal(t, "ok", s)
}

func TestRequire_DepthLimit(t *testing.T) {
	e, dir := newTestEnv(t, func(c *Config) { c.MaxRequireDepth = 2 })
	writeModule(t, dir, "one.js", `module.exports = require('./two');`)
	writeModule(t, dir, "two.js", `module.exports = require('./three');`)
	writeModule(t, dir, "three.js", `module.exports = 3;`)
	before := e.Modules()

	_, err := e.Require("./one")
	assert.True(t, errors.Is(err, ErrResourceExhaustion))
	assert.Equal(t, before, e.Modules())
	assert.Equal(t, 0, e.loader.Depth())

	h, err := e.Require("./two")
	require.NoError(t, err)
	n, err := e.GetValueInt32(h)
	require.NoError(t, err)
	assert.Equal(t, int32(3), n)
}

func TestRequire_ModuleScope(t *testing.T) {
	e, dir := newTestEnv(t, nil)
	path := writeModule(t, dir, "lib/info.js", `module.exports = {
		filename: __filename,
		dirname: __dirname,
		id: module.id,
		self: require.resolve('./info'),
		cached: require.cache.has(module.id)
	};`)
	canonical, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)

	h, err := e.Require("./lib/info")
	require.NoError(t, err)
	setGlobal(t, e, "info", h)
	assert.Equal(t, canonical, evalString(t, e, "info.filename"))
	assert.Equal(t, filepath.Dir(canonical), evalString(t, e, "info.dirname"))
	assert.Equal(t, canonical, evalString(t, e, "info.id"))
	assert.Equal(t, canonical, evalString(t, e, "info.self"))
	assert.True(t, evalBool(t, e, "info.cached"))
}

func TestRequire_Formats(t *testing.T) {
	e, dir := newTestEnv(t, nil)
	writeModule(t, dir, "data.json", `{"name": "embed", "tags": [1, 2]}`)
	writeModule(t, dir, "esm.mjs", "export const x = 1;\nexport default 2;\n")
	writeModule(t, dir, "typed.ts", "export function double(n: number): number { return n * 2 }\n")
	writeModule(t, dir, "bin.js", "#!/usr/bin/env embedjs\nmodule.exports = 'shebang';\n")

	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write([]byte(`module.exports = 'compressed';`))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "packed.js.br"), buf.Bytes(), 0o644))

	assert.Equal(t, "embed:2", evalString(t, e, "var d = require('./data.json'); d.name + ':' + d.tags.length"))
	assert.Equal(t, 3.0, evalNumber(t, e, "var m = require('./esm.mjs'); m.x + m.default"))
	assert.Equal(t, 8.0, evalNumber(t, e, "require('./typed').double(4)"))
	assert.Equal(t, "shebang", evalString(t, e, "require('./bin')"))
	assert.Equal(t, "compressed", evalString(t, e, "require('./packed')"))
}

func TestRequire_PackageMainAndDefaultDirs(t *testing.T) {
	libs := t.TempDir()
	writeModule(t, libs, "greet/package.json", `{"main": "lib/entry"}`)
	writeModule(t, libs, "greet/lib/entry.js", `module.exports = function(n) { return 'hi ' + n; };`)
	writeModule(t, libs, "solo/index.js", `module.exports = 'solo';`)

	e, dir := newTestEnv(t, func(c *Config) { c.ModuleDirs = []string{libs} })
	writeModule(t, dir, "node_modules/solo/index.js", `module.exports = 'local solo';`)
	writeModule(t, dir, "app.js", `module.exports = require('solo');`)

	assert.Equal(t, "hi bob", evalString(t, e, "require('greet')('bob')"))
	assert.Equal(t, "solo", evalString(t, e, "require('solo')"), "top level searches default dirs")
	assert.Equal(t, "local solo", evalString(t, e, "require('./app')"), "a module's own dirs come first")
}

func TestRequire_Builtins(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	assert.True(t, evalBool(t, e, "require('buffer').Buffer === Buffer"))
	assert.Equal(t, runtime.GOOS, evalString(t, e, "require('process').platform"))
	assert.Equal(t, engineName, evalString(t, e, "require('process').engine"))

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, evalString(t, e, "require('process').cwd()"))

	assert.Equal(t, "ERR_ASSERTION", evalString(t, e, `(function(){
		var assert = require('assert');
		assert.strictEqual(1, 1);
		assert.deepStrictEqual({a: [1]}, {a: [1]});
		assert.throws(function() { throw new TypeError('x'); }, TypeError);
		try { assert.equal(1, 2); } catch (e) { return e.code; }
		return 'no error';
	})()`))

	var builtins []string
	for _, m := range e.Modules() {
		if m.Builtin {
			builtins = append(builtins, m.ID)
			assert.Equal(t, ModuleLoaded, m.State)
		}
	}
	assert.Equal(t, BuiltinNames(), builtins)
}

func TestRequire_DefaultBuiltinTable(t *testing.T) {
	assert.Equal(t, []string{"buffer", "console", "assert", "process"}, BuiltinNames()[:4])

	e, _ := newTestEnv(t, func(c *Config) { c.Builtins = []string{"process", "buffer"} })
	assert.Equal(t, "buffer,process", evalString(t, e, "require('process').builtin_modules.join(',')"))
}

func TestRequire_BuiltinFilter(t *testing.T) {
	e, _ := newTestEnv(t, func(c *Config) { c.Builtins = []string{"assert"} })

	_, err := e.Require("process")
	assert.True(t, errors.Is(err, ErrModuleNotFound))
	_, err = e.Require("assert")
	assert.NoError(t, err)
}

func TestRequire_BuiltinShadowing(t *testing.T) {
	for _, shadow := range []bool{false, true} {
		e, dir := newTestEnv(t, func(c *Config) { c.BuiltinShadowing = shadow })
		writeModule(t, dir, "node_modules/assert.js", `module.exports = 'shadow';`)
		writeModule(t, dir, "main.js", `module.exports = typeof require('assert');`)

		want := "function"
		if shadow {
			want = "string"
		}
		assert.Equal(t, want, evalString(t, e, "require('./main')"), "shadowing=%v", shadow)
		assert.Equal(t, "function", evalString(t, e, "typeof require('assert')"), "top level always gets the built-in")
		assert.Equal(t, "shadow", evalString(t, e, "require('./node_modules/assert')"), "path-like ids never name built-ins")
	}
}

func TestRequire_RunMainAndResolve(t *testing.T) {
	e, dir := newTestEnv(t, nil)
	main := writeModule(t, dir, "main.js", `Promise.resolve().then(function() { globalThis.tick = 'done'; }); module.exports = 'main';`)
	canonical, err := filepath.EvalSymlinks(main)
	require.NoError(t, err)

	h, err := e.RunMain("main.js")
	require.NoError(t, err)
	s, err := e.GetValueString(h)
	require.NoError(t, err)
	assert.Equal(t, "main", s)
	assert.Equal(t, "done", evalString(t, e, "globalThis.tick"))

	key, err := e.Resolve("./main")
	require.NoError(t, err)
	assert.Equal(t, canonical, key)

	key, err = e.Resolve("assert")
	require.NoError(t, err)
	assert.Equal(t, "assert", key)

	_, err = e.Resolve("./absent")
	assert.True(t, errors.Is(err, ErrModuleNotFound))

	_, err = e.RunMain("absent.js")
	assert.True(t, errors.Is(err, ErrModuleNotFound))
}

func TestRequire_SQLiteSource(t *testing.T) {
	store, err := NewSQLiteSource(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Put("/app/main.js", []byte(`module.exports = require('./lib/util').twice(21);`)))
	require.NoError(t, store.Put("/app/lib/util.js", []byte(`exports.twice = function(n) { return n * 2; };`)))

	e, _ := newTestEnv(t, func(c *Config) { c.BaseDir = "/app" }, WithSource(store))

	h, err := e.RunMain("main.js")
	require.NoError(t, err)
	n, err := e.GetValueInt32(h)
	require.NoError(t, err)
	assert.Equal(t, int32(42), n)

	key, err := e.Resolve("./lib/util")
	require.NoError(t, err)
	assert.Equal(t, "/app/lib/util.js", key)
}
