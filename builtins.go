package embedjs

import (
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ModuleInit populates a native built-in. It receives a fresh exports
// object and returns the value to publish; the zero Handle publishes
// exports itself.
type ModuleInit func(env *Env, exports Handle) (Handle, error)

// Builtin is one entry of the built-in module table. Exactly one of Init
// and Source is set; Source is a CommonJS module body.
type Builtin struct {
	Name   string
	Init   ModuleInit
	Source string
}

var (
	builtinMu    sync.RWMutex
	builtinTable []Builtin
)

// The defaults are set in init because initProcess reads builtinTable.
func init() {
	builtinTable = []Builtin{
		{Name: "buffer", Source: bufferModuleJS},
		{Name: "console", Source: consoleModuleJS},
		{Name: "assert", Source: assertModuleJS},
		{Name: "process", Init: initProcess},
	}
}

// RegisterBuiltin appends b to the built-in table. Environments created
// afterwards load it. It panics on a malformed entry or a duplicate name.
func RegisterBuiltin(b Builtin) {
	if b.Name == "" || strings.HasPrefix(b.Name, ".") || strings.HasPrefix(b.Name, "/") {
		panic(fmt.Sprintf("embedjs: invalid built-in module name %q", b.Name))
	}
	if (b.Init == nil) == (b.Source == "") {
		panic(fmt.Sprintf("embedjs: built-in module %q needs exactly one of Init and Source", b.Name))
	}
	builtinMu.Lock()
	defer builtinMu.Unlock()
	for _, existing := range builtinTable {
		if existing.Name == b.Name {
			panic(fmt.Sprintf("embedjs: built-in module %q registered twice", b.Name))
		}
	}
	builtinTable = append(builtinTable, b)
}

// BuiltinNames lists the registered built-in modules in load order.
func BuiltinNames() []string {
	builtinMu.RLock()
	defer builtinMu.RUnlock()
	names := make([]string, len(builtinTable))
	for i, b := range builtinTable {
		names[i] = b.Name
	}
	return names
}

// enabledBuiltins returns the registered built-ins this Env loads.
func (e *Env) enabledBuiltins() []string {
	var names []string
	for _, n := range BuiltinNames() {
		if len(e.cfg.Builtins) == 0 || slices.Contains(e.cfg.Builtins, n) {
			names = append(names, n)
		}
	}
	return names
}

func (e *Env) loadBuiltins() error {
	builtinMu.RLock()
	table := slices.Clone(builtinTable)
	builtinMu.RUnlock()

	for _, b := range table {
		if len(e.cfg.Builtins) > 0 && !slices.Contains(e.cfg.Builtins, b.Name) {
			continue
		}
		if err := e.loadBuiltin(b); err != nil {
			return fmt.Errorf("loading built-in %q: %w", b.Name, err)
		}
		e.log.Debug("built-in loaded", zap.String("name", b.Name))
	}
	return nil
}

func (e *Env) loadBuiltin(b Builtin) error {
	if err := e.loader.BeginBuiltin(b.Name); err != nil {
		return err
	}
	var err error
	if b.Source != "" {
		_, err = e.run("loadBuiltin", "N.defineBuiltin("+jsString(b.Name)+","+jsString(b.Source)+");return 'o';")
	} else {
		err = e.initBuiltin(b)
	}
	if err != nil {
		e.loader.Settle(b.Name, false)
		return err
	}
	e.loader.Settle(b.Name, true)
	return nil
}

func (e *Env) initBuiltin(b Builtin) error {
	scope := e.OpenScope()
	defer scope.Close()

	exports, err := e.CreateObject()
	if err != nil {
		return err
	}
	result, err := b.Init(e, exports)
	if err != nil {
		return err
	}
	if result.IsZero() {
		result = exports
	}
	ref, err := e.ref("loadBuiltin", result)
	if err != nil {
		return err
	}
	_, err = e.run("loadBuiltin", "N.setBuiltin("+jsString(b.Name)+","+ref+");return 'o';")
	return err
}

const bufferModuleJS = `module.exports = { Buffer: __embedjs.Buffer, kMaxLength: 0x7fffffff };`

const consoleModuleJS = `module.exports = __embedjs.console;`

const assertModuleJS = `
var inspect = function(v) {
	try { var s = JSON.stringify(v); if (s !== undefined) return s; } catch (e) {}
	return String(v);
};

class AssertionError extends Error {
	constructor(options) {
		super(options.message);
		this.name = 'AssertionError';
		this.code = 'ERR_ASSERTION';
		this.actual = options.actual;
		this.expected = options.expected;
		this.operator = options.operator;
		this.generatedMessage = !options.userMessage;
	}
}

function fail(actual, expected, message, operator, defaultMessage) {
	if (message instanceof Error) throw message;
	throw new AssertionError({
		message: message !== undefined ? message : defaultMessage,
		userMessage: message !== undefined,
		actual: actual,
		expected: expected,
		operator: operator
	});
}

function isDeepStrictEqual(a, b) {
	if (Object.is(a, b)) return true;
	if (typeof a !== 'object' || typeof b !== 'object' || a === null || b === null) return false;
	if (Object.getPrototypeOf(a) !== Object.getPrototypeOf(b)) return false;
	if (a instanceof Date) return a.getTime() === b.getTime();
	if (ArrayBuffer.isView(a)) {
		if (a.length !== b.length) return false;
		for (var i = 0; i < a.length; i++) if (!Object.is(a[i], b[i])) return false;
		return true;
	}
	var ka = Object.keys(a), kb = Object.keys(b);
	if (ka.length !== kb.length) return false;
	for (var j = 0; j < ka.length; j++) {
		if (!Object.prototype.hasOwnProperty.call(b, ka[j])) return false;
		if (!isDeepStrictEqual(a[ka[j]], b[ka[j]])) return false;
	}
	return true;
}

function ok(value, message) {
	if (!value) fail(value, true, message, '==', 'The expression evaluated to a falsy value: ' + inspect(value));
}

var assert = function(value, message) { ok(value, message); };
assert.ok = ok;
assert.AssertionError = AssertionError;
assert.fail = function(message) { fail(undefined, undefined, message === undefined ? 'Failed' : message, 'fail'); };
assert.equal = function(actual, expected, message) {
	if (!(actual == expected || (actual !== actual && expected !== expected))) {
		fail(actual, expected, message, '==', inspect(actual) + ' == ' + inspect(expected));
	}
};
assert.notEqual = function(actual, expected, message) {
	if (actual == expected) fail(actual, expected, message, '!=', inspect(actual) + ' != ' + inspect(expected));
};
assert.strictEqual = function(actual, expected, message) {
	if (!Object.is(actual, expected)) {
		fail(actual, expected, message, 'strictEqual', 'Expected values to be strictly equal: ' + inspect(actual) + ' !== ' + inspect(expected));
	}
};
assert.notStrictEqual = function(actual, expected, message) {
	if (Object.is(actual, expected)) {
		fail(actual, expected, message, 'notStrictEqual', 'Expected "actual" to be strictly unequal to: ' + inspect(expected));
	}
};
assert.deepStrictEqual = function(actual, expected, message) {
	if (!isDeepStrictEqual(actual, expected)) {
		fail(actual, expected, message, 'deepStrictEqual', 'Expected values to be strictly deep-equal: ' + inspect(actual) + ' vs ' + inspect(expected));
	}
};
assert.notDeepStrictEqual = function(actual, expected, message) {
	if (isDeepStrictEqual(actual, expected)) {
		fail(actual, expected, message, 'notDeepStrictEqual', 'Expected "actual" not to be strictly deep-equal to: ' + inspect(expected));
	}
};
assert.throws = function(fn, expected, message) {
	if (typeof fn !== 'function') throw new TypeError('The "fn" argument must be a function');
	if (typeof expected === 'string') { message = expected; expected = undefined; }
	try {
		fn();
	} catch (err) {
		if (typeof expected === 'function' && expected.prototype !== undefined && !(err instanceof expected)) throw err;
		if (expected instanceof RegExp && !expected.test(String(err && err.message !== undefined ? err.message : err))) throw err;
		return;
	}
	fail(undefined, expected, message, 'throws', 'Missing expected exception.');
};
assert.strict = assert;

module.exports = assert;
`

// initProcess publishes platform facts about the host.
func initProcess(env *Env, exports Handle) (Handle, error) {
	set := func(name string, h Handle, err error) error {
		if err != nil {
			return err
		}
		return env.SetNamedProperty(exports, name, h)
	}

	h, err := env.CreateString(runtime.GOOS)
	if err := set("platform", h, err); err != nil {
		return Handle{}, err
	}
	h, err = env.CreateString(runtime.GOARCH)
	if err := set("arch", h, err); err != nil {
		return Handle{}, err
	}
	h, err = env.CreateString(engineName)
	if err := set("engine", h, err); err != nil {
		return Handle{}, err
	}

	vars, err := env.CreateObject()
	if err != nil {
		return Handle{}, err
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vh, err := env.CreateString(v)
		if err != nil {
			return Handle{}, err
		}
		if err := env.SetNamedProperty(vars, k, vh); err != nil {
			return Handle{}, err
		}
	}
	if err := env.SetNamedProperty(exports, "env", vars); err != nil {
		return Handle{}, err
	}

	cwd, err := env.CreateFunction("cwd", func(env *Env, _ *CallbackInfo) (Handle, error) {
		dir, err := os.Getwd()
		if err != nil {
			return Handle{}, err
		}
		return env.CreateString(dir)
	}, nil)
	if err := set("cwd", cwd, err); err != nil {
		return Handle{}, err
	}

	names := env.enabledBuiltins()
	list, err := env.CreateArrayWithLength(len(names))
	if err != nil {
		return Handle{}, err
	}
	for i, name := range names {
		nh, err := env.CreateString(name)
		if err != nil {
			return Handle{}, err
		}
		if err := env.SetElement(list, uint32(i), nh); err != nil {
			return Handle{}, err
		}
	}
	if err := env.SetNamedProperty(exports, "builtin_modules", list); err != nil {
		return Handle{}, err
	}
	return Handle{}, nil
}
