package embedjs

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cryguy/embedjs/internal/bootstrap"
	"github.com/cryguy/embedjs/internal/core"
	"github.com/cryguy/embedjs/internal/modules"
	"go.uber.org/zap"
)

// maxNesting bounds how deeply bridge calls may re-enter the engine
// through native functions.
const maxNesting = 256

// mapGlobal is the scratch global a backing store is parked on while the
// runtime maps it into Go memory.
const mapGlobal = "__embedjs_map"

// Env is one engine instance with its handle scopes, module cache and
// built-in modules. An Env is not safe for concurrent use.
type Env struct {
	rt     core.JSRuntime
	mem    core.MemoryMapper
	cfg    Config
	log    *zap.Logger
	src    Source
	loader *modules.Loader

	root   *HandleScope
	scopes []*HandleScope
	live   map[uint64]*HandleScope

	callbacks map[uint64]*nativeFunc
	nextFn    uint64

	nesting   int
	exhausted bool

	closed bool
}

// Option customizes NewEnv.
type Option func(*Env)

// WithLogger sets the Env's logger instead of the package Logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Env) { e.log = l }
}

// WithSource reads modules through src instead of the local filesystem.
func WithSource(src Source) Option {
	return func(e *Env) { e.src = src }
}

// NewEnv starts an engine, installs the bridge and loads the built-in
// modules.
func NewEnv(cfg Config, opts ...Option) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Env{
		cfg:       cfg,
		live:      make(map[uint64]*HandleScope),
		callbacks: make(map[uint64]*nativeFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = envLogger(e.log, cfg.LogLevel)
	if e.src == nil {
		e.src = NewOSSource()
	}

	rt, err := newRuntime(core.EngineConfig{MemoryLimitMB: cfg.MemoryLimitMB})
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", engineName, err)
	}
	mem, ok := rt.(core.MemoryMapper)
	if !ok {
		_ = rt.Close()
		return nil, fmt.Errorf("%s runtime cannot map buffer memory", engineName)
	}
	e.rt = rt
	e.mem = mem
	e.root = &HandleScope{env: e}
	e.scopes = []*HandleScope{e.root}

	e.loader = modules.NewLoader(e.src, modules.Options{
		BaseDir:          cfg.BaseDir,
		DefaultDirs:      cfg.defaultDirs(),
		Extensions:       cfg.Extensions,
		BuiltinShadowing: cfg.BuiltinShadowing,
	}, cfg.MaxRequireDepth, e.log.Named("modules"))

	if err := e.install(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := e.loadBuiltins(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	e.log.Debug("environment ready", zap.String("engine", engineName), zap.Int("builtins", e.loader.Cache().Len()))
	return e, nil
}

func (e *Env) install() error {
	if err := e.rt.RegisterFunc("__embedjs_invoke", e.invoke); err != nil {
		return fmt.Errorf("registering invoke: %w", err)
	}
	if err := e.rt.RegisterFunc("__embedjs_resolve", e.resolveStep); err != nil {
		return fmt.Errorf("registering resolve: %w", err)
	}
	if err := e.rt.RegisterFunc("__embedjs_settle", e.settle); err != nil {
		return fmt.Errorf("registering settle: %w", err)
	}
	return bootstrap.Install(e.rt, e.mem.BinaryMode(), e.consoleSink)
}

// Close releases every scope and shuts the engine down. The Env is
// unusable afterwards.
func (e *Env) Close() error {
	if e.closed {
		return nil
	}
	for i := len(e.scopes) - 1; i >= 0; i-- {
		e.scopes[i].runReleases()
		e.scopes[i].closed = true
	}
	e.scopes = []*HandleScope{e.root}
	e.live = make(map[uint64]*HandleScope)
	e.closed = true
	return e.rt.Close()
}

// RunMicrotasks drains the engine's job queue.
func (e *Env) RunMicrotasks() {
	if !e.closed {
		e.rt.RunMicrotasks()
	}
}

// RunScript evaluates src as a global script and returns its completion
// value.
func (e *Env) RunScript(src string) (Handle, error) {
	const op = "RunScript"
	if err := e.gate(op); err != nil {
		return Handle{}, err
	}
	return e.runHandle(op, "return 'o'+N.put((0,eval)("+jsString(src)+"));")
}

// run evaluates body inside the bridge wrapper and decodes the one-letter
// result prefix. body must return 'o'+payload on success. The reply
// travels as JSON so strings with NUL or lone surrogates survive.
func (e *Env) run(op, body string) (string, error) {
	if e.closed {
		return "", newError(op, GenericFailure, "environment is closed")
	}
	if e.nesting >= maxNesting {
		e.exhausted = true
		return "", newError(op, ResourceExhaustion, "native calls nested more than %d deep", maxNesting)
	}
	e.nesting++
	out, err := e.rt.EvalString("JSON.stringify((function(){var N=__embedjs;try{" + body + "}catch(err){return N.fail(err);}})())")
	e.nesting--

	if err != nil && (errors.Is(err, core.ErrStackOverflow) || isExhaustion(err.Error())) {
		e.exhausted = true
	}
	if e.exhausted {
		if e.nesting > 0 {
			return "", newError(op, ResourceExhaustion, "script nesting too deep")
		}
		// A nested overflow may have been rethrown and caught by script;
		// the outermost call still reports it and drops what was pending.
		e.exhausted = false
		_ = e.rt.Eval("__embedjs.take();")
		msg := "script nesting too deep"
		if err != nil {
			msg = err.Error()
		}
		return "", newError(op, ResourceExhaustion, "%s", msg)
	}
	if err != nil {
		return "", newError(op, GenericFailure, "%v", err)
	}

	var reply string
	if out == "" || json.Unmarshal([]byte(out), &reply) != nil || reply == "" {
		return "", newError(op, GenericFailure, "malformed bridge result")
	}
	payload := reply[1:]
	switch reply[0] {
	case 'o':
		return payload, nil
	case 't':
		return "", &Error{Status: PendingException, Op: op, Msg: e.pendingMessage()}
	case 'r':
		return "", &Error{Status: ResourceExhaustion, Op: op, Msg: payload}
	case 'm':
		return "", &Error{Status: TypeMismatch, Op: op, Msg: payload}
	case 'i':
		return "", &Error{Status: InvalidArgument, Op: op, Msg: payload}
	case 'n':
		return "", &Error{Status: ModuleNotFound, Op: op, Msg: payload}
	default:
		return "", &Error{Status: GenericFailure, Op: op, Msg: payload}
	}
}

// runHandle runs body, whose payload is a fresh slot id, and registers the
// id in the current scope.
func (e *Env) runHandle(op, body string) (Handle, error) {
	out, err := e.run(op, body)
	if err != nil {
		return Handle{}, err
	}
	id, err := strconv.ParseUint(out, 10, 64)
	if err != nil || id == 0 {
		return Handle{}, newError(op, GenericFailure, "bad slot id %q", out)
	}
	return e.adopt(id), nil
}

// runBool runs body, whose payload is "1" or "0".
func (e *Env) runBool(op, body string) (bool, error) {
	out, err := e.run(op, body)
	if err != nil {
		return false, err
	}
	return out == "1", nil
}

func isExhaustion(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "stack overflow") ||
		strings.Contains(m, "call stack size") ||
		strings.Contains(m, "out of memory")
}

func (e *Env) pendingMessage() string {
	out, err := e.rt.EvalString(`JSON.stringify((function(){try{var p=__embedjs.pending;return String(p&&p.message!==undefined?p.message:p);}catch(x){return '';}})())`)
	var msg string
	if err != nil || json.Unmarshal([]byte(out), &msg) != nil || msg == "" {
		return "exception thrown"
	}
	return msg
}

// gate fails with PendingException while a script exception is pending.
func (e *Env) gate(op string) error {
	pending, err := e.IsExceptionPending()
	if err != nil {
		return err
	}
	if pending {
		return newError(op, PendingException, "an exception is pending")
	}
	return nil
}

// ref renders the script expression for h after checking it is live.
func (e *Env) ref(op string, h Handle) (string, error) {
	if h.id == 0 {
		return "", newError(op, InvalidArgument, "invalid handle")
	}
	if _, ok := e.live[h.id]; !ok {
		return "", newError(op, InvalidArgument, "handle %d is not live", h.id)
	}
	return "N.get(" + strconv.FormatUint(h.id, 10) + ")", nil
}

func (e *Env) consoleSink(level, message string) {
	l := e.log.Named("console")
	switch level {
	case "error":
		l.Error(message)
	case "warn":
		l.Warn(message)
	case "debug":
		l.Debug(message)
	default:
		l.Info(message)
	}
}

// jsString renders s as a script string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// jsNumber renders f as a script number literal.
func jsNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0 && math.Signbit(f):
		return "-0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
