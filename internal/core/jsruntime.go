package core

import "errors"

// ErrStackOverflow is returned by the Eval methods when script nesting
// passes the runtime's depth bound. The runtime stays usable afterwards.
var ErrStackOverflow = errors.New("stack overflow: maximum script nesting depth exceeded")

// JSRuntime abstracts the JavaScript engine (QuickJS or V8) behind a
// common interface used by the bootstrap setup functions in
// internal/bootstrap and by the value bridge in the root package.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// EvalInt evaluates JavaScript and returns the result as a Go int.
	EvalInt(js string) (int, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// Arguments and results are limited to string, int, float64 and bool.
	// On error return, the JS wrapper throws a TypeError.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable on the JS context. Basic Go types
	// (string, int, float64, bool) are auto-converted to JS types.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	// V8: PerformMicrotaskCheckpoint, QuickJS: ExecutePendingJob loop.
	RunMicrotasks()

	// Close releases the engine instance. The runtime must not be used
	// afterwards.
	Close() error
}

// MemoryMapper gives native code direct access to the backing store of
// an engine ArrayBuffer. Buffers handed to native callers alias engine
// memory, so every runtime used by the bridge implements it.
type MemoryMapper interface {
	// MapArrayBuffer returns a slice aliasing the backing store of the
	// buffer stored at the given global. The slice stays valid for as long
	// as the buffer is reachable from script; release must be called once
	// the caller drops the slice.
	MapArrayBuffer(globalName string) (data []byte, release func(), err error)

	// BinaryMode returns the JS buffer type that MapArrayBuffer accepts:
	// "sab" for SharedArrayBuffer (V8), "ab" for ArrayBuffer (QuickJS).
	BinaryMode() string
}
