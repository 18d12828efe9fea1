//go:build !v8

package quickjs

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/cryguy/embedjs/internal/core"
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// qjsRuntime implements core.JSRuntime for the QuickJS engine.
type qjsRuntime struct {
	vm  *quickjs.VM
	tls *libc.TLS // cached from VM internals for direct C API access
	ctx uintptr   // cached JSContext pointer for direct C API access
	rt  uintptr   // cached JSRuntime pointer for the job pump

	frames   *int // live C frames, see installStackGuard
	nesting  int
	overflow bool
}

var _ core.JSRuntime = (*qjsRuntime)(nil)
var _ core.MemoryMapper = (*qjsRuntime)(nil)

// New creates a QuickJS runtime with direct C API access to its context.
func New(cfg core.EngineConfig) (core.JSRuntime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) * 1024 * 1024)
	}

	r := &qjsRuntime{vm: vm}
	if err := r.initDirectAccess(); err != nil {
		vm.Close()
		return nil, err
	}
	if err := r.installStackGuard(); err != nil {
		vm.Close()
		return nil, err
	}
	return r, nil
}

// Eval evaluates JavaScript and discards the result.
func (r *qjsRuntime) Eval(js string) (err error) {
	r.enter()
	defer func() { err = r.leave(err) }()

	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *qjsRuntime) EvalString(js string) (_ string, err error) {
	r.enter()
	defer func() { err = r.leave(err) }()

	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	if s, ok := result.(string); ok {
		return s, nil
	}
	return fmt.Sprint(result), nil
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
func (r *qjsRuntime) EvalBool(js string) (_ bool, err error) {
	r.enter()
	defer func() { err = r.leave(err) }()

	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", result)
	}
	return b, nil
}

// EvalInt evaluates JavaScript and returns the result as a Go int.
func (r *qjsRuntime) EvalInt(js string) (_ int, err error) {
	r.enter()
	defer func() { err = r.leave(err) }()

	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected int, got %T", result)
	}
}

// RegisterFunc registers a Go function as a global JavaScript function.
// Multi-value Go returns (T, error) are automatically unwrapped: on success
// returns T, on error throws a TypeError. This is necessary because the
// QuickJS Go wrapper returns multi-value results as JS arrays.
func (r *qjsRuntime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r)) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return r.Eval(wrapJS)
}

// SetGlobal sets a global property on the VM's global object.
func (r *qjsRuntime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// RunMicrotasks pumps the QuickJS microtask queue.
func (r *qjsRuntime) RunMicrotasks() {
	r.enter()
	defer func() { _ = r.leave(nil) }()
	executePendingJobs(r.tls, r.rt)
}

// Close releases the VM.
func (r *qjsRuntime) Close() error {
	r.removeStackGuard()
	r.vm.Close()
	return nil
}

// BinaryMode returns "ab": QuickJS buffers are backed by plain ArrayBuffers.
func (r *qjsRuntime) BinaryMode() string { return "ab" }

// initDirectAccess extracts the VM's internal tls, JSContext and JSRuntime
// pointers and smoke-tests them with a trivial C API call.
func (r *qjsRuntime) initDirectAccess() error {
	if err := r.tryExtractVMInternals(); err != nil {
		return fmt.Errorf("quickjs direct access unavailable: %w", err)
	}

	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	lib.XFreeValue(r.tls, r.ctx, glob)
	return nil
}

// tryExtractVMInternals uses reflect+unsafe to cache the VM's tls and ctx.
func (r *qjsRuntime) tryExtractVMInternals() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic extracting VM internals: %v", p)
		}
	}()

	vmType := reflect.TypeOf(r.vm).Elem()
	vmPtr := uintptr(unsafe.Pointer(r.vm))

	// cContext is the first field of VM (offset 0).
	r.ctx = *(*uintptr)(unsafe.Pointer(vmPtr))
	if r.ctx == 0 {
		return fmt.Errorf("JSContext is nil")
	}

	// Get runtime pointer via its reflected field offset.
	rtField, ok := vmType.FieldByName("runtime")
	if !ok {
		return fmt.Errorf("quickjs.VM missing 'runtime' field")
	}
	rtPtr := *(*uintptr)(unsafe.Pointer(vmPtr + rtField.Offset))
	if rtPtr == 0 {
		return fmt.Errorf("runtime pointer is nil")
	}

	// runtime is {cRuntime uintptr; tls *libc.TLS}.
	r.rt = *(*uintptr)(unsafe.Pointer(rtPtr))
	if r.rt == 0 {
		return fmt.Errorf("JSRuntime is nil")
	}
	r.tls = *(**libc.TLS)(unsafe.Pointer(rtPtr + unsafe.Sizeof(uintptr(0))))
	if r.tls == nil {
		return fmt.Errorf("TLS is nil")
	}

	return nil
}

// MapArrayBuffer returns a slice aliasing the backing store of the
// ArrayBuffer stored at globalThis[globalName], then deletes the global.
// The backing store is owned by the QuickJS allocator, not the Go heap, so
// the slice stays valid while script keeps the buffer alive.
func (r *qjsRuntime) MapArrayBuffer(globalName string) ([]byte, func(), error) {
	cName, err := libc.CString(globalName)
	if err != nil {
		return nil, nil, fmt.Errorf("allocating property name: %w", err)
	}

	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	jsVal := lib.XJS_GetPropertyStr(r.tls, r.ctx, glob, cName)
	lib.XFreeValue(r.tls, r.ctx, glob)
	libc.Xfree(r.tls, cName)

	var size lib.Tsize_t
	dataPtr := lib.XJS_GetArrayBuffer(r.tls, r.ctx, uintptr(unsafe.Pointer(&size)), jsVal)

	// The slot table still references the buffer, so dropping our
	// reference does not free the backing store.
	lib.XFreeValue(r.tls, r.ctx, jsVal)
	_ = r.Eval(fmt.Sprintf("delete globalThis[%q];", globalName))

	if dataPtr == 0 {
		if size == 0 {
			return []byte{}, func() {}, nil
		}
		return nil, nil, fmt.Errorf("%s is not an ArrayBuffer", globalName)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(dataPtr)), int(size))
	return data, func() {}, nil
}
