//go:build !v8

package quickjs

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/cryguy/embedjs/internal/core"
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// maxFrames bounds the interpreter frames live on one runtime's TLS stack.
// The transpiled engine cannot see the goroutine stack, so its own
// overflow check never fires and deep recursion would otherwise run into
// the Go stack limit.
const maxFrames = 8000

// pollInterval is the number of calls and backward jumps QuickJS runs
// between two guard checks.
const pollInterval = 256

// guarded maps a JSRuntime pointer to its qjsRuntime for the interrupt
// handler, which only receives the C pointer.
var guarded sync.Map

// installStackGuard replaces the VM's interrupt handler with stackGuard.
// The frame count is libc.TLS.sp, which every transpiled function that
// keeps C locals bumps on entry and drops on return.
func (r *qjsRuntime) installStackGuard() error {
	f, ok := reflect.TypeOf((*libc.TLS)(nil)).Elem().FieldByName("sp")
	if !ok || f.Type.Kind() != reflect.Int {
		return fmt.Errorf("libc.TLS has no frame counter")
	}
	r.frames = (*int)(unsafe.Add(unsafe.Pointer(r.tls), f.Offset))
	guarded.Store(r.rt, r)
	lib.XJS_SetInterruptHandler(r.tls, r.rt, fp(stackGuard), 0)
	return nil
}

func (r *qjsRuntime) removeStackGuard() {
	guarded.Delete(r.rt)
}

// stackGuard is the QuickJS interrupt handler. A non-zero return makes
// the engine throw an uncatchable InternalError.
func stackGuard(_ *libc.TLS, rt, _ uintptr) int32 {
	v, ok := guarded.Load(rt)
	if !ok {
		return 0
	}
	r := v.(*qjsRuntime)
	(*lib.TJSContext)(unsafe.Pointer(r.ctx)).Finterrupt_counter = pollInterval
	if *r.frames > maxFrames {
		r.overflow = true
		return 1
	}
	return 0
}

// enter marks the start of an evaluation. Overflow state is sticky for
// the outermost evaluation so a nested failure surfaces at the top.
func (r *qjsRuntime) enter() {
	if r.nesting == 0 {
		r.overflow = false
	}
	r.nesting++
}

// leave ends an evaluation started with enter and maps its error.
func (r *qjsRuntime) leave(err error) error {
	r.nesting--
	if !r.overflow {
		return err
	}
	if r.nesting == 0 {
		lib.XJS_SetUncatchableException(r.tls, r.ctx, 0)
		return core.ErrStackOverflow
	}
	if err != nil {
		return core.ErrStackOverflow
	}
	return nil
}

// fp returns the code pointer of a Go function for use as a C callback.
func fp(f any) uintptr {
	type iface [2]uintptr
	return (*iface)(unsafe.Pointer(&f))[1]
}
