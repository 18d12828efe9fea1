package embedjs

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Callback implements a script-callable function in Go. Returning the zero
// Handle yields undefined. Returning an error, or leaving an exception
// pending, throws in the calling script.
type Callback func(env *Env, info *CallbackInfo) (Handle, error)

// CallbackInfo carries one call's receiver and arguments. The handles
// belong to a scope that closes when the callback returns.
type CallbackInfo struct {
	This Handle
	Args []Handle
	Data any
}

// Arg returns argument i, or the zero Handle when fewer were passed.
func (ci *CallbackInfo) Arg(i int) Handle {
	if i < 0 || i >= len(ci.Args) {
		return Handle{}
	}
	return ci.Args[i]
}

type nativeFunc struct {
	name string
	cb   Callback
	data any
}

// CreateFunction exposes cb to script as a function called name. data is
// passed back on every call.
func (e *Env) CreateFunction(name string, cb Callback, data any) (Handle, error) {
	const op = "CreateFunction"
	if cb == nil {
		return Handle{}, newError(op, InvalidArgument, "nil callback")
	}
	e.nextFn++
	id := e.nextFn
	h, err := e.runHandle(op, "return 'o'+N.put(N.fn("+jsString(name)+","+strconv.FormatUint(id, 10)+"));")
	if err != nil {
		return Handle{}, err
	}
	e.callbacks[id] = &nativeFunc{name: name, cb: cb, data: data}
	return h, nil
}

// invoke is called from script for every native function call. The reply
// is "u" (undefined), "o" (value parked in __embedjs.ret), "t" (throw the
// pending exception) or "e" followed by an error message.
func (e *Env) invoke(fnID, thisID, argIDs string) (reply string) {
	scope := e.OpenScope()
	defer func() {
		if scope.closed {
			return
		}
		if e.current() != scope {
			e.log.Warn("native function left handle scopes open", zap.String("function", fnID))
		}
		for e.current() != scope {
			e.pop()
		}
		e.pop()
	}()
	defer func() {
		if p := recover(); p != nil {
			e.log.Error("native function panicked", zap.Any("panic", p))
			reply = "e" + fmt.Sprintf("native function panicked: %v", p)
		}
	}()

	id, err := strconv.ParseUint(fnID, 10, 64)
	if err != nil {
		return "ebad native function id"
	}
	fn, ok := e.callbacks[id]
	if !ok {
		return "eunknown native function"
	}

	info := &CallbackInfo{Data: fn.data}
	if this, err := strconv.ParseUint(thisID, 10, 64); err == nil {
		info.This = e.adopt(this)
	}
	if argIDs != "" {
		for _, s := range strings.Split(argIDs, ",") {
			a, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return "ebad argument id"
			}
			info.Args = append(info.Args, e.adopt(a))
		}
	}

	h, cbErr := fn.cb(e, info)

	pending, err := e.IsExceptionPending()
	if err != nil {
		return "e" + err.Error()
	}
	if pending {
		return "t"
	}
	if cbErr != nil {
		return "e" + cbErr.Error()
	}
	if h.IsZero() {
		return "u"
	}
	if !e.IsLive(h) {
		return "e" + fn.name + " returned a handle that is no longer live"
	}
	if err := e.rt.Eval("__embedjs.ret=__embedjs.get(" + strconv.FormatUint(h.id, 10) + ");"); err != nil {
		return "e" + err.Error()
	}
	return "o"
}
