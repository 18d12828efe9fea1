package embedjs

import (
	"strconv"
	"strings"
)

const objectCheck = "if(o===null||(typeof o!=='object'&&typeof o!=='function'))return 'iobject expected';"

// objectOp gates on pending exceptions, resolves obj and runs body with the
// object bound to o.
func (e *Env) objectOp(op string, obj Handle, body string) (string, error) {
	if err := e.gate(op); err != nil {
		return "", err
	}
	o, err := e.ref(op, obj)
	if err != nil {
		return "", err
	}
	return e.run(op, "var o="+o+";"+objectCheck+body)
}

func (e *Env) objectHandle(op string, obj Handle, body string) (Handle, error) {
	out, err := e.objectOp(op, obj, body)
	if err != nil {
		return Handle{}, err
	}
	id, err := strconv.ParseUint(out, 10, 64)
	if err != nil || id == 0 {
		return Handle{}, newError(op, GenericFailure, "bad slot id %q", out)
	}
	return e.adopt(id), nil
}

// GetArrayLength returns the length of an array.
func (e *Env) GetArrayLength(h Handle) (uint32, error) {
	const op = "GetArrayLength"
	ref, err := e.ref(op, h)
	if err != nil {
		return 0, err
	}
	out, err := e.run(op, "var v="+ref+";if(!Array.isArray(v))return 'iarray expected';return 'o'+v.length;")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(out, 10, 32)
	if err != nil {
		return 0, newError(op, GenericFailure, "bad length %q", out)
	}
	return uint32(n), nil
}

// GetPrototype returns the prototype of obj.
func (e *Env) GetPrototype(obj Handle) (Handle, error) {
	return e.objectHandle("GetPrototype", obj, "return 'o'+N.put(Object.getPrototypeOf(o));")
}

// SetNamedProperty assigns obj[name] = value.
func (e *Env) SetNamedProperty(obj Handle, name string, value Handle) error {
	const op = "SetNamedProperty"
	v, err := e.ref(op, value)
	if err != nil {
		return err
	}
	_, err = e.objectOp(op, obj, "o["+jsString(name)+"]="+v+";return 'o';")
	return err
}

// GetNamedProperty reads obj[name], running getters.
func (e *Env) GetNamedProperty(obj Handle, name string) (Handle, error) {
	return e.objectHandle("GetNamedProperty", obj, "return 'o'+N.put(o["+jsString(name)+"]);")
}

// HasNamedProperty evaluates name in obj, so inherited properties count.
func (e *Env) HasNamedProperty(obj Handle, name string) (bool, error) {
	out, err := e.objectOp("HasNamedProperty", obj, "return 'o'+(("+jsString(name)+" in o)?'1':'0');")
	return out == "1", err
}

// SetElement assigns obj[index] = value.
func (e *Env) SetElement(obj Handle, index uint32, value Handle) error {
	const op = "SetElement"
	v, err := e.ref(op, value)
	if err != nil {
		return err
	}
	_, err = e.objectOp(op, obj, "o["+strconv.FormatUint(uint64(index), 10)+"]="+v+";return 'o';")
	return err
}

// GetElement reads obj[index].
func (e *Env) GetElement(obj Handle, index uint32) (Handle, error) {
	return e.objectHandle("GetElement", obj, "return 'o'+N.put(o["+strconv.FormatUint(uint64(index), 10)+"]);")
}

// CallFunction calls fn with recv as this. A zero recv means undefined.
func (e *Env) CallFunction(recv, fn Handle, args ...Handle) (Handle, error) {
	const op = "CallFunction"
	if err := e.gate(op); err != nil {
		return Handle{}, err
	}
	f, err := e.ref(op, fn)
	if err != nil {
		return Handle{}, err
	}
	r := "undefined"
	if !recv.IsZero() {
		if r, err = e.ref(op, recv); err != nil {
			return Handle{}, err
		}
	}
	refs := make([]string, len(args))
	for i, a := range args {
		if refs[i], err = e.ref(op, a); err != nil {
			return Handle{}, err
		}
	}
	return e.runHandle(op, "var f="+f+";if(typeof f!=='function')return 'ifunction expected';"+
		"return 'o'+N.put(f.apply("+r+",["+strings.Join(refs, ",")+"]));")
}

// Throw makes the value h refers to the pending exception.
func (e *Env) Throw(h Handle) error {
	const op = "Throw"
	ref, err := e.ref(op, h)
	if err != nil {
		return err
	}
	_, err = e.run(op, "N.pend("+ref+");return 'o';")
	return err
}

// ThrowError makes a new Error with message msg the pending exception. A
// non-empty code is attached as a read-only code property.
func (e *Env) ThrowError(code, msg string) error {
	const op = "ThrowError"
	body := "var err=new Error(" + jsString(msg) + ");"
	if code != "" {
		body += "Object.defineProperty(err,'code',{value:" + jsString(code) + ",enumerable:true,writable:false,configurable:true});"
	}
	_, err := e.run(op, body+"N.pend(err);return 'o';")
	return err
}

// IsExceptionPending reports whether a script exception awaits
// GetAndClearLastException.
func (e *Env) IsExceptionPending() (bool, error) {
	if e.closed {
		return false, newError("IsExceptionPending", GenericFailure, "environment is closed")
	}
	pending, err := e.rt.EvalBool("__embedjs.hasPending")
	if err != nil {
		return false, newError("IsExceptionPending", GenericFailure, "%v", err)
	}
	return pending, nil
}

// GetAndClearLastException returns the pending exception and clears it.
// Without one it returns a handle to undefined.
func (e *Env) GetAndClearLastException() (Handle, error) {
	return e.runHandle("GetAndClearLastException", "if(!N.hasPending)return 'o'+N.put(undefined);return 'o'+N.put(N.take());")
}

// Reference keeps a value alive independently of handle scopes until
// Delete is called.
type Reference struct {
	env     *Env
	id      uint64
	deleted bool
}

// CreateReference pins the value h refers to.
func (e *Env) CreateReference(h Handle) (*Reference, error) {
	const op = "CreateReference"
	ref, err := e.ref(op, h)
	if err != nil {
		return nil, err
	}
	out, err := e.run(op, "return 'o'+N.ref("+ref+");")
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseUint(out, 10, 64)
	if err != nil {
		return nil, newError(op, GenericFailure, "bad reference id %q", out)
	}
	return &Reference{env: e, id: id}, nil
}

// Value returns a handle to the referenced value in the current scope.
func (r *Reference) Value() (Handle, error) {
	const op = "Reference.Value"
	if r.deleted {
		return Handle{}, newError(op, InvalidArgument, "reference deleted")
	}
	return r.env.runHandle(op, "return 'o'+N.put(N.deref("+strconv.FormatUint(r.id, 10)+"));")
}

// Delete drops the reference. Further calls are no-ops.
func (r *Reference) Delete() error {
	if r.deleted {
		return nil
	}
	r.deleted = true
	_, err := r.env.run("Reference.Delete", "N.unref("+strconv.FormatUint(r.id, 10)+");return 'o';")
	return err
}
