package embedjs

import (
	"strconv"
	"strings"
)

// maxBufferSize bounds a single engine buffer.
const maxBufferSize = 1<<31 - 1

// CreateBuffer allocates a zero-filled engine Buffer of size bytes. The
// returned slice aliases the engine memory and stays valid while the
// Buffer is reachable.
func (e *Env) CreateBuffer(size int) ([]byte, Handle, error) {
	const op = "CreateBuffer"
	if size < 0 || size > maxBufferSize {
		return nil, Handle{}, newError(op, InvalidArgument, "size %d out of range", size)
	}
	h, err := e.runHandle(op, "var b;try{b=N.alloc("+strconv.Itoa(size)+");}catch(x){return 'r'+String(x&&x.message);}"+
		"globalThis."+mapGlobal+"=b.buffer;return 'o'+N.put(b);")
	if err != nil {
		return nil, Handle{}, err
	}
	data, err := e.mapBacking(op)
	if err != nil {
		return nil, Handle{}, err
	}
	if len(data) < size {
		return nil, Handle{}, newError(op, GenericFailure, "mapped %d bytes, want %d", len(data), size)
	}
	return data[:size:size], h, nil
}

// CreateBufferCopy allocates an engine Buffer holding a copy of data.
func (e *Env) CreateBufferCopy(data []byte) ([]byte, Handle, error) {
	buf, h, err := e.CreateBuffer(len(data))
	if err != nil {
		return nil, Handle{}, renameOp(err, "CreateBufferCopy")
	}
	copy(buf, data)
	return buf, h, nil
}

// Finalizer is told when the engine no longer needs external memory.
type Finalizer func(data []byte, hint any)

// CreateExternalBuffer makes an engine Buffer from memory owned by the
// caller. The bytes are copied, so the engine never references data after
// the call; finalize, if set, runs exactly once before returning.
func (e *Env) CreateExternalBuffer(data []byte, finalize Finalizer, hint any) (Handle, error) {
	_, h, err := e.CreateBufferCopy(data)
	if err != nil {
		return Handle{}, renameOp(err, "CreateExternalBuffer")
	}
	if finalize != nil {
		finalize(data, hint)
	}
	return h, nil
}

// GetBufferInfo returns the bytes of the Buffer h refers to. Values that
// are not Buffers fail with TypeMismatch.
func (e *Env) GetBufferInfo(h Handle) ([]byte, error) {
	const op = "GetBufferInfo"
	ref, err := e.ref(op, h)
	if err != nil {
		return nil, err
	}
	out, err := e.run(op, "var b="+ref+";if(!(b instanceof N.Buffer))return 'mBuffer expected';"+
		"globalThis."+mapGlobal+"=b.buffer;return 'o'+b.byteOffset+':'+b.length;")
	if err != nil {
		return nil, err
	}
	offStr, lenStr, ok := strings.Cut(out, ":")
	if !ok {
		return nil, newError(op, GenericFailure, "bad buffer info %q", out)
	}
	off, err1 := strconv.Atoi(offStr)
	n, err2 := strconv.Atoi(lenStr)
	if err1 != nil || err2 != nil {
		return nil, newError(op, GenericFailure, "bad buffer info %q", out)
	}
	data, err := e.mapBacking(op)
	if err != nil {
		return nil, err
	}
	if off+n > len(data) {
		return nil, newError(op, GenericFailure, "buffer view %d+%d exceeds backing store of %d", off, n, len(data))
	}
	return data[off : off+n : off+n], nil
}

// mapBacking maps the backing store parked on mapGlobal. The mapping is
// released when the current scope closes.
func (e *Env) mapBacking(op string) ([]byte, error) {
	data, release, err := e.mem.MapArrayBuffer(mapGlobal)
	if err != nil {
		return nil, newError(op, GenericFailure, "mapping buffer memory: %v", err)
	}
	if release != nil {
		s := e.current()
		s.releases = append(s.releases, release)
	}
	return data, nil
}
