package embedjs

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ValueType is the engine type tag of a value.
type ValueType int

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeObject
	TypeFunction
)

func (t ValueType) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	case TypeFunction:
		return "function"
	default:
		return "unknown"
	}
}

const maxArrayLength = math.MaxUint32

func (e *Env) create(op, expr string) (Handle, error) {
	return e.runHandle(op, "return 'o'+N.put("+expr+");")
}

// CreateArray creates an empty array.
func (e *Env) CreateArray() (Handle, error) {
	return e.create("CreateArray", "[]")
}

// CreateArrayWithLength creates an array with n holes.
func (e *Env) CreateArrayWithLength(n int) (Handle, error) {
	const op = "CreateArrayWithLength"
	if n < 0 || uint64(n) > maxArrayLength {
		return Handle{}, newError(op, InvalidArgument, "length %d out of range", n)
	}
	return e.create(op, "new Array("+strconv.Itoa(n)+")")
}

// CreateObject creates an empty plain object.
func (e *Env) CreateObject() (Handle, error) {
	return e.create("CreateObject", "{}")
}

// CreateStringUTF8 creates a string from UTF-8 bytes. Invalid sequences
// become U+FFFD.
func (e *Env) CreateStringUTF8(b []byte) (Handle, error) {
	return e.create("CreateStringUTF8", jsString(strings.ToValidUTF8(string(b), "\uFFFD")))
}

// CreateString is CreateStringUTF8 for a Go string.
func (e *Env) CreateString(s string) (Handle, error) {
	return e.create("CreateString", jsString(strings.ToValidUTF8(s, "\uFFFD")))
}

// CreateInt32 creates a number from v.
func (e *Env) CreateInt32(v int32) (Handle, error) {
	return e.create("CreateInt32", strconv.FormatInt(int64(v), 10))
}

// CreateUint32 creates a number from v.
func (e *Env) CreateUint32(v uint32) (Handle, error) {
	return e.create("CreateUint32", strconv.FormatUint(uint64(v), 10))
}

// CreateInt64 creates a number; magnitudes above 2^53 lose precision.
func (e *Env) CreateInt64(v int64) (Handle, error) {
	return e.create("CreateInt64", jsNumber(float64(v)))
}

// CreateDouble creates a number from v, keeping -0, NaN and infinities.
func (e *Env) CreateDouble(v float64) (Handle, error) {
	return e.create("CreateDouble", jsNumber(v))
}

// CreateBoolean creates a boolean.
func (e *Env) CreateBoolean(v bool) (Handle, error) {
	return e.create("CreateBoolean", strconv.FormatBool(v))
}

// GetNull returns a handle to null.
func (e *Env) GetNull() (Handle, error) { return e.create("GetNull", "null") }

// GetUndefined returns a handle to undefined.
func (e *Env) GetUndefined() (Handle, error) { return e.create("GetUndefined", "undefined") }

// GetGlobal returns a handle to the global object.
func (e *Env) GetGlobal() (Handle, error) { return e.create("GetGlobal", "globalThis") }

// GetValueBool returns the boolean h refers to.
func (e *Env) GetValueBool(h Handle) (bool, error) {
	const op = "GetValueBool"
	ref, err := e.ref(op, h)
	if err != nil {
		return false, err
	}
	return e.runBool(op, "var v="+ref+";if(typeof v!=='boolean')return 'mboolean expected';return 'o'+(v?'1':'0');")
}

// GetValueDouble returns the number h refers to.
func (e *Env) GetValueDouble(h Handle) (float64, error) {
	const op = "GetValueDouble"
	ref, err := e.ref(op, h)
	if err != nil {
		return 0, err
	}
	out, err := e.run(op, "var v="+ref+";if(typeof v!=='number')return 'mnumber expected';return 'o'+N.num(v);")
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, newError(op, GenericFailure, "bad number %q", out)
	}
	return f, nil
}

// GetValueInt32 truncates and wraps modulo 2^32. Non-finite numbers give 0.
func (e *Env) GetValueInt32(h Handle) (int32, error) {
	f, err := e.GetValueDouble(h)
	if err != nil {
		return 0, renameOp(err, "GetValueInt32")
	}
	return int32(wrapUint32(f)), nil
}

// GetValueUint32 truncates and wraps modulo 2^32. Non-finite numbers give 0.
func (e *Env) GetValueUint32(h Handle) (uint32, error) {
	f, err := e.GetValueDouble(h)
	if err != nil {
		return 0, renameOp(err, "GetValueUint32")
	}
	return wrapUint32(f), nil
}

// GetValueInt64 truncates and saturates. Non-finite numbers give 0.
func (e *Env) GetValueInt64(h Handle) (int64, error) {
	f, err := e.GetValueDouble(h)
	if err != nil {
		return 0, renameOp(err, "GetValueInt64")
	}
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0, nil
	case f >= math.MaxInt64:
		return math.MaxInt64, nil
	case f <= math.MinInt64:
		return math.MinInt64, nil
	}
	return int64(f), nil
}

func wrapUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return uint32(m)
}

func renameOp(err error, op string) error {
	if be, ok := err.(*Error); ok {
		c := *be
		c.Op = op
		return &c
	}
	return err
}

// GetValueString returns the string h refers to. Lone surrogates come
// back as U+FFFD.
func (e *Env) GetValueString(h Handle) (string, error) {
	const op = "GetValueString"
	ref, err := e.ref(op, h)
	if err != nil {
		return "", err
	}
	s, err := e.run(op, "var v="+ref+";if(typeof v!=='string')return 'mstring expected';return 'o'+v;")
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(s, "\uFFFD"), nil
}

// GetValueStringUTF8 copies the UTF-8 encoding of the string h refers to
// into buf. With a nil buf it only reports the byte length. When buf has
// room for the terminator a NUL follows the copied bytes. A buf shorter
// than the string receives the longest prefix of whole characters and the
// call fails with GenericFailure, still reporting the bytes written.
func (e *Env) GetValueStringUTF8(h Handle, buf []byte) (int, error) {
	const op = "GetValueStringUTF8"
	s, err := e.GetValueString(h)
	if err != nil {
		return 0, renameOp(err, op)
	}
	n := len(s)
	if buf == nil {
		return n, nil
	}
	if len(buf) >= n {
		copy(buf, s)
		if len(buf) > n {
			buf[n] = 0
		}
		return n, nil
	}
	k := len(buf)
	for k > 0 && !utf8.RuneStart(s[k]) {
		k--
	}
	copy(buf, s[:k])
	if k < len(buf) {
		buf[k] = 0
	}
	return k, newError(op, GenericFailure, "buffer of %d bytes cannot hold %d", len(buf), n)
}

func (e *Env) coerce(op string, h Handle, expr string, gated bool) (Handle, error) {
	if gated {
		if err := e.gate(op); err != nil {
			return Handle{}, err
		}
	}
	ref, err := e.ref(op, h)
	if err != nil {
		return Handle{}, err
	}
	return e.runHandle(op, "var v="+ref+";return 'o'+N.put("+expr+");")
}

// CoerceToBool applies script truthiness to h.
func (e *Env) CoerceToBool(h Handle) (Handle, error) {
	return e.coerce("CoerceToBool", h, "!!v", false)
}

// CoerceToNumber converts h as unary plus does.
func (e *Env) CoerceToNumber(h Handle) (Handle, error) {
	return e.coerce("CoerceToNumber", h, "+v", true)
}

// CoerceToObject wraps primitives; null and undefined throw a TypeError.
func (e *Env) CoerceToObject(h Handle) (Handle, error) {
	return e.coerce("CoerceToObject", h,
		"(function(){if(v==null)throw new TypeError('Cannot convert undefined or null to object');return Object(v);})()", true)
}

// CoerceToString converts h as a template literal does.
func (e *Env) CoerceToString(h Handle) (Handle, error) {
	return e.coerce("CoerceToString", h, "`${v}`", true)
}

// TypeOf reports the type tag of h. Symbols and bigints are outside the
// supported set and fail with InvalidArgument.
func (e *Env) TypeOf(h Handle) (ValueType, error) {
	const op = "TypeOf"
	ref, err := e.ref(op, h)
	if err != nil {
		return 0, err
	}
	out, err := e.run(op, "var t=N.tag("+ref+");if(t<0)return 'iunsupported value type';return 'o'+t;")
	if err != nil {
		return 0, err
	}
	t, err := strconv.Atoi(out)
	if err != nil {
		return 0, newError(op, GenericFailure, "bad type tag %q", out)
	}
	return ValueType(t), nil
}

func (e *Env) predicate(op string, h Handle, cond string) (bool, error) {
	ref, err := e.ref(op, h)
	if err != nil {
		return false, err
	}
	return e.runBool(op, "var v="+ref+";return 'o'+(("+cond+")?'1':'0');")
}

// IsArray reports whether h is an array.
func (e *Env) IsArray(h Handle) (bool, error) {
	return e.predicate("IsArray", h, "Array.isArray(v)")
}

// IsArrayBuffer reports whether h is an ArrayBuffer.
func (e *Env) IsArrayBuffer(h Handle) (bool, error) {
	return e.predicate("IsArrayBuffer", h, "v instanceof ArrayBuffer")
}

// IsError reports whether h is an Error.
func (e *Env) IsError(h Handle) (bool, error) {
	return e.predicate("IsError", h, "N.isError(v)")
}

// IsTypedArray reports whether h is a typed array view. DataViews are not.
func (e *Env) IsTypedArray(h Handle) (bool, error) {
	return e.predicate("IsTypedArray", h, "N.isTypedArray(v)")
}

// IsBuffer checks against the current global Buffer. A missing or
// non-callable global Buffer makes every value a non-buffer.
func (e *Env) IsBuffer(h Handle) (bool, error) {
	return e.predicate("IsBuffer", h, "N.isBuffer(v)")
}

// InstanceOf evaluates obj instanceof ctor.
func (e *Env) InstanceOf(obj, ctor Handle) (bool, error) {
	const op = "InstanceOf"
	if err := e.gate(op); err != nil {
		return false, err
	}
	o, err := e.ref(op, obj)
	if err != nil {
		return false, err
	}
	c, err := e.ref(op, ctor)
	if err != nil {
		return false, err
	}
	return e.runBool(op, "var o="+o+",c="+c+";if(typeof c!=='function')return 'iconstructor must be a function';return 'o'+(o instanceof c?'1':'0');")
}

// StrictEquals evaluates a === b.
func (e *Env) StrictEquals(a, b Handle) (bool, error) {
	const op = "StrictEquals"
	ra, err := e.ref(op, a)
	if err != nil {
		return false, err
	}
	rb, err := e.ref(op, b)
	if err != nil {
		return false, err
	}
	return e.runBool(op, "return 'o'+("+ra+"==="+rb+"?'1':'0');")
}
