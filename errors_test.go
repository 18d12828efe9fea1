package embedjs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_CreateWithCode(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	tests := []struct {
		name   string
		create func(code, msg Handle) (Handle, error)
		ctor   string
	}{
		{"Error", e.CreateError, "Error"},
		{"RangeError", e.CreateRangeError, "RangeError"},
		{"TypeError", e.CreateTypeError, "TypeError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := tt.create(mustString(t, e, "E_BAD"), mustString(t, e, "went wrong"))
			require.NoError(t, err)

			ok, err := e.IsError(h)
			require.NoError(t, err)
			assert.True(t, ok)

			ctor, err := e.RunScript(tt.ctor)
			require.NoError(t, err)
			ok, err = e.InstanceOf(h, ctor)
			require.NoError(t, err)
			assert.True(t, ok)

			setGlobal(t, e, "made", h)
			assert.Equal(t, "went wrong", evalString(t, e, "made.message"))
			assert.Equal(t, "E_BAD", evalString(t, e, "made.code"))
			assert.Equal(t, "E_BAD", evalString(t, e, "made.code = 'changed'; made.code"), "code is read-only")
		})
	}
}

func TestErrors_CreateWithoutCode(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	h, err := e.CreateError(Handle{}, mustString(t, e, "plain"))
	require.NoError(t, err)
	setGlobal(t, e, "plain", h)
	assert.False(t, evalBool(t, e, "'code' in plain"))
}

func TestErrors_ArgumentTypes(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	num, err := e.CreateInt32(3)
	require.NoError(t, err)

	_, err = e.CreateError(Handle{}, num)
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	_, err = e.CreateTypeError(num, mustString(t, e, "msg"))
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	sym, err := e.RunScript("Symbol('msg')")
	require.NoError(t, err)
	_, err = e.CreateError(Handle{}, sym)
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	_, err = e.CreateRangeError(Handle{}, Handle{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestErrors_MessageKeepsNUL(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	msg, err := e.CreateStringUTF8([]byte("m\x00sg"))
	require.NoError(t, err)
	h, err := e.CreateError(Handle{}, msg)
	require.NoError(t, err)
	setGlobal(t, e, "withNul", h)
	assert.Equal(t, 4.0, evalNumber(t, e, "withNul.message.length"))
	assert.True(t, evalBool(t, e, "withNul.message === 'm\\u0000sg'"))
}

func TestErrors_ThrowErrorCode(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	require.NoError(t, e.ThrowError("E_CODE", "failed"))
	exc, err := e.GetAndClearLastException()
	require.NoError(t, err)
	setGlobal(t, e, "thrown", exc)
	assert.Equal(t, "E_CODE:failed", evalString(t, e, "thrown.code + ':' + thrown.message"))
}

func TestErrors_ThrowArbitraryValue(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	v, err := e.CreateInt32(17)
	require.NoError(t, err)
	require.NoError(t, e.Throw(v))

	exc, err := e.GetAndClearLastException()
	require.NoError(t, err)
	n, err := e.GetValueInt32(exc)
	require.NoError(t, err)
	assert.Equal(t, int32(17), n)

	none, err := e.GetAndClearLastException()
	require.NoError(t, err)
	typ, err := e.TypeOf(none)
	require.NoError(t, err)
	assert.Equal(t, TypeUndefined, typ)
}

func TestErrors_StatusMatching(t *testing.T) {
	err := newError("Op", TypeMismatch, "bad %s", "value")
	assert.Equal(t, "Op: type mismatch: bad value", err.Error())
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	assert.False(t, errors.Is(err, ErrInvalidArgument))

	assert.Equal(t, OK, StatusOf(nil))
	assert.Equal(t, TypeMismatch, StatusOf(err))
	assert.Equal(t, GenericFailure, StatusOf(errors.New("other")))
	assert.Equal(t, "status(99)", Status(99).String())
}
