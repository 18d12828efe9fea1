package embedjs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addCallback(env *Env, info *CallbackInfo) (Handle, error) {
	a, err := env.GetValueDouble(info.Arg(0))
	if err != nil {
		return Handle{}, err
	}
	b, err := env.GetValueDouble(info.Arg(1))
	if err != nil {
		return Handle{}, err
	}
	return env.CreateDouble(a + b)
}

func TestFunction_CalledFromScript(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	fn, err := e.CreateFunction("add", addCallback, nil)
	require.NoError(t, err)
	setGlobal(t, e, "add", fn)

	baseSlots := slotCount(t, e)
	assert.Equal(t, 5.0, evalNumber(t, e, "add(2, 3)"))
	assert.Equal(t, "add", evalString(t, e, "add.name"))

	// Only the completion value of each RunScript stays in the root scope.
	assert.Equal(t, baseSlots+2, slotCount(t, e))
}

func TestFunction_CalledFromGo(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	fn, err := e.CreateFunction("add", addCallback, nil)
	require.NoError(t, err)
	a, err := e.CreateInt32(40)
	require.NoError(t, err)
	b, err := e.CreateInt32(2)
	require.NoError(t, err)

	r, err := e.CallFunction(Handle{}, fn, a, b)
	require.NoError(t, err)
	n, err := e.GetValueInt32(r)
	require.NoError(t, err)
	assert.Equal(t, int32(42), n)

	notFn := mustString(t, e, "nope")
	_, err = e.CallFunction(Handle{}, notFn)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestFunction_ReceiverAndData(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	var gotData any
	fn, err := e.CreateFunction("self", func(env *Env, info *CallbackInfo) (Handle, error) {
		gotData = info.Data
		assert.True(t, info.Arg(3).IsZero())
		return info.This, nil
	}, 99)
	require.NoError(t, err)

	obj, err := e.CreateObject()
	require.NoError(t, err)
	r, err := e.CallFunction(obj, fn)
	require.NoError(t, err)
	same, err := e.StrictEquals(r, obj)
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, 99, gotData)
}

func TestFunction_ErrorsBecomeScriptExceptions(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	fail, err := e.CreateFunction("fail", func(*Env, *CallbackInfo) (Handle, error) {
		return Handle{}, errors.New("disk on fire")
	}, nil)
	require.NoError(t, err)
	setGlobal(t, e, "fail", fail)

	throwing, err := e.CreateFunction("throwing", func(env *Env, _ *CallbackInfo) (Handle, error) {
		return Handle{}, env.ThrowError("E_NATIVE", "thrown natively")
	}, nil)
	require.NoError(t, err)
	setGlobal(t, e, "throwing", throwing)

	assert.Equal(t, "disk on fire",
		evalString(t, e, "(function(){try{fail();return 'no';}catch(e){return e.message;}})()"))
	assert.Equal(t, "E_NATIVE",
		evalString(t, e, "(function(){try{throwing();return 'no';}catch(e){return e.code;}})()"))

	_, err = e.RunScript("throwing()")
	assert.True(t, errors.Is(err, ErrPendingException))
	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "thrown natively", be.Msg)

	_, err = e.GetAndClearLastException()
	require.NoError(t, err)
}

func TestFunction_PanicIsContained(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	fn, err := e.CreateFunction("explode", func(*Env, *CallbackInfo) (Handle, error) {
		panic("kaboom")
	}, nil)
	require.NoError(t, err)
	setGlobal(t, e, "explode", fn)

	msg := evalString(t, e, "(function(){try{explode();}catch(e){return e.message;}})()")
	assert.Contains(t, msg, "kaboom")
	assert.Equal(t, 1, len(e.scopes))
}

func TestFunction_LeakedScopesAreUnwound(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	fn, err := e.CreateFunction("leak", func(env *Env, _ *CallbackInfo) (Handle, error) {
		env.OpenScope()
		return env.CreateInt32(1)
	}, nil)
	require.NoError(t, err)
	setGlobal(t, e, "leak", fn)

	before := e.LiveHandles()
	_, err = e.RunScript("leak()")
	require.NoError(t, err)
	assert.Equal(t, 1, len(e.scopes))
	assert.Equal(t, before+1, e.LiveHandles())
}

func TestFunction_NilCallback(t *testing.T) {
	e, _ := newTestEnv(t, nil)
	_, err := e.CreateFunction("nil", nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
