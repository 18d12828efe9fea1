package embedjs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_HandlesDieWithTheirScope(t *testing.T) {
	e, _ := newTestEnv(t, nil)
	baseSlots := slotCount(t, e)
	baseLive := e.LiveHandles()

	outer := e.OpenScope()
	a, err := e.CreateInt32(1)
	require.NoError(t, err)
	b, err := e.CreateObject()
	require.NoError(t, err)

	inner := e.OpenScope()
	c, err := e.CreateString("inner")
	require.NoError(t, err)
	assert.True(t, e.IsLive(a))
	assert.True(t, e.IsLive(c))

	require.NoError(t, inner.Close())
	assert.False(t, e.IsLive(c))
	assert.True(t, e.IsLive(a), "outer handles survive an inner close")
	assert.True(t, e.IsLive(b))

	_, err = e.GetValueString(c)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	require.NoError(t, outer.Close())
	assert.False(t, e.IsLive(a))
	assert.False(t, e.IsLive(b))
	assert.Equal(t, baseLive, e.LiveHandles())
	assert.Equal(t, baseSlots, slotCount(t, e))
}

func TestScope_RepeatedOpenClose(t *testing.T) {
	e, _ := newTestEnv(t, nil)
	baseSlots := slotCount(t, e)

	for i := 0; i < 5; i++ {
		s := e.OpenScope()
		var hs []Handle
		for j := 0; j <= i; j++ {
			h, err := e.CreateInt32(int32(j))
			require.NoError(t, err)
			hs = append(hs, h)
		}
		for _, h := range hs {
			assert.True(t, e.IsLive(h))
		}
		require.NoError(t, s.Close())
		for _, h := range hs {
			assert.False(t, e.IsLive(h))
		}
	}
	assert.Equal(t, baseSlots, slotCount(t, e))
}

func TestScope_CloseTwiceAndRoot(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	s := e.OpenScope()
	require.NoError(t, s.Close())
	assert.True(t, errors.Is(s.Close(), ErrInvalidArgument))
	assert.True(t, errors.Is(e.CloseScope(e.root), ErrInvalidArgument))
	assert.True(t, errors.Is(e.CloseScope(nil), ErrInvalidArgument))
}

func TestScope_EscapePromotesOnce(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	outer := e.OpenScope()
	defer outer.Close()

	esc := e.OpenEscapableScope()
	h, err := e.CreateString("kept")
	require.NoError(t, err)
	promoted, err := esc.Escape(h)
	require.NoError(t, err)

	_, err = esc.Escape(h)
	assert.True(t, errors.Is(err, ErrEscapeCalledTwice))
	assert.Equal(t, EscapeCalledTwice, StatusOf(err))

	require.NoError(t, esc.Close())
	assert.False(t, e.IsLive(h))
	assert.True(t, e.IsLive(promoted))
	s, err := e.GetValueString(promoted)
	require.NoError(t, err)
	assert.Equal(t, "kept", s)
}

func TestScope_EscapeNeedsEscapableScope(t *testing.T) {
	e, _ := newTestEnv(t, nil)
	s := e.OpenScope()
	defer s.Close()
	h, err := e.CreateBoolean(true)
	require.NoError(t, err)
	_, err = s.Escape(h)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestScope_NonCurrentCloseUnwinds(t *testing.T) {
	e, _ := newTestEnv(t, nil)

	outer := e.OpenScope()
	inner := e.OpenScope()
	h, err := e.CreateInt32(7)
	require.NoError(t, err)

	require.NoError(t, outer.Close())
	assert.False(t, e.IsLive(h))
	assert.True(t, errors.Is(inner.Close(), ErrInvalidArgument))
}

func TestScope_NonCurrentClosePanicsWhenStrict(t *testing.T) {
	e, _ := newTestEnv(t, func(c *Config) { c.StrictScopes = true })

	outer := e.OpenScope()
	inner := e.OpenScope()
	assert.Panics(t, func() { _ = outer.Close() })

	require.NoError(t, inner.Close())
	require.NoError(t, outer.Close())
}

func TestScope_ClosedEnvRejectsWork(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDir = t.TempDir()
	e, err := NewEnv(cfg)
	require.NoError(t, err)
	s := e.OpenScope()
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.CreateObject()
	assert.Equal(t, GenericFailure, StatusOf(err))
	assert.True(t, errors.Is(s.Close(), ErrInvalidArgument))
}
