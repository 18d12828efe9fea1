package embedjs

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Handle refers to one engine value for as long as the scope it was
// created in stays open. The zero Handle refers to nothing.
type Handle struct {
	id uint64
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.id == 0 }

func (h Handle) String() string {
	if h.id == 0 {
		return "handle(nil)"
	}
	return "handle(" + strconv.FormatUint(h.id, 10) + ")"
}

// HandleScope bounds the lifetime of the handles created while it is the
// innermost open scope.
type HandleScope struct {
	env       *Env
	parent    *HandleScope
	ids       []uint64
	releases  []func()
	escapable bool
	escaped   bool
	closed    bool
}

// OpenScope pushes a new scope; handles created from now on belong to it.
func (e *Env) OpenScope() *HandleScope {
	s := &HandleScope{env: e, parent: e.current()}
	e.scopes = append(e.scopes, s)
	return s
}

// OpenEscapableScope pushes a scope that may promote one handle to its
// parent with Escape.
func (e *Env) OpenEscapableScope() *HandleScope {
	s := e.OpenScope()
	s.escapable = true
	return s
}

// Close closes s. See Env.CloseScope.
func (s *HandleScope) Close() error {
	return s.env.CloseScope(s)
}

// CloseScope invalidates every handle created in s. Closing a scope that
// is not the innermost one is a contract violation: with StrictScopes it
// panics, otherwise the scopes above s are closed first.
func (e *Env) CloseScope(s *HandleScope) error {
	const op = "CloseScope"
	if s == nil || s.env != e {
		return newError(op, InvalidArgument, "scope does not belong to this environment")
	}
	if s.closed {
		return newError(op, InvalidArgument, "scope already closed")
	}
	if s == e.root {
		return newError(op, InvalidArgument, "the root scope cannot be closed")
	}
	if cur := e.current(); cur != s {
		if e.cfg.StrictScopes {
			panic(fmt.Sprintf("embedjs: closing handle scope at depth %d while depth %d is current", e.depthOf(s), len(e.scopes)-1))
		}
		e.log.Warn("closing a handle scope that is not current; unwinding",
			zap.Int("depth", e.depthOf(s)), zap.Int("current", len(e.scopes)-1))
		for e.current() != s {
			e.pop()
		}
	}
	e.pop()
	return nil
}

// Escape copies h into the parent scope and returns the new handle. It
// succeeds at most once per scope.
func (s *HandleScope) Escape(h Handle) (Handle, error) {
	const op = "Escape"
	e := s.env
	if !s.escapable {
		return Handle{}, newError(op, InvalidArgument, "scope is not escapable")
	}
	if s.closed {
		return Handle{}, newError(op, InvalidArgument, "scope already closed")
	}
	if s.escaped {
		return Handle{}, newError(op, EscapeCalledTwice, "a value already escaped this scope")
	}
	ref, err := e.ref(op, h)
	if err != nil {
		return Handle{}, err
	}
	out, err := e.run(op, "return 'o'+N.put("+ref+");")
	if err != nil {
		return Handle{}, err
	}
	id, err := strconv.ParseUint(out, 10, 64)
	if err != nil {
		return Handle{}, newError(op, GenericFailure, "bad slot id %q", out)
	}
	s.escaped = true
	s.parent.add(id)
	return Handle{id: id}, nil
}

// IsLive reports whether h's scope is still open.
func (e *Env) IsLive(h Handle) bool {
	_, ok := e.live[h.id]
	return ok && h.id != 0
}

// LiveHandles returns the number of live handles across all scopes.
func (e *Env) LiveHandles() int { return len(e.live) }

func (e *Env) current() *HandleScope {
	return e.scopes[len(e.scopes)-1]
}

func (e *Env) depthOf(s *HandleScope) int {
	for i, sc := range e.scopes {
		if sc == s {
			return i
		}
	}
	return -1
}

// adopt registers slot id in the current scope.
func (e *Env) adopt(id uint64) Handle {
	e.current().add(id)
	return Handle{id: id}
}

func (s *HandleScope) add(id uint64) {
	s.ids = append(s.ids, id)
	s.env.live[id] = s
}

// pop closes the innermost scope and frees its slots.
func (e *Env) pop() {
	n := len(e.scopes) - 1
	s := e.scopes[n]
	e.scopes = e.scopes[:n]
	s.closed = true
	s.runReleases()
	if len(s.ids) == 0 {
		return
	}
	parts := make([]string, len(s.ids))
	for i, id := range s.ids {
		delete(e.live, id)
		parts[i] = strconv.FormatUint(id, 10)
	}
	s.ids = nil
	if err := e.rt.Eval("__embedjs.release([" + strings.Join(parts, ",") + "]);"); err != nil {
		e.log.Warn("releasing handle slots", zap.Error(err))
	}
}

func (s *HandleScope) runReleases() {
	for i := len(s.releases) - 1; i >= 0; i-- {
		s.releases[i]()
	}
	s.releases = nil
}
