// Package bootstrap installs the script-side half of the native bridge:
// the slot table that backs handles, the Buffer class, the CommonJS loader
// glue and the Go-backed console. Each Setup function evaluates one JS
// snippet against a core.JSRuntime; Install runs them in order.
package bootstrap

import "github.com/cryguy/embedjs/internal/core"

// GlobalName is the hidden global holding the bridge state.
const GlobalName = "__embedjs"

// handlesJS defines the slot table. Every engine value reachable from a
// native handle lives in slots under an id allocated here; closing a handle
// scope deletes its ids so the engine can collect the values.
const handlesJS = `
(function(g) {
	var slots = new Map();
	var refs = new Map();
	var next = 1;
	var N = { pending: undefined, hasPending: false, ret: undefined };

	N.put = function(v) { var id = next++; slots.set(id, v); return id; };
	N.get = function(id) { return slots.get(id); };
	N.has = function(id) { return slots.has(id); };
	N.release = function(ids) {
		for (var i = 0; i < ids.length; i++) slots.delete(ids[i]);
	};
	N.size = function() { return slots.size; };

	N.ref = function(v) { var id = next++; refs.set(id, v); return id; };
	N.deref = function(id) { return refs.get(id); };
	N.unref = function(id) { refs.delete(id); };

	N.pend = function(err) { N.pending = err; N.hasPending = true; };
	N.take = function() {
		var e = N.pending;
		N.pending = undefined;
		N.hasPending = false;
		return e;
	};

	N.exhausted = function(err) {
		if (err === null || typeof err !== 'object') return false;
		if (err.code === 'ERR_REQUIRE_DEPTH') return true;
		var internal = typeof InternalError === 'function' && err instanceof InternalError;
		if (!internal && !(err instanceof RangeError)) return false;
		return /stack overflow|call stack size|out of memory/i.test(String(err.message));
	};
	N.fail = function(err) {
		if (N.exhausted(err)) return 'r' + String(err.message);
		N.pend(err);
		return 't';
	};

	N.tag = function(v) {
		if (v === undefined) return 0;
		if (v === null) return 1;
		switch (typeof v) {
		case 'boolean': return 2;
		case 'number': return 3;
		case 'string': return 4;
		case 'object': return 5;
		case 'function': return 6;
		}
		return -1;
	};
	N.num = function(v) { return Object.is(v, -0) ? '-0' : String(v); };
	N.isError = function(v) {
		return v instanceof Error || Object.prototype.toString.call(v) === '[object Error]';
	};
	N.isTypedArray = function(v) {
		return ArrayBuffer.isView(v) && !(v instanceof DataView);
	};

	N.fn = function(name, id) {
		var f = function() {
			var ids = [];
			for (var i = 0; i < arguments.length; i++) ids.push(N.put(arguments[i]));
			var r = __embedjs_invoke(String(id), String(N.put(this)), ids.join(','));
			switch (r.charAt(0)) {
			case 'u': return undefined;
			case 'o':
				var v = N.ret;
				N.ret = undefined;
				return v;
			case 't': throw N.take();
			default: throw new Error(r.slice(1));
			}
		};
		Object.defineProperty(f, 'name', { value: name });
		return f;
	};

	Object.defineProperty(g, '__embedjs', {
		value: N, enumerable: false, configurable: false, writable: false
	});
})(globalThis);
`

// SetupHandles installs the slot table, the pending-exception cell and the
// native function trampoline. The trampoline calls __embedjs_invoke, which
// the caller registers separately.
func SetupHandles(rt core.JSRuntime) error {
	return rt.Eval(handlesJS)
}
