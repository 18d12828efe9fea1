package bootstrap

import "github.com/cryguy/embedjs/internal/core"

// loaderJS defines the CommonJS side of module loading. Resolution, cycle
// state and source loading live in Go behind __embedjs_resolve and
// __embedjs_settle; this glue owns the module objects and runs bodies.
const loaderJS = `
(function(g) {
	var N = g.__embedjs;
	var mods = new Map();
	N.mods = mods;

	function notFound(id, msg) {
		var err = new Error(msg);
		err.code = 'MODULE_NOT_FOUND';
		err.moduleId = id;
		return err;
	}

	function step(parent, id, mode) {
		if (typeof id !== 'string' || id === '') {
			throw new TypeError('The "id" argument must be a non-empty string');
		}
		var s = JSON.parse(__embedjs_resolve(parent, id, mode));
		switch (s.s) {
		case 'notfound':
			throw notFound(id, s.msg);
		case 'exhausted':
			var re = new RangeError(s.msg);
			re.code = 'ERR_REQUIRE_DEPTH';
			throw re;
		case 'error':
			var e = new Error(s.msg);
			e.code = 'ERR_REQUIRE';
			throw e;
		}
		return s;
	}

	function compile(source) {
		return (0, eval)('(function (exports, require, module, __filename, __dirname) {' + source + '\n})');
	}

	function makeRequire(parent) {
		var require = function(id) { return N.require(parent, id); };
		require.resolve = function(id) {
			var s = step(parent, id, 'resolve');
			return s.filename || s.key;
		};
		require.cache = mods;
		return require;
	}
	N.makeRequire = makeRequire;

	function record(key, filename, dirname, paths, parent) {
		var p = parent ? mods.get(parent) : undefined;
		var m = {
			id: key,
			filename: filename,
			path: dirname,
			paths: paths || [],
			loaded: false,
			exports: {},
			parent: p || null,
			children: []
		};
		if (p) p.children.push(m);
		mods.set(key, m);
		return m;
	}

	N.require = function(parent, id) {
		var s = step(parent, id, 'require');
		if (s.s === 'cached') {
			var cached = mods.get(s.key);
			if (cached) return cached.exports;
			throw new Error('module ' + s.key + ' is registered but has no record');
		}
		var m = record(s.key, s.filename, s.dirname, s.paths, parent);
		try {
			if (s.format === 'json') {
				m.exports = JSON.parse(s.source);
			} else {
				var fn = compile(s.source);
				fn.call(m.exports, m.exports, makeRequire(s.key), m, s.filename, s.dirname);
			}
		} catch (err) {
			mods.delete(s.key);
			__embedjs_settle(s.key, 'failed');
			throw err;
		}
		m.loaded = true;
		__embedjs_settle(s.key, 'loaded');
		return m.exports;
	};

	N.defineBuiltin = function(name, source) {
		var m = record(name, name, '', [], '');
		try {
			compile(source).call(m.exports, m.exports, makeRequire(name), m, name, '');
		} catch (err) {
			mods.delete(name);
			throw err;
		}
		m.loaded = true;
	};

	N.setBuiltin = function(name, exports) {
		var m = record(name, name, '', [], '');
		m.exports = exports;
		m.loaded = true;
	};

	N.forget = function(key) { mods.delete(key); };

	g.require = makeRequire('');
})(globalThis);
`

// SetupLoader installs the require glue and a global require bound to the
// top level. The caller registers __embedjs_resolve and __embedjs_settle.
func SetupLoader(rt core.JSRuntime) error {
	return rt.Eval(loaderJS)
}
