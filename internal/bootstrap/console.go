package bootstrap

import "github.com/cryguy/embedjs/internal/core"

// LogSink receives one formatted console line.
type LogSink func(level, message string)

const consoleJS = `
(function(g) {
	var N = g.__embedjs;
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	var counters = {};
	var depth = 0;

	function show(arg) {
		if (typeof arg === 'string') return arg;
		if (N.isError(arg)) return String(arg.stack || arg);
		if (typeof arg === 'object' && arg !== null) {
			try {
				var s = JSON.stringify(arg);
				if (s !== undefined) return s;
			} catch (e) {}
		}
		return String(arg);
	}

	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) parts.push(show(arguments[j]));
				var pad = depth > 0 ? new Array(depth + 1).join('  ') : '';
				__embedjs_console(lvl, pad + parts.join(' '));
			};
		})(levels[i]);
	}

	con.assert = function(cond) {
		if (cond) return;
		var args = Array.prototype.slice.call(arguments, 1);
		con.error.apply(null, ['Assertion failed' + (args.length ? ':' : '')].concat(args));
	};
	con.count = function(label) {
		var l = label || 'default';
		counters[l] = (counters[l] || 0) + 1;
		con.log(l + ': ' + counters[l]);
	};
	con.countReset = function(label) { counters[label || 'default'] = 0; };
	con.group = function() {
		if (arguments.length) con.log.apply(null, arguments);
		depth++;
	};
	con.groupEnd = function() { if (depth > 0) depth--; };
	con.dir = function(obj) { con.log(show(obj)); };
	con.trace = function() {
		con.debug.apply(null, ['Trace:'].concat(Array.prototype.slice.call(arguments)));
	};

	N.console = con;
	g.console = con;
})(globalThis);
`

// SetupConsole replaces globalThis.console with a Go-backed version that
// forwards every line to sink.
func SetupConsole(rt core.JSRuntime, sink LogSink) error {
	if err := rt.RegisterFunc("__embedjs_console", func(level, message string) {
		sink(level, message)
	}); err != nil {
		return err
	}
	return rt.Eval(consoleJS)
}
