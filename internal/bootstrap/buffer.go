package bootstrap

import "github.com/cryguy/embedjs/internal/core"

// bufferJS defines the global Buffer class: a Uint8Array subclass whose
// instances created by the bridge own a dedicated backing store.
const bufferJS = `
(function(g) {
	var N = g.__embedjs;
	var mode = g.__embedjs_mode;
	delete g.__embedjs_mode;
	var B64 = 'ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/';

	function backing(size) {
		return mode === 'sab' ? new SharedArrayBuffer(size) : new ArrayBuffer(size);
	}

	function utf8Encode(s) {
		var out = [];
		for (var i = 0; i < s.length; i++) {
			var c = s.charCodeAt(i);
			if (c >= 0xd800 && c <= 0xdbff && i + 1 < s.length) {
				var d = s.charCodeAt(i + 1);
				if (d >= 0xdc00 && d <= 0xdfff) {
					c = 0x10000 + ((c - 0xd800) << 10) + (d - 0xdc00);
					i++;
				} else {
					c = 0xfffd;
				}
			} else if (c >= 0xd800 && c <= 0xdfff) {
				c = 0xfffd;
			}
			if (c < 0x80) out.push(c);
			else if (c < 0x800) out.push(0xc0 | (c >> 6), 0x80 | (c & 63));
			else if (c < 0x10000) out.push(0xe0 | (c >> 12), 0x80 | ((c >> 6) & 63), 0x80 | (c & 63));
			else out.push(0xf0 | (c >> 18), 0x80 | ((c >> 12) & 63), 0x80 | ((c >> 6) & 63), 0x80 | (c & 63));
		}
		return out;
	}

	function utf8Decode(b, start, end) {
		var s = '';
		var i = start;
		while (i < end) {
			var c = b[i++];
			var cp;
			if (c < 0x80) {
				cp = c;
			} else if (c >= 0xc0 && c < 0xe0 && i < end) {
				cp = ((c & 31) << 6) | (b[i++] & 63);
			} else if (c >= 0xe0 && c < 0xf0 && i + 1 < end) {
				cp = ((c & 15) << 12) | ((b[i] & 63) << 6) | (b[i + 1] & 63);
				i += 2;
			} else if (c >= 0xf0 && c < 0xf8 && i + 2 < end) {
				cp = ((c & 7) << 18) | ((b[i] & 63) << 12) | ((b[i + 1] & 63) << 6) | (b[i + 2] & 63);
				i += 3;
			} else {
				cp = 0xfffd;
			}
			if (cp > 0x10ffff) cp = 0xfffd;
			s += String.fromCodePoint(cp);
		}
		return s;
	}

	function b64Encode(b, start, end) {
		var s = '';
		for (var i = start; i < end; i += 3) {
			var n = b[i] << 16 | (i + 1 < end ? b[i + 1] << 8 : 0) | (i + 2 < end ? b[i + 2] : 0);
			s += B64.charAt(n >> 18 & 63) + B64.charAt(n >> 12 & 63);
			s += i + 1 < end ? B64.charAt(n >> 6 & 63) : '=';
			s += i + 2 < end ? B64.charAt(n & 63) : '=';
		}
		return s;
	}

	function b64Decode(s) {
		var out = [];
		var acc = 0, bits = 0;
		for (var i = 0; i < s.length; i++) {
			var c = s.charAt(i);
			if (c === '=') break;
			var v = B64.indexOf(c === '-' ? '+' : c === '_' ? '/' : c);
			if (v < 0) continue;
			acc = (acc << 6) | v;
			bits += 6;
			if (bits >= 8) {
				bits -= 8;
				out.push((acc >> bits) & 255);
			}
		}
		return out;
	}

	function encode(str, enc) {
		switch (String(enc || 'utf8').toLowerCase()) {
		case 'utf8': case 'utf-8':
			return utf8Encode(str);
		case 'hex':
			var h = [];
			for (var i = 0; i + 1 < str.length; i += 2) {
				var byte = parseInt(str.substr(i, 2), 16);
				if (byte !== byte) break;
				h.push(byte);
			}
			return h;
		case 'base64': case 'base64url':
			return b64Decode(str);
		case 'latin1': case 'binary': case 'ascii':
			var l = [];
			for (var j = 0; j < str.length; j++) l.push(str.charCodeAt(j) & 255);
			return l;
		}
		throw new TypeError('Unknown encoding: ' + enc);
	}

	class Buffer extends Uint8Array {
		static alloc(size, fill) {
			if (typeof size !== 'number' || size !== size || size < 0) {
				throw new RangeError('The "size" argument must be a non-negative number');
			}
			var b = new Buffer(backing(size), 0, size);
			if (fill !== undefined) {
				b.fill(typeof fill === 'string' ? fill.charCodeAt(0) : fill);
			}
			return b;
		}

		static allocUnsafe(size) {
			return Buffer.alloc(size);
		}

		static from(value, encodingOrOffset, length) {
			if (typeof value === 'string') {
				var bytes = encode(value, encodingOrOffset);
				var b = Buffer.alloc(bytes.length);
				b.set(bytes);
				return b;
			}
			if (value instanceof ArrayBuffer ||
				(typeof SharedArrayBuffer === 'function' && value instanceof SharedArrayBuffer)) {
				var off = encodingOrOffset || 0;
				return new Buffer(value, off, length === undefined ? value.byteLength - off : length);
			}
			if (value !== null && typeof value === 'object' && typeof value.length === 'number') {
				var out = Buffer.alloc(value.length);
				for (var i = 0; i < value.length; i++) out[i] = value[i] & 255;
				return out;
			}
			throw new TypeError('The first argument must be a string, Buffer, ArrayBuffer or array-like object');
		}

		static isBuffer(v) {
			return v instanceof Buffer;
		}

		static byteLength(value, enc) {
			if (typeof value === 'string') return encode(value, enc).length;
			return value.byteLength;
		}

		static concat(list, total) {
			if (total === undefined) {
				total = 0;
				for (var i = 0; i < list.length; i++) total += list[i].length;
			}
			var out = Buffer.alloc(total);
			var pos = 0;
			for (var j = 0; j < list.length && pos < total; j++) {
				var part = list[j];
				var n = Math.min(part.length, total - pos);
				out.set(n === part.length ? part : part.subarray(0, n), pos);
				pos += n;
			}
			return out;
		}

		toString(enc, start, end) {
			start = start === undefined ? 0 : Math.max(0, start | 0);
			end = end === undefined ? this.length : Math.min(this.length, end | 0);
			if (end <= start) return '';
			switch (String(enc || 'utf8').toLowerCase()) {
			case 'utf8': case 'utf-8':
				return utf8Decode(this, start, end);
			case 'hex':
				var h = '';
				for (var i = start; i < end; i++) h += (this[i] < 16 ? '0' : '') + this[i].toString(16);
				return h;
			case 'base64':
				return b64Encode(this, start, end);
			case 'latin1': case 'binary': case 'ascii':
				var l = '';
				for (var j = start; j < end; j++) l += String.fromCharCode(this[j]);
				return l;
			}
			throw new TypeError('Unknown encoding: ' + enc);
		}

		equals(other) {
			if (!(other instanceof Uint8Array)) {
				throw new TypeError('The "other" argument must be a Buffer or Uint8Array');
			}
			if (other.length !== this.length) return false;
			for (var i = 0; i < this.length; i++) {
				if (this[i] !== other[i]) return false;
			}
			return true;
		}

		slice(start, end) {
			return this.subarray(start, end);
		}

		toJSON() {
			return { type: 'Buffer', data: Array.prototype.slice.call(this) };
		}
	}

	N.Buffer = Buffer;
	N.mode = mode;
	N.alloc = function(size) { return Buffer.alloc(size); };
	N.isBuffer = function(v) {
		var ctor = g.Buffer;
		return typeof ctor === 'function' && v instanceof ctor;
	};

	g.Buffer = Buffer;
})(globalThis);
`

// SetupBuffer installs the global Buffer class. mode selects the backing
// store type the runtime can map into native memory ("ab" or "sab").
func SetupBuffer(rt core.JSRuntime, mode string) error {
	if err := rt.SetGlobal("__embedjs_mode", mode); err != nil {
		return err
	}
	return rt.Eval(bufferJS)
}
