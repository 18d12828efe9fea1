package embedjs

// CreateError builds an Error with message msg. code, when not the zero
// Handle, must be a string and becomes a read-only code property.
func (e *Env) CreateError(code, msg Handle) (Handle, error) {
	return e.createError("CreateError", "Error", code, msg)
}

// CreateRangeError is CreateError for a RangeError.
func (e *Env) CreateRangeError(code, msg Handle) (Handle, error) {
	return e.createError("CreateRangeError", "RangeError", code, msg)
}

// CreateTypeError is CreateError for a TypeError.
func (e *Env) CreateTypeError(code, msg Handle) (Handle, error) {
	return e.createError("CreateTypeError", "TypeError", code, msg)
}

func (e *Env) createError(op, ctor string, code, msg Handle) (Handle, error) {
	text, err := e.errorMessage(op, msg)
	if err != nil {
		return Handle{}, err
	}

	body := "var err=new " + ctor + "(" + jsString(text) + ");"
	if !code.IsZero() {
		ref, err := e.ref(op, code)
		if err != nil {
			return Handle{}, err
		}
		body = "var c=" + ref + ";if(typeof c!=='string')return 'mcode must be a string';" + body +
			"Object.defineProperty(err,'code',{value:c,enumerable:true,writable:false,configurable:true});"
	}
	return e.runHandle(op, body+"return 'o'+N.put(err);")
}

// errorMessage extracts msg with the sizing call followed by the copy.
func (e *Env) errorMessage(op string, msg Handle) (string, error) {
	if _, err := e.ref(op, msg); err != nil {
		return "", err
	}
	t, err := e.TypeOf(msg)
	if err != nil {
		return "", newError(op, TypeMismatch, "message must be a string")
	}
	if t != TypeString {
		return "", newError(op, TypeMismatch, "message must be a string, got %s", t)
	}
	n, err := e.GetValueStringUTF8(msg, nil)
	if err != nil {
		return "", renameOp(err, op)
	}
	buf := make([]byte, n+1)
	n, err = e.GetValueStringUTF8(msg, buf)
	if err != nil {
		return "", renameOp(err, op)
	}
	return string(buf[:n]), nil
}
