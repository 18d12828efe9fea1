package embedjs

import (
	"encoding/json"
	"path/filepath"

	"github.com/cryguy/embedjs/internal/modules"
	"go.uber.org/zap"
)

// Require loads id as if the top-level script had required it and returns
// its exports. An id that resolves nowhere fails with ModuleNotFound and
// leaves the module cache unchanged.
func (e *Env) Require(id string) (Handle, error) {
	const op = "Require"
	if id == "" {
		return Handle{}, newError(op, InvalidArgument, "empty module id")
	}
	if err := e.gate(op); err != nil {
		return Handle{}, err
	}
	depth := e.loader.Depth()
	lit := jsString(id)
	h, err := e.runHandle(op, "try{return 'o'+N.put(N.require('',"+lit+"));}"+
		"catch(err){if(err&&err.code==='MODULE_NOT_FOUND'&&err.moduleId==="+lit+")return 'n'+err.message;throw err;}")
	e.rollback(depth)
	if err != nil {
		if be, ok := err.(*Error); ok && be.Status == ModuleNotFound {
			be.ID = id
		}
		return Handle{}, err
	}
	return h, nil
}

// Resolve returns the canonical key id would load from, without loading
// it.
func (e *Env) Resolve(id string) (string, error) {
	const op = "Resolve"
	step := e.loader.Lookup("", id)
	switch step.Status {
	case modules.StepResolved:
		return step.Key, nil
	case modules.StepNotFound:
		return "", &Error{Status: ModuleNotFound, Op: op, Msg: step.Msg, ID: id}
	default:
		return "", newError(op, GenericFailure, "%s", step.Msg)
	}
}

// RunMain requires the script at path, taken relative to the configured
// base directory, then drains pending microtasks.
func (e *Env) RunMain(path string) (Handle, error) {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(filepath.Join(e.cfg.BaseDir, path))
		if err != nil {
			return Handle{}, newError("RunMain", InvalidArgument, "%v", err)
		}
		path = abs
	}
	h, err := e.Require(path)
	if err != nil {
		return Handle{}, renameOp(err, "RunMain")
	}
	e.RunMicrotasks()
	return h, nil
}

// Modules lists the module cache in load order.
func (e *Env) Modules() []ModuleInfo {
	snap := e.loader.Cache().Snapshot()
	out := make([]ModuleInfo, 0, len(snap))
	for _, m := range snap {
		out = append(out, ModuleInfo{
			ID:       m.ID,
			Builtin:  m.Origin == modules.OriginBuiltin,
			State:    m.State,
			Filename: m.Filename,
		})
	}
	return out
}

// resolveStep answers __embedjs_resolve from the loader glue.
func (e *Env) resolveStep(parent, id, mode string) string {
	var step modules.Step
	if mode == "resolve" {
		step = e.loader.Lookup(parent, id)
	} else {
		step = e.loader.Require(parent, id)
	}
	out, err := json.Marshal(step)
	if err != nil {
		return `{"s":"error","msg":"encoding loader step"}`
	}
	return string(out)
}

// settle answers __embedjs_settle once a module body has finished.
func (e *Env) settle(key, outcome string) {
	e.loader.Settle(key, outcome == "loaded")
}

// rollback forgets modules whose bodies never reported completion, which
// happens when the engine unwinds past the loader glue.
func (e *Env) rollback(depth int) {
	for _, key := range e.loader.Rollback(depth) {
		e.log.Warn("dropping module that never finished loading", zap.String("key", key))
		if err := e.rt.Eval("__embedjs.forget(" + jsString(key) + ");"); err != nil {
			e.log.Warn("forgetting module", zap.String("key", key), zap.Error(err))
		}
	}
}
