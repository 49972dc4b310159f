package patch

import (
	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

func (r *rewrite) checkFinalizer(p *Patch) error {
	ret := p.Method.Return
	if !ret.IsVoid() && !il.Exception.IsAssignableFrom(ret) {
		return errors.InvalidPatchArgument(r.target.String(), p.String(),
			"finalizer must return void or an exception, not %s", ret)
	}
	return nil
}

// replacesException reports whether a finalizer can swap the exception
// that leaves the routine, by returning one or by writing the slot.
func replacesException(p *Patch, bindings []*Binding) bool {
	if !p.Method.IsVoid() {
		return true
	}
	for _, b := range bindings {
		if b.Param.Name == ExceptionName && b.Mode == Address {
			return true
		}
	}
	return false
}

// initFinalizerSlots resets the exception slot and the finalized flag at
// routine entry, outside the protected region.
func (r *rewrite) initFinalizerSlots(e *il.Emitter) {
	e.LdNull().StLoc(r.exception)
	e.LdcBool(false).StLoc(r.finalized)
}

// emitFinalizers closes the protected region. On success the finalizers
// run unguarded, then any exception they produced is thrown. The handler
// records the exception and, unless the success path already ran them,
// runs each finalizer with its own failure swallowed before deciding
// between rethrow and normal exit.
func (r *rewrite) emitFinalizers(e *il.Emitter) {
	replaces := false
	for _, p := range r.snap.Finalizers {
		if replacesException(p, r.bindings[p]) {
			replaces = true
		}
	}

	done := e.DefineLabel()
	for _, p := range r.snap.Finalizers {
		r.emitCall(e, p, r.bindings[p])
		if !p.Method.IsVoid() {
			e.StLoc(r.exception)
		}
	}
	e.LdcBool(true).StLoc(r.finalized)
	e.LdLoc(r.exception).BrFalse(done)
	e.LdLoc(r.exception).Throw()
	e.MarkLabel(done).Leave(r.exit)

	check := e.DefineLabel()
	out := e.DefineLabel()
	e.BeginCatch(il.Exception)
	e.StLoc(r.exception)
	e.LdLoc(r.finalized).BrTrue(check)
	for _, p := range r.snap.Finalizers {
		next := e.DefineLabel()
		e.BeginTry()
		r.emitCall(e, p, r.bindings[p])
		if !p.Method.IsVoid() {
			e.StLoc(r.exception)
		}
		e.Leave(next)
		e.BeginCatch(il.Exception).Pop().Leave(next).EndBlock()
		e.MarkLabel(next)
	}
	e.MarkLabel(check)
	e.LdLoc(r.exception).BrFalse(out)
	if replaces {
		e.LdLoc(r.exception).Throw()
	} else {
		e.Rethrow()
	}
	e.MarkLabel(out).Leave(r.exit)
	e.EndBlock()
}
