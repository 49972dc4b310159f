package patch

import (
	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

// passthrough reports whether a postfix chains the result.
func passthrough(p *Patch) bool { return !p.Method.IsVoid() }

func (r *rewrite) checkPostfix(p *Patch) error {
	if !passthrough(p) {
		return nil
	}
	m := p.Method
	defect := func(format string, args ...any) error {
		return errors.InvalidPatchArgument(r.target.String(), p.String(), format, args...)
	}
	switch {
	case r.target.IsVoid():
		return defect("passthrough postfix returning %s on a routine returning void", m.Return)
	case len(m.Params) == 0:
		return defect("passthrough postfix returning %s has no parameter to receive the result", m.Return)
	case m.Params[0].Type != m.Return:
		return defect("passthrough postfix first parameter is %s, return type is %s", m.Params[0].Type, m.Return)
	case m.Return != r.target.Return:
		return defect("passthrough postfix returns %s, routine returns %s", m.Return, r.target.Return)
	}
	return nil
}

// emitPostfixes runs the void postfixes, then the passthrough chain. Each
// link reloads the running result and stores its return value back.
func (r *rewrite) emitPostfixes(e *il.Emitter) {
	for _, p := range r.snap.Postfixes {
		if !passthrough(p) {
			r.emitCall(e, p, r.bindings[p])
		}
	}
	for _, p := range r.snap.Postfixes {
		if passthrough(p) {
			e.LdLoc(r.result)
			r.emitCall(e, p, r.bindings[p])
			e.StLoc(r.result)
		}
	}
}
