package patch

import (
	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

func (r *rewrite) checkPrefix(p *Patch) error {
	ret := p.Method.Return
	if !ret.IsVoid() && ret != il.Bool {
		return errors.InvalidPatchArgument(r.target.String(), p.String(),
			"prefix must return void or bool, not %s", ret)
	}
	return nil
}

// controlFlowCapable reports whether the prefixes can skip the original
// body: one of them returns bool or names the run flag.
func controlFlowCapable(prefixes []*Patch) bool {
	for _, p := range prefixes {
		if p.Method == nil {
			continue
		}
		if p.Method.Return == il.Bool {
			return true
		}
		for _, param := range p.Method.Params {
			if param.Name == RunOriginalName {
				return true
			}
		}
	}
	return false
}

// emitPrefixes calls each prefix and, when the group can skip the body,
// branches to the skip label once the run flag is false.
func (r *rewrite) emitPrefixes(e *il.Emitter) {
	for _, p := range r.snap.Prefixes {
		r.emitCall(e, p, r.bindings[p])
		if p.Method.Return == il.Bool {
			e.LdLoc(r.runFlag).And().StLoc(r.runFlag)
		}
	}
	if r.capable {
		e.LdLoc(r.runFlag).BrFalse(r.skip)
	}
}

// emitCall pushes the bound arguments and calls the patch.
func (r *rewrite) emitCall(e *il.Emitter, p *Patch, bindings []*Binding) {
	for _, b := range bindings {
		b.emit(e)
	}
	e.Call(p.Method)
}
