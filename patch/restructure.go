package patch

import (
	"github.com/wippyai/ilpatch/il"
)

// restructure turns every ret of the body into a branch to the merge label
// and returns how many were rewritten. A non-void ret leaves its value on
// the stack, so the merge point receives the result there.
func (r *rewrite) restructure() int {
	n := 0
	for _, ins := range r.body.Instrs {
		if ins.Op == il.Ret {
			ins.Op = il.Br
			ins.Operand = r.merge
			n++
		}
	}
	return n
}

// exitReachable reports whether control can reach the code after the
// merge label.
func (r *rewrite) exitReachable() bool {
	return r.returns > 0 || r.capable || len(r.snap.Finalizers) > 0
}

// emitMerge places the merge label and stores a carried result.
func (r *rewrite) emitMerge(e *il.Emitter) {
	e.MarkLabel(r.merge)
	if r.result != nil {
		e.StLoc(r.result)
	}
	if r.skip != nil {
		e.MarkLabel(r.skip)
	}
}

// emitExit emits the single return of the rewritten routine.
func (r *rewrite) emitExit(e *il.Emitter) {
	if r.result != nil {
		e.LdLoc(r.result)
	}
	e.Ret()
}
