package patch

import (
	"go.uber.org/zap"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

// TranspileContext is handed to each transpiler. Labels and locals created
// through it belong to the body being rewritten.
type TranspileContext struct {
	// Original is the routine being patched.
	Original *il.Method
	// Body is the working copy. Its Instrs are not updated until every
	// transpiler has run.
	Body   *il.Body
	Logger *zap.Logger
}

// DefineLabel reserves a label in the working body.
func (c *TranspileContext) DefineLabel() *il.Label { return c.Body.DefineLabel() }

// DeclareLocal declares a local in the working body.
func (c *TranspileContext) DeclareLocal(t *il.Type, name string) *il.Local {
	return c.Body.DeclareLocal(t, name)
}

// Emitter returns an emitter for building replacement sequences.
func (c *TranspileContext) Emitter() *il.Emitter { return c.Body.Emitter() }

// transpile runs the transpilers in order and commits the last result.
func (r *rewrite) transpile() error {
	if len(r.snap.Transpilers) == 0 {
		return nil
	}
	instrs := r.body.Instrs
	for _, p := range r.snap.Transpilers {
		if p.Transpile == nil {
			return errors.InvalidPatchArgument(r.target.String(), p.String(), "transpiler has no function")
		}
		ctx := &TranspileContext{Original: r.target, Body: r.body, Logger: r.log}
		out, err := p.Transpile(ctx, instrs)
		if err != nil {
			return errors.New(errors.PhaseTranspile, errors.KindRewriteFailed).
				Routine(r.target.String()).
				Patch(p.String()).
				Detail("transpiler failed").
				Cause(err).
				Build()
		}
		if out != nil {
			instrs = out
		}
		r.log.Debug("transpiler applied",
			zap.String("routine", r.target.String()),
			zap.String("patch", p.String()),
			zap.Int("instructions", len(instrs)))
	}
	r.body.Instrs = instrs
	return nil
}

// Replace returns a transpiler-style rewrite of instrs in which every
// instruction matching match is replaced by the result of with. Labels and
// block markers of a replaced instruction move to the first replacement.
func Replace(instrs []*il.Instruction, match func(*il.Instruction) bool, with func(*il.Instruction) []*il.Instruction) []*il.Instruction {
	out := make([]*il.Instruction, 0, len(instrs))
	for _, ins := range instrs {
		if !match(ins) {
			out = append(out, ins)
			continue
		}
		repl := with(ins)
		if len(repl) == 0 {
			repl = []*il.Instruction{il.New(il.Nop)}
		}
		if repl[0] != ins {
			ins.MoveLabelsTo(repl[0])
		}
		if last := repl[len(repl)-1]; last != ins {
			var keep []il.Block
			for _, b := range ins.Blocks {
				if b.Kind == il.EndBlock {
					last.Blocks = append(last.Blocks, b)
					continue
				}
				keep = append(keep, b)
			}
			ins.Blocks = keep
		}
		out = append(out, repl...)
	}
	return out
}
