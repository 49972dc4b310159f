package interp

import (
	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

// activeCatch records the exception a running catch handler was entered
// with, for rethrow.
type activeCatch struct {
	exc    *il.Instance
	region il.Region
}

// continuation says where to go when a finally handler reaches
// endfinally: on to the next finally and the leave target, or back to
// propagating an exception.
type continuation struct {
	exc     *il.Instance
	rest    []il.Region
	region  il.Region
	target  int
	throwPC int
	resume  int // index into the region table to continue dispatch from
	leave   bool
}

// escape signals an exception that left the frame while a finally
// handler was resuming its propagation.
type escape struct {
	thrown *il.Thrown
}

func (e *escape) Error() string { return e.thrown.Error() }

// dispatch finds the handler for exc raised at throwPC, scanning the
// region table from index from. It returns the handler pc, or false if the
// exception leaves the frame.
func (f *frame) dispatch(exc *il.Instance, throwPC, from int) (int, bool) {
	regions := f.code.Regions
	for i := from; i < len(regions); i++ {
		r := regions[i]
		if !r.TryContains(throwPC) {
			continue
		}
		switch r.Kind {
		case il.RegionCatch:
			if !il.IsInstance(exc, r.CatchType) {
				continue
			}
			f.unwindTo(r.HandlerStart)
			f.stack = append(f.stack[:0], exc)
			f.catches = append(f.catches, activeCatch{region: r, exc: exc})
			return r.HandlerStart, true
		case il.RegionFinally:
			f.unwindTo(r.HandlerStart)
			f.stack = f.stack[:0]
			f.pending = append(f.pending, continuation{
				region:  r,
				exc:     exc,
				throwPC: throwPC,
				resume:  i + 1,
			})
			return r.HandlerStart, true
		}
	}
	f.catches = nil
	f.pending = nil
	return 0, false
}

// unwindTo drops handler state for handlers that do not enclose pc.
func (f *frame) unwindTo(pc int) {
	keep := f.catches[:0]
	for _, c := range f.catches {
		if c.region.HandlerContains(pc) {
			keep = append(keep, c)
		}
	}
	f.catches = keep

	pending := f.pending[:0]
	for _, c := range f.pending {
		if c.region.HandlerContains(pc) {
			pending = append(pending, c)
		}
	}
	f.pending = pending
}

// leave empties the stack and runs the finally handlers between pc and
// target, innermost first.
func (f *frame) leave(pc, target int) int {
	f.stack = f.stack[:0]
	var exited []il.Region
	for _, r := range f.code.Regions {
		if r.Kind == il.RegionFinally && r.TryContains(pc) && !r.TryContains(target) {
			exited = append(exited, r)
		}
	}
	if len(exited) == 0 {
		f.unwindTo(target)
		return target
	}
	f.pending = append(f.pending, continuation{
		region: exited[0],
		rest:   exited[1:],
		target: target,
		leave:  true,
	})
	return exited[0].HandlerStart
}

func (f *frame) endFinally(pc int) (int, error) {
	if len(f.pending) == 0 {
		return 0, errors.New(errors.PhaseRuntime, errors.KindInternal).
			Routine(f.code.Method.String()).
			Detail("endfinally at IL_%04x outside a running finally", pc).
			Build()
	}
	c := f.pending[len(f.pending)-1]
	f.pending = f.pending[:len(f.pending)-1]
	f.stack = f.stack[:0]

	if c.leave {
		if len(c.rest) > 0 {
			f.pending = append(f.pending, continuation{
				region: c.rest[0],
				rest:   c.rest[1:],
				target: c.target,
				leave:  true,
			})
			return c.rest[0].HandlerStart, nil
		}
		f.unwindTo(c.target)
		return c.target, nil
	}

	handler, ok := f.dispatch(c.exc, c.throwPC, c.resume)
	if !ok {
		return 0, &escape{thrown: &il.Thrown{Exception: c.exc}}
	}
	return handler, nil
}

// currentException returns the exception of the innermost catch handler
// running at pc.
func (f *frame) currentException(pc int) *il.Instance {
	for i := len(f.catches) - 1; i >= 0; i-- {
		if f.catches[i].region.HandlerContains(pc) {
			return f.catches[i].exc
		}
	}
	return nil
}
