package il

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/wippyai/ilpatch/errors"
)

// RegionKind distinguishes catch handlers from finally handlers.
type RegionKind uint8

const (
	RegionCatch RegionKind = iota
	RegionFinally
)

func (k RegionKind) String() string {
	if k == RegionFinally {
		return "finally"
	}
	return "catch"
}

// Region is one handler of a protected range. Ranges are half-open
// instruction index intervals.
type Region struct {
	CatchType    *Type
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
	Depth        int
	Kind         RegionKind
}

// TryContains reports whether pc is protected by r.
func (r Region) TryContains(pc int) bool { return pc >= r.TryStart && pc < r.TryEnd }

// HandlerContains reports whether pc belongs to r's handler.
func (r Region) HandlerContains(pc int) bool {
	return pc >= r.HandlerStart && pc < r.HandlerEnd
}

// Resolved is a finalized instruction. Target is the branch destination
// index, or -1.
type Resolved struct {
	Operand any
	Target  int
	Op      Opcode
}

// Code is the immutable, executable form of a body.
type Code struct {
	Method   *Method
	Instrs   []Resolved
	Locals   []*Local
	Regions  []Region // innermost first
	MaxStack int
	source   []*Instruction
}

// Finalize resolves labels, builds the region table and verifies the
// body. All defects found are returned together; b is not modified.
func (b *Body) Finalize() (*Code, error) {
	f := &finalizer{body: b, routine: routineName(b.Method)}
	return f.run()
}

func routineName(m *Method) string {
	if m == nil {
		return "<anonymous>"
	}
	return m.String()
}

type finalizer struct {
	body    *Body
	err     error
	pos     map[*Label]int
	routine string
	regions []Region
}

func (f *finalizer) defect(kind errors.Kind, format string, args ...any) {
	f.err = multierr.Append(f.err, errors.Structural(kind, f.routine, fmt.Sprintf(format, args...)))
}

func (f *finalizer) run() (*Code, error) {
	b := f.body
	if len(b.Instrs) == 0 {
		f.defect(errors.KindInvalidData, "empty body")
		return nil, f.err
	}
	f.placeLabels()
	code := &Code{
		Method: b.Method,
		Instrs: make([]Resolved, len(b.Instrs)),
		Locals: append([]*Local(nil), b.Locals...),
		source: b.Instrs,
	}
	for pc, ins := range b.Instrs {
		code.Instrs[pc] = Resolved{Op: ins.Op, Operand: ins.Operand, Target: -1}
		f.checkOperand(pc, ins)
		if l := ins.Label(); l != nil && ins.Op.IsBranch() {
			target, ok := f.pos[l]
			if !ok {
				f.defect(errors.KindUnresolvedLabel, "IL_%04x: %s references unplaced label %s", pc, ins.Op, l)
				continue
			}
			code.Instrs[pc].Target = target
		}
	}
	f.buildRegions()
	if f.err != nil {
		return nil, f.err
	}
	code.Regions = f.regions
	f.checkTransfers(code)
	if f.err != nil {
		return nil, f.err
	}
	code.MaxStack = f.verifyStack(code)
	if f.err != nil {
		return nil, f.err
	}
	return code, nil
}

func (f *finalizer) placeLabels() {
	f.pos = make(map[*Label]int)
	for pc, ins := range f.body.Instrs {
		for _, l := range ins.Labels {
			if prev, ok := f.pos[l]; ok {
				f.defect(errors.KindDuplicateLabel, "label %s placed at IL_%04x and IL_%04x", l, prev, pc)
				continue
			}
			f.pos[l] = pc
		}
	}
}

func (f *finalizer) checkOperand(pc int, ins *Instruction) {
	if !ins.Op.Valid() {
		f.defect(errors.KindInvalidData, "IL_%04x: invalid opcode %d", pc, ins.Op)
		return
	}
	m := f.body.Method
	bad := false
	switch ins.Op.Info().Operand {
	case OperandNone:
		bad = ins.Operand != nil
	case OperandArg:
		n, ok := ins.Operand.(int)
		if !ok {
			bad = true
		} else if m == nil || n < 0 || n >= m.ArgCount() {
			f.defect(errors.KindOutOfBounds, "IL_%04x: %s argument %d out of range", pc, ins.Op, n)
		}
	case OperandLocal:
		l, ok := ins.Operand.(*Local)
		if !ok || l == nil {
			bad = true
		} else if l.Index < 0 || l.Index >= len(f.body.Locals) || f.body.Locals[l.Index] != l {
			f.defect(errors.KindOutOfBounds, "IL_%04x: %s references undeclared local %s", pc, ins.Op, l)
		}
	case OperandInt32:
		_, ok := ins.Operand.(int32)
		bad = !ok
	case OperandInt64:
		_, ok := ins.Operand.(int64)
		bad = !ok
	case OperandFloat64:
		_, ok := ins.Operand.(float64)
		bad = !ok
	case OperandBool:
		_, ok := ins.Operand.(bool)
		bad = !ok
	case OperandString:
		_, ok := ins.Operand.(string)
		bad = !ok
	case OperandLabel:
		bad = ins.Label() == nil
	case OperandMethod:
		bad = ins.Method() == nil
	case OperandField:
		fld := ins.Field()
		if fld == nil {
			bad = true
		} else if fld.Static != (ins.Op == LdSFld || ins.Op == LdSFldA || ins.Op == StSFld) {
			f.defect(errors.KindTypeMismatch, "IL_%04x: %s used with field %s of wrong storage class", pc, ins.Op, fld)
		}
	case OperandType:
		bad = ins.Type() == nil
	}
	if bad {
		f.defect(errors.KindTypeMismatch, "IL_%04x: %s has operand %T", pc, ins.Op, ins.Operand)
	}
}

type openStmt struct {
	tryStart     int
	tryEnd       int
	handlerStart int
	catchType    *Type
	kind         RegionKind
	depth        int
	inHandler    bool
	hasFinally   bool
}

func (f *finalizer) buildRegions() {
	var stack []*openStmt
	closeHandler := func(s *openStmt, end int) {
		if end <= s.handlerStart {
			f.defect(errors.KindMalformedRegion, "empty %s handler at IL_%04x", s.kind, s.handlerStart)
			return
		}
		f.regions = append(f.regions, Region{
			Kind:         s.kind,
			CatchType:    s.catchType,
			TryStart:     s.tryStart,
			TryEnd:       s.tryEnd,
			HandlerStart: s.handlerStart,
			HandlerEnd:   end,
			Depth:        s.depth,
		})
	}
	for pc, ins := range f.body.Instrs {
		for _, blk := range ins.Blocks {
			switch blk.Kind {
			case BeginTry:
				stack = append(stack, &openStmt{tryStart: pc, tryEnd: -1, depth: len(stack)})
			case BeginCatch, BeginFinally:
				if len(stack) == 0 {
					f.defect(errors.KindMalformedRegion, "IL_%04x: %s block outside a try", pc, blk.Kind)
					continue
				}
				s := stack[len(stack)-1]
				if s.hasFinally || (s.inHandler && blk.Kind == BeginFinally) {
					f.defect(errors.KindMalformedRegion, "IL_%04x: a finally handler must be the only handler of its try block", pc)
				}
				if s.inHandler {
					closeHandler(s, pc)
				} else {
					s.tryEnd = pc
					if s.tryEnd <= s.tryStart {
						f.defect(errors.KindMalformedRegion, "IL_%04x: empty try range", pc)
					}
				}
				s.inHandler = true
				s.handlerStart = pc
				s.kind = RegionCatch
				s.catchType = blk.CatchType
				if blk.Kind == BeginFinally {
					s.hasFinally = true
					s.kind = RegionFinally
					s.catchType = nil
				} else if s.catchType == nil {
					s.catchType = Exception
				}
			}
		}
		for _, blk := range ins.Blocks {
			if blk.Kind != EndBlock {
				continue
			}
			if len(stack) == 0 {
				f.defect(errors.KindMalformedRegion, "IL_%04x: end of block with no open try", pc)
				continue
			}
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !s.inHandler {
				f.defect(errors.KindMalformedRegion, "IL_%04x: try block has no handler", pc)
				continue
			}
			closeHandler(s, pc+1)
		}
	}
	for _, s := range stack {
		f.defect(errors.KindMalformedRegion, "try block opened at IL_%04x is never closed", s.tryStart)
	}
	sort.SliceStable(f.regions, func(i, j int) bool {
		return f.regions[i].Depth > f.regions[j].Depth
	})
}

func regionsAt(regions []Region, pc int) (try, handler []int) {
	for i, r := range regions {
		if r.TryContains(pc) {
			try = append(try, i)
		}
		if r.HandlerContains(pc) {
			handler = append(handler, i)
		}
	}
	return try, handler
}

// minus returns the elements of a not present in b.
func minus(a, b []int) []int {
	var out []int
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			out = append(out, x)
		}
	}
	return out
}

// checkTransfers enforces the exception block rules: protected ranges are
// entered only at their first instruction, handlers only by the exception
// machinery, and left only through leave, throw or endfinally.
func (f *finalizer) checkTransfers(code *Code) {
	rs := code.Regions
	for pc, ins := range code.Instrs {
		fromTry, fromHandler := regionsAt(rs, pc)
		flow := ins.Op.Info().Flow
		if flow == FlowBranch || flow == FlowCondBranch || flow == FlowLeave {
			toTry, toHandler := regionsAt(rs, ins.Target)
			for _, i := range minus(toTry, fromTry) {
				if rs[i].TryStart != ins.Target {
					f.defect(errors.KindMalformedRegion, "IL_%04x: %s enters a try block at IL_%04x", pc, ins.Op, ins.Target)
				}
			}
			if len(minus(toHandler, fromHandler)) > 0 {
				f.defect(errors.KindMalformedRegion, "IL_%04x: %s enters a handler at IL_%04x", pc, ins.Op, ins.Target)
			}
			if flow != FlowLeave && (len(minus(fromTry, toTry)) > 0 || len(minus(fromHandler, toHandler)) > 0) {
				f.defect(errors.KindMalformedRegion, "IL_%04x: %s leaves an exception block, use leave", pc, ins.Op)
			}
		}
		if flow == FlowNext || flow == FlowCondBranch {
			for _, r := range rs {
				if pc == r.TryEnd-1 || pc == r.HandlerEnd-1 {
					f.defect(errors.KindMalformedRegion, "IL_%04x: control falls out of an exception block", pc)
					break
				}
			}
		}
		switch ins.Op {
		case Ret:
			if len(fromTry) > 0 || len(fromHandler) > 0 {
				f.defect(errors.KindMalformedRegion, "IL_%04x: ret inside an exception block", pc)
			}
		case Rethrow:
			if !inHandlerOf(rs, fromHandler, RegionCatch) {
				f.defect(errors.KindMalformedRegion, "IL_%04x: rethrow outside a catch handler", pc)
			}
		case EndFinally:
			if !inHandlerOf(rs, fromHandler, RegionFinally) {
				f.defect(errors.KindMalformedRegion, "IL_%04x: endfinally outside a finally handler", pc)
			}
		}
	}
}

func inHandlerOf(rs []Region, handlers []int, kind RegionKind) bool {
	for _, i := range handlers {
		if rs[i].Kind == kind {
			return true
		}
	}
	return false
}

// verifyStack walks the control-flow graph and checks that every
// instruction is reached with a single stack depth that satisfies its pops.
func (f *finalizer) verifyStack(code *Code) int {
	n := len(code.Instrs)
	depth := make([]int, n)
	for i := range depth {
		depth[i] = -1
	}
	type item struct{ pc, depth int }
	var work []item
	enter := func(from, pc, d int) {
		if pc < 0 || pc >= n {
			f.defect(errors.KindStackImbalance, "IL_%04x: control falls off the end of the body", from)
			return
		}
		switch depth[pc] {
		case -1:
			depth[pc] = d
			work = append(work, item{pc, d})
		case d:
		default:
			f.defect(errors.KindStackImbalance, "IL_%04x: reached with stack depth %d and %d", pc, depth[pc], d)
		}
	}
	enter(-1, 0, 0)
	for _, r := range code.Regions {
		if r.Kind == RegionCatch {
			enter(-1, r.HandlerStart, 1)
		} else {
			enter(-1, r.HandlerStart, 0)
		}
	}

	maxStack := 0
	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]
		ins := code.Instrs[it.pc]
		pops, pushes := StackEffect(f.body.Instrs[it.pc], code.Method)
		if it.depth < pops {
			f.defect(errors.KindStackImbalance, "IL_%04x: %s needs %d values, stack has %d", it.pc, ins.Op, pops, it.depth)
			continue
		}
		next := it.depth - pops + pushes
		if next > maxStack {
			maxStack = next
		}
		switch ins.Op.Info().Flow {
		case FlowNext:
			enter(it.pc, it.pc+1, next)
		case FlowBranch:
			enter(it.pc, ins.Target, next)
		case FlowCondBranch:
			enter(it.pc, ins.Target, next)
			enter(it.pc, it.pc+1, next)
		case FlowLeave:
			enter(it.pc, ins.Target, 0)
		case FlowReturn:
			if next != 0 {
				f.defect(errors.KindStackImbalance, "IL_%04x: ret leaves %d values on the stack", it.pc, next)
			}
		}
	}
	return maxStack
}

// Source returns the instruction records the code was finalized from.
func (c *Code) Source() []*Instruction { return c.source }

// HandlerFor returns the regions whose protected range covers pc,
// innermost first.
func (c *Code) HandlerFor(pc int) []Region {
	var out []Region
	for _, r := range c.Regions {
		if r.TryContains(pc) {
			out = append(out, r)
		}
	}
	return out
}
