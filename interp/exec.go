package interp

import (
	stderrors "errors"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

type frame struct {
	code    *il.Code
	args    []*il.Cell
	locals  []*il.Cell
	stack   []any
	catches []activeCatch
	pending []continuation
}

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pop() any {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popN(n int) []any {
	out := make([]any, n)
	copy(out, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

func (t *thread) run(code *il.Code, args []any) (any, error) {
	f := &frame{
		code:   code,
		args:   make([]*il.Cell, len(args)),
		locals: make([]*il.Cell, len(code.Locals)),
		stack:  make([]any, 0, code.MaxStack),
	}
	for i, a := range args {
		f.args[i] = &il.Cell{V: il.Clone(a)}
	}
	for i, l := range code.Locals {
		f.locals[i] = &il.Cell{V: il.Zero(l.Type)}
	}

	pc := 0
	for {
		if pc < 0 || pc >= len(code.Instrs) {
			return nil, errors.New(errors.PhaseRuntime, errors.KindInternal).
				Routine(code.Method.String()).
				Detail("pc %d out of range", pc).
				Build()
		}
		next, ret, done, err := t.step(f, pc)
		if err != nil {
			if esc, ok := err.(*escape); ok {
				return nil, esc.thrown
			}
			var thrown *il.Thrown
			if !stderrors.As(err, &thrown) {
				return nil, err
			}
			handler, ok := f.dispatch(thrown.Exception, pc, 0)
			if !ok {
				return nil, thrown
			}
			pc = handler
			continue
		}
		if done {
			return ret, nil
		}
		pc = next
	}
}

// step executes the instruction at pc and returns the next pc, or the
// return value when done.
func (t *thread) step(f *frame, pc int) (next int, ret any, done bool, err error) {
	ins := f.code.Instrs[pc]
	next = pc + 1
	switch ins.Op {
	case il.Nop:
	case il.LdArg:
		f.push(il.Clone(f.args[ins.Operand.(int)].V))
	case il.LdArgA:
		f.push(il.Ref(f.args[ins.Operand.(int)]))
	case il.StArg:
		f.args[ins.Operand.(int)].V = il.Clone(f.pop())
	case il.LdLoc:
		f.push(il.Clone(f.locals[ins.Operand.(*il.Local).Index].V))
	case il.LdLocA:
		f.push(il.Ref(f.locals[ins.Operand.(*il.Local).Index]))
	case il.StLoc:
		f.locals[ins.Operand.(*il.Local).Index].V = il.Clone(f.pop())
	case il.LdcI4, il.LdcI8, il.LdcR8, il.LdcBool, il.LdStr:
		f.push(ins.Operand)
	case il.LdNull:
		f.push(nil)
	case il.Dup:
		v := f.pop()
		f.push(v)
		f.push(il.Clone(v))
	case il.Pop:
		f.pop()

	case il.Add, il.Sub, il.Mul, il.Div, il.Rem, il.And, il.Or, il.Xor:
		b := f.pop()
		a := f.pop()
		v, err := binary(ins.Op, a, b)
		if err != nil {
			return 0, nil, false, err
		}
		f.push(v)
	case il.Neg, il.Not:
		v, err := unary(ins.Op, f.pop())
		if err != nil {
			return 0, nil, false, err
		}
		f.push(v)
	case il.Ceq:
		b := f.pop()
		a := f.pop()
		f.push(equal(a, b))
	case il.Cgt, il.Clt:
		b := f.pop()
		a := f.pop()
		v, err := compare(ins.Op, a, b)
		if err != nil {
			return 0, nil, false, err
		}
		f.push(v)

	case il.Br:
		next = ins.Target
	case il.BrTrue:
		if truthy(f.pop()) {
			next = ins.Target
		}
	case il.BrFalse:
		if !truthy(f.pop()) {
			next = ins.Target
		}
	case il.Leave:
		next = f.leave(pc, ins.Target)
	case il.Ret:
		if !f.code.Method.IsVoid() {
			ret = f.pop()
		}
		return 0, ret, true, nil

	case il.Call, il.CallVirt:
		m := ins.Operand.(*il.Method)
		args := f.popN(m.ArgCount())
		if ins.Op == il.CallVirt {
			m = resolveVirtual(m, args)
		}
		res, err := t.call(m, args)
		if err != nil {
			return 0, nil, false, err
		}
		if !m.IsVoid() {
			f.push(res)
		}
	case il.NewObj:
		v, err := t.newObj(ins.Operand.(*il.Method), f.popN(len(ins.Operand.(*il.Method).Params)))
		if err != nil {
			return 0, nil, false, err
		}
		f.push(v)

	case il.LdFld:
		o, err := instanceOf(f.pop())
		if err != nil {
			return 0, nil, false, err
		}
		f.push(il.Clone(o.Get(ins.Operand.(*il.Field))))
	case il.LdFldA:
		o, err := instanceOf(f.pop())
		if err != nil {
			return 0, nil, false, err
		}
		f.push(o.FieldRef(ins.Operand.(*il.Field)))
	case il.StFld:
		v := f.pop()
		o, err := instanceOf(f.pop())
		if err != nil {
			return 0, nil, false, err
		}
		o.Set(ins.Operand.(*il.Field), il.Clone(v))
	case il.LdSFld:
		f.push(il.Clone(t.machine.Static(ins.Operand.(*il.Field)).Load()))
	case il.LdSFldA:
		f.push(t.machine.Static(ins.Operand.(*il.Field)))
	case il.StSFld:
		t.machine.Static(ins.Operand.(*il.Field)).Store(il.Clone(f.pop()))

	case il.LdObj:
		r, err := refOf(f.pop())
		if err != nil {
			return 0, nil, false, err
		}
		f.push(il.Clone(r.Load()))
	case il.StObj:
		v := f.pop()
		r, err := refOf(f.pop())
		if err != nil {
			return 0, nil, false, err
		}
		r.Store(il.Clone(v))
	case il.Box:
		f.push(box(ins.Operand.(*il.Type), f.pop()))
	case il.UnboxAny:
		v, err := unbox(ins.Operand.(*il.Type), f.pop())
		if err != nil {
			return 0, nil, false, err
		}
		f.push(v)
	case il.CastClass:
		v := f.pop()
		typ := ins.Operand.(*il.Type)
		if v != nil && !il.IsInstance(v, typ) {
			return 0, nil, false, il.Throwf(il.InvalidCastException, "cannot cast %s to %s", il.TypeOf(v), typ)
		}
		f.push(v)
	case il.IsInst:
		v := f.pop()
		if !il.IsInstance(v, ins.Operand.(*il.Type)) {
			v = nil
		}
		f.push(v)

	case il.Throw:
		return 0, nil, false, throwValue(f.pop())
	case il.Rethrow:
		exc := f.currentException(pc)
		if exc == nil {
			return 0, nil, false, errors.New(errors.PhaseRuntime, errors.KindInternal).
				Routine(f.code.Method.String()).
				Detail("rethrow at IL_%04x with no exception in flight", pc).
				Build()
		}
		return 0, nil, false, &il.Thrown{Exception: exc}
	case il.EndFinally:
		n, err := f.endFinally(pc)
		if err != nil {
			return 0, nil, false, err
		}
		next = n

	case il.LdToken, il.LdFtn:
		f.push(ins.Operand)
	case il.LdVirtFtn:
		recv := f.pop()
		if recv == nil {
			return 0, nil, false, il.Throwf(il.NullReferenceException, "ldvirtftn on null")
		}
		f.push(resolveVirtual(ins.Operand.(*il.Method), []any{recv}))

	default:
		return 0, nil, false, errors.Unsupported(errors.PhaseRuntime, "opcode "+ins.Op.String())
	}
	return next, nil, false, nil
}

func (t *thread) newObj(ctor *il.Method, args []any) (any, error) {
	typ := ctor.DeclaringType
	switch typ.Kind {
	case il.KindDelegate:
		fn, ok := args[1].(*il.Method)
		if !ok {
			return nil, il.Throwf(il.ArgumentException, "delegate constructor needs a method handle")
		}
		return &il.Delegate{Type: typ, Target: args[0], Method: fn}, nil
	case il.KindStruct:
		cell := &il.Cell{V: il.NewInstance(typ)}
		if _, err := t.call(ctor, append([]any{il.Ref(cell)}, args...)); err != nil {
			return nil, err
		}
		return cell.V, nil
	}
	o := il.NewInstance(typ)
	if _, err := t.call(ctor, append([]any{o}, args...)); err != nil {
		return nil, err
	}
	return o, nil
}

func resolveVirtual(m *il.Method, args []any) *il.Method {
	if !m.Virtual || len(args) == 0 {
		return m
	}
	recv := args[0]
	if r, ok := recv.(il.Ref); ok {
		recv = r.Load()
	}
	rt := il.TypeOf(recv)
	if rt == nil || rt.Kind == il.KindDelegate {
		return m
	}
	return rt.LookupVirtual(m)
}

func throwValue(v any) error {
	switch x := v.(type) {
	case nil:
		return il.Throwf(il.NullReferenceException, "throw of null")
	case *il.Instance:
		if x.Type.IsSubclassOf(il.Exception) {
			return &il.Thrown{Exception: x}
		}
	}
	return il.Throwf(il.InvalidCastException, "thrown value of type %s is not an exception", il.TypeOf(v))
}
