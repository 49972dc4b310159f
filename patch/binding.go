package patch

import (
	"strconv"
	"strings"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

// Rule identifies the binding rule that matched a patch parameter. Rules
// are tried in declaration order; the first match wins.
type Rule uint8

const (
	RuleOriginalMethod Rule = iota + 1
	RuleInstance
	RuleField
	RuleState
	RuleResult
	RuleSlot
	RuleIndex
	RuleName
	RuleDelegate
)

var ruleNames = [...]string{
	RuleOriginalMethod: "original-method",
	RuleInstance:       "instance",
	RuleField:          "field",
	RuleState:          "state",
	RuleResult:         "result",
	RuleSlot:           "slot",
	RuleIndex:          "index",
	RuleName:           "name",
	RuleDelegate:       "delegate",
}

func (r Rule) String() string {
	if int(r) < len(ruleNames) && ruleNames[r] != "" {
		return ruleNames[r]
	}
	return "unknown"
}

// Mode selects how a bound value is pushed.
type Mode uint8

const (
	// Value pushes the value.
	Value Mode = iota
	// Address pushes the address of the storage.
	Address
	// Deref pushes a stored address and loads through it.
	Deref
	// Null pushes a null reference.
	Null
)

// Binding is the resolved source of one patch argument. It is computed once
// per parameter and then emitted as a fixed instruction pattern.
type Binding struct {
	Param  *il.Param
	Local  *il.Local
	Field  *il.Field
	Target *il.Method // original method handle or delegate target
	Ctor   *il.Method // delegate constructor
	Deref  *il.Type   // type loaded through the address in Deref mode
	Box    *il.Type   // value type boxed after loading
	Arg    int
	Rule   Rule
	Mode   Mode
	// Virtual selects ldvirtftn for delegate targets.
	Virtual bool
	// Receiver loads the receiver for an instance delegate target. Struct
	// receivers are copied and boxed.
	Receiver *il.Type
}

// emit appends the binding's instruction pattern.
func (b *Binding) emit(e *il.Emitter) {
	switch b.Rule {
	case RuleOriginalMethod:
		if b.Target == nil {
			e.LdNull()
		} else {
			e.LdToken(b.Target)
		}
	case RuleInstance, RuleIndex, RuleName:
		switch b.Mode {
		case Null:
			e.LdNull()
		case Address:
			e.LdArgA(b.Arg)
		default:
			e.LdArg(b.Arg)
		}
	case RuleField:
		switch {
		case b.Field.Static && b.Mode == Address:
			e.LdSFldA(b.Field)
		case b.Field.Static:
			e.LdSFld(b.Field)
		case b.Mode == Address:
			e.LdArg(0).LdFldA(b.Field)
		default:
			e.LdArg(0).LdFld(b.Field)
		}
	case RuleState, RuleResult, RuleSlot:
		if b.Mode == Address {
			e.LdLocA(b.Local)
		} else {
			e.LdLoc(b.Local)
		}
	case RuleDelegate:
		b.emitDelegate(e)
		return
	}
	if b.Mode == Deref {
		e.LdObj(b.Deref)
	}
	if b.Box != nil {
		e.Box(b.Box)
	}
}

func (b *Binding) emitDelegate(e *il.Emitter) {
	if b.Target.Static {
		e.LdNull().LdFtn(b.Target).NewObj(b.Ctor)
		return
	}
	e.LdArg(0)
	if b.Receiver != nil && b.Receiver.IsValueType() {
		e.LdObj(b.Receiver).Box(b.Receiver)
	}
	if b.Virtual {
		e.Dup().LdVirtFtn(b.Target)
	} else {
		e.LdFtn(b.Target)
	}
	e.NewObj(b.Ctor)
}

// resolver binds the parameters of one patch against one routine.
type resolver struct {
	target *il.Method
	patch  *Patch
	env    *Env
}

type ruleFunc func(r *resolver, p *il.Param) (*Binding, bool, error)

// rules is the ordered binding table.
var rules = []ruleFunc{
	(*resolver).originalMethod,
	(*resolver).instance,
	(*resolver).field,
	(*resolver).state,
	(*resolver).result,
	(*resolver).slot,
	(*resolver).index,
	(*resolver).name,
	(*resolver).delegate,
}

// resolve returns the binding of p. The first matching rule decides; a
// rule that matches but cannot bind reports a declaration defect.
func (r *resolver) resolve(p *il.Param) (*Binding, error) {
	for _, rule := range rules {
		b, ok, err := rule(r, p)
		if err != nil {
			return nil, err
		}
		if ok {
			b.Param = p
			return b, nil
		}
	}
	return nil, errors.ParameterNotFound(r.target.String(), r.patch.String(), p.Name)
}

func (r *resolver) defect(p *il.Param, format string, args ...any) error {
	return errors.New(errors.PhaseBind, errors.KindInvalidPatchArgument).
		Routine(r.target.String()).
		Patch(r.patch.String()).
		Path(p.Name).
		Detail(format, args...).
		Build()
}

// value reconciles a stored value of type src with the parameter type:
// by-reference parameters take the address, by-value parameters load and
// box when a value type flows into a reference type.
func (r *resolver) value(p *il.Param, b *Binding, src *il.Type, addressable bool) (*Binding, bool, error) {
	pt := p.Type
	if pt.IsByRef() {
		if !addressable {
			return nil, false, r.defect(p, "%s cannot be passed by reference", src)
		}
		if pt.Elem != src {
			return nil, false, r.defect(p, "parameter type %s does not match %s", pt, il.RefTo(src))
		}
		b.Mode = Address
		return b, true, nil
	}
	if !pt.IsAssignableFrom(src) {
		return nil, false, r.defect(p, "parameter type %s is not assignable from %s", pt, src)
	}
	if src.IsValueType() && !pt.IsValueType() {
		b.Box = src
	}
	return b, true, nil
}

// argument binds an original argument slot whose type may itself be
// by-reference.
func (r *resolver) argument(p *il.Param, rule Rule, slot int) (*Binding, bool, error) {
	b := &Binding{Rule: rule, Arg: slot}
	at := r.target.ArgType(slot)
	if !at.IsByRef() {
		return r.value(p, b, at, true)
	}
	if p.Type.IsByRef() {
		if p.Type != at {
			return nil, false, r.defect(p, "parameter type %s does not match %s", p.Type, at)
		}
		return b, true, nil
	}
	b.Mode = Deref
	b.Deref = at.Elem
	return r.value(p, b, at.Elem, false)
}

func (r *resolver) originalMethod(p *il.Param) (*Binding, bool, error) {
	if p.Name != OriginalMethodName {
		return nil, false, nil
	}
	if p.Type != il.MethodHandle && p.Type != il.Object {
		return nil, false, r.defect(p, "%s must be of type %s", OriginalMethodName, il.MethodHandle)
	}
	return &Binding{Rule: RuleOriginalMethod, Target: r.target}, true, nil
}

func (r *resolver) instance(p *il.Param) (*Binding, bool, error) {
	if p.Name != InstanceName {
		return nil, false, nil
	}
	if r.target.Static {
		if p.Type.IsValueType() || p.Type.IsByRef() {
			return nil, false, r.defect(p, "%s of a static routine can only bind to a reference type", InstanceName)
		}
		return &Binding{Rule: RuleInstance, Mode: Null}, true, nil
	}
	decl := r.target.DeclaringType
	if !decl.IsValueType() {
		return r.value(p, &Binding{Rule: RuleInstance}, decl, true)
	}
	// Struct receivers arrive by reference.
	b := &Binding{Rule: RuleInstance}
	if p.Type.IsByRef() {
		if p.Type.Elem != decl {
			return nil, false, r.defect(p, "parameter type %s does not match %s", p.Type, il.RefTo(decl))
		}
		return b, true, nil
	}
	b.Mode = Deref
	b.Deref = decl
	return r.value(p, b, decl, false)
}

func (r *resolver) field(p *il.Param) (*Binding, bool, error) {
	name, ok := strings.CutPrefix(p.Name, FieldPrefix)
	if !ok {
		return nil, false, nil
	}
	decl := r.target.DeclaringType
	var f *il.Field
	if n, err := strconv.Atoi(name); err == nil {
		f = decl.FieldAt(n)
	} else {
		f = decl.Field(name)
	}
	if f == nil {
		return nil, false, r.defect(p, "field %q not found on %s", name, decl)
	}
	if !f.Static && r.target.Static {
		return nil, false, r.defect(p, "instance field %s in a static routine", f)
	}
	return r.value(p, &Binding{Rule: RuleField, Field: f}, f.Type, true)
}

func (r *resolver) state(p *il.Param) (*Binding, bool, error) {
	if p.Name != StateName {
		return nil, false, nil
	}
	t := p.Type.Deref()
	l, ok := r.env.State(r.patch.Method.DeclaringType, t)
	if !ok {
		return nil, false, r.defect(p, "state of %s already declared as %s", r.patch.Method.DeclaringType, l.Type)
	}
	return r.value(p, &Binding{Rule: RuleState, Local: l}, t, true)
}

func (r *resolver) result(p *il.Param) (*Binding, bool, error) {
	if p.Name != ResultName {
		return nil, false, nil
	}
	if r.target.IsVoid() {
		return nil, false, r.defect(p, "%s on a routine returning void", ResultName)
	}
	l, _ := r.env.Lookup(ResultName)
	return r.value(p, &Binding{Rule: RuleResult, Local: l}, r.target.Return, true)
}

func (r *resolver) slot(p *il.Param) (*Binding, bool, error) {
	l, ok := r.env.Lookup(p.Name)
	if !ok {
		return nil, false, nil
	}
	return r.value(p, &Binding{Rule: RuleSlot, Local: l}, l.Type, true)
}

func (r *resolver) index(p *il.Param) (*Binding, bool, error) {
	digits, ok := strings.CutPrefix(p.Name, ArgumentPrefix)
	if !ok || digits == "" {
		return nil, false, nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil, false, nil
	}
	if n < 0 || n >= len(r.target.Params) {
		return nil, false, r.defect(p, "argument index %d out of range, %s has %d parameters", n, r.target.FullName(), len(r.target.Params))
	}
	return r.argument(p, RuleIndex, r.target.ArgIndex(n))
}

func (r *resolver) name(p *il.Param) (*Binding, bool, error) {
	i := r.target.ParamIndex(p.Name)
	if i < 0 {
		return nil, false, nil
	}
	return r.argument(p, RuleName, r.target.ArgIndex(i))
}

func (r *resolver) delegate(p *il.Param) (*Binding, bool, error) {
	dt := p.Type
	if dt.Kind != il.KindDelegate || dt.Invoke == nil {
		return nil, false, nil
	}
	name := p.Target
	if name == "" {
		name = p.Name
	}
	decl := r.target.DeclaringType
	params := make([]*il.Type, len(dt.Invoke.Params))
	for i, ip := range dt.Invoke.Params {
		params[i] = ip.Type
	}
	m := decl.FindMethod(name, params)
	if m == nil || m.Return != dt.Invoke.Return {
		return nil, false, nil
	}
	if !m.Static && r.target.Static {
		return nil, false, r.defect(p, "delegate to instance method %s from a static routine", m.FullName())
	}
	b := &Binding{
		Rule:    RuleDelegate,
		Target:  m,
		Ctor:    dt.Method(il.CtorName),
		Virtual: m.Virtual,
	}
	if !m.Static {
		b.Receiver = decl
	}
	return b, true, nil
}
