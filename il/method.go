package il

import (
	"context"
	"strings"
)

// CtorName is the name of instance constructors.
const CtorName = ".ctor"

// Param is a formal parameter of a method.
type Param struct {
	Type *Type
	Name string
	// Target names the method a delegate-typed patch parameter is bound to
	// when Name alone does not identify it.
	Target string
}

// Invoker is the part of the execution engine a native body may call back
// into.
type Invoker interface {
	Context() context.Context
	Call(m *Method, args ...any) (any, error)
	CallDelegate(d *Delegate, args ...any) (any, error)
}

// NativeFunc implements a method outside the instruction set. For instance
// methods args[0] is the receiver.
type NativeFunc func(inv Invoker, args []any) (any, error)

// Method describes a routine.
type Method struct {
	DeclaringType *Type
	Return        *Type
	Native        NativeFunc
	Name          string
	Params        []*Param
	Static        bool
	Virtual       bool
}

// IsVoid reports whether the method returns nothing.
func (m *Method) IsVoid() bool { return m.Return.IsVoid() }

// IsConstructor reports whether m is an instance constructor.
func (m *Method) IsConstructor() bool { return m.Name == CtorName }

// ArgCount returns the number of argument slots including the receiver.
func (m *Method) ArgCount() int {
	if m.Static {
		return len(m.Params)
	}
	return len(m.Params) + 1
}

// ArgType returns the type of argument slot i. For instance methods slot 0
// is the receiver, passed by reference for value types.
func (m *Method) ArgType(i int) *Type {
	if !m.Static {
		if i == 0 {
			return m.ReceiverType()
		}
		i--
	}
	if i < 0 || i >= len(m.Params) {
		return nil
	}
	return m.Params[i].Type
}

// ReceiverType is the type of argument slot 0 of an instance method.
func (m *Method) ReceiverType() *Type {
	if m.Static || m.DeclaringType == nil {
		return nil
	}
	if m.DeclaringType.IsValueType() {
		return RefTo(m.DeclaringType)
	}
	return m.DeclaringType
}

// ParamIndex returns the index of the formal parameter named name, or -1.
func (m *Method) ParamIndex(name string) int {
	for i, p := range m.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// ArgIndex converts a formal parameter index to an argument slot.
func (m *Method) ArgIndex(param int) int {
	if m.Static {
		return param
	}
	return param + 1
}

// FullName returns "Type::Name".
func (m *Method) FullName() string {
	if m.DeclaringType == nil {
		return m.Name
	}
	return m.DeclaringType.Name + "::" + m.Name
}

// String returns "Type::Name(p1, p2)".
func (m *Method) String() string {
	var b strings.Builder
	b.WriteString(m.FullName())
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Type.String())
	}
	b.WriteByte(')')
	return b.String()
}

// NewMethod creates a static method on t.
func NewMethod(t *Type, name string, ret *Type, params ...*Param) *Method {
	return t.AddMethod(&Method{Name: name, Return: ret, Params: params, Static: true})
}

// NewInstanceMethod creates an instance method on t.
func NewInstanceMethod(t *Type, name string, ret *Type, params ...*Param) *Method {
	return t.AddMethod(&Method{Name: name, Return: ret, Params: params})
}

// P is shorthand for a named parameter.
func P(name string, t *Type) *Param {
	return &Param{Name: name, Type: t}
}
