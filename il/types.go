package il

import (
	"sync"
)

// Kind classifies a Type.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat64
	KindString
	KindObject
	KindStruct
	KindDelegate
	KindHandle
	KindByRef
)

var kindNames = [...]string{
	KindVoid:     "void",
	KindBool:     "bool",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindFloat64:  "float64",
	KindString:   "string",
	KindObject:   "class",
	KindStruct:   "struct",
	KindDelegate: "delegate",
	KindHandle:   "handle",
	KindByRef:    "byref",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Type describes a value or reference type known to the machine.
type Type struct {
	Base    *Type
	Elem    *Type   // element of a by-reference type
	Invoke  *Method // signature of a delegate type
	Name    string
	Module  string
	Fields  []*Field
	Methods []*Method
	Kind    Kind
}

// Builtin types.
var (
	Void         = &Type{Name: "void", Kind: KindVoid}
	Bool         = &Type{Name: "bool", Kind: KindBool}
	Int32        = &Type{Name: "int32", Kind: KindInt32}
	Int64        = &Type{Name: "int64", Kind: KindInt64}
	Float64      = &Type{Name: "float64", Kind: KindFloat64}
	Object       = &Type{Name: "object", Kind: KindObject}
	String       = &Type{Name: "string", Kind: KindString, Base: Object}
	MethodHandle = &Type{Name: "MethodHandle", Kind: KindHandle, Base: Object}
	Exception    = &Type{Name: "Exception", Kind: KindObject, Base: Object}

	InvalidOperationException = &Type{Name: "InvalidOperationException", Kind: KindObject, Base: Exception}
	NullReferenceException    = &Type{Name: "NullReferenceException", Kind: KindObject, Base: Exception}
	DivideByZeroException     = &Type{Name: "DivideByZeroException", Kind: KindObject, Base: Exception}
	InvalidCastException      = &Type{Name: "InvalidCastException", Kind: KindObject, Base: Exception}
	ArgumentException         = &Type{Name: "ArgumentException", Kind: KindObject, Base: Exception}
)

// ExceptionMessage is the field every exception carries.
var ExceptionMessage = Exception.AddField("Message", String, false)

func init() {
	for _, t := range Builtins() {
		if t.IsSubclassOf(Exception) {
			addExceptionCtor(t)
		}
	}
}

// NewExceptionType declares an exception class with a .ctor(string message)
// constructor. A nil base means Exception.
func NewExceptionType(name, module string, base *Type) *Type {
	if base == nil {
		base = Exception
	}
	t := NewClass(name, module, base)
	addExceptionCtor(t)
	return t
}

// ExceptionCtor returns the message constructor of an exception type.
func ExceptionCtor(t *Type) *Method {
	return t.FindMethod(CtorName, []*Type{String})
}

func addExceptionCtor(t *Type) {
	t.AddMethod(&Method{
		Name:   CtorName,
		Params: []*Param{{Name: "message", Type: String}},
		Native: func(_ Invoker, args []any) (any, error) {
			args[0].(*Instance).Set(ExceptionMessage, args[1])
			return nil, nil
		},
	})
}

// Builtins lists the predeclared types by name.
func Builtins() []*Type {
	return []*Type{
		Void, Bool, Int32, Int64, Float64, Object, String, MethodHandle, Exception,
		InvalidOperationException, NullReferenceException, DivideByZeroException,
		InvalidCastException, ArgumentException,
	}
}

var refTypes sync.Map // *Type -> *Type

// RefTo returns the by-reference type of t. The result is cached so that
// by-reference types compare by identity.
func RefTo(t *Type) *Type {
	if t.Kind == KindByRef {
		return t
	}
	if r, ok := refTypes.Load(t); ok {
		return r.(*Type)
	}
	r, _ := refTypes.LoadOrStore(t, &Type{Name: "ref " + t.Name, Kind: KindByRef, Elem: t})
	return r.(*Type)
}

// NewClass declares a reference type. A nil base means object.
func NewClass(name, module string, base *Type) *Type {
	if base == nil {
		base = Object
	}
	return &Type{Name: name, Module: module, Kind: KindObject, Base: base}
}

// NewStruct declares a value type.
func NewStruct(name, module string) *Type {
	return &Type{Name: name, Module: module, Kind: KindStruct}
}

// NewDelegateType declares a delegate type with the given invoke signature.
// The type receives a constructor taking (object target, MethodHandle fn)
// and a virtual Invoke method.
func NewDelegateType(name, module string, params []*Param, ret *Type) *Type {
	t := &Type{Name: name, Module: module, Kind: KindDelegate, Base: Object}
	t.AddMethod(&Method{
		Name:   CtorName,
		Params: []*Param{{Name: "target", Type: Object}, {Name: "fn", Type: MethodHandle}},
		Return: Void,
	})
	t.Invoke = t.AddMethod(&Method{Name: "Invoke", Params: params, Return: ret, Virtual: true})
	return t
}

// IsValueType reports whether values of t are copied on assignment.
func (t *Type) IsValueType() bool {
	switch t.Kind {
	case KindBool, KindInt32, KindInt64, KindFloat64, KindStruct:
		return true
	}
	return false
}

// IsByRef reports whether t is a by-reference type.
func (t *Type) IsByRef() bool { return t.Kind == KindByRef }

// IsVoid reports whether t is void.
func (t *Type) IsVoid() bool { return t == nil || t.Kind == KindVoid }

// Deref returns the element type of a by-reference type, or t itself.
func (t *Type) Deref() *Type {
	if t.Kind == KindByRef {
		return t.Elem
	}
	return t
}

// IsSubclassOf reports whether t equals base or derives from it.
func (t *Type) IsSubclassOf(base *Type) bool {
	for c := t; c != nil; c = c.Base {
		if c == base {
			return true
		}
	}
	return false
}

// IsAssignableFrom reports whether a value of type from can be stored in a
// location of type t. Object accepts every non-void type, value types
// through boxing.
func (t *Type) IsAssignableFrom(from *Type) bool {
	if t == nil || from == nil {
		return false
	}
	if t == from {
		return true
	}
	if t.IsByRef() || from.IsByRef() {
		return t.IsByRef() && from.IsByRef() && t.Elem == from.Elem
	}
	if from.IsVoid() || t.IsVoid() {
		return false
	}
	if t == Object {
		return true
	}
	if from.IsValueType() {
		return false
	}
	return from.IsSubclassOf(t)
}

// AddField declares a field on t and returns it. Instance fields are laid
// out after the base type's instance fields.
func (t *Type) AddField(name string, ft *Type, static bool) *Field {
	f := &Field{Name: name, Type: ft, Static: static, DeclaringType: t}
	if !static {
		f.Index = len(t.InstanceFields())
	}
	t.Fields = append(t.Fields, f)
	return f
}

// InstanceFields returns the instance fields of t including inherited ones,
// base fields first.
func (t *Type) InstanceFields() []*Field {
	var out []*Field
	if t.Base != nil {
		out = t.Base.InstanceFields()
	}
	for _, f := range t.Fields {
		if !f.Static {
			out = append(out, f)
		}
	}
	return out
}

// Field finds a field by name on t or its bases.
func (t *Type) Field(name string) *Field {
	for c := t; c != nil; c = c.Base {
		for _, f := range c.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// FieldAt returns the index-th field declared directly on t.
func (t *Type) FieldAt(index int) *Field {
	if index < 0 || index >= len(t.Fields) {
		return nil
	}
	return t.Fields[index]
}

// AddMethod attaches m to t and returns it.
func (t *Type) AddMethod(m *Method) *Method {
	m.DeclaringType = t
	if m.Return == nil {
		m.Return = Void
	}
	t.Methods = append(t.Methods, m)
	return m
}

// Method finds the first method named name declared directly on t.
func (t *Type) Method(name string) *Method {
	for _, m := range t.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// FindMethod finds a method by name whose parameter types match exactly.
// The search walks the base chain.
func (t *Type) FindMethod(name string, params []*Type) *Method {
	for c := t; c != nil; c = c.Base {
	next:
		for _, m := range c.Methods {
			if m.Name != name || len(m.Params) != len(params) {
				continue
			}
			for i, p := range m.Params {
				if p.Type != params[i] {
					continue next
				}
			}
			return m
		}
	}
	return nil
}

// LookupVirtual resolves the most derived implementation of a virtual
// method for receivers of type t, matching by name and arity.
func (t *Type) LookupVirtual(m *Method) *Method {
	for c := t; c != nil; c = c.Base {
		for _, cand := range c.Methods {
			if cand.Name == m.Name && len(cand.Params) == len(m.Params) && !cand.Static {
				return cand
			}
		}
	}
	return m
}

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	return t.Name
}

// Field describes a static or instance field.
type Field struct {
	DeclaringType *Type
	Type          *Type
	Name          string
	Index         int // slot in the object's field array, instance fields only
	Static        bool
}

func (f *Field) String() string {
	return f.DeclaringType.Name + "::" + f.Name
}
