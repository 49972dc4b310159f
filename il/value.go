package il

import (
	"fmt"
)

// Runtime value representation:
//
//	bool, int32, int64, float64, string  primitives
//	nil                                  null reference
//	*Instance                            class object, struct value, exception
//	*Boxed                               boxed value type
//	*Delegate                            bound delegate
//	*Method                              method handle (ldtoken, ldftn)
//	Ref                                  address of a slot

// Instance is an object of a class or struct type. Struct values are
// copied on load, so distinct slots never share an Instance.
type Instance struct {
	Type   *Type
	Fields []any
}

// NewInstance allocates a zero-initialized instance of t.
func NewInstance(t *Type) *Instance {
	fields := t.InstanceFields()
	o := &Instance{Type: t, Fields: make([]any, len(fields))}
	for i, f := range fields {
		o.Fields[i] = Zero(f.Type)
	}
	return o
}

// Get returns the value of field f.
func (o *Instance) Get(f *Field) any { return o.Fields[f.Index] }

// Set stores v in field f.
func (o *Instance) Set(f *Field, v any) { o.Fields[f.Index] = v }

// FieldRef returns the address of field f.
func (o *Instance) FieldRef(f *Field) Ref { return &FieldRef{Obj: o, Index: f.Index} }

func (o *Instance) String() string {
	if o.Type.IsSubclassOf(Exception) {
		return fmt.Sprintf("%s: %s", o.Type.Name, Message(o))
	}
	return fmt.Sprintf("%s%v", o.Type.Name, o.Fields)
}

// Boxed is a value type stored behind a reference.
type Boxed struct {
	Type  *Type
	Value any
}

func (b *Boxed) String() string { return fmt.Sprint(b.Value) }

// Delegate binds a method to an optional target.
type Delegate struct {
	Type   *Type
	Target any
	Method *Method
}

func (d *Delegate) String() string {
	return fmt.Sprintf("%s(%s)", d.Type.Name, d.Method.FullName())
}

// Ref is the address of a storage location.
type Ref interface {
	Load() any
	Store(v any)
}

// Cell is a standalone storage location. Arguments and locals live in
// cells so that their address can be taken.
type Cell struct {
	V any
}

func (c *Cell) Load() any      { return c.V }
func (c *Cell) Store(v any)    { c.V = v }
func (c *Cell) String() string { return fmt.Sprintf("&%v", c.V) }

// FieldRef addresses an instance field.
type FieldRef struct {
	Obj   *Instance
	Index int
}

func (r *FieldRef) Load() any   { return r.Obj.Fields[r.Index] }
func (r *FieldRef) Store(v any) { r.Obj.Fields[r.Index] = v }

// BoxRef addresses the payload of a boxed value.
type BoxRef struct {
	Box *Boxed
}

func (r *BoxRef) Load() any   { return r.Box.Value }
func (r *BoxRef) Store(v any) { r.Box.Value = v }

// Thrown carries an exception object out of the machine as a Go error.
type Thrown struct {
	Exception *Instance
}

func (t *Thrown) Error() string {
	if t.Exception == nil {
		return "exception: <nil>"
	}
	return "exception: " + t.Exception.String()
}

// NewException creates an exception of type t with message msg.
func NewException(t *Type, msg string) *Instance {
	o := NewInstance(t)
	o.Set(ExceptionMessage, msg)
	return o
}

// Throwf wraps a new exception in a Thrown error.
func Throwf(t *Type, format string, args ...any) *Thrown {
	return &Thrown{Exception: NewException(t, fmt.Sprintf(format, args...))}
}

// Message returns the message of an exception object.
func Message(o *Instance) string {
	if o == nil || !o.Type.IsSubclassOf(Exception) {
		return ""
	}
	s, _ := o.Get(ExceptionMessage).(string)
	return s
}

// Zero returns the default value of t.
func Zero(t *Type) any {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case KindBool:
		return false
	case KindInt32:
		return int32(0)
	case KindInt64:
		return int64(0)
	case KindFloat64:
		return float64(0)
	case KindStruct:
		return NewInstance(t)
	}
	return nil
}

// Clone copies struct values. Other values are returned unchanged.
func Clone(v any) any {
	o, ok := v.(*Instance)
	if !ok || o.Type.Kind != KindStruct {
		return v
	}
	c := &Instance{Type: o.Type, Fields: make([]any, len(o.Fields))}
	for i, f := range o.Fields {
		c.Fields[i] = Clone(f)
	}
	return c
}

// TypeOf returns the dynamic type of a runtime value.
func TypeOf(v any) *Type {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return Bool
	case int32:
		return Int32
	case int64:
		return Int64
	case float64:
		return Float64
	case string:
		return String
	case *Instance:
		return x.Type
	case *Boxed:
		return x.Type
	case *Delegate:
		return x.Type
	case *Method:
		return MethodHandle
	case Ref:
		return nil
	}
	return Object
}

// IsInstance reports whether the reference v can be viewed as t.
func IsInstance(v any, t *Type) bool {
	vt := TypeOf(v)
	if vt == nil {
		return false
	}
	if t == Object {
		return true
	}
	return vt.IsSubclassOf(t)
}
