package interp

import (
	"github.com/wippyai/ilpatch/il"
)

func binary(op il.Opcode, a, b any) (any, error) {
	switch x := a.(type) {
	case int32:
		y, ok := b.(int32)
		if !ok {
			return nil, operandMismatch(op, a, b)
		}
		return intOp(op, x, y)
	case int64:
		y, ok := b.(int64)
		if !ok {
			return nil, operandMismatch(op, a, b)
		}
		return intOp(op, x, y)
	case float64:
		y, ok := b.(float64)
		if !ok {
			return nil, operandMismatch(op, a, b)
		}
		switch op {
		case il.Add:
			return x + y, nil
		case il.Sub:
			return x - y, nil
		case il.Mul:
			return x * y, nil
		case il.Div:
			return x / y, nil
		}
	case bool:
		y, ok := b.(bool)
		if !ok {
			return nil, operandMismatch(op, a, b)
		}
		switch op {
		case il.And:
			return x && y, nil
		case il.Or:
			return x || y, nil
		case il.Xor:
			return x != y, nil
		}
	case string:
		if y, ok := b.(string); ok && op == il.Add {
			return x + y, nil
		}
	}
	return nil, operandMismatch(op, a, b)
}

func intOp[T int32 | int64](op il.Opcode, x, y T) (any, error) {
	switch op {
	case il.Add:
		return x + y, nil
	case il.Sub:
		return x - y, nil
	case il.Mul:
		return x * y, nil
	case il.Div, il.Rem:
		if y == 0 {
			return nil, il.Throwf(il.DivideByZeroException, "attempted to divide by zero")
		}
		if op == il.Div {
			return x / y, nil
		}
		return x % y, nil
	case il.And:
		return x & y, nil
	case il.Or:
		return x | y, nil
	case il.Xor:
		return x ^ y, nil
	}
	return nil, il.Throwf(il.InvalidOperationException, "%s on integers", op)
}

func unary(op il.Opcode, v any) (any, error) {
	switch x := v.(type) {
	case int32:
		if op == il.Neg {
			return -x, nil
		}
		return ^x, nil
	case int64:
		if op == il.Neg {
			return -x, nil
		}
		return ^x, nil
	case float64:
		if op == il.Neg {
			return -x, nil
		}
	case bool:
		if op == il.Not {
			return !x, nil
		}
	}
	return nil, il.Throwf(il.InvalidCastException, "%s on %s", op, il.TypeOf(v))
}

func operandMismatch(op il.Opcode, a, b any) error {
	return il.Throwf(il.InvalidCastException, "%s on %s and %s", op, il.TypeOf(a), il.TypeOf(b))
}

// equal compares primitives by value and references by identity.
func equal(a, b any) bool {
	return a == b
}

func compare(op il.Opcode, a, b any) (bool, error) {
	var c int
	switch x := a.(type) {
	case int32:
		y, ok := b.(int32)
		if !ok {
			return false, operandMismatch(op, a, b)
		}
		c = cmp(x, y)
	case int64:
		y, ok := b.(int64)
		if !ok {
			return false, operandMismatch(op, a, b)
		}
		c = cmp(x, y)
	case float64:
		y, ok := b.(float64)
		if !ok {
			return false, operandMismatch(op, a, b)
		}
		c = cmp(x, y)
	case string:
		y, ok := b.(string)
		if !ok {
			return false, operandMismatch(op, a, b)
		}
		c = cmp(x, y)
	default:
		return false, operandMismatch(op, a, b)
	}
	if op == il.Cgt {
		return c > 0, nil
	}
	return c < 0, nil
}

func cmp[T int32 | int64 | float64 | string](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int32:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	return true
}

// instanceOf returns the object a field access operates on: an object
// reference or the address of a struct.
func instanceOf(v any) (*il.Instance, error) {
	switch x := v.(type) {
	case nil:
		return nil, il.Throwf(il.NullReferenceException, "field access on null")
	case *il.Instance:
		return x, nil
	case il.Ref:
		if o, ok := x.Load().(*il.Instance); ok {
			return o, nil
		}
	case *il.Boxed:
		if o, ok := x.Value.(*il.Instance); ok {
			return o, nil
		}
	}
	return nil, il.Throwf(il.InvalidCastException, "field access on %s", il.TypeOf(v))
}

func refOf(v any) (il.Ref, error) {
	switch x := v.(type) {
	case nil:
		return nil, il.Throwf(il.NullReferenceException, "indirect access through null")
	case il.Ref:
		return x, nil
	case *il.Boxed:
		return &il.BoxRef{Box: x}, nil
	}
	return nil, il.Throwf(il.InvalidCastException, "%s is not an address", il.TypeOf(v))
}

func box(t *il.Type, v any) any {
	if !t.IsValueType() {
		return v
	}
	if _, ok := v.(*il.Boxed); ok {
		return v
	}
	return &il.Boxed{Type: t, Value: il.Clone(v)}
}

func unbox(t *il.Type, v any) (any, error) {
	if !t.IsValueType() {
		if v != nil && !il.IsInstance(v, t) {
			return nil, il.Throwf(il.InvalidCastException, "cannot cast %s to %s", il.TypeOf(v), t)
		}
		return v, nil
	}
	switch x := v.(type) {
	case nil:
		return nil, il.Throwf(il.NullReferenceException, "unbox of null to %s", t)
	case *il.Boxed:
		if x.Type != t {
			return nil, il.Throwf(il.InvalidCastException, "cannot unbox %s as %s", x.Type, t)
		}
		return il.Clone(x.Value), nil
	}
	return nil, il.Throwf(il.InvalidCastException, "unbox of unboxed %s", il.TypeOf(v))
}
