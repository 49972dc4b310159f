package patch

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

func TestBinding_NameMatchWinsOverIndex(t *testing.T) {
	f := newFixture(t)
	_, add, body := f.calc()
	patches := il.NewClass("Patches", "test", nil)
	got := map[string]int32{}
	pre := native(patches, "Pre", il.Void, func(args []any) any {
		got["b"] = args[0].(int32)
		got["a"] = args[1].(int32)
		got["__1"] = args[2].(int32)
		return nil
	}, il.P("b", il.Int32), il.P("a", il.Int32), il.P("__1", il.Int32))

	f.apply(add, body, NewPrefix(pre))
	f.call(add, 2, 3)

	want := map[string]int32{"a": 2, "b": 3, "__1": 3}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("parameter %s = %d, want %d", name, got[name], v)
		}
	}
}

func TestBinding_Rules(t *testing.T) {
	f := newFixture(t)
	counter := il.NewClass("Counter", "test", nil)
	count := counter.AddField("count", il.Int32, false)
	created := counter.AddField("created", il.Int32, true)
	add := il.NewInstanceMethod(counter, "Add", il.Int32, il.P("n", il.Int32))
	body := f.define(add, func(e *il.Emitter) {
		e.LdArg(0).LdArg(0).LdFld(count).LdArg(1).Emit(il.Add).Emit(il.StFld, count)
		e.LdArg(0).LdFld(count).Ret()
	})

	patches := il.NewClass("Patches", "test", nil)
	bump := native(patches, "Bump", il.Void, func(args []any) any {
		r := args[0].(il.Ref)
		r.Store(r.Load().(int32) + 10)
		return nil
	}, il.P("___count", il.RefTo(il.Int32)))
	seen := map[string]any{}
	names := []string{"__instance", "___count", "___0", "___created", "__originalMethod", "__0", "__result", "n"}
	observe := native(patches, "Observe", il.Void, func(args []any) any {
		for i, name := range names {
			seen[name] = args[i]
		}
		return nil
	},
		il.P("__instance", il.Object),
		il.P("___count", il.Int32),
		il.P("___0", il.Int32),
		il.P("___created", il.Int32),
		il.P("__originalMethod", il.MethodHandle),
		il.P("__0", il.Int32),
		il.P("__result", il.Int32),
		il.P("n", il.Int32),
	)

	f.apply(add, body, NewPrefix(bump), NewPostfix(observe))

	f.machine.Static(created).Store(int32(11))
	obj := il.NewInstance(counter)
	obj.Set(count, int32(5))
	if got := f.call(add, obj, 3); got != int32(18) {
		t.Fatalf("Add(3) = %v, want 5+10+3 = 18", got)
	}

	want := map[string]any{
		"__instance":       obj,
		"___count":         int32(18),
		"___0":             int32(18),
		"___created":       int32(11),
		"__originalMethod": add,
		"__0":              int32(3),
		"__result":         int32(18),
		"n":                int32(3),
	}
	for name, v := range want {
		if seen[name] != v {
			t.Errorf("%s = %v, want %v", name, seen[name], v)
		}
	}
}

func TestBinding_StructInstance(t *testing.T) {
	f := newFixture(t)
	vec := il.NewStruct("Vec", "test")
	x := vec.AddField("x", il.Int32, false)
	getX := il.NewInstanceMethod(vec, "GetX", il.Int32)
	body := f.define(getX, func(e *il.Emitter) {
		e.LdArg(0).LdFld(x).Ret()
	})

	patches := il.NewClass("Patches", "test", nil)
	set := native(patches, "Set", il.Void, func(args []any) any {
		args[0].(il.Ref).Load().(*il.Instance).Set(x, int32(99))
		return nil
	}, il.P("__instance", il.RefTo(vec)))
	var copied, boxed any
	seen := native(patches, "Seen", il.Void, func(args []any) any {
		copied, boxed = args[0], args[1]
		return nil
	}, il.P("__instance", vec), il.P("__instance", il.Object))

	f.apply(getX, body, NewPrefix(set), NewPostfix(seen))

	cell := &il.Cell{V: il.NewInstance(vec)}
	if got := f.call(getX, il.Ref(cell)); got != int32(99) {
		t.Fatalf("GetX() = %v, want 99", got)
	}
	if v := cell.V.(*il.Instance).Get(x); v != int32(99) {
		t.Errorf("by-reference receiver not written through, x = %v", v)
	}
	c, ok := copied.(*il.Instance)
	if !ok || c == cell.V || c.Get(x) != int32(99) {
		t.Errorf("by-value receiver should be a copy with x = 99, got %v", copied)
	}
	b, ok := boxed.(*il.Boxed)
	if !ok || b.Type != vec {
		t.Errorf("object receiver should be a boxed Vec, got %T", boxed)
	}
}

func TestBinding_StatePerDeclaringType(t *testing.T) {
	f := newFixture(t)
	_, add, body := f.calc()
	mine := il.NewClass("Mine", "test", nil)
	other := il.NewClass("Other", "test", nil)
	pre := native(mine, "Pre", il.Void, func(args []any) any {
		args[0].(il.Ref).Store(int32(7))
		return nil
	}, il.P("__state", il.RefTo(il.Int32)))
	var fromMine, fromOther any
	postMine := native(mine, "Post", il.Void, func(args []any) any {
		fromMine = args[0]
		return nil
	}, il.P("__state", il.Int32))
	postOther := native(other, "Post", il.Void, func(args []any) any {
		fromOther = args[0]
		return nil
	}, il.P("__state", il.Int32))

	f.apply(add, body, NewPrefix(pre), NewPostfix(postMine), NewPostfix(postOther))
	f.call(add, 1, 2)

	if fromMine != int32(7) {
		t.Errorf("same declaring type saw state %v, want 7", fromMine)
	}
	if fromOther != int32(0) {
		t.Errorf("other declaring type saw state %v, want its own zero slot", fromOther)
	}
}

func TestBinding_DelegateFallback(t *testing.T) {
	f := newFixture(t)
	calc, add, body := f.calc()
	double := il.NewMethod(calc, "Double", il.Int32, il.P("v", il.Int32))
	f.define(double, func(e *il.Emitter) {
		e.LdArg(0).LdcI4(2).Emit(il.Mul).Ret()
	})
	mapper := il.NewDelegateType("Mapper", "test", []*il.Param{il.P("v", il.Int32)}, il.Int32)

	patches := il.NewClass("Patches", "test", nil)
	var got any
	use := il.NewMethod(patches, "Use", il.Void, il.P("Double", mapper))
	use.Native = func(inv il.Invoker, args []any) (any, error) {
		v, err := inv.CallDelegate(args[0].(*il.Delegate), int32(4))
		got = v
		return nil, err
	}
	var viaTarget any
	named := il.NewMethod(patches, "Named", il.Void, &il.Param{Name: "fn", Type: mapper, Target: "Double"})
	named.Native = func(_ il.Invoker, args []any) (any, error) {
		viaTarget = args[0]
		return nil, nil
	}

	f.apply(add, body, NewPrefix(use), NewPrefix(named))
	f.call(add, 1, 2)

	if got != int32(8) {
		t.Errorf("delegate call returned %v, want 8", got)
	}
	d, ok := viaTarget.(*il.Delegate)
	if !ok || d.Method != double {
		t.Errorf("Param.Target binding = %v, want a delegate to Double", viaTarget)
	}
}

func TestBinding_InstanceDelegate(t *testing.T) {
	f := newFixture(t)
	counter := il.NewClass("Counter", "test", nil)
	count := counter.AddField("count", il.Int32, false)
	get := il.NewInstanceMethod(counter, "Get", il.Int32)
	f.define(get, func(e *il.Emitter) {
		e.LdArg(0).LdFld(count).Ret()
	})
	touch := il.NewInstanceMethod(counter, "Touch", il.Void)
	body := f.define(touch, func(e *il.Emitter) {
		e.Ret()
	})
	getter := il.NewDelegateType("Getter", "test", nil, il.Int32)

	patches := il.NewClass("Patches", "test", nil)
	var got any
	pre := il.NewMethod(patches, "Pre", il.Void, il.P("Get", getter))
	pre.Native = func(inv il.Invoker, args []any) (any, error) {
		v, err := inv.CallDelegate(args[0].(*il.Delegate))
		got = v
		return nil, err
	}

	f.apply(touch, body, NewPrefix(pre))
	obj := il.NewInstance(counter)
	obj.Set(count, int32(21))
	f.call(touch, obj)

	if got != int32(21) {
		t.Errorf("bound delegate returned %v, want the receiver's count 21", got)
	}
}

func TestBinding_StaticRoutineInstanceIsNull(t *testing.T) {
	f := newFixture(t)
	_, add, body := f.calc()
	patches := il.NewClass("Patches", "test", nil)
	seen := any("unset")
	pre := native(patches, "Pre", il.Void, func(args []any) any {
		seen = args[0]
		return nil
	}, il.P("__instance", il.Object))

	f.apply(add, body, NewPrefix(pre))
	f.call(add, 1, 2)

	if seen != nil {
		t.Errorf("__instance in a static routine = %v, want null", seen)
	}
}

func TestBinding_Defects(t *testing.T) {
	calc := il.NewClass("Calc", "test", nil)
	calc.AddField("count", il.Int32, false)
	add := il.NewMethod(calc, "Add", il.Int32, il.P("a", il.Int32), il.P("b", il.Int32))
	touch := il.NewMethod(calc, "Touch", il.Void)
	patches := il.NewClass("Patches", "test", nil)
	m := func(name string, ret *il.Type, params ...*il.Param) *il.Method {
		return il.NewMethod(patches, name, ret, params...)
	}

	tests := []struct {
		name   string
		target *il.Method
		patch  *Patch
	}{
		{"prefix returning int32", add, NewPrefix(m("P1", il.Int32))},
		{"passthrough first parameter mismatch", add, NewPostfix(m("P2", il.Int32, il.P("s", il.String)))},
		{"passthrough without parameters", add, NewPostfix(m("P3", il.Int32))},
		{"passthrough returning another type", add, NewPostfix(m("P4", il.Int64, il.P("v", il.Int64)))},
		{"passthrough on a void routine", touch, NewPostfix(m("P5", il.Int32, il.P("v", il.Int32)))},
		{"unknown parameter", add, NewPrefix(m("P6", il.Void, il.P("nope", il.Int32)))},
		{"result of wrong type", add, NewPrefix(m("P7", il.Void, il.P("__result", il.String)))},
		{"result by reference of wrong type", add, NewPrefix(m("P8", il.Void, il.P("__result", il.RefTo(il.Int64))))},
		{"result on a void routine", touch, NewPrefix(m("P9", il.Void, il.P("__result", il.Int32)))},
		{"index out of range", add, NewPrefix(m("P10", il.Void, il.P("__5", il.Int32)))},
		{"missing field", add, NewPrefix(m("P11", il.Void, il.P("___missing", il.Int32)))},
		{"instance field in a static routine", add, NewPrefix(m("P12", il.Void, il.P("___count", il.Int32)))},
		{"original method of wrong type", add, NewPrefix(m("P13", il.Void, il.P("__originalMethod", il.Int32)))},
		{"argument type mismatch", add, NewPrefix(m("P14", il.Void, il.P("a", il.String)))},
		{"finalizer returning int32", add, NewFinalizer(m("P15", il.Int32))},
		{"instance patch method", add, NewPrefix(il.NewInstanceMethod(patches, "P16", il.Void))},
		{"instance of a static routine by value", add, NewPrefix(m("P17", il.Void, il.P("__instance", il.Int32)))},
	}

	eng := New(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := il.NewBody(tt.target, il.New(il.LdcI4, 0), il.New(il.Ret))
			if tt.target.IsVoid() {
				body = il.NewBody(tt.target, il.New(il.Ret))
			}
			before := il.FormatBody(body)

			err := eng.Rewrite(tt.target, body, Sorted(tt.patch))
			if err == nil {
				t.Fatal("expected a declaration defect")
			}
			if !errors.IsInvalidPatchArgument(err) {
				t.Fatalf("expected an invalid patch argument, got %v", err)
			}
			if il.FormatBody(body) != before {
				t.Error("body changed by a failed rewrite")
			}
		})
	}
}

func TestBinding_DefectsAreAggregated(t *testing.T) {
	calc := il.NewClass("Calc", "test", nil)
	add := il.NewMethod(calc, "Add", il.Int32, il.P("a", il.Int32))
	patches := il.NewClass("Patches", "test", nil)
	bad := il.NewMethod(patches, "Bad", il.Void, il.P("x", il.Int32), il.P("y", il.Int32))
	badRet := il.NewMethod(patches, "BadRet", il.String)

	body := il.NewBody(add, il.New(il.LdArg, 0), il.New(il.Ret))
	err := New(Config{}).Rewrite(add, body, Sorted(NewPrefix(bad), NewFinalizer(badRet)))
	if err == nil {
		t.Fatal("expected defects")
	}
	msg := err.Error()
	for _, want := range []string{`"x"`, `"y"`, "finalizer must return"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestBinding_DefectNamesParameter(t *testing.T) {
	calc := il.NewClass("Calc", "test", nil)
	add := il.NewMethod(calc, "Add", il.Int32, il.P("a", il.Int32))
	patches := il.NewClass("Patches", "test", nil)
	pre := il.NewMethod(patches, "Pre", il.Void, il.P("a", il.String))

	body := il.NewBody(add, il.New(il.LdArg, 0), il.New(il.Ret))
	err := New(Config{}).Rewrite(add, body, Sorted(NewPrefix(pre)))

	var defect *errors.Error
	if !stderrors.As(err, &defect) {
		t.Fatalf("expected a structured error, got %v", err)
	}
	for defect.Phase != errors.PhaseBind {
		var next *errors.Error
		if !stderrors.As(defect.Cause, &next) {
			t.Fatalf("no bind-phase error in %v", err)
		}
		defect = next
	}
	if len(defect.Path) != 1 || defect.Path[0] != "a" {
		t.Errorf("Path = %v, want [a]", defect.Path)
	}
	if defect.Routine != add.String() || defect.Patch != pre.String() {
		t.Errorf("Routine=%q Patch=%q", defect.Routine, defect.Patch)
	}
	if !strings.Contains(err.Error(), " at a") {
		t.Errorf("error %q does not show the parameter path", err)
	}
}

func TestBinding_ExceptionSlotWithoutFinalizers(t *testing.T) {
	f := newFixture(t)
	_, add, body := f.calc()
	patches := il.NewClass("Patches", "test", nil)
	seen := any("unset")
	post := native(patches, "Post", il.Void, func(args []any) any {
		seen = args[0]
		return nil
	}, il.P("__exception", il.Exception))

	f.apply(add, body, NewPostfix(post))
	if _, err := f.machine.Call(context.Background(), add, 1, 2); err != nil {
		t.Fatal(err)
	}
	if seen != nil {
		t.Errorf("__exception on the success path = %v, want null", seen)
	}
}
