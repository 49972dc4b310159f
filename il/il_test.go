package il

import (
	"strings"
	"testing"
)

func TestEmitter_PendingMarkers(t *testing.T) {
	b := NewBody(testMethod(Void))
	e := b.Emitter()
	l := e.DefineLabel()
	e.MarkLabel(l).BeginTry()
	if e.Len() != 0 {
		t.Fatalf("markers must not emit, len = %d", e.Len())
	}
	e.Nop()
	first := e.Instrs()[0]
	if len(first.Labels) != 1 || first.Labels[0] != l {
		t.Errorf("label not attached to next instruction: %v", first.Labels)
	}
	if !first.HasBlock(BeginTry) {
		t.Error("BeginTry not attached to next instruction")
	}

	e.EndBlock()
	if !first.HasBlock(EndBlock) {
		t.Error("EndBlock should attach to the last emitted instruction")
	}

	dangling := e.DefineLabel()
	e.MarkLabel(dangling)
	instrs := e.Instrs()
	last := instrs[len(instrs)-1]
	if last.Op != Nop || len(last.Labels) != 1 || last.Labels[0] != dangling {
		t.Errorf("dangling label should land on a trailing nop, got %v", last)
	}
}

func TestEmitter_AppendKeepsRecords(t *testing.T) {
	b := NewBody(testMethod(Void))
	orig := New(Ret)
	e := b.Emitter()
	l := e.DefineLabel()
	e.MarkLabel(l).Append(orig)
	if e.Instrs()[0] != orig {
		t.Fatal("Append must splice the record itself")
	}
	if orig.Labels[0] != l {
		t.Error("pending label not attached to spliced record")
	}
}

func TestBody_CloneIsolation(t *testing.T) {
	b := NewBody(testMethod(Int32))
	b.Instrs = []*Instruction{New(LdcI4, 7), New(Ret)}
	c := b.Clone()
	c.Instrs[0].Operand = int32(9)
	c.DeclareLocal(Int32, "x")
	c.Instrs = append(c.Instrs, New(Nop))

	if b.Instrs[0].Operand != int32(7) {
		t.Error("clone shares instruction records with the original")
	}
	if len(b.Locals) != 0 || len(b.Instrs) != 2 {
		t.Error("clone mutation leaked into the original")
	}

	b.Replace(c)
	if len(b.Locals) != 1 || b.Instrs[0].Operand != int32(9) {
		t.Error("Replace did not commit the clone")
	}
}

func TestType_IsAssignableFrom(t *testing.T) {
	player := NewClass("Player", "game", nil)
	boss := NewClass("Boss", "game", player)
	vec := NewStruct("Vec", "game")

	tests := []struct {
		to, from *Type
		want     bool
	}{
		{Int32, Int32, true},
		{Object, Int32, true},
		{Object, vec, true},
		{Object, player, true},
		{player, boss, true},
		{boss, player, false},
		{Exception, ArgumentException, true},
		{Int32, Int64, false},
		{vec, Object, false},
		{RefTo(Int32), RefTo(Int32), true},
		{RefTo(Int32), Int32, false},
		{Object, Void, false},
	}
	for _, tt := range tests {
		if got := tt.to.IsAssignableFrom(tt.from); got != tt.want {
			t.Errorf("%s.IsAssignableFrom(%s) = %v, want %v", tt.to, tt.from, got, tt.want)
		}
	}
}

func TestRefTo_Cached(t *testing.T) {
	if RefTo(Int32) != RefTo(Int32) {
		t.Error("by-reference types must compare by identity")
	}
	if RefTo(RefTo(Int32)) != RefTo(Int32) {
		t.Error("RefTo of a by-reference type is itself")
	}
}

func TestType_FieldLayout(t *testing.T) {
	base := NewClass("Base", "m", nil)
	a := base.AddField("a", Int32, false)
	base.AddField("count", Int32, true)
	derived := NewClass("Derived", "m", base)
	b := derived.AddField("b", String, false)

	if a.Index != 0 || b.Index != 1 {
		t.Errorf("indices = %d,%d want 0,1", a.Index, b.Index)
	}
	o := NewInstance(derived)
	if len(o.Fields) != 2 || o.Get(a) != int32(0) || o.Get(b) != nil {
		t.Errorf("zero instance = %v", o.Fields)
	}
	if derived.Field("a") != a {
		t.Error("Field should walk the base chain")
	}
}

func TestClone_CopiesStructs(t *testing.T) {
	vec := NewStruct("Vec", "m")
	x := vec.AddField("x", Int32, false)
	v := NewInstance(vec)
	c := Clone(v).(*Instance)
	c.Set(x, int32(5))
	if v.Get(x) != int32(0) {
		t.Error("struct clone shares storage")
	}

	cls := NewInstance(NewClass("C", "m", nil))
	if Clone(cls) != any(cls) {
		t.Error("class instances are references and must not be copied")
	}
}

func TestNewDelegateType(t *testing.T) {
	d := NewDelegateType("Mapper", "m", []*Param{P("v", Int32)}, Int32)
	ctor := d.Method(CtorName)
	if ctor == nil || len(ctor.Params) != 2 || ctor.Params[1].Type != MethodHandle {
		t.Fatalf("delegate constructor = %v", ctor)
	}
	if d.Invoke == nil || !d.Invoke.Virtual || d.Invoke.Return != Int32 {
		t.Errorf("Invoke = %+v", d.Invoke)
	}
}

func TestFormat(t *testing.T) {
	cls := NewClass("Calc", "m", nil)
	add := NewMethod(cls, "Add", Int32, P("a", Int32), P("b", Int32))
	b := NewBody(add)
	e := b.Emitter()
	sum := e.DeclareLocal(Int32, "sum")
	done := b.DefineNamedLabel("done")
	e.BeginTry().LdArg(0).LdArg(1).Call(add).StLoc(sum).Leave(done)
	e.BeginCatch(Exception).Pop().Leave(done).EndBlock()
	e.MarkLabel(done).LdLoc(sum).Ret()
	b.Instrs = e.Instrs()

	out := FormatBody(b)
	for _, want := range []string{
		".local int32 sum",
		".try {",
		"IL_0002: call Calc::Add(int32, int32)",
		"} .catch Exception {",
		"done:",
		"IL_0007: ldloc 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestLookupOpcode(t *testing.T) {
	for op := Opcode(0); op < opcodeCount; op++ {
		got, ok := LookupOpcode(op.String())
		if !ok || got != op {
			t.Errorf("LookupOpcode(%q) = %v, %v", op.String(), got, ok)
		}
	}
	if _, ok := LookupOpcode("jmp"); ok {
		t.Error("unknown mnemonic resolved")
	}
}

func TestStackEffect_Calls(t *testing.T) {
	cls := NewClass("C", "m", nil)
	inst := NewInstanceMethod(cls, "F", Int32, P("a", Int32))
	stat := NewMethod(cls, "G", Void, P("a", Int32), P("b", Int32))

	tests := []struct {
		ins          *Instruction
		pops, pushes int
	}{
		{New(Call, inst), 2, 1},
		{New(CallVirt, inst), 2, 1},
		{New(Call, stat), 2, 0},
		{New(NewObj, inst), 1, 1},
		{New(Dup), 1, 2},
	}
	for _, tt := range tests {
		pops, pushes := StackEffect(tt.ins, nil)
		if pops != tt.pops || pushes != tt.pushes {
			t.Errorf("%s: effect = %d/%d, want %d/%d", tt.ins, pops, pushes, tt.pops, tt.pushes)
		}
	}
}
