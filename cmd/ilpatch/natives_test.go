package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wippyai/ilpatch/il"
)

func TestBuiltins_Counters(t *testing.T) {
	b := newBuiltins(&bytes.Buffer{})
	fns := b.funcs()

	for i := 1; i <= 3; i++ {
		got, err := fns["counter.inc"](nil, []any{"calls"})
		if err != nil {
			t.Fatalf("counter.inc: %v", err)
		}
		if got != int32(i) {
			t.Errorf("counter.inc #%d = %v", i, got)
		}
	}
	if got, _ := fns["counter.get"](nil, []any{"calls"}); got != int32(3) {
		t.Errorf("counter.get = %v, want 3", got)
	}
	if got, _ := fns["counter.get"](nil, []any{"other"}); got != int32(0) {
		t.Errorf("counter.get of unknown counter = %v, want 0", got)
	}
	if _, err := fns["counter.inc"](nil, []any{int32(1)}); err == nil {
		t.Error("counter.inc accepted a non-string name")
	}
	if _, err := fns["counter.inc"](nil, nil); err == nil {
		t.Error("counter.inc accepted no arguments")
	}

	if got := strings.Join(b.snapshot(), " "); got != "calls=3" {
		t.Errorf("snapshot = %q", got)
	}
}

func TestBuiltins_Print(t *testing.T) {
	var out bytes.Buffer
	b := newBuiltins(&out)
	if _, err := b.funcs()["print"](nil, []any{"hi", int32(4), nil}); err != nil {
		t.Fatalf("print: %v", err)
	}
	if got := out.String(); got != "\"hi\" 4 null\n" {
		t.Errorf("print wrote %q", got)
	}
}

func TestTranspilers(t *testing.T) {
	fns := transpilers()
	lbl := &il.Label{Name: "keep"}
	instrs := []*il.Instruction{
		il.New(il.Nop),
		il.New(il.LdcI4, 1),
		il.New(il.LdcI4, 2),
		il.New(il.Add),
		{Op: il.Nop, Labels: []*il.Label{lbl}},
		il.New(il.Ret),
	}

	out, err := fns["add-to-sub"](nil, instrs)
	if err != nil {
		t.Fatalf("add-to-sub: %v", err)
	}
	if out[3].Op != il.Sub {
		t.Errorf("add-to-sub left %s", out[3].Op)
	}

	out, err = fns["strip-nops"](nil, out)
	if err != nil {
		t.Fatalf("strip-nops: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("strip-nops kept %d instructions, want 5", len(out))
	}
	if out[3].Op != il.Nop || out[3].Labels[0] != lbl {
		t.Error("strip-nops removed a labeled nop")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"a\"b", `"a\"b"`},
		{int32(3), "3"},
		{true, "true"},
		{il.Int32, "int32"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
