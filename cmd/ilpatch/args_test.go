package main

import (
	"testing"

	"github.com/wippyai/ilpatch/il"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"1", []string{"1"}},
		{"1, 2 ,3", []string{"1", "2", "3"}},
	}
	for _, tt := range tests {
		got := splitArgs(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitArgs(%q) = %q, want %q", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitArgs(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestConvertArg(t *testing.T) {
	point := il.NewStruct("Point", "test")
	tests := []struct {
		want    any
		typ     *il.Type
		value   string
		wantErr bool
	}{
		{typ: il.Int32, value: "42", want: int32(42)},
		{typ: il.Int32, value: "0x10", want: int32(16)},
		{typ: il.Int32, value: "-7", want: int32(-7)},
		{typ: il.Int32, value: "4294967296", wantErr: true},
		{typ: il.Int32, value: "abc", wantErr: true},
		{typ: il.Int64, value: "4294967296", want: int64(4294967296)},
		{typ: il.Float64, value: "2.5", want: 2.5},
		{typ: il.Bool, value: "true", want: true},
		{typ: il.Bool, value: "0", want: false},
		{typ: il.Bool, value: "maybe", wantErr: true},
		{typ: il.String, value: "hello", want: "hello"},
		{typ: il.String, value: `"a, b"`, want: "a, b"},
		{typ: il.String, value: "null", want: nil},
		{typ: il.Object, value: "null", want: nil},
		{typ: il.Object, value: "x", wantErr: true},
		{typ: point, value: "null", wantErr: true},
	}
	for _, tt := range tests {
		got, err := convertArg(tt.value, tt.typ)
		if tt.wantErr {
			if err == nil {
				t.Errorf("convertArg(%q, %s) = %v, want error", tt.value, tt.typ, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("convertArg(%q, %s) failed: %v", tt.value, tt.typ, err)
			continue
		}
		if got != tt.want {
			t.Errorf("convertArg(%q, %s) = %#v, want %#v", tt.value, tt.typ, got, tt.want)
		}
	}
}

func TestParseArgs(t *testing.T) {
	owner := il.NewClass("Calc", "test", nil)
	add := il.NewMethod(owner, "Add", il.Int32, il.P("a", il.Int32), il.P("b", il.Int32))

	args, err := parseArgs(add, []string{"2", "3"})
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}
	if args[0] != int32(2) || args[1] != int32(3) {
		t.Errorf("parseArgs = %v", args)
	}

	if _, err := parseArgs(add, []string{"2"}); err == nil {
		t.Error("parseArgs accepted too few arguments")
	}
	if _, err := parseArgs(add, []string{"2", "x"}); err == nil {
		t.Error("parseArgs accepted a malformed argument")
	}

	inst := &il.Method{Name: "Get", DeclaringType: owner, Return: il.Int32}
	if _, err := parseArgs(inst, nil); err == nil {
		t.Error("parseArgs accepted an instance routine")
	}
}
