package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/ilpatch/il"
	"github.com/wippyai/ilpatch/wasmhost"
)

const cliSource = `
module cli

method static int32 Counter::Inc(string name) native "counter.inc"

method static int32 Calc::Add(int32 a, int32 b) {
    ldarg a
    ldarg b
    add
    ret
}

method static int32 Calc::Sub(int32 a, int32 b) {
    ldarg a
    ldarg b
    add
    ret
}

method static void Hooks::Count() {
    ldstr "add"
    call Counter::Inc
    pop
    ret
}

prefix Calc::Add Hooks::Count
transpiler Calc::Sub "add-to-sub"
`

func writeSource(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ila")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestLoad_AppliesPatches(t *testing.T) {
	ctx := context.Background()
	s, err := load(ctx, options{file: writeSource(t, cliSource), wasm: wasmFlags{}}, zap.NewNop())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	defer s.host.Close(ctx)

	call := func(name string, args ...any) any {
		t.Helper()
		res, err := s.mgr.Machine().Call(ctx, s.prog.Method(name), args...)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return res
	}

	if got := call("Calc::Add", 2, 3); got != int32(5) {
		t.Errorf("Calc::Add = %v, want 5", got)
	}
	call("Calc::Add", 1, 1)
	if got := call("Calc::Sub", 7, 3); got != int32(4) {
		t.Errorf("Calc::Sub = %v, want 4", got)
	}
	if got := s.natives.snapshot(); len(got) != 1 || got[0] != "add=2" {
		t.Errorf("counters = %v, want [add=2]", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		opts options
	}{
		{"missing file", options{file: filepath.Join(t.TempDir(), "none.ila"), wasm: wasmFlags{}}},
		{"parse error", options{file: writeSource(t, "method static int32 A::B() {\n    bogus\n}\n"), wasm: wasmFlags{}}},
		{"unknown native", options{file: writeSource(t, `method static void A::B() native "nope"`), wasm: wasmFlags{}}},
		{"missing wasm", options{file: writeSource(t, cliSource), wasm: wasmFlags{"m": filepath.Join(t.TempDir(), "m.wasm")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(ctx, tt.opts, zap.NewNop()); err == nil {
				t.Error("load succeeded")
			}
		})
	}
}

func TestWasmFlags(t *testing.T) {
	w := wasmFlags{}
	if err := w.Set("math=lib/math.wasm"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if w["math"] != "lib/math.wasm" {
		t.Errorf("flags = %v", w)
	}
	for _, bad := range []string{"math", "=x", "math="} {
		if err := w.Set(bad); err == nil {
			t.Errorf("Set(%q) accepted", bad)
		}
	}
}

func TestWasmResolver(t *testing.T) {
	ctx := context.Background()
	host := wasmhost.New(ctx, wasmhost.Config{})
	defer host.Close(ctx)
	resolve := wasmResolver(host)
	sig := il.NewMethod(il.NewClass("M", "test", nil), "F", il.Int32)

	fn, err := resolve("print", sig)
	if err != nil || fn != nil {
		t.Errorf("non-wasm name resolved to %v, %v", fn, err)
	}
	if _, err := resolve("wasm:noslash", sig); err == nil {
		t.Error("malformed wasm name accepted")
	}
	if _, err := resolve("wasm:missing/f", sig); err == nil {
		t.Error("unknown wasm module accepted")
	}
}
