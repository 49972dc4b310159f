package wasmhost

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
	"github.com/wippyai/ilpatch/interp"
)

// section encodes one module section. Contents stay under 128 bytes so
// every length is a single LEB128 byte.
func section(id byte, content ...byte) []byte {
	return append([]byte{id, byte(len(content))}, content...)
}

func name(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

// mathModule exports add(i32,i32)->i32, mul64(i64,i64)->i64,
// half(f64)->f64, boom() which traps, and nonzero(i32)->i32.
func mathModule() []byte {
	const (
		i32 = 0x7f
		i64 = 0x7e
		f64 = 0x7c
	)
	mod := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	mod = append(mod, section(1,
		0x05,
		0x60, 0x02, i32, i32, 0x01, i32,
		0x60, 0x02, i64, i64, 0x01, i64,
		0x60, 0x01, f64, 0x01, f64,
		0x60, 0x00, 0x00,
		0x60, 0x01, i32, 0x01, i32,
	)...)

	mod = append(mod, section(3, 0x05, 0x00, 0x01, 0x02, 0x03, 0x04)...)

	var exports []byte
	exports = append(exports, 0x05)
	for i, n := range []string{"add", "mul64", "half", "boom", "nonzero"} {
		exports = append(exports, name(n)...)
		exports = append(exports, 0x00, byte(i))
	}
	mod = append(mod, section(7, exports...)...)

	half := []byte{0x00, 0x20, 0x00, 0x44}
	bits := math.Float64bits(0.5)
	for i := 0; i < 8; i++ {
		half = append(half, byte(bits>>(8*i)))
	}
	half = append(half, 0xa2, 0x0b)

	bodies := [][]byte{
		{0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b},
		{0x00, 0x20, 0x00, 0x20, 0x01, 0x7e, 0x0b},
		half,
		{0x00, 0x00, 0x0b},
		{0x00, 0x20, 0x00, 0x45, 0x45, 0x0b},
	}
	code := []byte{byte(len(bodies))}
	for _, b := range bodies {
		code = append(code, byte(len(b)))
		code = append(code, b...)
	}
	return append(mod, section(10, code...)...)
}

func newHost(t *testing.T) *Host {
	t.Helper()
	ctx := context.Background()
	h := New(ctx, Config{})
	t.Cleanup(func() { _ = h.Close(ctx) })
	if err := h.Load(ctx, "math", mathModule()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return h
}

func TestHost_Natives(t *testing.T) {
	h := newHost(t)
	owner := il.NewClass("Wasm", "test", nil)
	machine := interp.New(interp.Config{})

	tests := []struct {
		export string
		sig    *il.Method
		args   []any
		want   any
	}{
		{"add", il.NewMethod(owner, "Add", il.Int32, il.P("a", il.Int32), il.P("b", il.Int32)), []any{2, 40}, int32(42)},
		{"add", il.NewMethod(owner, "AddNeg", il.Int32, il.P("a", il.Int32), il.P("b", il.Int32)), []any{-5, 3}, int32(-2)},
		{"mul64", il.NewMethod(owner, "Mul", il.Int64, il.P("a", il.Int64), il.P("b", il.Int64)), []any{int64(1) << 33, 3}, int64(3) << 33},
		{"half", il.NewMethod(owner, "Half", il.Float64, il.P("v", il.Float64)), []any{5.0}, 2.5},
		{"nonzero", il.NewMethod(owner, "NonZero", il.Bool, il.P("v", il.Int32)), []any{7}, true},
		{"nonzero", il.NewMethod(owner, "Zero", il.Bool, il.P("v", il.Int32)), []any{0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.sig.Name, func(t *testing.T) {
			fn, err := h.Native("math", tt.export, tt.sig)
			if err != nil {
				t.Fatalf("Native failed: %v", err)
			}
			tt.sig.Native = fn
			got, err := machine.Call(context.Background(), tt.sig, tt.args...)
			if err != nil {
				t.Fatalf("call failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestHost_TrapBecomesException(t *testing.T) {
	h := newHost(t)
	sig := il.NewMethod(il.NewClass("Wasm", "test", nil), "Boom", il.Void)
	fn, err := h.Native("math", "boom", sig)
	if err != nil {
		t.Fatalf("Native failed: %v", err)
	}
	sig.Native = fn

	_, err = interp.New(interp.Config{}).Call(context.Background(), sig)
	var thrown *il.Thrown
	if !stderrors.As(err, &thrown) {
		t.Fatalf("expected thrown exception, got %v", err)
	}
	if thrown.Exception.Type != il.InvalidOperationException {
		t.Errorf("exception type = %s", thrown.Exception.Type)
	}
}

func TestHost_SignatureChecks(t *testing.T) {
	h := newHost(t)
	owner := il.NewClass("Wasm", "test", nil)
	tests := []struct {
		name   string
		module string
		export string
		sig    *il.Method
		want   errors.Kind
	}{
		{"unknown module", "nope", "add", il.NewMethod(owner, "A", il.Int32), errors.KindNotFound},
		{"unknown export", "math", "sub", il.NewMethod(owner, "B", il.Int32), errors.KindNotFound},
		{"instance method", "math", "boom", il.NewInstanceMethod(owner, "C", il.Void), errors.KindInvalidInput},
		{"param count", "math", "add", il.NewMethod(owner, "D", il.Int32, il.P("a", il.Int32)), errors.KindTypeMismatch},
		{"param type", "math", "add", il.NewMethod(owner, "E", il.Int32, il.P("a", il.Int64), il.P("b", il.Int32)), errors.KindTypeMismatch},
		{"result type", "math", "add", il.NewMethod(owner, "F", il.Float64, il.P("a", il.Int32), il.P("b", il.Int32)), errors.KindTypeMismatch},
		{"void over result", "math", "add", il.NewMethod(owner, "G", il.Void, il.P("a", il.Int32), il.P("b", il.Int32)), errors.KindTypeMismatch},
		{"unsupported type", "math", "half", il.NewMethod(owner, "H", il.Float64, il.P("s", il.String)), errors.KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Native(tt.module, tt.export, tt.sig)
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("expected structured error, got %v", err)
			}
			if e.Kind != tt.want {
				t.Errorf("kind = %s, want %s (%v)", e.Kind, tt.want, err)
			}
		})
	}
}

func TestHost_Load(t *testing.T) {
	ctx := context.Background()
	h := New(ctx, Config{})
	defer h.Close(ctx)

	if err := h.Load(ctx, "bad", []byte("not wasm")); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidData}) {
		t.Errorf("loading garbage = %v", err)
	}
	if err := h.Load(ctx, "math", mathModule()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := h.Load(ctx, "math", mathModule()); err == nil {
		t.Error("duplicate module name accepted")
	}
	if got := h.Modules(); len(got) != 1 || got[0] != "math" {
		t.Errorf("Modules = %v", got)
	}
	exports, err := h.Exports("math")
	if err != nil {
		t.Fatalf("Exports failed: %v", err)
	}
	if len(exports) != 5 || exports[0] != "add(i32, i32) -> (i32)" {
		t.Errorf("Exports = %v", exports)
	}
}
