// Package wasmhost runs WebAssembly exports as native routine bodies.
//
// A Host owns a wazero runtime. Modules are loaded by name and their
// exports bound to method descriptors:
//
//	h := wasmhost.New(ctx, wasmhost.Config{})
//	defer h.Close(ctx)
//	if err := h.Load(ctx, "math", wasmBytes); err != nil { ... }
//	m.Native, err = h.Native("math", "add", m)
//
// Only core value types cross the boundary: int32 and bool map to i32,
// int64 to i64, float64 to f64. A trap surfaces in the machine as an
// InvalidOperationException.
package wasmhost
