package wasmhost

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

// Config holds configuration for host creation
type Config struct {
	Logger *zap.Logger

	// MemoryLimitPages caps each module's memory in 64KB pages.
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// Host owns a wazero runtime and the modules loaded into it.
type Host struct {
	runtime wazero.Runtime
	log     *zap.Logger
	modules map[string]api.Module
	mu      sync.RWMutex
}

// New creates a host with its own runtime.
func New(ctx context.Context, cfg Config) *Host {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		log:     log,
		modules: make(map[string]api.Module),
	}
}

// Load compiles and instantiates a core module under name.
func (h *Host) Load(ctx context.Context, name string, wasm []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.modules[name]; dup {
		return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("module %q already loaded", name))
	}

	compiled, err := h.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return errors.Load(fmt.Sprintf("compile module %q", name), err)
	}
	mod, err := h.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return errors.Load(fmt.Sprintf("instantiate module %q", name), err)
	}
	h.modules[name] = mod
	h.log.Info("wasm module loaded",
		zap.String("module", name),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return nil
}

// Modules returns the loaded module names, sorted.
func (h *Host) Modules() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.modules))
	for name := range h.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exports lists the exported functions of a loaded module with their
// signatures, sorted by name.
func (h *Host) Exports(module string) ([]string, error) {
	mod, err := h.module(module)
	if err != nil {
		return nil, err
	}
	defs := mod.ExportedFunctionDefinitions()
	out := make([]string, 0, len(defs))
	for name, def := range defs {
		out = append(out, fmt.Sprintf("%s%s -> %s", name, valueTypes(def.ParamTypes()), valueTypes(def.ResultTypes())))
	}
	sort.Strings(out)
	return out, nil
}

func (h *Host) module(name string) (api.Module, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	mod, ok := h.modules[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "wasm module", name)
	}
	return mod, nil
}

// Native returns an implementation of sig backed by a wasm export. sig
// must be static and use only int32, int64, float64 and bool; the export
// must have the matching core signature.
func (h *Host) Native(module, export string, sig *il.Method) (il.NativeFunc, error) {
	mod, err := h.module(module)
	if err != nil {
		return nil, err
	}
	fn := mod.ExportedFunction(export)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "export", module+"/"+export)
	}
	if err := checkSignature(module, export, sig, fn.Definition()); err != nil {
		return nil, err
	}

	params := make([]*il.Type, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = p.Type
	}
	ret := sig.Return
	name := module + "/" + export

	// api.Function keeps per-call state; calls are serialized.
	var mu sync.Mutex
	return func(inv il.Invoker, args []any) (any, error) {
		stack := make([]uint64, len(params))
		for i, t := range params {
			v, err := encode(t, args[i])
			if err != nil {
				return nil, err
			}
			stack[i] = v
		}

		ctx := context.Background()
		if inv != nil {
			ctx = inv.Context()
		}
		mu.Lock()
		results, err := fn.Call(ctx, stack...)
		mu.Unlock()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInternal, err, "wasm call "+name)
		}
		if ret.IsVoid() {
			return nil, nil
		}
		return decode(ret, results[0]), nil
	}, nil
}

// Close releases the runtime and every loaded module.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modules = map[string]api.Module{}
	return h.runtime.Close(ctx)
}

func valueType(t *il.Type) (api.ValueType, bool) {
	switch t {
	case il.Int32, il.Bool:
		return api.ValueTypeI32, true
	case il.Int64:
		return api.ValueTypeI64, true
	case il.Float64:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func valueTypes(vts []api.ValueType) string {
	s := "("
	for i, vt := range vts {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(vt)
	}
	return s + ")"
}

func checkSignature(module, export string, sig *il.Method, def api.FunctionDefinition) error {
	path := []string{module, export}
	if !sig.Static {
		return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("%s bound to %s/%s must be static", sig, module, export))
	}
	params := def.ParamTypes()
	if len(params) != len(sig.Params) {
		return errors.TypeMismatch(errors.PhaseLoad, path,
			fmt.Sprintf("%d parameters", len(sig.Params)), fmt.Sprintf("%d", len(params)))
	}
	for i, p := range sig.Params {
		vt, ok := valueType(p.Type)
		if !ok {
			return errors.Unsupported(errors.PhaseLoad, fmt.Sprintf("parameter type %s in %s", p.Type, sig))
		}
		if vt != params[i] {
			return errors.TypeMismatch(errors.PhaseLoad, append(path, p.Name), api.ValueTypeName(vt), api.ValueTypeName(params[i]))
		}
	}

	results := def.ResultTypes()
	if sig.IsVoid() {
		if len(results) != 0 {
			return errors.TypeMismatch(errors.PhaseLoad, path, "no results", valueTypes(results))
		}
		return nil
	}
	vt, ok := valueType(sig.Return)
	if !ok {
		return errors.Unsupported(errors.PhaseLoad, fmt.Sprintf("return type %s in %s", sig.Return, sig))
	}
	if len(results) != 1 || results[0] != vt {
		return errors.TypeMismatch(errors.PhaseLoad, path, api.ValueTypeName(vt), valueTypes(results))
	}
	return nil
}

func encode(t *il.Type, v any) (uint64, error) {
	switch t {
	case il.Int32:
		if x, ok := v.(int32); ok {
			return api.EncodeI32(x), nil
		}
	case il.Int64:
		if x, ok := v.(int64); ok {
			return api.EncodeI64(x), nil
		}
	case il.Float64:
		if x, ok := v.(float64); ok {
			return api.EncodeF64(x), nil
		}
	case il.Bool:
		if x, ok := v.(bool); ok {
			if x {
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, errors.TypeMismatch(errors.PhaseRuntime, nil, t.Name, fmt.Sprintf("%T", v))
}

func decode(t *il.Type, v uint64) any {
	switch t {
	case il.Int32:
		return api.DecodeI32(v)
	case il.Int64:
		return int64(v)
	case il.Float64:
		return api.DecodeF64(v)
	case il.Bool:
		return uint32(v) != 0
	}
	return nil
}
