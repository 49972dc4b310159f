// Package ilpatch instruments routines of a stack machine at run time:
// patch methods are woven into a routine's instruction sequence so they run
// before it, after it, around it, or instead of it.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct responsibilities:
//
//	ilpatch/          Manager: pristine bodies, per-routine collections, install
//	├── il/           Types, methods, instructions, bodies, labels, verification
//	│   └── asm/      Text format for types, routines and patch declarations
//	├── interp/       Reference machine executing finalized code
//	├── patch/        Rewrite engine: prefixes, postfixes, transpilers, finalizers
//	├── wasmhost/     WebAssembly exports as native routine bodies (wazero)
//	├── errors/       Structured error types for debugging
//	└── cmd/ilpatch/  CLI and interactive browser
//
// # Quick Start
//
// Assemble a file, patch it and call the result:
//
//	prog, err := asm.Parse(src, asm.Options{Natives: natives})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mgr := ilpatch.NewManager(interp.New(interp.Config{}), patch.New(patch.Config{}))
//	if err := mgr.Load(prog); err != nil {
//	    log.Fatal(err)
//	}
//	if err := mgr.ApplyAll(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := mgr.Machine().Call(ctx, prog.Method("Calc::Add"), 2, 3)
//
// Patches can also be registered directly:
//
//	mgr.Collection(add).Add(patch.NewPrefix(guard))
//	mgr.Apply(ctx, add)
//
// # Failure isolation
//
// A rewrite that fails is logged and dropped. The routine keeps running the
// code that was installed before, so one broken patch never takes down the
// routine it targets.
//
// # Logging
//
// The patch and interp packages log through zap. Both default to a no-op
// logger; install one with patch.SetLogger and interp.SetLogger.
package ilpatch
