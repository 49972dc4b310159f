package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/ilpatch"
	"github.com/wippyai/ilpatch/il"
	"github.com/wippyai/ilpatch/il/asm"
	"github.com/wippyai/ilpatch/interp"
	"github.com/wippyai/ilpatch/patch"
	"github.com/wippyai/ilpatch/wasmhost"
)

// wasmFlags collects repeated -wasm name=path flags.
type wasmFlags map[string]string

func (w wasmFlags) String() string {
	var parts []string
	for name, path := range w {
		parts = append(parts, name+"="+path)
	}
	return strings.Join(parts, ",")
}

func (w wasmFlags) Set(v string) error {
	name, path, ok := strings.Cut(v, "=")
	if !ok || name == "" || path == "" {
		return fmt.Errorf("expected name=path, got %q", v)
	}
	w[name] = path
	return nil
}

type options struct {
	file        string
	call        string
	args        string
	wasm        wasmFlags
	dump        bool
	list        bool
	verbose     bool
	interactive bool
}

func main() {
	opts := options{wasm: wasmFlags{}}
	flag.StringVar(&opts.file, "file", "", "Path to assembly file (.ila)")
	flag.StringVar(&opts.call, "call", "", "Routine to call (Type::Name)")
	flag.StringVar(&opts.args, "args", "", "Call arguments (comma-separated)")
	flag.Var(opts.wasm, "wasm", "Load a wasm module as name=path (repeatable); natives \"wasm:name/export\"")
	flag.BoolVar(&opts.dump, "dump", false, "Print original and patched listings")
	flag.BoolVar(&opts.list, "list", false, "List routines and patches and exit")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if opts.file == "" {
		fmt.Fprintln(os.Stderr, "Usage: ilpatch -file <file.ila> [-call Type::Name] [-args 1,2] [-dump]")
		fmt.Fprintln(os.Stderr, "       ilpatch -file <file.ila> -list")
		fmt.Fprintln(os.Stderr, "       ilpatch -file <file.ila> -wasm name=path.wasm ...")
		fmt.Fprintln(os.Stderr, "       ilpatch -file <file.ila> -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// session is a loaded file: its program, the manager holding its
// routines, and the wasm host backing its natives.
type session struct {
	prog    *asm.Program
	mgr     *ilpatch.Manager
	host    *wasmhost.Host
	natives *builtins
}

func load(ctx context.Context, opts options, log *zap.Logger) (*session, error) {
	src, err := os.ReadFile(opts.file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	host := wasmhost.New(ctx, wasmhost.Config{Logger: log})
	for name, path := range opts.wasm {
		data, err := os.ReadFile(path)
		if err != nil {
			host.Close(ctx)
			return nil, fmt.Errorf("read wasm %s: %w", name, err)
		}
		if err := host.Load(ctx, name, data); err != nil {
			host.Close(ctx)
			return nil, err
		}
	}

	natives := newBuiltins(os.Stdout)
	prog, err := asm.Parse(string(src), asm.Options{
		Natives:     natives.funcs(),
		Resolve:     wasmResolver(host),
		Transpilers: transpilers(),
	})
	if err != nil {
		host.Close(ctx)
		return nil, err
	}

	engine := patch.New(patch.Config{Logger: log})
	mgr := ilpatch.NewManager(interp.New(interp.Config{}), engine)
	if err := mgr.Load(prog); err != nil {
		host.Close(ctx)
		return nil, err
	}
	if err := mgr.ApplyAll(ctx); err != nil {
		host.Close(ctx)
		return nil, err
	}
	return &session{prog: prog, mgr: mgr, host: host, natives: natives}, nil
}

// wasmResolver binds natives named "wasm:module/export".
func wasmResolver(host *wasmhost.Host) func(string, *il.Method) (il.NativeFunc, error) {
	return func(name string, sig *il.Method) (il.NativeFunc, error) {
		ref, ok := strings.CutPrefix(name, "wasm:")
		if !ok {
			return nil, nil
		}
		module, export, ok := strings.Cut(ref, "/")
		if !ok {
			return nil, fmt.Errorf("wasm native %q is not of the form wasm:module/export", name)
		}
		return host.Native(module, export, sig)
	}
}

func run(opts options) error {
	ctx := context.Background()

	log, err := newLogger(opts.verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	patch.SetLogger(log)
	interp.SetLogger(log)

	s, err := load(ctx, opts, log)
	if err != nil {
		return err
	}
	defer s.host.Close(ctx)

	if opts.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(s, opts.file)
	}

	if opts.list || opts.call == "" {
		printSummary(s)
		if opts.list {
			return nil
		}
	}

	if opts.dump {
		for _, m := range s.mgr.Routines() {
			printListings(s, m)
		}
	}

	if opts.call == "" {
		return nil
	}
	method := s.prog.Method(opts.call)
	if method == nil {
		return fmt.Errorf("routine %s not found", opts.call)
	}
	args, err := parseArgs(method, splitArgs(opts.args))
	if err != nil {
		return err
	}

	fmt.Printf("Calling %s...\n", method)
	result, err := s.mgr.Machine().Call(ctx, method, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if !method.IsVoid() {
		fmt.Printf("Result: %s\n", formatValue(result))
	}
	if counters := s.natives.snapshot(); len(counters) > 0 {
		fmt.Printf("Counters: %s\n", strings.Join(counters, " "))
	}
	return nil
}

func printSummary(s *session) {
	fmt.Printf("Module: %s\n", s.prog.Module)
	fmt.Printf("Types: %d\n", len(s.prog.Types))
	fmt.Printf("Routines: %d\n", len(s.prog.Routines))
	fmt.Printf("Patches: %d\n", len(s.prog.Attachments))
	for _, name := range s.host.Modules() {
		exports, _ := s.host.Exports(name)
		fmt.Printf("Wasm module %s: %s\n", name, strings.Join(exports, ", "))
	}

	fmt.Printf("\nRoutines:\n")
	for _, m := range s.mgr.Routines() {
		fmt.Printf("  %s\n", asm.Signature(m))
		for _, a := range s.prog.Attachments {
			if a.Target == m {
				fmt.Printf("    %-10s %s priority=%d owner=%s\n", a.Patch.Kind, a.Patch, a.Patch.Priority, a.Patch.Owner)
			}
		}
	}
}

func printListings(s *session, m *il.Method) {
	fmt.Printf("\n--- %s (original) ---\n%s", m, il.FormatBody(s.mgr.Original(m)))
	if s.mgr.Collection(m).Len() > 0 {
		fmt.Printf("--- %s (patched) ---\n%s", m, il.FormatBody(s.mgr.Current(m)))
	}
}
