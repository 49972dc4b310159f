package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/wippyai/ilpatch/il"
	"github.com/wippyai/ilpatch/patch"
)

// builtins are the natives every assembly file can bind by name.
type builtins struct {
	out      io.Writer
	counters map[string]int32
	mu       sync.Mutex
}

func newBuiltins(out io.Writer) *builtins {
	return &builtins{out: out, counters: make(map[string]int32)}
}

func (b *builtins) funcs() map[string]il.NativeFunc {
	return map[string]il.NativeFunc{
		"print":       b.print,
		"counter.inc": b.inc,
		"counter.get": b.get,
	}
}

func (b *builtins) print(_ il.Invoker, args []any) (any, error) {
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(b.out, " ")
		}
		fmt.Fprint(b.out, formatValue(a))
	}
	fmt.Fprintln(b.out)
	return nil, nil
}

func (b *builtins) inc(_ il.Invoker, args []any) (any, error) {
	name, err := counterName(args)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[name]++
	return b.counters[name], nil
}

func (b *builtins) get(_ il.Invoker, args []any) (any, error) {
	name, err := counterName(args)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters[name], nil
}

// snapshot returns the counters sorted by name.
func (b *builtins) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.counters))
	for name, n := range b.counters {
		out = append(out, name+"="+strconv.Itoa(int(n)))
	}
	sort.Strings(out)
	return out
}

func counterName(args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("counter expects one argument, got %d", len(args))
	}
	name, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("counter name must be a string, got %T", args[0])
	}
	return name, nil
}

// transpilers are the named transpilers assembly files can attach.
func transpilers() map[string]patch.TranspileFunc {
	return map[string]patch.TranspileFunc{
		"identity": func(_ *patch.TranspileContext, instrs []*il.Instruction) ([]*il.Instruction, error) {
			return instrs, nil
		},
		"add-to-sub": func(_ *patch.TranspileContext, instrs []*il.Instruction) ([]*il.Instruction, error) {
			return patch.Replace(instrs,
				func(ins *il.Instruction) bool { return ins.Op == il.Add },
				func(ins *il.Instruction) []*il.Instruction {
					ins.Op = il.Sub
					return []*il.Instruction{ins}
				}), nil
		},
		"strip-nops": func(_ *patch.TranspileContext, instrs []*il.Instruction) ([]*il.Instruction, error) {
			out := make([]*il.Instruction, 0, len(instrs))
			for _, ins := range instrs {
				if ins.Op == il.Nop && len(ins.Labels) == 0 && len(ins.Blocks) == 0 {
					continue
				}
				out = append(out, ins)
			}
			return out, nil
		},
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}
