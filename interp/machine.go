package interp

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

// DefaultMaxDepth bounds nested calls when Config.MaxDepth is zero.
const DefaultMaxDepth = 256

// Config configures a Machine.
type Config struct {
	// MaxDepth bounds the call depth. Exceeding it raises
	// InvalidOperationException in the calling frame.
	MaxDepth int
}

// Machine runs installed code.
type Machine struct {
	code     map[*il.Method]*il.Code
	statics  map[*il.Field]*il.Cell
	maxDepth int
	mu       sync.RWMutex
	smu      sync.Mutex
}

// New creates a machine with no installed code.
func New(cfg Config) *Machine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	return &Machine{
		code:     make(map[*il.Method]*il.Code),
		statics:  make(map[*il.Field]*il.Cell),
		maxDepth: cfg.MaxDepth,
	}
}

// Install makes code the implementation of method.
func (m *Machine) Install(method *il.Method, code *il.Code) error {
	if method == nil || code == nil {
		return errors.InvalidInput(errors.PhaseInstall, "nil method or code")
	}
	if method.Native != nil {
		return errors.New(errors.PhaseInstall, errors.KindUnsupported).
			Routine(method.String()).
			Detail("method is implemented natively").
			Build()
	}
	m.mu.Lock()
	m.code[method] = code
	m.mu.Unlock()
	Logger().Debug("installed code",
		zap.String("routine", method.String()),
		zap.Int("instructions", len(code.Instrs)),
		zap.Int("regions", len(code.Regions)))
	return nil
}

// InstallBody finalizes body and installs the result.
func (m *Machine) InstallBody(method *il.Method, body *il.Body) (*il.Code, error) {
	code, err := body.Finalize()
	if err != nil {
		return nil, errors.New(errors.PhaseInstall, errors.KindInvalidData).
			Routine(method.String()).
			Detail("body failed verification").
			Cause(err).
			Build()
	}
	if err := m.Install(method, code); err != nil {
		return nil, err
	}
	return code, nil
}

// Code returns the code installed for method, or nil.
func (m *Machine) Code(method *il.Method) *il.Code {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code[method]
}

// Static returns the storage of a static field.
func (m *Machine) Static(f *il.Field) il.Ref {
	m.smu.Lock()
	defer m.smu.Unlock()
	c, ok := m.statics[f]
	if !ok {
		c = &il.Cell{V: il.Zero(f.Type)}
		m.statics[f] = c
	}
	return c
}

// Call invokes method with args. Go ints are accepted for integer and
// float parameters.
func (m *Machine) Call(ctx context.Context, method *il.Method, args ...any) (any, error) {
	if len(args) != method.ArgCount() {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Routine(method.String()).
			Detail("expected %d arguments, got %d", method.ArgCount(), len(args)).
			Build()
	}
	conv := make([]any, len(args))
	for i, a := range args {
		v, err := coerce(method.ArgType(i), a)
		if err != nil {
			return nil, err
		}
		conv[i] = v
	}
	t := &thread{machine: m, ctx: ctx}
	res, err := t.call(method, conv)
	var thrown *il.Thrown
	if stderrors.As(err, &thrown) {
		Logger().Debug("uncaught exception",
			zap.String("routine", method.String()),
			zap.String("exception", thrown.Exception.String()))
	}
	return res, err
}

// CallDelegate invokes a delegate with args.
func (m *Machine) CallDelegate(ctx context.Context, d *il.Delegate, args ...any) (any, error) {
	t := &thread{machine: m, ctx: ctx}
	return t.invokeDelegate(d, args)
}

func coerce(t *il.Type, v any) (any, error) {
	if t == nil {
		return v, nil
	}
	if n, ok := v.(int); ok {
		switch t.Kind {
		case il.KindInt32:
			return int32(n), nil
		case il.KindInt64:
			return int64(n), nil
		case il.KindFloat64:
			return float64(n), nil
		}
		return nil, errors.TypeMismatch(errors.PhaseRuntime, nil, t.Name, "int")
	}
	return v, nil
}

// thread is one logical call chain. It implements il.Invoker for natives.
type thread struct {
	machine *Machine
	ctx     context.Context
	depth   int
}

func (t *thread) Context() context.Context { return t.ctx }

func (t *thread) Call(m *il.Method, args ...any) (any, error) {
	return t.call(m, args)
}

func (t *thread) CallDelegate(d *il.Delegate, args ...any) (any, error) {
	return t.invokeDelegate(d, args)
}

func (t *thread) call(m *il.Method, args []any) (any, error) {
	if err := t.ctx.Err(); err != nil {
		return nil, err
	}
	if t.depth >= t.machine.maxDepth {
		Logger().Warn("call depth limit reached", zap.String("routine", m.String()), zap.Int("depth", t.depth))
		return nil, il.Throwf(il.InvalidOperationException, "call depth limit %d exceeded", t.machine.maxDepth)
	}
	if !m.Static && len(args) > 0 && args[0] == nil {
		return nil, il.Throwf(il.NullReferenceException, "instance call %s on null", m.FullName())
	}
	t.depth++
	defer func() { t.depth-- }()

	if m.Native != nil {
		res, err := m.Native(t, args)
		return res, nativeError(t.ctx, err)
	}
	if m.DeclaringType != nil && m.DeclaringType.Kind == il.KindDelegate && m == m.DeclaringType.Invoke {
		d, ok := args[0].(*il.Delegate)
		if !ok {
			return nil, il.Throwf(il.InvalidCastException, "receiver of %s is not a delegate", m.FullName())
		}
		return t.invokeDelegate(d, args[1:])
	}
	code := t.machine.Code(m)
	if code == nil {
		if m.IsConstructor() {
			return nil, nil
		}
		return nil, errors.NotFound(errors.PhaseRuntime, "code for routine", m.String())
	}
	return t.run(code, args)
}

func (t *thread) invokeDelegate(d *il.Delegate, args []any) (any, error) {
	if d == nil {
		return nil, il.Throwf(il.NullReferenceException, "invoke of null delegate")
	}
	if d.Method.Static {
		return t.call(d.Method, args)
	}
	full := make([]any, 0, len(args)+1)
	full = append(full, d.Target)
	full = append(full, args...)
	return t.call(d.Method, full)
}

// nativeError turns a native routine's failure into an exception unless it
// already is one or is a cancellation.
func nativeError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var thrown *il.Thrown
	if stderrors.As(err, &thrown) {
		return thrown
	}
	if ctx.Err() != nil && stderrors.Is(err, ctx.Err()) {
		return err
	}
	return il.Throwf(il.InvalidOperationException, "%s", err.Error())
}
