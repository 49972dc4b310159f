package ilpatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
	"github.com/wippyai/ilpatch/interp"
	"github.com/wippyai/ilpatch/patch"
)

// Manager keeps the pristine body and the patch collection of every
// routine it defines, and installs rewritten code into a machine.
//
// Every Apply starts from a clone of the original body, so patches compose
// the same way no matter how often a routine is re-patched.
type Manager struct {
	machine  *interp.Machine
	engine   *patch.Engine
	routines map[*il.Method]*routine
	order    []*il.Method
	mu       sync.RWMutex
}

type routine struct {
	method   *il.Method
	original *il.Body
	current  *il.Body
	patches  *patch.Collection
	mu       sync.Mutex
}

// NewManager creates a manager installing into machine with engine.
func NewManager(machine *interp.Machine, engine *patch.Engine) *Manager {
	return &Manager{
		machine:  machine,
		engine:   engine,
		routines: make(map[*il.Method]*routine),
	}
}

// Machine returns the machine routines are installed into.
func (m *Manager) Machine() *interp.Machine { return m.machine }

// Define registers body as the original of method and installs it.
func (m *Manager) Define(method *il.Method, body *il.Body) error {
	if method == nil || body == nil {
		return errors.InvalidInput(errors.PhaseInstall, "nil routine or body")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.routines[method]; dup {
		return errors.InvalidInput(errors.PhaseInstall, fmt.Sprintf("routine %s already defined", method))
	}
	current := body.Clone()
	if _, err := m.machine.InstallBody(method, current); err != nil {
		return errors.Wrap(errors.PhaseInstall, errors.KindInvalidData, err, "install "+method.String())
	}
	m.routines[method] = &routine{
		method:   method,
		original: body.Clone(),
		current:  current,
		patches:  patch.NewCollection(),
	}
	m.order = append(m.order, method)
	return nil
}

func (m *Manager) routine(method *il.Method) (*routine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routines[method]
	if !ok {
		return nil, errors.NotFound(errors.PhaseInstall, "routine", method.String())
	}
	return r, nil
}

// Routines returns the defined routines in definition order.
func (m *Manager) Routines() []*il.Method {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*il.Method(nil), m.order...)
}

// Collection returns the patch collection of method, or nil if method was
// never defined. Changes take effect on the next Apply.
func (m *Manager) Collection(method *il.Method) *patch.Collection {
	r, err := m.routine(method)
	if err != nil {
		return nil
	}
	return r.patches
}

// Original returns a copy of the body method was defined with.
func (m *Manager) Original(method *il.Method) *il.Body {
	r, err := m.routine(method)
	if err != nil {
		return nil
	}
	return r.original.Clone()
}

// Current returns a copy of the body installed for method.
func (m *Manager) Current(method *il.Method) *il.Body {
	r, err := m.routine(method)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Clone()
}

// Unpatch removes every patch registered by owner from all routines and
// returns how many were removed. Call Apply or ApplyAll to take effect.
func (m *Manager) Unpatch(owner string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.routines {
		n += r.patches.Remove(owner)
	}
	return n
}

// Apply rewrites method from its original body with the patches currently
// registered and installs the result. It reports whether patched code is
// now installed. A failed rewrite is logged and leaves the previously
// installed code running; only install failures are returned.
func (m *Manager) Apply(ctx context.Context, method *il.Method) (bool, error) {
	r, err := m.routine(method)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}

	snap := r.patches.Snapshot()
	work := r.original.Clone()
	if snap.Empty() {
		if err := m.install(r, work); err != nil {
			return false, err
		}
		return false, nil
	}
	if !m.engine.PatchSnapshot(method, work, snap) {
		return false, nil
	}
	if err := m.install(r, work); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) install(r *routine, body *il.Body) error {
	if _, err := m.machine.InstallBody(r.method, body); err != nil {
		patch.Logger().Error("install failed, previous code kept",
			zap.String("routine", r.method.String()),
			zap.Error(err))
		return errors.Wrap(errors.PhaseInstall, errors.KindInvalidData, err, "install "+r.method.String())
	}
	r.current = body
	return nil
}

// ApplyAll applies every defined routine in parallel. Different routines
// are rewritten concurrently; each routine is still rewritten by one
// goroutine at a time.
func (m *Manager) ApplyAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, method := range m.Routines() {
		method := method
		g.Go(func() error {
			_, err := m.Apply(ctx, method)
			return err
		})
	}
	return g.Wait()
}
