package patch

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
)

// Config configures an Engine.
type Config struct {
	// Logger receives the engine's diagnostics. Nil uses Logger().
	Logger *zap.Logger
	// DumpCode raises the listing of every rewritten body from debug to
	// info level.
	DumpCode bool
	// SkipVerify commits rewritten bodies without running Finalize on them.
	SkipVerify bool
}

// Engine rewrites routine bodies so their patches run. It holds no
// per-routine state; rewrites of different routines may run in parallel.
// Callers must serialize rewrites of the same body.
type Engine struct {
	log    *zap.Logger
	dump   bool
	verify bool
}

// New creates an engine with the given config.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	return &Engine{
		log:    log,
		dump:   cfg.DumpCode,
		verify: !cfg.SkipVerify,
	}
}

// Patch snapshots coll and rewrites body with it. Failures are logged and
// swallowed: body is then left exactly as received and still runs the
// original routine. It reports whether body was rewritten.
func (e *Engine) Patch(target *il.Method, body *il.Body, coll *Collection) bool {
	return e.PatchSnapshot(target, body, coll.Snapshot())
}

// PatchSnapshot is Patch for a snapshot the caller already holds.
func (e *Engine) PatchSnapshot(target *il.Method, body *il.Body, snap *Snapshot) bool {
	if snap.Empty() {
		e.log.Debug("no patches", zap.String("routine", target.String()))
		return false
	}
	e.log.Info("patching routine",
		zap.String("routine", target.String()),
		zap.Int("prefixes", len(snap.Prefixes)),
		zap.Int("postfixes", len(snap.Postfixes)),
		zap.Int("transpilers", len(snap.Transpilers)),
		zap.Int("finalizers", len(snap.Finalizers)))

	if err := e.Rewrite(target, body, snap); err != nil {
		e.log.Error("rewrite failed, routine left unpatched",
			zap.String("routine", target.String()),
			zap.Error(err))
		return false
	}
	return true
}

// Rewrite applies snap to body. On success body holds the rewritten
// sequence; on failure it is untouched and the error says why.
func (e *Engine) Rewrite(target *il.Method, body *il.Body, snap *Snapshot) (err error) {
	if target == nil || body == nil {
		return errors.InvalidInput(errors.PhaseInject, "nil routine or body")
	}
	if snap == nil {
		snap = &Snapshot{}
	}
	defer func() {
		if v := recover(); v != nil {
			err = errors.RewriteFailed(target.String(), errors.New(errors.PhaseInject, errors.KindInternal).
				Routine(target.String()).
				Value(v).
				Detail("panic: %v", v).
				Build())
		}
	}()

	work := body.Clone()
	r := &rewrite{
		target: target,
		body:   work,
		snap:   snap,
		env:    newEnv(work),
		log:    e.log,
	}
	if err := r.run(); err != nil {
		return errors.RewriteFailed(target.String(), err)
	}
	if e.verify {
		if _, err := work.Finalize(); err != nil {
			return errors.RewriteFailed(target.String(), err)
		}
	}
	body.Replace(work)

	level := zapcore.DebugLevel
	if e.dump {
		level = zapcore.InfoLevel
	}
	if ce := e.log.Check(level, "patched code"); ce != nil {
		ce.Write(
			zap.String("routine", target.String()),
			zap.String("code", il.FormatBody(body)))
	}
	return nil
}

// rewrite is the state of one rewrite. It lives for a single Rewrite call.
type rewrite struct {
	target   *il.Method
	body     *il.Body
	snap     *Snapshot
	env      *Env
	log      *zap.Logger
	bindings map[*Patch][]*Binding

	runFlag   *il.Local
	result    *il.Local
	exception *il.Local
	finalized *il.Local

	merge *il.Label
	skip  *il.Label
	exit  *il.Label

	returns int
	capable bool
}

func (r *rewrite) run() error {
	if err := r.transpile(); err != nil {
		return err
	}
	r.declareSlots()
	r.capable = controlFlowCapable(r.snap.Prefixes)
	if err := r.validate(); err != nil {
		return err
	}

	r.merge = r.body.DefineLabel()
	r.exit = r.body.DefineLabel()
	if r.capable {
		r.skip = r.body.DefineLabel()
	}
	r.returns = r.restructure()
	original := r.body.Instrs
	guarded := len(r.snap.Finalizers) > 0

	e := r.body.Emitter()
	e.LdcBool(true).StLoc(r.runFlag)
	if guarded {
		r.initFinalizerSlots(e)
		e.BeginTry()
	}
	r.emitPrefixes(e)
	e.Append(original...)

	if !r.exitReachable() {
		// The body never returns, so nothing after it can run.
		e.MarkLabel(r.merge).Nop()
		if len(r.snap.Postfixes) > 0 {
			r.log.Debug("routine never returns, postfixes not emitted",
				zap.String("routine", r.target.String()))
		}
		r.body.Instrs = e.Instrs()
		return nil
	}

	r.emitMerge(e)
	r.emitPostfixes(e)
	if guarded {
		r.emitFinalizers(e)
		e.MarkLabel(r.exit)
	}
	r.emitExit(e)
	r.body.Instrs = e.Instrs()
	return nil
}

// declareSlots declares the shared slots every injection step may read.
// The run flag always exists.
func (r *rewrite) declareSlots() {
	r.runFlag = r.env.Declare(RunOriginalName, il.Bool)
	if !r.target.IsVoid() {
		r.result = r.env.Declare(ResultName, r.target.Return)
	}
	if len(r.snap.Finalizers) > 0 || r.namesParam(ExceptionName) {
		r.exception = r.env.Declare(ExceptionName, il.Exception)
	}
	if len(r.snap.Finalizers) > 0 {
		r.finalized = r.body.DeclareLocal(il.Bool, "__finalized")
	}
}

func (r *rewrite) namesParam(name string) bool {
	for _, p := range r.snap.all() {
		if p.Method == nil {
			continue
		}
		for _, param := range p.Method.Params {
			if param.Name == name {
				return true
			}
		}
	}
	return false
}

// validate checks every patch signature and resolves every binding before
// any code is emitted. All defects are reported together.
func (r *rewrite) validate() error {
	r.bindings = make(map[*Patch][]*Binding)
	var errs error
	groups := []struct {
		patches []*Patch
		kind    Kind
	}{
		{r.snap.Prefixes, Prefix},
		{r.snap.Postfixes, Postfix},
		{r.snap.Finalizers, Finalizer},
	}
	for _, g := range groups {
		for _, p := range g.patches {
			if err := r.checkPatch(g.kind, p); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			res := &resolver{target: r.target, patch: p, env: r.env}
			params := p.Method.Params
			if g.kind == Postfix && passthrough(p) {
				params = params[1:]
			}
			bindings := make([]*Binding, 0, len(params))
			for _, param := range params {
				b, err := res.resolve(param)
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				bindings = append(bindings, b)
			}
			r.bindings[p] = bindings
		}
	}
	return errs
}

func (r *rewrite) checkPatch(kind Kind, p *Patch) error {
	if p.Method == nil {
		return errors.InvalidPatchArgument(r.target.String(), p.String(), "%s has no method", kind)
	}
	if !p.Method.Static {
		return errors.InvalidPatchArgument(r.target.String(), p.String(), "%s method must be static", kind)
	}
	switch kind {
	case Prefix:
		return r.checkPrefix(p)
	case Postfix:
		return r.checkPostfix(p)
	case Finalizer:
		return r.checkFinalizer(p)
	}
	return nil
}
