package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDeclare   Phase = "declare"   // patch signature validation
	PhaseTranspile Phase = "transpile" // wrap-around rewriting
	PhaseInject    Phase = "inject"    // prefix/postfix/finalizer emission
	PhaseBind      Phase = "bind"      // parameter binding
	PhaseFinalize  Phase = "finalize"  // label patch-up and verification
	PhaseRuntime   Phase = "runtime"   // execution engine
	PhaseInstall   Phase = "install"   // installing rewritten code
	PhaseLoad      Phase = "load"      // module loading
	PhaseParse     Phase = "parse"     // assembly parsing
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidPatchArgument Kind = "invalid_patch_argument"
	KindUnresolvedLabel      Kind = "unresolved_label"
	KindDuplicateLabel       Kind = "duplicate_label"
	KindMalformedRegion      Kind = "malformed_region"
	KindStackImbalance       Kind = "stack_imbalance"
	KindTypeMismatch         Kind = "type_mismatch"
	KindOutOfBounds          Kind = "out_of_bounds"
	KindInvalidData          Kind = "invalid_data"
	KindUnsupported          Kind = "unsupported"
	KindNotFound             Kind = "not_found"
	KindInvalidInput         Kind = "invalid_input"
	KindRewriteFailed        Kind = "rewrite_failed"
	KindInternal             Kind = "internal"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Routine string
	Patch   string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Routine != "" || e.Patch != "" {
		b.WriteString(": ")
		if e.Routine != "" && e.Patch != "" {
			b.WriteString("routine ")
			b.WriteString(e.Routine)
			b.WriteString(", patch ")
			b.WriteString(e.Patch)
		} else if e.Routine != "" {
			b.WriteString("routine ")
			b.WriteString(e.Routine)
		} else {
			b.WriteString("patch ")
			b.WriteString(e.Patch)
		}
	}

	if e.Detail != "" {
		if e.Routine != "" || e.Patch != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Routine sets the original routine identity
func (b *Builder) Routine(name string) *Builder {
	b.err.Routine = name
	return b
}

// Patch sets the offending patch identity
func (b *Builder) Patch(name string) *Builder {
	b.err.Patch = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidPatchArgument creates the declaration defect raised for a patch whose
// signature cannot be wired into the routine.
func InvalidPatchArgument(routine, patch, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:   PhaseDeclare,
		Kind:    KindInvalidPatchArgument,
		Routine: routine,
		Patch:   patch,
		Detail:  detail,
	}
}

// ParameterNotFound creates the binding defect for an unresolvable parameter.
func ParameterNotFound(routine, patch, param string) *Error {
	return &Error{
		Phase:   PhaseBind,
		Kind:    KindInvalidPatchArgument,
		Routine: routine,
		Patch:   patch,
		Path:    []string{param},
		Detail:  fmt.Sprintf("parameter %q not found", param),
	}
}

// Structural creates an internal invariant violation raised while finalizing
// an instruction sequence.
func Structural(kind Kind, routine, detail string) *Error {
	return &Error{
		Phase:   PhaseFinalize,
		Kind:    kind,
		Routine: routine,
		Detail:  detail,
	}
}

// RewriteFailed wraps any failure of a whole rewrite.
func RewriteFailed(routine string, cause error) *Error {
	return &Error{
		Phase:   PhaseInject,
		Kind:    KindRewriteFailed,
		Routine: routine,
		Detail:  "rewrite aborted, routine left unpatched",
		Cause:   cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error at the given source line
func ParseFailed(line int, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("line %d: %s", line, detail),
		Value:  line,
	}
}

// IsInvalidPatchArgument reports whether err carries a declaration defect.
func IsInvalidPatchArgument(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == KindInvalidPatchArgument {
			return true
		}
		if m, ok := err.(interface{ Errors() []error }); ok {
			for _, inner := range m.Errors() {
				if IsInvalidPatchArgument(inner) {
					return true
				}
			}
			return false
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
