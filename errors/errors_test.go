package errors

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseBind,
				Kind:    KindInvalidPatchArgument,
				Path:    []string{"__result"},
				Routine: "Calc::Add(int32, int32)",
				Patch:   "P::Post(string)",
				Detail:  "not assignable",
			},
			contains: []string{"[bind]", "invalid_patch_argument", "__result", "routine Calc::Add", "patch P::Post", "not assignable"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseFinalize,
				Kind:  KindUnresolvedLabel,
			},
			contains: []string{"[finalize]", "unresolved_label"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindInternal,
				Detail: "stack underflow",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[runtime]", "internal", "stack underflow", "caused by", "underlying error"},
		},
		{
			name: "patch only",
			err: &Error{
				Phase:  PhaseDeclare,
				Kind:   KindInvalidPatchArgument,
				Patch:  "P::Pre()",
				Detail: "bad return",
			},
			contains: []string{"patch P::Pre()", " - bad return"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseInject,
		Kind:  KindRewriteFailed,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseFinalize,
		Kind:  KindStackImbalance,
		Path:  []string{"IL_0003"},
	}

	if !err.Is(&Error{Phase: PhaseFinalize, Kind: KindStackImbalance}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseBind, Kind: KindStackImbalance}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseFinalize, Kind: KindUnresolvedLabel}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseFinalize, Kind: KindStackImbalance}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseBind, KindInvalidPatchArgument).
		Path("__0").
		Routine("T::M()").
		Patch("P::Q(int32)").
		Value(42).
		Cause(cause).
		Detail("index %d out of range", 0).
		Build()

	if err.Phase != PhaseBind {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseBind)
	}
	if err.Kind != KindInvalidPatchArgument {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidPatchArgument)
	}
	if len(err.Path) != 1 || err.Path[0] != "__0" {
		t.Errorf("Path = %v, want [__0]", err.Path)
	}
	if err.Routine != "T::M()" || err.Patch != "P::Q(int32)" {
		t.Errorf("Routine=%q Patch=%q", err.Routine, err.Patch)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "index 0 out of range" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("InvalidPatchArgument", func(t *testing.T) {
		err := InvalidPatchArgument("T::M()", "P::Q()", "return type %s", "int32")
		if err.Kind != KindInvalidPatchArgument || err.Phase != PhaseDeclare {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
		if err.Detail != "return type int32" {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("ParameterNotFound", func(t *testing.T) {
		err := ParameterNotFound("T::M()", "P::Q(int32)", "zz")
		if err.Kind != KindInvalidPatchArgument {
			t.Errorf("Kind = %v", err.Kind)
		}
		if !strings.Contains(err.Error(), `parameter "zz" not found`) {
			t.Errorf("message = %q", err.Error())
		}
	})

	t.Run("Structural", func(t *testing.T) {
		err := Structural(KindUnresolvedLabel, "T::M()", "label L1 never placed")
		if err.Phase != PhaseFinalize {
			t.Errorf("Phase = %v", err.Phase)
		}
	})

	t.Run("RewriteFailed", func(t *testing.T) {
		cause := InvalidPatchArgument("T::M()", "P::Q()", "bad")
		err := RewriteFailed("T::M()", cause)
		if !errors.Is(err, &Error{Phase: PhaseDeclare, Kind: KindInvalidPatchArgument}) {
			t.Error("cause chain should expose the declaration defect")
		}
	})

	t.Run("ParseFailed", func(t *testing.T) {
		err := ParseFailed(12, "unknown opcode %q", "frob")
		if !strings.Contains(err.Detail, "line 12") || !strings.Contains(err.Detail, "frob") {
			t.Errorf("Detail = %q", err.Detail)
		}
	})
}

func TestIsInvalidPatchArgument(t *testing.T) {
	decl := InvalidPatchArgument("T::M()", "P::Q()", "bad")
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "direct", err: decl, want: true},
		{name: "wrapped", err: RewriteFailed("T::M()", decl), want: true},
		{name: "combined", err: multierr.Combine(errors.New("x"), decl), want: true},
		{name: "structural", err: Structural(KindUnresolvedLabel, "T::M()", "x"), want: false},
		{name: "plain", err: errors.New("x"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvalidPatchArgument(tt.err); got != tt.want {
				t.Errorf("IsInvalidPatchArgument() = %v, want %v", got, tt.want)
			}
		})
	}
}
