// Package errors provides structured error types for the ilpatch module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the original routine and the offending patch so a
// failed rewrite can always be traced back to both.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBind, errors.KindInvalidPatchArgument).
//		Routine("Calc::Add(int32, int32)").
//		Patch("Patches::Prefix(int32)").
//		Path("__result").
//		Detail("routine returns void").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidPatchArgument(routine, patch, "prefix must return void or bool")
//	err := errors.Structural(errors.KindUnresolvedLabel, routine, "label L3 never placed")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
