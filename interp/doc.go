// Package interp executes finalized il code.
//
// A [Machine] maps methods to installed [il.Code] and runs calls on the
// caller's goroutine. Installing new code for a method is atomic with
// respect to calls: a call already running keeps the code it started with,
// later calls see the replacement.
//
//	m := interp.New(interp.Config{})
//	if _, err := m.InstallBody(add, body); err != nil {
//	    return err
//	}
//	v, err := m.Call(ctx, add, int32(2), int32(3))
//
// # Exceptions
//
// An exception raised by throw, by a runtime fault or by a native routine
// is dispatched through the frame's region table innermost first. Catch
// handlers filter by type, finally handlers run both on leave and while an
// exception propagates. An exception no handler accepts leaves [Machine.Call]
// as an *[il.Thrown] error. Other errors (context cancellation, missing
// code) are not catchable and abort the whole call.
package interp
