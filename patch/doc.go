// Package patch rewrites routine bodies so that patch methods run before,
// after, around or instead of the original code.
//
// # Patch kinds
//
//	Prefix      runs first; a bool result or a __runOriginal parameter lets
//	            it skip the original body
//	Postfix     runs at the single exit; a postfix returning the routine's
//	            type chains the result through its first parameter
//	Transpiler  rewrites the raw instruction list before anything else
//	Finalizer   runs on every exit, including exceptional ones, and may
//	            replace or suppress the exception
//
// # Rewrite pipeline
//
//  1. Transpilers run in order; the last result is committed
//  2. Every patch signature is checked and every parameter is bound
//  3. Each ret becomes a branch to one merge label
//  4. Prefixes, body, postfixes and finalizers are assembled around it
//  5. The result is verified with il.Body.Finalize and committed
//
// A rewrite works on a clone. When any step fails the caller's body is
// untouched, so the routine keeps running unpatched.
//
// # Parameter binding
//
// Patch parameters are bound by name, first matching rule wins:
//
//	__originalMethod   handle of the patched routine
//	__instance         the receiver (null in static routines)
//	___name, ___N      field of the declaring type by name or index
//	__state            slot shared by patches of the same declaring type
//	__result           the result slot
//	__runOriginal,
//	__exception        other environment slots
//	__N                original argument N
//	name               original argument with the same name
//	delegate type      delegate bound to a method of the declaring type
//
// By-reference parameters receive addresses, so a prefix can write
// __result and a finalizer can replace __exception.
//
// # Ordering
//
// [Collection] holds a routine's patches behind a mutex. [Collection.Snapshot]
// copies them in one critical section and orders each kind with [Sort].
package patch
