// Package il models the stack-machine code that ilpatch rewrites.
//
// # Overview
//
// A routine is described by a [Method] (declaring [Type], formal [Param]s,
// return type, static/virtual flags). Its editable body is a [Body]: an
// ordered list of [Instruction] records, the routine's [Local] slots and the
// exception-block markers attached to instructions.
//
// Instructions are stable records. A [Label] is an identity attached to the
// instruction it marks, never a position, so splicing code into the list
// cannot invalidate a branch. Labels may be referenced before they are placed
// (forward declaration) and are resolved by [Body.Finalize], which is the
// single patch-up pass:
//
//	Body (editable)  --Finalize-->  Code (immutable, resolved)
//
// Finalize resolves labels to instruction indices, builds the exception
// region table from block markers and verifies stack balance over the
// control-flow graph. Every defect found is reported; none is repaired.
//
// # Exception blocks
//
// Structured exception handling is expressed with markers:
//
//	BeginTry      before the first protected instruction
//	BeginCatch    before the first handler instruction (ends the try range)
//	BeginFinally  before the first finally instruction
//	EndBlock      after the last handler instruction (ends the statement)
//
// The [Emitter] produces these markers with BeginTry/BeginCatch/EndBlock.
//
// # Values
//
// The runtime value model shared with the execution engine lives in
// value.go: [Instance] (classes, structs, exceptions), [Boxed], [Delegate],
// [Ref] for addresses and [Thrown] for an exception crossing a Go boundary.
package il
