// Package asm assembles routines, types and patch declarations from a
// line-oriented text format.
//
// The listing [il.FormatBody] produces is valid body syntax, so a dump can
// be edited and fed back:
//
//	module game
//
//	class Player {
//	    field int32 hp
//	    static field int32 created
//	}
//	exception OutOfMana
//	delegate Mapper(int32 v) int32
//
//	method static int32 Calc::Div(int32 a, int32 b) {
//	    .local int32 result
//	    .try {
//	        ldarg a
//	        ldarg b
//	        div
//	        stloc result
//	        leave done
//	    } .catch DivideByZeroException {
//	        pop
//	        ldc.i4 0
//	        stloc result
//	        leave done
//	    }
//	done:
//	    ldloc result
//	    ret
//	}
//
//	method static bool Patches::Pre(int32 a, ref int32 __result) native "skip"
//
//	prefix Calc::Div Patches::Pre priority=800 before=other
//	transpiler Calc::Div "negate" owner=mod
//
// Comments start with # or //. Types must be declared before they appear
// in a signature; a method declared on an unknown type declares that type
// as a class. Method bodies and patch declarations are resolved after the
// whole file is read, so they may refer to methods declared further down.
//
// Operands: ldarg takes an index or parameter name, ldloc an index or
// local name, branches a label name, calls "Type::Name" or
// "Type::Name(T1, T2)" to pick an overload, field ops "Type::field". The
// IL_xxxx prefixes of listings are ignored.
//
// Errors are parse-phase errors carrying the source line.
package asm
