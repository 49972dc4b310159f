package asm

import (
	"github.com/wippyai/ilpatch/il"
	"github.com/wippyai/ilpatch/il/asm/internal/token"
	"github.com/wippyai/ilpatch/patch"
)

// Options supplies the Go implementations a source file refers to by name.
type Options struct {
	// Natives implements methods declared with `native "name"`.
	Natives map[string]il.NativeFunc
	// Resolve is consulted for native names missing from Natives. It
	// receives the declared method so it can check the signature.
	Resolve func(name string, sig *il.Method) (il.NativeFunc, error)
	// Transpilers implements `transpiler` attachments.
	Transpilers map[string]patch.TranspileFunc
}

// Routine is a method together with its assembled body.
type Routine struct {
	Method *il.Method
	Body   *il.Body
}

// Attachment is a patch declaration: Patch applied to Target.
type Attachment struct {
	Target *il.Method
	Patch  *patch.Patch
	Line   int
}

// Program is an assembled source file.
type Program struct {
	types map[string]*il.Type
	// Module names the file; it is the default owner of its attachments.
	Module      string
	Types       []*il.Type
	Methods     []*il.Method
	Routines    []*Routine
	Attachments []*Attachment
}

// Parse assembles source. Types must be declared before they are used in
// signatures; methods may be referenced from anywhere in the file.
func Parse(source string, opts Options) (*Program, error) {
	p := newParser(token.Tokenize(source), opts)
	return p.parse()
}

// Type returns a declared or builtin type by name, or nil.
func (p *Program) Type(name string) *il.Type {
	return p.types[name]
}

// Method resolves a method reference written the way operands are
// written, "Type::Name" or "Type::Name(int32, ref T)".
func (p *Program) Method(ref string) *il.Method {
	ps := &parser{prog: p, tokens: token.Tokenize(ref)}
	m, err := ps.methodRef()
	if err != nil || ps.peek() != nil {
		return nil
	}
	return m
}

// Body returns the assembled body of m, or nil for natives and unknown
// methods.
func (p *Program) Body(m *il.Method) *il.Body {
	for _, r := range p.Routines {
		if r.Method == m {
			return r.Body
		}
	}
	return nil
}
