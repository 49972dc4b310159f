package asm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
	"github.com/wippyai/ilpatch/il/asm/internal/token"
	"github.com/wippyai/ilpatch/patch"
)

// offsetLabel matches the IL_xxxx prefixes listings put before each
// instruction. They are accepted and ignored.
var offsetLabel = regexp.MustCompile(`^IL_[0-9a-fA-F]{4,}$`)

type deferred struct {
	method *il.Method
	kind   patch.Kind
	pos    int
	body   bool
}

type parser struct {
	prog    *Program
	opts    Options
	tokens  []token.Token
	pending []deferred
	pos     int
}

func newParser(tokens []token.Token, opts Options) *parser {
	prog := &Program{types: make(map[string]*il.Type)}
	for _, t := range il.Builtins() {
		prog.types[t.Name] = t
	}
	return &parser{prog: prog, opts: opts, tokens: tokens}
}

func (p *parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *parser) next() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	t := &p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) lastLine() int {
	if len(p.tokens) == 0 {
		return 1
	}
	return p.tokens[len(p.tokens)-1].Line
}

func (p *parser) eof() error {
	return errors.ParseFailed(p.lastLine(), "unexpected end of input")
}

func (p *parser) expect(typ token.Type) (*token.Token, error) {
	t := p.next()
	if t == nil {
		return nil, p.eof()
	}
	if t.Type != typ {
		return nil, errors.ParseFailed(t.Line, "expected %v, got %q", typ, t.Value)
	}
	return t, nil
}

func (p *parser) expectKeyword(word string) error {
	t, err := p.expect(token.Ident)
	if err != nil {
		return err
	}
	if t.Value != word {
		return errors.ParseFailed(t.Line, "expected %q, got %q", word, t.Value)
	}
	return nil
}

func (p *parser) acceptKeyword(word string) bool {
	if t := p.peek(); t != nil && t.Type == token.Ident && t.Value == word {
		p.pos++
		return true
	}
	return false
}

func (p *parser) accept(typ token.Type) bool {
	if t := p.peek(); t != nil && t.Type == typ {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parse() (*Program, error) {
	for {
		t := p.next()
		if t == nil {
			break
		}
		if t.Type != token.Ident {
			return nil, errors.ParseFailed(t.Line, "expected declaration, got %q", t.Value)
		}
		var err error
		switch t.Value {
		case "module":
			var name *token.Token
			if name, err = p.expect(token.Ident); err == nil {
				p.prog.Module = name.Value
			}
		case "class":
			err = p.parseClass(t.Line, false)
		case "struct":
			err = p.parseClass(t.Line, true)
		case "exception":
			err = p.parseException(t.Line)
		case "delegate":
			err = p.parseDelegate(t.Line)
		case "method":
			err = p.parseMethod(t.Line)
		default:
			kind, ok := patch.ParseKind(t.Value)
			if !ok {
				return nil, errors.ParseFailed(t.Line, "unknown declaration %q", t.Value)
			}
			p.pending = append(p.pending, deferred{kind: kind, pos: p.pos})
			for n := p.peek(); n != nil && n.Line == t.Line; n = p.peek() {
				p.pos++
			}
		}
		if err != nil {
			return nil, err
		}
	}

	for _, d := range p.pending {
		p.pos = d.pos
		if d.body {
			body, err := p.parseBody(d.method)
			if err != nil {
				return nil, err
			}
			p.prog.Routines = append(p.prog.Routines, &Routine{Method: d.method, Body: body})
			continue
		}
		a, err := p.parseAttachment(d.kind)
		if err != nil {
			return nil, err
		}
		p.prog.Attachments = append(p.prog.Attachments, a)
	}
	return p.prog, nil
}

func (p *parser) declare(line int, t *il.Type) error {
	if _, dup := p.prog.types[t.Name]; dup {
		return errors.ParseFailed(line, "type %q already declared", t.Name)
	}
	p.prog.types[t.Name] = t
	p.prog.Types = append(p.prog.Types, t)
	return nil
}

func (p *parser) base() (*il.Type, error) {
	if !p.acceptKeyword("extends") {
		return nil, nil
	}
	return p.parseType()
}

func (p *parser) parseClass(line int, value bool) error {
	name, err := p.expect(token.Ident)
	if err != nil {
		return err
	}
	var t *il.Type
	if value {
		t = il.NewStruct(name.Value, p.prog.Module)
	} else {
		base, err := p.base()
		if err != nil {
			return err
		}
		t = il.NewClass(name.Value, p.prog.Module, base)
	}
	if err := p.declare(line, t); err != nil {
		return err
	}
	if !p.accept(token.LBrace) {
		return nil
	}
	for {
		if p.accept(token.RBrace) {
			return nil
		}
		static := p.acceptKeyword("static")
		if err := p.expectKeyword("field"); err != nil {
			return err
		}
		ft, err := p.parseType()
		if err != nil {
			return err
		}
		fname, err := p.expect(token.Ident)
		if err != nil {
			return err
		}
		for _, f := range t.Fields {
			if f.Name == fname.Value {
				return errors.ParseFailed(fname.Line, "field %s::%s already declared", t.Name, fname.Value)
			}
		}
		t.AddField(fname.Value, ft, static)
	}
}

func (p *parser) parseException(line int) error {
	name, err := p.expect(token.Ident)
	if err != nil {
		return err
	}
	base, err := p.base()
	if err != nil {
		return err
	}
	if base != nil && !base.IsSubclassOf(il.Exception) {
		return errors.ParseFailed(line, "exception %s extends non-exception %s", name.Value, base)
	}
	return p.declare(line, il.NewExceptionType(name.Value, p.prog.Module, base))
}

func (p *parser) parseDelegate(line int) error {
	name, err := p.expect(token.Ident)
	if err != nil {
		return err
	}
	params, err := p.parseParams()
	if err != nil {
		return err
	}
	ret, err := p.parseType()
	if err != nil {
		return err
	}
	return p.declare(line, il.NewDelegateType(name.Value, p.prog.Module, params, ret))
}

func (p *parser) parseMethod(line int) error {
	m := &il.Method{}
	for {
		if p.acceptKeyword("static") {
			m.Static = true
		} else if p.acceptKeyword("virtual") {
			m.Virtual = true
		} else {
			break
		}
	}
	ret, err := p.parseType()
	if err != nil {
		return err
	}
	m.Return = ret

	qual, err := p.expect(token.Ident)
	if err != nil {
		return err
	}
	typeName, name, ok := strings.Cut(qual.Value, "::")
	if !ok || typeName == "" || name == "" {
		return errors.ParseFailed(qual.Line, "method name %q is not of the form Type::Name", qual.Value)
	}
	owner := p.prog.types[typeName]
	if owner == nil {
		owner = il.NewClass(typeName, p.prog.Module, nil)
		if err := p.declare(qual.Line, owner); err != nil {
			return err
		}
	}
	m.Name = name
	if m.Params, err = p.parseParams(); err != nil {
		return err
	}
	if m.Static && m.Virtual {
		return errors.ParseFailed(line, "method %s is both static and virtual", qual.Value)
	}
	if dup := declaredMethod(owner, name, m.Params); dup != nil {
		return errors.ParseFailed(line, "method %s already declared", dup)
	}
	owner.AddMethod(m)
	p.prog.Methods = append(p.prog.Methods, m)

	if p.acceptKeyword("native") {
		impl, err := p.expect(token.String)
		if err != nil {
			return err
		}
		key, _ := strconv.Unquote(impl.Value)
		fn, ok := p.opts.Natives[key]
		if !ok && p.opts.Resolve != nil {
			if fn, err = p.opts.Resolve(key, m); err != nil {
				return errors.New(errors.PhaseParse, errors.KindNotFound).
					Routine(m.String()).
					Value(impl.Line).
					Cause(err).
					Detail("line %d: native %q", impl.Line, key).
					Build()
			}
			ok = fn != nil
		}
		if !ok {
			return errors.ParseFailed(impl.Line, "no native implementation named %q", key)
		}
		m.Native = fn
		return nil
	}

	if _, err := p.expect(token.LBrace); err != nil {
		return err
	}
	p.pending = append(p.pending, deferred{method: m, pos: p.pos, body: true})
	for depth := 1; ; {
		t := p.next()
		if t == nil {
			return p.eof()
		}
		switch t.Type {
		case token.LBrace:
			depth++
		case token.RBrace:
			depth--
		}
		if n := p.peek(); depth == 0 && (n == nil || (n.Value != ".catch" && n.Value != ".finally")) {
			return nil
		}
	}
}

func declaredMethod(t *il.Type, name string, params []*il.Param) *il.Method {
next:
	for _, m := range t.Methods {
		if m.Name != name || len(m.Params) != len(params) {
			continue
		}
		for i, p := range m.Params {
			if p.Type != params[i].Type {
				continue next
			}
		}
		return m
	}
	return nil
}

func (p *parser) parseType() (*il.Type, error) {
	t, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if t.Value == "ref" {
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return il.RefTo(elem), nil
	}
	typ := p.prog.types[t.Value]
	if typ == nil {
		return nil, errors.ParseFailed(t.Line, "unknown type %q", t.Value)
	}
	return typ, nil
}

// parseParams reads "(T name, ref T name, D name=Target)".
func (p *parser) parseParams() ([]*il.Param, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var params []*il.Param
	if p.accept(token.RParen) {
		return params, nil
	}
	for {
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		name, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		param := &il.Param{Type: typ, Name: name.Value}
		if p.accept(token.Equals) {
			target, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			param.Target = target.Value
		}
		params = append(params, param)
		if p.accept(token.RParen) {
			return params, nil
		}
		if _, err := p.expect(token.Comma); err != nil {
			return nil, err
		}
	}
}

// methodRef reads "Type::Name" or "Type::Name(T1, T2)". Without a type
// list the first method of that name on the type or its bases is taken.
func (p *parser) methodRef() (*il.Method, error) {
	qual, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	typeName, name, ok := strings.Cut(qual.Value, "::")
	if !ok {
		return nil, errors.ParseFailed(qual.Line, "method reference %q is not of the form Type::Name", qual.Value)
	}
	t := p.prog.types[typeName]
	if t == nil {
		return nil, errors.ParseFailed(qual.Line, "unknown type %q", typeName)
	}
	if !p.accept(token.LParen) {
		for c := t; c != nil; c = c.Base {
			if m := c.Method(name); m != nil {
				return m, nil
			}
		}
		return nil, errors.ParseFailed(qual.Line, "unknown method %s", qual.Value)
	}
	var types []*il.Type
	if !p.accept(token.RParen) {
		for {
			typ, err := p.parseType()
			if err != nil {
				return nil, err
			}
			types = append(types, typ)
			if p.accept(token.RParen) {
				break
			}
			if _, err := p.expect(token.Comma); err != nil {
				return nil, err
			}
		}
	}
	m := t.FindMethod(name, types)
	if m == nil {
		names := make([]string, len(types))
		for i, typ := range types {
			names[i] = typ.String()
		}
		return nil, errors.ParseFailed(qual.Line, "unknown method %s(%s)", qual.Value, strings.Join(names, ", "))
	}
	return m, nil
}

func (p *parser) fieldRef() (*il.Field, error) {
	qual, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	typeName, name, ok := strings.Cut(qual.Value, "::")
	if !ok {
		return nil, errors.ParseFailed(qual.Line, "field reference %q is not of the form Type::field", qual.Value)
	}
	t := p.prog.types[typeName]
	if t == nil {
		return nil, errors.ParseFailed(qual.Line, "unknown type %q", typeName)
	}
	f := t.Field(name)
	if f == nil {
		return nil, errors.ParseFailed(qual.Line, "unknown field %s", qual.Value)
	}
	return f, nil
}

func (p *parser) parseAttachment(kind patch.Kind) (*Attachment, error) {
	start := p.peek()
	if start == nil {
		return nil, p.eof()
	}
	target, err := p.methodRef()
	if err != nil {
		return nil, err
	}

	var pt *patch.Patch
	if kind == patch.Transpiler {
		name, err := p.expect(token.String)
		if err != nil {
			return nil, err
		}
		key, _ := strconv.Unquote(name.Value)
		fn, ok := p.opts.Transpilers[key]
		if !ok {
			return nil, errors.ParseFailed(name.Line, "no transpiler named %q", key)
		}
		pt = patch.NewTranspiler(key, fn)
	} else {
		m, err := p.methodRef()
		if err != nil {
			return nil, err
		}
		switch kind {
		case patch.Prefix:
			pt = patch.NewPrefix(m)
		case patch.Postfix:
			pt = patch.NewPostfix(m)
		default:
			pt = patch.NewFinalizer(m)
		}
	}
	pt.Owner = p.prog.Module

	for {
		key := p.peek()
		if key == nil || key.Line != start.Line {
			break
		}
		if key.Type != token.Ident {
			return nil, errors.ParseFailed(key.Line, "expected option, got %q", key.Value)
		}
		p.pos++
		if _, err := p.expect(token.Equals); err != nil {
			return nil, err
		}
		values, err := p.optionValues()
		if err != nil {
			return nil, err
		}
		switch key.Value {
		case "priority":
			if len(values) != 1 {
				return nil, errors.ParseFailed(key.Line, "priority takes one value")
			}
			n, err := strconv.Atoi(values[0])
			if err != nil {
				return nil, errors.ParseFailed(key.Line, "invalid priority %q", values[0])
			}
			pt.Priority = n
		case "owner":
			if len(values) != 1 {
				return nil, errors.ParseFailed(key.Line, "owner takes one value")
			}
			pt.Owner = values[0]
		case "before":
			pt.Before = append(pt.Before, values...)
		case "after":
			pt.After = append(pt.After, values...)
		default:
			return nil, errors.ParseFailed(key.Line, "unknown option %q", key.Value)
		}
	}
	return &Attachment{Target: target, Patch: pt, Line: start.Line}, nil
}

func (p *parser) optionValues() ([]string, error) {
	var values []string
	for {
		t := p.next()
		if t == nil {
			return nil, p.eof()
		}
		switch t.Type {
		case token.Ident, token.Number:
			values = append(values, t.Value)
		case token.String:
			s, _ := strconv.Unquote(t.Value)
			values = append(values, s)
		default:
			return nil, errors.ParseFailed(t.Line, "expected option value, got %q", t.Value)
		}
		if !p.accept(token.Comma) {
			return values, nil
		}
	}
}
