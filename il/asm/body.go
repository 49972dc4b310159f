package asm

import (
	"strconv"

	"github.com/wippyai/ilpatch/errors"
	"github.com/wippyai/ilpatch/il"
	"github.com/wippyai/ilpatch/il/asm/internal/token"
)

type bodyParser struct {
	*parser
	body   *il.Body
	e      *il.Emitter
	labels map[string]*il.Label
	placed map[string]bool
	refs   map[string]int // first line each label is referenced on
}

func (p *parser) parseBody(m *il.Method) (*il.Body, error) {
	body := il.NewBody(m)
	b := &bodyParser{
		parser: p,
		body:   body,
		e:      body.Emitter(),
		labels: make(map[string]*il.Label),
		placed: make(map[string]bool),
		refs:   make(map[string]int),
	}
	if err := b.run(); err != nil {
		return nil, err
	}
	for name, line := range b.refs {
		if !b.placed[name] {
			return nil, errors.ParseFailed(line, "label %q is never placed in %s", name, m)
		}
	}
	return body, nil
}

func (b *bodyParser) label(name string) *il.Label {
	l := b.labels[name]
	if l == nil {
		l = b.body.DefineNamedLabel(name)
		b.labels[name] = l
	}
	return l
}

func (b *bodyParser) run() error {
	depth := 0
	for {
		t := b.next()
		if t == nil {
			return b.eof()
		}
		switch {
		case t.Type == token.RBrace:
			if b.acceptKeyword(".catch") {
				if depth == 0 {
					return errors.ParseFailed(t.Line, ".catch outside a .try block")
				}
				ct, err := b.parseType()
				if err != nil {
					return err
				}
				b.e.BeginCatch(ct)
				if _, err := b.expect(token.LBrace); err != nil {
					return err
				}
				continue
			}
			if b.acceptKeyword(".finally") {
				if depth == 0 {
					return errors.ParseFailed(t.Line, ".finally outside a .try block")
				}
				b.e.BeginFinally()
				if _, err := b.expect(token.LBrace); err != nil {
					return err
				}
				continue
			}
			if depth == 0 {
				b.body.Instrs = b.e.Instrs()
				return nil
			}
			depth--
			b.e.EndBlock()

		case t.Type != token.Ident:
			return errors.ParseFailed(t.Line, "expected instruction, got %q", t.Value)

		case t.Value == ".try":
			if _, err := b.expect(token.LBrace); err != nil {
				return err
			}
			b.e.BeginTry()
			depth++

		case t.Value == ".local":
			if err := b.local(); err != nil {
				return err
			}

		case b.peek() != nil && b.peek().Type == token.Colon:
			b.pos++
			if offsetLabel.MatchString(t.Value) {
				continue
			}
			if b.placed[t.Value] {
				return errors.ParseFailed(t.Line, "label %q placed twice", t.Value)
			}
			b.placed[t.Value] = true
			b.e.MarkLabel(b.label(t.Value))

		default:
			op, ok := il.LookupOpcode(t.Value)
			if !ok {
				return errors.ParseFailed(t.Line, "unknown instruction %q", t.Value)
			}
			operand, err := b.operand(t, op)
			if err != nil {
				return err
			}
			if operand == nil {
				b.e.Emit(op)
			} else {
				b.e.Emit(op, operand)
			}
		}
	}
}

func (b *bodyParser) local() error {
	typ, err := b.parseType()
	if err != nil {
		return err
	}
	name, err := b.expect(token.Ident)
	if err != nil {
		return err
	}
	if b.body.LocalByName(name.Value) != nil {
		return errors.ParseFailed(name.Line, "local %q declared twice", name.Value)
	}
	b.body.DeclareLocal(typ, name.Value)
	return nil
}

func (b *bodyParser) operand(at *token.Token, op il.Opcode) (any, error) {
	kind := op.Info().Operand
	switch kind {
	case il.OperandNone:
		return nil, nil
	case il.OperandMethod:
		return b.methodRef()
	case il.OperandField:
		return b.fieldRef()
	case il.OperandType:
		return b.parseType()
	}

	t := b.next()
	if t == nil {
		return nil, b.eof()
	}
	bad := func() error {
		return errors.ParseFailed(t.Line, "invalid operand %q for %s", t.Value, at.Value)
	}

	switch kind {
	case il.OperandArg:
		if t.Type == token.Number {
			n, err := strconv.Atoi(t.Value)
			if err != nil || n < 0 || n >= b.body.Method.ArgCount() {
				return nil, bad()
			}
			return n, nil
		}
		i := b.body.Method.ParamIndex(t.Value)
		if t.Type != token.Ident || i < 0 {
			return nil, bad()
		}
		return b.body.Method.ArgIndex(i), nil

	case il.OperandLocal:
		if t.Type == token.Number {
			n, err := strconv.Atoi(t.Value)
			if err != nil || n < 0 || n >= len(b.body.Locals) {
				return nil, bad()
			}
			return b.body.Locals[n], nil
		}
		l := b.body.LocalByName(t.Value)
		if t.Type != token.Ident || l == nil {
			return nil, bad()
		}
		return l, nil

	case il.OperandInt32:
		n, err := strconv.ParseInt(t.Value, 0, 32)
		if t.Type != token.Number || err != nil {
			return nil, bad()
		}
		return int32(n), nil

	case il.OperandInt64:
		n, err := strconv.ParseInt(t.Value, 0, 64)
		if t.Type != token.Number || err != nil {
			return nil, bad()
		}
		return n, nil

	case il.OperandFloat64:
		f, err := strconv.ParseFloat(t.Value, 64)
		if t.Type == token.String || err != nil {
			return nil, bad()
		}
		return f, nil

	case il.OperandBool:
		v, err := strconv.ParseBool(t.Value)
		if t.Type != token.Ident || err != nil {
			return nil, bad()
		}
		return v, nil

	case il.OperandString:
		s, err := strconv.Unquote(t.Value)
		if t.Type != token.String || err != nil {
			return nil, bad()
		}
		return s, nil

	case il.OperandLabel:
		if t.Type != token.Ident {
			return nil, bad()
		}
		if _, seen := b.refs[t.Value]; !seen {
			b.refs[t.Value] = t.Line
		}
		return b.label(t.Value), nil
	}
	return nil, bad()
}
