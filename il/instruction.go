package il

import (
	"fmt"
)

// Label is a branch target. It is an identity, not a position: the
// instruction carrying it in its Labels list is the target.
type Label struct {
	Name string
	id   int
}

func (l *Label) String() string {
	if l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("L%d", l.id)
}

// Local is a typed slot in a routine's frame.
type Local struct {
	Type  *Type
	Name  string
	Index int
}

func (l *Local) String() string {
	if l.Name != "" {
		return fmt.Sprintf("%d (%s)", l.Index, l.Name)
	}
	return fmt.Sprint(l.Index)
}

// BlockKind is an exception-block marker kind.
type BlockKind uint8

const (
	BeginTry BlockKind = iota
	BeginCatch
	BeginFinally
	EndBlock
)

func (k BlockKind) String() string {
	switch k {
	case BeginTry:
		return "try"
	case BeginCatch:
		return "catch"
	case BeginFinally:
		return "finally"
	case EndBlock:
		return "end"
	}
	return "unknown"
}

// Block is an exception-block marker attached to an instruction. Begin
// markers apply before the instruction, EndBlock after it.
type Block struct {
	CatchType *Type
	Kind      BlockKind
}

// Instruction is one element of a body. Its identity is stable across
// edits; labels and block markers travel with it.
type Instruction struct {
	Operand any
	Labels  []*Label
	Blocks  []Block
	Op      Opcode
}

// New creates an instruction. Integer operands of ldc.i4 may be given as
// int and are normalized to int32.
func New(op Opcode, operand ...any) *Instruction {
	ins := &Instruction{Op: op}
	if len(operand) > 0 {
		ins.Operand = normalizeOperand(op, operand[0])
	}
	return ins
}

func normalizeOperand(op Opcode, v any) any {
	switch op.Info().Operand {
	case OperandInt32:
		if i, ok := v.(int); ok {
			return int32(i)
		}
	case OperandInt64:
		if i, ok := v.(int); ok {
			return int64(i)
		}
	}
	return v
}

// Label returns the branch target, or nil.
func (i *Instruction) Label() *Label {
	l, _ := i.Operand.(*Label)
	return l
}

// Method returns the method operand, or nil.
func (i *Instruction) Method() *Method {
	m, _ := i.Operand.(*Method)
	return m
}

// Field returns the field operand, or nil.
func (i *Instruction) Field() *Field {
	f, _ := i.Operand.(*Field)
	return f
}

// Local returns the local operand, or nil.
func (i *Instruction) Local() *Local {
	l, _ := i.Operand.(*Local)
	return l
}

// Type returns the type operand, or nil.
func (i *Instruction) Type() *Type {
	t, _ := i.Operand.(*Type)
	return t
}

// Arg returns the argument index operand.
func (i *Instruction) Arg() int {
	n, _ := i.Operand.(int)
	return n
}

// Is reports whether i has opcode op and, when operand is given, that
// operand.
func (i *Instruction) Is(op Opcode, operand ...any) bool {
	if i.Op != op {
		return false
	}
	if len(operand) == 0 {
		return true
	}
	return i.Operand == normalizeOperand(op, operand[0])
}

// HasBlock reports whether a marker of kind k is attached.
func (i *Instruction) HasBlock(k BlockKind) bool {
	for _, b := range i.Blocks {
		if b.Kind == k {
			return true
		}
	}
	return false
}

// MoveLabelsTo transfers i's labels and begin markers to dst. Used when
// an instruction is replaced by a sequence that must stay targetable.
func (i *Instruction) MoveLabelsTo(dst *Instruction) {
	dst.Labels = append(dst.Labels, i.Labels...)
	i.Labels = nil
	var keep []Block
	for _, b := range i.Blocks {
		if b.Kind == EndBlock {
			keep = append(keep, b)
			continue
		}
		dst.Blocks = append(dst.Blocks, b)
	}
	i.Blocks = keep
}

// Clone returns a copy of i that shares operand identities.
func (i *Instruction) Clone() *Instruction {
	c := &Instruction{Op: i.Op, Operand: i.Operand}
	if len(i.Labels) > 0 {
		c.Labels = append([]*Label(nil), i.Labels...)
	}
	if len(i.Blocks) > 0 {
		c.Blocks = append([]Block(nil), i.Blocks...)
	}
	return c
}

func (i *Instruction) String() string {
	if op := OperandText(i); op != "" {
		return i.Op.String() + " " + op
	}
	return i.Op.String()
}
