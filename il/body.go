package il

// Body is the editable instruction sequence of a routine.
//
// Bodies are not safe for concurrent mutation. Rewrites operate on a Clone
// and commit with Replace.
type Body struct {
	Method *Method
	Instrs []*Instruction
	Locals []*Local
	labels int
}

// NewBody creates a body for m with the given instructions.
func NewBody(m *Method, instrs ...*Instruction) *Body {
	return &Body{Method: m, Instrs: instrs}
}

// DefineLabel reserves a new, unplaced label.
func (b *Body) DefineLabel() *Label {
	b.labels++
	return &Label{id: b.labels}
}

// DefineNamedLabel reserves a label that prints as name.
func (b *Body) DefineNamedLabel(name string) *Label {
	l := b.DefineLabel()
	l.Name = name
	return l
}

// DeclareLocal appends a local slot of type t.
func (b *Body) DeclareLocal(t *Type, name string) *Local {
	l := &Local{Type: t, Name: name, Index: len(b.Locals)}
	b.Locals = append(b.Locals, l)
	return l
}

// LocalByName returns the first local named name, or nil.
func (b *Body) LocalByName(name string) *Local {
	for _, l := range b.Locals {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// Mark attaches l to ins.
func (b *Body) Mark(l *Label, ins *Instruction) {
	ins.Labels = append(ins.Labels, l)
}

// Clone returns a deep copy of the instruction records. Labels, locals,
// methods and fields keep their identities, so branches in the copy still
// resolve against the copy.
func (b *Body) Clone() *Body {
	c := &Body{
		Method: b.Method,
		Instrs: make([]*Instruction, len(b.Instrs)),
		Locals: append([]*Local(nil), b.Locals...),
		labels: b.labels,
	}
	for i, ins := range b.Instrs {
		c.Instrs[i] = ins.Clone()
	}
	return c
}

// Replace commits the contents of other into b.
func (b *Body) Replace(other *Body) {
	b.Method = other.Method
	b.Instrs = other.Instrs
	b.Locals = other.Locals
	b.labels = other.labels
}

// Emitter returns an emitter that allocates labels and locals in b.
func (b *Body) Emitter() *Emitter {
	return NewEmitter(b)
}

// Len returns the number of instructions.
func (b *Body) Len() int { return len(b.Instrs) }
