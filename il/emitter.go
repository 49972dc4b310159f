package il

// Emitter builds an instruction list with a fluent API.
//
// Labels marked with MarkLabel and begin markers attach to the next emitted
// instruction. EndBlock attaches to the last emitted instruction. Markers
// still pending when Instrs is called are placed on a trailing nop.
type Emitter struct {
	body   *Body
	instrs []*Instruction
	labels []*Label
	blocks []Block
}

// NewEmitter creates an emitter allocating labels and locals in b.
func NewEmitter(b *Body) *Emitter {
	return &Emitter{body: b}
}

// Len returns the number of emitted instructions.
func (e *Emitter) Len() int { return len(e.instrs) }

// Reset discards emitted instructions and pending markers.
func (e *Emitter) Reset() {
	e.instrs = nil
	e.labels = nil
	e.blocks = nil
}

// Instrs flushes pending markers and returns the emitted list.
func (e *Emitter) Instrs() []*Instruction {
	if len(e.labels) > 0 || len(e.blocks) > 0 {
		e.Emit(Nop)
	}
	return e.instrs
}

func (e *Emitter) last() *Instruction {
	if len(e.instrs) == 0 {
		return nil
	}
	return e.instrs[len(e.instrs)-1]
}

// Emit appends an instruction.
func (e *Emitter) Emit(op Opcode, operand ...any) *Emitter {
	return e.Append(New(op, operand...))
}

// Append splices existing instruction records. Pending labels and begin
// markers attach to the first of them.
func (e *Emitter) Append(instrs ...*Instruction) *Emitter {
	if len(instrs) == 0 {
		return e
	}
	first := instrs[0]
	if len(e.labels) > 0 {
		first.Labels = append(e.labels, first.Labels...)
		e.labels = nil
	}
	if len(e.blocks) > 0 {
		first.Blocks = append(e.blocks, first.Blocks...)
		e.blocks = nil
	}
	e.instrs = append(e.instrs, instrs...)
	return e
}

// DefineLabel reserves a label in the underlying body.
func (e *Emitter) DefineLabel() *Label { return e.body.DefineLabel() }

// DeclareLocal declares a local in the underlying body.
func (e *Emitter) DeclareLocal(t *Type, name string) *Local {
	return e.body.DeclareLocal(t, name)
}

// MarkLabel places l on the next emitted instruction.
func (e *Emitter) MarkLabel(l *Label) *Emitter {
	e.labels = append(e.labels, l)
	return e
}

// BeginTry opens a protected region at the next instruction.
func (e *Emitter) BeginTry() *Emitter {
	e.blocks = append(e.blocks, Block{Kind: BeginTry})
	return e
}

// BeginCatch starts a handler for exceptions assignable to t.
func (e *Emitter) BeginCatch(t *Type) *Emitter {
	e.blocks = append(e.blocks, Block{Kind: BeginCatch, CatchType: t})
	return e
}

// BeginFinally starts a finally handler.
func (e *Emitter) BeginFinally() *Emitter {
	e.blocks = append(e.blocks, Block{Kind: BeginFinally})
	return e
}

// EndBlock closes the innermost open exception statement after the last
// emitted instruction. Pending markers are first placed on a nop.
func (e *Emitter) EndBlock() *Emitter {
	if e.last() == nil || len(e.labels) > 0 || len(e.blocks) > 0 {
		e.Emit(Nop)
	}
	last := e.last()
	last.Blocks = append(last.Blocks, Block{Kind: EndBlock})
	return e
}

func (e *Emitter) Nop() *Emitter                { return e.Emit(Nop) }
func (e *Emitter) LdArg(i int) *Emitter         { return e.Emit(LdArg, i) }
func (e *Emitter) LdArgA(i int) *Emitter        { return e.Emit(LdArgA, i) }
func (e *Emitter) StArg(i int) *Emitter         { return e.Emit(StArg, i) }
func (e *Emitter) LdLoc(l *Local) *Emitter      { return e.Emit(LdLoc, l) }
func (e *Emitter) LdLocA(l *Local) *Emitter     { return e.Emit(LdLocA, l) }
func (e *Emitter) StLoc(l *Local) *Emitter      { return e.Emit(StLoc, l) }
func (e *Emitter) LdcI4(v int32) *Emitter       { return e.Emit(LdcI4, v) }
func (e *Emitter) LdcI8(v int64) *Emitter       { return e.Emit(LdcI8, v) }
func (e *Emitter) LdcR8(v float64) *Emitter     { return e.Emit(LdcR8, v) }
func (e *Emitter) LdcBool(v bool) *Emitter      { return e.Emit(LdcBool, v) }
func (e *Emitter) LdStr(s string) *Emitter      { return e.Emit(LdStr, s) }
func (e *Emitter) LdNull() *Emitter             { return e.Emit(LdNull) }
func (e *Emitter) Dup() *Emitter                { return e.Emit(Dup) }
func (e *Emitter) Pop() *Emitter                { return e.Emit(Pop) }
func (e *Emitter) And() *Emitter                { return e.Emit(And) }
func (e *Emitter) Br(l *Label) *Emitter         { return e.Emit(Br, l) }
func (e *Emitter) BrTrue(l *Label) *Emitter     { return e.Emit(BrTrue, l) }
func (e *Emitter) BrFalse(l *Label) *Emitter    { return e.Emit(BrFalse, l) }
func (e *Emitter) Leave(l *Label) *Emitter      { return e.Emit(Leave, l) }
func (e *Emitter) Ret() *Emitter                { return e.Emit(Ret) }
func (e *Emitter) Call(m *Method) *Emitter      { return e.Emit(Call, m) }
func (e *Emitter) CallVirt(m *Method) *Emitter  { return e.Emit(CallVirt, m) }
func (e *Emitter) NewObj(m *Method) *Emitter    { return e.Emit(NewObj, m) }
func (e *Emitter) LdFld(f *Field) *Emitter      { return e.Emit(LdFld, f) }
func (e *Emitter) LdFldA(f *Field) *Emitter     { return e.Emit(LdFldA, f) }
func (e *Emitter) LdSFld(f *Field) *Emitter     { return e.Emit(LdSFld, f) }
func (e *Emitter) LdSFldA(f *Field) *Emitter    { return e.Emit(LdSFldA, f) }
func (e *Emitter) LdObj(t *Type) *Emitter       { return e.Emit(LdObj, t) }
func (e *Emitter) Box(t *Type) *Emitter         { return e.Emit(Box, t) }
func (e *Emitter) Throw() *Emitter              { return e.Emit(Throw) }
func (e *Emitter) Rethrow() *Emitter            { return e.Emit(Rethrow) }
func (e *Emitter) EndFinally() *Emitter         { return e.Emit(EndFinally) }
func (e *Emitter) LdToken(m *Method) *Emitter   { return e.Emit(LdToken, m) }
func (e *Emitter) LdFtn(m *Method) *Emitter     { return e.Emit(LdFtn, m) }
func (e *Emitter) LdVirtFtn(m *Method) *Emitter { return e.Emit(LdVirtFtn, m) }
