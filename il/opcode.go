package il

// Opcode identifies an instruction.
type Opcode uint8

const (
	Nop Opcode = iota
	LdArg
	LdArgA
	StArg
	LdLoc
	LdLocA
	StLoc
	LdcI4
	LdcI8
	LdcR8
	LdcBool
	LdStr
	LdNull
	Dup
	Pop
	Add
	Sub
	Mul
	Div
	Rem
	Neg
	And
	Or
	Xor
	Not
	Ceq
	Cgt
	Clt
	Br
	BrTrue
	BrFalse
	Leave
	Ret
	Call
	CallVirt
	NewObj
	LdFld
	LdFldA
	StFld
	LdSFld
	LdSFldA
	StSFld
	LdObj
	StObj
	Box
	UnboxAny
	CastClass
	IsInst
	Throw
	Rethrow
	EndFinally
	LdToken
	LdFtn
	LdVirtFtn

	opcodeCount
)

// OperandKind describes what an instruction's operand must hold.
type OperandKind uint8

const (
	OperandNone    OperandKind = iota
	OperandArg                 // int
	OperandLocal               // *Local
	OperandInt32               // int32
	OperandInt64               // int64
	OperandFloat64             // float64
	OperandBool                // bool
	OperandString              // string
	OperandLabel               // *Label
	OperandMethod              // *Method
	OperandField               // *Field
	OperandType                // *Type
)

// Flow describes how control leaves an instruction.
type Flow uint8

const (
	FlowNext Flow = iota
	FlowBranch
	FlowCondBranch
	FlowLeave
	FlowReturn
	FlowThrow
	FlowEndFinally
)

// dynamic marks a stack effect computed from the operand.
const dynamic = -1

// OpInfo is the static description of an opcode.
type OpInfo struct {
	Name    string
	Pops    int
	Pushes  int
	Operand OperandKind
	Flow    Flow
}

var opTable = [opcodeCount]OpInfo{
	Nop:        {"nop", 0, 0, OperandNone, FlowNext},
	LdArg:      {"ldarg", 0, 1, OperandArg, FlowNext},
	LdArgA:     {"ldarga", 0, 1, OperandArg, FlowNext},
	StArg:      {"starg", 1, 0, OperandArg, FlowNext},
	LdLoc:      {"ldloc", 0, 1, OperandLocal, FlowNext},
	LdLocA:     {"ldloca", 0, 1, OperandLocal, FlowNext},
	StLoc:      {"stloc", 1, 0, OperandLocal, FlowNext},
	LdcI4:      {"ldc.i4", 0, 1, OperandInt32, FlowNext},
	LdcI8:      {"ldc.i8", 0, 1, OperandInt64, FlowNext},
	LdcR8:      {"ldc.r8", 0, 1, OperandFloat64, FlowNext},
	LdcBool:    {"ldc.bool", 0, 1, OperandBool, FlowNext},
	LdStr:      {"ldstr", 0, 1, OperandString, FlowNext},
	LdNull:     {"ldnull", 0, 1, OperandNone, FlowNext},
	Dup:        {"dup", 1, 2, OperandNone, FlowNext},
	Pop:        {"pop", 1, 0, OperandNone, FlowNext},
	Add:        {"add", 2, 1, OperandNone, FlowNext},
	Sub:        {"sub", 2, 1, OperandNone, FlowNext},
	Mul:        {"mul", 2, 1, OperandNone, FlowNext},
	Div:        {"div", 2, 1, OperandNone, FlowNext},
	Rem:        {"rem", 2, 1, OperandNone, FlowNext},
	Neg:        {"neg", 1, 1, OperandNone, FlowNext},
	And:        {"and", 2, 1, OperandNone, FlowNext},
	Or:         {"or", 2, 1, OperandNone, FlowNext},
	Xor:        {"xor", 2, 1, OperandNone, FlowNext},
	Not:        {"not", 1, 1, OperandNone, FlowNext},
	Ceq:        {"ceq", 2, 1, OperandNone, FlowNext},
	Cgt:        {"cgt", 2, 1, OperandNone, FlowNext},
	Clt:        {"clt", 2, 1, OperandNone, FlowNext},
	Br:         {"br", 0, 0, OperandLabel, FlowBranch},
	BrTrue:     {"brtrue", 1, 0, OperandLabel, FlowCondBranch},
	BrFalse:    {"brfalse", 1, 0, OperandLabel, FlowCondBranch},
	Leave:      {"leave", 0, 0, OperandLabel, FlowLeave},
	Ret:        {"ret", dynamic, 0, OperandNone, FlowReturn},
	Call:       {"call", dynamic, dynamic, OperandMethod, FlowNext},
	CallVirt:   {"callvirt", dynamic, dynamic, OperandMethod, FlowNext},
	NewObj:     {"newobj", dynamic, 1, OperandMethod, FlowNext},
	LdFld:      {"ldfld", 1, 1, OperandField, FlowNext},
	LdFldA:     {"ldflda", 1, 1, OperandField, FlowNext},
	StFld:      {"stfld", 2, 0, OperandField, FlowNext},
	LdSFld:     {"ldsfld", 0, 1, OperandField, FlowNext},
	LdSFldA:    {"ldsflda", 0, 1, OperandField, FlowNext},
	StSFld:     {"stsfld", 1, 0, OperandField, FlowNext},
	LdObj:      {"ldobj", 1, 1, OperandType, FlowNext},
	StObj:      {"stobj", 2, 0, OperandType, FlowNext},
	Box:        {"box", 1, 1, OperandType, FlowNext},
	UnboxAny:   {"unbox.any", 1, 1, OperandType, FlowNext},
	CastClass:  {"castclass", 1, 1, OperandType, FlowNext},
	IsInst:     {"isinst", 1, 1, OperandType, FlowNext},
	Throw:      {"throw", 1, 0, OperandNone, FlowThrow},
	Rethrow:    {"rethrow", 0, 0, OperandNone, FlowThrow},
	EndFinally: {"endfinally", 0, 0, OperandNone, FlowEndFinally},
	LdToken:    {"ldtoken", 0, 1, OperandMethod, FlowNext},
	LdFtn:      {"ldftn", 0, 1, OperandMethod, FlowNext},
	LdVirtFtn:  {"ldvirtftn", 1, 1, OperandMethod, FlowNext},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opcodeCount)
	for op := Opcode(0); op < opcodeCount; op++ {
		m[opTable[op].Name] = op
	}
	return m
}()

// Info returns the static description of op.
func (op Opcode) Info() OpInfo {
	if op >= opcodeCount {
		return OpInfo{Name: "invalid"}
	}
	return opTable[op]
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool { return op < opcodeCount }

func (op Opcode) String() string { return op.Info().Name }

// IsBranch reports whether op transfers control to a label.
func (op Opcode) IsBranch() bool { return op.Info().Operand == OperandLabel }

// IsCall reports whether op invokes its method operand.
func (op Opcode) IsCall() bool { return op == Call || op == CallVirt || op == NewObj }

// LookupOpcode finds an opcode by its mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// StackEffect returns how many values ins pops and pushes. ret is resolved
// against the routine the instruction belongs to.
func StackEffect(ins *Instruction, routine *Method) (pops, pushes int) {
	info := ins.Op.Info()
	pops, pushes = info.Pops, info.Pushes
	switch ins.Op {
	case Ret:
		pops = 0
		if routine != nil && !routine.IsVoid() {
			pops = 1
		}
	case Call, CallVirt:
		m, _ := ins.Operand.(*Method)
		if m == nil {
			return 0, 0
		}
		pops = m.ArgCount()
		pushes = 0
		if !m.IsVoid() {
			pushes = 1
		}
	case NewObj:
		m, _ := ins.Operand.(*Method)
		if m == nil {
			return 0, 1
		}
		pops = len(m.Params)
	}
	return pops, pushes
}
