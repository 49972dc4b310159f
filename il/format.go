package il

import (
	"fmt"
	"strconv"
	"strings"
)

// OperandText renders an operand the way listings and the assembler
// spell it.
func OperandText(ins *Instruction) string {
	switch v := ins.Operand.(type) {
	case nil:
		return ""
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	case bool:
		return strconv.FormatBool(v)
	case string:
		return strconv.Quote(v)
	case *Label:
		return v.String()
	case *Local:
		return strconv.Itoa(v.Index)
	case *Method:
		return v.String()
	case *Field:
		return v.String()
	case *Type:
		return v.Name
	}
	return fmt.Sprint(ins.Operand)
}

// Format renders an instruction list with labels and block markers.
func Format(instrs []*Instruction) string {
	var b strings.Builder
	writeInstrs(&b, instrs, 1)
	return b.String()
}

// FormatBody renders a body's locals and instructions.
func FormatBody(body *Body) string {
	var b strings.Builder
	for _, l := range body.Locals {
		name := l.Name
		if name == "" {
			name = fmt.Sprintf("V_%d", l.Index)
		}
		fmt.Fprintf(&b, "  .local %s %s\n", l.Type, name)
	}
	writeInstrs(&b, body.Instrs, 1)
	return b.String()
}

func writeInstrs(b *strings.Builder, instrs []*Instruction, depth int) {
	indent := func() string { return strings.Repeat("  ", depth) }
	for pc, ins := range instrs {
		for _, blk := range ins.Blocks {
			switch blk.Kind {
			case BeginTry:
				fmt.Fprintf(b, "%s.try {\n", indent())
				depth++
			case BeginCatch:
				depth--
				fmt.Fprintf(b, "%s} .catch %s {\n", indent(), blk.CatchType)
				depth++
			case BeginFinally:
				depth--
				fmt.Fprintf(b, "%s} .finally {\n", indent())
				depth++
			}
		}
		for _, l := range ins.Labels {
			fmt.Fprintf(b, "%s:\n", l)
		}
		fmt.Fprintf(b, "%sIL_%04x: %s", indent(), pc, ins.Op)
		if op := OperandText(ins); op != "" {
			b.WriteByte(' ')
			b.WriteString(op)
		}
		b.WriteByte('\n')
		for _, blk := range ins.Blocks {
			if blk.Kind == EndBlock {
				if depth > 1 {
					depth--
				}
				fmt.Fprintf(b, "%s}\n", indent())
			}
		}
	}
}

// String renders the finalized code, including its locals and the
// region table.
func (c *Code) String() string {
	var b strings.Builder
	if c.Method != nil {
		fmt.Fprintf(&b, "// %s maxstack=%d\n", c.Method, c.MaxStack)
	}
	for _, l := range c.Locals {
		name := l.Name
		if name == "" {
			name = fmt.Sprintf("V_%d", l.Index)
		}
		fmt.Fprintf(&b, "  .local %s %s\n", l.Type, name)
	}
	writeInstrs(&b, c.source, 1)
	for _, r := range c.Regions {
		fmt.Fprintf(&b, "// %s try IL_%04x..IL_%04x handler IL_%04x..IL_%04x", r.Kind, r.TryStart, r.TryEnd, r.HandlerStart, r.HandlerEnd)
		if r.Kind == RegionCatch {
			fmt.Fprintf(&b, " type %s", r.CatchType)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
