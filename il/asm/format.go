package asm

import (
	"fmt"
	"strings"

	"github.com/wippyai/ilpatch/il"
)

// Signature renders a method declaration header the way Parse reads it.
func Signature(m *il.Method) string {
	var b strings.Builder
	b.WriteString("method ")
	if m.Static {
		b.WriteString("static ")
	}
	if m.Virtual {
		b.WriteString("virtual ")
	}
	fmt.Fprintf(&b, "%s %s(", m.Return, m.FullName())
	for i, p := range m.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		fmt.Fprintf(&b, "%s %s", p.Type, name)
		if p.Target != "" {
			b.WriteString("=" + p.Target)
		}
	}
	b.WriteByte(')')
	return b.String()
}

// FormatRoutine renders body as a method declaration that Parse accepts.
// Feeding the text back yields the same listing.
func FormatRoutine(body *il.Body) string {
	return Signature(body.Method) + " {\n" + il.FormatBody(body) + "}\n"
}
