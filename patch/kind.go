package patch

// Kind is the role a patch plays in a rewritten routine. The set is closed;
// each kind has its own injection step.
type Kind uint8

const (
	// Prefix runs before the original body and may skip it.
	Prefix Kind = iota
	// Postfix runs at the single exit, optionally chaining the result.
	Postfix
	// Transpiler rewrites the raw instruction list before injection.
	Transpiler
	// Finalizer runs on every exit, including exceptional ones.
	Finalizer

	kindCount
)

var kindNames = [...]string{
	Prefix:     "prefix",
	Postfix:    "postfix",
	Transpiler: "transpiler",
	Finalizer:  "finalizer",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}
