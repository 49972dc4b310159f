package patch

import (
	"github.com/wippyai/ilpatch/il"
)

// Names of the binding environment's slots and of the special patch
// parameters.
const (
	RunOriginalName    = "__runOriginal"
	ResultName         = "__result"
	ExceptionName      = "__exception"
	StateName          = "__state"
	InstanceName       = "__instance"
	OriginalMethodName = "__originalMethod"
	FieldPrefix        = "___"
	ArgumentPrefix     = "__"
)

// Env maps symbolic names to the locals of the routine being rewritten.
// Slots are declared on first use and shared by every patch that names
// them, except state, which is private to the patch's declaring type.
type Env struct {
	body  *il.Body
	slots map[string]*il.Local
	state map[*il.Type]*il.Local
}

func newEnv(body *il.Body) *Env {
	return &Env{
		body:  body,
		slots: make(map[string]*il.Local),
		state: make(map[*il.Type]*il.Local),
	}
}

// Declare returns the slot named name, declaring it with type t on first
// use.
func (e *Env) Declare(name string, t *il.Type) *il.Local {
	if l, ok := e.slots[name]; ok {
		return l
	}
	l := e.body.DeclareLocal(t, name)
	e.slots[name] = l
	return l
}

// Lookup returns an already declared slot.
func (e *Env) Lookup(name string) (*il.Local, bool) {
	l, ok := e.slots[name]
	return l, ok
}

// State returns the state slot of owner, declaring it with type t on first
// use. The second result is false when an existing slot has another type.
func (e *Env) State(owner *il.Type, t *il.Type) (*il.Local, bool) {
	if l, ok := e.state[owner]; ok {
		return l, l.Type == t
	}
	name := StateName
	if owner != nil {
		name += "@" + qualifiedName(owner)
	}
	l := e.body.DeclareLocal(t, name)
	e.state[owner] = l
	return l, true
}

func qualifiedName(t *il.Type) string {
	if t.Module == "" {
		return t.Name
	}
	return t.Module + "." + t.Name
}
