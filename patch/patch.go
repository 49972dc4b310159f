package patch

import (
	"sync"

	"github.com/wippyai/ilpatch/il"
)

// DefaultPriority is the priority of patches that do not set one.
const DefaultPriority = 400

// TranspileFunc rewrites a routine's instruction list. Returning nil keeps
// the input list.
type TranspileFunc func(ctx *TranspileContext, instrs []*il.Instruction) ([]*il.Instruction, error)

// Patch is one patch attached to a routine.
//
// Prefix, postfix and finalizer patches are static methods whose parameter
// names select what they receive. Transpilers carry a TranspileFunc instead.
type Patch struct {
	Method    *il.Method
	Transpile TranspileFunc
	// Name identifies a transpiler in logs and errors.
	Name string
	// Owner groups patches for ordering constraints and removal.
	Owner string
	// Before and After list owners this patch must run before or after.
	Before   []string
	After    []string
	Priority int
	Kind     Kind
	index    int
}

// NewPrefix creates a prefix patch with the default priority.
func NewPrefix(m *il.Method) *Patch {
	return &Patch{Kind: Prefix, Method: m, Priority: DefaultPriority}
}

// NewPostfix creates a postfix patch with the default priority.
func NewPostfix(m *il.Method) *Patch {
	return &Patch{Kind: Postfix, Method: m, Priority: DefaultPriority}
}

// NewFinalizer creates a finalizer patch with the default priority.
func NewFinalizer(m *il.Method) *Patch {
	return &Patch{Kind: Finalizer, Method: m, Priority: DefaultPriority}
}

// NewTranspiler creates a transpiler patch with the default priority.
func NewTranspiler(name string, fn TranspileFunc) *Patch {
	return &Patch{Kind: Transpiler, Name: name, Transpile: fn, Priority: DefaultPriority}
}

// String names the patch for logs and errors.
func (p *Patch) String() string {
	switch {
	case p.Method != nil:
		return p.Method.String()
	case p.Name != "":
		return p.Name
	}
	return p.Kind.String()
}

// Collection holds the unsorted patches of one routine. It is safe for
// concurrent use; rewrites read it through Snapshot.
type Collection struct {
	lists [kindCount][]*Patch
	next  int
	mu    sync.Mutex
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Add registers copies of patches. Registration order breaks priority ties.
func (c *Collection) Add(patches ...*Patch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range patches {
		if p == nil || p.Kind >= kindCount {
			continue
		}
		cp := *p
		cp.Before = append([]string(nil), p.Before...)
		cp.After = append([]string(nil), p.After...)
		cp.index = c.next
		c.next++
		c.lists[cp.Kind] = append(c.lists[cp.Kind], &cp)
	}
}

// Remove drops every patch registered by owner and returns how many were
// removed.
func (c *Collection) Remove(owner string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, list := range c.lists {
		keep := list[:0]
		for _, p := range list {
			if p.Owner == owner {
				removed++
				continue
			}
			keep = append(keep, p)
		}
		c.lists[k] = keep
	}
	return removed
}

// Len returns the number of registered patches.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, list := range c.lists {
		n += len(list)
	}
	return n
}

// Snapshot copies all four lists in one critical section and orders them.
// Patches added afterwards are not observed by the returned snapshot.
func (c *Collection) Snapshot() *Snapshot {
	var lists [kindCount][]*Patch
	c.mu.Lock()
	for k, list := range c.lists {
		lists[k] = append([]*Patch(nil), list...)
	}
	c.mu.Unlock()

	return &Snapshot{
		Prefixes:    Sort(lists[Prefix]),
		Postfixes:   Sort(lists[Postfix]),
		Transpilers: Sort(lists[Transpiler]),
		Finalizers:  Sort(lists[Finalizer]),
	}
}

// Snapshot is a point-in-time, ordered view of a routine's patches. The
// engine applies each list in the given order without re-sorting.
type Snapshot struct {
	Prefixes    []*Patch
	Postfixes   []*Patch
	Transpilers []*Patch
	Finalizers  []*Patch
}

// Sorted groups patches by kind and orders each group.
func Sorted(patches ...*Patch) *Snapshot {
	c := NewCollection()
	c.Add(patches...)
	return c.Snapshot()
}

// Empty reports whether the snapshot holds no patches.
func (s *Snapshot) Empty() bool {
	return s == nil || s.Len() == 0
}

// Len returns the total number of patches.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Prefixes) + len(s.Postfixes) + len(s.Transpilers) + len(s.Finalizers)
}

func (s *Snapshot) all() []*Patch {
	out := make([]*Patch, 0, s.Len())
	out = append(out, s.Prefixes...)
	out = append(out, s.Postfixes...)
	out = append(out, s.Finalizers...)
	return append(out, s.Transpilers...)
}
