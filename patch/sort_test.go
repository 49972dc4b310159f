package patch

import (
	"sync"
	"testing"

	"github.com/wippyai/ilpatch/il"
)

func owned(name string, priority int) *Patch {
	p := NewPrefix(il.NewMethod(il.NewClass(name, "test", nil), "Pre", il.Void))
	p.Owner = name
	p.Priority = priority
	return p
}

func owners(patches []*Patch) []string {
	out := make([]string, len(patches))
	for i, p := range patches {
		out[i] = p.Owner
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSort(t *testing.T) {
	tests := []struct {
		name  string
		build func() []*Patch
		want  []string
	}{
		{
			name: "registration order breaks ties",
			build: func() []*Patch {
				return []*Patch{owned("a", 400), owned("b", 400), owned("c", 400)}
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "higher priority first",
			build: func() []*Patch {
				return []*Patch{owned("low", 100), owned("high", 800), owned("normal", 400)}
			},
			want: []string{"high", "normal", "low"},
		},
		{
			name: "before overrides priority",
			build: func() []*Patch {
				one := owned("one", 400)
				two := owned("two", 800)
				three := owned("three", 400)
				four := owned("four", 400)
				four.Before = []string{"two"}
				return []*Patch{one, two, three, four}
			},
			want: []string{"one", "three", "four", "two"},
		},
		{
			name: "after overrides priority",
			build: func() []*Patch {
				first := owned("first", 100)
				late := owned("late", 800)
				late.After = []string{"first"}
				return []*Patch{first, late}
			},
			want: []string{"first", "late"},
		},
		{
			name: "unknown owners are ignored",
			build: func() []*Patch {
				a := owned("a", 400)
				a.After = []string{"nobody"}
				return []*Patch{a, owned("b", 500)}
			},
			want: []string{"b", "a"},
		},
		{
			name: "cycle broken at earliest registration",
			build: func() []*Patch {
				x := owned("x", 400)
				y := owned("y", 400)
				x.Before = []string{"y"}
				y.Before = []string{"x"}
				return []*Patch{x, y}
			},
			want: []string{"x", "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := owners(Sorted(tt.build()...).Prefixes)
			if !equalStrings(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSort_Deterministic(t *testing.T) {
	build := func() *Collection {
		c := NewCollection()
		a := owned("a", 400)
		b := owned("b", 400)
		b.Before = []string{"a"}
		c.Add(a, b, owned("c", 600), owned("d", 400))
		return c
	}
	want := owners(build().Snapshot().Prefixes)
	for i := 0; i < 20; i++ {
		if got := owners(build().Snapshot().Prefixes); !equalStrings(got, want) {
			t.Fatalf("run %d: order = %v, want %v", i, got, want)
		}
	}
}

func TestCollection_SnapshotIsPointInTime(t *testing.T) {
	c := NewCollection()
	c.Add(owned("a", 400))
	snap := c.Snapshot()
	c.Add(owned("b", 400))

	if len(snap.Prefixes) != 1 {
		t.Errorf("snapshot observed a later registration: %v", owners(snap.Prefixes))
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestCollection_AddCopies(t *testing.T) {
	c := NewCollection()
	p := owned("a", 400)
	c.Add(p)
	p.Priority = 1
	p.Owner = "changed"

	got := c.Snapshot().Prefixes[0]
	if got.Owner != "a" || got.Priority != 400 {
		t.Errorf("collection shares the caller's patch: %+v", got)
	}
}

func TestCollection_Remove(t *testing.T) {
	c := NewCollection()
	post := NewPostfix(il.NewMethod(il.NewClass("P", "test", nil), "Post", il.Void))
	post.Owner = "mod"
	c.Add(owned("mod", 400), owned("other", 400), post)

	if n := c.Remove("mod"); n != 2 {
		t.Fatalf("Remove = %d, want 2", n)
	}
	snap := c.Snapshot()
	if len(snap.Prefixes) != 1 || snap.Prefixes[0].Owner != "other" || len(snap.Postfixes) != 0 {
		t.Errorf("unexpected snapshot after Remove: prefixes %v, postfixes %d", owners(snap.Prefixes), len(snap.Postfixes))
	}
}

func TestCollection_ConcurrentAddAndSnapshot(t *testing.T) {
	c := NewCollection()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Add(owned("p", 400))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap := c.Snapshot()
				if snap.Len() != len(snap.Prefixes) {
					t.Error("snapshot mixed kinds")
				}
			}
		}()
	}
	wg.Wait()
	if c.Len() != 400 {
		t.Errorf("Len = %d, want 400", c.Len())
	}
}

func TestKind_String(t *testing.T) {
	for _, k := range []Kind{Prefix, Postfix, Transpiler, Finalizer} {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if _, ok := ParseKind("around"); ok {
		t.Error("ParseKind accepted an unknown kind")
	}
}
