package analysis

import "sort"

// NameSet is a set of variable names.
type NameSet map[string]struct{}

// NewNameSet builds a NameSet from the given names.
func NewNameSet(names ...string) NameSet {
	set := make(NameSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}

	return set
}

// Add inserts name into the set.
func (s NameSet) Add(name string) {
	s[name] = struct{}{}
}

// Has reports whether name is in the set.
func (s NameSet) Has(name string) bool {
	_, ok := s[name]

	return ok
}

// Sorted returns the names in lexicographic order.
func (s NameSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Intersects reports whether the two sets share any name.
func (s NameSet) Intersects(other NameSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}

	for name := range small {
		if large.Has(name) {
			return true
		}
	}

	return false
}

// Cell is an immutable unit of user code together with the variable names
// it reads from and writes to the shared namespace. Reads are the free
// variables of the code; Writes are its top-level bindings. Cells are
// produced by Analyze and never mutated: an update replaces the whole cell.
type Cell struct {
	Code   string
	Reads  NameSet
	Writes NameSet
}

// Equal reports cell equality, which is defined on the source code alone.
func (c Cell) Equal(other Cell) bool {
	return c.Code == other.Code
}
