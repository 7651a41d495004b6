package analysis

// UsageKind classifies how a variable name is used at one point in the
// source.
type UsageKind uint8

// Usage kinds, in the order they are meaningful to scope resolution.
const (
	// UsageRead is a plain reference to a name.
	UsageRead UsageKind = iota
	// UsageSet is a binding: assignment target, def/class name, parameter,
	// loop or context-manager target.
	UsageSet
	// UsageDel is a deletion that is guaranteed to execute.
	UsageDel
)

// Usage records one use of a variable name, in source order.
type Usage struct {
	Name string
	Kind UsageKind
}

// scope is one lexical scope: the module, a function body, or a class
// body. Loops, conditionals, context managers and try/except/finally do
// not open scopes; their usages land in the enclosing scope.
type scope struct {
	parent int // index into ScopeTree.scopes, -1 for the module scope
	usages []Usage
}

// ScopeTree is the transient scope structure built while walking a cell's
// syntax tree. Scope 0 is always the module scope.
type ScopeTree struct {
	scopes []scope
}

func newScopeTree() *ScopeTree {
	return &ScopeTree{scopes: []scope{{parent: -1}}}
}

// addScope appends a child scope of parent and returns its index.
func (t *ScopeTree) addScope(parent int) int {
	t.scopes = append(t.scopes, scope{parent: parent})

	return len(t.scopes) - 1
}

// record appends a usage to the given scope.
func (t *ScopeTree) record(scopeIdx int, name string, kind UsageKind) {
	t.scopes[scopeIdx].usages = append(t.scopes[scopeIdx].usages, Usage{Name: name, Kind: kind})
}

// ModuleSets returns the names bound at the top level: these are the
// cell's writes.
func (t *ScopeTree) ModuleSets() NameSet {
	sets := NameSet{}

	for _, u := range t.scopes[0].usages {
		if u.Kind == UsageSet {
			sets.Add(u.Name)
		}
	}

	return sets
}

// FreeVars resolves every scope's usages and returns the names that are
// read (or deleted) without a visible binding and are not builtins: the
// cell's reads.
//
// Resolution is order-sensitive within a scope (use before def counts as
// free) but order-insensitive across the ancestor chain (closure
// semantics: any SET anywhere in an ancestor binds the name).
func (t *ScopeTree) FreeVars() NameSet {
	// Precompute, per scope, the names it SETs anywhere.
	setsAnywhere := make([]NameSet, len(t.scopes))

	for i, s := range t.scopes {
		sets := NameSet{}

		for _, u := range s.usages {
			if u.Kind == UsageSet {
				sets.Add(u.Name)
			}
		}

		setsAnywhere[i] = sets
	}

	free := NameSet{}

	for i, s := range t.scopes {
		defined := NameSet{}

		for _, u := range s.usages {
			switch u.Kind {
			case UsageSet:
				defined.Add(u.Name)
			case UsageDel:
				if defined.Has(u.Name) {
					delete(defined, u.Name)

					continue
				}

				// Deleting an unbound name is a use, same rule as a read.
				if t.isFree(i, u.Name, setsAnywhere) {
					free.Add(u.Name)
				}
			case UsageRead:
				if defined.Has(u.Name) {
					continue
				}

				if t.isFree(i, u.Name, setsAnywhere) {
					free.Add(u.Name)
				}
			}
		}
	}

	return free
}

// isFree reports whether name, unbound in scopeIdx at the point of use,
// resolves to neither a builtin nor an ancestor binding.
func (t *ScopeTree) isFree(scopeIdx int, name string, setsAnywhere []NameSet) bool {
	if IsBuiltin(name) {
		return false
	}

	for parent := t.scopes[scopeIdx].parent; parent >= 0; parent = t.scopes[parent].parent {
		if setsAnywhere[parent].Has(name) {
			return false
		}
	}

	return true
}
