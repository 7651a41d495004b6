// Package graph maintains the bidirectional variable index of a cell
// graph: which cell produces each name and which cells consume it. The
// dependency edges between cells are derived from this index, never
// stored; cells are referenced by opaque identifiers only.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dataflock/dataflock/pkg/analysis"
)

// ErrProducerConflict indicates a link would give a variable a second
// producer.
var ErrProducerConflict = errors.New("variable already has a producer")

// Index holds the producer and consumer maps for one runner. It is not
// safe for concurrent use; the owning runner serializes access.
type Index struct {
	// producer maps a variable name to the one cell that writes it.
	producer map[string]string
	// consumers maps a variable name to the cells that read it.
	consumers map[string]map[string]struct{}
	// reads and writes mirror the linked cells' name sets so the index
	// can traverse edges without reaching back into the runner.
	reads  map[string]analysis.NameSet
	writes map[string]analysis.NameSet
}

// New returns an empty index.
func New() *Index {
	return &Index{
		producer:  map[string]string{},
		consumers: map[string]map[string]struct{}{},
		reads:     map[string]analysis.NameSet{},
		writes:    map[string]analysis.NameSet{},
	}
}

// Conflicts returns the names in writes that already have a producer,
// sorted for stable error messages.
func (ix *Index) Conflicts(writes analysis.NameSet) []string {
	var conflicts []string

	for name := range writes {
		if _, taken := ix.producer[name]; taken {
			conflicts = append(conflicts, name)
		}
	}

	sort.Strings(conflicts)

	return conflicts
}

// Link records cellID as the producer of every write-name and a consumer
// of every read-name of cell. Linking fails if any write-name already has
// a producer; the index is left untouched on failure.
func (ix *Index) Link(cellID string, cell analysis.Cell) error {
	if conflicts := ix.Conflicts(cell.Writes); len(conflicts) > 0 {
		return fmt.Errorf("%w: %v", ErrProducerConflict, conflicts)
	}

	for name := range cell.Writes {
		ix.producer[name] = cellID
	}

	for name := range cell.Reads {
		set, ok := ix.consumers[name]
		if !ok {
			set = map[string]struct{}{}
			ix.consumers[name] = set
		}

		set[cellID] = struct{}{}
	}

	ix.reads[cellID] = cell.Reads
	ix.writes[cellID] = cell.Writes

	return nil
}

// Unlink reverses Link for cellID. Consumers that lose their producer are
// left in place: their cells still exist, they are merely broken until a
// new producer appears.
func (ix *Index) Unlink(cellID string) {
	for name := range ix.writes[cellID] {
		delete(ix.producer, name)
	}

	for name := range ix.reads[cellID] {
		set := ix.consumers[name]
		delete(set, cellID)

		if len(set) == 0 {
			delete(ix.consumers, name)
		}
	}

	delete(ix.reads, cellID)
	delete(ix.writes, cellID)
}

// Producer returns the cell producing name, if any.
func (ix *Index) Producer(name string) (string, bool) {
	cellID, ok := ix.producer[name]

	return cellID, ok
}

// Consumers returns the set of cells reading name.
func (ix *Index) Consumers(name string) map[string]struct{} {
	out := make(map[string]struct{}, len(ix.consumers[name]))
	for cellID := range ix.consumers[name] {
		out[cellID] = struct{}{}
	}

	return out
}

// Dependents returns the cells directly downstream of cellID: every
// consumer of every name it writes.
func (ix *Index) Dependents(cellID string) map[string]struct{} {
	deps := map[string]struct{}{}

	for name := range ix.writes[cellID] {
		for consumer := range ix.consumers[name] {
			deps[consumer] = struct{}{}
		}
	}

	return deps
}

// Walk returns cellID and every transitive dependent, in depth-first
// order. The relative order of siblings is unspecified.
func (ix *Index) Walk(cellID string) []string {
	visited := map[string]struct{}{}
	order := make([]string, 0, 1)
	stack := []string{cellID}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[current]; seen {
			continue
		}

		visited[current] = struct{}{}
		order = append(order, current)

		for dep := range ix.Dependents(current) {
			if _, seen := visited[dep]; !seen {
				stack = append(stack, dep)
			}
		}
	}

	return order
}

// WouldCycle reports whether linking cell would make the graph cyclic: a
// cycle forms exactly when some consumer of the cell's writes reaches,
// downstream, a producer of the cell's reads. A cell that reads its own
// writes is a one-cell cycle.
func (ix *Index) WouldCycle(cell analysis.Cell) bool {
	if cell.Writes.Intersects(cell.Reads) {
		return true
	}

	for name := range cell.Writes {
		for start := range ix.consumers[name] {
			for _, reached := range ix.Walk(start) {
				if ix.writes[reached].Intersects(cell.Reads) {
					return true
				}
			}
		}
	}

	return false
}
