package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataflock/dataflock/pkg/analysis"
	"github.com/dataflock/dataflock/pkg/graph"
)

func cell(reads, writes []string) analysis.Cell {
	return analysis.Cell{
		Reads:  analysis.NewNameSet(reads...),
		Writes: analysis.NewNameSet(writes...),
	}
}

func TestLinkRecordsProducerAndConsumers(t *testing.T) {
	t.Parallel()

	index := graph.New()

	require.NoError(t, index.Link("c1", cell(nil, []string{"a"})))
	require.NoError(t, index.Link("c2", cell([]string{"a"}, []string{"b"})))

	producer, ok := index.Producer("a")
	require.True(t, ok)
	assert.Equal(t, "c1", producer)

	consumers := index.Consumers("a")
	assert.Contains(t, consumers, "c2")
	assert.Len(t, consumers, 1)
}

func TestLinkRejectsDuplicateProducer(t *testing.T) {
	t.Parallel()

	index := graph.New()

	require.NoError(t, index.Link("c1", cell(nil, []string{"a"})))

	err := index.Link("c2", cell(nil, []string{"a", "b"}))
	require.ErrorIs(t, err, graph.ErrProducerConflict)

	// The failed link must leave no trace.
	_, ok := index.Producer("b")
	assert.False(t, ok)
}

func TestConflictsSorted(t *testing.T) {
	t.Parallel()

	index := graph.New()

	require.NoError(t, index.Link("c1", cell(nil, []string{"b", "a"})))

	assert.Equal(t, []string{"a", "b"}, index.Conflicts(analysis.NewNameSet("b", "a", "z")))
	assert.Empty(t, index.Conflicts(analysis.NewNameSet("z")))
}

func TestUnlinkReversesLink(t *testing.T) {
	t.Parallel()

	index := graph.New()

	require.NoError(t, index.Link("c1", cell(nil, []string{"a"})))
	require.NoError(t, index.Link("c2", cell([]string{"a"}, []string{"b"})))

	index.Unlink("c2")

	assert.Empty(t, index.Consumers("a"))

	_, ok := index.Producer("b")
	assert.False(t, ok)

	// The variable can now be claimed again.
	require.NoError(t, index.Link("c3", cell(nil, []string{"b"})))
}

func TestWalkChain(t *testing.T) {
	t.Parallel()

	index := graph.New()

	require.NoError(t, index.Link("c1", cell(nil, []string{"a"})))
	require.NoError(t, index.Link("c2", cell([]string{"a"}, []string{"b"})))
	require.NoError(t, index.Link("c3", cell([]string{"b"}, []string{"c"})))

	assert.Equal(t, []string{"c1", "c2", "c3"}, index.Walk("c1"))
	assert.Equal(t, []string{"c2", "c3"}, index.Walk("c2"))
	assert.Equal(t, []string{"c3"}, index.Walk("c3"))
}

func TestWalkDiamond(t *testing.T) {
	t.Parallel()

	index := graph.New()

	require.NoError(t, index.Link("c1", cell(nil, []string{"a"})))
	require.NoError(t, index.Link("c2", cell([]string{"a"}, []string{"b"})))
	require.NoError(t, index.Link("c3", cell([]string{"a"}, []string{"c"})))
	require.NoError(t, index.Link("c4", cell([]string{"b", "c"}, []string{"d"})))

	walk := index.Walk("c1")

	assert.ElementsMatch(t, []string{"c1", "c2", "c3", "c4"}, walk)
	assert.Equal(t, "c1", walk[0])
}

func TestDependents(t *testing.T) {
	t.Parallel()

	index := graph.New()

	require.NoError(t, index.Link("c1", cell(nil, []string{"a"})))
	require.NoError(t, index.Link("c2", cell([]string{"a"}, []string{"b"})))
	require.NoError(t, index.Link("c3", cell([]string{"a"}, nil)))
	require.NoError(t, index.Link("c4", cell([]string{"b"}, nil)))

	deps := index.Dependents("c1")

	assert.Contains(t, deps, "c2")
	assert.Contains(t, deps, "c3")
	assert.NotContains(t, deps, "c4")
}

func TestWouldCycle(t *testing.T) {
	t.Parallel()

	index := graph.New()

	// a = c, b = a + 1 already linked; c = b closes the loop.
	require.NoError(t, index.Link("c1", cell([]string{"c"}, []string{"a"})))
	require.NoError(t, index.Link("c2", cell([]string{"a"}, []string{"b"})))

	assert.True(t, index.WouldCycle(cell([]string{"b"}, []string{"c"})))
	assert.False(t, index.WouldCycle(cell([]string{"b"}, []string{"d"})))
}

func TestWouldCycleSelf(t *testing.T) {
	t.Parallel()

	index := graph.New()

	assert.True(t, index.WouldCycle(cell([]string{"a"}, []string{"a"})))
}
