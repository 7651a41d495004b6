package pylang_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataflock/dataflock/pkg/pylang"
)

func TestParseValid(t *testing.T) {
	t.Parallel()

	tree, err := pylang.Parse(context.Background(), []byte("a = 1\nb = a + 1\n"))
	require.NoError(t, err)

	defer tree.Close()

	root := tree.RootNode()
	assert.Equal(t, "module", root.Type())
	assert.EqualValues(t, 2, root.NamedChildCount())
}

func TestParseSyntaxError(t *testing.T) {
	t.Parallel()

	// The parser recovers from malformed input two ways: ERROR subtrees
	// around unexpected tokens and zero-width MISSING tokens for expected
	// ones. Both must be rejected.
	cases := map[string]string{
		"missing token":    "def f(:\n    pass",
		"unexpected token": "a = = 1",
		"unclosed paren":   "a = (1 + 2",
		"stray operator":   "a = 1 +",
	}

	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := pylang.Parse(context.Background(), []byte(src))
			require.ErrorIs(t, err, pylang.ErrSyntax)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	tree, err := pylang.Parse(context.Background(), nil)
	require.NoError(t, err)

	defer tree.Close()

	assert.EqualValues(t, 0, tree.RootNode().NamedChildCount())
}
