package obs

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsBothModes(t *testing.T) {
	_, err := New(false)
	require.NoError(t, err)
	_, err = New(true)
	require.NoError(t, err)
}

func TestCauseChainWalksWrappedErrors(t *testing.T) {
	root := errors.New("root cause")
	wrapped := errors.Wrap(root, "outer context")

	chain := causeChain(wrapped)
	require.Len(t, chain, 2)
	require.Contains(t, chain[0], "outer context")
	require.Contains(t, chain[1], "root cause")
}

func TestCauseChainSingleError(t *testing.T) {
	err := errors.New("standalone")
	require.Equal(t, []string{"standalone"}, causeChain(err))
}
