package loader

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atsika/driverhub/digest"
)

func TestCurrentNilBeforeFirstSwap(t *testing.T) {
	l := New(zap.NewNop(), nil)
	require.Nil(t, l.Current())
}

func TestSwapToMissingLibraryLeavesCurrentUntouched(t *testing.T) {
	l := New(zap.NewNop(), nil)

	err := l.Swap("/nonexistent/path/to/libdriver.so", digest.Of([]byte("x")))
	require.Error(t, err)
	require.Nil(t, l.Current())
}

func TestCloseOnEmptyLoaderIsNoop(t *testing.T) {
	l := New(zap.NewNop(), nil)
	l.Close()
	require.Nil(t, l.Current())
}
