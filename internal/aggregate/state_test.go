package aggregate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStateStoreNamesShareFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	fiveMin := &FileStateStore{Path: path, Name: "aggregator:300"}
	hourly := &FileStateStore{Path: path, Name: "aggregator:3600"}

	_, ok, err := fiveMin.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, fiveMin.Save(ctx, 1200))
	require.NoError(t, hourly.Save(ctx, 3600))
	require.NoError(t, fiveMin.Save(ctx, 1500))

	last, ok, err := fiveMin.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1500), last)

	last, ok, err = hourly.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3600), last)
}
