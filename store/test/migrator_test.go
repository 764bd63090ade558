package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	initialized, err := ts.GetDriver().IsInitialized(ctx)
	require.NoError(t, err)
	require.True(t, initialized)

	require.NoError(t, ts.Migrate(ctx))

	var count int
	require.NoError(t, ts.GetDriver().GetDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM migration_history").Scan(&count))
	require.Equal(t, 1, count)
}
