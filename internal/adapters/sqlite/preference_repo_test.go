package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/storedetect/internal/adapters/sqlite"
	"github.com/samirrijal/storedetect/internal/core/domain"
)

func TestPreferenceRepo_RoundTrip(t *testing.T) {
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	empty, err := repo.Load(ctx, "dev-1")
	require.NoError(t, err)
	assert.Empty(t, empty.ConfirmedStoreIDs)
	assert.Nil(t, empty.DefaultStoreID)

	st := domain.NewConfirmationState()
	st.MarkConfirmed("s2")
	st.MarkConfirmed("s1")
	st.ToggleFavorite("s3")
	st.AddRecent("s1")
	st.AddRecent("s2")
	st.SetDefault("s2")
	require.NoError(t, repo.Save(ctx, "dev-1", st))

	got, err := repo.Load(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, got.ConfirmedStoreIDs)
	assert.Equal(t, []string{"s3"}, got.FavoriteStoreIDs)
	assert.Equal(t, []string{"s2", "s1"}, got.RecentStoreIDs)
	require.NotNil(t, got.DefaultStoreID)
	assert.Equal(t, "s2", *got.DefaultStoreID)

	other, err := repo.Load(ctx, "dev-2")
	require.NoError(t, err)
	assert.Empty(t, other.ConfirmedStoreIDs)
}

func TestPreferenceRepo_SaveOverwritesAndDelete(t *testing.T) {
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	st := domain.NewConfirmationState()
	st.SetDefault("s1")
	require.NoError(t, repo.Save(ctx, "dev-1", st))

	st.ClearDefault()
	st.ToggleFavorite("s9")
	require.NoError(t, repo.Save(ctx, "dev-1", st))

	got, err := repo.Load(ctx, "dev-1")
	require.NoError(t, err)
	assert.Nil(t, got.DefaultStoreID)
	assert.Equal(t, []string{"s9"}, got.FavoriteStoreIDs)

	require.NoError(t, repo.Delete(ctx, "dev-1"))
	got, err = repo.Load(ctx, "dev-1")
	require.NoError(t, err)
	assert.Empty(t, got.FavoriteStoreIDs)
	assert.NoError(t, repo.Ping(ctx))
}
