package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/storedetect/internal/adapters/memory"
	"github.com/samirrijal/storedetect/internal/core/domain"
)

func TestPreferenceRepo_IsolatesCallerCopies(t *testing.T) {
	repo := memory.NewPreferenceRepo()
	ctx := context.Background()

	st := domain.NewConfirmationState()
	st.MarkConfirmed("s1")
	require.NoError(t, repo.Save(ctx, "dev-1", st))

	st.MarkConfirmed("s2")
	got, err := repo.Load(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, got.ConfirmedStoreIDs)

	got.ToggleFavorite("s1")
	again, _ := repo.Load(ctx, "dev-1")
	assert.Empty(t, again.FavoriteStoreIDs)

	require.NoError(t, repo.Delete(ctx, "dev-1"))
	empty, _ := repo.Load(ctx, "dev-1")
	assert.Empty(t, empty.ConfirmedStoreIDs)
}
