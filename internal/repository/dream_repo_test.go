package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/testutil"
)

func TestDreamRepository_ListAndCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewDreamRepository(db)
	user := testutil.TestUser(t, db)

	testutil.TestDream(t, db, user.ID)
	testutil.TestDream(t, db, user.ID, func(d *model.Dream) { d.Priority = 9 })
	testutil.TestDream(t, db, user.ID, testutil.WithDreamStatus(model.DreamAchieved))

	active, err := repo.CountActive(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)

	all, err := repo.ListByUser(user.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 9, all[0].Priority)

	achieved, err := repo.ListByUser(user.ID, model.DreamAchieved)
	require.NoError(t, err)
	assert.Len(t, achieved, 1)
}

func TestDreamRepository_AdjustReflectionCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewDreamRepository(db)
	user := testutil.TestUser(t, db)
	dream := testutil.TestDream(t, db, user.ID)

	require.NoError(t, repo.AdjustReflectionCount(dream.ID, 1))
	require.NoError(t, repo.AdjustReflectionCount(dream.ID, 1))
	require.NoError(t, repo.AdjustReflectionCount(dream.ID, -1))
	found, _ := repo.GetByID(dream.ID)
	assert.Equal(t, 1, found.ReflectionCount)

	require.NoError(t, repo.AdjustReflectionCount(dream.ID, -5))
	found, _ = repo.GetByID(dream.ID)
	assert.Equal(t, 0, found.ReflectionCount)
}

func TestDreamRepository_DeleteDetachesReflections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewDreamRepository(db)
	user := testutil.TestUser(t, db)
	dream := testutil.TestDream(t, db, user.ID)
	r := testutil.TestReflection(t, db, user.ID, testutil.WithDream(dream.ID))

	require.NoError(t, repo.Delete(dream.ID))

	_, err := repo.GetByID(dream.ID)
	assert.Error(t, err)

	found, err := NewReflectionRepository(db).GetByID(r.ID)
	require.NoError(t, err)
	assert.Nil(t, found.DreamID)
}
