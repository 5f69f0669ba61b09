package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/campus_forum_server/internal/model"
	"github.com/qs3c/campus_forum_server/internal/testutil"
)

func TestUserRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	created := testutil.TestUser(t, db, testutil.WithCollege(7))

	found, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Username, found.Username)
	require.NotNil(t, found.CollegeID)
	assert.Equal(t, int64(7), *found.CollegeID)
	assert.Equal(t, model.RoleStudent, found.Role)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	_, err := repo.GetByID(context.Background(), 99999)
	assert.Error(t, err)
}
