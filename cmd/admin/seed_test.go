package main

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"docvault-backend/internal/access"
	"docvault-backend/internal/users"
)

func TestSeedUsersRoles(t *testing.T) {
	repo := users.NewMemoryRepo()
	svc := users.NewService(repo)
	svc.HashCost = bcrypt.MinCost
	ctx := context.Background()

	created, err := seedUsers(ctx, svc, 6, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 6, created)

	third, err := repo.GetByEmail(ctx, "user003@document.com")
	require.NoError(t, err)
	assert.Equal(t, access.RoleEditor, third.Role)
	assert.True(t, third.CanTriggerIngestion)

	sixth, err := repo.GetByEmail(ctx, "user006@document.com")
	require.NoError(t, err)
	assert.Equal(t, access.RoleEditor, sixth.Role)
	assert.False(t, sixth.CanTriggerIngestion)

	first, err := repo.GetByEmail(ctx, "user001@document.com")
	require.NoError(t, err)
	assert.Equal(t, access.RoleViewer, first.Role)
}

func TestSeedUsersSkipsExisting(t *testing.T) {
	svc := users.NewService(users.NewMemoryRepo())
	svc.HashCost = bcrypt.MinCost
	ctx := context.Background()

	_, err := seedUsers(ctx, svc, 2, io.Discard)
	require.NoError(t, err)
	created, err := seedUsers(ctx, svc, 3, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestSeedUsersRejectsNegative(t *testing.T) {
	_, err := seedUsers(context.Background(), users.NewService(users.NewMemoryRepo()), -1, io.Discard)
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["seed"])
}
