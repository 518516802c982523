package utils_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gitpublish/internal/utils"
)

func TestCommandContextAccessorWorkspacePath(testInstance *testing.T) {
	accessor := utils.NewCommandContextAccessor()

	_, available := accessor.WorkspacePath(context.Background())
	require.False(testInstance, available)

	_, available = accessor.WorkspacePath(accessor.WithWorkspacePath(context.Background(), ""))
	require.False(testInstance, available)

	workspacePath, available := accessor.WorkspacePath(accessor.WithWorkspacePath(context.Background(), "/srv/project"))
	require.True(testInstance, available)
	require.Equal(testInstance, "/srv/project", workspacePath)
}
