package utils

import "context"

const (
	workspacePathContextKeyConstant = commandContextKey("workspacePath")
)

type commandContextKey string

// CommandContextAccessor manages values stored in command execution contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithWorkspacePath attaches the resolved workspace path to the provided context.
func (accessor CommandContextAccessor) WithWorkspacePath(parentContext context.Context, workspacePath string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, workspacePathContextKeyConstant, workspacePath)
}

// WorkspacePath extracts the workspace path from the provided context.
func (accessor CommandContextAccessor) WorkspacePath(executionContext context.Context) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	workspacePath, workspacePathAvailable := executionContext.Value(workspacePathContextKeyConstant).(string)
	if !workspacePathAvailable || len(workspacePath) == 0 {
		return "", false
	}
	return workspacePath, true
}
