package workflow_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/temirov/gitpublish/cmd/cli/publishing"
	workflowcmd "github.com/temirov/gitpublish/cmd/cli/workflow"
)

const (
	testValidWorkflowConstant   = "steps:\n  - operation: publish\n"
	testInvalidWorkflowConstant = "steps:\n  - operation: bind-remote\n    with:\n      endpoint: origin\n"
)

func TestWorkflowCommandValidatesBeforeOpeningSession(testInstance *testing.T) {
	workflowDirectory := testInstance.TempDir()
	validPath := filepath.Join(workflowDirectory, "valid.yaml")
	invalidPath := filepath.Join(workflowDirectory, "invalid.yaml")
	require.NoError(testInstance, os.WriteFile(validPath, []byte(testValidWorkflowConstant), 0o600))
	require.NoError(testInstance, os.WriteFile(invalidPath, []byte(testInvalidWorkflowConstant), 0o600))

	testCases := []struct {
		name      string
		arguments []string
	}{
		{name: "missing_file", arguments: []string{filepath.Join(workflowDirectory, "absent.yaml")}},
		{name: "missing_required_option", arguments: []string{invalidPath}},
		{name: "negative_retry_flag", arguments: []string{validPath, "--retry-attempts", "-2"}},
		{name: "no_file_argument", arguments: []string{}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			sessionsOpened := 0
			builder := &workflowcmd.CommandBuilder{
				SessionProvider: func(*cobra.Command) (*publishing.Session, error) {
					sessionsOpened++
					return &publishing.Session{}, nil
				},
				ConfigurationProvider: func() publishing.CommandConfiguration {
					return publishing.CommandConfiguration{RetryAttempts: 1}
				},
			}
			command, buildError := builder.Build()
			require.NoError(subtest, buildError)

			command.SetArgs(testCase.arguments)
			command.SilenceUsage = true
			command.SilenceErrors = true
			require.Error(subtest, command.Execute())
			require.Zero(subtest, sessionsOpened)
		})
	}
}
