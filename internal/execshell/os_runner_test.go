package execshell_test

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gitpublish/internal/execshell"
)

const testShellExecutableConstant = execshell.CommandName("sh")

func requireShell(testInstance *testing.T) {
	testInstance.Helper()
	if _, lookupError := exec.LookPath(string(testShellExecutableConstant)); lookupError != nil {
		testInstance.Skip("sh is not available")
	}
}

func TestOSCommandRunnerCapturesOutputAndExitCode(testInstance *testing.T) {
	requireShell(testInstance)
	runner := execshell.NewOSCommandRunner()
	workingDirectory := testInstance.TempDir()

	result, runError := runner.Run(context.Background(), execshell.ShellCommand{
		Name: testShellExecutableConstant,
		Details: execshell.CommandDetails{
			Arguments:            []string{"-c", "printf \"$GITPUBLISH_TEST_VALUE\"; cat; printf problem >&2; exit 3"},
			WorkingDirectory:     workingDirectory,
			EnvironmentVariables: map[string]string{"GITPUBLISH_TEST_VALUE": "value-"},
			StandardInput:        []byte("input"),
		},
	})
	require.NoError(testInstance, runError)
	require.Equal(testInstance, "value-input", result.StandardOutput)
	require.Equal(testInstance, "problem", result.StandardError)
	require.Equal(testInstance, 3, result.ExitCode)
}

func TestOSCommandRunnerReportsCancellation(testInstance *testing.T) {
	requireShell(testInstance)
	runner := execshell.NewOSCommandRunner()
	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	_, runError := runner.Run(cancelledContext, execshell.ShellCommand{
		Name:    testShellExecutableConstant,
		Details: execshell.CommandDetails{Arguments: []string{"-c", "sleep 5"}},
	})
	require.ErrorIs(testInstance, runError, context.Canceled)
}
