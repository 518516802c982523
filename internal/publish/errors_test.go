package publish_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gitpublish/internal/publish"
)

func TestErrorClassification(testInstance *testing.T) {
	testCases := []struct {
		name             string
		failure          error
		expectRetryable  bool
		expectedStep     publish.Step
		expectedExitCode int
	}{
		{name: "already_bound", failure: publish.AlreadyBoundError{Endpoint: testEndpointNameConstant}, expectedStep: publish.StepBindEndpoint, expectedExitCode: 1},
		{name: "invalid_url", failure: publish.InvalidURLError{Input: testMalformedEndpointURL}, expectedStep: publish.StepBindEndpoint, expectedExitCode: 1},
		{name: "unbound", failure: publish.UnboundEndpointError{Endpoint: testEndpointNameConstant}, expectedStep: publish.StepTransmit, expectedExitCode: 1},
		{name: "empty_history", failure: publish.EmptyHistoryError{Line: testPrimaryLineConstant}, expectedStep: publish.StepTransmit, expectedExitCode: 1},
		{name: "rejected", failure: publish.RemoteRejectedError{Endpoint: testEndpointNameConstant}, expectedStep: publish.StepTransmit, expectedExitCode: 1},
		{name: "authentication", failure: publish.AuthenticationError{Endpoint: testEndpointNameConstant, Cause: errInjectedRepositoryFailure}, expectedStep: publish.StepTransmit, expectedExitCode: 1},
		{name: "network", failure: publish.NetworkError{Endpoint: testEndpointNameConstant, Cause: errInjectedRepositoryFailure}, expectRetryable: true, expectedStep: publish.StepTransmit, expectedExitCode: 75},
		{name: "wrapped_network", failure: fmt.Errorf("step failed: %w", publish.NetworkError{Endpoint: testEndpointNameConstant, Cause: errInjectedRepositoryFailure}), expectRetryable: true, expectedStep: publish.StepTransmit, expectedExitCode: 75},
		{name: "conflict", failure: publish.ConflictError{Target: testPrimaryLineConstant, Current: testInitialLineConstant}, expectedStep: publish.StepRenamePrimaryLine, expectedExitCode: 1},
		{name: "validation", failure: publish.ValidationError{Operation: publish.StepRenamePrimaryLine, Field: "line name"}, expectedStep: publish.StepRenamePrimaryLine, expectedExitCode: 1},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(subtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectRetryable, publish.IsRetryable(testCase.failure))
			step, stepFound := publish.FailedStep(testCase.failure)
			require.True(testInstance, stepFound)
			require.Equal(testInstance, testCase.expectedStep, step)
			require.Equal(testInstance, testCase.expectedExitCode, publish.ExitCode(testCase.failure))

			description := publish.DescribeFailure(testCase.failure)
			expectedPrefix := "terminal: "
			if testCase.expectRetryable {
				expectedPrefix = "retryable: "
			}
			require.True(testInstance, strings.HasPrefix(description, expectedPrefix+string(testCase.expectedStep)))
		})
	}
}

func TestUnclassifiedErrors(testInstance *testing.T) {
	plainError := errors.New("plain failure")
	require.False(testInstance, publish.IsRetryable(plainError))
	require.Equal(testInstance, 1, publish.ExitCode(plainError))
	require.Equal(testInstance, 0, publish.ExitCode(nil))
	_, stepFound := publish.FailedStep(plainError)
	require.False(testInstance, stepFound)
	require.True(testInstance, strings.HasPrefix(publish.DescribeFailure(plainError), "terminal: workflow failed"))
}

func TestNetworkErrorUnwrapsCause(testInstance *testing.T) {
	networkError := publish.NetworkError{Endpoint: testEndpointNameConstant, Cause: errInjectedRepositoryFailure}
	require.ErrorIs(testInstance, networkError, errInjectedRepositoryFailure)
}
