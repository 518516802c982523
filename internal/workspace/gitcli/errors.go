package gitcli

import (
	"context"
	"errors"
	"strings"

	"github.com/temirov/gitpublish/internal/execshell"
	"github.com/temirov/gitpublish/internal/publish"
)

const repositoryNotFoundReasonConstant = "repository not found on endpoint"

var (
	authenticationMarkers = []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"terminal prompts disabled",
		"permission denied",
		"invalid username or password",
		"the requested url returned error: 401",
		"the requested url returned error: 403",
	}
	rejectionMarkers = []string{
		"[rejected]",
		"[remote rejected]",
		"non-fast-forward",
		"fetch first",
		"declined",
		"pre-receive hook",
		"protected branch",
	}
	missingRepositoryMarkers = []string{
		"repository not found",
		"does not appear to be a git repository",
		"the requested url returned error: 404",
	}
)

// classifyTransportError maps git transport failures onto the publish error taxonomy from the command diagnostics.
func classifyTransportError(executionContext context.Context, endpoint publish.EndpointName, line publish.LineName, failure error) error {
	if failure == nil {
		return nil
	}
	if executionContext.Err() != nil {
		return publish.NetworkError{Endpoint: endpoint, Cause: failure}
	}

	var failedError execshell.CommandFailedError
	if !errors.As(failure, &failedError) {
		return publish.NetworkError{Endpoint: endpoint, Cause: failure}
	}

	// push --porcelain reports per-ref rejections on stdout
	diagnostics := strings.TrimSpace(failedError.Result.StandardError + "\n" + failedError.Result.StandardOutput)
	normalized := strings.ToLower(diagnostics)
	switch {
	case containsAny(normalized, authenticationMarkers):
		return publish.AuthenticationError{Endpoint: endpoint, Cause: failure}
	case containsAny(normalized, missingRepositoryMarkers):
		return publish.RemoteRejectedError{Endpoint: endpoint, Line: line, Reason: repositoryNotFoundReasonConstant}
	case containsAny(normalized, rejectionMarkers):
		return publish.RemoteRejectedError{Endpoint: endpoint, Line: line, Reason: rejectionReason(diagnostics)}
	}
	return publish.NetworkError{Endpoint: endpoint, Cause: failure}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func rejectionReason(diagnostics string) string {
	lines := strings.Split(diagnostics, "\n")
	for _, candidate := range lines {
		trimmed := strings.TrimSpace(candidate)
		if containsAny(strings.ToLower(trimmed), rejectionMarkers) {
			return trimmed
		}
	}
	return strings.TrimSpace(lines[0])
}
