package gogit

import (
	"context"
	"errors"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/temirov/gitpublish/internal/publish"
)

const (
	repositoryNotFoundReasonConstant = "repository not found on endpoint"
	forceRequiredReasonConstant      = "update is not a fast-forward"
	rejectedMarkerConstant           = "rejected"
	declinedMarkerConstant           = "declined"
	nonFastForwardMarkerConstant     = "non-fast-forward"
)

// classifyTransportError maps go-git transport failures onto the publish error taxonomy.
func classifyTransportError(executionContext context.Context, endpoint publish.EndpointName, line publish.LineName, failure error) error {
	if failure == nil {
		return nil
	}

	switch {
	case errors.Is(failure, context.DeadlineExceeded), errors.Is(failure, context.Canceled), executionContext.Err() != nil:
		return publish.NetworkError{Endpoint: endpoint, Cause: failure}
	case errors.Is(failure, transport.ErrAuthenticationRequired),
		errors.Is(failure, transport.ErrAuthorizationFailed),
		errors.Is(failure, transport.ErrInvalidAuthMethod):
		return publish.AuthenticationError{Endpoint: endpoint, Cause: failure}
	case errors.Is(failure, git.ErrForceNeeded), errors.Is(failure, git.ErrNonFastForwardUpdate):
		return publish.RemoteRejectedError{Endpoint: endpoint, Line: line, Reason: forceRequiredReasonConstant}
	case errors.Is(failure, transport.ErrRepositoryNotFound):
		return publish.RemoteRejectedError{Endpoint: endpoint, Line: line, Reason: repositoryNotFoundReasonConstant}
	}

	message := strings.ToLower(failure.Error())
	if strings.Contains(message, rejectedMarkerConstant) || strings.Contains(message, declinedMarkerConstant) || strings.Contains(message, nonFastForwardMarkerConstant) {
		return publish.RemoteRejectedError{Endpoint: endpoint, Line: line, Reason: failure.Error()}
	}

	return publish.NetworkError{Endpoint: endpoint, Cause: failure}
}
