package publish

import (
	"errors"
	"fmt"
	"strings"
)

const (
	alreadyBoundErrorTemplateConstant    = "endpoint %q is already bound to %s; refusing to rebind to %s"
	invalidURLErrorTemplateConstant      = "invalid endpoint url %q: %s"
	unboundEndpointErrorTemplateConstant = "endpoint %q is not bound; run bind-remote first"
	emptyHistoryErrorTemplateConstant    = "line %q has no commits to publish"
	remoteRejectedErrorTemplateConstant  = "endpoint %q rejected line %q: %s"
	authenticationErrorTemplateConstant  = "authentication to endpoint %q failed: %v"
	networkErrorTemplateConstant         = "transport to endpoint %q failed: %v"
	conflictErrorTemplateConstant        = "line %q already exists at %s and differs from %q at %s"
	conflictUnbornErrorTemplateConstant  = "line %q already exists; refusing to re-point unborn line %q onto it"
	secretExposureErrorTemplateConstant  = "refusing to publish secret or excluded files: %s"
	validationErrorTemplateConstant      = "%s %s"
	operationErrorTemplateConstant       = "workspace operation failed: %v"
	stepFailureTemplateConstant          = "%s: %s failed: %v"
	secretPathsSeparatorConstant         = ", "
	nonFastForwardReasonConstant         = "remote line is not an ancestor of the local tip"
	retryableClassificationLabelConstant = "retryable"
	terminalClassificationLabelConstant  = "terminal"
	exitCodeSuccessConstant              = 0
	exitCodeTerminalConstant             = 1
	exitCodeRetryableConstant            = 75
	unknownStepLabelConstant             = "workflow"
	emptyRemoteRejectionReasonFallback   = "push rejected"
	endpointFieldNameConstant            = "endpoint name"
	lineFieldNameConstant                = "line name"
)

// Step names a workflow operation.
type Step string

// Workflow steps.
const (
	StepBindEndpoint      Step = Step("bind-remote")
	StepRenamePrimaryLine Step = Step("rename-primary")
	StepTransmit          Step = Step("publish")
)

// ClassifiedError is implemented by every workflow failure.
type ClassifiedError interface {
	error
	// Step reports the operation that failed.
	Step() Step
	// Retryable reports whether re-running the step may succeed.
	Retryable() bool
}

// AlreadyBoundError indicates the endpoint name is bound to a different URL.
type AlreadyBoundError struct {
	Endpoint     EndpointName
	BoundURL     string
	RequestedURL string
}

func (boundError AlreadyBoundError) Error() string {
	return fmt.Sprintf(alreadyBoundErrorTemplateConstant, boundError.Endpoint, boundError.BoundURL, boundError.RequestedURL)
}

// Step implements ClassifiedError.
func (AlreadyBoundError) Step() Step { return StepBindEndpoint }

// Retryable implements ClassifiedError.
func (AlreadyBoundError) Retryable() bool { return false }

// InvalidURLError indicates a malformed endpoint address.
type InvalidURLError struct {
	Input  string
	Reason string
}

func (urlError InvalidURLError) Error() string {
	return fmt.Sprintf(invalidURLErrorTemplateConstant, urlError.Input, urlError.Reason)
}

// Step implements ClassifiedError.
func (InvalidURLError) Step() Step { return StepBindEndpoint }

// Retryable implements ClassifiedError.
func (InvalidURLError) Retryable() bool { return false }

// UnboundEndpointError indicates a transmission to an endpoint that was never bound.
type UnboundEndpointError struct {
	Endpoint EndpointName
}

func (unboundError UnboundEndpointError) Error() string {
	return fmt.Sprintf(unboundEndpointErrorTemplateConstant, unboundError.Endpoint)
}

// Step implements ClassifiedError.
func (UnboundEndpointError) Step() Step { return StepTransmit }

// Retryable implements ClassifiedError.
func (UnboundEndpointError) Retryable() bool { return false }

// EmptyHistoryError indicates the line has no commits.
type EmptyHistoryError struct {
	Line LineName
}

func (historyError EmptyHistoryError) Error() string {
	return fmt.Sprintf(emptyHistoryErrorTemplateConstant, historyError.Line)
}

// Step implements ClassifiedError.
func (EmptyHistoryError) Step() Step { return StepTransmit }

// Retryable implements ClassifiedError.
func (EmptyHistoryError) Retryable() bool { return false }

// RemoteRejectedError indicates the endpoint refused the update.
type RemoteRejectedError struct {
	Endpoint EndpointName
	Line     LineName
	Reason   string
}

func (rejectedError RemoteRejectedError) Error() string {
	reason := strings.TrimSpace(rejectedError.Reason)
	if len(reason) == 0 {
		reason = emptyRemoteRejectionReasonFallback
	}
	return fmt.Sprintf(remoteRejectedErrorTemplateConstant, rejectedError.Endpoint, rejectedError.Line, reason)
}

// Step implements ClassifiedError.
func (RemoteRejectedError) Step() Step { return StepTransmit }

// Retryable implements ClassifiedError.
func (RemoteRejectedError) Retryable() bool { return false }

// AuthenticationError indicates missing or refused credentials.
type AuthenticationError struct {
	Endpoint EndpointName
	Cause    error
}

func (authenticationError AuthenticationError) Error() string {
	return fmt.Sprintf(authenticationErrorTemplateConstant, authenticationError.Endpoint, authenticationError.Cause)
}

// Unwrap exposes the transport failure.
func (authenticationError AuthenticationError) Unwrap() error { return authenticationError.Cause }

// Step implements ClassifiedError.
func (AuthenticationError) Step() Step { return StepTransmit }

// Retryable implements ClassifiedError.
func (AuthenticationError) Retryable() bool { return false }

// NetworkError indicates a transport failure or timeout.
type NetworkError struct {
	Endpoint EndpointName
	Cause    error
}

func (networkError NetworkError) Error() string {
	return fmt.Sprintf(networkErrorTemplateConstant, networkError.Endpoint, networkError.Cause)
}

// Unwrap exposes the transport failure.
func (networkError NetworkError) Unwrap() error { return networkError.Cause }

// Step implements ClassifiedError.
func (NetworkError) Step() Step { return StepTransmit }

// Retryable implements ClassifiedError.
func (NetworkError) Retryable() bool { return true }

// ConflictError indicates a rename target that already exists with a different tip.
type ConflictError struct {
	Target     LineName
	TargetTip  string
	Current    LineName
	CurrentTip string
}

func (conflictError ConflictError) Error() string {
	if len(conflictError.CurrentTip) == 0 {
		return fmt.Sprintf(conflictUnbornErrorTemplateConstant, conflictError.Target, conflictError.Current)
	}
	return fmt.Sprintf(conflictErrorTemplateConstant, conflictError.Target, shortHash(conflictError.TargetTip), conflictError.Current, shortHash(conflictError.CurrentTip))
}

// Step implements ClassifiedError.
func (ConflictError) Step() Step { return StepRenamePrimaryLine }

// Retryable implements ClassifiedError.
func (ConflictError) Retryable() bool { return false }

// SecretExposureError indicates a snapshot about to be transmitted contains files matching
// secret patterns or the workspace exclusion rules.
type SecretExposureError struct {
	Paths []string
}

func (exposureError SecretExposureError) Error() string {
	return fmt.Sprintf(secretExposureErrorTemplateConstant, strings.Join(exposureError.Paths, secretPathsSeparatorConstant))
}

// Step implements ClassifiedError.
func (SecretExposureError) Step() Step { return StepTransmit }

// Retryable implements ClassifiedError.
func (SecretExposureError) Retryable() bool { return false }

// ValidationError indicates an empty or malformed label.
type ValidationError struct {
	Operation Step
	Field     string
	Reason    string
}

func (validationError ValidationError) Error() string {
	return fmt.Sprintf(validationErrorTemplateConstant, validationError.Field, validationError.Reason)
}

// Step implements ClassifiedError.
func (validationError ValidationError) Step() Step { return validationError.Operation }

// Retryable implements ClassifiedError.
func (ValidationError) Retryable() bool { return false }

// IsRetryable reports whether any error in the chain is classified as retryable.
func IsRetryable(err error) bool {
	var classified ClassifiedError
	if !errors.As(err, &classified) {
		return false
	}
	return classified.Retryable()
}

// FailedStep returns the step recorded on the first classified error in the chain.
func FailedStep(err error) (Step, bool) {
	var classified ClassifiedError
	if !errors.As(err, &classified) {
		return "", false
	}
	return classified.Step(), true
}

// ExitCode maps an error to the process exit status: 0 on success, 75 when a retry may succeed, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return exitCodeSuccessConstant
	}
	if IsRetryable(err) {
		return exitCodeRetryableConstant
	}
	return exitCodeTerminalConstant
}

// DescribeFailure renders an operator-facing line prefixed with the retry classification and the failing step.
func DescribeFailure(err error) string {
	classification := terminalClassificationLabelConstant
	if IsRetryable(err) {
		classification = retryableClassificationLabelConstant
	}
	stepLabel := unknownStepLabelConstant
	if step, found := FailedStep(err); found {
		stepLabel = string(step)
	}
	return fmt.Sprintf(stepFailureTemplateConstant, classification, stepLabel, err)
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

// OperationError wraps an unexpected workspace failure with the step it interrupted.
type OperationError struct {
	Operation Step
	Cause     error
}

func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Cause)
}

// Unwrap exposes the underlying failure.
func (operationError OperationError) Unwrap() error { return operationError.Cause }

// Step implements ClassifiedError.
func (operationError OperationError) Step() Step { return operationError.Operation }

// Retryable implements ClassifiedError.
func (OperationError) Retryable() bool { return false }
