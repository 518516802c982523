package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/gitpublish/internal/publish"
)

const (
	stepErrorTemplateConstant           = "workflow step %d (%s) failed: %v"
	serviceNotConfiguredMessageConstant = "workflow executor requires a publish service"
	stepStartedMessageConstant          = "workflow step started"
	stepRetryMessageConstant            = "retrying workflow step after retryable failure"
	stepCompletedMessageConstant        = "workflow step completed"
	logFieldStepConstant                = "step"
	logFieldOperationConstant           = "operation"
	logFieldAttemptConstant             = "attempt"
	logFieldDelayConstant               = "delay"
)

// ErrServiceNotConfigured indicates a missing publish service.
var ErrServiceNotConfigured = errors.New(serviceNotConfiguredMessageConstant)

// StepError reports the workflow step that halted a run.
type StepError struct {
	Ordinal   int
	Operation string
	Cause     error
}

func (stepError StepError) Error() string {
	return fmt.Sprintf(stepErrorTemplateConstant, stepError.Ordinal, stepError.Operation, stepError.Cause)
}

// Unwrap exposes the classified failure.
func (stepError StepError) Unwrap() error {
	return stepError.Cause
}

// Dependencies configures shared collaborators for workflow execution.
type Dependencies struct {
	Service  PublishService
	Reporter Reporter
	Logger   *zap.Logger
	// Sleep waits between retries; it returns early with the context error on cancellation.
	Sleep func(executionContext context.Context, delay time.Duration) error
}

// RuntimeOptions captures operator-level execution modifiers.
type RuntimeOptions struct {
	RetryAttempts int
	RetryDelay    time.Duration
	SetUpstream   bool
}

// Executor runs workflow operations strictly in order and stops at the first failure.
type Executor struct {
	operations   []Operation
	dependencies Dependencies
}

// NewExecutor constructs an Executor instance.
func NewExecutor(operations []Operation, dependencies Dependencies) *Executor {
	if dependencies.Logger == nil {
		dependencies.Logger = zap.NewNop()
	}
	if dependencies.Sleep == nil {
		dependencies.Sleep = sleepWithContext
	}
	return &Executor{operations: append([]Operation{}, operations...), dependencies: dependencies}
}

// Execute runs every operation. Only publish steps are retried, and only on retryable failures.
func (executor *Executor) Execute(executionContext context.Context, runtimeOptions RuntimeOptions) error {
	if executor.dependencies.Service == nil {
		return ErrServiceNotConfigured
	}

	environment := &Environment{
		Service:     executor.dependencies.Service,
		Reporter:    executor.dependencies.Reporter,
		Logger:      executor.dependencies.Logger,
		SetUpstream: runtimeOptions.SetUpstream,
	}

	for operationIndex, operation := range executor.operations {
		if operation == nil {
			continue
		}
		ordinal := operationIndex + 1
		if executeError := executor.executeWithRetry(executionContext, environment, ordinal, operation, runtimeOptions); executeError != nil {
			return StepError{Ordinal: ordinal, Operation: operation.Name(), Cause: executeError}
		}
	}
	return nil
}

func (executor *Executor) executeWithRetry(executionContext context.Context, environment *Environment, ordinal int, operation Operation, runtimeOptions RuntimeOptions) error {
	logger := executor.dependencies.Logger.With(zap.Int(logFieldStepConstant, ordinal), zap.String(logFieldOperationConstant, operation.Name()))
	attempts := 1
	if operation.Name() == string(OperationTypePublish) && runtimeOptions.RetryAttempts > 0 {
		attempts += runtimeOptions.RetryAttempts
	}

	var lastError error
	for attempt := 1; attempt <= attempts; attempt++ {
		logger.Debug(stepStartedMessageConstant, zap.Int(logFieldAttemptConstant, attempt))
		lastError = operation.Execute(executionContext, environment)
		if lastError == nil {
			logger.Debug(stepCompletedMessageConstant, zap.Int(logFieldAttemptConstant, attempt))
			return nil
		}
		if !publish.IsRetryable(lastError) || attempt == attempts {
			return lastError
		}

		logger.Warn(stepRetryMessageConstant, zap.Int(logFieldAttemptConstant, attempt), zap.Duration(logFieldDelayConstant, runtimeOptions.RetryDelay), zap.Error(lastError))
		if sleepError := executor.dependencies.Sleep(executionContext, runtimeOptions.RetryDelay); sleepError != nil {
			return lastError
		}
	}
	return lastError
}

func sleepWithContext(executionContext context.Context, delay time.Duration) error {
	if delay <= 0 {
		return executionContext.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-timer.C:
		return nil
	}
}
