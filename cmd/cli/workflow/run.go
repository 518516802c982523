// Package workflow provides the command that runs a declarative publish workflow file.
package workflow

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gitpublish/cmd/cli/publishing"
	"github.com/temirov/gitpublish/internal/ui"
	"github.com/temirov/gitpublish/internal/workflow"
)

const (
	commandUseConstant                     = "workflow <file>"
	commandShortDescriptionConstant        = "Run a workflow configuration file"
	commandLongDescriptionConstant         = "workflow executes the bind-remote, rename-primary and publish steps of a YAML workflow file in order and stops at the first failure. Publish steps are retried on network failures when retries are configured."
	commandArgumentCountConstant           = 1
	retryAttemptsFlagNameConstant          = "retry-attempts"
	retryAttemptsFlagUsageConstant         = "Additional attempts for publish steps that fail with a retryable error"
	retryDelayFlagNameConstant             = "retry-delay"
	retryDelayFlagUsageConstant            = "Delay between publish retries"
	loadConfigurationErrorTemplateConstant = "unable to load workflow configuration: %w"
	buildOperationsErrorTemplateConstant   = "unable to build workflow operations: %w"
	negativeRetryAttemptsTemplateConstant  = "--%s must not be negative, got %d"
	sessionCloseWarningMessageConstant     = "unable to close publish session"
)

// CommandBuilder assembles the workflow command.
type CommandBuilder struct {
	LoggerProvider        publishing.LoggerProvider
	SessionProvider       publishing.SessionProvider
	ConfigurationProvider publishing.ConfigurationProvider
}

// Build constructs the workflow command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.ExactArgs(commandArgumentCountConstant),
		RunE:  builder.run,
	}

	command.Flags().Int(retryAttemptsFlagNameConstant, 0, retryAttemptsFlagUsageConstant)
	command.Flags().Duration(retryDelayFlagNameConstant, 0, retryDelayFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	runtimeOptions, optionsError := builder.runtimeOptions(command)
	if optionsError != nil {
		return optionsError
	}

	configuration, loadError := workflow.LoadConfiguration(strings.TrimSpace(arguments[0]))
	if loadError != nil {
		return fmt.Errorf(loadConfigurationErrorTemplateConstant, loadError)
	}

	operations, buildError := workflow.BuildOperations(configuration)
	if buildError != nil {
		return fmt.Errorf(buildOperationsErrorTemplateConstant, buildError)
	}

	session, sessionError := builder.SessionProvider(command)
	if sessionError != nil {
		return sessionError
	}
	logger := builder.logger()
	defer func() {
		if closeError := session.Close(); closeError != nil {
			logger.Warn(sessionCloseWarningMessageConstant, zap.Error(closeError))
		}
	}()

	executor := workflow.NewExecutor(operations, workflow.Dependencies{
		Service:  session.Service,
		Reporter: ui.NewReportPrinter(command.OutOrStdout()),
		Logger:   logger,
	})
	return executor.Execute(command.Context(), runtimeOptions)
}

func (builder *CommandBuilder) runtimeOptions(command *cobra.Command) (workflow.RuntimeOptions, error) {
	var configuration publishing.CommandConfiguration
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	runtimeOptions := workflow.RuntimeOptions{
		RetryAttempts: configuration.RetryAttempts,
		RetryDelay:    configuration.RetryDelay,
		SetUpstream:   configuration.SetUpstream,
	}

	if command.Flags().Changed(retryAttemptsFlagNameConstant) {
		attempts, attemptsError := command.Flags().GetInt(retryAttemptsFlagNameConstant)
		if attemptsError != nil {
			return workflow.RuntimeOptions{}, attemptsError
		}
		runtimeOptions.RetryAttempts = attempts
	}
	if runtimeOptions.RetryAttempts < 0 {
		return workflow.RuntimeOptions{}, fmt.Errorf(negativeRetryAttemptsTemplateConstant, retryAttemptsFlagNameConstant, runtimeOptions.RetryAttempts)
	}

	if command.Flags().Changed(retryDelayFlagNameConstant) {
		delay, delayError := command.Flags().GetDuration(retryDelayFlagNameConstant)
		if delayError != nil {
			return workflow.RuntimeOptions{}, delayError
		}
		runtimeOptions.RetryDelay = delay
	}

	return runtimeOptions, nil
}

func (builder *CommandBuilder) logger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	if logger := builder.LoggerProvider(); logger != nil {
		return logger
	}
	return zap.NewNop()
}
