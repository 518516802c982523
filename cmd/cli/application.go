package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/gitpublish/cmd/cli/publishing"
	workflowcmd "github.com/temirov/gitpublish/cmd/cli/workflow"
	"github.com/temirov/gitpublish/internal/publish"
	"github.com/temirov/gitpublish/internal/utils"
	flagutils "github.com/temirov/gitpublish/internal/utils/flags"
	pathutils "github.com/temirov/gitpublish/internal/utils/path"
	"github.com/temirov/gitpublish/internal/workspace"
)

const (
	applicationNameConstant                 = "gitpublish"
	applicationShortDescriptionConstant     = "Publish a local repository to a named remote endpoint"
	applicationLongDescriptionConstant      = "gitpublish binds remote endpoints, relabels the primary line and transmits lines to endpoints, reporting failures as retryable or terminal."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML)"
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level"
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format"
	workspaceFlagNameConstant               = "workspace"
	workspaceFlagUsageConstant              = "Path to the workspace to operate on"
	backendFlagNameConstant                 = "backend"
	backendFlagUsageConstant                = "Workspace backend"
	timeoutFlagNameConstant                 = "timeout"
	timeoutFlagUsageConstant                = "Maximum duration of a transmission"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	environmentPrefixConstant               = "GITPUBLISH"
	workingDirectorySearchPathConstant      = "."
	userConfigurationSearchPathConstant     = "~/.gitpublish"
	commonLogLevelConfigKeyConstant         = "common.log_level"
	commonLogFormatConfigKeyConstant        = "common.log_format"
	workspacePathConfigKeyConstant          = "workspace.path"
	workspaceBackendConfigKeyConstant       = "workspace.backend"
	publishTimeoutConfigKeyConstant         = "publish.timeout"
	publishSecretGuardConfigKeyConstant     = "publish.secret_guard"
	defaultTransmitTimeoutConstant          = 2 * time.Minute
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationWorkspaceFieldConstant     = "workspace"
	configurationBackendFieldConstant       = "backend"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	workspaceResolveErrorTemplateConstant   = "unable to resolve workspace: %w"
	negativeTimeoutTemplateConstant         = "publish timeout must not be negative, got %s"
	rootCommandDebugMessageConstant         = "gitpublish CLI diagnostics"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentsConstant               = "arguments"
	loggerNotInitializedMessageConstant     = "logger not initialized"
)

var (
	logLevelChoices  = []string{string(utils.LogLevelDebug), string(utils.LogLevelInfo), string(utils.LogLevelWarn), string(utils.LogLevelError)}
	logFormatChoices = []string{string(utils.LogFormatStructured), string(utils.LogFormatConsole)}
	backendChoices   = []string{string(workspace.BackendGoGit), string(workspace.BackendGitCLI)}
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common    ApplicationCommonConfiguration    `mapstructure:"common"`
	Workspace ApplicationWorkspaceConfiguration `mapstructure:"workspace"`
	Publish   ApplicationPublishConfiguration   `mapstructure:"publish"`
	Auth      ApplicationAuthConfiguration      `mapstructure:"auth"`
	Retry     ApplicationRetryConfiguration     `mapstructure:"retry"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationWorkspaceConfiguration selects the workspace and its defaults.
type ApplicationWorkspaceConfiguration struct {
	Path            string `mapstructure:"path"`
	Backend         string `mapstructure:"backend"`
	DefaultEndpoint string `mapstructure:"default_endpoint"`
	PrimaryLine     string `mapstructure:"primary_line"`
}

// ApplicationPublishConfiguration tunes transmissions.
type ApplicationPublishConfiguration struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	SetUpstream    bool          `mapstructure:"set_upstream"`
	SecretGuard    bool          `mapstructure:"secret_guard"`
	SecretPatterns []string      `mapstructure:"secret_patterns"`
}

// ApplicationAuthConfiguration holds HTTP credentials for endpoints.
type ApplicationAuthConfiguration struct {
	Username string `mapstructure:"username"`
	Token    string `mapstructure:"token"`
}

// ApplicationRetryConfiguration controls retries of publish steps in workflows.
type ApplicationRetryConfiguration struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// RepositoryFactory constructs the workspace repository for the resolved options.
type RepositoryFactory func(options workspace.Options) (publish.Repository, error)

// ApplicationOption customizes an Application.
type ApplicationOption func(*Application)

// WithRepositoryFactory replaces the backend resolution used to open workspaces.
func WithRepositoryFactory(factory RepositoryFactory) ApplicationOption {
	return func(application *Application) {
		if factory != nil {
			application.repositoryFactory = factory
		}
	}
}

// WithDiagnosticOutput redirects log output.
func WithDiagnosticOutput(writer io.Writer) ApplicationOption {
	return func(application *Application) {
		if writer != nil {
			application.loggerFactory = utils.NewLoggerFactoryWithOutput(zapcore.AddSync(writer))
		}
	}
}

// WithHomeExpander replaces the expander used for "~" in paths and configuration search locations.
func WithHomeExpander(expander *pathutils.HomeExpander) ApplicationOption {
	return func(application *Application) {
		if expander != nil {
			application.homeExpander = expander
		}
	}
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	workspaceFlagValue     string
	backendFlagValue       string
	timeoutFlagValue       time.Duration
	commandContextAccessor utils.CommandContextAccessor
	homeExpander           *pathutils.HomeExpander
	repositoryFactory      RepositoryFactory
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication(options ...ApplicationOption) *Application {
	application := &Application{
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		homeExpander:           pathutils.NewHomeExpander(),
		repositoryFactory:      workspace.ResolveRepository,
	}
	for _, option := range options {
		option(application)
	}

	application.configurationLoader = utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{workingDirectorySearchPathConstant, application.homeExpander.Expand(userConfigurationSearchPathConstant)},
	)
	application.configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	persistentFlags := cobraCommand.PersistentFlags()
	persistentFlags.StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	flagutils.AddChoiceFlag(persistentFlags, &application.logLevelFlagValue, logLevelFlagNameConstant, string(utils.LogLevelInfo), logLevelChoices, logLevelFlagUsageConstant)
	flagutils.AddChoiceFlag(persistentFlags, &application.logFormatFlagValue, logFormatFlagNameConstant, string(utils.LogFormatStructured), logFormatChoices, logFormatFlagUsageConstant)
	persistentFlags.StringVar(&application.workspaceFlagValue, workspaceFlagNameConstant, "", workspaceFlagUsageConstant)
	flagutils.AddChoiceFlag(persistentFlags, &application.backendFlagValue, backendFlagNameConstant, string(workspace.BackendGoGit), backendChoices, backendFlagUsageConstant)
	persistentFlags.DurationVar(&application.timeoutFlagValue, timeoutFlagNameConstant, defaultTransmitTimeoutConstant, timeoutFlagUsageConstant)

	loggerProvider := func() *zap.Logger {
		return application.logger
	}
	configurationProvider := func() publishing.CommandConfiguration {
		return publishing.CommandConfiguration{
			SetUpstream:   application.configuration.Publish.SetUpstream,
			RetryAttempts: application.configuration.Retry.Attempts,
			RetryDelay:    application.configuration.Retry.Delay,
		}
	}

	bindBuilder := publishing.BindRemoteCommandBuilder{
		LoggerProvider:  loggerProvider,
		SessionProvider: application.openSession,
	}
	if bindCommand, bindBuildError := bindBuilder.Build(); bindBuildError == nil {
		cobraCommand.AddCommand(bindCommand)
	}

	renameBuilder := publishing.RenamePrimaryCommandBuilder{
		LoggerProvider:  loggerProvider,
		SessionProvider: application.openSession,
	}
	if renameCommand, renameBuildError := renameBuilder.Build(); renameBuildError == nil {
		cobraCommand.AddCommand(renameCommand)
	}

	publishBuilder := publishing.PublishCommandBuilder{
		LoggerProvider:        loggerProvider,
		SessionProvider:       application.openSession,
		ConfigurationProvider: configurationProvider,
	}
	if publishCommand, publishBuildError := publishBuilder.Build(); publishBuildError == nil {
		cobraCommand.AddCommand(publishCommand)
	}

	statusBuilder := publishing.StatusCommandBuilder{
		LoggerProvider:  loggerProvider,
		SessionProvider: application.openSession,
	}
	if statusCommand, statusBuildError := statusBuilder.Build(); statusBuildError == nil {
		cobraCommand.AddCommand(statusCommand)
	}

	workflowBuilder := workflowcmd.CommandBuilder{
		LoggerProvider:        loggerProvider,
		SessionProvider:       application.openSession,
		ConfigurationProvider: configurationProvider,
	}
	if workflowCommand, workflowBuildError := workflowBuilder.Build(); workflowBuildError == nil {
		cobraCommand.AddCommand(workflowCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	return application.finish(application.rootCommand.Execute())
}

// ExecuteContext runs the command hierarchy with explicit arguments and output writers.
func (application *Application) ExecuteContext(executionContext context.Context, arguments []string, output io.Writer) error {
	application.rootCommand.SetArgs(arguments)
	if output != nil {
		application.rootCommand.SetOut(output)
		application.rootCommand.SetErr(output)
	}
	return application.finish(application.rootCommand.ExecuteContext(executionContext))
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) finish(executionError error) error {
	if syncError := application.syncLoggerInstance(application.logger); syncError != nil && executionError == nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:     string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant:    string(utils.LogFormatStructured),
		workspacePathConfigKeyConstant:      workingDirectorySearchPathConstant,
		workspaceBackendConfigKeyConstant:   string(workspace.BackendGoGit),
		publishTimeoutConfigKeyConstant:     defaultTransmitTimeoutConstant,
		publishSecretGuardConfigKeyConstant: true,
	}

	application.configuration = ApplicationConfiguration{}
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(
		application.homeExpander.Expand(application.configurationFilePath),
		defaultValues,
		&application.configuration,
	)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}
	application.configurationMetadata = loadedConfiguration

	application.applyFlagOverrides(command)

	logLevel, logLevelError := utils.ParseLogLevel(application.configuration.Common.LogLevel)
	if logLevelError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, logLevelError)
	}
	logFormat, logFormatError := utils.ParseLogFormat(application.configuration.Common.LogFormat)
	if logFormatError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, logFormatError)
	}
	logger, loggerCreationError := application.loggerFactory.CreateLogger(logLevel, logFormat)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}
	application.logger = logger

	if _, backendError := workspace.ParseBackend(application.configuration.Workspace.Backend); backendError != nil {
		return backendError
	}
	if application.configuration.Publish.Timeout < 0 {
		return fmt.Errorf(negativeTimeoutTemplateConstant, application.configuration.Publish.Timeout)
	}

	workspacePath, workspaceError := application.homeExpander.Resolve(application.configuration.Workspace.Path)
	if workspaceError != nil {
		return fmt.Errorf(workspaceResolveErrorTemplateConstant, workspaceError)
	}

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
		zap.String(configurationWorkspaceFieldConstant, workspacePath),
		zap.String(configurationBackendFieldConstant, application.configuration.Workspace.Backend),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithWorkspacePath(command.Context(), workspacePath)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) applyFlagOverrides(command *cobra.Command) {
	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}
	if application.persistentFlagChanged(command, workspaceFlagNameConstant) {
		application.configuration.Workspace.Path = application.workspaceFlagValue
	}
	if application.persistentFlagChanged(command, backendFlagNameConstant) {
		application.configuration.Workspace.Backend = application.backendFlagValue
	}
	if application.persistentFlagChanged(command, timeoutFlagNameConstant) {
		application.configuration.Publish.Timeout = application.timeoutFlagValue
	}
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	return command.Help()
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	case errors.Is(syncError, syscall.ENOTTY):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	if rootCommand := command.Root(); rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet != nil && flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
