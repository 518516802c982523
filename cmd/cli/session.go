package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gitpublish/cmd/cli/publishing"
	"github.com/temirov/gitpublish/internal/execshell"
	"github.com/temirov/gitpublish/internal/journal"
	"github.com/temirov/gitpublish/internal/publish"
	"github.com/temirov/gitpublish/internal/ui"
	"github.com/temirov/gitpublish/internal/workspace"
)

const (
	workspaceOpenErrorTemplateConstant   = "unable to open workspace %s: %w"
	serviceCreationErrorTemplateConstant = "unable to construct publish service: %w"
	journalUnavailableMessageConstant    = "publish journal unavailable; continuing without history"
	logFieldJournalPathConstant          = "journal_path"
	logFieldWorkspacePathConstant        = "workspace_path"
)

// openSession opens the workspace selected by the configuration, attaches the journal when it can be
// opened, and constructs the publish service bound to both.
func (application *Application) openSession(command *cobra.Command) (*publishing.Session, error) {
	workspacePath, available := application.commandContextAccessor.WorkspacePath(command.Context())
	if !available {
		resolvedPath, resolveError := application.homeExpander.Resolve(application.configuration.Workspace.Path)
		if resolveError != nil {
			return nil, fmt.Errorf(workspaceResolveErrorTemplateConstant, resolveError)
		}
		workspacePath = resolvedPath
	}

	var commandObserver execshell.CommandEventObserver
	if application.humanReadableLoggingEnabled() {
		commandObserver = ui.NewConsoleCommandEventLogger(application.logger)
	}

	repository, repositoryError := application.repositoryFactory(workspace.Options{
		Backend: application.configuration.Workspace.Backend,
		Path:    workspacePath,
		Credentials: workspace.Credentials{
			Username: application.configuration.Auth.Username,
			Token:    application.configuration.Auth.Token,
		},
		Logger:          application.logger,
		CommandObserver: commandObserver,
	})
	if repositoryError != nil {
		return nil, fmt.Errorf(workspaceOpenErrorTemplateConstant, workspacePath, repositoryError)
	}

	session := &publishing.Session{Repository: repository, Journal: application.openJournal(workspacePath)}

	dependencies := publish.Dependencies{
		Repository:      repository,
		ExclusionLoader: workspace.LoadExclusionMatcher,
		Logger:          application.logger,
	}
	if session.Journal != nil {
		dependencies.Recorder = session.Journal
	}

	service, serviceError := publish.NewService(dependencies, publish.Options{
		Workspace: publish.NewWorkspace(
			workspacePath,
			application.configuration.Workspace.DefaultEndpoint,
			application.configuration.Workspace.PrimaryLine,
		),
		Timeout:            application.configuration.Publish.Timeout,
		DisableSecretGuard: !application.configuration.Publish.SecretGuard,
		SecretPatterns:     application.configuration.Publish.SecretPatterns,
	})
	if serviceError != nil {
		_ = session.Close()
		return nil, fmt.Errorf(serviceCreationErrorTemplateConstant, serviceError)
	}
	session.Service = service

	return session, nil
}

func (application *Application) openJournal(workspacePath string) *journal.Journal {
	journalPath, pathError := workspace.JournalPath(workspacePath)
	if pathError != nil {
		application.logger.Debug(journalUnavailableMessageConstant, zap.String(logFieldWorkspacePathConstant, workspacePath), zap.Error(pathError))
		return nil
	}

	publishJournal, openError := journal.Open(journalPath)
	if openError != nil {
		application.logger.Warn(journalUnavailableMessageConstant, zap.String(logFieldJournalPathConstant, journalPath), zap.Error(openError))
		return nil
	}
	return publishJournal
}
