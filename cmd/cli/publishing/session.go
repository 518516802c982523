package publishing

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gitpublish/internal/journal"
	"github.com/temirov/gitpublish/internal/publish"
)

const (
	sessionCloseWarningMessageConstant = "unable to close publish session"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandConfiguration carries the configured defaults the commands fall back to when flags are absent.
type CommandConfiguration struct {
	SetUpstream   bool
	RetryAttempts int
	RetryDelay    time.Duration
}

// ConfigurationProvider supplies the current command configuration.
type ConfigurationProvider func() CommandConfiguration

// SessionProvider opens a publish session for the workspace selected by the invoking command.
type SessionProvider func(command *cobra.Command) (*Session, error)

// Session bundles the collaborators bound to one workspace for the lifetime of a command.
type Session struct {
	Service    *publish.Service
	Repository publish.Repository
	// Journal is nil when the workspace journal could not be opened.
	Journal *journal.Journal
}

// Close releases the journal held by the session.
func (session *Session) Close() error {
	if session == nil || session.Journal == nil {
		return nil
	}
	return session.Journal.Close()
}

func openSession(command *cobra.Command, provider SessionProvider, step publish.Step) (*Session, error) {
	session, sessionError := provider(command)
	if sessionError != nil {
		if _, classified := publish.FailedStep(sessionError); classified {
			return nil, sessionError
		}
		return nil, publish.OperationError{Operation: step, Cause: sessionError}
	}
	return session, nil
}

func closeSession(session *Session, logger *zap.Logger) {
	if closeError := session.Close(); closeError != nil {
		logger.Warn(sessionCloseWarningMessageConstant, zap.Error(closeError))
	}
}

func resolveLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	if logger := provider(); logger != nil {
		return logger
	}
	return zap.NewNop()
}

func resolveConfiguration(provider ConfigurationProvider) CommandConfiguration {
	if provider == nil {
		return CommandConfiguration{}
	}
	return provider()
}
