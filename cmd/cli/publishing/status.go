package publishing

import (
	"github.com/spf13/cobra"

	"github.com/temirov/gitpublish/internal/journal"
	"github.com/temirov/gitpublish/internal/ui"
)

const (
	statusCommandUseConstant              = "status"
	statusCommandShortDescriptionConstant = "Show bound endpoints and journaled publish state"
	statusCommandLongDescriptionConstant  = "status lists the bound endpoints, the last recorded state of every endpoint and line pair, and the most recent journal entries."
	historyLimitFlagNameConstant          = "limit"
	historyLimitFlagUsageConstant         = "Number of recent journal entries to show; zero shows none"
	defaultHistoryLimitConstant           = 10
	journalUnavailableMessageConstant     = "publish journal unavailable; showing endpoints only"
)

// StatusCommandBuilder assembles the status command.
type StatusCommandBuilder struct {
	LoggerProvider  LoggerProvider
	SessionProvider SessionProvider
}

// Build constructs the status command.
func (builder *StatusCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   statusCommandUseConstant,
		Short: statusCommandShortDescriptionConstant,
		Long:  statusCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	command.Flags().Int(historyLimitFlagNameConstant, defaultHistoryLimitConstant, historyLimitFlagUsageConstant)
	return command, nil
}

func (builder *StatusCommandBuilder) run(command *cobra.Command, _ []string) error {
	logger := resolveLogger(builder.LoggerProvider)
	historyLimit, limitError := command.Flags().GetInt(historyLimitFlagNameConstant)
	if limitError != nil {
		return limitError
	}

	session, sessionError := builder.SessionProvider(command)
	if sessionError != nil {
		return sessionError
	}
	defer closeSession(session, logger)

	executionContext := command.Context()
	endpoints, endpointsError := session.Repository.Endpoints(executionContext)
	if endpointsError != nil {
		return endpointsError
	}

	var latest, history []journal.Entry
	if session.Journal == nil {
		logger.Debug(journalUnavailableMessageConstant)
	} else {
		var latestError error
		if latest, latestError = session.Journal.Latest(executionContext); latestError != nil {
			return latestError
		}
		if historyLimit > 0 {
			var historyError error
			if history, historyError = session.Journal.Recent(executionContext, historyLimit); historyError != nil {
				return historyError
			}
		}
	}

	ui.NewReportPrinter(command.OutOrStdout()).ReportStatus(endpoints, latest, history)
	return nil
}
