package publishing

import (
	"github.com/spf13/cobra"

	"github.com/temirov/gitpublish/internal/publish"
	"github.com/temirov/gitpublish/internal/ui"
)

const (
	bindCommandUseConstant              = "bind-remote <name> <url>"
	bindCommandShortDescriptionConstant = "Bind a named endpoint to a remote URL"
	bindCommandLongDescriptionConstant  = "bind-remote records name -> url in the workspace metadata. Rebinding a name to the URL it already has succeeds without changes; rebinding it to a different URL fails."
	bindCommandArgumentCountConstant    = 2
)

// BindRemoteCommandBuilder assembles the bind-remote command.
type BindRemoteCommandBuilder struct {
	LoggerProvider  LoggerProvider
	SessionProvider SessionProvider
}

// Build constructs the bind-remote command.
func (builder *BindRemoteCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   bindCommandUseConstant,
		Short: bindCommandShortDescriptionConstant,
		Long:  bindCommandLongDescriptionConstant,
		Args:  cobra.ExactArgs(bindCommandArgumentCountConstant),
		RunE:  builder.run,
	}, nil
}

func (builder *BindRemoteCommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := resolveLogger(builder.LoggerProvider)
	session, sessionError := openSession(command, builder.SessionProvider, publish.StepBindEndpoint)
	if sessionError != nil {
		return sessionError
	}
	defer closeSession(session, logger)

	report, bindError := session.Service.BindEndpoint(command.Context(), arguments[0], arguments[1])
	if bindError != nil {
		return bindError
	}
	ui.NewReportPrinter(command.OutOrStdout()).ReportBind(report)
	return nil
}
