package publishing

import (
	"github.com/spf13/cobra"

	"github.com/temirov/gitpublish/internal/publish"
	"github.com/temirov/gitpublish/internal/ui"
)

const (
	renameCommandUseConstant              = "rename-primary [name]"
	renameCommandShortDescriptionConstant = "Relabel the primary line"
	renameCommandLongDescriptionConstant  = "rename-primary renames the line HEAD points at. The commit history is untouched; an unborn line is re-pointed so the first commit lands on the new name. Without a name the configured workspace.primary_line is used."
	renameCommandMaximumArgumentsConstant = 1
)

// RenamePrimaryCommandBuilder assembles the rename-primary command.
type RenamePrimaryCommandBuilder struct {
	LoggerProvider  LoggerProvider
	SessionProvider SessionProvider
}

// Build constructs the rename-primary command.
func (builder *RenamePrimaryCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   renameCommandUseConstant,
		Short: renameCommandShortDescriptionConstant,
		Long:  renameCommandLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(renameCommandMaximumArgumentsConstant),
		RunE:  builder.run,
	}, nil
}

func (builder *RenamePrimaryCommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := resolveLogger(builder.LoggerProvider)
	session, sessionError := openSession(command, builder.SessionProvider, publish.StepRenamePrimaryLine)
	if sessionError != nil {
		return sessionError
	}
	defer closeSession(session, logger)

	target := string(session.Service.Workspace().PrimaryLine)
	if len(arguments) > 0 {
		target = arguments[0]
	}

	report, renameError := session.Service.RenamePrimaryLine(command.Context(), target)
	if renameError != nil {
		return renameError
	}
	ui.NewReportPrinter(command.OutOrStdout()).ReportRename(report)
	return nil
}
