package publishing

import (
	"github.com/spf13/cobra"

	"github.com/temirov/gitpublish/internal/publish"
	"github.com/temirov/gitpublish/internal/ui"
	flagutils "github.com/temirov/gitpublish/internal/utils/flags"
)

const (
	publishCommandUseConstant              = "publish [name] [line]"
	publishCommandShortDescriptionConstant = "Transmit a line to a bound endpoint"
	publishCommandLongDescriptionConstant  = "publish pushes the line to the endpoint without forcing. Omitted arguments fall back to the configured default endpoint and primary line. Publishing an unchanged line again succeeds and transmits nothing."
	publishCommandMaximumArgumentsConstant = 2
	setUpstreamFlagNameConstant            = "set-upstream"
	setUpstreamFlagUsageConstant           = "Record that the local line tracks the endpoint line"
)

// PublishCommandBuilder assembles the publish command.
type PublishCommandBuilder struct {
	LoggerProvider        LoggerProvider
	SessionProvider       SessionProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the publish command.
func (builder *PublishCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   publishCommandUseConstant,
		Short: publishCommandShortDescriptionConstant,
		Long:  publishCommandLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(publishCommandMaximumArgumentsConstant),
		RunE:  builder.run,
	}

	var setUpstream bool
	flagutils.AddToggleFlag(command.Flags(), &setUpstream, setUpstreamFlagNameConstant, false, setUpstreamFlagUsageConstant)

	return command, nil
}

func (builder *PublishCommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := resolveLogger(builder.LoggerProvider)
	configuration := resolveConfiguration(builder.ConfigurationProvider)

	request := publish.TransmitRequest{SetUpstream: configuration.SetUpstream}
	if len(arguments) > 0 {
		request.Endpoint = arguments[0]
	}
	if len(arguments) > 1 {
		request.Line = arguments[1]
	}
	if command.Flags().Changed(setUpstreamFlagNameConstant) {
		setUpstream, flagError := command.Flags().GetBool(setUpstreamFlagNameConstant)
		if flagError != nil {
			return flagError
		}
		request.SetUpstream = setUpstream
	}

	session, sessionError := openSession(command, builder.SessionProvider, publish.StepTransmit)
	if sessionError != nil {
		return sessionError
	}
	defer closeSession(session, logger)

	report, transmitError := session.Service.Transmit(command.Context(), request)
	if transmitError != nil {
		return transmitError
	}
	ui.NewReportPrinter(command.OutOrStdout()).ReportTransmit(report)
	return nil
}
