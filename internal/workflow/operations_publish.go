package workflow

import (
	"context"
	"strings"

	"github.com/temirov/gitpublish/internal/publish"
)

// BindRemoteOperation binds an endpoint name to a URL.
type BindRemoteOperation struct {
	Endpoint string `mapstructure:"endpoint"`
	URL      string `mapstructure:"url"`
}

// Name identifies the operation.
func (operation *BindRemoteOperation) Name() string {
	return string(OperationTypeBindRemote)
}

// Execute binds the endpoint.
func (operation *BindRemoteOperation) Execute(executionContext context.Context, environment *Environment) error {
	report, bindError := environment.Service.BindEndpoint(executionContext, operation.Endpoint, operation.URL)
	if bindError != nil {
		return bindError
	}
	if environment.Reporter != nil {
		environment.Reporter.ReportBind(report)
	}
	return nil
}

// RenamePrimaryOperation renames the current line. An empty Line selects the workspace primary line.
type RenamePrimaryOperation struct {
	Line string `mapstructure:"line"`
}

// Name identifies the operation.
func (operation *RenamePrimaryOperation) Name() string {
	return string(OperationTypeRenamePrimary)
}

// Execute renames the current line.
func (operation *RenamePrimaryOperation) Execute(executionContext context.Context, environment *Environment) error {
	target := operation.Line
	if len(strings.TrimSpace(target)) == 0 {
		target = string(environment.Service.Workspace().PrimaryLine)
	}
	report, renameError := environment.Service.RenamePrimaryLine(executionContext, target)
	if renameError != nil {
		return renameError
	}
	if environment.Reporter != nil {
		environment.Reporter.ReportRename(report)
	}
	return nil
}

// PublishOperation transmits a line to an endpoint. Empty fields fall back to the workspace defaults.
type PublishOperation struct {
	Endpoint    string `mapstructure:"endpoint"`
	Line        string `mapstructure:"line"`
	SetUpstream *bool  `mapstructure:"set_upstream"`
}

// Name identifies the operation.
func (operation *PublishOperation) Name() string {
	return string(OperationTypePublish)
}

// Execute transmits the line.
func (operation *PublishOperation) Execute(executionContext context.Context, environment *Environment) error {
	setUpstream := environment.SetUpstream
	if operation.SetUpstream != nil {
		setUpstream = *operation.SetUpstream
	}

	report, transmitError := environment.Service.Transmit(executionContext, publish.TransmitRequest{
		Endpoint:    operation.Endpoint,
		Line:        operation.Line,
		SetUpstream: setUpstream,
	})
	if transmitError != nil {
		return transmitError
	}
	if environment.Reporter != nil {
		environment.Reporter.ReportTransmit(report)
	}
	return nil
}
