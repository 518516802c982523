package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/temirov/gitpublish/internal/publish"
)

// Operation executes a single workflow step.
type Operation interface {
	Name() string
	Execute(executionContext context.Context, environment *Environment) error
}

// PublishService is the subset of publish.Service used by workflow operations.
type PublishService interface {
	BindEndpoint(executionContext context.Context, rawName string, rawURL string) (publish.BindReport, error)
	RenamePrimaryLine(executionContext context.Context, rawName string) (publish.RenameReport, error)
	Transmit(executionContext context.Context, request publish.TransmitRequest) (publish.TransmitReport, error)
	Workspace() publish.Workspace
}

// Reporter renders operation outcomes for the operator.
type Reporter interface {
	ReportBind(report publish.BindReport)
	ReportRename(report publish.RenameReport)
	ReportTransmit(report publish.TransmitReport)
}

// Environment exposes shared dependencies for workflow operations.
type Environment struct {
	Service  PublishService
	Reporter Reporter
	Logger   *zap.Logger
	// SetUpstream applies to publish steps that do not set it themselves.
	SetUpstream bool
}
