package publish

import "context"

// Repository exposes the workspace primitives the publish workflow is built from.
//
// Implementations report transport failures from RemoteLineTip and Push as
// NetworkError, AuthenticationError or RemoteRejectedError so that callers can
// tell retryable failures apart from terminal ones.
type Repository interface {
	// Endpoints lists bound endpoint names and their URLs.
	Endpoints(executionContext context.Context) (map[EndpointName]string, error)
	// EndpointURL returns the URL bound to name and whether the name is bound.
	EndpointURL(executionContext context.Context, name EndpointName) (string, bool, error)
	// AddEndpoint binds name to url in workspace metadata.
	AddEndpoint(executionContext context.Context, name EndpointName, url EndpointURL) error
	// CurrentLine returns the line HEAD points at, which may be unborn.
	CurrentLine(executionContext context.Context) (LineName, error)
	// LineTip returns the commit a line points at and whether the line has any commit.
	LineTip(executionContext context.Context, line LineName) (string, bool, error)
	// IsAncestor reports whether ancestor is reachable from descendant; unknown commits are not ancestors.
	IsAncestor(executionContext context.Context, ancestor string, descendant string) (bool, error)
	// PointHead re-points HEAD at line without touching the working tree.
	PointHead(executionContext context.Context, line LineName) error
	// RenameLine moves line from to line to, carrying tracking configuration and HEAD.
	RenameLine(executionContext context.Context, from LineName, to LineName) error
	// DeleteLine removes a line reference and its tracking configuration.
	DeleteLine(executionContext context.Context, line LineName) error
	// RemoteLineTip queries the endpoint for the commit at line.
	RemoteLineTip(executionContext context.Context, endpoint EndpointName, line LineName) (string, bool, error)
	// CountCommits counts commits reachable from tip and not from exclude; an empty exclude counts the whole history.
	CountCommits(executionContext context.Context, tip string, exclude string) (int, error)
	// Push transmits line to the endpoint without forcing.
	Push(executionContext context.Context, endpoint EndpointName, line LineName) error
	// SetUpstream records that line tracks endpoint/line.
	SetUpstream(executionContext context.Context, line LineName, endpoint EndpointName) error
	// TransmittedFiles lists every file path present in any snapshot reachable from tip and not from exclude.
	TransmittedFiles(executionContext context.Context, tip string, exclude string) ([]string, error)
}
