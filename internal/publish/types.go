package publish

import (
	"errors"
	"strings"

	"github.com/temirov/gitpublish/internal/gitrepo"
)

const (
	defaultEndpointNameConstant = "origin"
	defaultPrimaryLineConstant  = "main"
	forbiddenLabelCharacters    = " \t\r\n~^:?*[\\"
	emptyLabelReasonConstant    = "must not be empty"
	invalidLabelReasonConstant  = "contains characters not allowed in a label"
)

// EndpointName labels a remote endpoint within a workspace.
type EndpointName string

// LineName labels a line of development.
type LineName string

// NewEndpointName trims and validates an endpoint label.
func NewEndpointName(raw string, operation Step) (EndpointName, error) {
	label, labelError := validateLabel(raw, endpointFieldNameConstant, operation)
	if labelError != nil {
		return "", labelError
	}
	return EndpointName(label), nil
}

// NewLineName trims and validates a line label.
func NewLineName(raw string, operation Step) (LineName, error) {
	label, labelError := validateLabel(raw, lineFieldNameConstant, operation)
	if labelError != nil {
		return "", labelError
	}
	return LineName(label), nil
}

func validateLabel(raw string, field string, operation Step) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", ValidationError{Operation: operation, Field: field, Reason: emptyLabelReasonConstant}
	}
	if strings.ContainsAny(trimmed, forbiddenLabelCharacters) || strings.HasPrefix(trimmed, "-") || strings.Contains(trimmed, "..") {
		return "", ValidationError{Operation: operation, Field: field, Reason: invalidLabelReasonConstant}
	}
	return trimmed, nil
}

// EndpointURL is a validated endpoint address.
type EndpointURL struct {
	parsed gitrepo.EndpointURL
}

// NewEndpointURL validates an endpoint address without contacting it.
func NewEndpointURL(raw string) (EndpointURL, error) {
	parsed, parseError := gitrepo.ParseEndpointURL(raw)
	if parseError != nil {
		reason := parseError.Error()
		var endpointParseError gitrepo.EndpointURLParseError
		if errors.As(parseError, &endpointParseError) {
			reason = endpointParseError.Message
		}
		return EndpointURL{}, InvalidURLError{Input: raw, Reason: reason}
	}
	return EndpointURL{parsed: parsed}, nil
}

// String returns the address as supplied.
func (endpointURL EndpointURL) String() string {
	return endpointURL.parsed.String()
}

// Redacted returns the address with embedded passwords masked.
func (endpointURL EndpointURL) Redacted() string {
	return endpointURL.parsed.Redacted()
}

// Protocol reports the transport of the address.
func (endpointURL EndpointURL) Protocol() gitrepo.EndpointProtocol {
	return endpointURL.parsed.Protocol
}

// Workspace describes a local workspace and its defaults. It is passed explicitly
// so that no endpoint name or line name is held in process-global state.
type Workspace struct {
	Path            string
	DefaultEndpoint EndpointName
	PrimaryLine     LineName
}

// NewWorkspace builds a workspace, filling empty defaults with origin and main.
func NewWorkspace(path string, defaultEndpoint string, primaryLine string) Workspace {
	workspace := Workspace{
		Path:            strings.TrimSpace(path),
		DefaultEndpoint: EndpointName(strings.TrimSpace(defaultEndpoint)),
		PrimaryLine:     LineName(strings.TrimSpace(primaryLine)),
	}
	if len(workspace.DefaultEndpoint) == 0 {
		workspace.DefaultEndpoint = defaultEndpointNameConstant
	}
	if len(workspace.PrimaryLine) == 0 {
		workspace.PrimaryLine = defaultPrimaryLineConstant
	}
	return workspace
}

// TransmitRequest selects the endpoint and line to publish.
type TransmitRequest struct {
	Endpoint    string
	Line        string
	SetUpstream bool
}

// TransmitReport summarizes a completed transmission.
type TransmitReport struct {
	Endpoint           EndpointName
	URL                string
	Line               LineName
	LocalTip           string
	RemoteTipBefore    string
	CommitsTransmitted int
	UpstreamConfigured bool
	State              State
}

// UpToDate reports whether the endpoint already held the local tip.
func (report TransmitReport) UpToDate() bool {
	return report.CommitsTransmitted == 0 && report.RemoteTipBefore == report.LocalTip
}

// RenameReport summarizes a primary line relabel.
type RenameReport struct {
	Previous LineName
	Current  LineName
	Changed  bool
}

// BindReport summarizes an endpoint binding.
type BindReport struct {
	Endpoint EndpointName
	URL      string
	Created  bool
}
