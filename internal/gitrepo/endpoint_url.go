package gitrepo

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

const (
	endpointURLParseErrorTemplateConstant = "%s: %s"
	requiredValueMessageConstant          = "value required"
	whitespaceMessageConstant             = "contains whitespace"
	missingSchemeMessageConstant          = "missing scheme"
	missingHostMessageConstant            = "missing host"
	missingPathMessageConstant            = "missing repository path"
	relativeFilePathMessageConstant       = "file endpoints require an absolute path"
	unknownProtocolMessageConstant        = "unsupported protocol"
	fileSchemePrefixConstant              = "file://"
	schemeSeparatorConstant               = "://"
	pathSeparatorConstant                 = "/"
	whitespaceCharactersConstant          = " \t\r\n"
)

// EndpointProtocol enumerates the transports an endpoint may use.
type EndpointProtocol string

// Supported endpoint protocols.
const (
	EndpointProtocolHTTPS EndpointProtocol = EndpointProtocol("https")
	EndpointProtocolHTTP  EndpointProtocol = EndpointProtocol("http")
	EndpointProtocolSSH   EndpointProtocol = EndpointProtocol("ssh")
	EndpointProtocolGit   EndpointProtocol = EndpointProtocol("git")
	EndpointProtocolFile  EndpointProtocol = EndpointProtocol("file")
)

var supportedEndpointProtocols = map[EndpointProtocol]struct{}{
	EndpointProtocolHTTPS: {},
	EndpointProtocolHTTP:  {},
	EndpointProtocolSSH:   {},
	EndpointProtocolGit:   {},
	EndpointProtocolFile:  {},
}

// EndpointURL is a validated remote endpoint address.
type EndpointURL struct {
	Raw      string
	Protocol EndpointProtocol
	User     string
	Host     string
	Port     int
	Path     string
}

// String returns the address exactly as it was supplied, trimmed.
func (endpointURL EndpointURL) String() string {
	return endpointURL.Raw
}

// Redacted returns the address with any embedded password masked.
func (endpointURL EndpointURL) Redacted() string {
	if !strings.Contains(endpointURL.Raw, schemeSeparatorConstant) {
		return endpointURL.Raw
	}
	parsedURL, parseError := url.Parse(endpointURL.Raw)
	if parseError != nil {
		return endpointURL.Raw
	}
	return parsedURL.Redacted()
}

// IsLocal reports whether the endpoint addresses a path on the local filesystem.
func (endpointURL EndpointURL) IsLocal() bool {
	return endpointURL.Protocol == EndpointProtocolFile
}

// EndpointURLParseError indicates an endpoint string could not be accepted.
type EndpointURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError EndpointURLParseError) Error() string {
	return fmt.Sprintf(endpointURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// ParseEndpointURL validates a textual endpoint address without contacting it.
func ParseEndpointURL(raw string) (EndpointURL, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 {
		return EndpointURL{}, EndpointURLParseError{Input: raw, Message: requiredValueMessageConstant}
	}
	if strings.ContainsAny(trimmed, whitespaceCharactersConstant) {
		return EndpointURL{}, EndpointURLParseError{Input: trimmed, Message: whitespaceMessageConstant}
	}

	endpoint, endpointError := transport.NewEndpoint(trimmed)
	if endpointError != nil {
		return EndpointURL{}, EndpointURLParseError{Input: trimmed, Message: endpointError.Error()}
	}

	protocol := EndpointProtocol(strings.ToLower(endpoint.Protocol))
	if _, supported := supportedEndpointProtocols[protocol]; !supported {
		return EndpointURL{}, EndpointURLParseError{Input: trimmed, Message: unknownProtocolMessageConstant}
	}

	if protocol == EndpointProtocolFile {
		if !strings.HasPrefix(strings.ToLower(trimmed), fileSchemePrefixConstant) {
			return EndpointURL{}, EndpointURLParseError{Input: trimmed, Message: missingSchemeMessageConstant}
		}
		if !strings.HasPrefix(endpoint.Path, pathSeparatorConstant) {
			return EndpointURL{}, EndpointURLParseError{Input: trimmed, Message: relativeFilePathMessageConstant}
		}
	} else if len(endpoint.Host) == 0 {
		return EndpointURL{}, EndpointURLParseError{Input: trimmed, Message: missingHostMessageConstant}
	}

	if len(strings.Trim(endpoint.Path, pathSeparatorConstant)) == 0 {
		return EndpointURL{}, EndpointURLParseError{Input: trimmed, Message: missingPathMessageConstant}
	}

	return EndpointURL{
		Raw:      trimmed,
		Protocol: protocol,
		User:     endpoint.User,
		Host:     endpoint.Host,
		Port:     endpoint.Port,
		Path:     endpoint.Path,
	}, nil
}
