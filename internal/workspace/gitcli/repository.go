package gitcli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/temirov/gitpublish/internal/execshell"
	"github.com/temirov/gitpublish/internal/gitrepo"
	"github.com/temirov/gitpublish/internal/publish"
)

const (
	gitConfigSubcommandConstant      = "config"
	gitGetFlagConstant               = "--get"
	gitGetRegexpFlagConstant         = "--get-regexp"
	gitRemoteSubcommandConstant      = "remote"
	gitAddSubcommandConstant         = "add"
	gitSymbolicRefSubcommandConstant = "symbolic-ref"
	gitQuietFlagConstant             = "--quiet"
	gitShortFlagConstant             = "--short"
	gitRevParseSubcommandConstant    = "rev-parse"
	gitVerifyFlagConstant            = "--verify"
	gitCatFileSubcommandConstant     = "cat-file"
	gitExistsFlagConstant            = "-e"
	gitMergeBaseSubcommandConstant   = "merge-base"
	gitIsAncestorFlagConstant        = "--is-ancestor"
	gitBranchSubcommandConstant      = "branch"
	gitMoveFlagConstant              = "-m"
	gitForceDeleteFlagConstant       = "-D"
	gitLSRemoteSubcommandConstant    = "ls-remote"
	gitHeadsFlagConstant             = "--heads"
	gitRevListSubcommandConstant     = "rev-list"
	gitCountFlagConstant             = "--count"
	gitPushSubcommandConstant        = "push"
	gitPorcelainFlagConstant         = "--porcelain"
	gitLSTreeSubcommandConstant      = "ls-tree"
	gitRecursiveFlagConstant         = "-r"
	gitNameOnlyFlagConstant          = "--name-only"
	gitNullTerminatedFlagConstant    = "-z"
	headReferenceConstant            = "HEAD"
	branchReferencePrefixConstant    = "refs/heads/"
	commitSuffixConstant             = "^{commit}"
	excludePrefixConstant            = "^"
	nullSeparatorConstant            = "\x00"
	pushRefSpecTemplateConstant      = "%s:%s"
	remoteURLKeyTemplateConstant     = "remote.%s.url"
	remoteURLPatternConstant         = `^remote\..*\.url$`
	remoteURLKeyPrefixConstant       = "remote."
	remoteURLKeySuffixConstant       = ".url"
	branchRemoteKeyTemplateConstant  = "branch.%s.remote"
	branchMergeKeyTemplateConstant   = "branch.%s.merge"
	terminalPromptVariableConstant   = "GIT_TERMINAL_PROMPT"
	terminalPromptDisabledConstant   = "0"
	configCountVariableConstant      = "GIT_CONFIG_COUNT"
	configKeyVariableConstant        = "GIT_CONFIG_KEY_0"
	configValueVariableConstant      = "GIT_CONFIG_VALUE_0"
	extraHeaderKeyConstant           = "http.extraHeader"
	extraHeaderTemplateConstant      = "Authorization: Basic %s"
	defaultBasicAuthUsernameConstant = "git"
	basicAuthPairTemplateConstant    = "%s:%s"
	notFoundExitCodeConstant         = 1
	detachedHeadErrorConstant        = "HEAD is detached"
	unexpectedCountTemplateConstant  = "unexpected commit count %q: %w"
)

// ErrExecutorNotConfigured indicates a missing git executor.
var ErrExecutorNotConfigured = errors.New("git executor not configured")

// GitExecutor runs git commands.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Credentials configures HTTP basic authentication for http and https endpoints.
type Credentials struct {
	Username string
	Token    string
}

// Repository implements publish.Repository by shelling out to git.
type Repository struct {
	executor         GitExecutor
	workingDirectory string
	credentials      Credentials
}

// New constructs a Repository rooted at workingDirectory.
func New(executor GitExecutor, workingDirectory string, credentials Credentials) (*Repository, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &Repository{executor: executor, workingDirectory: workingDirectory, credentials: credentials}, nil
}

// Endpoints lists bound endpoints.
func (repository *Repository) Endpoints(executionContext context.Context) (map[publish.EndpointName]string, error) {
	output, found, lookupError := repository.runLookup(executionContext, gitConfigSubcommandConstant, gitGetRegexpFlagConstant, remoteURLPatternConstant)
	if lookupError != nil {
		return nil, lookupError
	}
	endpoints := map[publish.EndpointName]string{}
	if !found {
		return endpoints, nil
	}
	for _, line := range strings.Split(output, "\n") {
		key, value, hasValue := strings.Cut(strings.TrimSpace(line), " ")
		if !hasValue {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, remoteURLKeyPrefixConstant), remoteURLKeySuffixConstant)
		if _, seen := endpoints[publish.EndpointName(name)]; !seen {
			endpoints[publish.EndpointName(name)] = strings.TrimSpace(value)
		}
	}
	return endpoints, nil
}

// EndpointURL returns the URL bound to name.
func (repository *Repository) EndpointURL(executionContext context.Context, name publish.EndpointName) (string, bool, error) {
	output, found, lookupError := repository.runLookup(executionContext, gitConfigSubcommandConstant, gitGetFlagConstant, fmt.Sprintf(remoteURLKeyTemplateConstant, name))
	if lookupError != nil || !found {
		return "", false, lookupError
	}
	return strings.TrimSpace(output), true, nil
}

// AddEndpoint binds name to url.
func (repository *Repository) AddEndpoint(executionContext context.Context, name publish.EndpointName, url publish.EndpointURL) error {
	_, runError := repository.run(executionContext, nil, gitRemoteSubcommandConstant, gitAddSubcommandConstant, string(name), url.String())
	return runError
}

// CurrentLine returns the branch HEAD points at, including an unborn one.
func (repository *Repository) CurrentLine(executionContext context.Context) (publish.LineName, error) {
	output, found, lookupError := repository.runLookup(executionContext, gitSymbolicRefSubcommandConstant, gitQuietFlagConstant, gitShortFlagConstant, headReferenceConstant)
	if lookupError != nil {
		return "", lookupError
	}
	if !found {
		return "", errors.New(detachedHeadErrorConstant)
	}
	return publish.LineName(strings.TrimSpace(output)), nil
}

// LineTip returns the commit a branch points at.
func (repository *Repository) LineTip(executionContext context.Context, line publish.LineName) (string, bool, error) {
	output, found, lookupError := repository.runLookup(executionContext, gitRevParseSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, branchReferencePrefixConstant+string(line)+commitSuffixConstant)
	if lookupError != nil || !found {
		return "", false, lookupError
	}
	return strings.TrimSpace(output), true, nil
}

// IsAncestor reports whether ancestor is reachable from descendant. Commits unknown to the workspace are not ancestors.
func (repository *Repository) IsAncestor(executionContext context.Context, ancestor string, descendant string) (bool, error) {
	known, knownError := repository.commitExists(executionContext, ancestor)
	if knownError != nil || !known {
		return false, knownError
	}
	_, isAncestor, lookupError := repository.runLookup(executionContext, gitMergeBaseSubcommandConstant, gitIsAncestorFlagConstant, ancestor, descendant)
	return isAncestor, lookupError
}

// PointHead re-points HEAD at line.
func (repository *Repository) PointHead(executionContext context.Context, line publish.LineName) error {
	_, runError := repository.run(executionContext, nil, gitSymbolicRefSubcommandConstant, headReferenceConstant, branchReferencePrefixConstant+string(line))
	return runError
}

// RenameLine moves a branch; git carries its configuration and HEAD along.
func (repository *Repository) RenameLine(executionContext context.Context, from publish.LineName, to publish.LineName) error {
	_, runError := repository.run(executionContext, nil, gitBranchSubcommandConstant, gitMoveFlagConstant, string(from), string(to))
	return runError
}

// DeleteLine removes a branch and its configuration.
func (repository *Repository) DeleteLine(executionContext context.Context, line publish.LineName) error {
	_, runError := repository.run(executionContext, nil, gitBranchSubcommandConstant, gitForceDeleteFlagConstant, string(line))
	return runError
}

// RemoteLineTip asks the endpoint for the commit at line.
func (repository *Repository) RemoteLineTip(executionContext context.Context, endpoint publish.EndpointName, line publish.LineName) (string, bool, error) {
	endpointURL, bound, lookupError := repository.EndpointURL(executionContext, endpoint)
	if lookupError != nil {
		return "", false, lookupError
	}
	if !bound {
		return "", false, publish.UnboundEndpointError{Endpoint: endpoint}
	}

	branchReference := branchReferencePrefixConstant + string(line)
	output, runError := repository.run(executionContext, repository.transportEnvironment(endpointURL), gitLSRemoteSubcommandConstant, gitHeadsFlagConstant, string(endpoint), branchReference)
	if runError != nil {
		return "", false, classifyTransportError(executionContext, endpoint, line, runError)
	}

	for _, outputLine := range strings.Split(output, "\n") {
		fields := strings.Fields(outputLine)
		if len(fields) == 2 && fields[1] == branchReference {
			return fields[0], true, nil
		}
	}
	return "", false, nil
}

// CountCommits counts commits reachable from tip and not from exclude.
func (repository *Repository) CountCommits(executionContext context.Context, tip string, exclude string) (int, error) {
	arguments, rangeError := repository.rangeArguments(executionContext, []string{gitRevListSubcommandConstant, gitCountFlagConstant}, tip, exclude)
	if rangeError != nil {
		return 0, rangeError
	}

	output, runError := repository.run(executionContext, nil, arguments...)
	if runError != nil {
		return 0, runError
	}
	count, parseError := strconv.Atoi(strings.TrimSpace(output))
	if parseError != nil {
		return 0, fmt.Errorf(unexpectedCountTemplateConstant, output, parseError)
	}
	return count, nil
}

// Push transmits line to endpoint. The refspec never carries a force marker.
func (repository *Repository) Push(executionContext context.Context, endpoint publish.EndpointName, line publish.LineName) error {
	endpointURL, bound, lookupError := repository.EndpointURL(executionContext, endpoint)
	if lookupError != nil {
		return lookupError
	}
	if !bound {
		return publish.UnboundEndpointError{Endpoint: endpoint}
	}

	branchReference := branchReferencePrefixConstant + string(line)
	refSpec := fmt.Sprintf(pushRefSpecTemplateConstant, branchReference, branchReference)
	_, runError := repository.run(executionContext, repository.transportEnvironment(endpointURL), gitPushSubcommandConstant, gitPorcelainFlagConstant, string(endpoint), refSpec)
	if runError != nil {
		return classifyTransportError(executionContext, endpoint, line, runError)
	}
	return nil
}

// SetUpstream records that line tracks endpoint/line.
func (repository *Repository) SetUpstream(executionContext context.Context, line publish.LineName, endpoint publish.EndpointName) error {
	if _, remoteError := repository.run(executionContext, nil, gitConfigSubcommandConstant, fmt.Sprintf(branchRemoteKeyTemplateConstant, line), string(endpoint)); remoteError != nil {
		return remoteError
	}
	_, mergeError := repository.run(executionContext, nil, gitConfigSubcommandConstant, fmt.Sprintf(branchMergeKeyTemplateConstant, line), branchReferencePrefixConstant+string(line))
	return mergeError
}

// TransmittedFiles lists every file path in the trees of the commits reachable from tip and not from exclude.
func (repository *Repository) TransmittedFiles(executionContext context.Context, tip string, exclude string) ([]string, error) {
	arguments, rangeError := repository.rangeArguments(executionContext, []string{gitRevListSubcommandConstant}, tip, exclude)
	if rangeError != nil {
		return nil, rangeError
	}
	output, runError := repository.run(executionContext, nil, arguments...)
	if runError != nil {
		return nil, runError
	}

	seen := map[string]struct{}{}
	for _, commit := range strings.Fields(output) {
		treeOutput, treeError := repository.run(executionContext, nil, gitLSTreeSubcommandConstant, gitRecursiveFlagConstant, gitNameOnlyFlagConstant, gitNullTerminatedFlagConstant, commit)
		if treeError != nil {
			return nil, treeError
		}
		for _, path := range strings.Split(treeOutput, nullSeparatorConstant) {
			if len(path) > 0 {
				seen[path] = struct{}{}
			}
		}
	}

	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// rangeArguments appends tip and, when the local object store knows it, ^exclude.
func (repository *Repository) rangeArguments(executionContext context.Context, arguments []string, tip string, exclude string) ([]string, error) {
	arguments = append(arguments, tip)
	if len(exclude) == 0 {
		return arguments, nil
	}
	known, knownError := repository.commitExists(executionContext, exclude)
	if knownError != nil {
		return nil, knownError
	}
	if known {
		arguments = append(arguments, excludePrefixConstant+exclude)
	}
	return arguments, nil
}

func (repository *Repository) commitExists(executionContext context.Context, hash string) (bool, error) {
	_, found, lookupError := repository.runLookup(executionContext, gitCatFileSubcommandConstant, gitExistsFlagConstant, hash+commitSuffixConstant)
	if lookupError != nil {
		var failedError execshell.CommandFailedError
		if errors.As(lookupError, &failedError) {
			return false, nil
		}
	}
	return found, lookupError
}

func (repository *Repository) transportEnvironment(rawURL string) map[string]string {
	environment := map[string]string{terminalPromptVariableConstant: terminalPromptDisabledConstant}
	if len(strings.TrimSpace(repository.credentials.Token)) == 0 {
		return environment
	}
	endpointURL, parseError := gitrepo.ParseEndpointURL(rawURL)
	if parseError != nil {
		return environment
	}
	if endpointURL.Protocol != gitrepo.EndpointProtocolHTTPS && endpointURL.Protocol != gitrepo.EndpointProtocolHTTP {
		return environment
	}

	username := strings.TrimSpace(repository.credentials.Username)
	if len(username) == 0 {
		username = defaultBasicAuthUsernameConstant
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf(basicAuthPairTemplateConstant, username, repository.credentials.Token)))
	environment[configCountVariableConstant] = "1"
	environment[configKeyVariableConstant] = extraHeaderKeyConstant
	environment[configValueVariableConstant] = fmt.Sprintf(extraHeaderTemplateConstant, encoded)
	return environment
}

func (repository *Repository) run(executionContext context.Context, environment map[string]string, arguments ...string) (string, error) {
	result, executionError := repository.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     repository.workingDirectory,
		EnvironmentVariables: environment,
	})
	if executionError != nil {
		return "", executionError
	}
	return result.StandardOutput, nil
}

// runLookup treats exit status 1 as "not found" rather than as a failure.
func (repository *Repository) runLookup(executionContext context.Context, arguments ...string) (string, bool, error) {
	output, runError := repository.run(executionContext, nil, arguments...)
	if runError == nil {
		return output, true, nil
	}
	var failedError execshell.CommandFailedError
	if errors.As(runError, &failedError) && failedError.Result.ExitCode == notFoundExitCodeConstant {
		return "", false, nil
	}
	return "", false, runError
}
