package gogit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/temirov/gitpublish/internal/gitrepo"
	"github.com/temirov/gitpublish/internal/publish"
)

const (
	openRepositoryErrorTemplateConstant = "unable to open workspace %s: %w"
	detachedHeadErrorTemplateConstant   = "HEAD is detached at %s"
	missingLineErrorTemplateConstant    = "line %s does not exist"
	commitLookupErrorTemplateConstant   = "unable to load commit %s: %w"
	commitTreeErrorTemplateConstant     = "unable to load tree of commit %s: %w"
	pushRefSpecTemplateConstant         = "%s:%s"
	defaultBasicAuthUsernameConstant    = "git"
	logFieldPathConstant                = "path"
	logFieldEndpointConstant            = "endpoint"
	logFieldLineConstant                = "line"
	logFieldTipConstant                 = "tip"
	repositoryOpenedMessageConstant     = "opened workspace with go-git"
	remoteListedMessageConstant         = "listed endpoint references"
	pushCompletedMessageConstant        = "pushed line"
	pushUpToDateMessageConstant         = "endpoint already up to date"
)

// Credentials configures HTTP basic authentication for http and https endpoints.
type Credentials struct {
	Username string
	Token    string
}

// Options configures Open.
type Options struct {
	Path        string
	Credentials Credentials
	Logger      *zap.Logger
}

// Repository implements publish.Repository on top of go-git.
type Repository struct {
	repository  *git.Repository
	path        string
	credentials Credentials
	logger      *zap.Logger
}

// Open opens the workspace at options.Path, searching parent directories for the .git directory.
func Open(options Options) (*Repository, error) {
	repository, openError := git.PlainOpenWithOptions(options.Path, &git.PlainOpenOptions{DetectDotGit: true})
	if openError != nil {
		return nil, fmt.Errorf(openRepositoryErrorTemplateConstant, options.Path, openError)
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug(repositoryOpenedMessageConstant, zap.String(logFieldPathConstant, options.Path))

	return &Repository{repository: repository, path: options.Path, credentials: options.Credentials, logger: logger}, nil
}

// Endpoints lists bound endpoints.
func (repository *Repository) Endpoints(context.Context) (map[publish.EndpointName]string, error) {
	remotes, remotesError := repository.repository.Remotes()
	if remotesError != nil {
		return nil, remotesError
	}
	endpoints := make(map[publish.EndpointName]string, len(remotes))
	for _, remote := range remotes {
		remoteConfig := remote.Config()
		endpoints[publish.EndpointName(remoteConfig.Name)] = firstURL(remoteConfig)
	}
	return endpoints, nil
}

// EndpointURL returns the URL bound to name.
func (repository *Repository) EndpointURL(_ context.Context, name publish.EndpointName) (string, bool, error) {
	remote, remoteError := repository.repository.Remote(string(name))
	if errors.Is(remoteError, git.ErrRemoteNotFound) {
		return "", false, nil
	}
	if remoteError != nil {
		return "", false, remoteError
	}
	return firstURL(remote.Config()), true, nil
}

// AddEndpoint binds name to url.
func (repository *Repository) AddEndpoint(_ context.Context, name publish.EndpointName, url publish.EndpointURL) error {
	_, createError := repository.repository.CreateRemote(&config.RemoteConfig{Name: string(name), URLs: []string{url.String()}})
	return createError
}

// CurrentLine returns the branch HEAD points at.
func (repository *Repository) CurrentLine(context.Context) (publish.LineName, error) {
	head, headError := repository.repository.Storer.Reference(plumbing.HEAD)
	if headError != nil {
		return "", headError
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return "", fmt.Errorf(detachedHeadErrorTemplateConstant, head.Hash())
	}
	return publish.LineName(head.Target().Short()), nil
}

// LineTip returns the commit a branch points at.
func (repository *Repository) LineTip(_ context.Context, line publish.LineName) (string, bool, error) {
	reference, referenceError := repository.repository.Reference(plumbing.NewBranchReferenceName(string(line)), true)
	if errors.Is(referenceError, plumbing.ErrReferenceNotFound) {
		return "", false, nil
	}
	if referenceError != nil {
		return "", false, referenceError
	}
	return reference.Hash().String(), true, nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (repository *Repository) IsAncestor(_ context.Context, ancestor string, descendant string) (bool, error) {
	ancestorCommit, ancestorError := repository.repository.CommitObject(plumbing.NewHash(ancestor))
	if errors.Is(ancestorError, plumbing.ErrObjectNotFound) {
		return false, nil
	}
	if ancestorError != nil {
		return false, fmt.Errorf(commitLookupErrorTemplateConstant, ancestor, ancestorError)
	}
	descendantCommit, descendantError := repository.repository.CommitObject(plumbing.NewHash(descendant))
	if descendantError != nil {
		return false, fmt.Errorf(commitLookupErrorTemplateConstant, descendant, descendantError)
	}
	return ancestorCommit.IsAncestor(descendantCommit)
}

// PointHead re-points HEAD at line.
func (repository *Repository) PointHead(_ context.Context, line publish.LineName) error {
	return repository.repository.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(string(line))))
}

// RenameLine moves the branch reference, its tracking configuration and HEAD from one name to another.
func (repository *Repository) RenameLine(executionContext context.Context, from publish.LineName, to publish.LineName) error {
	fromReferenceName := plumbing.NewBranchReferenceName(string(from))
	reference, referenceError := repository.repository.Reference(fromReferenceName, true)
	if errors.Is(referenceError, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf(missingLineErrorTemplateConstant, from)
	}
	if referenceError != nil {
		return referenceError
	}

	if setError := repository.repository.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(string(to)), reference.Hash())); setError != nil {
		return setError
	}

	repositoryConfig, configError := repository.repository.Config()
	if configError != nil {
		return configError
	}
	if branch, tracked := repositoryConfig.Branches[string(from)]; tracked {
		delete(repositoryConfig.Branches, string(from))
		repositoryConfig.Branches[string(to)] = &config.Branch{Name: string(to), Remote: branch.Remote, Merge: branch.Merge, Rebase: branch.Rebase}
		if setConfigError := repository.repository.SetConfig(repositoryConfig); setConfigError != nil {
			return setConfigError
		}
	}

	current, currentError := repository.CurrentLine(executionContext)
	if currentError == nil && current == from {
		if pointError := repository.PointHead(executionContext, to); pointError != nil {
			return pointError
		}
	}

	return repository.repository.Storer.RemoveReference(fromReferenceName)
}

// DeleteLine removes a branch and its tracking configuration.
func (repository *Repository) DeleteLine(_ context.Context, line publish.LineName) error {
	if removeError := repository.repository.Storer.RemoveReference(plumbing.NewBranchReferenceName(string(line))); removeError != nil {
		return removeError
	}
	repositoryConfig, configError := repository.repository.Config()
	if configError != nil {
		return configError
	}
	if _, tracked := repositoryConfig.Branches[string(line)]; !tracked {
		return nil
	}
	delete(repositoryConfig.Branches, string(line))
	return repository.repository.SetConfig(repositoryConfig)
}

// RemoteLineTip lists the endpoint references and returns the commit at line.
func (repository *Repository) RemoteLineTip(executionContext context.Context, endpoint publish.EndpointName, line publish.LineName) (string, bool, error) {
	remote, remoteError := repository.repository.Remote(string(endpoint))
	if errors.Is(remoteError, git.ErrRemoteNotFound) {
		return "", false, publish.UnboundEndpointError{Endpoint: endpoint}
	}
	if remoteError != nil {
		return "", false, remoteError
	}

	references, listError := remote.ListContext(executionContext, &git.ListOptions{Auth: repository.authFor(remote.Config())})
	if errors.Is(listError, transport.ErrEmptyRemoteRepository) {
		return "", false, nil
	}
	if listError != nil {
		return "", false, classifyTransportError(executionContext, endpoint, line, listError)
	}

	repository.logger.Debug(remoteListedMessageConstant, zap.String(logFieldEndpointConstant, string(endpoint)), zap.Int("references", len(references)))
	branchReferenceName := plumbing.NewBranchReferenceName(string(line))
	for _, reference := range references {
		if reference.Name() == branchReferenceName && reference.Type() == plumbing.HashReference {
			return reference.Hash().String(), true, nil
		}
	}
	return "", false, nil
}

// CountCommits counts commits reachable from tip and not from exclude.
func (repository *Repository) CountCommits(_ context.Context, tip string, exclude string) (int, error) {
	commits, rangeError := repository.commitRange(tip, exclude)
	if rangeError != nil {
		return 0, rangeError
	}
	return len(commits), nil
}

// Push transmits line to endpoint. The refspec never carries a force marker.
func (repository *Repository) Push(executionContext context.Context, endpoint publish.EndpointName, line publish.LineName) error {
	remote, remoteError := repository.repository.Remote(string(endpoint))
	if errors.Is(remoteError, git.ErrRemoteNotFound) {
		return publish.UnboundEndpointError{Endpoint: endpoint}
	}
	if remoteError != nil {
		return remoteError
	}

	branchReferenceName := plumbing.NewBranchReferenceName(string(line))
	refSpec := config.RefSpec(fmt.Sprintf(pushRefSpecTemplateConstant, branchReferenceName, branchReferenceName))
	pushError := remote.PushContext(executionContext, &git.PushOptions{
		RemoteName: string(endpoint),
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       repository.authFor(remote.Config()),
	})
	if errors.Is(pushError, git.NoErrAlreadyUpToDate) {
		repository.logger.Debug(pushUpToDateMessageConstant, zap.String(logFieldEndpointConstant, string(endpoint)), zap.String(logFieldLineConstant, string(line)))
		return nil
	}
	if pushError != nil {
		return classifyTransportError(executionContext, endpoint, line, pushError)
	}

	repository.logger.Debug(pushCompletedMessageConstant, zap.String(logFieldEndpointConstant, string(endpoint)), zap.String(logFieldLineConstant, string(line)))
	return nil
}

// SetUpstream records that line tracks endpoint/line.
func (repository *Repository) SetUpstream(_ context.Context, line publish.LineName, endpoint publish.EndpointName) error {
	repositoryConfig, configError := repository.repository.Config()
	if configError != nil {
		return configError
	}

	branch := &config.Branch{Name: string(line)}
	if existing, tracked := repositoryConfig.Branches[string(line)]; tracked {
		branch.Rebase = existing.Rebase
	}
	branch.Remote = string(endpoint)
	branch.Merge = plumbing.NewBranchReferenceName(string(line))
	repositoryConfig.Branches[string(line)] = branch

	return repository.repository.SetConfig(repositoryConfig)
}

// TransmittedFiles lists every file path in the trees of the commits reachable from tip and not from exclude.
func (repository *Repository) TransmittedFiles(_ context.Context, tip string, exclude string) ([]string, error) {
	if _, commitError := repository.repository.CommitObject(plumbing.NewHash(tip)); commitError != nil {
		return nil, fmt.Errorf(commitLookupErrorTemplateConstant, tip, commitError)
	}
	commits, rangeError := repository.commitRange(tip, exclude)
	if rangeError != nil {
		return nil, rangeError
	}

	seen := map[string]struct{}{}
	for _, commit := range commits {
		tree, treeError := commit.Tree()
		if treeError != nil {
			return nil, fmt.Errorf(commitTreeErrorTemplateConstant, commit.Hash, treeError)
		}
		iterationError := tree.Files().ForEach(func(file *object.File) error {
			seen[file.Name] = struct{}{}
			return nil
		})
		if iterationError != nil {
			return nil, iterationError
		}
	}

	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// commitRange returns the commits reachable from tip and not from exclude. An exclude
// unknown to the local object store excludes nothing.
func (repository *Repository) commitRange(tip string, exclude string) ([]*object.Commit, error) {
	excluded := map[plumbing.Hash]struct{}{}
	if len(exclude) > 0 {
		if _, lookupError := repository.repository.CommitObject(plumbing.NewHash(exclude)); lookupError == nil {
			if collectError := repository.walk(plumbing.NewHash(exclude), func(commit *object.Commit) {
				excluded[commit.Hash] = struct{}{}
			}); collectError != nil {
				return nil, collectError
			}
		}
	}

	commits := make([]*object.Commit, 0)
	walkError := repository.walk(plumbing.NewHash(tip), func(commit *object.Commit) {
		if _, skip := excluded[commit.Hash]; !skip {
			commits = append(commits, commit)
		}
	})
	return commits, walkError
}

func (repository *Repository) walk(from plumbing.Hash, visit func(commit *object.Commit)) error {
	commits, logError := repository.repository.Log(&git.LogOptions{From: from})
	if logError != nil {
		return logError
	}
	defer commits.Close()

	for {
		commit, nextError := commits.Next()
		if errors.Is(nextError, io.EOF) {
			return nil
		}
		if nextError != nil {
			return nextError
		}
		visit(commit)
	}
}

func (repository *Repository) authFor(remoteConfig *config.RemoteConfig) transport.AuthMethod {
	if len(strings.TrimSpace(repository.credentials.Token)) == 0 {
		return nil
	}
	endpointURL, parseError := gitrepo.ParseEndpointURL(firstURL(remoteConfig))
	if parseError != nil {
		return nil
	}
	if endpointURL.Protocol != gitrepo.EndpointProtocolHTTPS && endpointURL.Protocol != gitrepo.EndpointProtocolHTTP {
		return nil
	}
	username := strings.TrimSpace(repository.credentials.Username)
	if len(username) == 0 {
		username = defaultBasicAuthUsernameConstant
	}
	return &http.BasicAuth{Username: username, Password: repository.credentials.Token}
}

func firstURL(remoteConfig *config.RemoteConfig) string {
	if remoteConfig == nil || len(remoteConfig.URLs) == 0 {
		return ""
	}
	return remoteConfig.URLs[0]
}
