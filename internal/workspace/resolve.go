// Package workspace selects and constructs the backend that implements the publish workspace primitives.
package workspace

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gitpublish/internal/execshell"
	"github.com/temirov/gitpublish/internal/publish"
	"github.com/temirov/gitpublish/internal/workspace/gitcli"
	"github.com/temirov/gitpublish/internal/workspace/gogit"
)

// Backend names a workspace implementation.
type Backend string

// Supported backends.
const (
	BackendGoGit  Backend = "gogit"
	BackendGitCLI Backend = "git-cli"
)

const (
	unsupportedBackendTemplateConstant = "unsupported workspace backend %q (expected %s or %s)"
	backendFieldNameConstant           = "backend"
)

// Credentials configures HTTP authentication shared by both backends.
type Credentials struct {
	Username string
	Token    string
}

// Options configures ResolveRepository.
type Options struct {
	Backend     string
	Path        string
	Credentials Credentials
	Logger      *zap.Logger
	// Executor and CommandObserver apply to the git-cli backend only.
	Executor        gitcli.GitExecutor
	CommandObserver execshell.CommandEventObserver
}

// ParseBackend normalizes a backend name; the empty string selects go-git.
func ParseBackend(raw string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(raw))) {
	case "", BackendGoGit:
		return BackendGoGit, nil
	case BackendGitCLI:
		return BackendGitCLI, nil
	}
	return "", publish.ValidationError{
		Operation: publish.StepTransmit,
		Field:     backendFieldNameConstant,
		Reason:    fmt.Sprintf(unsupportedBackendTemplateConstant, raw, BackendGoGit, BackendGitCLI),
	}
}

// ResolveRepository constructs the publish.Repository selected by options.Backend.
func ResolveRepository(options Options) (publish.Repository, error) {
	backend, backendError := ParseBackend(options.Backend)
	if backendError != nil {
		return nil, backendError
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if backend == BackendGitCLI {
		executor, executorError := ResolveGitExecutor(options.Executor, logger, options.CommandObserver)
		if executorError != nil {
			return nil, executorError
		}
		return gitcli.New(executor, options.Path, gitcli.Credentials(options.Credentials))
	}

	return gogit.Open(gogit.Options{
		Path:        options.Path,
		Credentials: gogit.Credentials(options.Credentials),
		Logger:      logger,
	})
}

// ResolveGitExecutor returns the provided executor or constructs a shell-backed default.
func ResolveGitExecutor(existing gitcli.GitExecutor, logger *zap.Logger, observer execshell.CommandEventObserver) (gitcli.GitExecutor, error) {
	if existing != nil {
		return existing, nil
	}

	var executorOptions []execshell.ShellExecutorOption
	if observer != nil {
		executorOptions = append(executorOptions, execshell.WithCommandEventObserver(observer))
	}
	shellExecutor, creationError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), executorOptions...)
	if creationError != nil {
		return nil, creationError
	}
	return shellExecutor, nil
}
