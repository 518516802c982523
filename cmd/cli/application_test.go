package cli_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/stretchr/testify/require"

	"github.com/temirov/gitpublish/cmd/cli"
	"github.com/temirov/gitpublish/internal/publish"
	pathutils "github.com/temirov/gitpublish/internal/utils/path"
	"github.com/temirov/gitpublish/internal/workspace"
)

const (
	testEndpointNameConstant        = "origin"
	testScenarioEndpointURLConstant = "https://example.com/user/repo.git"
	testWorkflowEndpointURLConstant = "https://example.com/workflow/repo.git"
	testConflictingURLConstant      = "https://example.com/other/repo.git"
	testUnreachableURLConstant      = "http://127.0.0.1:1/user/repo.git"
	testPrimaryLineConstant         = "main"
	testReadmeFileConstant          = "README.md"
	testAuthorNameConstant          = "Publisher"
	testAuthorEmailConstant         = "publisher@example.com"
	testConfigurationFileConstant   = "config.yaml"
	testWorkflowFileConstant        = "workflow.yaml"
	testWorkflowContentsConstant    = `steps:
  - operation: bind-remote
    with:
      endpoint: origin
      url: https://example.com/workflow/repo.git
  - operation: rename-primary
    with:
      line: main
  - operation: publish
    with:
      set_upstream: true
`
)

var endpointRoot string

// TestMain serves file and https endpoints in process from bare repositories under endpointRoot,
// so https://example.com/<owner>/<name> resolves to endpointRoot/<owner>/<name>.
func TestMain(testMain *testing.M) {
	temporaryRoot, rootError := os.MkdirTemp("", "gitpublish-endpoints-")
	if rootError != nil {
		panic(rootError)
	}
	endpointRoot = temporaryRoot
	client.InstallProtocol("file", server.DefaultServer)
	client.InstallProtocol("https", server.NewServer(server.NewFilesystemLoader(osfs.New(endpointRoot))))

	exitCode := testMain.Run()
	_ = os.RemoveAll(endpointRoot)
	os.Exit(exitCode)
}

type workspaceFixture struct {
	directory  string
	repository *git.Repository
}

func newWorkspaceFixture(testInstance *testing.T) *workspaceFixture {
	testInstance.Helper()
	directory := testInstance.TempDir()
	repository, initError := git.PlainInit(directory, false)
	require.NoError(testInstance, initError)
	return &workspaceFixture{directory: directory, repository: repository}
}

func (fixture *workspaceFixture) commitFile(testInstance *testing.T, relativePath string, contents string) string {
	testInstance.Helper()
	absolutePath := filepath.Join(fixture.directory, relativePath)
	require.NoError(testInstance, os.MkdirAll(filepath.Dir(absolutePath), 0o755))
	require.NoError(testInstance, os.WriteFile(absolutePath, []byte(contents), 0o644))

	worktree, worktreeError := fixture.repository.Worktree()
	require.NoError(testInstance, worktreeError)
	_, addError := worktree.Add(relativePath)
	require.NoError(testInstance, addError)
	return fixture.commit(testInstance, worktree, "add "+relativePath)
}

func (fixture *workspaceFixture) removeFile(testInstance *testing.T, relativePath string) string {
	testInstance.Helper()
	worktree, worktreeError := fixture.repository.Worktree()
	require.NoError(testInstance, worktreeError)
	_, removeError := worktree.Remove(relativePath)
	require.NoError(testInstance, removeError)
	return fixture.commit(testInstance, worktree, "remove "+relativePath)
}

func (fixture *workspaceFixture) commit(testInstance *testing.T, worktree *git.Worktree, message string) string {
	testInstance.Helper()
	hash, commitError := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: testAuthorNameConstant, Email: testAuthorEmailConstant, When: time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)},
	})
	require.NoError(testInstance, commitError)
	return hash.String()
}

func newBareEndpoint(testInstance *testing.T, owner string) *git.Repository {
	testInstance.Helper()
	directory := filepath.Join(endpointRoot, owner, "repo.git")
	repository, initError := git.PlainInit(directory, true)
	require.NoError(testInstance, initError)
	testInstance.Cleanup(func() {
		_ = os.RemoveAll(filepath.Join(endpointRoot, owner))
	})
	return repository
}

func newApplication(testInstance *testing.T, options ...cli.ApplicationOption) *cli.Application {
	testInstance.Helper()
	homeDirectory := testInstance.TempDir()
	defaults := []cli.ApplicationOption{
		cli.WithDiagnosticOutput(io.Discard),
		cli.WithHomeExpander(pathutils.NewHomeExpanderWithProvider(func() (string, error) {
			return homeDirectory, nil
		})),
	}
	return cli.NewApplication(append(defaults, options...)...)
}

func runCommand(testInstance *testing.T, workspaceDirectory string, arguments ...string) (string, error) {
	testInstance.Helper()
	output := &bytes.Buffer{}
	fullArguments := append([]string{"--workspace", workspaceDirectory}, arguments...)
	executionError := newApplication(testInstance).ExecuteContext(context.Background(), fullArguments, output)
	return output.String(), executionError
}

func TestPublishScenarioTransmitsSingleCommit(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance)
	commitHash := fixture.commitFile(testInstance, testReadmeFileConstant, "hello\n")
	endpoint := newBareEndpoint(testInstance, "user")

	output, bindError := runCommand(testInstance, fixture.directory, "bind-remote", testEndpointNameConstant, testScenarioEndpointURLConstant)
	require.NoError(testInstance, bindError)
	require.Equal(testInstance, "bound origin to https://example.com/user/repo.git\n", output)

	output, renameError := runCommand(testInstance, fixture.directory, "rename-primary", testPrimaryLineConstant)
	require.NoError(testInstance, renameError)
	require.Equal(testInstance, "renamed primary line master to main\n", output)

	output, publishError := runCommand(testInstance, fixture.directory, "publish", testEndpointNameConstant, testPrimaryLineConstant, "--set-upstream")
	require.NoError(testInstance, publishError)
	require.Equal(testInstance, 0, publish.ExitCode(publishError))
	require.Equal(testInstance, "published 1 commit(s) on main to origin ("+commitHash[:7]+")\nmain now tracks origin/main\n", output)

	remoteReference, referenceError := endpoint.Reference(plumbing.NewBranchReferenceName(testPrimaryLineConstant), true)
	require.NoError(testInstance, referenceError)
	require.Equal(testInstance, commitHash, remoteReference.Hash().String())

	history, logError := endpoint.Log(&git.LogOptions{From: remoteReference.Hash()})
	require.NoError(testInstance, logError)
	commitCount := 0
	require.NoError(testInstance, history.ForEach(func(*object.Commit) error {
		commitCount++
		return nil
	}))
	require.Equal(testInstance, 1, commitCount)

	configuration, configurationError := fixture.repository.Config()
	require.NoError(testInstance, configurationError)
	require.Equal(testInstance, testEndpointNameConstant, configuration.Branches[testPrimaryLineConstant].Remote)

	output, repeatError := runCommand(testInstance, fixture.directory, "publish", testEndpointNameConstant, testPrimaryLineConstant)
	require.NoError(testInstance, repeatError)
	require.Equal(testInstance, "origin/main already up to date at "+commitHash[:7]+"\n", output)

	output, statusError := runCommand(testInstance, fixture.directory, "status", "--limit", "0")
	require.NoError(testInstance, statusError)
	require.Contains(testInstance, output, "  origin\thttps://example.com/user/repo.git\n")
	require.Contains(testInstance, output, "  origin\tmain\tsynced\t")
	require.NotContains(testInstance, output, "history:")
}

func TestCommandFailuresAreClassified(testInstance *testing.T) {
	testCases := []struct {
		name             string
		withoutCommits   bool
		prepare          func(*testing.T, *workspaceFixture)
		arguments        []string
		expectedExitCode int
		expectedPrefix   string
		expectedError    any
	}{
		{
			name: "rebinding_to_different_url",
			prepare: func(subtest *testing.T, fixture *workspaceFixture) {
				_, bindError := runCommand(subtest, fixture.directory, "bind-remote", testEndpointNameConstant, testScenarioEndpointURLConstant)
				require.NoError(subtest, bindError)
			},
			arguments:        []string{"bind-remote", testEndpointNameConstant, testConflictingURLConstant},
			expectedExitCode: 1,
			expectedPrefix:   "terminal: bind-remote failed:",
			expectedError:    &publish.AlreadyBoundError{},
		},
		{
			name:             "invalid_url",
			arguments:        []string{"bind-remote", testEndpointNameConstant, "not a url"},
			expectedExitCode: 1,
			expectedPrefix:   "terminal: bind-remote failed:",
			expectedError:    &publish.InvalidURLError{},
		},
		{
			name:             "unbound_endpoint",
			arguments:        []string{"publish", testEndpointNameConstant, "master"},
			expectedExitCode: 1,
			expectedPrefix:   "terminal: publish failed:",
			expectedError:    &publish.UnboundEndpointError{},
		},
		{
			name:             "unbound_endpoint_without_commits",
			withoutCommits:   true,
			arguments:        []string{"publish", testEndpointNameConstant, "master"},
			expectedExitCode: 1,
			expectedPrefix:   "terminal: publish failed:",
			expectedError:    &publish.UnboundEndpointError{},
		},
		{
			name: "unreachable_endpoint",
			prepare: func(subtest *testing.T, fixture *workspaceFixture) {
				_, bindError := runCommand(subtest, fixture.directory, "bind-remote", testEndpointNameConstant, testUnreachableURLConstant)
				require.NoError(subtest, bindError)
			},
			arguments:        []string{"--timeout", "5s", "publish", testEndpointNameConstant, "master"},
			expectedExitCode: 75,
			expectedPrefix:   "retryable: publish failed:",
			expectedError:    &publish.NetworkError{},
		},
		{
			name:             "empty_rename_label",
			arguments:        []string{"rename-primary", " "},
			expectedExitCode: 1,
			expectedPrefix:   "terminal: rename-primary failed:",
			expectedError:    &publish.ValidationError{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			fixture := newWorkspaceFixture(subtest)
			if !testCase.withoutCommits {
				fixture.commitFile(subtest, testReadmeFileConstant, "hello\n")
			}
			if testCase.prepare != nil {
				testCase.prepare(subtest, fixture)
			}

			_, executionError := runCommand(subtest, fixture.directory, testCase.arguments...)
			require.Error(subtest, executionError)
			require.Equal(subtest, testCase.expectedExitCode, publish.ExitCode(executionError))
			require.True(subtest, strings.HasPrefix(publish.DescribeFailure(executionError), testCase.expectedPrefix), publish.DescribeFailure(executionError))
			require.ErrorAs(subtest, executionError, testCase.expectedError)
		})
	}
}

func TestPublishWithoutCommitsReportsEmptyHistory(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance)
	newBareEndpoint(testInstance, "empty")

	_, bindError := runCommand(testInstance, fixture.directory, "bind-remote", testEndpointNameConstant, "https://example.com/empty/repo.git")
	require.NoError(testInstance, bindError)

	_, publishError := runCommand(testInstance, fixture.directory, "publish")
	var historyError publish.EmptyHistoryError
	require.ErrorAs(testInstance, publishError, &historyError)
	require.Equal(testInstance, 1, publish.ExitCode(publishError))
}

func TestPublishRefusesExcludedFilesAnywhereInTransmittedHistory(testInstance *testing.T) {
	testCases := []struct {
		name              string
		owner             string
		prepare           func(*testing.T, *workspaceFixture)
		workspaceSubpath  string
		expectedExposures []string
	}{
		{
			name:  "secret_deleted_before_tip",
			owner: "deleted-secret",
			prepare: func(subtest *testing.T, fixture *workspaceFixture) {
				fixture.commitFile(subtest, testReadmeFileConstant, "hello\n")
				fixture.commitFile(subtest, ".env", "TOKEN=abc\n")
				fixture.removeFile(subtest, ".env")
				fixture.commitFile(subtest, testReadmeFileConstant, "hello again\n")
			},
			expectedExposures: []string{".env"},
		},
		{
			name:  "tracked_file_listed_in_root_gitignore_from_nested_workspace",
			owner: "ignored-file",
			prepare: func(subtest *testing.T, fixture *workspaceFixture) {
				fixture.commitFile(subtest, "build.log", "compiled\n")
				fixture.commitFile(subtest, ".gitignore", "build.log\n")
				fixture.commitFile(subtest, "docs/notes.txt", "notes\n")
			},
			workspaceSubpath:  "docs",
			expectedExposures: []string{"build.log"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			fixture := newWorkspaceFixture(subtest)
			testCase.prepare(subtest, fixture)
			endpoint := newBareEndpoint(subtest, testCase.owner)
			workspaceDirectory := filepath.Join(fixture.directory, testCase.workspaceSubpath)

			_, bindError := runCommand(subtest, workspaceDirectory, "bind-remote", testEndpointNameConstant, "https://example.com/"+testCase.owner+"/repo.git")
			require.NoError(subtest, bindError)

			_, publishError := runCommand(subtest, workspaceDirectory, "publish", testEndpointNameConstant, "master")
			var exposureError publish.SecretExposureError
			require.ErrorAs(subtest, publishError, &exposureError)
			require.Equal(subtest, testCase.expectedExposures, exposureError.Paths)
			require.Equal(subtest, 1, publish.ExitCode(publishError))
			require.True(subtest, strings.HasPrefix(publish.DescribeFailure(publishError), "terminal: publish failed:"))

			_, referenceError := endpoint.Reference(plumbing.NewBranchReferenceName("master"), true)
			require.ErrorIs(subtest, referenceError, plumbing.ErrReferenceNotFound)
		})
	}
}

func TestRenamePrimaryDefaultsToConfiguredLine(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance)
	commitHash := fixture.commitFile(testInstance, testReadmeFileConstant, "hello\n")

	configurationPath := filepath.Join(testInstance.TempDir(), testConfigurationFileConstant)
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte("workspace:\n  primary_line: trunk\n"), 0o600))

	output, renameError := runCommand(testInstance, fixture.directory, "--config", configurationPath, "rename-primary")
	require.NoError(testInstance, renameError)
	require.Equal(testInstance, "renamed primary line master to trunk\n", output)

	head, headError := fixture.repository.Head()
	require.NoError(testInstance, headError)
	require.Equal(testInstance, plumbing.NewBranchReferenceName("trunk"), head.Name())
	require.Equal(testInstance, commitHash, head.Hash().String())

	output, explicitError := runCommand(testInstance, fixture.directory, "--config", configurationPath, "rename-primary", testPrimaryLineConstant)
	require.NoError(testInstance, explicitError)
	require.Equal(testInstance, "renamed primary line trunk to main\n", output)
}

func TestWorkflowCommandRunsDeclaredSteps(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance)
	commitHash := fixture.commitFile(testInstance, testReadmeFileConstant, "hello\n")
	endpoint := newBareEndpoint(testInstance, "workflow")

	workflowPath := filepath.Join(testInstance.TempDir(), testWorkflowFileConstant)
	require.NoError(testInstance, os.WriteFile(workflowPath, []byte(testWorkflowContentsConstant), 0o600))

	output, workflowError := runCommand(testInstance, fixture.directory, "workflow", workflowPath)
	require.NoError(testInstance, workflowError)
	require.Equal(testInstance, "bound origin to "+testWorkflowEndpointURLConstant+"\n"+
		"renamed primary line master to main\n"+
		"published 1 commit(s) on main to origin ("+commitHash[:7]+")\n"+
		"main now tracks origin/main\n", output)

	remoteReference, referenceError := endpoint.Reference(plumbing.NewBranchReferenceName(testPrimaryLineConstant), true)
	require.NoError(testInstance, referenceError)
	require.Equal(testInstance, commitHash, remoteReference.Hash().String())

	_, rerunError := runCommand(testInstance, fixture.directory, "workflow", workflowPath)
	require.NoError(testInstance, rerunError)
}

func TestWorkflowCommandRejectsInvalidFiles(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance)
	workflowPath := filepath.Join(testInstance.TempDir(), testWorkflowFileConstant)
	require.NoError(testInstance, os.WriteFile(workflowPath, []byte("steps:\n  - operation: teleport\n"), 0o600))

	_, workflowError := runCommand(testInstance, fixture.directory, "workflow", workflowPath)
	require.Error(testInstance, workflowError)
	require.Equal(testInstance, 1, publish.ExitCode(workflowError))

	_, missingError := runCommand(testInstance, fixture.directory, "workflow", filepath.Join(fixture.directory, "missing.yaml"))
	require.Error(testInstance, missingError)

	_, negativeError := runCommand(testInstance, fixture.directory, "workflow", workflowPath, "--retry-attempts", "-1")
	require.Error(testInstance, negativeError)
}

func TestConfigurationLayersReachSession(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance)
	fixture.commitFile(testInstance, testReadmeFileConstant, "hello\n")

	configurationPath := filepath.Join(testInstance.TempDir(), testConfigurationFileConstant)
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(
		"workspace:\n  path: "+fixture.directory+"\n  default_endpoint: upstream\n  primary_line: trunk\npublish:\n  timeout: 45s\n",
	), 0o600))

	testCases := []struct {
		name            string
		environment     map[string]string
		arguments       []string
		expectedBackend string
		expectedPath    string
	}{
		{
			name:            "configuration_file",
			arguments:       []string{"--config", configurationPath, "status"},
			expectedBackend: string(workspace.BackendGoGit),
			expectedPath:    fixture.directory,
		},
		{
			name:            "environment_overrides_file",
			environment:     map[string]string{"GITPUBLISH_WORKSPACE_BACKEND": "git-cli"},
			arguments:       []string{"--config", configurationPath, "status"},
			expectedBackend: string(workspace.BackendGitCLI),
			expectedPath:    fixture.directory,
		},
		{
			name:            "flags_override_environment",
			environment:     map[string]string{"GITPUBLISH_WORKSPACE_BACKEND": "git-cli"},
			arguments:       []string{"--config", configurationPath, "--backend", "gogit", "--workspace", filepath.Join(fixture.directory, "."), "status"},
			expectedBackend: string(workspace.BackendGoGit),
			expectedPath:    fixture.directory,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			for key, value := range testCase.environment {
				subtest.Setenv(key, value)
			}

			var captured workspace.Options
			application := newApplication(subtest, cli.WithRepositoryFactory(func(options workspace.Options) (publish.Repository, error) {
				captured = options
				options.Backend = string(workspace.BackendGoGit)
				return workspace.ResolveRepository(options)
			}))

			output := &bytes.Buffer{}
			require.NoError(subtest, application.ExecuteContext(context.Background(), testCase.arguments, output))
			require.Equal(subtest, testCase.expectedBackend, captured.Backend)
			require.Equal(subtest, testCase.expectedPath, captured.Path)
			require.Contains(subtest, output.String(), "endpoints:\n  (none)\n")
		})
	}
}

func TestConfiguredDefaultsApplyToPublish(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance)
	fixture.commitFile(testInstance, testReadmeFileConstant, "hello\n")

	configurationPath := filepath.Join(testInstance.TempDir(), testConfigurationFileConstant)
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte("workspace:\n  default_endpoint: upstream\n"), 0o600))

	_, publishError := runCommand(testInstance, fixture.directory, "--config", configurationPath, "publish")
	var unboundError publish.UnboundEndpointError
	require.ErrorAs(testInstance, publishError, &unboundError)
	require.Equal(testInstance, publish.EndpointName("upstream"), unboundError.Endpoint)
}

func TestRootFlagValidation(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance)

	testCases := []struct {
		name      string
		arguments []string
	}{
		{name: "unknown_backend", arguments: []string{"--backend", "libgit2", "status"}},
		{name: "unknown_log_format", arguments: []string{"--log-format", "xml", "status"}},
		{name: "negative_timeout", arguments: []string{"--timeout", "-1s", "status"}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			_, executionError := runCommand(subtest, fixture.directory, testCase.arguments...)
			require.Error(subtest, executionError)
			require.Equal(subtest, 1, publish.ExitCode(executionError))
		})
	}
}

func TestWorkspaceOutsideRepositoryFails(testInstance *testing.T) {
	_, executionError := runCommand(testInstance, testInstance.TempDir(), "bind-remote", testEndpointNameConstant, testScenarioEndpointURLConstant)
	require.Error(testInstance, executionError)

	step, found := publish.FailedStep(executionError)
	require.True(testInstance, found)
	require.Equal(testInstance, publish.StepBindEndpoint, step)
}
