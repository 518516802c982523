package gogit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/stretchr/testify/require"

	"github.com/temirov/gitpublish/internal/publish"
	"github.com/temirov/gitpublish/internal/workspace/gogit"
)

const (
	testEndpointNameConstant      = "origin"
	testInitialLineConstant       = "master"
	testPrimaryLineConstant       = "main"
	testReadmeFileConstant        = "README.md"
	testNotesFileConstant         = "docs/notes.txt"
	testSecretFileConstant        = ".env"
	testAuthorNameConstant        = "Publisher"
	testAuthorEmailConstant       = "publisher@example.com"
	testUnreachableURLConstant    = "http://127.0.0.1:1/user/repo.git"
	testTokenConstant             = "secret-token"
	fileURLPrefixConstant         = "file://"
	remoteDirectoryNameConstant   = "remote.git"
	workspaceDirectoryConstant    = "workspace"
	secondWorkspaceDirectoryConst = "second"
)

func TestMain(testMain *testing.M) {
	client.InstallProtocol("file", server.DefaultServer)
	os.Exit(testMain.Run())
}

type workspaceFixture struct {
	directory  string
	repository *git.Repository
	clock      time.Time
}

func newWorkspaceFixture(testInstance *testing.T, directory string) *workspaceFixture {
	testInstance.Helper()
	repository, initError := git.PlainInit(directory, false)
	require.NoError(testInstance, initError)
	return &workspaceFixture{
		directory:  directory,
		repository: repository,
		clock:      time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC),
	}
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

	fixture.clock = fixture.clock.Add(time.Minute)
	hash, commitError := worktree.Commit("update "+relativePath, &git.CommitOptions{
		Author: &object.Signature{Name: testAuthorNameConstant, Email: testAuthorEmailConstant, When: fixture.clock},
	})
	require.NoError(testInstance, commitError)
	return hash.String()
}

func (fixture *workspaceFixture) removeFile(testInstance *testing.T, relativePath string) string {
	testInstance.Helper()
	worktree, worktreeError := fixture.repository.Worktree()
	require.NoError(testInstance, worktreeError)
	_, removeError := worktree.Remove(relativePath)
	require.NoError(testInstance, removeError)

	fixture.clock = fixture.clock.Add(time.Minute)
	hash, commitError := worktree.Commit("remove "+relativePath, &git.CommitOptions{
		Author: &object.Signature{Name: testAuthorNameConstant, Email: testAuthorEmailConstant, When: fixture.clock},
	})
	require.NoError(testInstance, commitError)
	return hash.String()
}

func (fixture *workspaceFixture) open(testInstance *testing.T, credentials gogit.Credentials) *gogit.Repository {
	testInstance.Helper()
	repository, openError := gogit.Open(gogit.Options{Path: fixture.directory, Credentials: credentials})
	require.NoError(testInstance, openError)
	return repository
}

func newBareRemote(testInstance *testing.T, parent string) (string, *git.Repository) {
	testInstance.Helper()
	directory := filepath.Join(parent, remoteDirectoryNameConstant)
	repository, initError := git.PlainInit(directory, true)
	require.NoError(testInstance, initError)
	return fileURLPrefixConstant + directory, repository
}

func bind(testInstance *testing.T, repository *gogit.Repository, url string) {
	testInstance.Helper()
	endpointURL, urlError := publish.NewEndpointURL(url)
	require.NoError(testInstance, urlError)
	require.NoError(testInstance, repository.AddEndpoint(context.Background(), testEndpointNameConstant, endpointURL))
}

func TestOpenRejectsDirectoryWithoutRepository(testInstance *testing.T) {
	_, openError := gogit.Open(gogit.Options{Path: testInstance.TempDir()})
	require.Error(testInstance, openError)
}

func TestEndpointBinding(testInstance *testing.T) {
	root := testInstance.TempDir()
	fixture := newWorkspaceFixture(testInstance, filepath.Join(root, workspaceDirectoryConstant))
	repository := fixture.open(testInstance, gogit.Credentials{})
	executionContext := context.Background()

	_, bound, lookupError := repository.EndpointURL(executionContext, testEndpointNameConstant)
	require.NoError(testInstance, lookupError)
	require.False(testInstance, bound)

	remoteURL, _ := newBareRemote(testInstance, root)
	bind(testInstance, repository, remoteURL)

	boundURL, bound, lookupError := repository.EndpointURL(executionContext, testEndpointNameConstant)
	require.NoError(testInstance, lookupError)
	require.True(testInstance, bound)
	require.Equal(testInstance, remoteURL, boundURL)

	endpoints, endpointsError := repository.Endpoints(executionContext)
	require.NoError(testInstance, endpointsError)
	require.Equal(testInstance, map[publish.EndpointName]string{testEndpointNameConstant: remoteURL}, endpoints)

	reopened := fixture.open(testInstance, gogit.Credentials{})
	reopenedURL, bound, reopenError := reopened.EndpointURL(executionContext, testEndpointNameConstant)
	require.NoError(testInstance, reopenError)
	require.True(testInstance, bound)
	require.Equal(testInstance, remoteURL, reopenedURL)
}

func TestLinesOnUnbornWorkspace(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance, testInstance.TempDir())
	repository := fixture.open(testInstance, gogit.Credentials{})
	executionContext := context.Background()

	current, currentError := repository.CurrentLine(executionContext)
	require.NoError(testInstance, currentError)
	require.Equal(testInstance, publish.LineName(testInitialLineConstant), current)

	_, hasCommits, tipError := repository.LineTip(executionContext, current)
	require.NoError(testInstance, tipError)
	require.False(testInstance, hasCommits)

	require.NoError(testInstance, repository.PointHead(executionContext, testPrimaryLineConstant))
	current, currentError = repository.CurrentLine(executionContext)
	require.NoError(testInstance, currentError)
	require.Equal(testInstance, publish.LineName(testPrimaryLineConstant), current)
}

func TestRenameLineMovesReferenceAndHead(testInstance *testing.T) {
	root := testInstance.TempDir()
	fixture := newWorkspaceFixture(testInstance, filepath.Join(root, workspaceDirectoryConstant))
	tip := fixture.commitFile(testInstance, testReadmeFileConstant, "hello\n")
	repository := fixture.open(testInstance, gogit.Credentials{})
	executionContext := context.Background()
	remoteURL, _ := newBareRemote(testInstance, root)
	bind(testInstance, repository, remoteURL)
	require.NoError(testInstance, repository.SetUpstream(executionContext, testInitialLineConstant, testEndpointNameConstant))

	require.NoError(testInstance, repository.RenameLine(executionContext, testInitialLineConstant, testPrimaryLineConstant))

	current, currentError := repository.CurrentLine(executionContext)
	require.NoError(testInstance, currentError)
	require.Equal(testInstance, publish.LineName(testPrimaryLineConstant), current)

	renamedTip, found, tipError := repository.LineTip(executionContext, testPrimaryLineConstant)
	require.NoError(testInstance, tipError)
	require.True(testInstance, found)
	require.Equal(testInstance, tip, renamedTip)

	_, found, tipError = repository.LineTip(executionContext, testInitialLineConstant)
	require.NoError(testInstance, tipError)
	require.False(testInstance, found)

	repositoryConfig, configError := fixture.repository.Config()
	require.NoError(testInstance, configError)
	require.NotContains(testInstance, repositoryConfig.Branches, testInitialLineConstant)
	require.Contains(testInstance, repositoryConfig.Branches, testPrimaryLineConstant)
	require.Equal(testInstance, plumbing.NewBranchReferenceName(testPrimaryLineConstant), repositoryConfig.Branches[testPrimaryLineConstant].Merge)
}

func TestRenameLineRejectsMissingLine(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance, testInstance.TempDir())
	repository := fixture.open(testInstance, gogit.Credentials{})
	require.Error(testInstance, repository.RenameLine(context.Background(), "missing", testPrimaryLineConstant))
}

func TestHistoryQueries(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance, testInstance.TempDir())
	first := fixture.commitFile(testInstance, testReadmeFileConstant, "one\n")
	second := fixture.commitFile(testInstance, testNotesFileConstant, "two\n")
	third := fixture.commitFile(testInstance, testReadmeFileConstant, "three\n")
	repository := fixture.open(testInstance, gogit.Credentials{})
	executionContext := context.Background()

	testCases := []struct {
		name          string
		tip           string
		exclude       string
		expectedCount int
	}{
		{name: "whole_history", tip: third, expectedCount: 3},
		{name: "excludes_reachable_commits", tip: third, exclude: first, expectedCount: 2},
		{name: "unknown_exclude_counts_everything", tip: second, exclude: "4444444444444444444444444444444444444444", expectedCount: 2},
		{name: "tip_equals_exclude", tip: third, exclude: third, expectedCount: 0},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			count, countError := repository.CountCommits(executionContext, testCase.tip, testCase.exclude)
			require.NoError(subtest, countError)
			require.Equal(subtest, testCase.expectedCount, count)
		})
	}

	isAncestor, ancestorError := repository.IsAncestor(executionContext, first, third)
	require.NoError(testInstance, ancestorError)
	require.True(testInstance, isAncestor)

	isAncestor, ancestorError = repository.IsAncestor(executionContext, third, first)
	require.NoError(testInstance, ancestorError)
	require.False(testInstance, isAncestor)

	isAncestor, ancestorError = repository.IsAncestor(executionContext, "4444444444444444444444444444444444444444", third)
	require.NoError(testInstance, ancestorError)
	require.False(testInstance, isAncestor)

	files, filesError := repository.TransmittedFiles(executionContext, third, "")
	require.NoError(testInstance, filesError)
	require.Equal(testInstance, []string{testReadmeFileConstant, testNotesFileConstant}, files)

	files, filesError = repository.TransmittedFiles(executionContext, third, second)
	require.NoError(testInstance, filesError)
	require.Equal(testInstance, []string{testReadmeFileConstant, testNotesFileConstant}, files)
}

func TestTransmittedFilesIncludeDeletedSecrets(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance, testInstance.TempDir())
	base := fixture.commitFile(testInstance, testReadmeFileConstant, "one\n")
	fixture.commitFile(testInstance, testSecretFileConstant, "TOKEN=abc\n")
	fixture.removeFile(testInstance, testSecretFileConstant)
	tip := fixture.commitFile(testInstance, testReadmeFileConstant, "two\n")
	repository := fixture.open(testInstance, gogit.Credentials{})
	executionContext := context.Background()

	testCases := []struct {
		name          string
		exclude       string
		expectedFiles []string
	}{
		{name: "whole_history", expectedFiles: []string{testSecretFileConstant, testReadmeFileConstant}},
		{name: "range_after_base", exclude: base, expectedFiles: []string{testSecretFileConstant, testReadmeFileConstant}},
		{name: "range_after_tip", exclude: tip, expectedFiles: []string{}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			files, filesError := repository.TransmittedFiles(executionContext, tip, testCase.exclude)
			require.NoError(subtest, filesError)
			require.Equal(subtest, testCase.expectedFiles, files)
		})
	}

	_, filesError := repository.TransmittedFiles(executionContext, "4444444444444444444444444444444444444444", "")
	require.Error(testInstance, filesError)
}

func TestPushTransmitsLineToBareEndpoint(testInstance *testing.T) {
	root := testInstance.TempDir()
	fixture := newWorkspaceFixture(testInstance, filepath.Join(root, workspaceDirectoryConstant))
	fixture.commitFile(testInstance, testReadmeFileConstant, "hello\n")
	repository := fixture.open(testInstance, gogit.Credentials{})
	executionContext := context.Background()
	remoteURL, remoteRepository := newBareRemote(testInstance, root)
	bind(testInstance, repository, remoteURL)
	require.NoError(testInstance, repository.RenameLine(executionContext, testInitialLineConstant, testPrimaryLineConstant))

	_, found, listError := repository.RemoteLineTip(executionContext, testEndpointNameConstant, testPrimaryLineConstant)
	require.NoError(testInstance, listError)
	require.False(testInstance, found)

	require.NoError(testInstance, repository.Push(executionContext, testEndpointNameConstant, testPrimaryLineConstant))

	localTip, _, tipError := repository.LineTip(executionContext, testPrimaryLineConstant)
	require.NoError(testInstance, tipError)
	remoteReference, referenceError := remoteRepository.Reference(plumbing.NewBranchReferenceName(testPrimaryLineConstant), true)
	require.NoError(testInstance, referenceError)
	require.Equal(testInstance, localTip, remoteReference.Hash().String())

	remoteTip, found, listError := repository.RemoteLineTip(executionContext, testEndpointNameConstant, testPrimaryLineConstant)
	require.NoError(testInstance, listError)
	require.True(testInstance, found)
	require.Equal(testInstance, localTip, remoteTip)

	require.NoError(testInstance, repository.Push(executionContext, testEndpointNameConstant, testPrimaryLineConstant))

	require.NoError(testInstance, repository.SetUpstream(executionContext, testPrimaryLineConstant, testEndpointNameConstant))
	repositoryConfig, configError := fixture.repository.Config()
	require.NoError(testInstance, configError)
	require.Equal(testInstance, testEndpointNameConstant, repositoryConfig.Branches[testPrimaryLineConstant].Remote)
}

func TestPushRejectsDivergedEndpoint(testInstance *testing.T) {
	root := testInstance.TempDir()
	remoteURL, _ := newBareRemote(testInstance, root)
	executionContext := context.Background()

	firstFixture := newWorkspaceFixture(testInstance, filepath.Join(root, workspaceDirectoryConstant))
	firstFixture.commitFile(testInstance, testReadmeFileConstant, "first\n")
	firstRepository := firstFixture.open(testInstance, gogit.Credentials{})
	bind(testInstance, firstRepository, remoteURL)
	require.NoError(testInstance, firstRepository.Push(executionContext, testEndpointNameConstant, testInitialLineConstant))

	secondFixture := newWorkspaceFixture(testInstance, filepath.Join(root, secondWorkspaceDirectoryConst))
	secondFixture.commitFile(testInstance, testNotesFileConstant, "second\n")
	secondRepository := secondFixture.open(testInstance, gogit.Credentials{})
	bind(testInstance, secondRepository, remoteURL)

	pushError := secondRepository.Push(executionContext, testEndpointNameConstant, testInitialLineConstant)
	var rejected publish.RemoteRejectedError
	require.ErrorAs(testInstance, pushError, &rejected)
	require.False(testInstance, publish.IsRetryable(pushError))
}

func TestTransportFailuresAreClassified(testInstance *testing.T) {
	unauthorizedServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.WriteHeader(http.StatusUnauthorized)
	}))
	testInstance.Cleanup(unauthorizedServer.Close)

	testCases := []struct {
		name            string
		url             string
		credentials     gogit.Credentials
		expectRetryable bool
		assertion       func(require.TestingT, error)
	}{
		{
			name:            "unreachable_endpoint_is_network_failure",
			url:             testUnreachableURLConstant,
			expectRetryable: true,
			assertion: func(testingT require.TestingT, failure error) {
				var networkError publish.NetworkError
				require.ErrorAs(testingT, failure, &networkError)
			},
		},
		{
			name:        "unauthorized_endpoint_is_authentication_failure",
			url:         unauthorizedServer.URL + "/user/repo.git",
			credentials: gogit.Credentials{Token: testTokenConstant},
			assertion: func(testingT require.TestingT, failure error) {
				var authenticationError publish.AuthenticationError
				require.ErrorAs(testingT, failure, &authenticationError)
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			fixture := newWorkspaceFixture(subtest, subtest.TempDir())
			fixture.commitFile(subtest, testReadmeFileConstant, "hello\n")
			repository := fixture.open(subtest, testCase.credentials)
			bind(subtest, repository, testCase.url)

			executionContext, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			_, _, listError := repository.RemoteLineTip(executionContext, testEndpointNameConstant, testInitialLineConstant)
			require.Error(subtest, listError)
			testCase.assertion(subtest, listError)
			require.Equal(subtest, testCase.expectRetryable, publish.IsRetryable(listError))
		})
	}
}

func TestUnboundEndpointIsReported(testInstance *testing.T) {
	fixture := newWorkspaceFixture(testInstance, testInstance.TempDir())
	fixture.commitFile(testInstance, testReadmeFileConstant, "hello\n")
	repository := fixture.open(testInstance, gogit.Credentials{})

	pushError := repository.Push(context.Background(), testEndpointNameConstant, testInitialLineConstant)
	var unbound publish.UnboundEndpointError
	require.ErrorAs(testInstance, pushError, &unbound)
}
