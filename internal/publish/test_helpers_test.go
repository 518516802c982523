package publish_test

import (
	"context"
	"errors"
	"sort"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/temirov/gitpublish/internal/publish"
)

const (
	testEndpointNameConstant     = "origin"
	testEndpointURLConstant      = "https://example.com/user/repo.git"
	testAlternateEndpointURL     = "https://example.com/other/repo.git"
	testMalformedEndpointURL     = "not a url"
	testInitialLineConstant      = "master"
	testPrimaryLineConstant      = "main"
	testFirstCommitConstant      = "1111111111111111111111111111111111111111"
	testSecondCommitConstant     = "2222222222222222222222222222222222222222"
	testDivergedCommitConstant   = "3333333333333333333333333333333333333333"
	testWorkspacePathConstant    = "/workspace"
	testReadmeFileConstant       = "README.md"
	testEnvironmentFileConstant  = ".env"
	testNestedPrivateKeyConstant = "deploy/keys/server.pem"
	testBuildLogFileConstant     = "build.log"
	subtestNameTemplateConstant  = "%d_%s"
)

var errInjectedRepositoryFailure = errors.New("injected repository failure")

type fakeRemoteLine struct {
	tip string
}

type fakeRepository struct {
	endpoints      map[publish.EndpointName]string
	currentLine    publish.LineName
	lineTips       map[publish.LineName]string
	history        map[string][]string
	remoteLines    map[publish.LineName]fakeRemoteLine
	upstreams      map[publish.LineName]publish.EndpointName
	trackedFiles   []string
	commitFiles    map[string][]string
	scannedRanges  []string
	remoteError    error
	pushError      error
	endpointError  error
	addCalls       int
	pushCalls      int
	remoteCalls    int
	renameCalls    int
	deleteCalls    int
	pointHeadCalls int
	blockOnContext bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		endpoints:   map[publish.EndpointName]string{},
		currentLine: testInitialLineConstant,
		lineTips:    map[publish.LineName]string{},
		history:     map[string][]string{},
		remoteLines: map[publish.LineName]fakeRemoteLine{},
		upstreams:   map[publish.LineName]publish.EndpointName{},
		commitFiles: map[string][]string{},
	}
}

func (repository *fakeRepository) commit(line publish.LineName, hash string) {
	parent, hasParent := repository.lineTips[line]
	ancestors := []string{hash}
	if hasParent {
		ancestors = append(ancestors, repository.history[parent]...)
	}
	repository.history[hash] = ancestors
	repository.lineTips[line] = hash
}

func (repository *fakeRepository) Endpoints(context.Context) (map[publish.EndpointName]string, error) {
	copied := make(map[publish.EndpointName]string, len(repository.endpoints))
	for name, url := range repository.endpoints {
		copied[name] = url
	}
	return copied, nil
}

func (repository *fakeRepository) EndpointURL(_ context.Context, name publish.EndpointName) (string, bool, error) {
	if repository.endpointError != nil {
		return "", false, repository.endpointError
	}
	url, bound := repository.endpoints[name]
	return url, bound, nil
}

func (repository *fakeRepository) AddEndpoint(_ context.Context, name publish.EndpointName, url publish.EndpointURL) error {
	repository.addCalls++
	repository.endpoints[name] = url.String()
	return nil
}

func (repository *fakeRepository) CurrentLine(context.Context) (publish.LineName, error) {
	return repository.currentLine, nil
}

func (repository *fakeRepository) LineTip(_ context.Context, line publish.LineName) (string, bool, error) {
	tip, found := repository.lineTips[line]
	return tip, found, nil
}

func (repository *fakeRepository) IsAncestor(_ context.Context, ancestor string, descendant string) (bool, error) {
	for _, candidate := range repository.history[descendant] {
		if candidate == ancestor {
			return true, nil
		}
	}
	return false, nil
}

func (repository *fakeRepository) PointHead(_ context.Context, line publish.LineName) error {
	repository.pointHeadCalls++
	repository.currentLine = line
	return nil
}

func (repository *fakeRepository) RenameLine(_ context.Context, from publish.LineName, to publish.LineName) error {
	repository.renameCalls++
	repository.lineTips[to] = repository.lineTips[from]
	delete(repository.lineTips, from)
	if upstream, tracked := repository.upstreams[from]; tracked {
		repository.upstreams[to] = upstream
		delete(repository.upstreams, from)
	}
	repository.currentLine = to
	return nil
}

func (repository *fakeRepository) DeleteLine(_ context.Context, line publish.LineName) error {
	repository.deleteCalls++
	delete(repository.lineTips, line)
	return nil
}

func (repository *fakeRepository) RemoteLineTip(executionContext context.Context, _ publish.EndpointName, line publish.LineName) (string, bool, error) {
	repository.remoteCalls++
	if repository.blockOnContext {
		<-executionContext.Done()
		return "", false, executionContext.Err()
	}
	if repository.remoteError != nil {
		return "", false, repository.remoteError
	}
	remoteLine, found := repository.remoteLines[line]
	return remoteLine.tip, found, nil
}

func (repository *fakeRepository) CountCommits(_ context.Context, tip string, exclude string) (int, error) {
	count := 0
	for _, hash := range repository.history[tip] {
		if hash == exclude {
			break
		}
		count++
	}
	return count, nil
}

func (repository *fakeRepository) Push(_ context.Context, _ publish.EndpointName, line publish.LineName) error {
	repository.pushCalls++
	if repository.pushError != nil {
		return repository.pushError
	}
	repository.remoteLines[line] = fakeRemoteLine{tip: repository.lineTips[line]}
	return nil
}

func (repository *fakeRepository) SetUpstream(_ context.Context, line publish.LineName, endpoint publish.EndpointName) error {
	repository.upstreams[line] = endpoint
	return nil
}

// TransmittedFiles reports trackedFiles for every commit in range plus the files recorded per commit.
func (repository *fakeRepository) TransmittedFiles(_ context.Context, tip string, exclude string) ([]string, error) {
	repository.scannedRanges = append(repository.scannedRanges, exclude)
	seen := map[string]struct{}{}
	for _, hash := range repository.history[tip] {
		if hash == exclude {
			break
		}
		for _, file := range append(append([]string{}, repository.trackedFiles...), repository.commitFiles[hash]...) {
			seen[file] = struct{}{}
		}
	}
	files := make([]string, 0, len(seen))
	for file := range seen {
		files = append(files, file)
	}
	sort.Strings(files)
	return files, nil
}

type recordingTransitionRecorder struct {
	transitions     []publish.Transition
	failure         error
	rejectCancelled bool
}

func (recorder *recordingTransitionRecorder) RecordTransition(executionContext context.Context, transition publish.Transition) error {
	if recorder.rejectCancelled && executionContext.Err() != nil {
		return executionContext.Err()
	}
	recorder.transitions = append(recorder.transitions, transition)
	return recorder.failure
}

func (recorder *recordingTransitionRecorder) states() []publish.State {
	states := make([]publish.State, 0, len(recorder.transitions))
	for _, transition := range recorder.transitions {
		if transition.Operation != publish.StepTransmit {
			continue
		}
		states = append(states, transition.To)
	}
	return states
}

func emptyExclusionLoader(string) (gitignore.Matcher, error) {
	return gitignore.NewMatcher(nil), nil
}

func exclusionLoaderFor(patterns ...string) publish.ExclusionLoader {
	return func(string) (gitignore.Matcher, error) {
		compiled := make([]gitignore.Pattern, 0, len(patterns))
		for _, pattern := range patterns {
			compiled = append(compiled, gitignore.ParsePattern(pattern, nil))
		}
		return gitignore.NewMatcher(compiled), nil
	}
}
