package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"go.uber.org/zap"
)

const (
	repositoryNotConfiguredMessageConstant = "publish service requires a workspace repository"
	endpointLookupErrorTemplateConstant    = "unable to read endpoint %s: %w"
	endpointBindErrorTemplateConstant      = "unable to bind endpoint %s: %w"
	currentLineErrorTemplateConstant       = "unable to resolve current line: %w"
	lineTipErrorTemplateConstant           = "unable to resolve line %s: %w"
	pointHeadErrorTemplateConstant         = "unable to point HEAD at %s: %w"
	renameLineErrorTemplateConstant        = "unable to rename line %s to %s: %w"
	deleteLineErrorTemplateConstant        = "unable to remove line %s: %w"
	ancestryErrorTemplateConstant          = "unable to compare %s with %s: %w"
	countCommitsErrorTemplateConstant      = "unable to count commits on %s: %w"
	transmittedFilesErrorTemplateConstant  = "unable to list files transmitted with %s: %w"
	upstreamErrorTemplateConstant          = "unable to configure upstream for %s: %w"
	bindCreatedMessageConstant             = "endpoint bound"
	bindUnchangedMessageConstant           = "endpoint already bound to requested url"
	bindRejectedMessageConstant            = "endpoint bound to a different url"
	renameUnchangedMessageConstant         = "primary line already carries requested name"
	renameUnbornMessageConstant            = "re-pointed unborn primary line"
	renameMovedMessageConstant             = "renamed primary line"
	renameMergedMessageConstant            = "dropped primary line name in favour of existing line with the same tip"
	transmitStartedMessageConstant         = "transmitting line"
	transmitUpToDateMessageConstant        = "endpoint already holds local tip"
	transmitCompletedMessageConstant       = "line transmitted"
	transmitFailedMessageConstant          = "transmission failed"
	upstreamConfiguredMessageConstant      = "upstream tracking configured"
	secretCoverageWarningMessageConstant   = "secret patterns are not covered by the workspace exclusion file"
	exclusionReadWarningMessageConstant    = "unable to read workspace exclusion files"
	journalWriteWarningMessageConstant     = "unable to record publish journal entry"
	renameJournalMessageTemplateConstant   = "%s -> %s: %s"
	interruptedTransportTemplateConstant   = "%w: %v"
	transmitJournalMessageTemplateConstant = "%d commits"
	logFieldEndpointConstant               = "endpoint"
	logFieldURLConstant                    = "url"
	logFieldLineConstant                   = "line"
	logFieldPreviousLineConstant           = "previous_line"
	logFieldStateConstant                  = "state"
	logFieldLocalTipConstant               = "local_tip"
	logFieldRemoteTipConstant              = "remote_tip"
	logFieldCommitsConstant                = "commits"
	logFieldPatternsConstant               = "patterns"
	logFieldRetryableConstant              = "retryable"
	logFieldStepConstant                   = "step"
)

// ErrRepositoryNotConfigured indicates the service was constructed without a repository.
var ErrRepositoryNotConfigured = errors.New(repositoryNotConfiguredMessageConstant)

// ExclusionLoader reads the exclusion rules of a workspace.
type ExclusionLoader func(workspacePath string) (gitignore.Matcher, error)

// Dependencies wires the collaborators of a Service.
type Dependencies struct {
	Repository      Repository
	Recorder        TransitionRecorder
	ExclusionLoader ExclusionLoader
	Logger          *zap.Logger
}

// Options configures workflow behaviour.
type Options struct {
	Workspace          Workspace
	Timeout            time.Duration
	DisableSecretGuard bool
	SecretPatterns     []string
}

// Service runs the publish workflow against a single workspace.
type Service struct {
	repository      Repository
	recorder        TransitionRecorder
	exclusionLoader ExclusionLoader
	logger          *zap.Logger
	options         Options
	secretGuard     SecretGuard
	states          *stateBook
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies Dependencies, options Options) (*Service, error) {
	if dependencies.Repository == nil {
		return nil, ErrRepositoryNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	exclusionLoader := dependencies.ExclusionLoader
	if exclusionLoader == nil {
		exclusionLoader = LoadExclusionMatcher
	}

	if len(options.Workspace.DefaultEndpoint) == 0 || len(options.Workspace.PrimaryLine) == 0 {
		options.Workspace = NewWorkspace(options.Workspace.Path, string(options.Workspace.DefaultEndpoint), string(options.Workspace.PrimaryLine))
	}

	return &Service{
		repository:      dependencies.Repository,
		recorder:        dependencies.Recorder,
		exclusionLoader: exclusionLoader,
		logger:          logger,
		options:         options,
		secretGuard:     NewSecretGuard(options.SecretPatterns),
		states:          newStateBook(),
	}, nil
}

// Workspace returns the workspace the service operates on.
func (service *Service) Workspace() Workspace {
	return service.options.Workspace
}

// BindEndpoint associates name with rawURL. Binding the same name to the same URL again succeeds without changes.
func (service *Service) BindEndpoint(executionContext context.Context, rawName string, rawURL string) (BindReport, error) {
	name, nameError := NewEndpointName(rawName, StepBindEndpoint)
	if nameError != nil {
		return BindReport{}, nameError
	}

	endpointURL, urlError := NewEndpointURL(rawURL)
	if urlError != nil {
		return BindReport{}, urlError
	}

	boundURL, bound, lookupError := service.repository.EndpointURL(executionContext, name)
	if lookupError != nil {
		return BindReport{}, OperationError{Operation: StepBindEndpoint, Cause: fmt.Errorf(endpointLookupErrorTemplateConstant, name, lookupError)}
	}

	if bound {
		if boundURL == endpointURL.String() {
			service.logger.Info(bindUnchangedMessageConstant, zap.String(logFieldEndpointConstant, string(name)), zap.String(logFieldURLConstant, endpointURL.Redacted()))
			service.record(executionContext, Transition{Operation: StepBindEndpoint, Endpoint: name, From: StateBound, To: StateBound, Message: bindUnchangedMessageConstant})
			return BindReport{Endpoint: name, URL: boundURL, Created: false}, nil
		}
		rejection := AlreadyBoundError{Endpoint: name, BoundURL: boundURL, RequestedURL: endpointURL.String()}
		service.logger.Warn(bindRejectedMessageConstant, zap.String(logFieldEndpointConstant, string(name)), zap.String(logFieldURLConstant, endpointURL.Redacted()))
		service.record(executionContext, Transition{Operation: StepBindEndpoint, Endpoint: name, From: StateBound, To: StateFailedTerminal, Message: rejection.Error()})
		return BindReport{}, rejection
	}

	if bindError := service.repository.AddEndpoint(executionContext, name, endpointURL); bindError != nil {
		return BindReport{}, OperationError{Operation: StepBindEndpoint, Cause: fmt.Errorf(endpointBindErrorTemplateConstant, name, bindError)}
	}

	service.logger.Info(bindCreatedMessageConstant, zap.String(logFieldEndpointConstant, string(name)), zap.String(logFieldURLConstant, endpointURL.Redacted()))
	service.record(executionContext, Transition{Operation: StepBindEndpoint, Endpoint: name, From: StateUnbound, To: StateBound, Message: bindCreatedMessageConstant})
	return BindReport{Endpoint: name, URL: endpointURL.String(), Created: true}, nil
}

// RenamePrimaryLine relabels the line HEAD points at. Only references and metadata change.
func (service *Service) RenamePrimaryLine(executionContext context.Context, rawName string) (RenameReport, error) {
	target, targetError := NewLineName(rawName, StepRenamePrimaryLine)
	if targetError != nil {
		return RenameReport{}, targetError
	}

	current, currentError := service.repository.CurrentLine(executionContext)
	if currentError != nil {
		return RenameReport{}, OperationError{Operation: StepRenamePrimaryLine, Cause: fmt.Errorf(currentLineErrorTemplateConstant, currentError)}
	}

	report := RenameReport{Previous: current, Current: target}
	if current == target {
		service.logger.Info(renameUnchangedMessageConstant, zap.String(logFieldLineConstant, string(target)))
		return report, nil
	}

	currentTip, currentHasCommits, currentTipError := service.repository.LineTip(executionContext, current)
	if currentTipError != nil {
		return RenameReport{}, OperationError{Operation: StepRenamePrimaryLine, Cause: fmt.Errorf(lineTipErrorTemplateConstant, current, currentTipError)}
	}

	targetTip, targetExists, targetTipError := service.repository.LineTip(executionContext, target)
	if targetTipError != nil {
		return RenameReport{}, OperationError{Operation: StepRenamePrimaryLine, Cause: fmt.Errorf(lineTipErrorTemplateConstant, target, targetTipError)}
	}

	var logMessage string
	switch {
	case targetExists && (!currentHasCommits || targetTip != currentTip):
		conflict := ConflictError{Target: target, TargetTip: targetTip, Current: current, CurrentTip: currentTip}
		service.recordRename(executionContext, current, target, conflict.Error())
		return RenameReport{}, conflict
	case !currentHasCommits:
		if pointError := service.repository.PointHead(executionContext, target); pointError != nil {
			return RenameReport{}, OperationError{Operation: StepRenamePrimaryLine, Cause: fmt.Errorf(pointHeadErrorTemplateConstant, target, pointError)}
		}
		logMessage = renameUnbornMessageConstant
	case targetExists:
		if pointError := service.repository.PointHead(executionContext, target); pointError != nil {
			return RenameReport{}, OperationError{Operation: StepRenamePrimaryLine, Cause: fmt.Errorf(pointHeadErrorTemplateConstant, target, pointError)}
		}
		if deleteError := service.repository.DeleteLine(executionContext, current); deleteError != nil {
			return RenameReport{}, OperationError{Operation: StepRenamePrimaryLine, Cause: fmt.Errorf(deleteLineErrorTemplateConstant, current, deleteError)}
		}
		logMessage = renameMergedMessageConstant
	default:
		if renameError := service.repository.RenameLine(executionContext, current, target); renameError != nil {
			return RenameReport{}, OperationError{Operation: StepRenamePrimaryLine, Cause: fmt.Errorf(renameLineErrorTemplateConstant, current, target, renameError)}
		}
		logMessage = renameMovedMessageConstant
	}

	service.logger.Info(logMessage, zap.String(logFieldPreviousLineConstant, string(current)), zap.String(logFieldLineConstant, string(target)))
	service.recordRename(executionContext, current, target, logMessage)
	report.Changed = true
	return report, nil
}

// Transmit publishes a line to a bound endpoint. It never forces: an endpoint line that is
// not an ancestor of the local tip is rejected. Publishing an unchanged line transmits nothing.
func (service *Service) Transmit(executionContext context.Context, request TransmitRequest) (TransmitReport, error) {
	endpointInput := request.Endpoint
	if len(strings.TrimSpace(endpointInput)) == 0 {
		endpointInput = string(service.options.Workspace.DefaultEndpoint)
	}
	endpoint, endpointError := NewEndpointName(endpointInput, StepTransmit)
	if endpointError != nil {
		return TransmitReport{}, endpointError
	}

	line, lineError := service.resolveTransmitLine(executionContext, request.Line)
	if lineError != nil {
		return TransmitReport{}, lineError
	}

	report := TransmitReport{Endpoint: endpoint, Line: line, State: StateUnbound}
	tracker := &transitionTracker{service: service, endpoint: endpoint, line: line, state: StateUnbound}

	boundURL, bound, lookupError := service.repository.EndpointURL(executionContext, endpoint)
	if lookupError != nil {
		return service.failTransmit(executionContext, tracker, report, OperationError{Operation: StepTransmit, Cause: fmt.Errorf(endpointLookupErrorTemplateConstant, endpoint, lookupError)})
	}
	if !bound {
		return service.failTransmit(executionContext, tracker, report, UnboundEndpointError{Endpoint: endpoint})
	}
	report.URL = boundURL
	tracker.state = service.states.current(endpoint, line, StateBound)
	report.State = tracker.state

	localTip, hasCommits, tipError := service.repository.LineTip(executionContext, line)
	if tipError != nil {
		return service.failTransmit(executionContext, tracker, report, OperationError{Operation: StepTransmit, Cause: fmt.Errorf(lineTipErrorTemplateConstant, line, tipError)})
	}
	if !hasCommits {
		return service.failTransmit(executionContext, tracker, report, EmptyHistoryError{Line: line})
	}
	report.LocalTip = localTip

	if advanceError := tracker.advance(executionContext, StepTransmit, StateTransmitting, transmitStartedMessageConstant, 0); advanceError != nil {
		return report, advanceError
	}
	report.State = StateTransmitting
	service.logger.Info(transmitStartedMessageConstant, zap.String(logFieldEndpointConstant, string(endpoint)), zap.String(logFieldLineConstant, string(line)), zap.String(logFieldLocalTipConstant, localTip))

	transmitContext, cancelTransmit := service.transmitContext(executionContext)
	defer cancelTransmit()

	remoteTip, remoteHasLine, remoteError := service.repository.RemoteLineTip(transmitContext, endpoint, line)
	if remoteError != nil {
		return service.failTransmit(executionContext, tracker, report, classifyTransportError(transmitContext, endpoint, remoteError))
	}
	if remoteHasLine {
		report.RemoteTipBefore = remoteTip
	}

	if remoteHasLine && remoteTip == localTip {
		service.logger.Info(transmitUpToDateMessageConstant, zap.String(logFieldEndpointConstant, string(endpoint)), zap.String(logFieldLineConstant, string(line)), zap.String(logFieldRemoteTipConstant, remoteTip))
	} else {
		if remoteHasLine {
			fastForward, ancestryError := service.repository.IsAncestor(executionContext, remoteTip, localTip)
			if ancestryError != nil {
				return service.failTransmit(executionContext, tracker, report, OperationError{Operation: StepTransmit, Cause: fmt.Errorf(ancestryErrorTemplateConstant, shortHash(remoteTip), shortHash(localTip), ancestryError)})
			}
			if !fastForward {
				return service.failTransmit(executionContext, tracker, report, RemoteRejectedError{Endpoint: endpoint, Line: line, Reason: nonFastForwardReasonConstant})
			}
		}

		if guardError := service.inspectSecrets(executionContext, localTip, report.RemoteTipBefore); guardError != nil {
			return service.failTransmit(executionContext, tracker, report, guardError)
		}

		commitCount, countError := service.repository.CountCommits(executionContext, localTip, report.RemoteTipBefore)
		if countError != nil {
			return service.failTransmit(executionContext, tracker, report, OperationError{Operation: StepTransmit, Cause: fmt.Errorf(countCommitsErrorTemplateConstant, line, countError)})
		}

		if pushError := service.repository.Push(transmitContext, endpoint, line); pushError != nil {
			return service.failTransmit(executionContext, tracker, report, classifyTransportError(transmitContext, endpoint, pushError))
		}
		report.CommitsTransmitted = commitCount
	}

	if request.SetUpstream {
		if upstreamError := service.repository.SetUpstream(executionContext, line, endpoint); upstreamError != nil {
			return service.failTransmit(executionContext, tracker, report, OperationError{Operation: StepTransmit, Cause: fmt.Errorf(upstreamErrorTemplateConstant, line, upstreamError)})
		}
		report.UpstreamConfigured = true
		service.logger.Info(upstreamConfiguredMessageConstant, zap.String(logFieldLineConstant, string(line)), zap.String(logFieldEndpointConstant, string(endpoint)))
	}

	if advanceError := tracker.advance(executionContext, StepTransmit, StateSynced, fmt.Sprintf(transmitJournalMessageTemplateConstant, report.CommitsTransmitted), report.CommitsTransmitted); advanceError != nil {
		return report, advanceError
	}
	report.State = StateSynced
	service.logger.Info(
		transmitCompletedMessageConstant,
		zap.String(logFieldEndpointConstant, string(endpoint)),
		zap.String(logFieldLineConstant, string(line)),
		zap.Int(logFieldCommitsConstant, report.CommitsTransmitted),
		zap.String(logFieldStateConstant, string(report.State)),
	)
	return report, nil
}

func (service *Service) resolveTransmitLine(executionContext context.Context, rawLine string) (LineName, error) {
	if len(strings.TrimSpace(rawLine)) > 0 {
		return NewLineName(rawLine, StepTransmit)
	}
	current, currentError := service.repository.CurrentLine(executionContext)
	if currentError != nil {
		return "", OperationError{Operation: StepTransmit, Cause: fmt.Errorf(currentLineErrorTemplateConstant, currentError)}
	}
	return current, nil
}

// inspectSecrets checks every snapshot Push would send: the commits reachable from tip and not from remoteTip.
func (service *Service) inspectSecrets(executionContext context.Context, tip string, remoteTip string) error {
	if service.options.DisableSecretGuard {
		return nil
	}

	transmittedFiles, listError := service.repository.TransmittedFiles(executionContext, tip, remoteTip)
	if listError != nil {
		return OperationError{Operation: StepTransmit, Cause: fmt.Errorf(transmittedFilesErrorTemplateConstant, shortHash(tip), listError)}
	}

	exposed := service.secretGuard.Inspect(transmittedFiles)

	exclusionMatcher, exclusionError := service.exclusionLoader(service.options.Workspace.Path)
	if exclusionError != nil {
		service.logger.Warn(exclusionReadWarningMessageConstant, zap.Error(exclusionError))
	} else {
		if uncovered := service.secretGuard.UncoveredPatterns(exclusionMatcher); len(uncovered) > 0 {
			service.logger.Warn(secretCoverageWarningMessageConstant, zap.Strings(logFieldPatternsConstant, uncovered))
		}
		exposed = mergePaths(exposed, ExcludedPaths(exclusionMatcher, transmittedFiles))
	}

	if len(exposed) > 0 {
		return SecretExposureError{Paths: exposed}
	}
	return nil
}

func (service *Service) transmitContext(parent context.Context) (context.Context, context.CancelFunc) {
	if service.options.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, service.options.Timeout)
}

func (service *Service) failTransmit(executionContext context.Context, tracker *transitionTracker, report TransmitReport, failure error) (TransmitReport, error) {
	failureState := FailureState(failure)
	if advanceError := tracker.advance(executionContext, StepTransmit, failureState, failure.Error(), 0); advanceError != nil {
		service.logger.Debug(advanceError.Error())
	}
	report.State = failureState
	report.CommitsTransmitted = 0
	service.logger.Warn(
		transmitFailedMessageConstant,
		zap.String(logFieldEndpointConstant, string(report.Endpoint)),
		zap.String(logFieldLineConstant, string(report.Line)),
		zap.String(logFieldStateConstant, string(failureState)),
		zap.Bool(logFieldRetryableConstant, IsRetryable(failure)),
		zap.Error(failure),
	)
	return report, failure
}

func (service *Service) recordRename(executionContext context.Context, previous LineName, current LineName, message string) {
	service.record(executionContext, Transition{
		Operation: StepRenamePrimaryLine,
		Line:      current,
		Message:   fmt.Sprintf(renameJournalMessageTemplateConstant, previous, current, message),
	})
}

func (service *Service) record(executionContext context.Context, transition Transition) {
	if service.recorder == nil {
		return
	}
	// The transition has already happened; cancellation of the caller must not drop its entry.
	if recordError := service.recorder.RecordTransition(context.WithoutCancel(executionContext), transition); recordError != nil {
		service.logger.Warn(journalWriteWarningMessageConstant, zap.String(logFieldStepConstant, string(transition.Operation)), zap.Error(recordError))
	}
}

type transitionTracker struct {
	service  *Service
	endpoint EndpointName
	line     LineName
	state    State
}

func (tracker *transitionTracker) advance(executionContext context.Context, operation Step, next State, message string, commits int) error {
	if !tracker.state.CanTransitionTo(next) {
		return InvalidTransitionError{From: tracker.state, To: next}
	}
	tracker.service.record(executionContext, Transition{
		Operation: operation,
		Endpoint:  tracker.endpoint,
		Line:      tracker.line,
		From:      tracker.state,
		To:        next,
		Message:   message,
		Commits:   commits,
	})
	tracker.state = next
	tracker.service.states.store(tracker.endpoint, tracker.line, next)
	return nil
}

func classifyTransportError(transmitContext context.Context, endpoint EndpointName, failure error) error {
	if contextError := transmitContext.Err(); contextError != nil {
		return NetworkError{Endpoint: endpoint, Cause: fmt.Errorf(interruptedTransportTemplateConstant, contextError, failure)}
	}
	var classified ClassifiedError
	if errors.As(failure, &classified) {
		return failure
	}
	return NetworkError{Endpoint: endpoint, Cause: failure}
}
