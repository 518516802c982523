package execshell

import (
	"fmt"
	"strings"
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	workingDirectorySuffixTemplateConstant  = "%s in %s"
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	pushStartTemplateConstant               = "Pushing %s to %s"
	listRemoteStartTemplateConstant         = "Querying %s for %s"
	remoteAddStartTemplateConstant          = "Binding remote %s to %s"
	branchRenameStartTemplateConstant       = "Renaming branch %s to %s"
	symbolicRefStartTemplateConstant        = "Pointing HEAD at %s"
	upstreamStartTemplateConstant           = "Tracking %s"
	gitPushSubcommandConstant               = "push"
	gitLSRemoteSubcommandConstant           = "ls-remote"
	gitRemoteSubcommandConstant             = "remote"
	gitRemoteAddSubcommandConstant          = "add"
	gitBranchSubcommandConstant             = "branch"
	gitBranchMoveFlagConstant               = "-m"
	gitBranchUpstreamFlagPrefixConstant     = "--set-upstream-to="
	gitSymbolicRefSubcommandConstant        = "symbolic-ref"
	optionPrefixConstant                    = "-"
)

// CommandMessageFormatter renders human-readable lifecycle messages for shell commands.
type CommandMessageFormatter struct{}

// BuildStartedMessage describes a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	message := formatter.describeGitIntent(command)
	if len(message) == 0 {
		message = fmt.Sprintf(genericStartTemplateConstant, command.Label())
	}
	return formatter.withWorkingDirectory(message, command)
}

// BuildSuccessMessage describes a command that exited with status zero.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.withWorkingDirectory(fmt.Sprintf(genericSuccessTemplateConstant, command.Label()), command)
}

// BuildFailureMessage describes a command that exited with a non-zero status.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	suffix := ""
	if trimmed := strings.TrimSpace(result.StandardError); len(trimmed) > 0 {
		suffix = fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmed)
	}
	return fmt.Sprintf(genericFailureTemplateConstant, command.Label(), result.ExitCode, suffix)
}

// BuildExecutionFailureMessage describes a command that could not run.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	return fmt.Sprintf(genericExecutionFailureTemplateConstant, command.Label(), failureMessage)
}

func (formatter CommandMessageFormatter) describeGitIntent(command ShellCommand) string {
	if command.Name != CommandGit {
		return ""
	}
	positional := positionalArguments(command.Details.Arguments)
	if len(positional) == 0 {
		return ""
	}

	switch positional[0] {
	case gitPushSubcommandConstant:
		if len(positional) >= 3 {
			return fmt.Sprintf(pushStartTemplateConstant, positional[2], positional[1])
		}
	case gitLSRemoteSubcommandConstant:
		if len(positional) >= 3 {
			return fmt.Sprintf(listRemoteStartTemplateConstant, positional[1], positional[2])
		}
	case gitRemoteSubcommandConstant:
		if len(positional) >= 4 && positional[1] == gitRemoteAddSubcommandConstant {
			return fmt.Sprintf(remoteAddStartTemplateConstant, positional[2], positional[3])
		}
	case gitSymbolicRefSubcommandConstant:
		if len(positional) >= 3 {
			return fmt.Sprintf(symbolicRefStartTemplateConstant, positional[2])
		}
	case gitBranchSubcommandConstant:
		return describeBranchIntent(command.Details.Arguments)
	}
	return ""
}

func describeBranchIntent(arguments []string) string {
	for index, argument := range arguments {
		if argument == gitBranchMoveFlagConstant && index+2 < len(arguments) {
			return fmt.Sprintf(branchRenameStartTemplateConstant, arguments[index+1], arguments[index+2])
		}
		if strings.HasPrefix(argument, gitBranchUpstreamFlagPrefixConstant) {
			return fmt.Sprintf(upstreamStartTemplateConstant, strings.TrimPrefix(argument, gitBranchUpstreamFlagPrefixConstant))
		}
	}
	return ""
}

func (formatter CommandMessageFormatter) withWorkingDirectory(message string, command ShellCommand) string {
	workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(workingDirectory) == 0 {
		return message
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, message, workingDirectory)
}

func positionalArguments(arguments []string) []string {
	positional := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		if strings.HasPrefix(argument, optionPrefixConstant) {
			continue
		}
		positional = append(positional, argument)
	}
	return positional
}
