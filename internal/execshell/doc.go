// Package execshell runs external commands with structured lifecycle logging.
//
// ShellExecutor wraps a CommandRunner, logs every invocation through zap and
// notifies an optional CommandEventObserver. OSCommandRunner is the default
// runner backed by os/exec.
package execshell
