// Package publishing provides the Cobra commands that bind endpoints, relabel the
// primary line, publish a line and report the journaled publish state.
package publishing
