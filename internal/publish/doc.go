// Package publish implements the workspace publishing workflow.
//
// A Service binds a named endpoint to a workspace, relabels the primary line of
// development and transmits committed history to the endpoint. Every failure is
// reported through a typed error that names the failing step and whether a
// retry may succeed.
package publish
