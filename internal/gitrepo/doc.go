// Package gitrepo validates and describes the endpoint URLs a workspace can be
// bound to.
//
// ParseEndpointURL accepts https, http, ssh, git, scp-like and file:// forms and
// rejects everything else before any network attempt is made.
package gitrepo
