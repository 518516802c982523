// Package gitcli implements the publish workspace primitives by invoking the git executable.
package gitcli
