// Package gogit implements the publish workspace primitives in-process with go-git.
package gogit
