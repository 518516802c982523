// Package flags provides pflag values shared by the gitpublish commands.
package flags
