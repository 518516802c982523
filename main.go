package main

import (
	"fmt"
	"os"

	"github.com/temirov/gitpublish/cmd/cli"
	"github.com/temirov/gitpublish/internal/publish"
)

// main executes the gitpublish command-line application. The exit status is 0 on success,
// 75 when retrying may succeed and 1 otherwise.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintln(os.Stderr, publish.DescribeFailure(executionError))
		os.Exit(publish.ExitCode(executionError))
	}
}
