package main

import (
	"fmt"
	"os"

	"github.com/sreq-inc/solo/internal/errdef"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	a := newApp(os.Stdout, os.Stderr)
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", errdef.Message(err))
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch errdef.CodeOf(err) {
	case errdef.CodeValidation, errdef.CodeResolution:
		return 2
	case errdef.CodeNotFound:
		return 3
	default:
		return 1
	}
}
