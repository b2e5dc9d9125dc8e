// normative balances clinical cohorts and scores them with the bootstrap
// replicas of a trained normative autoencoder.
//
// Usage:
//
//	normative balance [-D ADNI]
//	normative infer -D ADNI [--replicas 0-9,42] [--parallel 4] [--keep-going] [--skip-completed]
//	normative status [-D ADNI]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := root.ExecuteContext(ctx)
	if ferr := a.finish(); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}
