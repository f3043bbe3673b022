// Command edhost hosts the sandboxed units of a scene.
//
// Usage:
//
//	edhost run scene.yaml          run headless until the tick budget or Ctrl+C
//	edhost play scene.yaml         run in the terminal with mouse and key input
//	edhost inspect module.wasm     list a module's imports and exports
//	edhost schema                  print the scene file JSON schema
//	edhost init scene.yaml         write the example scene
//	edhost demo ./demo             write the demo modules and their scene
//
// A guest exit ends the process with the guest's exit code.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/ededitor/edhost/errors"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if code, ok := errors.ExitCode(err); ok {
		return int(code)
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}
