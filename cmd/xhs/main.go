// File: cmd/xhs/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/xhs-cli/cmd"
	"github.com/xkilldash9x/xhs-cli/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables replaced in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	// SIGINT and SIGTERM cancel the context; the running workflow unwinds and
	// the deferred component shutdown closes the browser.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(130)
				return
			}
			// Execute already logged anything that is not a printed result.
			osExit(1)
		}
		return
	}

	runShell(ctx, os.Stdin, os.Stdout)
}

// runShell reads commands line by line until EOF, "exit" or "quit". Every
// line gets a fresh command tree so flags do not leak between lines.
func runShell(ctx context.Context, in io.Reader, out io.Writer) {
	fmt.Fprintf(out, "xhs-cli %s interactive shell. Type 'exit' to quit.\n", cmd.Version)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "xhs-cli > ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		executeShellCommand(ctx, line, out)
		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
	}
	fmt.Fprintln(out, "Exiting xhs-cli.")
}

func executeShellCommand(ctx context.Context, line string, out io.Writer) {
	root := cmd.NewRootCommand()
	root.SetArgs(strings.Fields(line))
	root.SetOut(out)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Error: command panicked: %v\n", r)
		}
	}()
	if err := root.ExecuteContext(ctx); err != nil && !errors.Is(err, cmd.ErrResultFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
}

// handlePanic writes the panic and stack to panic.log and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(2)
		return
	}
	fmt.Fprintf(os.Stderr, "xhs-cli crashed. Details logged to %s\n", panicLogFile)
	osExit(2)
}
