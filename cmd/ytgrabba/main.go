package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitUsage     = 2
	exitConfig    = 3
	exitFatal     = 4
	exitGaveUp    = 5
	exitCancelled = 130
)

var (
	errUsage  = errors.New("invalid arguments")
	errConfig = errors.New("configuration error")
)

const usage = `usage: ytgrabba <command> [options]

commands:
  get      download one URL
  batch    download every URL listed in a file
  serve    run the HTTP API and worker pool
  history  list recorded downloads
  locate   show which executables would be used
  version  print version information

Run 'ytgrabba <command> -h' for command options.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "get":
		err = runGet(ctx, rest, stdout, stderr)
	case "batch":
		err = runBatch(ctx, rest, stdout, stderr)
	case "serve":
		err = runServe(ctx, rest, stdout, stderr)
	case "history":
		err = runHistory(ctx, rest, stdout, stderr)
	case "locate":
		err = runLocate(ctx, rest, stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "ytgrabba %s (built %s)\n", Version, BuildTime)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}

	if errors.Is(err, errHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "ytgrabba: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.Is(err, errUsage), errors.Is(err, domain.ErrInvalidRequest):
		return exitUsage
	case errors.Is(err, errConfig), domain.KindOf(err).IsConfigError():
		return exitConfig
	case errors.Is(err, domain.ErrGaveUp):
		return exitGaveUp
	case errors.Is(err, domain.ErrFatal), errors.Is(err, domain.ErrStreamRead):
		return exitFatal
	default:
		return exitError
	}
}
