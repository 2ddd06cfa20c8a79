// Package launcher builds the external tool's argument vector and starts it.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// Argument defaults for a yt-dlp compatible tool.
const (
	// CompletionPrefix is printed by the tool once the final file is in place.
	CompletionPrefix = "[ytgrabba] Completed: "

	// DefaultCompletionPrint asks the tool to print the final path after all post-processing.
	DefaultCompletionPrint = "after_move:" + CompletionPrefix + "%(filepath)s"

	// ExtTemplate is appended to destinations that are not output templates already.
	ExtTemplate = ".%(ext)s"
)

// DefaultBaseArgs are passed before anything else.
var DefaultBaseArgs = []string{"--newline", "--no-colors", "--progress"}

// Options configures how processes are started. They are fixed for the
// lifetime of a Launcher so BuildArgs stays a pure function of the request.
type Options struct {
	// BaseArgs are passed first. Nil means DefaultBaseArgs.
	BaseArgs []string
	// CompletionPrint is the --print template used as completion marker.
	// Empty disables it.
	CompletionPrint string
	// HelperPath is passed as --ffmpeg-location when set.
	HelperPath string
	// WorkDir is the child's working directory. Empty inherits ours.
	WorkDir string
	// Env entries (KEY=VALUE) are added to the inherited environment.
	Env []string
}

// DefaultOptions returns launcher options for yt-dlp.
func DefaultOptions() Options {
	return Options{
		BaseArgs:        append([]string(nil), DefaultBaseArgs...),
		CompletionPrint: DefaultCompletionPrint,
	}
}

// Launcher starts external tool processes.
type Launcher struct {
	opts Options
}

// New creates a Launcher.
func New(opts Options) *Launcher {
	if opts.BaseArgs == nil {
		opts.BaseArgs = append([]string(nil), DefaultBaseArgs...)
	}
	return &Launcher{opts: opts}
}

// BuildArgs returns the argument vector for a request. The order is:
// base args, completion marker, helper location, output template,
// pass-through flags, "--", URL.
func (l *Launcher) BuildArgs(req domain.DownloadRequest) []string {
	flags := req.Flags()
	args := make([]string, 0, len(l.opts.BaseArgs)+len(flags)+8)

	args = append(args, l.opts.BaseArgs...)
	if l.opts.CompletionPrint != "" {
		args = append(args, "--print", l.opts.CompletionPrint)
	}
	if l.opts.HelperPath != "" {
		args = append(args, "--ffmpeg-location", l.opts.HelperPath)
	}
	args = append(args, "-o", OutputTemplate(req.Destination()))
	args = append(args, flags...)
	args = append(args, "--", req.URL())

	return args
}

// OutputTemplate turns a destination into a tool output template.
func OutputTemplate(destination string) string {
	if strings.Contains(destination, "%(") {
		return destination
	}
	return destination + ExtTemplate
}

// Launch starts the tool and returns as soon as the process exists and
// its output streams are readable. It does not wait for completion.
func (l *Launcher) Launch(ctx context.Context, path string, req domain.DownloadRequest) (*Process, error) {
	args := l.BuildArgs(req)

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = l.opts.WorkDir
	if len(l.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), l.opts.Env...)
	}
	setProcessGroup(cmd)

	p := &Process{cmd: cmd, args: args}
	cmd.Cancel = p.killTree

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, spawnError(path, fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, spawnError(path, fmt.Errorf("stderr pipe: %w", err))
	}
	p.stdout = stdout
	p.stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, spawnError(path, err)
	}

	return p, nil
}

func spawnError(path string, err error) error {
	return domain.NewInvocationError(domain.KindSpawn, "spawn "+path, fmt.Errorf("%w: %v", domain.ErrSpawn, err))
}

// Process is a handle to one running external tool instance.
type Process struct {
	cmd    *exec.Cmd
	args   []string
	stdout io.ReadCloser
	stderr io.ReadCloser

	killOnce sync.Once
	killErr  error
}

// PID returns the OS process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Args returns the argument vector the process was started with.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// Stdout returns the child's standard output.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Stderr returns the child's standard error.
func (p *Process) Stderr() io.Reader {
	return p.stderr
}

// Kill terminates the process and everything it spawned, then closes our
// ends of the output pipes so blocked readers return.
func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		p.killErr = p.killTree()
		p.stdout.Close()
		p.stderr.Close()
	})
	return p.killErr
}

// Wait blocks until the process exits and returns its exit code. A process
// killed by a signal reports -1. Wait closes the output pipes, so all
// reading must be finished before it is called.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if p.cmd.ProcessState != nil {
		return p.cmd.ProcessState.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait: %w", err)
}
