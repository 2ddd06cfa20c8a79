package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/iconidentify/ytgrabba/pkg/ffmpeg"
)

func runLocate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("locate", stderr)
	showVersion := fs.Bool("version", false, "Also ask the helper tools for their version")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ytgrabba locate [options]")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := newApp(*configPath, stderr)
	if err != nil {
		return err
	}

	tool := toolName(a.cfg.Tool)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)

	toolPath, toolErr := a.locator.Locate(tool)
	printLocation(tw, tool, toolPath, toolErr)

	for _, helper := range []string{ffmpeg.FFmpegName, ffmpeg.FFprobeName} {
		path, err := a.locator.Locate(helper)
		printLocation(tw, helper, path, err)
		if err == nil && *showVersion {
			vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if v, verr := ffmpeg.Version(vctx, path); verr == nil {
				fmt.Fprintf(tw, "\t%s\n", v)
			}
			cancel()
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	// Only the main tool is required.
	return toolErr
}

func printLocation(w io.Writer, name, path string, err error) {
	if err != nil {
		fmt.Fprintf(w, "%s\tnot found\n", name)
		return
	}
	fmt.Fprintf(w, "%s\t%s\n", name, path)
}
