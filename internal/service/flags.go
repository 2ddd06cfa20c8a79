package service

import (
	"fmt"
	"slices"
	"strings"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// deniedLongFlags are tool options that choose files outside the
// destination, read local files, or run other programs.
var deniedLongFlags = []string{
	"output",
	"paths",
	"exec",
	"exec-before-download",
	"config-location",
	"config-locations",
	"batch-file",
	"load-info-json",
	"print-to-file",
	"cookies",
	"cookies-from-browser",
	"download-archive",
	"cache-dir",
	"netrc-location",
	"plugin-dirs",
	"ffmpeg-location",
	"downloader",
	"external-downloader",
	"downloader-args",
	"external-downloader-args",
	"postprocessor-args",
	"ppa",
	"use-postprocessor",
	"alias",
}

// deniedShortFlags are the single-letter forms: -o, -P and -a.
const deniedShortFlags = "oPa"

// allowedLongFlags are complete option names that happen to prefix a
// denied one.
var allowedLongFlags = []string{"print"}

// checkFlags rejects pass-through flags that could escape the download
// directory. The tool accepts unambiguous abbreviations of long options,
// so any prefix of a denied name is refused too.
func checkFlags(flags []string) error {
	for _, f := range flags {
		if err := checkFlag(f); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
	}
	return nil
}

func checkFlag(f string) error {
	switch {
	case f == "--":
		return fmt.Errorf("flag %q is not allowed", f)

	case strings.HasPrefix(f, "--"):
		name, _, _ := strings.Cut(strings.TrimPrefix(f, "--"), "=")
		name = strings.ToLower(name)
		if slices.Contains(allowedLongFlags, name) {
			return nil
		}
		for _, denied := range deniedLongFlags {
			if strings.HasPrefix(denied, name) {
				return fmt.Errorf("flag %q is not allowed", f)
			}
		}

	case strings.HasPrefix(f, "-") && len(f) > 1:
		// Short options may be bundled, as in -xo PATH.
		if strings.ContainsAny(f[1:], deniedShortFlags) {
			return fmt.Errorf("flag %q is not allowed", f)
		}
	}
	return nil
}
