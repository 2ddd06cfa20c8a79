//go:build !windows

package locator

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// nameVariants lists the file names a tool may be installed under.
// yt-dlp publishes standalone binaries with a platform suffix.
func nameVariants(name string) []string {
	variants := []string{name}
	switch runtime.GOOS {
	case "linux":
		if runtime.GOARCH == "arm64" {
			variants = append(variants, name+"_linux_aarch64")
		}
		if runtime.GOARCH == "arm" {
			variants = append(variants, name+"_linux_armv7l")
		}
		variants = append(variants, name+"_linux")
	case "darwin":
		variants = append(variants, name+"_macos")
	}
	return variants
}

func candidates(path string, _ func(string) string) []string {
	return []string{path}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}
