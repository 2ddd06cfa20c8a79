//go:build windows

package locator

import (
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sys/windows"
)

const defaultPathExt = ".COM;.EXE;.BAT;.CMD"

func nameVariants(name string) []string {
	variants := []string{name}
	if runtime.GOARCH == "386" {
		variants = append(variants, name+"_x86")
	}
	return variants
}

// candidates expands a path without extension using PATHEXT.
func candidates(path string, getenv func(string) string) []string {
	if filepath.Ext(path) != "" {
		return []string{path}
	}

	pathext := getenv("PATHEXT")
	if pathext == "" {
		pathext = defaultPathExt
	}

	var out []string
	for _, ext := range strings.Split(pathext, ";") {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, path+strings.ToLower(ext))
	}
	return out
}

func isExecutable(path string) bool {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(ptr)
	if err != nil {
		return false
	}
	return attrs&windows.FILE_ATTRIBUTE_DIRECTORY == 0
}
