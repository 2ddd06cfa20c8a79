// Package testutil provides a fake external downloader for process-level
// tests. Test binaries re-execute themselves as the fake tool: TestMain
// calls RunFakeToolIfRequested before m.Run, and tests point the launcher
// at os.Args[0] with Env(...) in the child environment.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Environment variables understood by the fake tool.
const (
	EnvScenario = "YTGRABBA_FAKE_TOOL"
	EnvStateDir = "YTGRABBA_FAKE_STATE"
)

// Scenarios.
const (
	ScenarioSuccess          = "success"
	ScenarioAmbiguous        = "ambiguous"
	ScenarioTransient        = "transient"
	ScenarioTransientOnce    = "transient-once"
	ScenarioPermanent        = "permanent"
	ScenarioUnknown          = "unknown"
	ScenarioHang             = "hang"
	ScenarioEchoArgs         = "echo-args"
	ScenarioFlood            = "flood"
	ScenarioPartialLine      = "partial-line"
	ScenarioWarningThenFatal = "warning-then-fatal"
)

// FloodBytes is how much stderr the flood scenario writes before completing.
const FloodBytes = 4 << 20

const completionPrefix = "[ytgrabba] Completed: "

// Env returns child environment entries selecting a scenario.
func Env(scenario, stateDir string) []string {
	return []string{EnvScenario + "=" + scenario, EnvStateDir + "=" + stateDir}
}

// Invocations returns how many times the fake tool ran with stateDir.
func Invocations(stateDir string) int {
	data, err := os.ReadFile(filepath.Join(stateDir, "count"))
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return n
}

// RunFakeToolIfRequested turns the current process into the fake tool when
// the scenario variable is set. It never returns in that case.
func RunFakeToolIfRequested() {
	scenario := os.Getenv(EnvScenario)
	if scenario == "" {
		return
	}
	os.Exit(runFakeTool(scenario, os.Args[1:]))
}

func runFakeTool(scenario string, args []string) int {
	n := bumpCounter(os.Getenv(EnvStateDir))
	out := outputPath(args)

	switch scenario {
	case ScenarioSuccess:
		printProgress()
		fmt.Println(completionPrefix + out)
		return 0

	case ScenarioAmbiguous:
		printProgress()
		return 0

	case ScenarioTransient:
		fmt.Fprintln(os.Stderr, "ERROR: Connection reset by peer")
		return 1

	case ScenarioTransientOnce:
		if n <= 1 {
			fmt.Println("[download]   3.0% of 10.00MiB at 1.00MiB/s ETA 00:09")
			fmt.Fprintln(os.Stderr, "ERROR: Connection reset")
			return 1
		}
		printProgress()
		fmt.Println(completionPrefix + out)
		return 0

	case ScenarioPermanent:
		fmt.Fprintln(os.Stderr, "ERROR: Video unavailable")
		return 1

	case ScenarioWarningThenFatal:
		fmt.Fprintln(os.Stderr, "WARNING: unable to extract uploader id")
		fmt.Fprintln(os.Stderr, "ERROR: [generic] Unsupported URL: https://example.com/nothing")
		return 1

	case ScenarioUnknown:
		return 2

	case ScenarioHang:
		fmt.Println("[download]   1.0% of 10.00MiB at 1.00MiB/s ETA 00:10")
		time.Sleep(time.Hour)
		return 0

	case ScenarioEchoArgs:
		for _, a := range args {
			fmt.Println("ARG " + a)
		}
		fmt.Println(completionPrefix + out)
		return 0

	case ScenarioFlood:
		line := strings.Repeat("x", 1023) + "\n"
		for written := 0; written < FloodBytes; written += len(line) {
			os.Stderr.WriteString(line)
		}
		fmt.Println(completionPrefix + out)
		return 0

	case ScenarioPartialLine:
		fmt.Print("[download] 100% of 1.00MiB\r" + completionPrefix + out)
		return 0
	}

	fmt.Fprintf(os.Stderr, "fake tool: unknown scenario %q\n", scenario)
	return 99
}

func printProgress() {
	fmt.Println("[youtube] abc: Downloading webpage")
	fmt.Println("[download]  42.5% of 10.00MiB at  1.23MiB/s ETA 00:05")
	fmt.Println("[download] 100% of 10.00MiB in 00:08")
}

// outputPath resolves the -o template the way the real tool would for an mp4.
func outputPath(args []string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-o" {
			return strings.ReplaceAll(args[i+1], "%(ext)s", "mp4")
		}
	}
	return "out.mp4"
}

func bumpCounter(dir string) int {
	if dir == "" {
		return 1
	}
	n := Invocations(dir) + 1
	os.WriteFile(filepath.Join(dir, "count"), []byte(strconv.Itoa(n)), 0o644)
	return n
}
