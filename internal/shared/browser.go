package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// launchers maps GOOS to the command that hands a URL to the default browser.
var launchers = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"windows": {"cmd", "/c", "start"},
}

var goos = runtime.GOOS

// OpenBrowser opens url in the system's default browser. The command is
// started without waiting, so a hung browser never blocks the caller.
func OpenBrowser(url string) error {
	argv, ok := launchers[goos]
	if !ok {
		return fmt.Errorf("no browser launcher for platform %s", goos)
	}

	cmd := exec.Command(argv[0], append(argv[1:], url)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
