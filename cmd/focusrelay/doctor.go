package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/focusrelay/internal/browser"
	"github.com/neboloop/focusrelay/internal/config"
	"github.com/neboloop/focusrelay/internal/textservice"
)

// DoctorCmd creates the doctor command for health checks
func DoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, Chrome and the text service",
		Long: `Run diagnostics on a focusrelay setup.

Checks:
  - Configuration
  - Vault directory
  - Chrome (executable or remote debugging endpoint)
  - Text service reachability`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := runChecks(cmd.Context(), *ServerConfig)
			if printResults(cmd.OutOrStdout(), results) > 0 {
				return fmt.Errorf("doctor found problems")
			}
			return nil
		},
	}
}

type checkResult struct {
	name    string
	status  string // "ok", "warn", "error"
	message string
}

func runChecks(ctx context.Context, c config.Config) []checkResult {
	var results []checkResult
	results = append(results, checkConfig(c))
	results = append(results, checkVault(c))
	results = append(results, checkChrome(c))
	results = append(results, checkService(ctx, c))
	return results
}

// printResults writes one line per check and returns the error count.
func printResults(w io.Writer, results []checkResult) int {
	okCount, warnCount, errorCount := 0, 0, 0
	for _, r := range results {
		switch r.status {
		case "ok":
			fmt.Fprintf(w, "\033[32m✓\033[0m %s: %s\n", r.name, r.message)
			okCount++
		case "warn":
			fmt.Fprintf(w, "\033[33m⚠\033[0m %s: %s\n", r.name, r.message)
			warnCount++
		case "error":
			fmt.Fprintf(w, "\033[31m✗\033[0m %s: %s\n", r.name, r.message)
			errorCount++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  \033[32m%d passed\033[0m", okCount)
	if warnCount > 0 {
		fmt.Fprintf(w, "  \033[33m%d warnings\033[0m", warnCount)
	}
	if errorCount > 0 {
		fmt.Fprintf(w, "  \033[31m%d errors\033[0m", errorCount)
	}
	fmt.Fprintln(w)
	return errorCount
}

func checkConfig(c config.Config) checkResult {
	if err := c.Validate(); err != nil {
		return checkResult{name: "Config", status: "error", message: err.Error()}
	}
	src := "embedded defaults"
	if cfgFile != "" {
		src = cfgFile
	}
	return checkResult{name: "Config", status: "ok", message: src}
}

func checkVault(c config.Config) checkResult {
	info, err := os.Stat(c.Service.VaultPath)
	switch {
	case os.IsNotExist(err):
		return checkResult{name: "Vault", status: "warn", message: c.Service.VaultPath + " does not exist yet (created by serve)"}
	case err != nil:
		return checkResult{name: "Vault", status: "error", message: err.Error()}
	case !info.IsDir():
		return checkResult{name: "Vault", status: "error", message: c.Service.VaultPath + " is not a directory"}
	}
	return checkResult{name: "Vault", status: "ok", message: c.Service.VaultPath}
}

func checkChrome(c config.Config) checkResult {
	if c.Browser.CDPURL != "" {
		if browser.IsChromeReachable(c.Browser.CDPURL, 2*time.Second) {
			return checkResult{name: "Chrome", status: "ok", message: "remote debugging at " + browser.NormalizeCDPURL(c.Browser.CDPURL)}
		}
		return checkResult{name: "Chrome", status: "error", message: "no DevTools endpoint at " + browser.NormalizeCDPURL(c.Browser.CDPURL)}
	}

	exe, err := browser.FindChromeExecutable(c.Browser.ExecutablePath)
	if err != nil {
		return checkResult{name: "Chrome", status: "error", message: err.Error()}
	}
	if exe == nil {
		return checkResult{name: "Chrome", status: "warn", message: "no executable found, relying on chromedp's lookup"}
	}
	return checkResult{name: "Chrome", status: "ok", message: fmt.Sprintf("%s (%s)", exe.Path, exe.Kind)}
}

func checkService(ctx context.Context, c config.Config) checkResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st, err := textservice.RemoteStatus(ctx, c.ServiceURL())
	if err != nil {
		return checkResult{name: "Text Service", status: "warn", message: "not running at " + c.ServiceURL()}
	}
	msg := fmt.Sprintf("%s, %d relay(s) connected", c.ServiceURL(), st.Clients)
	if st.Latest != "" {
		msg += ", pending note " + st.Latest
	}
	return checkResult{name: "Text Service", status: "ok", message: msg}
}
