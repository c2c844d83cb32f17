package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
	"github.com/joweeba/dTOOL/internal/services"
)

// HealthCmd analyzes a role's crash history and prints a health report
type HealthCmd struct {
	Role  string `default:"worker" help:"Role to analyze"`
	Hours int    `default:"24" help:"Analysis window in hours"`
	JSON  bool   `help:"Emit the report as JSON"`
	Quiet bool   `help:"Print nothing when healthy, one line otherwise"`
}

// Run prints the report and exits 0 (healthy), 1 (warning) or 2 (critical)
func (h *HealthCmd) Run(cli *CLI) error {
	role, err := domain.ParseRole(h.Role)
	if err != nil {
		return err
	}

	var store ports.IterationStore
	if s, err := cli.Container.OpenStore(); err != nil {
		logging.Logger.Warn("History store unavailable", "error", err)
	} else {
		store = s
	}

	checker := services.NewHealthChecker(cli.Container.Settings, cli.Container.Git, store)
	report, err := checker.Check(context.Background(), role, time.Duration(h.Hours)*time.Hour)
	if err != nil {
		return err
	}

	switch {
	case h.JSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(data))
	case h.Quiet:
		if report.Status != domain.HealthOK {
			fmt.Println(statusLine(report, h.Hours))
		}
	default:
		fmt.Print(formatReport(report, h.Hours))
	}

	code := 0
	switch report.Status {
	case domain.HealthWarning:
		code = 1
	case domain.HealthCritical:
		code = 2
	}
	if code != 0 {
		cli.Close()
		os.Exit(code)
	}
	return nil
}

func statusLine(report domain.HealthReport, hours int) string {
	label := map[domain.HealthStatus]string{
		domain.HealthOK:       "[OK]",
		domain.HealthWarning:  "[WARN]",
		domain.HealthCritical: "[CRITICAL]",
	}[report.Status]
	return fmt.Sprintf("%s %s: %d successful, %d crashes over last %dh (%.1f%% failure rate)",
		label, report.Role, report.Iterations, report.Crashes, hours, report.FailureRate*100)
}

func formatReport(report domain.HealthReport, hours int) string {
	var b strings.Builder
	fmt.Fprintln(&b, statusLine(report, hours))

	if len(report.Patterns) > 0 {
		fmt.Fprintln(&b, "  Crash patterns:")
		patterns := make([]string, 0, len(report.Patterns))
		for p := range report.Patterns {
			patterns = append(patterns, string(p))
		}
		sort.Strings(patterns)
		for _, p := range patterns {
			fmt.Fprintf(&b, "    %s: %d\n", p, report.Patterns[domain.CrashPattern(p)])
		}
	}
	if len(report.Recent) > 0 {
		fmt.Fprintln(&b, "  Recent crashes:")
		for _, rec := range report.Recent {
			fmt.Fprintf(&b, "    %s\n", rec.Line())
		}
	}
	fmt.Fprintf(&b, "  %s\n", recommendation(report.Status))
	return b.String()
}

func recommendation(status domain.HealthStatus) string {
	switch status {
	case domain.HealthCritical:
		return "ESCALATE: stop the loop and investigate before restarting."
	case domain.HealthWarning:
		return "Monitor the next few iterations before intervening."
	}
	return "System operating normally."
}
