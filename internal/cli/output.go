package cli

import (
	"fmt"
	"io"
	"strings"

	"crate-tool/internal/app"
	"crate-tool/internal/types"
)

// printSummary writes one verdict line per crate, with the first line of
// the diagnostic for unhealthy ones.
func printSummary(w io.Writer, summary types.BatchSummary) {
	for _, verdict := range summary.Verdicts {
		label := verdict.Name
		if verdict.Version != "" {
			label = verdict.Name + "@" + verdict.Version
		}
		if verdict.Verdict == types.VerdictHealthy {
			fmt.Fprintf(w, "%s: healthy\n", label)
			continue
		}
		diagnostic, _, _ := strings.Cut(verdict.Diagnostic, "\n")
		fmt.Fprintf(w, "%s: UNHEALTHY: %s\n", label, diagnostic)
	}
}

func printReportBucket(w io.Writer, title string, entries []types.ReportEntry) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(entries))
	for _, entry := range entries {
		line := "  " + entry.Name + "@" + entry.Version
		if entry.Upgrade != "" {
			line += " -> " + entry.Upgrade
		}
		if entry.Diagnostic != "" {
			diagnostic, _, _ := strings.Cut(entry.Diagnostic, "\n")
			line += ": " + diagnostic
		}
		fmt.Fprintln(w, line)
	}
}

func printImportAnalysis(w io.Writer, analysis app.ImportAnalysis) {
	if analysis.Status != "" {
		fmt.Fprintln(w, analysis.Status)
		return
	}
	for _, version := range analysis.Versions {
		fmt.Fprintf(w, "%s@%s\n", analysis.Name, version.Version)
		for _, dep := range version.Deps {
			line := fmt.Sprintf("  %s %s: %s", dep.Name, dep.Requirement, dep.State)
			if dep.Denylisted {
				line += ", on the import denylist"
			}
			fmt.Fprintln(w, line)
			if dep.State == app.DepSatisfied {
				continue
			}
			for _, available := range dep.Available {
				verb := "satisfied"
				if !available.Satisfies {
					verb = "not satisfied"
				}
				fmt.Fprintf(w, "    %s by %s at %s\n", verb, available.Version, available.Path)
			}
		}
		if version.Problems {
			fmt.Fprintln(w, "  problems found")
		}
	}
}
