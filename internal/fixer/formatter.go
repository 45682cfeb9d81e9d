package fixer

import (
	"fmt"
	"strings"
)

const reportRule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"

// FormatReport formats a run report for user display.
func FormatReport(r *Report) string {
	var sb strings.Builder
	sb.Grow(1024 + len(r.Copied)*64)

	title := "BUNDLE REPORT"
	if r.DryRun {
		title = "BUNDLE REPORT (dry run)"
	}
	sb.WriteString("\n" + reportRule)
	sb.WriteString(title + "\n")
	sb.WriteString(reportRule + "\n")

	if len(r.Copied) > 0 {
		verb := "bundled"
		if r.DryRun {
			verb = "would be bundled"
		}
		sb.WriteString(fmt.Sprintf("[COPIED] %d libraries %s\n", len(r.Copied), verb))
		for _, name := range r.Copied {
			sb.WriteString(fmt.Sprintf("  %s\n", name))
		}
		sb.WriteString("\n")
	}

	if len(r.System) > 0 {
		sb.WriteString(fmt.Sprintf("[SYSTEM] %d libraries left to the OS\n", len(r.System)))
		for _, path := range r.System {
			sb.WriteString(fmt.Sprintf("  %s\n", path))
		}
		sb.WriteString("\n")
	}

	if len(r.Missing) > 0 {
		sb.WriteString("[MISSING] ⚠️\n")
		for _, path := range r.Missing {
			sb.WriteString(fmt.Sprintf("  %s\n", path))
		}
		sb.WriteString("    \n")
		sb.WriteString("    → Referenced libraries that do not exist; their references were left untouched\n\n")
	}

	if len(r.Unresolved) > 0 {
		sb.WriteString("[UNRESOLVED RPATH] ⚠️\n")
		for _, token := range r.Unresolved {
			sb.WriteString(fmt.Sprintf("  %s\n", token))
		}
		sb.WriteString("    \n")
		sb.WriteString("    → References whose owner records no rpath entries\n\n")
	}

	if len(r.Residual) > 0 {
		sb.WriteString("[RESIDUAL] ⚠️\n")
		for _, ref := range r.Residual {
			sb.WriteString(fmt.Sprintf("  %s\n", ref.Binary))
			sb.WriteString(fmt.Sprintf("    still references %s", ref.Token))
			if ref.Path != "" && ref.Path != ref.Token {
				sb.WriteString(fmt.Sprintf(" (%s)", ref.Path))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("    \n")
		sb.WriteString("    → References still pointing outside the bundle after the final pass\n\n")
	}

	sb.WriteString(reportRule)
	switch {
	case r.DryRun:
		sb.WriteString(fmt.Sprintf("SUMMARY: plan only, %d copies and %d rewrites pending\n",
			len(r.Copied), r.Mutations))
	case r.Converged && len(r.Residual) == 0:
		sb.WriteString(fmt.Sprintf("SUMMARY: bundle settled in %d passes ✓\n", r.Passes))
	case r.Converged:
		sb.WriteString(fmt.Sprintf("SUMMARY: bundle settled in %d passes, %d residual references remain\n",
			r.Passes, len(r.Residual)))
	default:
		sb.WriteString(fmt.Sprintf("SUMMARY: bundle did not settle within %d passes\n", r.Passes))
	}
	if r.Mutations > 0 && !r.DryRun {
		sb.WriteString(fmt.Sprintf("  %d references rewritten, %d libraries copied\n",
			r.Mutations, len(r.Copied)))
	}
	sb.WriteString(reportRule)

	return sb.String()
}
