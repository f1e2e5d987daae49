package main

import (
	"fmt"
	"io"
	"sort"

	"gritsync/internal/progress"
	"gritsync/internal/session"
)

func mark(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

func writeView(w io.Writer, v session.View) {
	p := v.Progress
	fmt.Fprintf(w, "Application %s (%s)\n", v.ApplicationID, p.AppType)
	fmt.Fprintf(w, "Status:   %s\n", v.Status)
	fmt.Fprintf(w, "Progress: %d%% (%d/%d)\n\n", p.Percentage, p.CompletedItems, p.TotalItems)

	for i, m := range p.Steps {
		suffix := ""
		if m.Explicit {
			suffix = " (marked complete)"
		}
		fmt.Fprintf(w, "%2d. %s %s%s\n", i+1, mark(m.Completed), m.Title, suffix)
		for _, sub := range m.SubSteps {
			fmt.Fprintf(w, "      %s %s\n", mark(sub.Completed), sub.Title)
		}
	}

	var failed []string
	for c, r := range v.Resources {
		if r.Phase == session.PhaseError {
			failed = append(failed, fmt.Sprintf("%s: %s", c, r.Error))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		fmt.Fprintln(w, "\nUnavailable:")
		for _, f := range failed {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}

func writeRegistry(w io.Writer, reg *progress.Registry) {
	total := 0
	for _, m := range reg.Steps {
		total += 1 + len(m.SubSteps)
	}
	fmt.Fprintf(w, "%s registry: %d main steps, %d items\n\n", reg.AppType, len(reg.Steps), total)
	for i, m := range reg.Steps {
		fmt.Fprintf(w, "%2d. %-28s %s\n", i+1, m.Key, m.Title)
		for _, sub := range m.SubSteps {
			fmt.Fprintf(w, "      %-26s %s\n", sub.Key, sub.Title)
		}
	}
}
