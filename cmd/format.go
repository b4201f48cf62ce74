package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/scorer"
)

func formatLeads(out io.Writer, leads []model.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tNAME\tPHONE\tWEBSITE\tEMAIL\tAUTOMATION")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----\t-------\t-----\t----------")

	for _, l := range leads {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			optInt(l.ProbabilityScore),
			truncate(l.Name, 30),
			l.Phone,
			truncate(l.Domain, 30),
			optString(l.Email),
			automationLabel(l),
		)
	}
	_ = w.Flush()
}

func formatSearches(out io.Writer, searches []model.SearchRequest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLOCATION\tINDUSTRY\tSTATUS\tPROGRESS\tRESULTS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t--------\t------\t--------\t-------\t-------")

	for _, s := range searches {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%d\t%s\n",
			truncateID(s.ID),
			truncate(s.Location, 30),
			s.Industry,
			s.Status,
			s.Progress,
			s.ResultCount,
			s.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatStatus(out io.Writer, v *model.StatusView) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Search:\t%s\n", v.SearchID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", v.Status)
	_, _ = fmt.Fprintf(w, "Progress:\t%d%%\n", v.Progress)
	_, _ = fmt.Fprintf(w, "Results:\t%d\n", v.ResultCount)
	if v.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", v.Error)
	}
	_ = w.Flush()
}

func formatBreakdown(out io.Writer, l model.Lead, b scorer.Breakdown) {
	_, _ = fmt.Fprintf(out, "%s (%d/%d)\n", l.Name, b.Total, scorer.MaxScore)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, f := range b.Factors {
		mark := " "
		if f.Met {
			mark = "x"
		}
		_, _ = fmt.Fprintf(w, "  [%s]\t%s\t%d/%d\n", mark, f.Label, f.Points, f.Max)
	}
	_ = w.Flush()
}

func automationLabel(l model.Lead) string {
	if !l.AutomationDetected {
		return "none"
	}
	if len(l.AutomationTools) == 0 {
		return "yes"
	}
	return strings.Join(l.AutomationTools, ", ")
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func optString(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
