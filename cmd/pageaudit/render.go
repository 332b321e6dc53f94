package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/JakeFAU/public-page-audit/internal/app"
	"github.com/JakeFAU/public-page-audit/internal/audit"
)

func renderHarvest(w io.Writer, rep app.HarvestReport, colorize bool) {
	stats := rep.Result.Stats
	rows := [][]string{
		{"Run ID", rep.Result.RunID.String()},
		{"Listing pages", strconv.Itoa(stats.Pages)},
		{"Items fetched", strconv.Itoa(stats.Fetched)},
		{"In archived spaces (left out)", strconv.Itoa(stats.Archived)},
		{"Pages in report", strconv.Itoa(stats.Kept)},
		{fmt.Sprintf("Archive candidates (last modified %d or earlier)", rep.ThresholdYear), strconv.Itoa(stats.Candidates)},
	}
	if stats.Skipped > 0 {
		rows = append(rows, []string{"Invalid items skipped", paint(strconv.Itoa(stats.Skipped), text.FgYellow, colorize)})
	}
	if rep.ViewCounts {
		rows = append(rows, []string{"Ordered by", "view count"})
	}
	rows = append(rows,
		[]string{"Report", rep.Written.URI},
		[]string{"SHA-256", rep.Written.SHA256},
		[]string{"Duration", rep.Result.FinishedAt.Sub(rep.Result.StartedAt).Round(time.Millisecond).String()},
	)
	writeSection(w, "Harvest", colorize)
	fmt.Fprintln(w, renderTable([]string{"", ""}, rows, []columnAlignment{alignLeft, alignRight}))
}

func renderVerify(w io.Writer, rep app.VerifyReport, colorize bool) {
	summary := rep.Run.Summary
	writeSection(w, "Verification", colorize)
	fmt.Fprintln(w, renderTable([]string{"", ""}, [][]string{
		{"Run ID", rep.Run.ID.String()},
		{"Report", rep.ReportLocation},
		{"Pages in report", strconv.Itoa(rep.Loaded)},
		{"Pages checked", strconv.Itoa(summary.Total)},
		{"Passed", paint(strconv.Itoa(summary.Passed()), text.FgGreen, colorize && summary.Passed() > 0)},
		{"Failed", paint(strconv.Itoa(summary.Failed()), text.FgRed, colorize && summary.Failed() > 0)},
	}, []columnAlignment{alignLeft, alignRight}))

	outcomeRows := make([][]string, 0, len(audit.Outcomes))
	for _, outcome := range audit.Outcomes {
		outcomeRows = append(outcomeRows, []string{string(outcome), strconv.Itoa(summary.Counts[outcome])})
	}
	fmt.Fprintln(w, renderTable([]string{"Outcome", "Count"}, outcomeRows, []columnAlignment{alignLeft, alignRight}))

	if len(summary.Failures) == 0 {
		fmt.Fprintln(w, paint("All sampled pages are publicly reachable.", text.FgGreen, colorize))
		return
	}
	failureRows := make([][]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failureRows = append(failureRows, []string{f.Title, f.URL, statusText(f), f.Err})
	}
	writeSection(w, "Failed pages", colorize)
	fmt.Fprintln(w, renderTable([]string{"Title", "URL", "Status", "Reason"}, failureRows, nil))
}

// statusText renders the HTTP status of a result, or "-" when none was received.
func statusText(r audit.SampleResult) string {
	if r.StatusCode == nil {
		return "-"
	}
	return fmt.Sprintf("%d %s", *r.StatusCode, http.StatusText(*r.StatusCode))
}

func writeSection(w io.Writer, title string, colorize bool) {
	fmt.Fprintln(w, paint("== "+title+" ==", text.FgBlue, colorize))
}

func paint(s string, color text.Color, colorize bool) string {
	if !colorize {
		return s
	}
	return text.Colors{color}.Sprint(s)
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
