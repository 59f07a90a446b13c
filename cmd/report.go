package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"asc-manager/core/appstore"
	"asc-manager/core/reconcile"
	"asc-manager/feature/history"
	"asc-manager/feature/subscriptions"

	"github.com/fatih/color"
	"github.com/samber/lo"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// maxListed caps the rows printed per section.
const maxListed = 25

var kindOrder = []reconcile.Kind{
	reconcile.KindSubscription,
	reconcile.KindPeriod,
	reconcile.KindAvailability,
	reconcile.KindPrice,
	reconcile.KindOffer,
}

func printPlan(w io.Writer, plan *reconcile.Plan) {
	s := plan.Summary()
	fmt.Fprintln(w, bold("Plan"))
	for _, kind := range kindOrder {
		if n := s.Writes[kind]; n > 0 {
			fmt.Fprintf(w, "  %-13s %s\n", kind, cyan(fmt.Sprintf("%d writes", n)))
		}
	}
	fmt.Fprintf(w, "  %-13s %d\n", "unchanged", s.Unchanged)
	if s.Skipped > 0 {
		fmt.Fprintf(w, "  %-13s %s\n", "skipped", yellow(s.Skipped))
	}
	if s.Cancelled > 0 {
		fmt.Fprintf(w, "  %-13s %d\n", "cancelled", s.Cancelled)
	}
	if s.Failed > 0 {
		fmt.Fprintf(w, "  %-13s %s\n", "failed", red(s.Failed))
		failed := lo.Filter(plan.Decided(), func(r reconcile.OperationResult, _ int) bool {
			return r.Outcome == reconcile.OutcomeFailed
		})
		printResults(w, failed)
	}
}

func printResults(w io.Writer, results []reconcile.OperationResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, r := range results {
		if i == maxListed {
			fmt.Fprintf(tw, "    %s\n", gray(fmt.Sprintf("... %d more", len(results)-maxListed)))
			break
		}
		fmt.Fprintf(tw, "    %s\t%s\t%s\t%s\n", r.Kind, r.Target, r.Code, r.Detail)
	}
	_ = tw.Flush()
}

func printReport(w io.Writer, report *reconcile.Report) {
	s := report.Summary
	title := "Report"
	if report.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(w, "\n%s %s\n", bold(title), gray(report.RunID))
	fmt.Fprintf(w, "  succeeded %s  unchanged %d  planned %s  skipped %s  failed %s  cancelled %d\n",
		green(s.Succeeded), s.Unchanged, cyan(s.Planned), yellow(s.Skipped), red(s.Failed), s.Cancelled)
	if !report.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  %s\n", gray("took "+report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String()))
	}

	if skipped := report.ByOutcome(reconcile.OutcomeSkipped); len(skipped) > 0 {
		fmt.Fprintln(w, yellow("\nSkipped"))
		printResults(w, skipped)
	}

	if !report.HasFailures() {
		return
	}
	byClass := report.FailuresByClass()
	classes := lo.Keys(byClass)
	slices.Sort(classes)
	for _, class := range classes {
		failures := lo.Filter(report.Failures(), func(r reconcile.OperationResult, _ int) bool { return r.Class == class })
		fmt.Fprintf(w, "\n%s %s\n", red(fmt.Sprintf("Failed: %s", class)), gray(fmt.Sprintf("(%d)", byClass[class])))
		printResults(w, failures)
	}
}

func printReadiness(w io.Writer, results []subscriptions.Readiness) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, bold("PRODUCT\tSTATE\tPERIOD\tLOCALIZATIONS\tPRICES\tTERRITORIES\tSTATUS"))
	for _, r := range results {
		if !r.Found {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%s\n", r.ProductID, red("not found"))
			continue
		}
		status := green("ready")
		if !r.Ready() {
			status = yellow("missing " + strings.Join(r.Missing, ", "))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ProductID, r.State, lo.Ternary(r.Period == "", "-", string(r.Period)),
			r.Localizations, r.Prices, r.Territories, status)
	}
	_ = tw.Flush()
}

func printOffers(w io.Writer, offers []appstore.IntroductoryOffer) {
	if len(offers) == 0 {
		fmt.Fprintln(w, gray("No introductory offers."))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, bold("ID\tTERRITORY\tMODE\tDURATION\tPERIODS\tSTART\tEND"))
	for _, o := range offers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n", o.ID, o.Territory, o.Mode, o.Duration, o.NumberOfPeriods,
			lo.Ternary(o.StartDate == "", "open", o.StartDate), lo.Ternary(o.EndDate == "", "open", o.EndDate))
	}
	_ = tw.Flush()
}

func printRuns(w io.Writer, runs []history.RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, bold("RUN\tSTARTED\tDRY RUN\tSUCCEEDED\tFAILED\tSKIPPED\tPLANNED"))
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\t%d\t%d\n", r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.DryRun,
			r.Succeeded, lo.Ternary(r.Failed > 0, red(r.Failed), fmt.Sprint(r.Failed)), r.Skipped, r.Planned)
	}
	_ = tw.Flush()
}

func printArchive(w io.Writer, entries []history.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, bold("RUN\tSTORED\tSIZE"))
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", e.RunID, e.LastModified.Format("2006-01-02 15:04:05"), e.Size)
	}
	_ = tw.Flush()
}
