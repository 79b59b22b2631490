package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/staffing-pipeline/internal/hours"
)

var (
	hoursWorker   string
	hoursJob      string
	hoursPeriod   string
	hoursStart    string
	hoursEnd      string
	hoursTimezone string
	hoursRate     float64
	hoursJSON     bool
)

var hoursCmd = &cobra.Command{
	Use:   "hours",
	Short: "Report completed work time",
}

var hoursReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize completed work of a worker or a job",
	Long: `Summarize completed time segments with daily and per-job breakdowns.

Select the segments with --worker and/or --job, and optionally restrict them
with --period (today, week, month, quarter, year) or --start/--end dates
(YYYY-MM-DD, inclusive) in --tz.`,
	RunE: runHoursReport,
}

var hoursLineItemsCmd = &cobra.Command{
	Use:   "line-items",
	Short: "List one billable line per completed segment of a worker",
	RunE:  runHoursLineItems,
}

func init() {
	for _, c := range []*cobra.Command{hoursReportCmd, hoursLineItemsCmd} {
		c.Flags().StringVar(&hoursWorker, "worker", "", "Worker (candidate) ID")
		c.Flags().StringVar(&hoursPeriod, "period", "", "Preset period: today, week, month, quarter or year")
		c.Flags().StringVar(&hoursStart, "start", "", "First day, YYYY-MM-DD")
		c.Flags().StringVar(&hoursEnd, "end", "", "Last day, YYYY-MM-DD")
		c.Flags().StringVar(&hoursTimezone, "tz", "UTC", "IANA time zone for days and periods")
		c.Flags().BoolVar(&hoursJSON, "json", false, "Print JSON instead of text")
		c.MarkFlagsMutuallyExclusive("period", "start")
		c.MarkFlagsMutuallyExclusive("period", "end")
	}
	hoursReportCmd.Flags().StringVar(&hoursJob, "job", "", "Job ID")
	hoursReportCmd.MarkFlagsOneRequired("worker", "job")
	hoursLineItemsCmd.Flags().Float64Var(&hoursRate, "rate", 0, "Hourly rate")
	_ = hoursLineItemsCmd.MarkFlagRequired("worker")

	hoursCmd.AddCommand(hoursReportCmd, hoursLineItemsCmd)
	rootCmd.AddCommand(hoursCmd)
}

func parseOptionalID(flag, value string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", flag, value, err)
	}
	return &id, nil
}

// periodFlags resolves --period or --start/--end; neither means all time
func periodFlags(loc *time.Location) (*hours.Period, error) {
	switch {
	case hoursPeriod != "":
		return hours.PeriodPreset(hoursPeriod, time.Now().In(loc))
	case hoursStart != "" || hoursEnd != "":
		return hours.DateRange(hoursStart, hoursEnd, loc)
	default:
		return nil, nil
	}
}

func hoursEngine(cmd *cobra.Command) (*hours.Engine, *hours.Period, func(), error) {
	loc, err := time.LoadLocation(hoursTimezone)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid --tz %q: %w", hoursTimezone, err)
	}
	period, err := periodFlags(loc)
	if err != nil {
		return nil, nil, nil, err
	}
	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return nil, nil, nil, err
	}
	return hours.NewEngine(store, loc), period, closeStore, nil
}

func runHoursReport(cmd *cobra.Command, _ []string) error {
	workerID, err := parseOptionalID("worker", hoursWorker)
	if err != nil {
		return err
	}
	jobID, err := parseOptionalID("job", hoursJob)
	if err != nil {
		return err
	}
	engine, period, closeStore, err := hoursEngine(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := engine.Report(cmd.Context(), hours.Query{WorkerID: workerID, JobID: jobID, Period: period})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if hoursJSON {
		return printJSON(out, report)
	}

	s := report.Summary
	fmt.Fprintf(out, "Total: %s (%s) over %d session(s) on %d job(s)\n",
		s.FormattedTime, s.FormattedHours, s.TotalSessions, s.TotalJobs)
	if len(report.Daily) > 0 {
		fmt.Fprintln(out, "Daily:")
		for _, d := range report.Daily {
			fmt.Fprintf(out, "  %s  %s  %d session(s)\n", d.Date, hours.FormatSeconds(d.Seconds), d.Sessions)
		}
	}
	if len(report.PerJob) > 0 {
		fmt.Fprintln(out, "Per job:")
		for _, j := range report.PerJob {
			fmt.Fprintf(out, "  %s  %s  %d session(s)\n", j.JobID, hours.FormatSeconds(j.Seconds), j.Sessions)
		}
	}
	return nil
}

func runHoursLineItems(cmd *cobra.Command, _ []string) error {
	workerID, err := uuid.Parse(hoursWorker)
	if err != nil {
		return fmt.Errorf("invalid --worker %q: %w", hoursWorker, err)
	}
	engine, period, closeStore, err := hoursEngine(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	items, err := engine.LineItems(cmd.Context(), workerID, period, hoursRate)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if hoursJSON {
		return printJSON(out, items)
	}

	var total float64
	for _, it := range items {
		fmt.Fprintf(out, "%s  %-40s %8.2f h x %.2f = %.2f\n", it.Date, it.Description, it.Hours, it.Rate, it.Amount)
		total += it.Amount
	}
	fmt.Fprintf(out, "%d line(s), total %.2f\n", len(items), total)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
