package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"artifact-compiler/internal/compiler/report"
	"artifact-compiler/internal/models"
)

func newReportsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List and resolve failure reports in the configured sink",
	}
	cmd.AddCommand(newReportsListCmd(root), newReportsResolveCmd(root))
	return cmd
}

func openReporter(cmd *cobra.Command, root *rootOptions) (*report.Reporter, func(), error) {
	cfg, err := root.load()
	if err != nil {
		return nil, nil, err
	}
	sink, closer, err := report.OpenSink(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return report.NewReporter(sink, nil, root.logger()), func() { closer.Close() }, nil
}

func newReportsListCmd(root *rootOptions) *cobra.Command {
	var filter report.ListFilter
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List failure reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reporter, done, err := openReporter(cmd, root)
			if err != nil {
				return err
			}
			defer done()

			filter.Status = models.ReportStatus(status)
			reports, err := reporter.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPHASE\tKIND\tACTION\tBLOCKING\tSTATUS\tCREATED")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
					r.ID, r.Phase, r.ErrorKind, r.RecoveryAction, r.Blocking, r.Status,
					r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (open, resolved)")
	cmd.Flags().StringVar(&filter.Phase, "phase", "", "filter by phase")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of reports")
	return cmd
}

func newReportsResolveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id> <resolution>...",
		Short: "Record the operator resolution of an open report",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reporter, done, err := openReporter(cmd, root)
			if err != nil {
				return err
			}
			defer done()

			rep, err := reporter.Resolve(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %s at %s\n", rep.ID, rep.ResolvedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
