package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"StudyScanner/internal/app"
	"StudyScanner/internal/config"
	"StudyScanner/internal/domain"
	"StudyScanner/internal/logging"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	load := func() (*app.Application, error) {
		cfg := config.Load()
		if configFlag != "" {
			cfg = config.LoadFrom(configFlag)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return app.New(cfg, logging.New(cfg.Logging)), nil
	}

	rootCmd := &cobra.Command{
		Use:           "studyscanner",
		Short:         "Watch the study portal and announce new studies on Discord",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return application.Run(ctx)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (overrides STUDY_SCANNER_CONFIG)")

	rootCmd.AddCommand(newOnceCommand(load))
	rootCmd.AddCommand(newHistoryCommand(load))

	return rootCmd
}

func newOnceCommand(load func() (*app.Application, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single scan and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			report, err := application.RunOnce(ctx)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
}

func newHistoryCommand(load func() (*app.Application, error)) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := load()
			if err != nil {
				return err
			}
			runs, err := application.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func printReport(w io.Writer, r domain.RunReport) {
	if r.ID == "" {
		return
	}
	fmt.Fprintf(w, "run %s %s: scraped=%d added=%d announced=%d\n",
		r.ID, r.Status, r.Scraped, r.Added, r.Announced)
	if r.Err != nil {
		fmt.Fprintf(w, "  failed at %s: %v\n", r.FailedAt, r.Err)
	}
	if r.NotifyErr != nil {
		fmt.Fprintf(w, "  notification: %v\n", r.NotifyErr)
	}
}

func printRuns(w io.Writer, runs []domain.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Started", "Status", "Scraped", "Added", "Announced", "Duration", "Error"})
	for _, r := range runs {
		errText := r.Error
		if errText == "" && r.NotifyError != "" {
			errText = "notify: " + r.NotifyError
		}
		if errText == "" {
			errText = "-"
		}
		tw.AppendRow(table.Row{
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Status),
			r.Scraped,
			r.Added,
			r.Announced,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			errText,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	fmt.Fprintln(w, tw.Render())
}
