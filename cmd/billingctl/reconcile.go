package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storycraft/billing/internal/jobs/reconcile"
)

const (
	reconcileRunTimeout = 5 * time.Minute
	// scheduleFromConfig is the value of a bare --schedule flag.
	scheduleFromConfig = "config"
)

func reconcileCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Finish activations of paid orders whose subscription or projection write did not complete",
		Long: `Lists paid orders without an activation marker that are older than the
grace period and confirms each again. Every step of a confirmation is
idempotent, so the command is safe to run while the API is serving.

Examples:
  billingctl reconcile
  billingctl reconcile --schedule
  billingctl reconcile --schedule="@every 1m"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			job := reconcile.New(e.components.Orders, e.components.ActivationService, reconcile.Config{
				Grace:     e.cfg.Reconcile.Grace,
				BatchSize: e.cfg.Reconcile.BatchSize,
			}, e.log.Named("reconcile"))

			if !cmd.Flags().Changed("schedule") {
				report, err := job.Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d repaired=%d failed=%d\n", report.Scanned, report.Repaired, report.Failed)
				return nil
			}

			expr := schedule
			if expr == "" || expr == scheduleFromConfig {
				expr = e.cfg.Reconcile.Schedule
			}
			return runScheduled(cmd.Context(), expr, job, e.log)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "keep running on a cron expression; bare flag uses reconcile.schedule")
	cmd.Flags().Lookup("schedule").NoOptDefVal = scheduleFromConfig
	return cmd
}

func runScheduled(ctx context.Context, expr string, job *reconcile.Job, log *zap.Logger) error {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := scheduler.AddFunc(expr, func() {
		runCtx, cancel := context.WithTimeout(ctx, reconcileRunTimeout)
		defer cancel()
		if _, err := job.Run(runCtx); err != nil {
			log.Error("scheduled reconcile failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", expr, err)
	}

	scheduler.Start()
	log.Info("reconcile scheduler started", zap.String("schedule", expr))

	<-ctx.Done()
	stopped := scheduler.Stop()
	<-stopped.Done()
	log.Info("reconcile scheduler stopped")
	return nil
}
