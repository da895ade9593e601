package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redlinelabs/clauselens/internal/feedback"
)

var learnWatch bool

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Run one learning pass over pending feedback",
	Long: `Run one learning pass: seal the open feedback batch, update rule
performance counters and base confidences, and publish a new weight
snapshot. Already-learned batches are skipped, so rerunning is safe.

With --watch the process stays up and repeats the pass on the configured
cron schedule until interrupted.

Examples:
  clauselens learn --config clauselens.yaml
  clauselens learn --config clauselens.yaml --watch`,
	RunE: runLearn,
}

func init() {
	learnCmd.Flags().BoolVar(&learnWatch, "watch", false, "keep running and learn on the configured schedule")
}

func runLearn(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	learner, err := a.newLearner()
	if err != nil {
		return err
	}

	report, err := learner.RunLearningPass(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if !learnWatch {
		return nil
	}
	return watchLearning(ctx, learner, a)
}

// watchLearning runs the scheduler until the process is interrupted.
func watchLearning(ctx context.Context, learner *feedback.Learner, a *app) error {
	sched, err := feedback.NewScheduler(learner, a.cfg.Learning.Schedule, a.logger)
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	a.logger.Info("watching for feedback",
		zap.String("schedule", a.cfg.Learning.Schedule),
	)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	return nil
}
