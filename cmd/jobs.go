package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-amazonpay/app/service"
	"github.com/vibast-solutions/ms-go-amazonpay/config"
)

var (
	workerMode bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Fire due poll jobs for charges and charge permissions",
	Long:  "Fire due poll jobs from the shared Redis queue. Without REDIS_ADDR the jobs live inside serve, which fires them itself.",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"poll",
			func(cfg *config.Config) time.Duration { return cfg.Polling.WorkerInterval },
			runPollBatch,
		)
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runPollBatch(s *service.GatewayService, ctx context.Context) error {
	fired, err := s.RunPollBatch(ctx)
	if fired > 0 {
		logrus.WithField("job", "poll").WithField("fired", fired).Debug("Poll batch fired")
	}
	return err
}

// requireSharedQueue rejects a standalone poller whose queue no other process can fill.
func requireSharedQueue(gw *gateway) error {
	if gw.inProcessPoll {
		return errors.New("REDIS_ADDR is required to poll outside serve, in-memory jobs are fired by serve")
	}
	return nil
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.GatewayService, ctx context.Context) error,
) {
	gw := mustCreateGatewayService()
	defer gw.cleanup()

	if err := requireSharedQueue(gw); err != nil {
		gw.cleanup()
		logrus.WithError(err).WithField("job", name).Fatal("Refusing to start")
	}

	if workerMode {
		runWorker(name, intervalResolver(gw.cfg), gw.service, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(gw.service, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	gatewayService *service.GatewayService,
	fn func(s *service.GatewayService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logrus.WithField("job", name).Info("Worker shutdown requested")
		cancel()
	}()

	workerLoop(ctx, name, interval, func(ctx context.Context) error { return fn(gatewayService, ctx) })
}

// workerLoop runs fn once, then on every tick until ctx is done.
func workerLoop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runJob(name, func() error { return fn(ctx) })
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
