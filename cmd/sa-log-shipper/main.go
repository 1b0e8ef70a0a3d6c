package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/szibis/sa-log-shipper/internal/buffer"
	"github.com/szibis/sa-log-shipper/internal/config"
	"github.com/szibis/sa-log-shipper/internal/exporter"
	"github.com/szibis/sa-log-shipper/internal/health"
	"github.com/szibis/sa-log-shipper/internal/ingest"
	"github.com/szibis/sa-log-shipper/internal/logging"
	"github.com/szibis/sa-log-shipper/internal/receiver"
	"github.com/szibis/sa-log-shipper/internal/stats"
	"github.com/szibis/sa-log-shipper/internal/telemetry"
)

const receiverShutdownTimeout = 10 * time.Second

func main() {
	cfg := config.ParseFlags()

	if cfg.ShowHelp {
		config.PrintUsage()
		os.Exit(0)
	}
	if cfg.ShowVersion {
		config.PrintVersion()
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		logging.Fatal("sa-log-shipper failed", logging.F("error", err.Error()))
	}
}

func run(cfg *config.Config) error {
	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.SetLevel(level)
	hostname, _ := os.Hostname()
	logging.SetResource(map[string]string{
		"service.name":    "sa-log-shipper",
		"service.version": config.Version(),
		"host.name":       hostname,
	})

	if cfg.MemoryLimitRatio > 0 {
		limit, err := memlimit.SetGoMemLimitWithOpts(
			memlimit.WithRatio(cfg.MemoryLimitRatio),
			memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
		)
		if err != nil {
			logging.Warn("memory limit not set", logging.F("error", err.Error()))
		} else {
			logging.Info("memory limit set", logging.F("limit_bytes", limit, "ratio", cfg.MemoryLimitRatio))
		}
	}

	// Load every certificate before anything starts listening.
	clientCfg, err := cfg.HTTPClientConfig()
	if err != nil {
		return err
	}
	httpCfg, err := cfg.HTTPReceiverConfig()
	if err != nil {
		return err
	}
	beatsCfg, err := cfg.BeatsReceiverConfig()
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM start a graceful shutdown; a second signal aborts the
	// final flush.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	tel, err := telemetry.Init(sigCtx, cfg.TelemetryConfig(), "sa-log-shipper", config.Version())
	if err != nil {
		return err
	}
	if hook := tel.NewLogHook(); hook != nil {
		logging.SetHook(hook)
	}

	tracker := stats.NewTracker()
	sender := exporter.NewHTTPSender(clientCfg)
	exp := exporter.New(cfg.ExporterConfig(), sender, tracker)

	buf, err := buffer.New(cfg.BufferConfig(), exp)
	if err != nil {
		return err
	}

	pipeline := ingest.New(cfg.IngestConfig(), buf, tracker)
	if cfg.SourceStatus {
		tracker.SetStatusProvider(pipeline)
	}

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go buf.Start(schedCtx)

	reportCtx, stopReporter := context.WithCancel(context.Background())
	defer stopReporter()
	go tracker.StartPeriodicReporting(reportCtx, cfg.StatsInterval)

	checker := health.New()
	checker.RegisterReadiness("buffer", health.ClosedCheck(buf.Closed))
	checker.RegisterReadiness("endpoints", health.EndpointCheck(buf.EndpointAvailability))

	var (
		httpReceiver  *receiver.HTTPReceiver
		beatsReceiver *receiver.BeatsReceiver
	)
	recvCtx, stopReceivers := context.WithCancel(context.Background())
	defer stopReceivers()

	g, gctx := errgroup.WithContext(sigCtx)

	if cfg.HTTPListenAddr != "" {
		httpReceiver = receiver.NewHTTP(httpCfg, pipeline)
		g.Go(func() error {
			if err := httpReceiver.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http receiver: %w", err)
			}
			return nil
		})
	}
	if cfg.BeatsListenAddr != "" {
		beatsReceiver = receiver.NewBeats(beatsCfg, pipeline)
		g.Go(func() error {
			if err := beatsReceiver.Start(recvCtx); err != nil {
				return fmt.Errorf("beats receiver: %w", err)
			}
			return nil
		})
	}

	statsMux := http.NewServeMux()
	statsMux.Handle("/metrics", promhttp.Handler())
	checker.Register(statsMux)
	statsServer := &http.Server{
		Addr:              cfg.StatsAddr,
		Handler:           statsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logging.Info("stats endpoint started", logging.F("addr", cfg.StatsAddr, "paths", "/metrics,/live,/ready"))
		if err := statsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stats server: %w", err)
		}
		return nil
	})

	logging.Info("sa-log-shipper started", logging.F(
		"version", config.Version(),
		"endpoints", len(cfg.Endpoints),
		"shards", len(buf.Shards()),
		"http_addr", cfg.HTTPListenAddr,
		"beats_addr", cfg.BeatsListenAddr,
		"stats_addr", cfg.StatsAddr,
		"telemetry_enabled", tel.Enabled(),
	))

	// A listener failing to start ends the group context as well.
	<-gctx.Done()
	logging.Info("shutting down")
	checker.SetShuttingDown()
	stopSignals()

	// Receivers first, so nothing new enters the buffer.
	recvShutdownCtx, cancelRecv := context.WithTimeout(context.Background(), receiverShutdownTimeout)
	if httpReceiver != nil {
		if err := httpReceiver.Stop(recvShutdownCtx); err != nil {
			logging.Warn("http receiver shutdown", logging.F("error", err.Error()))
		}
	}
	if beatsReceiver != nil {
		if err := beatsReceiver.Stop(); err != nil {
			logging.Warn("beats receiver shutdown", logging.F("error", err.Error()))
		}
	}
	cancelRecv()
	stopReceivers()

	stopScheduler()
	buf.Wait()

	closeCtx, stopClose := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if err := buf.Close(closeCtx); err != nil {
		logging.Error("final flush aborted", logging.F("error", err.Error(), "records_dropped", buf.Len()))
	}
	stopClose()
	_ = sender.Close()

	stopReporter()
	tracker.Report()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), tel.ShutdownTimeout())
	defer cancelShutdown()
	_ = statsServer.Shutdown(shutdownCtx)
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logging.Warn("telemetry shutdown", logging.F("error", err.Error()))
	}

	err = g.Wait()
	logging.Info("shutdown complete")
	return err
}
