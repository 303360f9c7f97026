package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/allocation-engine/internal/config"
	"github.com/signalsfoundry/allocation-engine/internal/engine"
	"github.com/signalsfoundry/allocation-engine/internal/logging"
	"github.com/signalsfoundry/allocation-engine/internal/nbi"
	"github.com/signalsfoundry/allocation-engine/internal/observability"
	"github.com/signalsfoundry/allocation-engine/kb"
	"github.com/signalsfoundry/allocation-engine/timectrl"
)

func main() {
	cfgPath := flag.String("config", "", "Path to a YAML configuration file")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the gRPC server listens on (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	inventoryPath := flag.String("inventory", "", "Inventory document to load at startup (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "allocation-server: %v\n", err)
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	if *inventoryPath != "" {
		cfg.Inventory.Path = *inventoryPath
	}

	log, closeLog, err := logging.Open(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "allocation-server: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "allocation-server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves AllocationService on lis until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingConfig(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	rpcMetrics, err := observability.NewNBICollector(reg)
	if err != nil {
		return fmt.Errorf("init rpc metrics: %w", err)
	}
	engineMetrics, err := observability.NewEngineCollector(reg)
	if err != nil {
		return fmt.Errorf("init engine metrics: %w", err)
	}

	inv := kb.NewKnowledgeBase()
	if err := loadInventory(ctx, inv, cfg.Inventory.Path, log); err != nil {
		return err
	}
	refreshCounts := func(kb.Event) {
		snap := inv.Snapshot()
		rpcMetrics.SetInventoryCounts(len(snap.Sites), len(snap.Satellites), len(snap.Opportunities))
	}
	refreshCounts(kb.Event{})
	defer inv.Subscribe(refreshCounts)()

	eng, err := engine.NewService(inv, cfg.EngineOptions(timectrl.SystemClock{}), log, engineMetrics)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	if _, err := eng.BatchValidate(ctx); err != nil {
		log.Warn(ctx, "initial batch validation failed", logging.Err(err))
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	ticker := timectrl.NewTicker(cfg.Server.SweepInterval, timectrl.SystemClock{})
	ticker.AddListener(func(ctx context.Context, _ time.Time) {
		_, _ = eng.Sweep(ctx)
	})
	sweepDone := ticker.Start(sweepCtx)

	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, rpcMetrics, log)

	server := nbi.NewGRPCServer(nbi.NewAllocationService(eng, log), log, rpcMetrics)
	serveErr := make(chan error, 1)
	log.Info(ctx, "starting allocation gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.Duration("sweep_interval", cfg.Server.SweepInterval),
	)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = fmt.Errorf("grpc server: %w", err)
		}
	}

	log.Info(context.Background(), "shutting down allocation server")
	stopSweep()
	gracefulStop(server, cfg.Server.ShutdownTimeout)
	<-sweepDone

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func loadInventory(ctx context.Context, inv *kb.KnowledgeBase, path string, log logging.Logger) error {
	if path == "" {
		log.Warn(ctx, "no inventory configured; report RPCs will see an empty inventory")
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open inventory: %w", err)
	}
	defer f.Close()

	summary, err := kb.LoadInventory(inv, f)
	if err != nil {
		return fmt.Errorf("load inventory %s: %w", path, err)
	}
	log.Info(ctx, "loaded inventory",
		logging.String("path", path),
		logging.Int("sites", summary.Sites),
		logging.Int("satellites", summary.Satellites),
		logging.Int("opportunities", summary.Opportunities),
	)
	return nil
}

// gracefulStop drains in-flight RPCs, forcing a stop once timeout elapses.
func gracefulStop(server *grpc.Server, timeout time.Duration) {
	if timeout <= 0 {
		server.GracefulStop()
		return
	}
	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		server.Stop()
		<-done
	}
}

func serveMetrics(addr string, collector *observability.NBICollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
