package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sajjad-MoBe/lsmstore/internal/api"
	"github.com/sajjad-MoBe/lsmstore/internal/grpcPack"
	"github.com/sajjad-MoBe/lsmstore/internal/shared"
	"github.com/sajjad-MoBe/lsmstore/internal/storage"
)

var (
	nodeAddress    string
	grpcAddress    string
	dataDir        string
	flushThreshold int
	jaegerEndpoint string
	healthInterval time.Duration
)

var startNodeCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the KV store node",
	RunE:  runNode,
}

func init() {
	defaults := storage.DefaultConfig()

	startNodeCmd.Flags().StringVarP(&nodeAddress, "address", "a", ":8080", "Address for the HTTP API to listen on")
	startNodeCmd.Flags().StringVar(&grpcAddress, "grpc-address", ":9090", "Address for the gRPC health service, empty to disable")
	startNodeCmd.Flags().StringVarP(&dataDir, "dir", "d", defaults.Dir, "Store directory")
	startNodeCmd.Flags().IntVarP(&flushThreshold, "threshold", "t", defaults.MemTableFlushThreshold, "Number of keys at which the memtable is flushed")
	startNodeCmd.Flags().StringVar(&jaegerEndpoint, "jaeger-endpoint", "", "Jaeger collector endpoint, empty to disable tracing export")
	startNodeCmd.Flags().DurationVar(&healthInterval, "health-interval", 5*time.Second, "Interval between health status refreshes")
}

func runNode(cmd *cobra.Command, args []string) error {
	level, err := shared.ParseLogLevel(logLevel)
	if err != nil {
		return err
	}
	logger := shared.NewLogger(level)
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := storage.Open(storage.Config{
		Dir:                    dataDir,
		MemTableFlushThreshold: flushThreshold,
		Logger:                 logger,
		Metrics:                shared.NewStorageMetrics(registry),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("Error closing engine: %v", err)
		}
	}()

	tracer := api.NewNoopTracer()
	if jaegerEndpoint != "" {
		tracer, err = api.NewTracer("lsmstore", jaegerEndpoint)
		if err != nil {
			return err
		}
	}
	defer tracer.Shutdown(context.Background())

	apiServer := api.NewServer(engine, api.Options{
		Logger:   logger,
		Tracer:   tracer,
		Registry: registry,
	})
	httpServer := &http.Server{
		Addr:    nodeAddress,
		Handler: apiServer.Handler(),
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if grpcAddress != "" {
		lis, err := net.Listen("tcp", grpcAddress)
		if err != nil {
			return err
		}
		healthServer := grpcPack.NewServer(engine, logger)
		defer healthServer.Stop()
		go healthServer.Watch(ctx, healthInterval)
		go func() {
			logger.Info("Starting gRPC health service on %s", grpcAddress)
			if err := healthServer.Serve(lis); err != nil {
				logger.Error("gRPC server error: %v", err)
				cancel()
			}
		}()
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting server on %s (dir=%s, threshold=%d)", nodeAddress, dataDir, flushThreshold)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error: %v", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, initiating shutdown", sig)
	case <-ctx.Done():
		logger.Info("Shutting down due to error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	return nil
}
