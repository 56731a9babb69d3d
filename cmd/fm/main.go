package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	fabricmanager "github.com/cxlfabric/fabricmanager"
	"github.com/cxlfabric/fabricmanager/internal/constants"
	"github.com/cxlfabric/fabricmanager/internal/interfaces"
	"github.com/cxlfabric/fabricmanager/internal/logging"
)

var (
	logLevel    string
	metricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "fm <client_socket_path> <admin_socket_path> <replica_size_mib> <replica_path>...",
		Short: "fm runs the fabric manager",
		Long: "fm brokers replicated shared-memory channels between RPC clients and servers: " +
			"it listens on a client socket and an admin socket, replicating every channel across " +
			fmt.Sprintf("%d backing files.", constants.NumReplicas),
		Args:         cobra.ExactArgs(3 + constants.NumReplicas),
		SilenceUsage: true,
		RunE:         runFabricManager,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)")
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the fabric manager version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("fm (development build)")
			return nil
		},
	}
}

func runFabricManager(cmd *cobra.Command, args []string) error {
	clientSocketPath := args[0]
	adminSocketPath := args[1]

	sizeMiB, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid replica_size_mib %q: %w", args[2], err)
	}
	replicaPaths := args[3:]

	level, err := parseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(&logging.Config{Level: level, Output: os.Stderr})
	logging.SetDefault(logger)

	cfg := fabricmanager.DefaultConfig()
	cfg.ClientSocketPath = clientSocketPath
	cfg.AdminSocketPath = adminSocketPath
	cfg.ReplicaSize = sizeMiB * 1024 * 1024
	cfg.ReplicaPaths = replicaPaths
	cfg.Logger = logger

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		promObserver := fabricmanager.NewPrometheusObserver(reg)
		inProcess := fabricmanager.NewMetrics()
		cfg.Observer = fabricmanager.MultiObserver{Observers: []interfaces.Observer{promObserver, inProcess}}
		serveMetrics(metricsAddr, reg, logger)
	}

	mgr, err := fabricmanager.New(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting fabric manager",
		"client_socket", clientSocketPath,
		"admin_socket", adminSocketPath,
		"replica_size_bytes", cfg.ReplicaSize,
		"replicas", len(replicaPaths))
	fmt.Printf("fabric manager listening: client=%s admin=%s\n", clientSocketPath, adminSocketPath)
	fmt.Printf("Send SIGUSR1 (kill -USR1 %d) to dump goroutine stacks\n", os.Getpid())

	installStackDumpHandler(logger)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	runErr := mgr.Run(ctx)
	if runErr != nil {
		logger.Error("fabric manager exited with error", "error", runErr)
		return runErr
	}
	logger.Info("fabric manager stopped cleanly")
	return nil
}

// serveMetrics starts a best-effort background HTTP server exposing reg's
// collectors at /metrics. It never blocks startup and only logs if the
// listener itself fails to bind.
func serveMetrics(addr string, reg *prometheus.Registry, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("serving prometheus metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}

func parseLevel(s string) (logging.LogLevel, error) {
	switch s {
	case "debug":
		return logging.LevelDebug, nil
	case "info":
		return logging.LevelInfo, nil
	case "warn":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown --log-level %q", s)
	}
}

// installStackDumpHandler registers a SIGUSR1 handler that writes every
// goroutine's stack to stderr and to a timestamped file, for diagnosing a
// fabric manager that appears stuck.
func installStackDumpHandler(logger *logging.Logger) {
	stackCh := make(chan os.Signal, 1)
	signal.Notify(stackCh, syscall.SIGUSR1)
	go func() {
		for range stackCh {
			buf := make([]byte, 1024*1024)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n=== END ===\n\n", buf[:n])

			filename := fmt.Sprintf("fm-stacks-%d.txt", time.Now().Unix())
			if f, err := os.Create(filename); err == nil {
				fmt.Fprintf(f, "Goroutine stack dump at %s (pid %d)\n\n", time.Now().Format(time.RFC3339), os.Getpid())
				f.Write(buf[:n])
				fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
				pprof.Lookup("goroutine").WriteTo(f, 2)
				f.Close()
				logger.Info("stack trace written to file", "file", filename)
			}
		}
	}()
}
