package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ironsheep/carvision-mcp/internal/config"
	"github.com/ironsheep/carvision-mcp/internal/feed"
	"github.com/ironsheep/carvision-mcp/internal/history"
	"github.com/ironsheep/carvision-mcp/internal/logging"
	"github.com/ironsheep/carvision-mcp/internal/metrics"
	"github.com/ironsheep/carvision-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	envFile := ""
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version", "-v", "version":
			fmt.Printf("carvision-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "--env-file":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--env-file needs a path")
				os.Exit(2)
			}
			i++
			envFile = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown argument %q (see --help)\n", args[i])
			os.Exit(2)
		}
	}

	if err := run(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "carvision-mcp: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("carvision-mcp - MCP server for simulated car-part detection")
	fmt.Println()
	fmt.Println("Usage: carvision-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --env-file PATH  Load environment variables from PATH")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables (a .env file in the working directory is read too):")
	fmt.Printf("  %-32s debug, info, warn, error (default info)\n", config.EnvLogLevel)
	fmt.Printf("  %-32s json or console (default json)\n", config.EnvLogFormat)
	fmt.Printf("  %-32s listen address for /ws, /metrics, /healthz (default off)\n", config.EnvFeedAddr)
	fmt.Printf("  %-32s results kept in history (default %d)\n", config.EnvHistoryLimit, history.DefaultLimit)
	fmt.Printf("  %-32s initial threshold 0-1 (default 0.7)\n", config.EnvConfidenceThreshold)
	fmt.Printf("  %-32s initial real-time mode (default true)\n", config.EnvRealTimeMode)
	fmt.Printf("  %-32s initial auto-save (default false)\n", config.EnvAutoSave)
	fmt.Printf("  %-32s where saved images go (default .)\n", config.EnvOutputDir)
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	// stdout is for MCP protocol; logs go to stderr
	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Fields: map[string]string{"service": server.ServerName},
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := metrics.NewRecorder()

	store, err := history.NewStore(cfg.HistoryLimit, cfg.Settings)
	if err != nil {
		return err
	}
	recorder.SetHistorySize(store.Len())

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithRecorder(recorder),
		server.WithStore(store),
		server.WithOutputDir(cfg.OutputDir),
	}

	if cfg.FeedAddr != "" {
		hub := feed.NewHub(logger.With(zap.String("component", "feed")), recorder)
		feedSrv := feed.NewServer(cfg.FeedAddr, hub, recorder.Registry(), logger)
		if err := feedSrv.Start(ctx); err != nil {
			return err
		}
		opts = append(opts, server.WithHub(hub))
	}

	srv, err := server.New(opts...)
	if err != nil {
		return err
	}

	err = srv.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("shutting down")
		return nil
	}
	return err
}
