// Package main is the entry point for the agentq background task queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sevir/agentq/internal/agent"
	"github.com/sevir/agentq/internal/config"
	"github.com/sevir/agentq/internal/notify"
	"github.com/sevir/agentq/internal/queue"
	"github.com/sevir/agentq/internal/server"
	"github.com/sevir/agentq/internal/settings"
	"github.com/sevir/agentq/internal/store"
	"github.com/sevir/agentq/pkg/models"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

var (
	flagConfig   string
	flagServer   string
	flagLogLevel string
	flagJSON     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agentq",
		Short: "Run coding-agent prompts from a persistent background queue",
		Long: `agentq keeps a persistent queue of prompts and runs each one in its own
interactive coding-agent session, a bounded number at a time. Run "agentq serve"
to start the queue, then manage it with the other commands.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default ~/.agentq/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(clientCommands()...)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(flagConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg, nil
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "agentq",
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func serveCmd() *cobra.Command {
	var (
		host          string
		port          int
		storePath     string
		maxConcurrent int
		shell         string
		settingsPath  string
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Override with flags
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if storePath != "" {
				cfg.Queue.StorePath = config.ResolvePath(storePath)
			}
			if maxConcurrent != 0 {
				cfg.Queue.DefaultMaxConcurrent = maxConcurrent
			}
			if shell != "" {
				cfg.Queue.Shell = shell
			}
			if settingsPath != "" {
				cfg.Settings.Path = config.ResolvePath(settingsPath)
			}
			if cmd.Flags().Changed("task-timeout") {
				cfg.Queue.TaskTimeout = models.Duration(timeout)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return serve(cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host (default: 127.0.0.1)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port (default: 8766)")
	cmd.Flags().StringVar(&storePath, "store", "", "Path to the queue document")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Concurrency limit for a new queue (1-5)")
	cmd.Flags().StringVar(&shell, "shell", "", "Shell started for each task (default: $SHELL)")
	cmd.Flags().StringVar(&settingsPath, "settings", "", "Path to the settings document naming the CLI binary")
	cmd.Flags().DurationVar(&timeout, "task-timeout", 0, "Fail tasks running longer than this (0 disables)")

	return cmd
}

func serve(cfg *config.Config) error {
	logger := newLogger(cfg.Log.Level)

	fileStore, err := store.NewFileStore(cfg.Queue.StorePath,
		store.WithLogger(logger.WithPrefix("store")),
		store.WithDefaultMaxConcurrent(cfg.Queue.DefaultMaxConcurrent),
	)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	hub := notify.NewHub(256)
	ctrl, err := queue.New(queue.Config{
		Store:         fileStore,
		Spawner:       &agent.PTYSpawner{Shell: cfg.Queue.Shell},
		Settings:      settings.NewFile(cfg.Settings.Path, cfg.Settings.DefaultCLI),
		Sink:          hub,
		Logger:        logger.WithPrefix("queue"),
		Cols:          uint16(cfg.Queue.Cols),
		Rows:          uint16(cfg.Queue.Rows),
		SettleDelay:   time.Duration(cfg.Queue.SettleDelay),
		PromptDelay:   time.Duration(cfg.Queue.PromptDelay),
		ReadyMarker:   cfg.Queue.ReadyMarker,
		TaskTimeout:   time.Duration(cfg.Queue.TaskTimeout),
		FlushInterval: time.Duration(cfg.Queue.FlushInterval),
	})
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}

	srv := server.New(server.Config{
		Addr:    cfg.Address(),
		Queue:   ctrl,
		Hub:     hub,
		Version: version,
		Commit:  commit,
		Logger:  logger.WithPrefix("http"),
	})

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "err", err)
		}
	}()

	st := ctrl.Status()
	logger.Info("agentq starting", "version", version, "store", fileStore.Path())
	logger.Info("queue loaded", "tasks", st.Total, "queued", st.Queued, "running", st.IsRunning, "max_concurrent", st.MaxConcurrent)
	logger.Info("endpoints", "api", "http://"+cfg.Address()+"/api", "events", "http://"+cfg.Address()+"/api/events")

	err = srv.Start()
	ctrl.Shutdown()
	if err != nil {
		select {
		case <-ctx.Done():
			// Expected shutdown
		default:
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolvePath(flagConfig)
			if path == "" {
				path = filepath.Join(config.DefaultDir(), "config.yaml")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentq %s (%s)\n", version, commit)
		},
	}
}
