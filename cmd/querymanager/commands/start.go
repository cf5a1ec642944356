package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openmmo/querymanager/internal/auth"
	"github.com/openmmo/querymanager/internal/dispatch"
	"github.com/openmmo/querymanager/internal/hostcache"
	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/internal/metrics"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/internal/server"
	"github.com/openmmo/querymanager/internal/worker"
	"github.com/openmmo/querymanager/pkg/config"
	"github.com/openmmo/querymanager/pkg/database"
)

var (
	daemonize bool
	pidFile   string
	logFile   string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the query manager",
	Long: `Start the query manager with the specified configuration.

By default, the process runs in the foreground so it can be managed by a
process supervisor. Use --daemon to detach it into the background with a
PID file.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/querymanager/config.yaml.

Examples:
  # Start in foreground (default)
  querymanager start

  # Start detached in the background
  querymanager start --daemon

  # Start with custom config file
  querymanager start --config /etc/querymanager/config.yaml

  # Start with environment variable overrides
  QUERYMANAGER_LOGGING_LEVEL=DEBUG querymanager start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&daemonize, "daemon", "d", false, "Detach and run in the background")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/querymanager/querymanager.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/querymanager/querymanager.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if daemonize {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// One id per process run. The daemon log survives restarts, so every
	// line of a run must be attributable to it.
	instance := uuid.NewString()
	logger.Info("Query manager starting",
		slog.String("version", Version),
		slog.String("instance", instance),
		logger.PID(os.Getpid()))
	logger.Info("Configuration loaded",
		slog.String("source", getConfigSource(GetConfigFile())))

	// The password scheme must compute before the first login does.
	if err := auth.SelfTest(); err != nil {
		return fmt.Errorf("password hashing self-test failed: %w", err)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", logger.Err(err))
		}
	}()

	collector := metrics.New(cfg.Metrics)
	collector.ObserveDatabase(db)
	metricsSrv := metrics.NewServer(cfg.Metrics, collector)
	if metricsSrv == nil {
		logger.Info("Metrics collection disabled")
	}

	// The queue holds twice the connection cap so every connection can have
	// a query queued while another batch executes.
	queue := query.NewQueue(2 * cfg.Server.MaxConnections)
	pool := worker.NewPool(db, queue, dispatch.New(hostcache.New(cfg.HostCache)),
		collector, cfg.Server)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	defer pool.Shutdown()
	logger.Info("Worker pool started",
		slog.Int("workers", pool.Size()), logger.Database(db.Kind()))

	srv := server.New(cfg, queue, collector)

	// Write PID file if specified (daemon mode always passes one)
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Only the log level is hot; every other config change needs a restart.
	stopWatch, err := watchConfig(ctx, resolveConfigPath(), cfg.Logging.Level)
	if err != nil {
		logger.Warn("Config file watch unavailable", logger.Err(err))
	} else {
		defer stopWatch()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	metricsDone := make(chan error, 1)
	if metricsSrv != nil {
		go func() {
			metricsDone <- metricsSrv.Start()
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics listener shutdown error", logger.Err(err))
			}
		}()
	}

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Query manager is running", logger.Port(cfg.Server.Port))

	select {
	case sig := <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, draining connections",
			logger.Signal(sig.String()))
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("Query manager stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			return err
		}
		logger.Info("Query manager stopped")

	case err := <-metricsDone:
		signal.Stop(sigChan)
		logger.Error("Metrics listener failed", logger.Err(err))
		cancel()
		if serveErr := <-serverDone; serveErr != nil {
			logger.Error("Server shutdown error", logger.Err(serveErr))
		}
		return err
	}

	return nil
}

// watchConfig follows the config file and applies log level changes at
// runtime. It watches the directory rather than the file: editors and
// deploy tools replace config files by rename, which silently drops a
// watch held on the file itself.
func watchConfig(ctx context.Context, path, level string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		current := level
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				cfg, err := config.Load(path)
				if err != nil {
					logger.Warn("Ignoring config change: reload failed", logger.Err(err))
					continue
				}
				if cfg.Logging.Level == current {
					continue
				}
				logger.SetLevel(cfg.Logging.Level)
				current = cfg.Logging.Level
				logger.Info("Log level changed", slog.String("level", current))

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config file watch error", logger.Err(err))
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}

// startDaemon re-executes the binary detached from the terminal, with its
// output redirected to the daemon log file.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	if pid, running := isProcessRunning(pidPath); running {
		return fmt.Errorf("query manager is already running (PID %d)\n"+
			"Use 'querymanager stop' to stop the running instance", pid)
	}
	_ = os.Remove(pidPath)

	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	daemon := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	daemon.Stdout = logFileHandle
	daemon.Stderr = logFileHandle

	// Detach from the controlling terminal
	daemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := daemon.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logFileHandle.Close()

	fmt.Printf("Query manager started in background (PID %d)\n", daemon.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'querymanager stop' to stop the server")
	fmt.Println("Use 'querymanager status' to check server status")

	return nil
}
