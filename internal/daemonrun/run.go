package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"signage/internal/catalog"
	"signage/internal/config"
	"signage/internal/daemon"
	"signage/internal/fileutil"
	"signage/internal/ipc"
	"signage/internal/logging"
	"signage/internal/prefs"
)

const recentProblemCapacity = 20

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the signage daemon runtime loop. It returns once the process is
// signaled or a client requests a stop over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("signaged-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:           level,
		Format:          cfg.Logging.Format,
		OutputPaths:     []string{"stderr", logPath},
		ComponentLevels: cfg.Logging.ComponentLevels,
		Development:     opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	problems := logging.NewRecentProblems(recentProblemCapacity)
	logger = problems.Capture(logger)

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update signaged.log link: %v\n", err)
	}
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer fileutil.RemoveIfExists(pidPath)

	logger.Info("signage daemon starting",
		logging.EventType("daemon_process_start"),
		logging.String("run_id", runID),
		logging.String("log_path", logPath),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("server", configSource(cfg)),
	)

	store, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		logger.Error("open catalog", logging.Error(err))
		return err
	}
	defer store.Close()

	prefStore, err := prefs.Open(cfg.PrefsPath())
	if err != nil {
		logger.Error("open preferences", logging.Error(err))
		return err
	}
	defer prefStore.Close()

	d, err := daemon.New(cfg, store, prefStore, logger, daemon.WithRecentProblems(problems))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	runCtx, stopRun := context.WithCancel(signalCtx)
	defer stopRun()

	ipcServer, err := ipc.NewServer(runCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.OnStop(stopRun)
	ipcServer.Serve()

	if err := d.Start(runCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.EventType("daemon_start_failed"),
			logging.ErrorHint("check that no other signage daemon holds the lock and the data directory is writable"),
			logging.Impact("content will not sync or play until the daemon is started"),
		)
	}

	<-runCtx.Done()
	logger.Info("signage daemon shutting down",
		logging.EventType("daemon_process_stop"))
	return nil
}

func configSource(cfg *config.Config) string {
	if strings.TrimSpace(cfg.Server.ConfigFile) != "" {
		return "file:" + cfg.Server.ConfigFile
	}
	return cfg.Server.BaseURL
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "signaged.log")
	if err := fileutil.RemoveIfExists(current); err != nil {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return fileutil.WriteFileAtomic(path, []byte(value), 0o644)
}
