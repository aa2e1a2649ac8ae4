package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"signage/internal/catalog"
	"signage/internal/daemonctl"
	"signage/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the signage daemon and wait for its first sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := daemonController(ctx, startLogLevel)
			if err != nil {
				return err
			}
			result, err := controller.Start(startWait)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			switch {
			case result.AlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case result.Launched:
				fmt.Fprintln(stdout, "Daemon launched")
			default:
				fmt.Fprintln(stdout, "Daemon started")
			}
			printStartResult(stdout, result)
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the daemon log level")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the signage daemon (terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			controller, err := daemonController(ctx, "")
			if err != nil {
				return err
			}
			result, err := controller.Stop(stopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			printStopResult(stdout, result)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show device, sync, playback and download status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := statusSnapshot(ctx)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, status)
			}
			stdout := cmd.OutOrStdout()
			renderStatus(stdout, status, shouldColorize(stdout))
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the signage daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := daemonController(ctx, restartLogLevel)
			if err != nil {
				return err
			}
			result, err := controller.Restart(stopGrace, startWait)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if result.WasRunning {
				printStopResult(stdout, result.Stop)
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			printStartResult(stdout, result.Start)
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override the daemon log level")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

// statusSnapshot asks the daemon for status and falls back to catalog counts
// when it is not reachable.
func statusSnapshot(ctx *commandContext) (*ipc.StatusResponse, error) {
	client, err := ipc.Dial(ctx.socketPath())
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			return resp, nil
		}
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	status := &ipc.StatusResponse{
		State:       "unknown",
		CatalogPath: cfg.CatalogPath(),
		AssetsDir:   cfg.Paths.AssetsDir,
		LockPath:    cfg.LockPath(),
	}
	err = ctx.withCatalog(func(store *catalog.Store) error {
		stats, statsErr := store.Stats(context.Background())
		if statsErr != nil {
			return statsErr
		}
		status.Catalog = catalogStats(stats)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func catalogStats(stats catalog.Stats) ipc.CatalogStats {
	return ipc.CatalogStats{
		Devices:         stats.Devices,
		Playlists:       stats.Playlists,
		Items:           stats.Items,
		Assets:          stats.Assets,
		LocalAssets:     stats.LocalAssets,
		DeclaredBytes:   stats.DeclaredBytes,
		DownloadedBytes: stats.DownloadedBytes,
		PlayEvents:      stats.PlayEvents,
	}
}

const (
	startWait = 10 * time.Second
	stopGrace = 5 * time.Second
)

func printStartResult(w io.Writer, result daemonctl.StartResult) {
	if result.Message != "" && !strings.EqualFold(result.Message, "daemon started") {
		fmt.Fprintln(w, result.Message)
	}
	if result.DeviceID != "" {
		fmt.Fprintf(w, "Device: %s\n", result.DeviceID)
	}
	if !result.Ready {
		fmt.Fprintln(w, "First sync still pending; cached content plays meanwhile")
		return
	}
	fmt.Fprintf(w, "First sync: %s (%s)\n", result.SyncOutcome, result.DeviceState)
}

func printStopResult(w io.Writer, result daemonctl.StopResult) {
	if result.StopAcknowledged {
		fmt.Fprintln(w, "Stopping playback and sync...")
	} else {
		fmt.Fprintln(w, "Stop request sent")
	}
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(w, "Killed daemon process (pid %d)\n", result.PID)
	}
	fmt.Fprintln(w, "Daemon stopped")
}

func daemonController(ctx *commandContext, logLevel string) (*daemonctl.Controller, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	opts := daemonctl.LaunchOptions{LogLevel: logLevel, ConfigPath: ctx.configPath()}
	if ctx.socketFlag != nil {
		opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
	}
	return &daemonctl.Controller{
		SocketPath: ctx.socketPath(),
		Config:     ctx.configValue(),
		Executable: exe,
		Launch:     opts,
	}, nil
}
