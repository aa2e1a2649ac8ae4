package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"signage/internal/config"
	"signage/internal/ipc"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions are passed to the detached `signage daemon` process.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
	LogLevel   string
}

func (o LaunchOptions) args() []string {
	args := []string{"daemon"}
	if socket := strings.TrimSpace(o.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(o.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(o.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	return args
}

// Controller starts and stops the signage daemon for the CLI.
type Controller struct {
	SocketPath string
	Config     *config.Config
	// Executable is the binary that serves the hidden daemon command.
	Executable string
	Launch     LaunchOptions
	// Poll spaces status checks; 200ms when zero.
	Poll time.Duration
}

// StartResult describes the daemon once Start returns.
type StartResult struct {
	Launched       bool
	AlreadyRunning bool
	// Ready is set once the daemon reported a device id and the outcome of
	// its first sync. A device that is offline at boot may never become
	// ready within the timeout and still plays cached content.
	Ready       bool
	DeviceID    string
	DeviceState string
	SyncOutcome string
	Message     string
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

func (c *Controller) poll() time.Duration {
	if c.Poll > 0 {
		return c.Poll
	}
	return 200 * time.Millisecond
}

// Start launches the daemon when its socket is unreachable, asks it to
// start services if they are stopped, then waits up to timeout for the
// first sync outcome.
func (c *Controller) Start(timeout time.Duration) (StartResult, error) {
	deadline := time.Now().Add(timeout)
	var result StartResult

	client, err := ipc.Dial(c.SocketPath)
	if err != nil {
		if err := c.launch(); err != nil {
			return result, err
		}
		result.Launched = true
		if client, err = c.waitForSocket(deadline); err != nil {
			return result, err
		}
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return result, fmt.Errorf("daemon status: %w", err)
	}
	if status.Running {
		result.AlreadyRunning = !result.Launched
	} else {
		resp, err := client.Start()
		if err != nil {
			return result, fmt.Errorf("start daemon services: %w", err)
		}
		result.Message = strings.TrimSpace(resp.Message)
	}

	for {
		status, err = client.Status()
		if err != nil {
			return result, fmt.Errorf("daemon status: %w", err)
		}
		result.DeviceID = status.DeviceID
		result.DeviceState = status.State
		if status.LastSync != nil {
			result.SyncOutcome = status.LastSync.Outcome
		}
		result.Ready = ready(status)
		if result.Ready || !time.Now().Before(deadline) {
			return result, nil
		}
		time.Sleep(c.poll())
	}
}

func ready(status *ipc.StatusResponse) bool {
	return status.Running && status.DeviceID != "" && status.LastSync != nil
}

func (c *Controller) launch() error {
	exe := strings.TrimSpace(c.Executable)
	if exe == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	proc := exec.Command(exe, c.Launch.args()...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

func (c *Controller) waitForSocket(deadline time.Time) (*ipc.Client, error) {
	lastErr := errors.New("timeout waiting for daemon socket")
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(c.SocketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(c.poll())
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// Stop asks the daemon to stop, which also ends its process, and waits up to
// grace for the socket to go away. A daemon still answering after grace is
// killed through its pid file.
func (c *Controller) Stop(grace time.Duration) (StopResult, error) {
	client, err := ipc.Dial(c.SocketPath)
	if err != nil {
		if unavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	var lockPath string
	result := StopResult{}
	if status, err := client.Status(); err == nil {
		lockPath = status.LockPath
		result.PID = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return result, err
	}
	result.StopAcknowledged = resp.Stopped

	if c.waitGone(time.Now().Add(grace)) {
		return result, nil
	}

	pidPath, lockFile := RuntimePaths(lockPath, c.Config)
	if pidPath == "" {
		return result, errors.New("unable to determine daemon pid file")
	}
	killed, err := ForceKillProcess(pidPath, lockFile, result.PID)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(c.SocketPath)
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// waitGone reports whether the socket stopped accepting connections before
// deadline.
func (c *Controller) waitGone(deadline time.Time) bool {
	for {
		client, err := ipc.Dial(c.SocketPath)
		if err != nil && unavailable(err) {
			return true
		}
		if client != nil {
			_ = client.Close()
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(c.poll())
	}
}

// Restart stops the daemon if running, then starts it again.
func (c *Controller) Restart(grace, timeout time.Duration) (RestartResult, error) {
	stopped, err := c.Stop(grace)
	if err != nil && !errors.Is(err, ErrDaemonNotRunning) {
		return RestartResult{}, err
	}
	started, startErr := c.Start(timeout)
	if startErr != nil {
		return RestartResult{}, startErr
	}
	return RestartResult{WasRunning: err == nil, Stop: stopped, Start: started}, nil
}

// Running reports whether the daemon socket answers and, if so, its pid.
func (c *Controller) Running() (bool, int, error) {
	client, err := ipc.Dial(c.SocketPath)
	if err != nil {
		if unavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, status.PID, nil
}

// RuntimePaths resolves the daemon pid and lock files. The status lock path
// wins so a daemon started with a different data dir is still found.
func RuntimePaths(lockPath string, cfg *config.Config) (pidPath, lock string) {
	if cfg != nil {
		pidPath = cfg.PIDPath()
		lock = cfg.LockPath()
	}
	if strings.TrimSpace(lockPath) != "" {
		lock = lockPath
		pidPath = strings.TrimSuffix(lockPath, ".lock") + ".pid"
	}
	return pidPath, lock
}

// ForceKillProcess sends SIGKILL to the pid recorded in pidPath, or to
// fallbackPID when the file is absent, then removes the pid and lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := readPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	switch {
	case pid <= 0:
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	case pid == os.Getpid():
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// readPID returns 0 when the pid file is missing or empty.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q holds %q", path, text)
	}
	return pid, nil
}

func unavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
