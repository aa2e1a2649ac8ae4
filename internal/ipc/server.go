package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"signage/internal/contentsync"
	"signage/internal/daemon"
	"signage/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server
	svc       *service

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName("Signage", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		svc:       srv,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// OnStop registers fn to run after a Stop request has stopped the daemon,
// typically to let the hosting process exit.
func (s *Server) OnStop(fn func()) {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	s.svc.onStop = fn
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.EventType("ipc_accept_failed"),
					logging.Impact("IPC clients may fail to connect"),
					logging.ErrorHint("Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.EventType("ipc_socket_cleanup_failed"),
			logging.Impact("stale IPC socket may block future starts"),
			logging.ErrorHint("Remove the socket file manually or rerun signage stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context

	mu     sync.Mutex
	onStop func()
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC",
		logging.EventType("daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC",
		logging.EventType("daemon_stop"))

	s.mu.Lock()
	onStop := s.onStop
	s.mu.Unlock()
	if onStop != nil {
		onStop()
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = statusResponse(s.daemon.Status(s.ctx))
	return nil
}

func (s *service) SyncNow(_ SyncNowRequest, resp *SyncNowResponse) error {
	s.logger.Debug("sync requested")
	result, err := s.daemon.SyncNow(s.ctx)
	if err != nil {
		return err
	}
	resp.Summary = syncSummary(result)
	s.logger.Info("sync triggered via IPC",
		logging.String("outcome", result.Outcome.String()),
		logging.EventType("ipc_sync"))
	return nil
}

func (s *service) Push(req PushRequest, resp *PushResponse) error {
	resp.Accepted = s.daemon.Push(req.Message)
	if !resp.Accepted {
		return fmt.Errorf("push message %q not recognized or daemon not running", req.Message)
	}
	return nil
}

func (s *service) AttachAttributes(req AttachRequest, resp *AttachResponse) error {
	if err := s.daemon.AttachAttributes(req.RunID, req.Attributes); err != nil {
		return err
	}
	resp.Attached = true
	s.logger.Debug("play run attributes attached",
		logging.String("run_id", req.RunID),
		logging.EventType("ipc_attach"))
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.MissingTables = append([]string(nil), health.MissingTables...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.Error = health.Error
	if err != nil && resp.Error == "" {
		resp.Error = err.Error()
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func syncSummary(result contentsync.Result) SyncSummary {
	summary := SyncSummary{
		Outcome:          result.Outcome.String(),
		At:               result.StartedAt,
		DurationMillis:   result.Duration.Milliseconds(),
		Fingerprint:      result.Fingerprint,
		Playlists:        result.Playlists,
		Items:            result.Items,
		RemovedPlaylists: len(result.RemovedPlaylists),
		RemovedAssets:    result.RemovedAssets,
	}
	if result.Err != nil {
		summary.Error = result.Err.Error()
	}
	return summary
}
