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
	"strings"
	"sync"
	"time"

	"faceplate/internal/daemon"
	"faceplate/internal/logging"
)

// ServiceName is the RPC receiver name clients prefix methods with.
const ServiceName = "Faceplate"

const (
	defaultTailLimit = 200
	defaultTailWait  = time.Second
	maxTailWait      = 30 * time.Second
)

// LogSource supplies events for LogTail. Archive covers sequences that have
// already rotated out of Hub.
type LogSource struct {
	Hub     *logging.StreamHub
	Archive *logging.EventArchive
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, logs LogSource) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx, logs: logs}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
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
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				stop := context.AfterFunc(s.ctx, func() { _ = c.Close() })
				defer stop()
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
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun faceplate stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	logs   LogSource
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx)
	resp.PID = os.Getpid()
	return nil
}

func (s *service) Command(req CommandRequest, resp *CommandResponse) error {
	ctx := logging.WithCommand(s.ctx, req.Command)
	if err := s.daemon.SendCommand(ctx, req.Command); err != nil {
		return err
	}
	resp.Sent = true
	return nil
}

func (s *service) SetVolume(req VolumeRequest, resp *VolumeResponse) error {
	if err := s.daemon.SetVolume(s.ctx, req.Volume); err != nil {
		return err
	}
	resp.Volume = req.Volume
	return nil
}

func (s *service) IdleArm(req IdleArmRequest, resp *IdleResponse) error {
	if req.TimeoutSeconds < 0 {
		return fmt.Errorf("idle timeout must not be negative, got %d", req.TimeoutSeconds)
	}
	resp.Idle = s.daemon.ArmIdle(req.Timeout())
	return nil
}

func (s *service) IdleDisarm(_ IdleDisarmRequest, resp *IdleResponse) error {
	resp.Idle = s.daemon.DisarmIdle()
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	plays, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Plays = plays
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	hub := s.logs.Hub
	if hub == nil {
		resp.Next = req.Since
		return nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTailLimit
	}

	if req.Since == 0 && !req.Follow {
		events, last := hub.Tail(limit)
		resp.Events = filterComponent(events, req.Component)
		resp.Next = last
		return nil
	}

	if req.Since > 0 && req.Since+1 < hub.FirstSequence() && s.logs.Archive != nil {
		events, next, err := s.logs.Archive.ReadSince(req.Since, limit)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			resp.Events = filterComponent(events, req.Component)
			resp.Next = events[len(events)-1].Sequence
			return nil
		}
		req.Since = max(req.Since, next)
	}

	ctx := s.ctx
	if req.Follow {
		wait := time.Duration(req.WaitMillis) * time.Millisecond
		if wait <= 0 {
			wait = defaultTailWait
		}
		wait = min(wait, maxTailWait)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait)
		defer cancel()
	}
	events, last, err := hub.Fetch(ctx, req.Since, limit, req.Follow)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	resp.Events = filterComponent(events, req.Component)
	resp.Next = req.Since
	if len(events) > 0 {
		resp.Next = events[len(events)-1].Sequence
	} else if last > req.Since {
		resp.Next = last
	}
	return nil
}

func filterComponent(events []logging.LogEvent, component string) []logging.LogEvent {
	component = strings.TrimSpace(component)
	if component == "" {
		return events
	}
	out := events[:0:0]
	for _, evt := range events {
		if strings.EqualFold(evt.Component, component) {
			out = append(out, evt)
		}
	}
	return out
}
