package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/mod/semver"

	"github.com/untoldecay/flowctl/internal/telemetry"
	"github.com/untoldecay/flowctl/internal/types"
)

// ServerVersion is the version of this RPC server
var ServerVersion = "0.0.0" // Placeholder; overridden by daemon startup

const (
	defaultMaxConns       = 100
	defaultRequestTimeout = 30 * time.Second
	statusUnhealthy       = "unhealthy"
)

// Server serves API requests for one database over a Unix socket.
type Server struct {
	socketPath string
	version    string
	backend    *Backend
	log        *slog.Logger
	metrics    *Metrics
	validate   *validator.Validate
	tracer     trace.Tracer
	handlers   map[string]handlerFunc

	mu       sync.RWMutex
	listener net.Listener
	shutdown bool
	baseCtx  context.Context

	stopOnce        sync.Once
	readyChan       chan struct{}
	doneChan        chan struct{}
	shutdownChan    chan struct{}
	pendingShutdown atomic.Bool

	connSemaphore  chan struct{}
	activeConns    int32
	maxConns       int
	requestTimeout time.Duration
	startTime      time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxConns caps concurrent connections; extra connections are closed
// immediately.
func WithMaxConns(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// WithRequestTimeout bounds reading a request and running it.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithVersion overrides the version reported to and checked against
// clients.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server for backend on socketPath. A nil logger
// discards output.
func NewServer(socketPath string, backend *Backend, log *slog.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		socketPath:     socketPath,
		version:        ServerVersion,
		backend:        backend,
		log:            log.With("component", "rpc"),
		metrics:        NewMetrics(),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		tracer:         telemetry.Tracer("github.com/untoldecay/flowctl/rpc"),
		baseCtx:        context.Background(),
		readyChan:      make(chan struct{}),
		doneChan:       make(chan struct{}),
		shutdownChan:   make(chan struct{}),
		maxConns:       defaultMaxConns,
		requestTimeout: defaultRequestTimeout,
		startTime:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.connSemaphore = make(chan struct{}, s.maxConns)
	s.metrics.SetSlowCallback(DefaultSlowThreshold, func(op string, latency time.Duration) {
		s.log.Warn("slow request", "operation", op, "latency", latency)
	})
	s.handlers = s.routes()
	return s
}

// Metrics returns the server's request metrics.
func (s *Server) Metrics() *Metrics { return s.metrics }

// isPermissionUnsupportedError checks if an error indicates the filesystem
// doesn't support permission changes on sockets (e.g., EINVAL on virtio-fs)
func isPermissionUnsupportedError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTSUP
	}
	return false
}

// Start listens on the socket and serves connections until Stop is called
// or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := EnsureSocketDir(s.socketPath); err != nil {
		return fmt.Errorf("failed to ensure socket directory: %w", err)
	}
	if err := s.removeOldSocket(); err != nil {
		return fmt.Errorf("failed to remove old socket: %w", err)
	}

	listener, err := listenRPC(s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to initialize RPC listener: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(s.socketPath, 0o600); err != nil {
			if !isPermissionUnsupportedError(err) {
				_ = listener.Close()
				return fmt.Errorf("failed to set socket permissions: %w", err)
			}
			s.log.Warn("could not set socket permissions", "error", err)
		}
	}

	s.mu.Lock()
	s.listener = listener
	s.baseCtx = ctx
	s.mu.Unlock()

	close(s.readyChan)
	s.log.Info("rpc server listening", "socket", s.socketPath, "max_conns", s.maxConns)

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.shutdownChan:
		}
	}()

	defer close(s.doneChan)

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.RLock()
			shutdown := s.shutdown
			s.mu.RUnlock()
			if shutdown {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		select {
		case s.connSemaphore <- struct{}{}:
			s.metrics.RecordConnection()
			go func(c net.Conn) {
				defer func() { <-s.connSemaphore }()
				atomic.AddInt32(&s.activeConns, 1)
				defer atomic.AddInt32(&s.activeConns, -1)
				s.handleConnection(c)
			}(conn)
		default:
			s.metrics.RecordRejectedConnection()
			s.log.Warn("connection rejected", "max_conns", s.maxConns)
			_ = conn.Close()
		}
	}
}

// WaitReady waits for the server to be ready to accept connections
func (s *Server) WaitReady() <-chan struct{} {
	return s.readyChan
}

// Stop closes the listener and removes the socket. The backend's store is
// left open for its owner to close.
func (s *Server) Stop() error {
	var err error
	started := false
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()
		close(s.shutdownChan)

		if listener == nil {
			return
		}
		started = true
		if closeErr := listener.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close listener: %w", closeErr)
			return
		}
		if removeErr := CleanupSocketDir(s.socketPath); removeErr != nil {
			err = fmt.Errorf("failed to remove socket: %w", removeErr)
		}
		s.log.Info("rpc server stopped")
	})

	if started {
		select {
		case <-s.doneChan:
		case <-time.After(5 * time.Second):
		}
	}
	return err
}

func (s *Server) removeOldSocket() error {
	if !endpointExists(s.socketPath) {
		return nil
	}
	conn, err := dialRPC(s.socketPath, 500*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is in use by another daemon", s.socketPath)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in connection handler", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.requestTimeout)); err != nil {
			return
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := errorResponse(fmt.Errorf("%w: invalid request: %v", ErrInvalidArgs, err))
			if err := s.writeResponse(writer, resp); err != nil {
				return
			}
			continue
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.requestTimeout)); err != nil {
			return
		}
		resp := s.handleRequest(&req)
		if err := s.writeResponse(writer, resp); err != nil {
			return
		}

		// Stop only after the shutdown reply is on the wire
		if s.pendingShutdown.Load() {
			go func() {
				if err := s.Stop(); err != nil {
					s.log.Error("shutdown failed", "error", err)
				}
			}()
			return
		}
	}
}

func (s *Server) writeResponse(writer *bufio.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush response: %w", err)
	}
	return nil
}

func (s *Server) handleRequest(req *Request) Response {
	start := time.Now()
	defer func() {
		s.metrics.RecordRequest(req.Operation, time.Since(start))
	}()

	s.mu.RLock()
	base := s.baseCtx
	s.mu.RUnlock()
	ctx, cancel := context.WithTimeout(base, s.requestTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "rpc."+req.Operation,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.operation", req.Operation),
			attribute.String("flow.actor", req.Actor),
		))
	defer span.End()

	data, err := s.dispatch(ctx, req)
	if err != nil {
		s.metrics.RecordError(req.Operation)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Debug("request failed", "operation", req.Operation, "actor", req.Actor, "error", err)
		return errorResponse(err)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		s.metrics.RecordError(req.Operation)
		return Response{Error: fmt.Sprintf("failed to marshal result: %v", err)}
	}
	return Response{Success: true, Data: payload}
}

func (s *Server) dispatch(ctx context.Context, req *Request) (any, error) {
	// ping and health answer any client so it can discover the mismatch
	switch req.Operation {
	case OpPing:
		return PingResponse{Message: "pong", Version: s.version}, nil
	case OpHealth:
		return s.health(ctx, req.ClientVersion), nil
	}
	if err := checkVersionCompatibility(s.version, req.ClientVersion); err != nil {
		return nil, err
	}
	switch req.Operation {
	case OpStatus:
		return s.status(), nil
	case OpMetrics:
		return s.metrics.Snapshot(int(atomic.LoadInt32(&s.activeConns))), nil
	case OpShutdown:
		s.pendingShutdown.Store(true)
		return map[string]string{"message": "daemon shutting down"}, nil
	}
	h, ok := s.handlers[req.Operation]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, req.Operation)
	}
	return h(ctx, req)
}

// checkVersionCompatibility refuses clients of another major version and
// clients newer than the daemon. Empty or non-semver versions (dev builds)
// are accepted.
func checkVersionCompatibility(serverVersion, clientVersion string) error {
	if clientVersion == "" {
		return nil
	}
	serverVer := ensureV(serverVersion)
	clientVer := ensureV(clientVersion)
	if !semver.IsValid(serverVer) || !semver.IsValid(clientVer) {
		return nil
	}

	if semver.Major(serverVer) != semver.Major(clientVer) {
		if semver.Compare(serverVer, clientVer) < 0 {
			return fmt.Errorf("%w: client %s, daemon %s; daemon is older, restart it with 'flow serve'",
				ErrVersionMismatch, clientVersion, serverVersion)
		}
		return fmt.Errorf("%w: client %s, daemon %s; client is older, upgrade the flow CLI",
			ErrVersionMismatch, clientVersion, serverVersion)
	}

	// Within a major version the daemon must be at least as new as the client
	if semver.Compare(serverVer, clientVer) < 0 {
		return fmt.Errorf("%w: daemon %s is older than client %s; restart it with 'flow serve'",
			ErrVersionMismatch, serverVersion, clientVersion)
	}
	return nil
}

func ensureV(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

func (s *Server) health(ctx context.Context, clientVersion string) HealthResponse {
	start := time.Now()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	healthCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	status := "healthy"
	dbError := ""
	_, pingErr := s.backend.Store().ListFeatures(healthCtx, types.FeatureFilter{Limit: 1})
	dbResponseMs := time.Since(start).Seconds() * 1000
	if pingErr != nil {
		status = statusUnhealthy
		dbError = pingErr.Error()
	} else if dbResponseMs > 500 {
		status = "degraded"
	}

	return HealthResponse{
		Status:         status,
		Version:        s.version,
		ClientVersion:  clientVersion,
		Compatible:     checkVersionCompatibility(s.version, clientVersion) == nil,
		Uptime:         time.Since(s.startTime).Seconds(),
		DBResponseTime: dbResponseMs,
		ActiveConns:    atomic.LoadInt32(&s.activeConns),
		MaxConns:       s.maxConns,
		MemoryAllocMB:  m.Alloc / 1024 / 1024,
		Error:          dbError,
	}
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		Version:       s.version,
		DatabasePath:  s.backend.Store().Path(),
		SocketPath:    s.socketPath,
		PID:           os.Getpid(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		ActiveConns:   atomic.LoadInt32(&s.activeConns),
		MaxConns:      s.maxConns,
	}
}
