package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/untoldecay/flowctl/internal/debug"
	"github.com/untoldecay/flowctl/internal/lockfile"
)

// ClientVersion is the version of this RPC client
// It's set by main from the CLI version before making RPC calls
var ClientVersion = "0.0.0" // Placeholder; overridden at startup

const defaultDialTimeout = 200 * time.Millisecond

// Client represents an RPC client that connects to the daemon
type Client struct {
	mu         sync.Mutex
	conn       net.Conn
	reader     *bufio.Reader
	socketPath string
	version    string
	timeout    time.Duration
}

// TryConnect connects to the daemon for lockDir (the .flow directory) at
// socketPath. It returns nil, nil when no healthy daemon is running so the
// caller can fall back to direct storage.
func TryConnect(socketPath, lockDir string) (*Client, error) {
	return TryConnectWithTimeout(socketPath, lockDir, defaultDialTimeout)
}

// TryConnectWithTimeout is TryConnect with an explicit dial timeout.
func TryConnectWithTimeout(socketPath, lockDir string, dialTimeout time.Duration) (*Client, error) {
	if !endpointExists(socketPath) {
		// Skip the dial entirely when the lock shows no daemon
		if lockDir != "" {
			if running, _ := lockfile.TryDaemonLock(lockDir); !running {
				debug.Logf("daemon lock not held and socket missing (no daemon running)\n")
				return nil, nil
			}
		}
		if !endpointExists(socketPath) {
			debug.Logf("socket missing: %s\n", socketPath)
			return nil, nil
		}
	}

	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	conn, err := dialRPC(socketPath, dialTimeout)
	if err != nil {
		debug.Logf("failed to connect to RPC endpoint: %v\n", err)
		if lockDir != "" {
			if running, _ := lockfile.TryDaemonLock(lockDir); !running {
				// Daemon died and left its socket behind
				_ = os.Remove(socketPath)
			}
		}
		return nil, nil
	}

	client := &Client{
		conn:       conn,
		reader:     bufio.NewReader(conn),
		socketPath: socketPath,
		version:    ClientVersion,
		timeout:    30 * time.Second,
	}

	health, err := client.Health(context.Background())
	if err != nil {
		debug.Logf("health check failed: %v\n", err)
		_ = conn.Close()
		return nil, nil
	}
	if health.Status == statusUnhealthy {
		debug.Logf("daemon unhealthy: %s\n", health.Error)
		_ = conn.Close()
		return nil, nil
	}
	if !health.Compatible {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: client %s, daemon %s", ErrVersionMismatch, client.version, health.Version)
	}

	debug.Logf("connected to daemon (status: %s, uptime: %.1fs)\n", health.Status, health.Uptime)
	return client, nil
}

// Close closes the connection to the daemon
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SetTimeout sets the request timeout duration
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Execute sends an RPC request and waits for a response. A failed response
// is returned together with the decoded error.
func (c *Client) Execute(ctx context.Context, operation, actor string, args interface{}) (*Response, error) {
	var argsJSON json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal args: %w", err)
		}
		argsJSON = data
	}

	reqJSON, err := json.Marshal(Request{
		Operation:     operation,
		Args:          argsJSON,
		Actor:         actor,
		ClientVersion: c.version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Time{}
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if _, err := c.conn.Write(append(reqJSON, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	respLine, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !resp.Success {
		return &resp, decodeError(&resp)
	}
	return &resp, nil
}

// call runs operation and decodes its payload into a T.
func call[T any](ctx context.Context, c *Client, operation, actor string, args interface{}) (T, error) {
	var out T
	resp, err := c.Execute(ctx, operation, actor, args)
	if err != nil {
		return out, err
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			return out, fmt.Errorf("failed to decode %s response: %w", operation, err)
		}
	}
	return out, nil
}

// Ping sends a ping request to verify the daemon is alive
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	return call[*PingResponse](ctx, c, OpPing, "", nil)
}

// Health sends a health check request to verify the daemon is healthy
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.Execute(ctx, OpHealth, "", nil)
	if resp == nil || len(resp.Data) == 0 {
		if err == nil {
			err = fmt.Errorf("empty health response")
		}
		return nil, err
	}
	var health HealthResponse
	if uerr := json.Unmarshal(resp.Data, &health); uerr != nil {
		return nil, fmt.Errorf("failed to unmarshal health response: %w", uerr)
	}
	return &health, nil
}

// Status retrieves daemon status metadata
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return call[*StatusResponse](ctx, c, OpStatus, "", nil)
}

// Metrics retrieves the daemon's request metrics
func (c *Client) Metrics(ctx context.Context) (*MetricsSnapshot, error) {
	return call[*MetricsSnapshot](ctx, c, OpMetrics, "", nil)
}

// Shutdown asks the daemon to stop after replying
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.Execute(ctx, OpShutdown, "", nil)
	return err
}
