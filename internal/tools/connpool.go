package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"charm.land/fantasy"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pi-run/pi/internal/builtin"
	"github.com/pi-run/pi/internal/config"
)

// ConnectionPoolConfig tunes the reconnect behavior of MCPConnectionPool.
type ConnectionPoolConfig struct {
	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
}

// DefaultConnectionPoolConfig returns reconnect settings suitable for
// interactive use: a couple of quick retries rather than a long backoff.
func DefaultConnectionPoolConfig() ConnectionPoolConfig {
	return ConnectionPoolConfig{
		MaxReconnectAttempts: 2,
		ReconnectBackoff:     500 * time.Millisecond,
	}
}

// pooledConnection wraps a live MCP client with the health flag used to
// decide whether GetConnectionWithHealthCheck should recycle it.
type pooledConnection struct {
	client  client.MCPClient
	healthy bool
}

// MCPConnectionPool owns the lifecycle of MCP client connections: creating
// them over the right transport (stdio, SSE, streamable HTTP, or in-process
// builtin), caching one live connection per server name, and reconnecting a
// server whose connection has been marked unhealthy.
type MCPConnectionPool struct {
	mu          sync.Mutex
	config      ConnectionPoolConfig
	model       fantasy.LanguageModel
	debug       bool
	debugLogger DebugLogger
	conns       map[string]*pooledConnection
}

// NewMCPConnectionPool creates an empty pool. model is forwarded to
// in-process builtin servers that need LLM sampling.
func NewMCPConnectionPool(cfg ConnectionPoolConfig, model fantasy.LanguageModel, debug bool) *MCPConnectionPool {
	return &MCPConnectionPool{
		config: cfg,
		model:  model,
		debug:  debug,
		conns:  make(map[string]*pooledConnection),
	}
}

// SetDebugLogger installs the logger used for connection diagnostics.
func (p *MCPConnectionPool) SetDebugLogger(logger DebugLogger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.debugLogger = logger
}

func (p *MCPConnectionPool) logDebug(format string, args ...any) {
	if p.debugLogger != nil && p.debugLogger.IsDebugEnabled() {
		p.debugLogger.LogDebug(fmt.Sprintf(format, args...))
	}
}

// GetConnection returns the pooled connection for serverName, creating and
// initializing one over the configured transport if none exists yet.
func (p *MCPConnectionPool) GetConnection(ctx context.Context, serverName string, serverConfig config.MCPServerConfig) (*pooledConnection, error) {
	p.mu.Lock()
	if conn, ok := p.conns[serverName]; ok {
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	return p.connect(ctx, serverName, serverConfig)
}

func (p *MCPConnectionPool) connect(ctx context.Context, serverName string, serverConfig config.MCPServerConfig) (*pooledConnection, error) {
	c, err := p.createMCPClient(ctx, serverName, serverConfig)
	if err != nil {
		return nil, err
	}
	if err := p.initializeClient(ctx, c); err != nil {
		_ = c.Close()
		return nil, err
	}

	conn := &pooledConnection{client: c, healthy: true}
	p.mu.Lock()
	p.conns[serverName] = conn
	p.mu.Unlock()
	return conn, nil
}

// GetConnectionWithHealthCheck returns the pooled connection for serverName,
// transparently closing and reconnecting it first if a prior call to
// HandleConnectionError marked it unhealthy.
func (p *MCPConnectionPool) GetConnectionWithHealthCheck(ctx context.Context, serverName string, serverConfig config.MCPServerConfig) (*pooledConnection, error) {
	p.mu.Lock()
	conn, ok := p.conns[serverName]
	p.mu.Unlock()

	if ok && conn.healthy {
		return conn, nil
	}

	if ok && !conn.healthy {
		_ = conn.client.Close()
		p.mu.Lock()
		delete(p.conns, serverName)
		p.mu.Unlock()
	}

	attempts := p.config.MaxReconnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		reconnected, err := p.connect(ctx, serverName, serverConfig)
		if err == nil {
			return reconnected, nil
		}
		lastErr = err
		p.logDebug("[DEBUG] reconnect attempt %d for %s failed: %v", attempt+1, serverName, err)
		time.Sleep(p.config.ReconnectBackoff)
	}
	return nil, fmt.Errorf("failed to reconnect to %s: %w", serverName, lastErr)
}

// HandleConnectionError marks serverName's pooled connection unhealthy so
// the next GetConnectionWithHealthCheck call reconnects it instead of
// reusing the broken client.
func (p *MCPConnectionPool) HandleConnectionError(serverName string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.conns[serverName]; ok {
		conn.healthy = false
	}
	p.logDebug("[DEBUG] connection error for %s: %v", serverName, err)
}

// GetClients returns a snapshot of the currently pooled connections keyed by
// server name.
func (p *MCPConnectionPool) GetClients() map[string]*pooledConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]*pooledConnection, len(p.conns))
	for name, conn := range p.conns {
		out[name] = conn
	}
	return out
}

// Close closes every pooled client connection and empties the pool,
// returning the first error encountered (if any) after attempting to close
// them all.
func (p *MCPConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for name, conn := range p.conns {
		if err := conn.client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", name, err)
		}
	}
	p.conns = make(map[string]*pooledConnection)
	return firstErr
}

func (p *MCPConnectionPool) createMCPClient(ctx context.Context, serverName string, serverConfig config.MCPServerConfig) (client.MCPClient, error) {
	transportType := serverConfig.GetTransportType()

	switch transportType {
	case "stdio":
		var env []string
		var command string
		var args []string

		if len(serverConfig.Command) > 0 {
			command = serverConfig.Command[0]
			if len(serverConfig.Command) > 1 {
				args = serverConfig.Command[1:]
			} else if len(serverConfig.Args) > 0 {
				args = serverConfig.Args
			}
		}

		if serverConfig.Environment != nil {
			for k, v := range serverConfig.Environment {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
		}

		if serverConfig.Env != nil {
			for k, v := range serverConfig.Env {
				env = append(env, fmt.Sprintf("%s=%v", k, v))
			}
		}

		stdioTransport := transport.NewStdio(command, env, args...)
		stdioClient := client.NewClient(stdioTransport)

		if err := stdioTransport.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start stdio transport: %v", err)
		}

		time.Sleep(100 * time.Millisecond)
		return stdioClient, nil

	case "sse":
		var options []transport.ClientOption

		if len(serverConfig.Headers) > 0 {
			headers := make(map[string]string)
			for _, header := range serverConfig.Headers {
				parts := strings.SplitN(header, ":", 2)
				if len(parts) == 2 {
					key := strings.TrimSpace(parts[0])
					value := strings.TrimSpace(parts[1])
					headers[key] = value
				}
			}
			if len(headers) > 0 {
				options = append(options, transport.WithHeaders(headers))
			}
		}

		sseClient, err := client.NewSSEMCPClient(serverConfig.URL, options...)
		if err != nil {
			return nil, err
		}

		if err := sseClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start SSE client: %v", err)
		}

		return sseClient, nil

	case "streamable":
		var options []transport.StreamableHTTPCOption

		if len(serverConfig.Headers) > 0 {
			headers := make(map[string]string)
			for _, header := range serverConfig.Headers {
				parts := strings.SplitN(header, ":", 2)
				if len(parts) == 2 {
					key := strings.TrimSpace(parts[0])
					value := strings.TrimSpace(parts[1])
					headers[key] = value
				}
			}
			if len(headers) > 0 {
				options = append(options, transport.WithHTTPHeaders(headers))
			}
		}

		streamableClient, err := client.NewStreamableHttpClient(serverConfig.URL, options...)
		if err != nil {
			return nil, err
		}

		if err := streamableClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start streamable HTTP client: %v", err)
		}

		return streamableClient, nil

	case "inprocess":
		return p.createBuiltinClient(ctx, serverName, serverConfig)

	default:
		return nil, fmt.Errorf("unsupported transport type '%s' for server %s", transportType, serverName)
	}
}

func (p *MCPConnectionPool) initializeClient(ctx context.Context, c client.MCPClient) error {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "pi",
		Version: "1.0.0",
	}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	_, err := c.Initialize(initCtx, initRequest)
	if err != nil {
		return fmt.Errorf("initialization timeout or failed: %v", err)
	}
	return nil
}

// createBuiltinClient creates an in-process MCP client for builtin servers.
func (p *MCPConnectionPool) createBuiltinClient(ctx context.Context, serverName string, serverConfig config.MCPServerConfig) (client.MCPClient, error) {
	registry := builtin.NewRegistry()

	builtinServer, err := registry.CreateServer(serverConfig.Name, serverConfig.Options, p.model)
	if err != nil {
		return nil, fmt.Errorf("failed to create builtin server: %v", err)
	}

	inProcessClient, err := client.NewInProcessClient(builtinServer.GetServer())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-process client: %v", err)
	}

	return inProcessClient, nil
}
