// Package mcp exposes the knowledge graph as a set of MCP (Model Context
// Protocol) tools.
//
// Every tool is a ToolHandler in the server's handler map. Handlers parse
// their named arguments, call one graph.Service operation and return its
// value; the server turns that value into JSON text content, or a typed
// failure into an error result whose text is
// {"error":{"kind":...,"message":...,"details":...}}.
//
// Tool Surface:
//   - get_schema: the effective schema
//   - resolve_vertex, read_vertex, read_vertex_by_id, get_notion_by_id
//   - create_vertex, create_vertex_and_connect, create_notion
//   - create_notion_and_connect, create_notion_group_and_connect
//   - connect_vertices (alias add_edge), delete_edge
//   - update_vertex_by_id, delete_vertex, delete_vertex_by_id
//   - list_vertices_by_label, find_vertices_by_caption, search_vertices
//   - get_vertices_by_captions, get_verse_by_caption
//
// Example Usage:
//
//	srv := mcp.NewServer(service, mcp.DefaultServerConfig())
//
//	// stdio
//	err := srv.ServeStdio(ctx, os.Stdin, os.Stdout)
//
//	// streamable HTTP on localhost:8765/mcp
//	err = srv.ListenAndServe(ctx)
//
// Transports:
//   - stdio: newline-delimited JSON-RPC on stdin/stdout
//   - streamable-http: MCP endpoint plus /health and /metrics
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/theomcp/pkg/apperror"
	"github.com/orneryd/theomcp/pkg/graph"
	"github.com/orneryd/theomcp/pkg/metrics"
)

// ToolHandler executes one tool with already decoded JSON arguments.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Server implements the MCP tool surface of the knowledge graph.
type Server struct {
	service *graph.Service
	config  *ServerConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	mcp        *server.MCPServer
	streamable *server.StreamableHTTPServer
	started    time.Time

	// Tool handlers
	handlers map[string]ToolHandler
}

// ServerConfig holds MCP server configuration.
type ServerConfig struct {
	// Name and Version are reported to clients on initialize
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// Address to bind to (default: "localhost")
	Address string `yaml:"address"`
	// Port to listen on (default: 8765)
	Port int `yaml:"port"`
	// Endpoint is the streamable HTTP path (default: "/mcp")
	Endpoint string `yaml:"endpoint"`
	// ReadTimeout for requests
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// ShutdownTimeout bounds graceful HTTP shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// EnableCORS for cross-origin requests
	EnableCORS bool `yaml:"enable_cors"`
	// EnableMetrics exposes /metrics on the HTTP transport
	EnableMetrics bool `yaml:"enable_metrics"`
	// Tools is the allow-list of exposed tools; nil exposes every tool
	Tools map[string]bool `yaml:"-"`
	// Logger receives tool call and transport logs
	Logger *zap.Logger `yaml:"-"`
	// Metrics records tool calls; may be nil
	Metrics *metrics.Metrics `yaml:"-"`
}

// DefaultServerConfig returns the defaults for the MCP server.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Name:            "theomcp",
		Version:         "dev",
		Address:         "localhost",
		Port:            8765,
		Endpoint:        "/mcp",
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		EnableMetrics:   true,
	}
}

const serverInstructions = `Knowledge graph of persons, books, verses, notions, notion groups and ` +
	`quotations. Call get_schema first to learn labels, properties and edge labels. ` +
	`Vertices are referenced by internal_id, by id, or by a unique caption. ` +
	`Relationship views name incoming edges by their inverse (supports, isReferredBy).`

// NewServer creates a server for service. A nil config uses DefaultServerConfig.
func NewServer(service *graph.Service, config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		service:  service,
		config:   config,
		logger:   logger.Named("mcp"),
		metrics:  config.Metrics,
		handlers: make(map[string]ToolHandler),
		started:  time.Now(),
	}
	s.registerHandlers()

	s.mcp = server.NewMCPServer(config.Name, config.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)
	for _, tool := range GetToolDefinitions() {
		if !shouldRegister(tool.Name, config.Tools) {
			continue
		}
		s.mcp.AddTool(tool, s.toolHandlerFunc(tool.Name))
	}
	s.streamable = server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(config.Endpoint))
	return s
}

// registerHandlers sets up all tool handlers.
func (s *Server) registerHandlers() {
	s.handlers[ToolGetSchema] = s.handleGetSchema
	s.handlers[ToolResolveVertex] = s.handleResolveVertex
	s.handlers[ToolCreateVertex] = s.handleCreateVertex
	s.handlers[ToolCreateVertexAndConnect] = s.handleCreateVertexAndConnect
	s.handlers[ToolCreateNotion] = s.handleCreateNotion
	s.handlers[ToolCreateNotionAndConnect] = s.handleCreateNotionAndConnect
	s.handlers[ToolCreateNotionGroupAndConnect] = s.handleCreateNotionGroupAndConnect
	s.handlers[ToolConnectVertices] = s.handleConnectVertices
	s.handlers[ToolAddEdge] = s.handleConnectVertices
	s.handlers[ToolDeleteEdge] = s.handleDeleteEdge
	s.handlers[ToolReadVertex] = s.handleReadVertex
	s.handlers[ToolReadVertexByID] = s.handleReadVertexByID
	s.handlers[ToolGetNotionByID] = s.handleGetNotionByID
	s.handlers[ToolUpdateVertexByID] = s.handleUpdateVertexByID
	s.handlers[ToolDeleteVertex] = s.handleDeleteVertex
	s.handlers[ToolDeleteVertexByID] = s.handleDeleteVertexByID
	s.handlers[ToolListVerticesByLabel] = s.handleListVerticesByLabel
	s.handlers[ToolFindVerticesByCaption] = s.handleFindVerticesByCaption
	s.handlers[ToolSearchVertices] = s.handleSearchVertices
	s.handlers[ToolGetVerticesByCaptions] = s.handleGetVerticesByCaptions
	s.handlers[ToolGetVerseByCaption] = s.handleGetVerseByCaption
}

// MCPServer returns the underlying protocol server with the allowed tools
// registered.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// CallTool runs the named tool, recording its duration and outcome.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	handler, ok := s.handlers[name]
	if !ok || !shouldRegister(name, s.config.Tools) {
		return nil, apperror.New(apperror.KindInvalidArgument, "unknown tool: %s", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	result, err := handler(ctx, args)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = string(apperror.KindOf(err))
		if status == "" {
			status = "internal_error"
		}
	}
	s.metrics.ObserveToolCall(name, status, elapsed)

	switch status {
	case "ok":
		s.logger.Debug("tool call", zap.String("tool", name), zap.Duration("duration", elapsed))
	case "internal_error", string(apperror.KindStoreFailure):
		s.logger.Warn("tool call failed", zap.String("tool", name), zap.Duration("duration", elapsed),
			zap.String("error_kind", status), zap.Error(err))
	default:
		s.logger.Debug("tool call rejected", zap.String("tool", name), zap.Duration("duration", elapsed),
			zap.String("error_kind", status), zap.String("error", err.Error()))
	}
	return result, err
}

func (s *Server) toolHandlerFunc(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.CallTool(ctx, name, req.GetArguments())
		return toolResult(result, err)
	}
}

// toolResult wraps a handler outcome in MCP content. Objects are also sent
// as structured content.
func toolResult(result any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		body, marshalErr := json.Marshal(apperror.ToResponse(err))
		if marshalErr != nil {
			return nil, fmt.Errorf("encoding tool error: %w", marshalErr)
		}
		return mcp.NewToolResultError(string(body)), nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	if len(data) > 0 && data[0] == '{' {
		return mcp.NewToolResultStructured(result, string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// =============================================================================
// Transports
// =============================================================================

// ServeStdio serves MCP over in and out until ctx is done or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	s.logger.Info("serving MCP over stdio", zap.Int("tools", len(ToolNames(s.config.Tools))))
	return stdio.Listen(ctx, in, out)
}

// RegisterRoutes mounts the MCP endpoint, /health and, when enabled,
// /metrics on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(s.config.Endpoint, s.streamable)
	mux.HandleFunc("/health", s.handleHealth)
	if s.config.EnableMetrics && s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
}

// Handler returns the HTTP handler of the streamable transport.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	if s.config.EnableCORS {
		handler = corsMiddleware(mux)
	}
	return handler
}

// ListenAndServe serves the streamable HTTP transport until ctx is done,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("serving MCP over streamable HTTP",
			zap.String("address", addr), zap.String("endpoint", s.config.Endpoint))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down HTTP transport")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// corsMiddleware adds CORS headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Mcp-Session-Id, Mcp-Protocol-Version")
		w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"uptime":  time.Since(s.started).String(),
		"version": s.config.Version,
		"tools":   len(ToolNames(s.config.Tools)),
	})
}
