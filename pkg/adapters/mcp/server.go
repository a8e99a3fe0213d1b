// Package mcp exposes a canopy engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/internal/validator"
	"github.com/aretw0/canopy/pkg/domain"
)

// StagesURI is the resource holding the stage table.
const StagesURI = "canopy://stages"

// Engine is the subset of canopy.Engine exposed as tools.
type Engine interface {
	Current(ctx context.Context, sessionID string) (canopy.View, error)
	Submit(ctx context.Context, sessionID string, raw domain.RawInput) (canopy.Result, error)
	GoBack(ctx context.Context, sessionID string) (canopy.View, error)
	Reset(ctx context.Context, sessionID string) (canopy.View, error)
	Stages() []domain.Stage
}

var _ Engine = (*canopy.Engine)(nil)

// SessionArgs identifies the session a tool acts on.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// SubmitArgs carries one stage submission.
type SubmitArgs struct {
	SessionID string `json:"session_id"`
	Selection string `json:"selection,omitempty"`
	From      string `json:"from_value,omitempty"`
	To        string `json:"to_value,omitempty"`
}

// SubmitResponse pairs the submission outcome with the resulting view.
// Rejections (validation, evaluator timeout) are reported in Error rather
// than as tool failures so the caller can correct the input.
type SubmitResponse struct {
	Result canopy.Result `json:"result" jsonschema_description:"Outcome of the submission"`
	Error  string        `json:"error,omitempty" jsonschema_description:"Why the submission was rejected, if it was"`
	Code   string        `json:"code,omitempty" jsonschema_description:"Machine-readable rejection code"`
	View   canopy.View   `json:"view" jsonschema_description:"The session after the submission"`
}

// Server wraps the engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the logger. Under stdio it must not write to stdout.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("canopy-mcp", strings.TrimSpace(canopy.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on port until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sessionParam := mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier; unknown ids start a fresh session"))

	s.mcpServer.AddTool(mcp.NewTool("current_stage",
		mcp.WithDescription("Show the current stage of a session, its committed criteria and how many species remain."),
		sessionParam,
		mcp.WithOutputSchema[canopy.View](),
	), mcp.NewStructuredToolHandler(s.handleCurrent))

	s.mcpServer.AddTool(mcp.NewTool("submit",
		mcp.WithDescription("Submit the value for the current stage. Categorical stages take 'selection' (an option code); range stages take 'from_value' and 'to_value'."),
		sessionParam,
		mcp.WithString("selection", mcp.Description("Option code for a categorical stage, e.g. LF01")),
		mcp.WithString("from_value", mcp.Description("Lower bound for a range stage")),
		mcp.WithString("to_value", mcp.Description("Upper bound for a range stage")),
		mcp.WithOutputSchema[SubmitResponse](),
	), mcp.NewStructuredToolHandler(s.handleSubmit))

	s.mcpServer.AddTool(mcp.NewTool("go_back",
		mcp.WithDescription("Move the session back one stage. Species already filtered out stay filtered."),
		sessionParam,
		mcp.WithOutputSchema[canopy.View](),
	), mcp.NewStructuredToolHandler(s.handleGoBack))

	s.mcpServer.AddTool(mcp.NewTool("reset",
		mcp.WithDescription("Start the session over from the first stage with the full catalog."),
		sessionParam,
		mcp.WithOutputSchema[canopy.View](),
	), mcp.NewStructuredToolHandler(s.handleReset))

	s.mcpServer.AddTool(mcp.NewTool("list_stages",
		mcp.WithDescription("List every stage with its options or numeric bounds."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := json.Marshal(s.engine.Stages())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode stages: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleCurrent(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (canopy.View, error) {
	if args.SessionID == "" {
		return canopy.View{}, errors.New("session_id is required")
	}
	return s.engine.Current(ctx, args.SessionID)
}

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest, args SubmitArgs) (SubmitResponse, error) {
	if args.SessionID == "" {
		return SubmitResponse{}, errors.New("session_id is required")
	}

	raw := domain.RawInput{Selection: args.Selection, From: args.From, To: args.To}
	for _, field := range []*string{&raw.Selection, &raw.From, &raw.To} {
		clean, err := validator.SanitizeInput(*field)
		if err != nil {
			s.logger.Warn("MCP Submit: input rejected", "session_id", args.SessionID, "err", err)
			return SubmitResponse{}, fmt.Errorf("input rejected: %w", err)
		}
		*field = clean
	}

	res, err := s.engine.Submit(ctx, args.SessionID, raw)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("submit failed: %w", err)
	}
	view, err := s.engine.Current(ctx, args.SessionID)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("submit failed: %w", err)
	}

	resp := SubmitResponse{Result: res, View: view}
	if res.Error != nil {
		resp.Error = res.Error.Error()
		resp.Code = rejectionCode(res.Error)
	}
	return resp, nil
}

func (s *Server) handleGoBack(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (canopy.View, error) {
	if args.SessionID == "" {
		return canopy.View{}, errors.New("session_id is required")
	}
	return s.engine.GoBack(ctx, args.SessionID)
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (canopy.View, error) {
	if args.SessionID == "" {
		return canopy.View{}, errors.New("session_id is required")
	}
	return s.engine.Reset(ctx, args.SessionID)
}

func rejectionCode(err error) string {
	var (
		verr *domain.ValidationError
		ierr *domain.InvocationError
	)
	switch {
	case errors.As(err, &verr):
		return string(verr.Code)
	case errors.As(err, &ierr):
		return string(ierr.Code)
	case errors.Is(err, domain.ErrAlreadyComplete):
		return "AlreadyComplete"
	default:
		return ""
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(StagesURI, "Stage table",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.engine.Stages())
		if err != nil {
			return nil, fmt.Errorf("failed to encode stages: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      StagesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
