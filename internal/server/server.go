package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/carvision-mcp/internal/detection"
	"github.com/ironsheep/carvision-mcp/internal/feed"
	"github.com/ironsheep/carvision-mcp/internal/history"
	"github.com/ironsheep/carvision-mcp/internal/imaging"
	"github.com/ironsheep/carvision-mcp/internal/live"
	"github.com/ironsheep/carvision-mcp/internal/metrics"
	"github.com/ironsheep/carvision-mcp/internal/overlay"
)

// ServerName and ServerVersion are reported during initialize.
const (
	ServerName    = "carvision-mcp"
	ServerVersion = "0.2.0"
)

// Server handles MCP protocol communication
type Server struct {
	cache     *imaging.ImageCache
	synth     *detection.Synthesizer
	renderer  *overlay.Renderer
	store     *history.Store
	logger    *zap.Logger
	recorder  *metrics.Recorder
	hub       *feed.Hub
	outputDir string
	now       func() time.Time

	// liveInterval overrides the settings-derived polling interval.
	liveInterval time.Duration

	outMu sync.Mutex
	out   io.Writer

	liveMu   sync.Mutex
	poller   *live.Poller
	livePath string
	baseCtx  context.Context
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("%w: nil logger", detection.ErrInvalidInput)
		}
		s.logger = logger
		return nil
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(s *Server) error {
		s.recorder = r
		return nil
	}
}

// WithHub broadcasts live frames to websocket viewers.
func WithHub(h *feed.Hub) Option {
	return func(s *Server) error {
		s.hub = h
		return nil
	}
}

// WithStore replaces the default history store.
func WithStore(store *history.Store) Option {
	return func(s *Server) error {
		if store == nil {
			return fmt.Errorf("%w: nil store", detection.ErrInvalidInput)
		}
		s.store = store
		return nil
	}
}

// WithSynthesizer replaces the default synthesizer. The renderer follows
// its catalog.
func WithSynthesizer(synth *detection.Synthesizer) Option {
	return func(s *Server) error {
		if synth == nil {
			return fmt.Errorf("%w: nil synthesizer", detection.ErrInvalidInput)
		}
		s.synth = synth
		return nil
	}
}

// WithOutputDir sets where annotated images are saved by default.
func WithOutputDir(dir string) Option {
	return func(s *Server) error {
		s.outputDir = dir
		return nil
	}
}

// WithLiveInterval fixes the live polling interval.
func WithLiveInterval(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("%w: live interval must be positive", detection.ErrInvalidInput)
		}
		s.liveInterval = d
		return nil
	}
}

// WithClock sets the clock used for saved file names.
func WithClock(now func() time.Time) Option {
	return func(s *Server) error {
		if now == nil {
			return fmt.Errorf("%w: nil clock", detection.ErrInvalidInput)
		}
		s.now = now
		return nil
	}
}

// New creates a new MCP server instance
func New(opts ...Option) (*Server, error) {
	s := &Server{
		cache:     imaging.NewImageCache(),
		logger:    zap.NewNop(),
		outputDir: ".",
		now:       time.Now,
		out:       io.Discard,
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.synth == nil {
		synth, err := detection.NewSynthesizer()
		if err != nil {
			return nil, err
		}
		s.synth = synth
	}
	renderer, err := overlay.NewRenderer(s.synth.Catalog())
	if err != nil {
		return nil, err
	}
	s.renderer = renderer

	if s.store == nil {
		store, err := history.NewStore(history.DefaultLimit, history.DefaultSettings())
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	return s, nil
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads line-delimited JSON-RPC requests from r and writes responses
// and notifications to w until r is exhausted or ctx is done.
//
// Tool calls run in their own goroutines, so a detection waiting out its
// delay does not hold up other requests; responses may arrive out of
// request order. Serve waits for in-flight calls, then stops any live
// session, before returning.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.outMu.Lock()
	s.out = w
	s.outMu.Unlock()
	s.liveMu.Lock()
	s.baseCtx = ctx
	s.liveMu.Unlock()
	var calls sync.WaitGroup
	defer s.cache.Clear()
	defer s.stopLive()
	defer calls.Wait()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		// Increase buffer size for large requests
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 16*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("scanner error: %w", err)
				}
				return nil
			}
			if len(line) == 0 {
				continue
			}

			var req MCPRequest
			if err := json.Unmarshal(line, &req); err != nil {
				s.logger.Warn("failed to parse request", zap.Error(err))
				s.write(&MCPResponse{
					JSONRPC: "2.0",
					Error:   &MCPError{Code: -32700, Message: "Parse error", Data: err.Error()},
				})
				continue
			}

			if req.Method == "tools/call" {
				calls.Add(1)
				go func() {
					defer calls.Done()
					if resp := s.handleRequest(ctx, &req); resp != nil {
						s.write(resp)
					}
				}()
				continue
			}
			if resp := s.handleRequest(ctx, &req); resp != nil {
				s.write(resp)
			}
		}
	}
}

// write encodes one message onto the output. Responses and live
// notifications come from different goroutines.
func (s *Server) write(v interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := json.NewEncoder(s.out).Encode(v); err != nil {
		s.logger.Error("failed to encode message", zap.Error(err))
	}
}

// notify sends a JSON-RPC notification.
func (s *Server) notify(method string, params interface{}) {
	s.write(&MCPNotification{JSONRPC: "2.0", Method: method, Params: params})
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		if req.ID == nil {
			// Unknown notification, nothing to answer.
			return nil
		}
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    ServerName,
				"version": ServerVersion,
			},
		},
	}
}
