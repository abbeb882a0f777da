package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/carvision-mcp/internal/dashboard"
	"github.com/ironsheep/carvision-mcp/internal/detection"
	"github.com/ironsheep/carvision-mcp/internal/history"
	"github.com/ironsheep/carvision-mcp/internal/imaging"
	"github.com/ironsheep/carvision-mcp/internal/live"
	"github.com/ironsheep/carvision-mcp/internal/metrics"
	"github.com/ironsheep/carvision-mcp/internal/overlay"
)

// LiveNotification is the JSON-RPC method used for live frames.
const LiveNotification = "notifications/carvision/live"

// errInvalidArguments marks tool arguments that could not be decoded.
var errInvalidArguments = errors.New("invalid arguments")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "carvision_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Undecodable arguments return -32602; other tool errors return -32000
// with the error text in data.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed",
			zap.String("tool", params.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		if errors.Is(err, errInvalidArguments) {
			return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	s.logger.Debug("tool succeeded",
		zap.String("tool", params.Name),
		zap.Duration("elapsed", time.Since(start)))

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Detection
	case "carvision_detect":
		return s.handleDetect(ctx, args)
	case "carvision_render":
		return s.handleRender(args)
	case "carvision_metrics":
		return s.handleMetrics(args)

	// Part inspection
	case "carvision_crop_part":
		return s.handleCropPart(args)
	case "carvision_part_colors":
		return s.handlePartColors(args)

	// History and settings
	case "carvision_history":
		return s.handleHistory(args)
	case "carvision_dashboard":
		return s.handleDashboard(args)
	case "carvision_settings":
		return s.handleSettings(args)
	case "carvision_clear_history":
		return s.handleClearHistory()

	// Live detection
	case "carvision_live_start":
		return s.handleLiveStart(args)
	case "carvision_live_stop":
		return s.handleLiveStop()
	case "carvision_live_status":
		return s.handleLiveStatus()
	case "carvision_live_capture":
		return s.handleLiveCapture(args)

	default:
		return nil, fmt.Errorf("%w: unknown tool: %s", errInvalidArguments, name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments. Missing arguments decode as {}.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArguments, err)
	}
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// === Detection Handlers ===

type detectArgs struct {
	Path                string   `json:"path"`
	Width               float64  `json:"width"`
	Height              float64  `json:"height"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	ShowLabels          *bool    `json:"show_labels"`
	Save                bool     `json:"save"`
	SavePath            string   `json:"save_path"`
	Record              *bool    `json:"record"`
}

// DetectResponse is the carvision_detect result.
type DetectResponse struct {
	Result    detection.DetectionResult `json:"result"`
	Annotated *imaging.AnnotatedImage   `json:"annotated,omitempty"`
	Recorded  bool                      `json:"recorded"`
}

func (s *Server) handleDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	// Out-of-range thresholds degrade: <= 0.7 keeps every candidate, > 1
	// keeps none.
	threshold := s.store.Settings().ConfidenceThreshold
	if a.ConfidenceThreshold != nil {
		threshold = *a.ConfidenceThreshold
		if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
			return nil, fmt.Errorf("%w: confidence_threshold %v is not a number", detection.ErrInvalidInput, threshold)
		}
	}

	width, height := a.Width, a.Height
	var source *overlayInput
	if a.Path != "" {
		in, err := s.loadSurface(a.Path)
		if err != nil {
			return nil, err
		}
		source = in
		width, height = in.width, in.height
	} else if a.Save || a.SavePath != "" {
		return nil, fmt.Errorf("%w: saving requires a path to draw on", detection.ErrInvalidInput)
	}

	s.store.BeginProcessing()
	result, err := s.synth.Synthesize(ctx, width, height, threshold)
	s.store.EndProcessing()
	if err != nil {
		status := metrics.StatusError
		if ctx.Err() != nil {
			status = metrics.StatusCancelled
		}
		s.recorder.RecordDetection("detect", status, 0, nil, 0)
		return nil, err
	}
	s.recordDetection("detect", result)

	resp := &DetectResponse{}
	if source != nil {
		// History keeps the unannotated frame, as an upload would.
		snapshot, err := imaging.EncodeBase64PNG(source.original)
		if err != nil {
			return nil, err
		}
		annotated, err := s.renderAndEncode(source, result.Parts, boolOr(a.ShowLabels, true), a.Save, a.SavePath)
		if err != nil {
			return nil, err
		}
		resp.Annotated = annotated
		*result = result.WithImageData("data:image/png;base64," + snapshot)
	}

	if boolOr(a.Record, true) {
		s.store.Add(*result)
		s.recorder.SetHistorySize(s.store.Len())
		resp.Recorded = true
	}

	resp.Result = *result
	// The snapshot lives in history; the response already carries the
	// annotated image.
	resp.Result.ImageData = ""
	return resp, nil
}

type renderArgs struct {
	Path       string                   `json:"path"`
	Parts      []detection.DetectedPart `json:"parts"`
	ResultID   string                   `json:"result_id"`
	ShowLabels *bool                    `json:"show_labels"`
	Save       bool                     `json:"save"`
	SavePath   string                   `json:"save_path"`
}

func (s *Server) handleRender(args json.RawMessage) (interface{}, error) {
	var a renderArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("%w: path is required", detection.ErrInvalidInput)
	}

	parts := a.Parts
	if a.ResultID != "" {
		r, ok := s.store.Get(a.ResultID)
		if !ok {
			return nil, fmt.Errorf("%w: no result %q in history", detection.ErrInvalidInput, a.ResultID)
		}
		parts = r.Parts
	}

	in, err := s.loadSurface(a.Path)
	if err != nil {
		return nil, err
	}
	return s.renderAndEncode(in, parts, boolOr(a.ShowLabels, true), a.Save, a.SavePath)
}

type metricsArgs struct {
	Parts       []detection.DetectedPart `json:"parts"`
	ResultID    string                   `json:"result_id"`
	ImageWidth  float64                  `json:"image_width"`
	ImageHeight float64                  `json:"image_height"`
}

func (s *Server) handleMetrics(args json.RawMessage) (interface{}, error) {
	var a metricsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	parts, w, h := a.Parts, a.ImageWidth, a.ImageHeight
	if a.ResultID != "" {
		r, ok := s.store.Get(a.ResultID)
		if !ok {
			return nil, fmt.Errorf("%w: no result %q in history", detection.ErrInvalidInput, a.ResultID)
		}
		parts, w, h = r.Parts, r.ImageWidth, r.ImageHeight
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: image_width and image_height must be positive", detection.ErrInvalidInput)
	}
	return detection.CalculateMetrics(parts, w*h), nil
}

// === Part Inspection Handlers ===

type partArgs struct {
	Path     string          `json:"path"`
	BBox     *detection.BBox `json:"bbox"`
	ResultID string          `json:"result_id"`
	PartID   string          `json:"part_id"`
}

// resolvePart finds the part a tool should look at: an explicit bbox, or a
// part of a result in history.
func (s *Server) resolvePart(a partArgs) (detection.DetectedPart, error) {
	if a.ResultID != "" {
		r, ok := s.store.Get(a.ResultID)
		if !ok {
			return detection.DetectedPart{}, fmt.Errorf("%w: no result %q in history", detection.ErrInvalidInput, a.ResultID)
		}
		for _, p := range r.Parts {
			if p.ID == a.PartID {
				return p, nil
			}
		}
		return detection.DetectedPart{}, fmt.Errorf("%w: result %q has no part %q", detection.ErrInvalidInput, a.ResultID, a.PartID)
	}
	if a.BBox == nil {
		return detection.DetectedPart{}, fmt.Errorf("%w: bbox or result_id and part_id are required", detection.ErrInvalidInput)
	}
	return detection.DetectedPart{Name: "region", BBox: *a.BBox}, nil
}

type cropPartArgs struct {
	partArgs
	Scale float64 `json:"scale"`
}

func (s *Server) handleCropPart(args json.RawMessage) (interface{}, error) {
	var a cropPartArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	part, err := s.resolvePart(a.partArgs)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.CropPart(img, part.BBox, a.Scale)
}

type partColorsArgs struct {
	partArgs
	Count int `json:"count"`
}

func (s *Server) handlePartColors(args json.RawMessage) (interface{}, error) {
	var a partColorsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Count == 0 {
		a.Count = 5
	}
	part, err := s.resolvePart(a.partArgs)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.PartColors(img, part, a.Count)
}

// === History Handlers ===

type historyArgs struct {
	Limit         int  `json:"limit"`
	IncludeImages bool `json:"include_images"`
}

// HistoryResponse is the carvision_history result.
type HistoryResponse struct {
	Results  []detection.DetectionResult `json:"results"`
	Stats    history.Stats               `json:"stats"`
	Retained int                         `json:"retained"`
}

func (s *Server) handleHistory(args json.RawMessage) (interface{}, error) {
	var a historyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", detection.ErrInvalidInput)
	}
	results := s.store.Recent(a.Limit)
	if !a.IncludeImages {
		for i := range results {
			results[i].ImageData = ""
		}
	}
	return &HistoryResponse{
		Results:  results,
		Stats:    s.store.Stats(),
		Retained: s.store.Len(),
	}, nil
}

type dashboardArgs struct {
	Chart bool `json:"chart"`
}

func (s *Server) handleDashboard(args json.RawMessage) (interface{}, error) {
	var a dashboardArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	summary := dashboard.Summarize(s.store)
	if a.Chart && len(summary.Distribution) > 0 {
		chart, err := dashboard.RenderChart(summary.Distribution, s.synth.Catalog())
		if err != nil {
			return nil, err
		}
		summary.Chart = chart
	}
	return summary, nil
}

type settingsArgs struct {
	Action              string   `json:"action"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	RealTimeMode        *bool    `json:"real_time_mode"`
	AutoSave            *bool    `json:"auto_save"`
}

func (s *Server) handleSettings(args json.RawMessage) (interface{}, error) {
	var a settingsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	switch a.Action {
	case "", "get":
		return s.store.Settings(), nil
	case "update":
		patch := history.SettingsPatch{
			ConfidenceThreshold: a.ConfidenceThreshold,
			RealTimeMode:        a.RealTimeMode,
			AutoSave:            a.AutoSave,
		}
		if patch.Empty() {
			return nil, fmt.Errorf("%w: update needs at least one setting", detection.ErrInvalidInput)
		}
		updated, err := s.store.UpdateSettings(patch)
		if err != nil {
			return nil, err
		}
		s.logger.Info("settings updated",
			zap.Float64("confidence_threshold", updated.ConfidenceThreshold),
			zap.Bool("real_time_mode", updated.RealTimeMode),
			zap.Bool("auto_save", updated.AutoSave))
		return updated, nil
	case "reset":
		return s.store.ResetSettings(), nil
	default:
		return nil, fmt.Errorf("%w: unknown settings action %q (want get, update or reset)", errInvalidArguments, a.Action)
	}
}

func (s *Server) handleClearHistory() (interface{}, error) {
	cleared := s.store.Len()
	s.store.Clear()
	s.recorder.SetHistorySize(0)
	s.logger.Info("history cleared", zap.Int("results", cleared))
	return map[string]interface{}{"cleared": cleared}, nil
}

// === Live Detection Handlers ===

type liveStartArgs struct {
	Path       string `json:"path"`
	ShowLabels *bool  `json:"show_labels"`
}

// LiveStatusResponse is the carvision_live_status result.
type LiveStatusResponse struct {
	live.Status
	Path   string                     `json:"path,omitempty"`
	Latest *detection.DetectionResult `json:"latest,omitempty"`
}

func (s *Server) handleLiveStart(args json.RawMessage) (interface{}, error) {
	var a liveStartArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("%w: path is required", detection.ErrInvalidInput)
	}
	// Fail fast on unreadable frames instead of on the first tick.
	dims, err := imaging.GetDimensions(s.cache, a.Path)
	if err != nil {
		return nil, err
	}

	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	if s.poller != nil && s.poller.Running() {
		return nil, live.ErrAlreadyRunning
	}

	opts := []live.Option{
		live.WithSink(s.publishFrame),
		live.WithLogger(s.logger.With(zap.String("component", "live"))),
		live.WithRecorder(s.recorder),
		live.WithLabels(boolOr(a.ShowLabels, true)),
		live.WithSourceLabel(a.Path),
	}
	if s.liveInterval > 0 {
		opts = append(opts, live.WithInterval(s.liveInterval))
	}
	poller, err := live.NewPoller(s.synth, s.renderer, s.store, live.NewFileSource(s.cache, a.Path), opts...)
	if err != nil {
		return nil, err
	}
	if err := poller.Start(s.baseCtx); err != nil {
		return nil, err
	}
	if s.livePath != "" && s.livePath != a.Path {
		s.cache.Evict(s.livePath)
	}
	s.poller = poller
	s.livePath = a.Path
	s.logger.Info("live detection source",
		zap.String("path", a.Path),
		zap.Int("width", dims.Width),
		zap.Int("height", dims.Height))
	return poller.Status(), nil
}

func (s *Server) handleLiveStop() (interface{}, error) {
	s.liveMu.Lock()
	poller, path := s.poller, s.livePath
	s.liveMu.Unlock()
	if poller == nil {
		return nil, live.ErrNotRunning
	}
	if err := poller.Stop(); err != nil {
		return nil, err
	}
	s.cache.Evict(path)
	return poller.Status(), nil
}

func (s *Server) handleLiveStatus() (interface{}, error) {
	s.liveMu.Lock()
	poller, path := s.poller, s.livePath
	s.liveMu.Unlock()
	if poller == nil {
		return &LiveStatusResponse{}, nil
	}
	resp := &LiveStatusResponse{Status: poller.Status(), Path: path}
	if frame, err := poller.Latest(); err == nil {
		resp.Latest = &frame.Result
	}
	return resp, nil
}

type liveCaptureArgs struct {
	Save     bool   `json:"save"`
	SavePath string `json:"save_path"`
}

// CaptureResponse is the carvision_live_capture result.
type CaptureResponse struct {
	Seq       uint64                    `json:"seq"`
	Result    detection.DetectionResult `json:"result"`
	SavedPath string                    `json:"saved_path,omitempty"`
}

func (s *Server) handleLiveCapture(args json.RawMessage) (interface{}, error) {
	var a liveCaptureArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	s.liveMu.Lock()
	poller := s.poller
	s.liveMu.Unlock()
	if poller == nil {
		return nil, live.ErrNoFrame
	}

	frame, err := poller.Capture()
	if err != nil {
		return nil, err
	}
	resp := &CaptureResponse{Seq: frame.Seq, Result: frame.Result}
	resp.Result.ImageData = ""
	if a.Save || a.SavePath != "" {
		path, err := imaging.SavePNG(s.saveTarget(a.SavePath), frame.Image, s.now())
		if err != nil {
			return nil, err
		}
		resp.SavedPath = path
	}
	return resp, nil
}

// LiveFrameMessage is sent for every delivered live frame, as the params
// of a notification and as a websocket message.
type LiveFrameMessage struct {
	Type        string                    `json:"type"`
	Seq         uint64                    `json:"seq"`
	Result      detection.DetectionResult `json:"result"`
	ImageBase64 string                    `json:"image_base64,omitempty"`
}

// publishFrame is the live sink: notify the MCP client and push the frame
// to websocket viewers.
func (s *Server) publishFrame(frame live.Frame) {
	msg := LiveFrameMessage{Type: "live_frame", Seq: frame.Seq, Result: frame.Result}
	s.notify(LiveNotification, msg)

	if s.hub == nil {
		return
	}
	encoded, err := imaging.EncodeBase64PNG(frame.Image)
	if err != nil {
		s.logger.Warn("failed to encode live frame", zap.Error(err))
		return
	}
	msg.ImageBase64 = encoded
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal live frame", zap.Error(err))
		return
	}
	if !s.hub.Broadcast(payload) {
		s.logger.Debug("feed queue full, frame dropped", zap.Uint64("seq", frame.Seq))
	}
}

// stopLive stops any running live session.
func (s *Server) stopLive() {
	s.liveMu.Lock()
	poller := s.poller
	s.liveMu.Unlock()
	if poller != nil && poller.Running() {
		_ = poller.Stop()
	}
}

// === Shared Helpers ===

// overlayInput is a loaded image ready to be drawn on.
type overlayInput struct {
	path          string
	original      image.Image
	width, height float64
}

func (s *Server) loadSurface(path string) (*overlayInput, error) {
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &overlayInput{
		path:     path,
		original: img,
		width:    float64(b.Dx()),
		height:   float64(b.Dy()),
	}, nil
}

// renderAndEncode draws parts onto a copy of the input and returns it as
// base64 PNG, also saving it when asked.
func (s *Server) renderAndEncode(in *overlayInput, parts []detection.DetectedPart, showLabels, save bool, savePath string) (*imaging.AnnotatedImage, error) {
	surface, err := overlay.Acquire(in.original)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := s.renderer.Render(surface, parts, showLabels); err != nil {
		s.recorder.RecordRender(metrics.StatusError, time.Since(start))
		return nil, err
	}
	s.recorder.RecordRender(metrics.StatusOK, time.Since(start))

	annotated, err := imaging.Annotate(surface)
	if err != nil {
		return nil, err
	}
	if save || savePath != "" {
		path, err := imaging.SavePNG(s.saveTarget(savePath), surface, s.now())
		if err != nil {
			return nil, err
		}
		annotated.SavedPath = path
	}
	return annotated, nil
}

func (s *Server) saveTarget(savePath string) string {
	if savePath != "" {
		return savePath
	}
	return s.outputDir
}

func (s *Server) recordDetection(source string, result *detection.DetectionResult) {
	names := make([]string, len(result.Parts))
	for i, p := range result.Parts {
		names[i] = p.Name
	}
	s.recorder.RecordDetection(source, metrics.StatusOK,
		time.Duration(result.ProcessingTime)*time.Millisecond,
		names, result.Candidates-result.TotalParts)
}
