package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

func bboxProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Bounding box in pixels, origin top-left",
		"properties": map[string]interface{}{
			"x":      map[string]interface{}{"type": "number"},
			"y":      map[string]interface{}{"type": "number"},
			"width":  map[string]interface{}{"type": "number"},
			"height": map[string]interface{}{"type": "number"},
		},
		"required": []string{"x", "y", "width", "height"},
	}
}

func partsProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": "Detected parts as returned by carvision_detect",
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":         map[string]interface{}{"type": "string"},
				"name":       map[string]interface{}{"type": "string"},
				"confidence": map[string]interface{}{"type": "number"},
				"bbox":       bboxProperty(),
				"area":       map[string]interface{}{"type": "number"},
				"color":      map[string]interface{}{"type": "string", "description": "Hex color #RRGGBB"},
			},
			"required": []string{"name", "confidence", "bbox"},
		},
	}
}

func saveProperties(props map[string]interface{}) map[string]interface{} {
	props["save"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Save the annotated PNG to the configured output directory as detection_<timestamp>.png",
		"default":     false,
	}
	props["save_path"] = map[string]interface{}{
		"type":        "string",
		"description": "File or directory to save the annotated PNG to (implies save)",
	}
	return props
}

func partRefProperties(props map[string]interface{}) map[string]interface{} {
	props["bbox"] = bboxProperty()
	props["result_id"] = map[string]interface{}{
		"type":        "string",
		"description": "ID of a result in history; use with part_id instead of bbox",
	}
	props["part_id"] = map[string]interface{}{
		"type":        "string",
		"description": "ID of a part within result_id",
	}
	return props
}

func showLabelsProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": "Draw name and confidence label tabs above each box. Default true",
		"default":     true,
	}
}

func emptySchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Detection
		{
			Name:        "carvision_detect",
			Description: "Run a simulated car-part detection. With a path, the image's dimensions are used and the overlay is drawn on a copy of it; otherwise width and height are required. Results are recorded in history unless record is false.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": saveProperties(map[string]interface{}{
					"path": pathProperty(),
					"width": map[string]interface{}{
						"type":        "number",
						"description": "Image width in pixels (when no path is given)",
					},
					"height": map[string]interface{}{
						"type":        "number",
						"description": "Image height in pixels (when no path is given)",
					},
					"confidence_threshold": map[string]interface{}{
						"type":        "number",
						"description": "Minimum confidence. Defaults to the current setting. Values <= 0.7 keep every part, values > 1 keep none",
					},
					"show_labels": showLabelsProperty(),
					"record": map[string]interface{}{
						"type":        "boolean",
						"description": "Add the result to history. Default true",
						"default":     true,
					},
				}),
			},
		},
		{
			Name:        "carvision_render",
			Description: "Draw detection overlays (boxes, corner markers, optional label tabs) onto a copy of an image and return it as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": saveProperties(map[string]interface{}{
					"path":  pathProperty(),
					"parts": partsProperty(),
					"result_id": map[string]interface{}{
						"type":        "string",
						"description": "Render the parts of this history result instead of parts",
					},
					"show_labels": showLabelsProperty(),
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "carvision_metrics",
			Description: "Compute coverage, average confidence and per-part counts for a list of parts.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"parts": partsProperty(),
					"result_id": map[string]interface{}{
						"type":        "string",
						"description": "Use the parts and dimensions of this history result",
					},
					"image_width":  map[string]interface{}{"type": "number"},
					"image_height": map[string]interface{}{"type": "number"},
				},
			},
		},

		// Part inspection
		{
			Name:        "carvision_crop_part",
			Description: "Crop a detected part's bounding box from an image and return it as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": partRefProperties(map[string]interface{}{
					"path": pathProperty(),
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor (e.g., 2.0 to double size). Default 1.0",
						"default":     1.0,
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "carvision_part_colors",
			Description: "Extract the dominant colors inside a detected part's bounding box and compare them with the part's overlay color.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": partRefProperties(map[string]interface{}{
					"path": pathProperty(),
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of colors to return. Default 5",
						"default":     5,
					},
				}),
				"required": []string{"path"},
			},
		},

		// History and settings
		{
			Name:        "carvision_history",
			Description: "List recent detection results, newest first, with running statistics.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of results. 0 returns all retained results",
					},
					"include_images": map[string]interface{}{
						"type":        "boolean",
						"description": "Include stored image snapshots. Default false",
						"default":     false,
					},
				},
			},
		},
		{
			Name:        "carvision_dashboard",
			Description: "Summary statistics, the five most recent analyses and the top five detected parts.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"chart": map[string]interface{}{
						"type":        "boolean",
						"description": "Also render the part distribution as a PNG bar chart",
						"default":     false,
					},
				},
			},
		},
		{
			Name:        "carvision_settings",
			Description: "Get, update or reset detection settings (confidence threshold, real-time mode, auto-save).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"action": map[string]interface{}{
						"type":    "string",
						"enum":    []string{"get", "update", "reset"},
						"default": "get",
					},
					"confidence_threshold": map[string]interface{}{
						"type":    "number",
						"minimum": 0,
						"maximum": 1,
					},
					"real_time_mode": map[string]interface{}{
						"type":        "boolean",
						"description": "Live polling every 1s when true, every 3s otherwise",
					},
					"auto_save": map[string]interface{}{
						"type":        "boolean",
						"description": "Record every live result in history",
					},
				},
			},
		},
		{
			Name:        "carvision_clear_history",
			Description: "Remove all results from history and reset statistics.",
			InputSchema: emptySchema(),
		},

		// Live detection
		{
			Name:        "carvision_live_start",
			Description: "Start live detection on an image file used as the camera frame. Frames are sent as notifications/carvision/live and to websocket viewers.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":        pathProperty(),
					"show_labels": showLabelsProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "carvision_live_stop",
			Description: "Stop live detection, cancelling in-flight analyses.",
			InputSchema: emptySchema(),
		},
		{
			Name:        "carvision_live_status",
			Description: "Live detection state, counters and the latest result.",
			InputSchema: emptySchema(),
		},
		{
			Name:        "carvision_live_capture",
			Description: "Record the latest live frame, with its image snapshot, in history.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": saveProperties(map[string]interface{}{}),
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
