// Package server implements the MCP (Model Context Protocol) server for
// simulated car-part detection.
//
// The server speaks JSON-RPC 2.0 over stdio, one message per line. Tool
// results are returned as a single text content item holding JSON.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Detection:
//   - carvision_detect: Synthesize a detection result, optionally drawn on an image
//   - carvision_render: Draw overlays for given parts or a stored result
//   - carvision_metrics: Coverage, average confidence and per-part counts
//
// Part Inspection:
//   - carvision_crop_part: Crop a part's bounding box
//   - carvision_part_colors: Dominant colors inside a part's bounding box
//
// History and Settings:
//   - carvision_history: Recent results and running statistics
//   - carvision_dashboard: Summary, recent analyses and top parts
//   - carvision_settings: Get, update or reset settings
//   - carvision_clear_history: Drop all results
//
// Live Detection:
//   - carvision_live_start, carvision_live_stop, carvision_live_status
//   - carvision_live_capture: Record the latest live frame in history
//
// While live detection runs, every delivered frame is sent to the client as
// a notifications/carvision/live notification and, when a feed hub is
// configured, to websocket viewers with the annotated image attached.
//
// # Error Handling
//
//   - -32700: the line was not valid JSON
//   - -32601: unknown method
//   - -32602: undecodable params or arguments, unknown tool
//   - -32000: the tool ran and failed; data holds the error text
//
// # Usage
//
//	srv, err := server.New(server.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx)
package server
