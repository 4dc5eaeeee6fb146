package agent

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/formpilot/kit"
)

// RegisterMCP registers the formpilot tools on an MCP server.
func (a *Agent) RegisterMCP(srv *mcp.Server) {
	str := func(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "formpilot_open",
		Description: "Open a URL in the browser. The page becomes the target of fill, record and play.",
		InputSchema: kit.InputSchema(map[string]any{"url": str("Page URL")}, "url"),
	}, a.openEndpoint(), kit.DecodeArgs[OpenRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "formpilot_fill",
		Description: "Fill the form fields of the page from the profile. Returns counts and the fields that were skipped.",
		InputSchema: kit.InputSchema(map[string]any{"url": str("Optional URL to open first; defaults to the current page")}),
	}, a.fillEndpoint(), kit.DecodeArgs[FillRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "formpilot_match",
		Description: "Score one form field against the profile and return the best key.",
		InputSchema: kit.InputSchema(map[string]any{
			"field": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"host":  str("Site hostname"),
					"tag":   str("input, select or textarea"),
					"type":  str("Input type"),
					"name":  str("name attribute"),
					"id":    str("id attribute"),
					"label": str("Label text"),
				},
			},
		}, "field"),
	}, a.matchEndpoint(), kit.DecodeArgs[MatchRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "formpilot_record_start",
		Description: "Start recording user interactions and network calls on the current page as a named macro.",
		InputSchema: kit.InputSchema(map[string]any{"name": str("Macro name")}, "name"),
	}, a.recordStartEndpoint(), kit.DecodeArgs[RecordStartRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "formpilot_record_stop",
		Description: "Stop the active recording and save it. Empty recordings are not saved.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, a.recordStopEndpoint(), kit.DecodeArgs[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "formpilot_play",
		Description: "Replay a saved macro on the current page (or url). Unresolved steps are skipped and reported.",
		InputSchema: kit.InputSchema(map[string]any{
			"name":    str("Macro name"),
			"url":     str("Optional URL to open first"),
			"instant": map[string]any{"type": "boolean", "description": "Replay without the recorded delays"},
		}, "name"),
	}, a.playEndpoint(), kit.DecodeArgs[PlayRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "formpilot_macros",
		Description: "List, delete or rename saved macros, or show the replay history of one.",
		InputSchema: kit.InputSchema(map[string]any{
			"action": map[string]any{"type": "string", "enum": []any{"list", "delete", "rename", "runs"}, "description": "Default list"},
			"name":   str("Macro name for delete, rename and runs"),
			"to":     str("New name for rename"),
			"limit":  map[string]any{"type": "integer", "description": "Runs to inspect (default 20)"},
		}),
	}, a.macrosEndpoint(), kit.DecodeArgs[MacrosRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "formpilot_train",
		Description: "Learn site-specific field mappings from the skipped fields and refill the current page.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, a.trainEndpoint(), kit.DecodeArgs[struct{}]())
}
