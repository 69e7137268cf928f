package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// saveSessionTool returns the tool definition for save_session
func saveSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "save_session",
		Description: "Persist a browsing session with its tabs and metadata",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session": map[string]interface{}{
					"type":        "object",
					"description": "Session object (id, tag, tabs, window_ids, metadata)",
				},
			},
			Required: []string{"session"},
		},
	}
}

// getSessionTool returns the tool definition for get_session
func getSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_session",
		Description: "Load a stored session by ID",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session identifier",
				},
			},
			Required: []string{"session_id"},
		},
	}
}

// querySessionsTool returns the tool definition for query_sessions
func querySessionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_sessions",
		Description: "Query stored sessions by tag, domain, date range, or free text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tag": map[string]interface{}{
					"type":        "string",
					"description": "Exact session tag to match",
				},
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Match sessions containing at least one tab on this domain",
				},
				"search_text": map[string]interface{}{
					"type":        "string",
					"description": "Case-insensitive substring over tags, notes, titles, and URLs",
				},
				"created_after": map[string]interface{}{
					"type":        "string",
					"description": "RFC 3339 lower bound on creation time (inclusive)",
				},
				"created_before": map[string]interface{}{
					"type":        "string",
					"description": "RFC 3339 upper bound on creation time (inclusive)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (1-1000)",
					"default":     100,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of matching results to skip",
					"default":     0,
				},
				"order": map[string]interface{}{
					"type":        "string",
					"description": "Result ordering over the planned index",
					"enum":        []string{"asc", "desc"},
					"default":     "desc",
				},
			},
		},
	}
}

// deleteSessionTool returns the tool definition for delete_session
func deleteSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_session",
		Description: "Delete a session together with its tabs, navigation events, and boundaries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session identifier",
				},
			},
			Required: []string{"session_id"},
		},
	}
}

// saveTabTool returns the tool definition for save_tab
func saveTabTool() mcp.Tool {
	return mcp.Tool{
		Name:        "save_tab",
		Description: "Persist a tab record under a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tab": map[string]interface{}{
					"type":        "object",
					"description": "Tab object (id, url, title, window_id, timings)",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Owning session identifier",
				},
			},
			Required: []string{"tab", "session_id"},
		},
	}
}

// queryTabsTool returns the tool definition for query_tabs
func queryTabsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_tabs",
		Description: "Query stored tabs by session, window, domain, or date range",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to one session",
				},
				"window_id": map[string]interface{}{
					"type":        "integer",
					"description": "Restrict to one window",
				},
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to tabs on this domain",
				},
				"created_after": map[string]interface{}{
					"type":        "string",
					"description": "RFC 3339 lower bound on creation time (inclusive)",
				},
				"created_before": map[string]interface{}{
					"type":        "string",
					"description": "RFC 3339 upper bound on creation time (inclusive)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (1-1000)",
					"default":     100,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of matching results to skip",
					"default":     0,
				},
			},
		},
	}
}

// recordNavigationTool returns the tool definition for record_navigation
func recordNavigationTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_navigation",
		Description: "Record one or more navigation events for a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"events": map[string]interface{}{
					"type":        "array",
					"description": "Navigation events (tab_id, url, referrer, timestamp, transition_type)",
					"items": map[string]interface{}{
						"type": "object",
					},
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Owning session identifier",
				},
			},
			Required: []string{"events", "session_id"},
		},
	}
}

// getStatsTool returns the tool definition for get_stats
func getStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_stats",
		Description: "Report record counts, storage size, and integrity status",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// validateStoreTool returns the tool definition for validate_store
func validateStoreTool() mcp.Tool {
	return mcp.Tool{
		Name:        "validate_store",
		Description: "Run a full integrity sweep, optionally auto-correcting repairable errors",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"auto_correct": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, apply auto-corrections and persist them",
					"default":     false,
				},
			},
		},
	}
}

// createBackupTool returns the tool definition for create_backup
func createBackupTool() mcp.Tool {
	return mcp.Tool{
		Name:        "create_backup",
		Description: "Snapshot the full record set into the backup store",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// listBackupsTool returns the tool definition for list_backups
func listBackupsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_backups",
		Description: "List stored backup manifests, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// restoreBackupTool returns the tool definition for restore_backup
func restoreBackupTool() mcp.Tool {
	return mcp.Tool{
		Name:        "restore_backup",
		Description: "Restore a backup by ID, optionally writing its records back into the store",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"backup_id": map[string]interface{}{
					"type":        "string",
					"description": "Backup identifier from list_backups",
				},
				"reingest": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, write the backup's records back into the store",
					"default":     false,
				},
			},
			Required: []string{"backup_id"},
		},
	}
}

// migrationStatusTool returns the tool definition for migration_status
func migrationStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "migration_status",
		Description: "Report the store's schema version and pending migration steps",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
