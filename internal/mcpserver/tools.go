package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tabvault/tabvault/internal/integrity"
	"github.com/tabvault/tabvault/internal/storage"
	"github.com/tabvault/tabvault/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeRecordNotFound  = -32001 // Requested record does not exist
	ErrorCodeBackupNotFound  = -32002 // Requested backup does not exist
	ErrorCodeValidationError = -32003 // Record failed shape validation
)

// handleSaveSession handles the save_session tool invocation
func (s *Server) handleSaveSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	var sess types.Session
	if err := decodeArg(args, "session", &sess); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid session object", map[string]interface{}{
			"param":  "session",
			"reason": err.Error(),
		})
	}

	st, err := s.vault.SaveSession(ctx, &sess)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "save failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"saved":      true,
		"session_id": st.ID,
		"version":    st.Version,
		"checksum":   st.Checksum,
		"size_bytes": st.Size,
		"compressed": st.Compressed,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetSession handles the get_session tool invocation
func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["session_id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "session_id parameter is required", map[string]interface{}{
			"param":  "session_id",
			"reason": "missing or empty",
		})
	}

	st, err := s.vault.GetSession(ctx, id)
	if err == storage.ErrNotFound {
		return nil, newMCPError(ErrorCodeRecordNotFound, "session not found", map[string]interface{}{
			"session_id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "load failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(marshalJSON(st)), nil
}

// handleQuerySessions handles the query_sessions tool invocation
func (s *Server) handleQuerySessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	filter := storage.SessionFilter{
		Tag:        getStringDefault(args, "tag", ""),
		Domain:     getStringDefault(args, "domain", ""),
		SearchText: getStringDefault(args, "search_text", ""),
	}
	var err error
	if filter.CreatedAfter, err = parseTimeArg(args, "created_after"); err != nil {
		return nil, err
	}
	if filter.CreatedBefore, err = parseTimeArg(args, "created_before"); err != nil {
		return nil, err
	}
	page, err := parsePage(args)
	if err != nil {
		return nil, err
	}

	sessions, err := s.vault.QuerySessions(ctx, filter, page)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "query failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteSession handles the delete_session tool invocation
func (s *Server) handleDeleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["session_id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "session_id parameter is required", map[string]interface{}{
			"param":  "session_id",
			"reason": "missing or empty",
		})
	}

	err := s.vault.DeleteSession(ctx, id)
	if err == storage.ErrNotFound {
		return nil, newMCPError(ErrorCodeRecordNotFound, "session not found", map[string]interface{}{
			"session_id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "delete failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"deleted":    true,
		"session_id": id,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSaveTab handles the save_tab tool invocation
func (s *Server) handleSaveTab(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "session_id parameter is required", map[string]interface{}{
			"param":  "session_id",
			"reason": "missing or empty",
		})
	}

	var tab types.Tab
	if err := decodeArg(args, "tab", &tab); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid tab object", map[string]interface{}{
			"param":  "tab",
			"reason": err.Error(),
		})
	}

	st, err := s.vault.SaveTab(ctx, &tab, sessionID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "save failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"saved":      true,
		"tab_id":     st.Tab.ID,
		"session_id": st.SessionID,
		"domain":     st.Domain,
		"checksum":   st.Checksum,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleQueryTabs handles the query_tabs tool invocation
func (s *Server) handleQueryTabs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	filter := storage.TabFilter{
		SessionID: getStringDefault(args, "session_id", ""),
		WindowID:  int64(getIntDefault(args, "window_id", 0)),
		Domain:    getStringDefault(args, "domain", ""),
	}
	var err error
	if filter.CreatedAfter, err = parseTimeArg(args, "created_after"); err != nil {
		return nil, err
	}
	if filter.CreatedBefore, err = parseTimeArg(args, "created_before"); err != nil {
		return nil, err
	}
	page, err := parsePage(args)
	if err != nil {
		return nil, err
	}

	tabs, err := s.vault.QueryTabs(ctx, filter, page)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "query failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"count": len(tabs),
		"tabs":  tabs,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecordNavigation handles the record_navigation tool invocation
func (s *Server) handleRecordNavigation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "session_id parameter is required", map[string]interface{}{
			"param":  "session_id",
			"reason": "missing or empty",
		})
	}

	var events []types.NavigationEvent
	if err := decodeArg(args, "events", &events); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid events array", map[string]interface{}{
			"param":  "events",
			"reason": err.Error(),
		})
	}
	if len(events) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "events array is empty", map[string]interface{}{
			"param": "events",
		})
	}

	stored, batchID, err := s.vault.RecordNavigationBatch(ctx, events, sessionID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "recording failed", map[string]interface{}{
			"error":  err.Error(),
			"stored": stored,
		})
	}

	response := map[string]interface{}{
		"recorded":   stored,
		"batch_id":   batchID,
		"session_id": sessionID,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStats handles the get_stats tool invocation
func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.vault.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"sessions":          stats.Sessions,
		"tabs":              stats.Tabs,
		"navigation_events": stats.NavigationEvents,
		"boundaries":        stats.Boundaries,
		"storage_size":      stats.StorageSize,
		"integrity_status":  stats.IntegrityStatus,
	}
	if !stats.OldestRecord.IsZero() {
		response["oldest_record"] = stats.OldestRecord.Format(time.RFC3339)
	}
	if !stats.NewestRecord.IsZero() {
		response["newest_record"] = stats.NewestRecord.Format(time.RFC3339)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleValidateStore handles the validate_store tool invocation
func (s *Server) handleValidateStore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	autoCorrect := getBoolDefault(args, "auto_correct", false)

	var (
		result *integrity.Result
		err    error
	)
	if autoCorrect {
		result, err = s.vault.Repair(ctx, true)
	} else {
		result, err = s.vault.ValidateStore(ctx)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "validation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(marshalJSON(result)), nil
}

// handleCreateBackup handles the create_backup tool invocation
func (s *Server) handleCreateBackup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	manifest, err := s.vault.CreateBackup(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "backup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(marshalJSON(manifest)), nil
}

// handleListBackups handles the list_backups tool invocation
func (s *Server) handleListBackups(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	manifests, err := s.vault.ListBackups(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list backups", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"count":   len(manifests),
		"backups": manifests,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRestoreBackup handles the restore_backup tool invocation
func (s *Server) handleRestoreBackup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["backup_id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "backup_id parameter is required", map[string]interface{}{
			"param":  "backup_id",
			"reason": "missing or empty",
		})
	}
	reingest := getBoolDefault(args, "reingest", false)

	payload, err := s.vault.RestoreBackup(ctx, id, reingest)
	if err != nil {
		return nil, newMCPError(ErrorCodeBackupNotFound, "restore failed", map[string]interface{}{
			"backup_id": id,
			"error":     err.Error(),
		})
	}

	response := map[string]interface{}{
		"backup_id":  id,
		"reingested": reingest,
		"sessions":   len(payload.Sessions),
		"tabs":       len(payload.Tabs),
		"events":     len(payload.Events),
		"boundaries": len(payload.Boundaries),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMigrationStatus handles the migration_status tool invocation
func (s *Server) handleMigrationStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.vault.MigrationStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read migration status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(marshalJSON(info)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// decodeArg re-marshals one argument and unmarshals it into a typed value.
func decodeArg(args map[string]interface{}, key string, out interface{}) error {
	raw, ok := args[key]
	if !ok {
		return fmt.Errorf("%s is required", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// parseTimeArg reads an optional RFC 3339 timestamp argument.
func parseTimeArg(args map[string]interface{}, key string) (time.Time, error) {
	raw := getStringDefault(args, key, "")
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, newMCPError(ErrorCodeInvalidParams, "invalid timestamp", map[string]interface{}{
			"param":  key,
			"value":  raw,
			"reason": err.Error(),
		})
	}
	return t, nil
}

// parsePage reads the common paging arguments.
func parsePage(args map[string]interface{}) (storage.Page, error) {
	limit := getIntDefault(args, "limit", 100)
	if limit < 1 || limit > 1000 {
		return storage.Page{}, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 1000", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	page := storage.Page{
		Limit:  limit,
		Offset: getIntDefault(args, "offset", 0),
	}
	switch getStringDefault(args, "order", "desc") {
	case "asc":
		page.Order = storage.OrderAsc
	case "desc":
		page.Order = storage.OrderDesc
	default:
		return storage.Page{}, newMCPError(ErrorCodeInvalidParams, "invalid order", map[string]interface{}{
			"param":   "order",
			"allowed": []string{"asc", "desc"},
		})
	}
	return page, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// marshalJSON formats any value as indented JSON
func marshalJSON(v interface{}) string {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
