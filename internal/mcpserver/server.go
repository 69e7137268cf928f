package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/config"
	"github.com/tabvault/tabvault/internal/vault"
)

const (
	// ServerName is the MCP server name
	ServerName = "tabvault"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the vault facade
type Server struct {
	mcp    *server.MCPServer
	vault  *vault.Vault
	logger *zap.Logger
}

// NewServer creates a new MCP server over an opened vault
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v, err := vault.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build vault: %w", err)
	}
	if err := v.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:    mcpServer,
		vault:  v,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Vault exposes the underlying facade, mainly for maintenance wiring.
func (s *Server) Vault() *vault.Vault { return s.vault }

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.vault.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(saveSessionTool(), s.handleSaveSession)
	s.mcp.AddTool(getSessionTool(), s.handleGetSession)
	s.mcp.AddTool(querySessionsTool(), s.handleQuerySessions)
	s.mcp.AddTool(deleteSessionTool(), s.handleDeleteSession)
	s.mcp.AddTool(saveTabTool(), s.handleSaveTab)
	s.mcp.AddTool(queryTabsTool(), s.handleQueryTabs)
	s.mcp.AddTool(recordNavigationTool(), s.handleRecordNavigation)
	s.mcp.AddTool(getStatsTool(), s.handleGetStats)
	s.mcp.AddTool(validateStoreTool(), s.handleValidateStore)
	s.mcp.AddTool(createBackupTool(), s.handleCreateBackup)
	s.mcp.AddTool(listBackupsTool(), s.handleListBackups)
	s.mcp.AddTool(restoreBackupTool(), s.handleRestoreBackup)
	s.mcp.AddTool(migrationStatusTool(), s.handleMigrationStatus)
}
