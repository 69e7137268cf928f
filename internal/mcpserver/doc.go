// Package mcpserver exposes the TabVault store over the Model Context
// Protocol on stdio.
//
// The server registers one tool per store operation:
//
//	save_session / get_session / query_sessions / delete_session
//	save_tab / query_tabs
//	record_navigation
//	get_stats
//	validate_store / create_backup / list_backups / restore_backup
//	migration_status
//
// Handlers are thin: they validate and coerce arguments, delegate to the
// vault facade, and render results as indented JSON. Protocol errors use
// JSON-RPC codes; domain failures (record not found, failed validation)
// map to dedicated codes so clients can branch on them.
//
// Stdout is reserved for the protocol stream. All logging goes to the
// injected zap logger, which the entrypoint points at stderr.
package mcpserver
