package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// Notifier pushes engine events to connected MCP clients.
type Notifier interface {
	Notify(ctx context.Context, ownerID string, payload map[string]any) error
}

// MCPNotifier implements Notifier over the MCP notification channel.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier bound to a server and its session map.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the client owning the run or session.
// Best-effort: returns nil if no client owns the ID.
func (n *MCPNotifier) Notify(_ context.Context, ownerID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(ownerID)
	if !ok {
		return nil // owner not connected, best-effort
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send — not an error.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}
