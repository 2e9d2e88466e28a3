package mcp

import (
	"context"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/mnemo/internal/delivery"
	"github.com/hpungsan/mnemo/internal/plugin"
)

// InjectMethod is the notification that carries a durably injected message.
// The host appends its params to the session's conversation history.
const InjectMethod = "notifications/mnemo/inject"

// KnownTypes lists all valid type names.
var KnownTypes = []string{"memory", "skill"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps static tool names to their definitions and handler
// factories. Every discovered skill adds a skill_<id> tool on top.
var toolRegistry = map[string]toolEntry{
	"memory_remember": {
		def:     rememberToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRemember },
	},
	"memory_recall": {
		def:     recallToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRecall },
	},
	"memory_ingest": {
		def:     ingestToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleIngest },
	},
	"skill_list": {
		def:     skillListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSkillList },
	},
}

// toolEntries returns the static tools plus one tool per skill.
func toolEntries(p *plugin.Plugin) map[string]toolEntry {
	entries := make(map[string]toolEntry, len(toolRegistry)+p.Skills().Len())
	for name, e := range toolRegistry {
		entries[name] = e
	}
	for _, b := range p.Skills().List() {
		name := skillToolName(b.ID)
		if _, taken := entries[name]; taken {
			continue
		}
		id := b.ID
		entries[name] = toolEntry{
			def:     skillToolDef(b),
			handler: func(h *Handlers) server.ToolHandlerFunc { return h.skillHandler(id) },
		}
	}
	return entries
}

// AllToolNames returns the sorted names of every tool the plugin would
// register.
func AllToolNames(p *plugin.Plugin) []string {
	entries := toolEntries(p)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(p *plugin.Plugin, names []string) []string {
	entries := toolEntries(p)
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := entries[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "memory_recall" → "memory").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// notifyInjector delivers injected messages as MCP notifications.
type notifyInjector struct {
	srv *server.MCPServer
}

func (n notifyInjector) Inject(ctx context.Context, sessionID string, msg delivery.Message) error {
	params := map[string]any{
		"text":      msg.Text,
		"noReply":   msg.NoReply,
		"synthetic": msg.Synthetic,
	}
	if sessionID == "" {
		return n.srv.SendNotificationToClient(ctx, InjectMethod, params)
	}
	return n.srv.SendNotificationToSpecificClient(sessionID, InjectMethod, params)
}

// NewServer creates a new MCP server with mnemo tools registered.
// Tools listed in DisabledTools or belonging to DisabledTypes are excluded
// from registration.
func NewServer(p *plugin.Plugin, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mnemo",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	h := NewHandlers(p, notifyInjector{srv: s})
	cfg := p.Config()

	disabledTypes := make(map[string]bool, len(cfg.DisabledTypes))
	for _, t := range cfg.DisabledTypes {
		disabledTypes[t] = true
	}
	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolEntries(p) {
		if disabled[name] || disabledTypes[GetTypeForTool(name)] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(p *plugin.Plugin, version string) error {
	return server.ServeStdio(NewServer(p, version))
}

const instructions = `mnemo gives you long-term memory and on-demand skills.

- memory_recall before answering questions that may depend on what the user told you in earlier sessions.
- memory_remember for durable facts: preferences, decisions, project context.
- skill_list shows available skills; call skill_<id> to load one. Its instructions arrive as conversation messages and stay available for the rest of the session.`
