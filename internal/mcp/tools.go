package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/mnemo/internal/skills"
)

var rememberToolDef = mcp.NewTool("memory_remember",
	mcp.WithDescription("Store a fact in long-term memory for the current user. Use for durable preferences, decisions and context worth recalling in later sessions."),
	mcp.WithString("fact",
		mcp.Required(),
		mcp.Description("The fact to remember, as a self-contained sentence."),
	),
	mcp.WithDestructiveHintAnnotation(false),
)

var recallToolDef = mcp.NewTool("memory_recall",
	mcp.WithDescription("Search long-term memory for facts relevant to a query."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("What to look for."),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of facts to return."),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var ingestToolDef = mcp.NewTool("memory_ingest",
	mcp.WithDescription("Record one produced conversation message. Called by the host once per turn; text parts are stored in conversation memory."),
	mcp.WithString("role",
		mcp.Required(),
		mcp.Enum("subject", "agent"),
		mcp.Description("Author of the message: the user (subject) or the assistant (agent)."),
	),
	mcp.WithArray("parts",
		mcp.Required(),
		mcp.Description("Content parts: objects with type, text, and optional synthetic/ignored flags."),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type":      map[string]any{"type": "string"},
				"text":      map[string]any{"type": "string"},
				"synthetic": map[string]any{"type": "boolean"},
				"ignored":   map[string]any{"type": "boolean"},
			},
			"required": []string{"type"},
		}),
	),
)

var skillListToolDef = mcp.NewTool("skill_list",
	mcp.WithDescription("List the available skills with their descriptions and allowed tools."),
	mcp.WithReadOnlyHintAnnotation(true),
)

// skillToolName is the MCP tool that delivers bundle id.
func skillToolName(id string) string {
	return "skill_" + id
}

func skillToolDef(b skills.Bundle) mcp.Tool {
	return mcp.NewTool(skillToolName(b.ID),
		mcp.WithDescription(b.Description),
		mcp.WithDestructiveHintAnnotation(false),
	)
}
