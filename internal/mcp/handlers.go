package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/mnemo/internal/delivery"
	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/ingest"
	"github.com/hpungsan/mnemo/internal/ops"
	"github.com/hpungsan/mnemo/internal/plugin"
	"github.com/hpungsan/mnemo/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	plugin   *plugin.Plugin
	protocol *delivery.Protocol
}

// NewHandlers creates a new Handlers instance. Skills are delivered through
// inj.
func NewHandlers(p *plugin.Plugin, inj delivery.Injector) *Handlers {
	return &Handlers{plugin: p, protocol: p.Delivery(inj)}
}

// RememberRequest represents the arguments for memory_remember.
type RememberRequest struct {
	Fact string `json:"fact"`
}

// RecallRequest represents the arguments for memory_recall.
type RecallRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// IngestRequest represents the arguments for memory_ingest.
type IngestRequest struct {
	Role  store.Role    `json:"role"`
	Parts []ingest.Part `json:"parts"`
}

// IngestResponse is the result of memory_ingest.
type IngestResponse struct {
	Route  string `json:"route"`
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status,omitempty"`
}

// SkillSummary is one entry of skill_list.
type SkillSummary struct {
	ID           string   `json:"id"`
	Tool         string   `json:"tool"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
	License      string   `json:"license,omitempty"`
}

// SkillListResponse is the result of skill_list.
type SkillListResponse struct {
	Skills []SkillSummary `json:"skills"`
}

// HandleRemember handles the memory_remember tool call.
func (h *Handlers) HandleRemember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RememberRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out, err := h.plugin.Remember(ctx, input.Fact)
	return replyResult("remember", out, err), nil
}

// HandleRecall handles the memory_recall tool call.
func (h *Handlers) HandleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecallRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out, err := h.plugin.Recall(ctx, input.Query, input.Limit)
	return replyResult("recall", out, err), nil
}

// HandleIngest handles the memory_ingest tool call.
func (h *Handlers) HandleIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IngestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	res, err := h.plugin.OnMessage(ctx, ingest.Event{Role: input.Role, Parts: input.Parts})
	if err != nil {
		return errorResult(err), nil
	}

	resp := IngestResponse{Route: res.Kind.String(), JobID: res.JobID}
	if res.Outcome != nil {
		resp.Status = res.Outcome.Status.String()
	} else if res.JobID != "" {
		resp.Status = "queued"
	}
	return successResult(resp)
}

// HandleSkillList handles the skill_list tool call.
func (h *Handlers) HandleSkillList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := h.plugin.Skills().List()
	resp := SkillListResponse{Skills: make([]SkillSummary, 0, len(list))}
	for _, b := range list {
		resp.Skills = append(resp.Skills, SkillSummary{
			ID:           b.ID,
			Tool:         skillToolName(b.ID),
			Title:        b.Title,
			Description:  b.Description,
			AllowedTools: b.AllowedTools,
			License:      b.License,
		})
	}
	return successResult(resp)
}

// skillHandler delivers bundle id into the calling session. The reply is
// plain text for the agent; delivery failures are reported in it, not as
// tool errors.
func (h *Handlers) skillHandler(id string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(h.protocol.Invoke(ctx, id, sessionID(ctx))), nil
	}
}

func sessionID(ctx context.Context) string {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}

// Result helpers

// replyResult renders a memory operation as text. Failures keep IsError so
// clients can tell them apart.
func replyResult(op string, out ops.Replier, err error) *mcp.CallToolResult {
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(ops.Describe(op, err))},
			IsError: true,
		}
	}
	return mcp.NewToolResultText(out.Reply())
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if mErr := errors.From(err); mErr != nil {
		errorObj := map[string]any{
			"code":    mErr.Code,
			"message": mErr.Message,
			"status":  mErr.Status,
		}
		if mErr.Code != errors.ErrInternal && mErr.Details != nil {
			errorObj["details"] = mErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(content))},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
