package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/planward/planward/internal/plan"
	"github.com/planward/planward/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Generator PlanGenerator
}

// NewMCPServer creates an MCP server exposing plan creation and generation
// as tools for agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"planward",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("planward — marketing plan generation from questionnaire responses."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_plan",
			mcp.WithDescription("Create a new marketing plan record from questionnaire responses."),
			mcp.WithString("business_context", mcp.Description("JSON object describing the business")),
			mcp.WithString("responses", mcp.Description("JSON object of questionnaire responses"), mcp.Required()),
		),
		mcpCreatePlan(deps),
	)

	s.AddTool(
		mcp.NewTool("get_plan",
			mcp.WithDescription("Fetch a marketing plan by ID, including status and generated content."),
			mcp.WithString("id", mcp.Description("Plan ID"), mcp.Required()),
		),
		mcpGetPlan(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_plan",
			mcp.WithDescription("Run the full analysis and strategy generation for a plan. Long-running."),
			mcp.WithString("id", mcp.Description("Plan ID"), mcp.Required()),
		),
		mcpGeneratePlan(deps),
	)

	s.AddTool(
		mcp.NewTool("validate_responses",
			mcp.WithDescription("Review questionnaire responses and return improvement suggestions with a completion score."),
			mcp.WithString("responses", mcp.Description("JSON object of questionnaire responses"), mcp.Required()),
		),
		mcpValidateResponses(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"planward://recent",
			"Recent Plans",
			mcp.WithResourceDescription("Last 10 plans (IDs and statuses only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpCreatePlan(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		responses, err := req.RequireString("responses")
		if err != nil {
			return mcpError("responses is required"), nil
		}
		if !json.Valid([]byte(responses)) {
			return mcpError("responses must be a JSON object"), nil
		}

		businessContext := req.GetString("business_context", "{}")
		if !json.Valid([]byte(businessContext)) {
			return mcpError("business_context must be a JSON object"), nil
		}

		p, err := deps.Store.CreatePlan(plan.Plan{
			ID:                     uuid.New().String(),
			BusinessContext:        businessContext,
			QuestionnaireResponses: responses,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create plan: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Created plan %s (status: %s)", p.ID, p.Status)), nil
	}
}

func mcpGetPlan(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		p, err := deps.Store.GetPlan(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get plan: %v", err)), nil
		}

		b, err := json.Marshal(planToView(p, nil))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal plan: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGeneratePlan(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		p, elapsed, err := deps.Generator.Generate(ctx, id, "")
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Plan %s generated in %dms (status: %s)", p.ID, elapsed.Milliseconds(), p.Status)), nil
	}
}

func mcpValidateResponses(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		responses, err := req.RequireString("responses")
		if err != nil {
			return mcpError("responses is required"), nil
		}

		res := deps.Generator.ValidateResponses(ctx, responses)
		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		plans, err := deps.Store.ListPlans(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list plans: %w", err)
		}

		type planSummary struct {
			ID                   string `json:"id"`
			Status               string `json:"status"`
			CompletionPercentage int    `json:"completion_percentage"`
			CreatedAt            string `json:"created_at"`
		}

		summaries := make([]planSummary, len(plans))
		for i, p := range plans {
			summaries[i] = planSummary{
				ID:                   p.ID,
				Status:               string(p.Status),
				CompletionPercentage: p.CompletionPercentage,
				CreatedAt:            p.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal plans: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
