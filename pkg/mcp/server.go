// Package mcp adapts tariffd to the Model Context Protocol, so an agent can
// query plans, models and recommendations through tools and resources.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tariffwise/tariffwise/pkg/api"
	"github.com/tariffwise/tariffwise/pkg/client"
)

// Server adapts tariffd to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance talking to the daemon at apiURL.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"tariffwise",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	// tariffwise://models
	s.mcpServer.AddResource(mcp.NewResource(
		"tariffwise://models",
		"Published Model Versions",
		mcp.WithResourceDescription("Model registry contents: published versions, promoted latest, loaded version"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadModels)

	// tariffwise://summary
	s.mcpServer.AddResource(mcp.NewResource(
		"tariffwise://summary",
		"Customer Spend Summary",
		mcp.WithResourceDescription("Aggregate spend plus savings and upsell opportunity counts"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadSummary)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"recommend_plan",
		mcp.WithDescription("Recommend the cheapest telecom plan for a customer's average monthly usage."),
		mcp.WithNumber("avg_data_gb", mcp.Required(), mcp.Description("Average monthly data usage in GB")),
		mcp.WithNumber("avg_minutes", mcp.Required(), mcp.Description("Average monthly voice minutes")),
		mcp.WithNumber("avg_sms", mcp.Required(), mcp.Description("Average monthly SMS count")),
		mcp.WithString("region", mcp.Required(), mcp.Description("Customer region (e.g., 'delhi')")),
		mcp.WithString("current_plan", mcp.Required(), mcp.Description("Currently subscribed plan: basic, standard or premium")),
		mcp.WithNumber("spend", mcp.Description("Current monthly spend (default 0)")),
	), s.handleRecommendPlan)

	s.mcpServer.AddTool(mcp.NewTool(
		"recommend_for_customer",
		mcp.WithDescription("Recommend a plan for a known customer from their stored usage history."),
		mcp.WithNumber("customer_id", mcp.Required(), mcp.Description("The customer identifier")),
	), s.handleRecommendCustomer)
}

// --- Handlers ---

func (s *Server) handleReadModels(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	models, err := s.apiClient.Models(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch models: %w", err)
	}
	return jsonResource(request.Params.URI, models)
}

func (s *Server) handleReadSummary(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := s.apiClient.SummaryStats(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch summary: %w", err)
	}
	return jsonResource(request.Params.URI, stats)
}

func (s *Server) handleRecommendPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := api.RecommendRequest{
		AvgDataGB:   mcp.ParseFloat64(request, "avg_data_gb", 0),
		AvgMinutes:  mcp.ParseFloat64(request, "avg_minutes", 0),
		AvgSMS:      mcp.ParseFloat64(request, "avg_sms", 0),
		Region:      mcp.ParseString(request, "region", ""),
		CurrentPlan: mcp.ParseString(request, "current_plan", ""),
		Spend:       mcp.ParseFloat64(request, "spend", 0),
	}

	pred, err := s.apiClient.Recommend(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	resultMsg := fmt.Sprintf("Recommended plan: %s (source: %s)\n%s", pred.Plan, pred.Source, pred.Reason)
	return mcp.NewToolResultText(resultMsg), nil
}

func (s *Server) handleRecommendCustomer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID := int64(mcp.ParseFloat64(request, "customer_id", 0))
	if customerID <= 0 {
		return mcp.NewToolResultError("customer_id must be a positive integer"), nil
	}

	pred, err := s.apiClient.RecommendCustomer(ctx, customerID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	resultMsg := fmt.Sprintf("Recommended plan for customer %d: %s (source: %s)\n%s",
		customerID, pred.Plan, pred.Source, pred.Reason)
	return mcp.NewToolResultText(resultMsg), nil
}

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
