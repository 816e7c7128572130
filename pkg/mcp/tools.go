package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/atelier-ops/link-engine/pkg/models"
	"github.com/atelier-ops/link-engine/pkg/repositories"
	"github.com/atelier-ops/link-engine/pkg/services"
)

// ToolDeps contains dependencies for the operator tools.
type ToolDeps struct {
	Messages repositories.MessageRepository
	Reviews  repositories.ReviewRepository
	Linker   services.LinkerService
	Stats    services.StatsService
	Logger   *zap.Logger
}

// RegisterTools registers all operator tools on the server.
func RegisterTools(s *Server, deps *ToolDeps) {
	registerSuggestLinksTool(s, deps)
	registerPendingReviewsTool(s, deps)
	registerLinkStatsTool(s, deps)
}

type suggestLinksResult struct {
	MessageID  string             `json:"message_id"`
	Sender     string             `json:"sender"`
	Subject    string             `json:"subject"`
	Candidates []models.Candidate `json:"candidates"`
}

// registerSuggestLinksTool adds the suggest_links tool. It runs the full
// candidate pipeline for one message, LLM fallback included, without writing
// any links.
func registerSuggestLinksTool(s *Server, deps *ToolDeps) {
	tool := mcp.NewTool(
		"suggest_links",
		mcp.WithDescription(
			"Evaluate project link candidates for a single email message. "+
				"Runs thread inheritance, learned patterns, contact and domain "+
				"matching, and LLM classification in priority order. "+
				"Read-only: nothing is written.",
		),
		mcp.WithString(
			"message_id",
			mcp.Required(),
			mcp.Description("Provider message id of the email to evaluate"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		messageID, err := req.RequireString("message_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		msg, err := deps.Messages.GetByMessageID(ctx, messageID)
		if err != nil {
			return nil, fmt.Errorf("failed to load message: %w", err)
		}

		candidates, err := deps.Linker.Evaluate(ctx, msg, true)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate candidates: %w", err)
		}

		result := suggestLinksResult{
			MessageID:  msg.MessageID,
			Sender:     msg.Sender,
			Subject:    msg.Subject,
			Candidates: candidates,
		}
		if result.Candidates == nil {
			result.Candidates = []models.Candidate{}
		}

		out, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		return mcp.NewToolResultText(string(out)), nil
	})
}

// registerPendingReviewsTool adds the pending_reviews tool listing candidates
// awaiting manual review, newest first.
func registerPendingReviewsTool(s *Server, deps *ToolDeps) {
	tool := mcp.NewTool(
		"pending_reviews",
		mcp.WithDescription(
			"List link candidates that fell below the auto-link threshold "+
				"and are waiting for manual review.",
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Maximum entries to return (default 50)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}

		pending, err := deps.Reviews.ListPending(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending reviews: %w", err)
		}

		result := struct {
			Pending []models.PendingLink `json:"pending"`
			Count   int                  `json:"count"`
		}{
			Pending: pending,
			Count:   len(pending),
		}
		if result.Pending == nil {
			result.Pending = []models.PendingLink{}
		}

		out, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		return mcp.NewToolResultText(string(out)), nil
	})
}

// registerLinkStatsTool adds the link_stats tool reporting store counts.
func registerLinkStatsTool(s *Server, deps *ToolDeps) {
	tool := mcp.NewTool(
		"link_stats",
		mcp.WithDescription(
			"Report counts for messages, links, learned patterns, pending "+
				"reviews, and classification failures.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Stats.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to collect stats: %w", err)
		}

		out, err := json.Marshal(stats)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		return mcp.NewToolResultText(string(out)), nil
	})
}
