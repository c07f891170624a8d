package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meemoee/market-movers-hub-sub000/internal/domain"
	"github.com/meemoee/market-movers-hub-sub000/internal/logger"
	"github.com/meemoee/market-movers-hub-sub000/internal/openrouter"
	"github.com/meemoee/market-movers-hub-sub000/internal/prompts"
)

// QuickResearchRequest holds parameters for a one-shot research run.
type QuickResearchRequest struct {
	Query     string `json:"query" binding:"required"`
	FocusText string `json:"focus_text"`
	UserID    string `json:"user_id"`
}

// QuickResearch runs a single research pass for a free-form question,
// streaming analysis deltas to onDelta as they arrive, and persists the
// finished run. Unlike jobs this is synchronous: the caller holds the
// connection open for the duration.
func (s *ResearchService) QuickResearch(ctx context.Context, req *QuickResearchRequest, onDelta openrouter.DeltaFunc) (*domain.WebResearch, error) {
	block := prompts.MarketBlock(req.Query, "", req.FocusText)

	queries, err := s.generateQueries(ctx, block, 1, "")
	if err != nil {
		return nil, err
	}
	sources := s.search(ctx, queries)
	s.log(ctx).WithField(logger.FieldCount, len(sources)).Info("Quick research sources gathered")

	analysisReq := &openrouter.ChatRequest{
		Model:     s.analysisModel,
		MaxTokens: s.maxTokens,
		Messages: []openrouter.Message{
			{Role: "system", Content: prompts.AnalystSystemPrompt()},
			{Role: "user", Content: prompts.Analysis(block, prompts.PriceBlock(0, 0, 0, false), sourcesText(sources), 1, 1)},
		},
	}
	analysis, err := s.or.Stream(ctx, analysisReq, onDelta)
	if err != nil && analysis == "" {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	record := &domain.WebResearch{
		ID:       uuid.New().String(),
		UserID:   req.UserID,
		Query:    req.Query,
		Analysis: analysis,
		Sources:  sources,
	}
	if insights, err := s.extractInsights(ctx, block, analysis); err == nil {
		record.Probability = insights.Probability
		record.AreasForResearch = insights.AreasForResearch
	}

	if err := s.research.SaveWebResearch(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save research: %w", err)
	}
	return record, nil
}

// GetWebResearch retrieves a saved one-shot run.
func (s *ResearchService) GetWebResearch(ctx context.Context, id string) (*domain.WebResearch, error) {
	return s.research.GetWebResearch(ctx, id)
}

// ListWebResearch lists saved one-shot runs.
func (s *ResearchService) ListWebResearch(ctx context.Context, userID string, limit, offset int) ([]domain.WebResearch, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.research.ListWebResearch(ctx, userID, limit, offset)
}
