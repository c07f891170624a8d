package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meemoee/market-movers-hub-sub000/internal/domain"
	"github.com/meemoee/market-movers-hub-sub000/internal/gamma"
	"github.com/meemoee/market-movers-hub-sub000/internal/logger"
	"github.com/meemoee/market-movers-hub-sub000/internal/openrouter"
	"github.com/meemoee/market-movers-hub-sub000/internal/prompts"
	"github.com/meemoee/market-movers-hub-sub000/internal/repository"
)

// HistoricalService maintains the historical events catalog and its
// links to markets. Events are deduplicated by title so repeated
// comparisons enrich the catalog instead of growing it.
type HistoricalService struct {
	research *repository.ResearchRepository
	or       *openrouter.Client
	gamma    *gamma.Client
	logger   *logger.Logger

	extractionModel string
	eventsPerMarket int
}

// NewHistoricalService creates a new historical comparison service.
func NewHistoricalService(
	research *repository.ResearchRepository,
	or *openrouter.Client,
	gammaClient *gamma.Client,
	log *logger.Logger,
	extractionModel string,
) *HistoricalService {
	return &HistoricalService{
		research:        research,
		or:              or,
		gamma:           gammaClient,
		logger:          log,
		extractionModel: extractionModel,
		eventsPerMarket: 3,
	}
}

func (s *HistoricalService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// ComparisonWithEvent pairs a stored comparison with its event.
type ComparisonWithEvent struct {
	Event        domain.HistoricalEvent `json:"event"`
	Similarities domain.StringArray     `json:"similarities"`
	Differences  domain.StringArray     `json:"differences"`
}

// GenerateComparisons finds analogous historical events for a market
// and persists both the events and the market links.
func (s *HistoricalService) GenerateComparisons(ctx context.Context, marketSlug string) ([]ComparisonWithEvent, error) {
	market, err := s.gamma.MarketBySlug(ctx, marketSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve market: %w", err)
	}

	var out struct {
		Events []struct {
			Title        string   `json:"title"`
			Date         string   `json:"date"`
			Similarities []string `json:"similarities"`
			Differences  []string `json:"differences"`
		} `json:"events"`
	}
	req := &openrouter.ChatRequest{
		Model:       s.extractionModel,
		Temperature: 0.2,
		Messages: []openrouter.Message{
			{Role: "system", Content: prompts.AnalystSystemPrompt()},
			{Role: "user", Content: prompts.HistoricalComparison(
				prompts.MarketBlock(market.QuestionTitle(), market.Description, ""), s.eventsPerMarket)},
		},
	}
	if err := s.or.CompleteJSON(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("historical comparison: %w", err)
	}

	comparisons := make([]ComparisonWithEvent, 0, len(out.Events))
	for _, e := range out.Events {
		if e.Title == "" {
			continue
		}
		event := &domain.HistoricalEvent{
			ID:    uuid.New().String(),
			Title: e.Title,
			Date:  e.Date,
		}
		if err := s.research.UpsertHistoricalEvent(ctx, event); err != nil {
			return nil, fmt.Errorf("failed to save event %q: %w", e.Title, err)
		}
		// The upsert may have kept an earlier row; re-read for the real ID.
		stored, err := s.research.GetHistoricalEventByTitle(ctx, e.Title)
		if err != nil {
			return nil, err
		}

		cmp := &domain.MarketComparison{
			ID:                uuid.New().String(),
			MarketID:          market.Slug,
			HistoricalEventID: stored.ID,
			Similarities:      e.Similarities,
			Differences:       e.Differences,
		}
		if err := s.research.UpsertComparison(ctx, cmp); err != nil {
			return nil, fmt.Errorf("failed to save comparison: %w", err)
		}
		comparisons = append(comparisons, ComparisonWithEvent{
			Event:        *stored,
			Similarities: e.Similarities,
			Differences:  e.Differences,
		})
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldMarketID: market.Slug,
		logger.FieldCount:    len(comparisons),
	}).Info("Historical comparisons generated")
	return comparisons, nil
}

// ComparisonsForMarket returns stored comparisons joined with their
// events.
func (s *HistoricalService) ComparisonsForMarket(ctx context.Context, marketSlug string) ([]ComparisonWithEvent, error) {
	stored, err := s.research.ComparisonsForMarket(ctx, marketSlug)
	if err != nil {
		return nil, err
	}
	out := make([]ComparisonWithEvent, 0, len(stored))
	for _, cmp := range stored {
		event, err := s.research.GetHistoricalEvent(ctx, cmp.HistoricalEventID)
		if err != nil {
			continue
		}
		out = append(out, ComparisonWithEvent{
			Event:        *event,
			Similarities: cmp.Similarities,
			Differences:  cmp.Differences,
		})
	}
	return out, nil
}

// ListEvents returns the event catalog.
func (s *HistoricalService) ListEvents(ctx context.Context, limit, offset int) ([]domain.HistoricalEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.research.ListHistoricalEvents(ctx, limit, offset)
}
