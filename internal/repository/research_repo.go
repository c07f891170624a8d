package repository

import (
	"context"

	"github.com/meemoee/market-movers-hub-sub000/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResearchRepository stores saved research results and the historical
// events catalog with its market comparisons.
type ResearchRepository struct {
	db *gorm.DB
}

// NewResearchRepository creates a new ResearchRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ResearchRepository: repository instance bound to db.
func NewResearchRepository(db *gorm.DB) *ResearchRepository {
	return &ResearchRepository{db: db}
}

// SaveWebResearch persists a finished research run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - wr: research record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ResearchRepository) SaveWebResearch(ctx context.Context, wr *domain.WebResearch) error {
	return r.db.WithContext(ctx).Create(wr).Error
}

// ListWebResearch retrieves saved research with pagination, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user to filter by; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.WebResearch: matching records.
//   - error: non-nil if the query fails.
func (r *ResearchRepository) ListWebResearch(ctx context.Context, userID string, limit, offset int) ([]domain.WebResearch, error) {
	var records []domain.WebResearch
	query := r.db.WithContext(ctx)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// GetWebResearch retrieves a single saved research record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
// Returns:
//   - *domain.WebResearch: record if found.
//   - error: non-nil if lookup fails.
func (r *ResearchRepository) GetWebResearch(ctx context.Context, id string) (*domain.WebResearch, error) {
	var record domain.WebResearch
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// UpsertHistoricalEvent creates or refreshes a historical event keyed
// by title.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ev: event record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ResearchRepository) UpsertHistoricalEvent(ctx context.Context, ev *domain.HistoricalEvent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "title"}},
		DoUpdates: clause.AssignmentColumns([]string{"date", "image_url", "updated_at"}),
	}).Create(ev).Error
}

// GetHistoricalEventByTitle retrieves an event by its unique title.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - title: event title.
// Returns:
//   - *domain.HistoricalEvent: event record if found.
//   - error: non-nil if lookup fails.
func (r *ResearchRepository) GetHistoricalEventByTitle(ctx context.Context, title string) (*domain.HistoricalEvent, error) {
	var ev domain.HistoricalEvent
	if err := r.db.WithContext(ctx).First(&ev, "title = ?", title).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetHistoricalEvent retrieves an event by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: event ID.
// Returns:
//   - *domain.HistoricalEvent: event record if found.
//   - error: non-nil if lookup fails.
func (r *ResearchRepository) GetHistoricalEvent(ctx context.Context, id string) (*domain.HistoricalEvent, error) {
	var ev domain.HistoricalEvent
	if err := r.db.WithContext(ctx).First(&ev, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListHistoricalEvents retrieves catalogued events with pagination,
// newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.HistoricalEvent: matching events.
//   - error: non-nil if the query fails.
func (r *ResearchRepository) ListHistoricalEvents(ctx context.Context, limit, offset int) ([]domain.HistoricalEvent, error) {
	var events []domain.HistoricalEvent
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// UpsertComparison links a market to a historical event, replacing the
// similarity and difference lists on conflict.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cmp: comparison record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ResearchRepository) UpsertComparison(ctx context.Context, cmp *domain.MarketComparison) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_id"}, {Name: "historical_event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"similarities", "differences", "updated_at"}),
	}).Create(cmp).Error
}

// ComparisonsForMarket retrieves all comparisons recorded for a market.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - marketID: market identifier.
// Returns:
//   - []domain.MarketComparison: matching comparisons.
//   - error: non-nil if the query fails.
func (r *ResearchRepository) ComparisonsForMarket(ctx context.Context, marketID string) ([]domain.MarketComparison, error) {
	var comparisons []domain.MarketComparison
	if err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at DESC").
		Find(&comparisons).Error; err != nil {
		return nil, err
	}
	return comparisons, nil
}
