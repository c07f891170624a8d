package domain

import "time"

// WebResearch is a saved one-shot research result, independent of the
// job queue. Created when a client persists a finished streaming run.
type WebResearch struct {
	ID               string      `gorm:"type:text;primaryKey" json:"id"`
	UserID           string      `gorm:"type:text;index" json:"user_id,omitempty"`
	Query            string      `gorm:"type:text;not null" json:"query"`
	Analysis         string      `gorm:"type:text" json:"analysis"`
	Probability      string      `gorm:"type:text" json:"probability,omitempty"`
	AreasForResearch StringArray `gorm:"type:text" json:"areas_for_research"`
	Sources          SourceList  `gorm:"type:text" json:"sources"`
	CreatedAt        time.Time   `json:"created_at"`
}

// TableName returns the database table name for WebResearch.
func (WebResearch) TableName() string {
	return "web_research"
}

// HistoricalEvent is a past event comparable to a market question.
type HistoricalEvent struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Title     string    `gorm:"type:text;not null;index:idx_historical_events_title,unique" json:"title"`
	Date      string    `gorm:"type:text" json:"date"`
	ImageURL  string    `gorm:"type:text" json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for HistoricalEvent.
func (HistoricalEvent) TableName() string {
	return "historical_events"
}

// MarketComparison links a market to a historical event with the
// similarity and difference lists produced by analysis.
type MarketComparison struct {
	ID                string      `gorm:"type:text;primaryKey" json:"id"`
	MarketID          string      `gorm:"type:text;not null;index:idx_market_comparisons,unique" json:"market_id"`
	HistoricalEventID string      `gorm:"type:text;not null;index:idx_market_comparisons,unique" json:"historical_event_id"`
	Similarities      StringArray `gorm:"type:text" json:"similarities"`
	Differences       StringArray `gorm:"type:text" json:"differences"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// TableName returns the database table name for MarketComparison.
func (MarketComparison) TableName() string {
	return "market_historical_comparisons"
}

// AnalysisChunk is one ordered fragment of streamed analysis text for a
// job iteration. Reassembly is concatenation in ascending sequence.
type AnalysisChunk struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	JobID     string    `gorm:"type:text;not null;index:idx_analysis_stream,unique" json:"job_id"`
	Iteration int       `gorm:"not null;index:idx_analysis_stream,unique" json:"iteration"`
	Sequence  int       `gorm:"not null;index:idx_analysis_stream,unique" json:"sequence"`
	Chunk     string    `gorm:"type:text" json:"chunk"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for AnalysisChunk.
func (AnalysisChunk) TableName() string {
	return "analysis_stream"
}
