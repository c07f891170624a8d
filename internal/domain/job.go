package domain

import "time"

// JobStatus represents the lifecycle state of a research job.
// Transitions are queued -> processing -> completed | failed; terminal
// states are final.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ResearchJob is a server-tracked unit of multi-iteration web research.
// Clients poll it by ID until the status is terminal.
type ResearchJob struct {
	ID               string        `gorm:"type:text;primaryKey" json:"id"`
	MarketID         string        `gorm:"type:text;not null;index" json:"market_id"`
	Query            string        `gorm:"type:text;not null" json:"query"`
	FocusText        string        `gorm:"type:text" json:"focus_text,omitempty"`
	Model            string        `gorm:"type:text" json:"model"`
	UserID           string        `gorm:"type:text;index" json:"user_id,omitempty"`
	Status           JobStatus     `gorm:"type:text;index;default:queued" json:"status"`
	MaxIterations    int           `gorm:"default:3" json:"max_iterations"`
	CurrentIteration int           `gorm:"default:0" json:"current_iteration"`
	Iterations       IterationList `gorm:"type:text" json:"iterations"`
	Results          JSONMap       `gorm:"type:text" json:"results,omitempty"`
	ProgressLog      StringArray   `gorm:"type:text" json:"progress_log"`
	ErrorMessage     string        `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TableName returns the database table name for ResearchJob.
func (ResearchJob) TableName() string {
	return "research_jobs"
}

// Iteration is one round of query generation, web search and analysis
// within a research job. Appended by the worker, rendered by clients.
type Iteration struct {
	Number    int         `json:"iteration"`
	Queries   StringArray `json:"queries"`
	Sources   SourceList  `json:"results"`
	Analysis  string      `json:"analysis"`
	Reasoning string      `json:"reasoning,omitempty"`
}

// Source is a web source cited during an iteration.
type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// InsightsResult is the parsed JSON blob extracted from the final analysis.
type InsightsResult struct {
	Probability      string   `json:"probability"`
	AreasForResearch []string `json:"areasForResearch"`
	Reasoning        string   `json:"reasoning,omitempty"`
}
