package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/meemoee/market-movers-hub-sub000/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles research job data operations.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new research job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.ResearchJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.ResearchJob: job record if found.
//   - error: non-nil if lookup fails.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ResearchJob, error) {
	var job domain.ResearchJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List retrieves jobs with pagination, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - marketID: market to filter by; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.ResearchJob: matching job records.
//   - error: non-nil if the query fails.
func (r *JobRepository) List(ctx context.Context, marketID string, limit, offset int) ([]domain.ResearchJob, error) {
	var jobs []domain.ResearchJob
	query := r.db.WithContext(ctx)
	if marketID != "" {
		query = query.Where("market_id = ?", marketID)
	}
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimNextQueued atomically moves the oldest queued job to processing
// and returns it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *domain.ResearchJob: the claimed job.
//   - error: gorm.ErrRecordNotFound when the queue is empty.
func (r *JobRepository) ClaimNextQueued(ctx context.Context) (*domain.ResearchJob, error) {
	var job domain.ResearchJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ?", domain.JobStatusQueued).
			Order("created_at ASC").
			First(&job).Error; err != nil {
			return err
		}
		now := time.Now()
		job.Status = domain.JobStatusProcessing
		job.StartedAt = &now
		return tx.Model(&job).Updates(map[string]interface{}{
			"status":     domain.JobStatusProcessing,
			"started_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Update saves the full job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Update(ctx context.Context, job *domain.ResearchJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// AppendProgress appends a line to the job's progress log.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - line: progress message to append.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) AppendProgress(ctx context.Context, id string, line string) error {
	var job domain.ResearchJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return err
	}
	job.ProgressLog = append(job.ProgressLog, line)
	return r.db.WithContext(ctx).Model(&job).Update("progress_log", job.ProgressLog).Error
}

// MarkCompleted moves a job to completed with its results blob.
// Terminal states are final; completing an already-terminal job fails.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - results: final results.
// Returns:
//   - error: non-nil if the transition fails.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, results domain.JSONMap) error {
	return r.markTerminal(ctx, id, domain.JobStatusCompleted, map[string]interface{}{
		"results": results,
	})
}

// MarkFailed moves a job to failed, recording the error message.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - msg: failure reason.
// Returns:
//   - error: non-nil if the transition fails.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, msg string) error {
	return r.markTerminal(ctx, id, domain.JobStatusFailed, map[string]interface{}{
		"error_message": msg,
	})
}

func (r *JobRepository) markTerminal(ctx context.Context, id string, status domain.JobStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&domain.ResearchJob{}).
		Where("id = ? AND status NOT IN ?", id, []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed}).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s is already terminal", id)
	}
	return nil
}

// LastCompletedForMarket retrieves the most recent completed job for a
// market, used to skip re-analysis inside the reprocess window.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - marketID: market identifier.
// Returns:
//   - *domain.ResearchJob: most recent completed job if any.
//   - error: gorm.ErrRecordNotFound when none exists.
func (r *JobRepository) LastCompletedForMarket(ctx context.Context, marketID string) (*domain.ResearchJob, error) {
	var job domain.ResearchJob
	if err := r.db.WithContext(ctx).
		Where("market_id = ? AND status = ?", marketID, domain.JobStatusCompleted).
		Order("completed_at DESC").
		First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CountByStatus counts jobs by status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: job status to count.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *JobRepository) CountByStatus(ctx context.Context, status domain.JobStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ResearchJob{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
