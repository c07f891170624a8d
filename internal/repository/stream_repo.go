package repository

import (
	"context"
	"strings"

	"github.com/meemoee/market-movers-hub-sub000/internal/domain"
	"gorm.io/gorm"
)

// StreamRepository persists ordered analysis chunks so clients can
// replay a job's streamed output after reconnecting.
type StreamRepository struct {
	db *gorm.DB
}

// NewStreamRepository creates a new StreamRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *StreamRepository: repository instance bound to db.
func NewStreamRepository(db *gorm.DB) *StreamRepository {
	return &StreamRepository{db: db}
}

// Append stores a chunk with the next sequence number for the job and
// iteration. Sequence assignment happens inside a transaction so
// concurrent writers never collide on the unique index.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job the chunk belongs to.
//   - iteration: iteration number within the job.
//   - chunk: text fragment to store.
// Returns:
//   - *domain.AnalysisChunk: stored record with its assigned sequence.
//   - error: non-nil if the insert fails.
func (r *StreamRepository) Append(ctx context.Context, jobID string, iteration int, chunk string) (*domain.AnalysisChunk, error) {
	record := &domain.AnalysisChunk{
		JobID:     jobID,
		Iteration: iteration,
		Chunk:     chunk,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var max int
		if err := tx.Model(&domain.AnalysisChunk{}).
			Where("job_id = ? AND iteration = ?", jobID, iteration).
			Select("COALESCE(MAX(sequence), -1)").
			Scan(&max).Error; err != nil {
			return err
		}
		record.Sequence = max + 1
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListAfter retrieves chunks for a job iteration with sequence greater
// than after, in replay order. Pass after = -1 for the full stream.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job the chunks belong to.
//   - iteration: iteration number within the job.
//   - after: last sequence number the caller has already seen.
// Returns:
//   - []domain.AnalysisChunk: chunks ordered by ascending sequence.
//   - error: non-nil if the query fails.
func (r *StreamRepository) ListAfter(ctx context.Context, jobID string, iteration, after int) ([]domain.AnalysisChunk, error) {
	var chunks []domain.AnalysisChunk
	if err := r.db.WithContext(ctx).
		Where("job_id = ? AND iteration = ? AND sequence > ?", jobID, iteration, after).
		Order("sequence ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// ListForJob retrieves all chunks for a job after the given row ID, in
// insertion order across iterations. Used as a resumable cursor when
// replaying a whole job's stream.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job the chunks belong to.
//   - afterID: last chunk row ID the caller has already seen; 0 for all.
// Returns:
//   - []domain.AnalysisChunk: chunks ordered by ascending row ID.
//   - error: non-nil if the query fails.
func (r *StreamRepository) ListForJob(ctx context.Context, jobID string, afterID uint) ([]domain.AnalysisChunk, error) {
	var chunks []domain.AnalysisChunk
	if err := r.db.WithContext(ctx).
		Where("job_id = ? AND id > ?", jobID, afterID).
		Order("id ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// Text reassembles the streamed analysis for a job iteration by
// concatenating chunks in sequence order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job the chunks belong to.
//   - iteration: iteration number within the job.
// Returns:
//   - string: full analysis text.
//   - error: non-nil if the query fails.
func (r *StreamRepository) Text(ctx context.Context, jobID string, iteration int) (string, error) {
	chunks, err := r.ListAfter(ctx, jobID, iteration, -1)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Chunk)
	}
	return b.String(), nil
}
