package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/meemoee/market-movers-hub-sub000/internal/domain"
	"github.com/meemoee/market-movers-hub-sub000/internal/extract"
	"github.com/meemoee/market-movers-hub-sub000/internal/gamma"
	"github.com/meemoee/market-movers-hub-sub000/internal/logger"
	"github.com/meemoee/market-movers-hub-sub000/internal/openrouter"
	"github.com/meemoee/market-movers-hub-sub000/internal/prompts"
	"github.com/meemoee/market-movers-hub-sub000/internal/repository"
)

// ResearchConfig holds configuration for the research service.
type ResearchConfig struct {
	AnalysisModel       string
	ExtractionModel     string
	MaxTokens           int
	MaxIterations       int
	QueriesPerIteration int
	MaxSearchResults    int
	ReprocessWindow     time.Duration
}

// ResearchService runs multi-iteration web research for prediction
// markets: generate queries, gather sources, stream analysis, extract
// insights, close with a final evaluation.
type ResearchService struct {
	jobs      *repository.JobRepository
	streams   *repository.StreamRepository
	research  *repository.ResearchRepository
	or        *openrouter.Client
	gamma     *gamma.Client
	extractor *extract.Extractor
	logger    *logger.Logger

	analysisModel       string
	extractionModel     string
	maxTokens           int
	maxIterations       int
	queriesPerIteration int
	maxSearchResults    int
	reprocessWindow     time.Duration
}

// NewResearchService creates a new research service.
func NewResearchService(
	jobs *repository.JobRepository,
	streams *repository.StreamRepository,
	research *repository.ResearchRepository,
	or *openrouter.Client,
	gammaClient *gamma.Client,
	extractor *extract.Extractor,
	log *logger.Logger,
	cfg *ResearchConfig,
) *ResearchService {
	return &ResearchService{
		jobs:                jobs,
		streams:             streams,
		research:            research,
		or:                  or,
		gamma:               gammaClient,
		extractor:           extractor,
		logger:              log,
		analysisModel:       cfg.AnalysisModel,
		extractionModel:     cfg.ExtractionModel,
		maxTokens:           cfg.MaxTokens,
		maxIterations:       cfg.MaxIterations,
		queriesPerIteration: cfg.QueriesPerIteration,
		maxSearchResults:    cfg.MaxSearchResults,
		reprocessWindow:     cfg.ReprocessWindow,
	}
}

// log returns a logger from context if available, otherwise the default.
func (s *ResearchService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// CreateJobRequest holds parameters for creating a research job.
type CreateJobRequest struct {
	MarketSlug    string `json:"market_slug" binding:"required"`
	Query         string `json:"query"`
	FocusText     string `json:"focus_text"`
	Model         string `json:"model"`
	UserID        string `json:"user_id"`
	MaxIterations int    `json:"max_iterations"`
	Force         bool   `json:"force"`
}

// ErrRecentlyResearched indicates a market already has a completed job
// inside the reprocess window; pass Force to queue another run.
var ErrRecentlyResearched = errors.New("market was researched recently")

// CreateJob resolves the market and queues a research job. Markets with
// a completed job inside the reprocess window are rejected unless
// forced.
func (s *ResearchService) CreateJob(ctx context.Context, req *CreateJobRequest) (*domain.ResearchJob, error) {
	market, err := s.gamma.MarketBySlug(ctx, req.MarketSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve market: %w", err)
	}

	if !req.Force {
		last, err := s.jobs.LastCompletedForMarket(ctx, market.Slug)
		if err == nil && last.CompletedAt != nil && time.Since(*last.CompletedAt) < s.reprocessWindow {
			return nil, fmt.Errorf("%w: completed %s ago", ErrRecentlyResearched, time.Since(*last.CompletedAt).Round(time.Minute))
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	query := req.Query
	if query == "" {
		query = market.QuestionTitle()
	}
	model := req.Model
	if model == "" {
		model = s.analysisModel
	}
	maxIter := req.MaxIterations
	if maxIter <= 0 || maxIter > 10 {
		maxIter = s.maxIterations
	}

	job := &domain.ResearchJob{
		ID:            uuid.New().String(),
		MarketID:      market.Slug,
		Query:         query,
		FocusText:     req.FocusText,
		Model:         model,
		UserID:        req.UserID,
		Status:        domain.JobStatusQueued,
		MaxIterations: maxIter,
		ProgressLog:   domain.StringArray{"Job queued"},
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID:    job.ID,
		logger.FieldMarketID: job.MarketID,
		logger.FieldModel:    job.Model,
	}).Info("Research job queued")
	return job, nil
}

// Retry queues a fresh job with the same parameters as a failed one.
// Terminal statuses never change, so a retry is always a new job.
func (s *ResearchService) Retry(ctx context.Context, jobID string) (*domain.ResearchJob, error) {
	prev, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if prev.Status != domain.JobStatusFailed {
		return nil, fmt.Errorf("job %s is %s, only failed jobs can be retried", jobID, prev.Status)
	}
	return s.CreateJob(ctx, &CreateJobRequest{
		MarketSlug:    prev.MarketID,
		Query:         prev.Query,
		FocusText:     prev.FocusText,
		Model:         prev.Model,
		UserID:        prev.UserID,
		MaxIterations: prev.MaxIterations,
		Force:         true,
	})
}

// GetJob retrieves a job by ID.
func (s *ResearchService) GetJob(ctx context.Context, id string) (*domain.ResearchJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs lists jobs, optionally filtered by market.
func (s *ResearchService) ListJobs(ctx context.Context, marketID string, limit, offset int) ([]domain.ResearchJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.jobs.List(ctx, marketID, limit, offset)
}

// QueueDepth reports how many jobs are queued and processing.
func (s *ResearchService) QueueDepth(ctx context.Context) (queued, processing int64, err error) {
	if queued, err = s.jobs.CountByStatus(ctx, domain.JobStatusQueued); err != nil {
		return 0, 0, err
	}
	if processing, err = s.jobs.CountByStatus(ctx, domain.JobStatusProcessing); err != nil {
		return 0, 0, err
	}
	return queued, processing, nil
}

// StreamChunks returns persisted analysis chunks after the given
// sequence for a job iteration.
func (s *ResearchService) StreamChunks(ctx context.Context, jobID string, iteration, after int) ([]domain.AnalysisChunk, error) {
	return s.streams.ListAfter(ctx, jobID, iteration, after)
}

// StreamChunksForJob returns all persisted chunks for a job after the
// given row ID, a resumable cursor across iterations.
func (s *ResearchService) StreamChunksForJob(ctx context.Context, jobID string, afterID uint) ([]domain.AnalysisChunk, error) {
	return s.streams.ListForJob(ctx, jobID, afterID)
}

// Execute runs a claimed job to a terminal state. A context cancel
// mid-run fails the job but keeps all chunks persisted so far.
func (s *ResearchService) Execute(ctx context.Context, job *domain.ResearchJob) error {
	ctx = logger.SetJobID(ctx, job.ID)
	ctx = logger.SetMarketID(ctx, job.MarketID)

	start := time.Now()
	s.log(ctx).Info("Starting research job")

	results, err := s.run(ctx, job)
	if err != nil {
		s.log(ctx).WithError(err).Error("Research job failed")
		_ = s.jobs.AppendProgress(context.WithoutCancel(ctx), job.ID, "Job failed: "+err.Error())
		if markErr := s.jobs.MarkFailed(context.WithoutCancel(ctx), job.ID, err.Error()); markErr != nil {
			return markErr
		}
		return err
	}

	if err := s.jobs.MarkCompleted(ctx, job.ID, results); err != nil {
		return err
	}
	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldIteration:  job.CurrentIteration,
	}).Info(ctx, "Research job completed")
	return nil
}

func (s *ResearchService) run(ctx context.Context, job *domain.ResearchJob) (domain.JSONMap, error) {
	market, err := s.gamma.MarketBySlug(ctx, job.MarketID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve market: %w", err)
	}
	marketBlock := s.marketBlock(ctx, market, job.FocusText)

	var priceBlock string
	if info := market.PriceInfo(); info != nil {
		priceBlock = prompts.PriceBlock(info.Center, info.LowerBound, info.UpperBound, true)
	} else {
		priceBlock = prompts.PriceBlock(0, 0, 0, false)
	}

	var lastAnalysis string
	var analyses []string

	for i := 1; i <= job.MaxIterations; i++ {
		ctx := logger.SetIteration(ctx, i)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_ = s.jobs.AppendProgress(ctx, job.ID, fmt.Sprintf("Starting iteration %d of %d", i, job.MaxIterations))

		queries, err := s.generateQueries(ctx, marketBlock, i, lastAnalysis)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		_ = s.jobs.AppendProgress(ctx, job.ID, fmt.Sprintf("Iteration %d: searching %d queries", i, len(queries)))

		sources := s.search(ctx, queries)
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldIteration: i,
			logger.FieldCount:     len(sources),
		}).Info("Web search finished")

		analysis, err := s.streamAnalysis(ctx, job, marketBlock, priceBlock, sources, i)
		if err != nil {
			// Keep partial text usable when the model was cut off mid-answer.
			if analysis == "" {
				return nil, fmt.Errorf("iteration %d analysis: %w", i, err)
			}
			s.log(ctx).WithError(err).Warn("Analysis stream ended early, keeping partial text")
		}

		iteration := domain.Iteration{
			Number:   i,
			Queries:  queries,
			Sources:  sources,
			Analysis: analysis,
		}
		job.Iterations = append(job.Iterations, iteration)
		job.CurrentIteration = i
		if err := s.jobs.Update(ctx, job); err != nil {
			return nil, err
		}

		lastAnalysis = analysis
		analyses = append(analyses, fmt.Sprintf("=== Iteration %d ===\n%s", i, analysis))
	}

	_ = s.jobs.AppendProgress(ctx, job.ID, "Generating final evaluation")
	return s.finalize(ctx, job, marketBlock, priceBlock, analyses)
}

// marketBlock renders the market metadata plus sibling-market context
// when the market belongs to an event.
func (s *ResearchService) marketBlock(ctx context.Context, market *gamma.Market, focusText string) string {
	block := prompts.MarketBlock(market.QuestionTitle(), market.Description, focusText)

	siblings, _, err := s.gamma.ActiveEventMarkets(ctx, market.Slug)
	if err != nil || len(siblings) <= 1 {
		return block
	}
	var b strings.Builder
	b.WriteString(block)
	b.WriteString("Other active event markets:\n")
	for _, m := range siblings {
		if m.Slug == market.Slug {
			continue
		}
		line := m.QuestionTitle()
		if info := m.PriceInfo(); info != nil {
			line += fmt.Sprintf(" (consensus %.2f)", info.Center)
		}
		b.WriteString("- " + line + "\n")
	}
	return b.String()
}

func (s *ResearchService) generateQueries(ctx context.Context, marketBlock string, iteration int, priorAnalysis string) (domain.StringArray, error) {
	var out struct {
		Queries []string `json:"queries"`
	}
	req := &openrouter.ChatRequest{
		Model: s.extractionModel,
		Messages: []openrouter.Message{
			{Role: "system", Content: prompts.ExtractionSystemPrompt},
			{Role: "user", Content: prompts.QueryGeneration(marketBlock, s.queriesPerIteration, iteration, priorAnalysis)},
		},
	}
	if err := s.or.CompleteJSON(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("query generation: %w", err)
	}
	if len(out.Queries) == 0 {
		return nil, fmt.Errorf("query generation returned no queries")
	}
	if len(out.Queries) > s.queriesPerIteration {
		out.Queries = out.Queries[:s.queriesPerIteration]
	}
	return out.Queries, nil
}

// search answers each query through the web-search plugin concurrently
// and enriches cited pages with extracted text. Individual query
// failures are logged and skipped; the iteration proceeds with whatever
// was gathered.
func (s *ResearchService) search(ctx context.Context, queries []string) domain.SourceList {
	results := make([]domain.SourceList, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(queries))
	for idx, q := range queries {
		idx, q := idx, q
		g.Go(func() error {
			srcs, err := s.searchOne(gctx, q)
			if err != nil {
				s.log(gctx).WithField("query", q).WithError(err).Warn("Web search query failed")
				return nil
			}
			results[idx] = srcs
			return nil
		})
	}
	_ = g.Wait()

	var all domain.SourceList
	seen := make(map[string]bool)
	for _, srcs := range results {
		for _, src := range srcs {
			if src.URL != "" && seen[src.URL] {
				continue
			}
			seen[src.URL] = true
			all = append(all, src)
		}
	}
	return all
}

func (s *ResearchService) searchOne(ctx context.Context, query string) (domain.SourceList, error) {
	var out struct {
		Answer  string `json:"answer"`
		Sources []struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"sources"`
	}
	req := &openrouter.ChatRequest{
		Model: s.analysisModel,
		Messages: []openrouter.Message{
			{Role: "system", Content: prompts.AnalystSystemPrompt()},
			{Role: "user", Content: query + "\n\nAnswer the question in-depth using current web results. Return JSON: {\"answer\": \"<your answer>\", \"sources\": [{\"url\": \"...\", \"title\": \"...\"}]}"},
		},
		Plugins: []openrouter.Plugin{{ID: "web", MaxResults: s.maxSearchResults}},
	}
	if err := s.or.CompleteJSON(ctx, req, &out); err != nil {
		return nil, err
	}

	srcs := domain.SourceList{{Title: query, Content: out.Answer}}
	for _, cited := range out.Sources {
		if len(srcs) > s.maxSearchResults {
			break
		}
		src := domain.Source{URL: cited.URL, Title: cited.Title}
		if page, err := s.extractor.Fetch(ctx, cited.URL); err == nil {
			if src.Title == "" {
				src.Title = page.Title
			}
			src.Content = page.Content
		}
		srcs = append(srcs, src)
	}
	return srcs, nil
}

// streamAnalysis streams the iteration analysis, persisting every delta
// as an ordered chunk so clients can replay the stream.
func (s *ResearchService) streamAnalysis(ctx context.Context, job *domain.ResearchJob, marketBlock, priceBlock string, sources domain.SourceList, iteration int) (string, error) {
	req := &openrouter.ChatRequest{
		Model:     job.Model,
		MaxTokens: s.maxTokens,
		Messages: []openrouter.Message{
			{Role: "system", Content: prompts.AnalystSystemPrompt()},
			{Role: "user", Content: prompts.Analysis(marketBlock, priceBlock, sourcesText(sources), iteration, job.MaxIterations)},
		},
	}
	return s.or.Stream(ctx, req, func(delta string) error {
		_, err := s.streams.Append(ctx, job.ID, iteration, delta)
		return err
	})
}

func sourcesText(sources domain.SourceList) string {
	var b strings.Builder
	for _, src := range sources {
		if src.Title != "" {
			b.WriteString(src.Title + "\n")
		}
		if src.URL != "" {
			b.WriteString(src.URL + "\n")
		}
		if src.Content != "" {
			b.WriteString(src.Content + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// finalize streams the final evaluation one iteration past the last
// research pass, then extracts the structured insights for the results
// blob.
func (s *ResearchService) finalize(ctx context.Context, job *domain.ResearchJob, marketBlock, priceBlock string, analyses []string) (domain.JSONMap, error) {
	finalIteration := job.MaxIterations + 1
	req := &openrouter.ChatRequest{
		Model:       s.extractionModel,
		MaxTokens:   s.maxTokens,
		Temperature: 0.2,
		Messages: []openrouter.Message{
			{Role: "system", Content: "You are a rigorous forecasting analyst."},
			{Role: "user", Content: prompts.FinalEvaluation(marketBlock, priceBlock, strings.Join(analyses, "\n\n"))},
		},
	}
	evaluation, err := s.or.Stream(ctx, req, func(delta string) error {
		_, err := s.streams.Append(ctx, job.ID, finalIteration, delta)
		return err
	})
	if err != nil && evaluation == "" {
		return nil, fmt.Errorf("final evaluation: %w", err)
	}

	results := domain.JSONMap{"analysis": evaluation}

	insights, err := s.extractInsights(ctx, marketBlock, evaluation)
	if err != nil {
		s.log(ctx).WithError(err).Warn("Insights extraction failed, keeping text results")
		return results, nil
	}
	results["probability"] = insights.Probability
	areas := make([]interface{}, 0, len(insights.AreasForResearch))
	for _, a := range insights.AreasForResearch {
		areas = append(areas, a)
	}
	results["areasForResearch"] = areas

	if likelihood, ok := s.extractLikelihood(ctx, evaluation); ok {
		results["likelihood"] = likelihood
	}
	return results, nil
}

func (s *ResearchService) extractInsights(ctx context.Context, marketBlock, analysis string) (*domain.InsightsResult, error) {
	var out domain.InsightsResult
	req := &openrouter.ChatRequest{
		Model:       s.extractionModel,
		Temperature: 0,
		Messages: []openrouter.Message{
			{Role: "system", Content: prompts.ExtractionSystemPrompt},
			{Role: "user", Content: prompts.Insights(marketBlock, analysis)},
		},
	}
	if err := s.or.CompleteJSON(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.Probability == "" {
		return nil, fmt.Errorf("insights missing probability")
	}
	return &out, nil
}

func (s *ResearchService) extractLikelihood(ctx context.Context, analysis string) (float64, bool) {
	var out struct {
		Likelihood *float64 `json:"likelihood"`
	}
	req := &openrouter.ChatRequest{
		Model:       s.extractionModel,
		Temperature: 0,
		Messages: []openrouter.Message{
			{Role: "system", Content: "You extract structured values from text."},
			{Role: "user", Content: prompts.LikelihoodExtraction(analysis)},
		},
	}
	if err := s.or.CompleteJSON(ctx, req, &out); err != nil || out.Likelihood == nil {
		return 0, false
	}
	if *out.Likelihood < 0 || *out.Likelihood > 1 {
		return 0, false
	}
	return *out.Likelihood, true
}
