package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meemoee/market-movers-hub-sub000/internal/config"
	"github.com/meemoee/market-movers-hub-sub000/internal/domain"
	"github.com/meemoee/market-movers-hub-sub000/internal/extract"
	"github.com/meemoee/market-movers-hub-sub000/internal/gamma"
	"github.com/meemoee/market-movers-hub-sub000/internal/logger"
	"github.com/meemoee/market-movers-hub-sub000/internal/openrouter"
	"github.com/meemoee/market-movers-hub-sub000/internal/repository"
)

// fakeRouter mimics the OpenRouter chat-completions endpoint, picking a
// canned reply from markers in the prompt.
func fakeRouter(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openrouter.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		prompt := req.Messages[len(req.Messages)-1].Content

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			text := "Iteration analysis. LIKELIHOOD: 0.6"
			if strings.Contains(prompt, "final evaluation") {
				text = "Final evaluation: Likely. LIKELIHOOD: 0.7"
			}
			half := len(text) / 2
			for _, part := range []string{text[:half], text[half:]} {
				payload, _ := json.Marshal(map[string]interface{}{
					"choices": []map[string]interface{}{{"delta": map[string]string{"content": part}}},
				})
				fmt.Fprintf(w, "data: %s\n\n", payload)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		var content string
		switch {
		case strings.Contains(prompt, `{"queries":`):
			content = `{"queries": ["base rates for similar outcomes", "latest expert odds"]}`
		case strings.Contains(prompt, `{"answer":`):
			content = `{"answer": "Recent polling is stable.", "sources": []}`
		case strings.Contains(prompt, "areasForResearch"):
			content = `{"probability": "70%", "areasForResearch": ["turnout models"]}`
		case strings.Contains(prompt, "'LIKELIHOOD: [x]'"):
			content = `{"likelihood": 0.7}`
		case strings.Contains(prompt, `{"events":`):
			content = `{"events": [{"title": "2016 US Presidential Election", "date": "2016-11-08", "similarities": ["polling gap"], "differences": ["incumbent race"]}]}`
		default:
			t.Errorf("unexpected prompt: %.120s", prompt)
			content = "{}"
		}
		resp, _ := json.Marshal(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"content": content}}},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	}))
}

func fakeGamma(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/markets":
			fmt.Fprint(w, `[{"slug":"test-market","question":"Will the test pass?","description":"A test market.","active":true,"closed":false,"outcomePrices":"[\"0.35\",\"0.65\"]"}]`)
		case "/events":
			fmt.Fprint(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestService(t *testing.T, routerURL, gammaURL string) (*ResearchService, *repository.JobRepository, *repository.StreamRepository) {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", AutoMigrate: true, MaxIdleConns: 1, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	jobs := repository.NewJobRepository(db)
	streams := repository.NewStreamRepository(db)
	research := repository.NewResearchRepository(db)

	or := openrouter.NewClient(&openrouter.Config{
		APIKey:      "test",
		BaseURL:     routerURL,
		Timeout:     5 * time.Second,
		Retries:     1,
		BackoffBase: 1.01,
	})
	gammaClient := gamma.NewClient(&gamma.Config{BaseURL: gammaURL, Timeout: 5 * time.Second})

	svc := NewResearchService(jobs, streams, research, or, gammaClient,
		extract.NewExtractor(2*time.Second), logger.NewDefault(), &ResearchConfig{
			AnalysisModel:       "perplexity/sonar",
			ExtractionModel:     "google/gemini-2.5-flash",
			MaxTokens:           8000,
			MaxIterations:       2,
			QueriesPerIteration: 2,
			MaxSearchResults:    3,
			ReprocessWindow:     7 * 24 * time.Hour,
		})
	return svc, jobs, streams
}

func TestResearchService_ExecuteCompletesJob(t *testing.T) {
	router := fakeRouter(t)
	defer router.Close()
	gammaSrv := fakeGamma(t)
	defer gammaSrv.Close()

	svc, jobs, streams := newTestService(t, router.URL, gammaSrv.URL)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, &CreateJobRequest{MarketSlug: "test-market"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Query != "Will the test pass?" {
		t.Errorf("query defaulted to %q, want market question", job.Query)
	}

	claimed, err := jobs.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if err := svc.Execute(ctx, claimed); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	done, err := jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if done.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed (error: %s)", done.Status, done.ErrorMessage)
	}
	if len(done.Iterations) != 2 {
		t.Errorf("iterations = %d, want 2", len(done.Iterations))
	}
	if done.Iterations[0].Analysis == "" {
		t.Error("iteration 1 analysis empty")
	}
	if done.Results["probability"] != "70%" {
		t.Errorf("probability = %v", done.Results["probability"])
	}
	if lk, ok := done.Results["likelihood"].(float64); !ok || lk != 0.7 {
		t.Errorf("likelihood = %v", done.Results["likelihood"])
	}
	if len(done.ProgressLog) == 0 {
		t.Error("progress log empty")
	}

	// Streamed chunks reassemble to the stored analysis text.
	text, err := streams.Text(ctx, job.ID, 1)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != done.Iterations[0].Analysis {
		t.Errorf("stream text %q != stored analysis %q", text, done.Iterations[0].Analysis)
	}

	// Final evaluation streams one iteration past the research passes.
	finalText, err := streams.Text(ctx, job.ID, done.MaxIterations+1)
	if err != nil {
		t.Fatalf("final Text: %v", err)
	}
	if !strings.Contains(finalText, "Final evaluation") {
		t.Errorf("final stream = %q", finalText)
	}
}

func TestResearchService_ReprocessWindow(t *testing.T) {
	router := fakeRouter(t)
	defer router.Close()
	gammaSrv := fakeGamma(t)
	defer gammaSrv.Close()

	svc, jobs, _ := newTestService(t, router.URL, gammaSrv.URL)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, &CreateJobRequest{MarketSlug: "test-market"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := jobs.MarkCompleted(ctx, job.ID, nil); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	if _, err := svc.CreateJob(ctx, &CreateJobRequest{MarketSlug: "test-market"}); !errors.Is(err, ErrRecentlyResearched) {
		t.Errorf("err = %v, want ErrRecentlyResearched", err)
	}

	if _, err := svc.CreateJob(ctx, &CreateJobRequest{MarketSlug: "test-market", Force: true}); err != nil {
		t.Errorf("forced CreateJob: %v", err)
	}
}

func TestResearchService_RetryOnlyFailedJobs(t *testing.T) {
	router := fakeRouter(t)
	defer router.Close()
	gammaSrv := fakeGamma(t)
	defer gammaSrv.Close()

	svc, jobs, _ := newTestService(t, router.URL, gammaSrv.URL)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, &CreateJobRequest{MarketSlug: "test-market", FocusText: "turnout"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if _, err := svc.Retry(ctx, job.ID); err == nil {
		t.Error("retrying a queued job should error")
	}

	if err := jobs.MarkFailed(ctx, job.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	retried, err := svc.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.ID == job.ID {
		t.Error("retry must create a new job")
	}
	if retried.FocusText != "turnout" {
		t.Errorf("focus text = %q, want carried over", retried.FocusText)
	}
	if retried.Status != domain.JobStatusQueued {
		t.Errorf("status = %q, want queued", retried.Status)
	}
}

func TestWorkerPool_DrainsQueue(t *testing.T) {
	router := fakeRouter(t)
	defer router.Close()
	gammaSrv := fakeGamma(t)
	defer gammaSrv.Close()

	svc, jobs, _ := newTestService(t, router.URL, gammaSrv.URL)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, &CreateJobRequest{MarketSlug: "test-market"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	pool := NewWorkerPool(svc, logger.NewDefault(), &WorkerConfig{Workers: 1, PollInterval: 20 * time.Millisecond})
	pool.Start(ctx)
	defer pool.Stop()

	deadline := time.After(10 * time.Second)
	for {
		got, err := jobs.GetByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status.Terminal() {
			if got.Status != domain.JobStatusCompleted {
				t.Fatalf("status = %q (error: %s)", got.Status, got.ErrorMessage)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job never reached a terminal state, status %q", got.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestQuickResearch_StreamsAndSaves(t *testing.T) {
	router := fakeRouter(t)
	defer router.Close()
	gammaSrv := fakeGamma(t)
	defer gammaSrv.Close()

	svc, _, _ := newTestService(t, router.URL, gammaSrv.URL)
	ctx := context.Background()

	var streamed strings.Builder
	record, err := svc.QuickResearch(ctx, &QuickResearchRequest{
		Query:  "Will the Fed cut rates in September?",
		UserID: "user-1",
	}, func(delta string) error {
		streamed.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("QuickResearch: %v", err)
	}
	if record.Analysis == "" || record.Analysis != streamed.String() {
		t.Errorf("analysis %q, streamed %q", record.Analysis, streamed.String())
	}
	if record.Probability != "70%" {
		t.Errorf("probability = %q", record.Probability)
	}

	saved, err := svc.GetWebResearch(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetWebResearch: %v", err)
	}
	if saved.Query != record.Query {
		t.Errorf("saved query = %q", saved.Query)
	}
}

func TestHistoricalService_GenerateComparisons(t *testing.T) {
	router := fakeRouter(t)
	defer router.Close()
	gammaSrv := fakeGamma(t)
	defer gammaSrv.Close()

	db, err := repository.InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", AutoMigrate: true, MaxIdleConns: 1, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	research := repository.NewResearchRepository(db)
	or := openrouter.NewClient(&openrouter.Config{APIKey: "test", BaseURL: router.URL, Retries: 1, BackoffBase: 1.01})
	gammaClient := gamma.NewClient(&gamma.Config{BaseURL: gammaSrv.URL})

	svc := NewHistoricalService(research, or, gammaClient, logger.NewDefault(), "google/gemini-2.5-flash")
	ctx := context.Background()

	comparisons, err := svc.GenerateComparisons(ctx, "test-market")
	if err != nil {
		t.Fatalf("GenerateComparisons: %v", err)
	}
	if len(comparisons) != 1 {
		t.Fatalf("len = %d, want 1", len(comparisons))
	}
	if comparisons[0].Event.Title != "2016 US Presidential Election" {
		t.Errorf("title = %q", comparisons[0].Event.Title)
	}

	// Running again links to the same deduplicated event.
	again, err := svc.GenerateComparisons(ctx, "test-market")
	if err != nil {
		t.Fatalf("GenerateComparisons again: %v", err)
	}
	events, err := svc.ListEvents(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("events = %d, want 1 after dedup", len(events))
	}
	if again[0].Event.ID != comparisons[0].Event.ID {
		t.Error("comparison should reference the deduplicated event")
	}

	stored, err := svc.ComparisonsForMarket(ctx, "test-market")
	if err != nil {
		t.Fatalf("ComparisonsForMarket: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored comparisons = %d, want 1", len(stored))
	}
}
