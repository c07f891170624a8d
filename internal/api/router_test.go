package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
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
	"github.com/meemoee/market-movers-hub-sub000/internal/service"
)

type testEnv struct {
	router   http.Handler
	research *service.ResearchService
	jobs     *repository.JobRepository
	streams  *repository.StreamRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	routerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openrouter.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt := req.Messages[len(req.Messages)-1].Content

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			text := "Streamed analysis. LIKELIHOOD: 0.6"
			if strings.Contains(prompt, "final evaluation") {
				text = "Final word. LIKELIHOOD: 0.7"
			}
			payload, _ := json.Marshal(map[string]interface{}{
				"choices": []map[string]interface{}{{"delta": map[string]string{"content": text}}},
			})
			fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", payload)
			return
		}

		var content string
		switch {
		case strings.Contains(prompt, `{"queries":`):
			content = `{"queries": ["q1"]}`
		case strings.Contains(prompt, `{"answer":`):
			content = `{"answer": "An answer.", "sources": []}`
		case strings.Contains(prompt, "areasForResearch"):
			content = `{"probability": "60%", "areasForResearch": ["more polls"]}`
		case strings.Contains(prompt, "'LIKELIHOOD: [x]'"):
			content = `{"likelihood": 0.6}`
		case strings.Contains(prompt, `{"events":`):
			content = `{"events": [{"title": "Brexit referendum", "date": "2016-06-23", "similarities": ["polling misses"], "differences": []}]}`
		default:
			content = "{}"
		}
		resp, _ := json.Marshal(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"content": content}}},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	}))
	t.Cleanup(routerSrv.Close)

	gammaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/markets" && r.URL.Query().Get("slug") == "test-market" {
			fmt.Fprint(w, `[{"slug":"test-market","question":"Will it resolve YES?","active":true,"closed":false,"lastTradePrice":0.55}]`)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	t.Cleanup(gammaSrv.Close)

	db, err := repository.InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", AutoMigrate: true, MaxIdleConns: 1, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	jobs := repository.NewJobRepository(db)
	streams := repository.NewStreamRepository(db)
	researchRepo := repository.NewResearchRepository(db)

	or := openrouter.NewClient(&openrouter.Config{APIKey: "test", BaseURL: routerSrv.URL, Retries: 1, BackoffBase: 1.01})
	gammaClient := gamma.NewClient(&gamma.Config{BaseURL: gammaSrv.URL})
	log := logger.NewDefault()

	research := service.NewResearchService(jobs, streams, researchRepo, or, gammaClient,
		extract.NewExtractor(time.Second), log, &service.ResearchConfig{
			AnalysisModel:       "perplexity/sonar",
			ExtractionModel:     "google/gemini-2.5-flash",
			MaxTokens:           8000,
			MaxIterations:       1,
			QueriesPerIteration: 1,
			MaxSearchResults:    2,
			ReprocessWindow:     7 * 24 * time.Hour,
		})
	historical := service.NewHistoricalService(researchRepo, or, gammaClient, log, "google/gemini-2.5-flash")

	router := SetupRouter(&RouterDeps{
		Research:     research,
		Historical:   historical,
		Gamma:        gammaClient,
		OpenRouter:   or,
		Logger:       log,
		PollInterval: 20 * time.Millisecond,
	}, &config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowAllOrigins: true}})

	return &testEnv{router: router, research: research, jobs: jobs, streams: streams}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"queued"`) {
		t.Fatalf("expected queue depth in body: %s", w.Body.String())
	}
}

func TestCreateAndGetJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/research-jobs", `{"market_slug": "test-market"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	var job domain.ResearchJob
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Errorf("status = %q, want queued", job.Status)
	}
	if job.Query != "Will it resolve YES?" {
		t.Errorf("query = %q", job.Query)
	}

	w = env.do(t, http.MethodGet, "/api/v1/research-jobs/"+job.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/research-jobs?market_id=test-market", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), job.ID) {
		t.Error("list does not contain the created job")
	}
}

func TestCreateJobValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/research-jobs", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/research-jobs/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestReprocessWindowConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(t, http.MethodPost, "/api/v1/research-jobs", `{"market_slug": "test-market"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	var job domain.ResearchJob
	_ = json.Unmarshal(w.Body.Bytes(), &job)
	if err := env.jobs.MarkCompleted(ctx, job.ID, nil); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	w = env.do(t, http.MethodPost, "/api/v1/research-jobs", `{"market_slug": "test-market"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/research-jobs", `{"market_slug": "test-market", "force": true}`)
	if w.Code != http.StatusCreated {
		t.Errorf("forced status = %d, want 201", w.Code)
	}
}

func TestRetryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(t, http.MethodPost, "/api/v1/research-jobs", `{"market_slug": "test-market"}`)
	var job domain.ResearchJob
	_ = json.Unmarshal(w.Body.Bytes(), &job)

	// Queued jobs cannot be retried.
	w = env.do(t, http.MethodPost, "/api/v1/research-jobs/"+job.ID+"/retry", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	if err := env.jobs.MarkFailed(ctx, job.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	w = env.do(t, http.MethodPost, "/api/v1/research-jobs/"+job.ID+"/retry", "")
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201, body %s", w.Code, w.Body.String())
	}
}

func TestStreamJobReplaysChunksAndEnds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(t, http.MethodPost, "/api/v1/research-jobs", `{"market_slug": "test-market"}`)
	var job domain.ResearchJob
	_ = json.Unmarshal(w.Body.Bytes(), &job)

	claimed, err := env.jobs.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if err := env.research.Execute(ctx, claimed); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	w = env.do(t, http.MethodGet, "/api/v1/research-jobs/"+job.ID+"/stream", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stream status = %d", w.Code)
	}
	body := w.Body.String()

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(body, "event: message") {
		t.Error("missing message frames")
	}
	if !strings.Contains(body, "Streamed analysis") {
		t.Error("missing analysis chunk content")
	}
	if !strings.Contains(body, "event: done") {
		t.Error("missing done frame")
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Errorf("stream must end with the [DONE] sentinel, got tail %q", body[len(body)-40:])
	}
}

func TestQuickResearchEndpointStreams(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/web-research", `{"query": "Will rates fall?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "Streamed analysis") {
		t.Error("missing streamed content")
	}
	if !strings.Contains(body, "event: done") {
		t.Error("missing done frame")
	}
	if !strings.Contains(body, "data: [DONE]") {
		t.Error("missing [DONE] sentinel")
	}
}

func TestMarketEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/markets/test-market", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"center":0.55`) {
		t.Errorf("missing price info: %s", w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/v1/markets/unknown", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestComparisonsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/markets/test-market/comparisons", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("generate status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Brexit referendum") {
		t.Error("missing generated comparison")
	}

	w = env.do(t, http.MethodGet, "/api/v1/markets/test-market/comparisons", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/historical-events", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Brexit referendum") {
		t.Errorf("events status = %d, body %s", w.Code, w.Body.String())
	}
}
