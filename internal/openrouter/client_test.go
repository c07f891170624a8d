package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func testClient(url string) *Client {
	return NewClient(&Config{
		APIKey:      "test-key",
		BaseURL:     url,
		Retries:     3,
		BackoffBase: 1.01, // keep retry sleeps negligible in tests
	})
}

func TestComplete_StandardSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.Stream {
			t.Error("Complete must not request streaming")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"the answer"}}]}`))
	}))
	defer srv.Close()

	content, err := testClient(srv.URL).Complete(context.Background(), &ChatRequest{
		Model:    "perplexity/sonar",
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "the answer" {
		t.Errorf("content = %q", content)
	}
}

func TestComplete_DeepResearchAnswerField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer":"deep research text"}`))
	}))
	defer srv.Close()

	content, err := testClient(srv.URL).Complete(context.Background(), &ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "deep research text" {
		t.Errorf("content = %q", content)
	}
}

func TestComplete_ErrorEnvelopeIn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":402,"message":"insufficient credits"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Complete(context.Background(), &ChatRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Message != "insufficient credits" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestComplete_RetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"eventually"}}]}`))
	}))
	defer srv.Close()

	content, err := testClient(srv.URL).Complete(context.Background(), &ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "eventually" {
		t.Errorf("content = %q", content)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestComplete_NoRetryOn400(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Complete(context.Background(), &ChatRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("client error must not be retried, got %d calls", calls)
	}
}

func TestCompleteJSON_ExtractsEmbeddedObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("expected json_object response_format")
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"Sure: {\"likelihood\": 0.35}"}}]}`))
	}))
	defer srv.Close()

	var out struct {
		Likelihood float64 `json:"likelihood"`
	}
	err := testClient(srv.URL).CompleteJSON(context.Background(), &ChatRequest{Model: "m"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Likelihood != 0.35 {
		t.Errorf("likelihood = %v", out.Likelihood)
	}
}

func TestListModels_FiltersBySupportedParameter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[
			{"id":"a","name":"A","supported_parameters":["structured_outputs","tools"]},
			{"id":"b","name":"B","supported_parameters":["tools"]},
			{"id":"c","name":"C","supported_parameters":["structured_outputs"]}
		]}`))
	}))
	defer srv.Close()

	models, err := testClient(srv.URL).ListModels(context.Background(), "structured_outputs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].ID != "a" || models[1].ID != "c" {
		t.Errorf("unexpected models: %+v", models)
	}
}

func TestStream_ConcatenatesDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept header = %q", got)
		}
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("Stream must set stream=true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hello \"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"world\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	var deltas []string
	content, err := testClient(srv.URL).Stream(context.Background(), &ChatRequest{Model: "m"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "Hello world" {
		t.Errorf("content = %q, want concatenation of deltas", content)
	}
	if len(deltas) != 2 {
		t.Errorf("expected 2 delta callbacks, got %d", len(deltas))
	}
}

func TestStream_SkipsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {not json\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	content, err := testClient(srv.URL).Stream(context.Background(), &ChatRequest{Model: "m"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "ok" {
		t.Errorf("content = %q", content)
	}
}

func TestStream_ErrorEnvelopeAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n"))
		w.Write([]byte("data: {\"error\":{\"message\":\"provider overloaded\"}}\n\n"))
	}))
	defer srv.Close()

	content, err := testClient(srv.URL).Stream(context.Background(), &ChatRequest{Model: "m"}, nil)
	if err == nil {
		t.Fatal("expected stream error")
	}
	if !strings.Contains(err.Error(), "provider overloaded") {
		t.Errorf("unexpected error: %v", err)
	}
	if content != "partial" {
		t.Errorf("partial content should survive, got %q", content)
	}
}

func TestStream_DeepResearchAnswerChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"answer\":\"seg one \"}\n\n"))
		w.Write([]byte("data: {\"output\":\"seg two\"}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	content, err := testClient(srv.URL).Stream(context.Background(), &ChatRequest{Model: "m"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "seg one seg two" {
		t.Errorf("content = %q", content)
	}
}
