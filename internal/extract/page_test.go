package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sampleHTML = `<!DOCTYPE html>
<html>
<head>
	<title>Election Odds Shift</title>
	<script>var tracking = "ignore me";</script>
	<style>.hidden { display: none; }</style>
</head>
<body>
	<nav>Home | News</nav>
	<h1>Election Odds Shift</h1>
	<p>Polls moved three points this week.</p>
	<p>Analysts cite turnout models.</p>
	<footer>Copyright</footer>
</body>
</html>`

func TestParse_StripsChromeKeepsText(t *testing.T) {
	page, err := NewExtractor(0).Parse(strings.NewReader(sampleHTML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if page.Title != "Election Odds Shift" {
		t.Errorf("title = %q", page.Title)
	}
	if !strings.Contains(page.Content, "Polls moved three points this week.") {
		t.Errorf("content missing paragraph: %q", page.Content)
	}
	if strings.Contains(page.Content, "tracking") || strings.Contains(page.Content, "Home | News") {
		t.Errorf("script/nav text leaked into content: %q", page.Content)
	}
}

func TestParse_TruncatesLongContent(t *testing.T) {
	e := NewExtractor(0)
	e.maxContent = 20

	html := "<html><body><p>" + strings.Repeat("word ", 50) + "</p></body></html>"
	page, err := e.Parse(strings.NewReader(html))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(page.Content)) > 20 {
		t.Errorf("content not truncated: %d runes", len([]rune(page.Content)))
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(sampleHTML))
	}))
	defer srv.Close()

	page, err := NewExtractor(5 * time.Second).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.URL != srv.URL {
		t.Errorf("url = %q", page.URL)
	}
	if page.Title != "Election Odds Shift" {
		t.Errorf("title = %q", page.Title)
	}
}

func TestFetch_RejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 0x50})
	}))
	defer srv.Close()

	if _, err := NewExtractor(5 * time.Second).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected content-type error")
	}
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewExtractor(5 * time.Second).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected HTTP error")
	}
}
