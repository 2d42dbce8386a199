package embedding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newTestServer returns an httptest server that answers the Jina wire shape,
// inspecting return_multivector to pick the response form, and a pointer to
// the request counter.
func newTestServer(t *testing.T) (*httptest.Server, *int64) {
	t.Helper()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)

		body, _ := io.ReadAll(r.Body)
		var req struct {
			ReturnMultivector bool `json:"return_multivector"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		if req.ReturnMultivector {
			io.WriteString(w, `{"data":[{"embeddings":[[0.1,0.2],[0.3,0.4]]}]}`)
		} else {
			io.WriteString(w, `{"data":[{"embedding":[1,2,3]}]}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// newTestClient builds a query-task client pointed at url with a high rate
// limit so tests are not throttled unless they ask to be.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(&Config{
		Task:      TaskQuery,
		APIKey:    "test-key",
		APIURL:    url,
		Model:     "jina-embeddings-v4",
		RateLimit: 1000,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func Test_NewClient_RejectsInvalidTask(t *testing.T) {
	t.Parallel()
	_, err := NewClient(&Config{Task: "summarize", APIKey: "k"})
	if err == nil {
		t.Fatal("want error for invalid task")
	}
	if _, ok := err.(*Error); !ok {
		t.Errorf("want *Error, got %T", err)
	}
}

func Test_NewClient_RejectsMissingAPIKey(t *testing.T) {
	t.Parallel()
	_, err := NewClient(&Config{Task: TaskQuery})
	if err == nil {
		t.Fatal("want error for missing API key")
	}
}

func Test_Embed_EmptyInputFailsFast(t *testing.T) {
	t.Parallel()
	srv, calls := newTestServer(t)
	c := newTestClient(t, srv.URL)

	_, err := c.Embed(context.Background(), nil)
	if err == nil {
		t.Fatal("want error for empty input")
	}
	if _, ok := err.(*Error); !ok {
		t.Errorf("want *Error, got %T", err)
	}
	if got := atomic.LoadInt64(calls); got != 0 {
		t.Errorf("want 0 network calls for empty input, got %d", got)
	}
}

func Test_Embed_OrderPreservedAndFieldsPopulated(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	c := newTestClient(t, srv.URL)

	items := []Item{
		{ID: "q1", Text: "first query"},
		{ID: "q2", Text: "second query"},
		{ID: "q3", Text: "third query"},
	}
	results, err := c.Embed(context.Background(), items)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(results) != len(items) {
		t.Fatalf("want %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.ID != items[i].ID {
			t.Errorf("result[%d].ID = %s, want %s (order must be preserved)", i, r.ID, items[i].ID)
		}
		if r.Text != items[i].Text {
			t.Errorf("result[%d].Text = %q, want source text carried back", i, r.Text)
		}
		if len(r.SingleVector) != 3 {
			t.Errorf("result[%d] single vector length = %d, want 3", i, len(r.SingleVector))
		}
		if len(r.MultiVector) != 2 {
			t.Errorf("result[%d] multi vector token count = %d, want 2", i, len(r.MultiVector))
		}
		if r.Model != "jina-embeddings-v4__retrieval.query" {
			t.Errorf("result[%d].Model = %q", i, r.Model)
		}
	}
}

func Test_Embed_MissingTextForQueryTaskIsPermanent(t *testing.T) {
	t.Parallel()
	srv, calls := newTestServer(t)
	c := newTestClient(t, srv.URL)

	_, err := c.Embed(context.Background(), []Item{{ID: "q1"}})
	if err == nil {
		t.Fatal("want error for query item without text")
	}
	if got := atomic.LoadInt64(calls); got != 0 {
		t.Errorf("payload validation must fail before any network call, got %d calls", got)
	}
}

func Test_Embed_ServerFailureRetriesExactlyMaxAttempts(t *testing.T) {
	t.Parallel()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	const maxAttempts = 3
	c, err := NewClient(&Config{
		Task:        TaskQuery,
		APIKey:      "k",
		APIURL:      srv.URL,
		MaxAttempts: maxAttempts,
		RateLimit:   1000,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.Embed(context.Background(), []Item{{ID: "q1", Text: "x"}})
	if err == nil {
		t.Fatal("want typed error after retries exhausted")
	}
	if _, ok := err.(*Error); !ok {
		t.Errorf("want *Error, got %T: %v", err, err)
	}
	// Each attempt dispatches exactly two calls (single + multi vector).
	if got := atomic.LoadInt64(&calls); got != 2*maxAttempts {
		t.Errorf("want %d network calls (%d attempts x 2), got %d", 2*maxAttempts, maxAttempts, got)
	}
}

func Test_Embed_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&calls, 1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(&Config{
		Task:        TaskQuery,
		APIKey:      "k",
		APIURL:      srv.URL,
		MaxAttempts: 5,
		RateLimit:   1000,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.Embed(context.Background(), []Item{{ID: "q1", Text: "x"}})
	if err == nil {
		t.Fatal("want error for HTTP 400")
	}
	// One attempt, two calls — no retries for 4xx.
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("want 2 network calls (single attempt), got %d", got)
	}
}

func Test_Embed_RateLimiterSpacesDispatches(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()

		body, _ := io.ReadAll(r.Body)
		var req struct {
			ReturnMultivector bool `json:"return_multivector"`
		}
		_ = json.Unmarshal(body, &req)
		if req.ReturnMultivector {
			io.WriteString(w, `{"data":[{"embeddings":[[1,0]]}]}`)
		} else {
			io.WriteString(w, `{"data":[{"embedding":[1,0]}]}`)
		}
	}))
	t.Cleanup(srv.Close)

	const rps = 20.0 // 50ms minimum spacing
	c, err := NewClient(&Config{
		Task:      TaskQuery,
		APIKey:    "k",
		APIURL:    srv.URL,
		RateLimit: rps,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := c.Embed(context.Background(), []Item{
		{ID: "a", Text: "a"},
		{ID: "b", Text: "b"},
	}); err != nil {
		t.Fatalf("embed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stamps) != 4 {
		t.Fatalf("want 4 dispatches, got %d", len(stamps))
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	// Allow a small scheduling margin below the nominal 50ms interval.
	minGap := time.Duration(float64(time.Second)/rps) * 8 / 10
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < minGap {
			t.Errorf("dispatch gap %d = %v, want >= %v", i, gap, minGap)
		}
	}
}

func Test_Embed_PassageTaskRequiresDocument(t *testing.T) {
	t.Parallel()
	srv, calls := newTestServer(t)
	c, err := NewClient(&Config{
		Task:      TaskPassage,
		APIKey:    "k",
		APIURL:    srv.URL,
		RateLimit: 1000,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := c.Embed(context.Background(), []Item{{ID: "p1", Text: "not a document"}}); err == nil {
		t.Fatal("want error for passage item without document bytes")
	}
	if got := atomic.LoadInt64(calls); got != 0 {
		t.Errorf("want 0 network calls, got %d", got)
	}

	results, err := c.Embed(context.Background(), []Item{{ID: "p1", Document: []byte("%PDF-1.4 fake")}})
	if err != nil {
		t.Fatalf("embed passage: %v", err)
	}
	if results[0].Text != "" {
		t.Errorf("passage result must not carry source text, got %q", results[0].Text)
	}
}
