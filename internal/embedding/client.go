package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/Jamessukanto/rag-multimodal/internal/logging"
)

// Config holds the settings for constructing a Client.
type Config struct {
	// Task selects query vs. passage embedding. Required.
	Task Task

	// APIKey is the Jina API Bearer token. Required.
	APIKey string

	// APIURL is the embeddings endpoint (default: https://api.jina.ai/v1/embeddings).
	APIURL string

	// Model is the embedding model name (default: jina-embeddings-v4).
	Model string

	// Timeout is the per-request HTTP timeout (default: 120s).
	Timeout time.Duration

	// MaxAttempts is the total number of attempts per Embed call,
	// including the first (default: 3).
	MaxAttempts int

	// RateLimit is the maximum API dispatch rate in requests per second
	// (default: 10). All requests through this client share one limiter.
	RateLimit float64
}

// Client embeds content through the Jina embedding API. It is safe for
// concurrent use: the rate limiter is the single piece of shared mutable
// state and serializes dispatch spacing across all in-flight Embed calls.
type Client struct {
	// task is the embedding mode fixed at construction.
	task Task

	// apiKey is the Bearer token sent with every request.
	apiKey string

	// apiURL is the embeddings endpoint.
	apiURL string

	// model is the embedding model name.
	model string

	// maxAttempts bounds the retry policy, including the first attempt.
	maxAttempts int

	// limiter enforces the minimum spacing between outbound dispatches
	// (burst 1, so successive calls are at least 1/rate apart).
	limiter *rate.Limiter

	// httpClient is the pooled HTTP client shared by all requests.
	httpClient *http.Client
}

// NewClient constructs a Client from the given config. It fails fast on an
// invalid task or missing API key so misconfiguration surfaces at startup,
// not on the first embed call.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.Task != TaskQuery && cfg.Task != TaskPassage {
		return nil, &Error{Reason: fmt.Sprintf("invalid task %q — must be %q or %q", cfg.Task, TaskQuery, TaskPassage)}
	}
	if cfg.APIKey == "" {
		return nil, &Error{Reason: "API key not set — set JINA_API_KEY or configure embedding.api_key"}
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.jina.ai/v1/embeddings"
	}
	model := cfg.Model
	if model == "" {
		model = "jina-embeddings-v4"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		task:        cfg.Task,
		apiKey:      cfg.APIKey,
		apiURL:      apiURL,
		model:       model,
		maxAttempts: maxAttempts,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// Embed converts items into their embeddings, one Result per input item in
// input order. The call is all-or-nothing: on any unrecoverable error no
// partial results are returned. Transport and server failures are retried
// with bounded exponential backoff before a typed error surfaces.
func (c *Client) Embed(ctx context.Context, items []Item) ([]Result, error) {
	if len(items) == 0 {
		return nil, &Error{Reason: "items list must not be empty"}
	}

	var results []Result
	operation := func() error {
		var err error
		results, err = c.embedAll(ctx, items)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		var embErr *Error
		if errors.As(err, &embErr) {
			return nil, embErr
		}
		return nil, &Error{Reason: "embed failed after retries", Err: err}
	}

	return results, nil
}

// embedAll runs one attempt over all items. Items are processed
// sequentially; the rate limiter is the true concurrency bottleneck, so
// per-item fan-out happens only across the two API calls each item needs.
func (c *Client) embedAll(ctx context.Context, items []Item) ([]Result, error) {
	results := make([]Result, 0, len(items))
	for _, item := range items {
		result, err := c.embedItem(ctx, item)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// embedItem issues the two independent API calls for one item — one for the
// single dense vector, one for the multi-vector — concurrently relative to
// each other. Both calls always run to completion so attempt accounting
// stays deterministic.
func (c *Client) embedItem(ctx context.Context, item Item) (Result, error) {
	if item.ID == "" {
		return Result{}, backoff.Permanent(&Error{Reason: "item must have an id"})
	}

	input, text, err := c.buildInput(item)
	if err != nil {
		return Result{}, backoff.Permanent(err)
	}

	payload := map[string]interface{}{
		"model":         c.model,
		"task":          string(c.task),
		"late_chunking": false,
		"truncate":      true,
		"input":         input,
	}

	var (
		wg      sync.WaitGroup
		single  singleVectorResponse
		multi   multiVectorResponse
		callErr [2]error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		callErr[0] = c.call(ctx, payload, false, &single)
	}()
	go func() {
		defer wg.Done()
		callErr[1] = c.call(ctx, payload, true, &multi)
	}()
	wg.Wait()

	for _, err := range callErr {
		if err != nil {
			return Result{}, err
		}
	}

	if len(single.Data) == 0 {
		return Result{}, &Error{Reason: fmt.Sprintf("no single-vector data returned for %s", item.ID)}
	}
	if len(multi.Data) == 0 {
		return Result{}, &Error{Reason: fmt.Sprintf("no multi-vector data returned for %s", item.ID)}
	}

	return Result{
		ID:           item.ID,
		SingleVector: single.Data[0].Embedding,
		MultiVector:  multi.Data[0].Embeddings,
		Text:         text,
		Model:        c.model + "__" + string(c.task),
	}, nil
}

// buildInput selects the payload field the configured task requires.
// Query embeddings carry their source text back in the result; passage
// embeddings do not.
func (c *Client) buildInput(item Item) (interface{}, string, error) {
	switch c.task {
	case TaskQuery:
		if item.Text == "" {
			return nil, "", &Error{Reason: fmt.Sprintf("text not set for query item %s", item.ID)}
		}
		return item.Text, item.Text, nil
	case TaskPassage:
		if len(item.Document) == 0 {
			return nil, "", &Error{Reason: fmt.Sprintf("document not set for passage item %s", item.ID)}
		}
		return base64.StdEncoding.EncodeToString(item.Document), "", nil
	default:
		return nil, "", &Error{Reason: fmt.Sprintf("invalid task %q", c.task)}
	}
}

// singleVectorResponse is the API response for return_multivector=false.
type singleVectorResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// multiVectorResponse is the API response for return_multivector=true.
type multiVectorResponse struct {
	Data []struct {
		Embeddings [][]float32 `json:"embeddings"`
	} `json:"data"`
}

// call dispatches one rate-limited API request and decodes the response
// into out. Server-side (5xx, 429) and transport failures are returned
// retryable; other HTTP errors are permanent.
func (c *Client) call(ctx context.Context, payload map[string]interface{}, multivector bool, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(&Error{Reason: "rate limiter wait interrupted", Err: err})
	}

	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["return_multivector"] = multivector

	encoded, err := json.Marshal(body)
	if err != nil {
		return backoff.Permanent(&Error{Reason: "marshal request", Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(encoded))
	if err != nil {
		return backoff.Permanent(&Error{Reason: "create request", Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logging.FromContext(ctx).Warn("embedding API error",
			slog.Int("status", resp.StatusCode),
			slog.Bool("multivector", multivector),
		)
		httpErr := &Error{Reason: fmt.Sprintf("API returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return httpErr
		}
		return backoff.Permanent(httpErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Reason: "decode response", Err: err}
	}
	return nil
}
