package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// remoteBatchSize bounds how many pairs go into one request so the service
// can keep response sizes predictable.
const remoteBatchSize = 500

// RemoteScorer scores pairs against an external embedding service over
// HTTP. Requests are batched and rate limited.
type RemoteScorer struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewRemoteScorer creates a client for the embedding service at endpoint.
// requestsPerSecond <= 0 disables rate limiting.
func NewRemoteScorer(endpoint string, requestsPerSecond float64, timeout time.Duration) *RemoteScorer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &RemoteScorer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
	}
}

// Name implements Scorer.
func (s *RemoteScorer) Name() string { return "remote" }

type remotePage struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	Category string `json:"category"`
}

type remotePair struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

type remoteRequest struct {
	Pages []remotePage `json:"pages"`
	Pairs []remotePair `json:"pairs"`
}

type remoteResponse struct {
	Scores []struct {
		A     int64   `json:"a"`
		B     int64   `json:"b"`
		Score float64 `json:"score"`
	} `json:"scores"`
}

// Similarity implements Scorer.
func (s *RemoteScorer) Similarity(ctx context.Context, pages []Page, pairs []PagePair) (map[PagePair]float64, error) {
	out := make(map[PagePair]float64, len(pairs))

	reqPages := make([]remotePage, 0, len(pages))
	for _, p := range pages {
		reqPages = append(reqPages, remotePage{ID: p.ID, URL: p.URL, Type: p.Type, Category: p.Category})
	}

	for start := 0; start < len(pairs); start += remoteBatchSize {
		end := start + remoteBatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		if err := s.scoreBatch(ctx, reqPages, pairs[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *RemoteScorer) scoreBatch(ctx context.Context, pages []remotePage, pairs []PagePair, out map[PagePair]float64) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("similarity request rate limit: %w", err)
		}
	}

	reqPairs := make([]remotePair, 0, len(pairs))
	for _, p := range pairs {
		reqPairs = append(reqPairs, remotePair{A: p.A, B: p.B})
	}

	body, err := json.Marshal(remoteRequest{Pages: pages, Pairs: reqPairs})
	if err != nil {
		return fmt.Errorf("encoding similarity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building similarity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("similarity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("similarity service returned status %d", resp.StatusCode)
	}

	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decoding similarity response: %w", err)
	}

	for _, sc := range decoded.Scores {
		score := sc.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		out[PagePair{A: sc.A, B: sc.B}] = score
	}
	return nil
}
