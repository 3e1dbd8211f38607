package similarity

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenScorer_IdenticalPages(t *testing.T) {
	pages := []Page{
		{ID: 1, URL: "https://shop.example.com/shoes/running-shoe", Type: "product", Category: "shoes"},
		{ID: 2, URL: "https://shop.example.com/shoes/running-shoe", Type: "product", Category: "shoes"},
	}

	scores, err := TokenScorer{}.Similarity(context.Background(), pages, []PagePair{{A: 1, B: 2}})
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if math.Abs(scores[PagePair{A: 1, B: 2}]-1.0) > 1e-12 {
		t.Errorf("identical pages score = %f, want 1.0", scores[PagePair{A: 1, B: 2}])
	}
}

func TestTokenScorer_DisjointPages(t *testing.T) {
	pages := []Page{
		{ID: 1, URL: "https://shop.example.com/shoes/sneaker", Type: "product", Category: "shoes"},
		{ID: 2, URL: "https://shop.example.com/garden/hose", Type: "article", Category: "garden"},
	}

	scores, err := TokenScorer{}.Similarity(context.Background(), pages, []PagePair{{A: 1, B: 2}})
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if scores[PagePair{A: 1, B: 2}] != 0 {
		t.Errorf("disjoint pages score = %f, want 0", scores[PagePair{A: 1, B: 2}])
	}
}

func TestTokenScorer_UnknownPageScoresZero(t *testing.T) {
	pages := []Page{{ID: 1, URL: "https://example.com/a", Type: "product", Category: "c"}}

	scores, err := TokenScorer{}.Similarity(context.Background(), pages, []PagePair{{A: 1, B: 99}})
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if scores[PagePair{A: 1, B: 99}] != 0 {
		t.Errorf("pair with unknown page scored %f, want 0", scores[PagePair{A: 1, B: 99}])
	}
}

func TestTokenScorer_PartialOverlapBounded(t *testing.T) {
	pages := []Page{
		{ID: 1, URL: "https://shop.example.com/shoes/running", Type: "product", Category: "shoes"},
		{ID: 2, URL: "https://shop.example.com/shoes/hiking", Type: "product", Category: "shoes"},
	}

	scores, err := TokenScorer{}.Similarity(context.Background(), pages, []PagePair{{A: 1, B: 2}})
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	s := scores[PagePair{A: 1, B: 2}]
	if s <= 0 || s >= 1 {
		t.Errorf("partial overlap score = %f, want strictly between 0 and 1", s)
	}
}

// countingScorer records how many pairs reached the inner scorer.
type countingScorer struct {
	inner Scorer
	seen  int
}

func (c *countingScorer) Name() string { return c.inner.Name() }

func (c *countingScorer) Similarity(ctx context.Context, pages []Page, pairs []PagePair) (map[PagePair]float64, error) {
	c.seen += len(pairs)
	return c.inner.Similarity(ctx, pages, pairs)
}

func TestCachedScorer_SecondCallHitsCache(t *testing.T) {
	ctx := context.Background()
	pages := []Page{
		{ID: 1, URL: "https://example.com/a/x", Type: "product", Category: "c"},
		{ID: 2, URL: "https://example.com/a/y", Type: "product", Category: "c"},
	}
	pairs := []PagePair{{A: 1, B: 2}}

	counter := &countingScorer{inner: TokenScorer{}}
	cached := NewCachedScorer(counter, NewMemoryCache())

	first, err := cached.Similarity(ctx, pages, pairs)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := cached.Similarity(ctx, pages, pairs)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if counter.seen != 1 {
		t.Errorf("inner scorer saw %d pairs, want 1 (second call cached)", counter.seen)
	}
	if first[pairs[0]] != second[pairs[0]] {
		t.Errorf("cached score %f differs from computed %f", second[pairs[0]], first[pairs[0]])
	}
}

func TestRemoteScorer_BatchedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}

		var resp remoteResponse
		for _, p := range req.Pairs {
			resp.Scores = append(resp.Scores, struct {
				A     int64   `json:"a"`
				B     int64   `json:"b"`
				Score float64 `json:"score"`
			}{A: p.A, B: p.B, Score: 0.75})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	scorer := NewRemoteScorer(srv.URL, 0, 0)
	pages := []Page{{ID: 1}, {ID: 2}, {ID: 3}}
	pairs := []PagePair{{A: 1, B: 2}, {A: 2, B: 3}}

	scores, err := scorer.Similarity(context.Background(), pages, pairs)
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	for _, p := range pairs {
		if scores[p] != 0.75 {
			t.Errorf("score for %+v = %f, want 0.75", p, scores[p])
		}
	}
}

func TestRemoteScorer_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	scorer := NewRemoteScorer(srv.URL, 0, 0)
	_, err := scorer.Similarity(context.Background(), []Page{{ID: 1}, {ID: 2}}, []PagePair{{A: 1, B: 2}})
	if err == nil {
		t.Fatal("expected error on 500 response, got nil")
	}
}
