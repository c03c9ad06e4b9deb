package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Payload keys written next to the chunk metadata.
const (
	payloadID   = "_id"
	payloadText = "_text"
	payloadSeq  = "_seq"
)

// pointNamespace derives point UUIDs from chunk ids, which Qdrant does not accept as-is.
var pointNamespace = uuid.MustParse("6f1c1b8e-4d0a-5b7e-9a43-2f1f0c9d7a11")

// PointID maps a chunk id to its Qdrant point id.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// Config configures the REST client.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Store is a minimal REST client to Qdrant. Collections use cosine distance.
type Store struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// OpenCollection checks whether the collection exists. Qdrant needs the vector
// size to create one, so a missing collection is created on the first Add.
// Qdrant collections carry no free-form metadata, so metadata is ignored.
func (s *Store) OpenCollection(ctx context.Context, name string, _ map[string]string) (vectorstore.Collection, error) {
	if name == "" {
		return nil, domain.Errorf(domain.ErrConfig, "qdrant.open", "collection name is empty")
	}
	status, err := s.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return nil, domain.Classify(domain.ErrStore, "qdrant.open", err)
	}
	return &Collection{store: s, name: name, exists: status == http.StatusOK}, nil
}

// Collection is one Qdrant collection.
type Collection struct {
	store  *Store
	name   string
	mu     sync.Mutex
	exists bool
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) path(suffix string) string {
	return "/collections/" + url.PathEscape(c.name) + suffix
}

func (c *Collection) created() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exists
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	if !c.created() {
		return 0, nil
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := c.store.do(ctx, http.MethodPost, c.path("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, domain.Classify(domain.ErrStore, "qdrant.count", err)
	}
	return resp.Result.Count, nil
}

type point struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Collection) retrieve(ctx context.Context, ids []string, withPayload bool) ([]point, error) {
	if !c.created() || len(ids) == 0 {
		return nil, nil
	}
	pids := make([]string, len(ids))
	for i, id := range ids {
		pids[i] = PointID(id)
	}
	var resp struct {
		Result []point `json:"result"`
	}
	body := map[string]any{"ids": pids, "with_payload": withPayload, "with_vector": false}
	if _, err := c.store.do(ctx, http.MethodPost, c.path("/points"), body, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Collection) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	points, err := c.retrieve(ctx, ids, false)
	if err != nil {
		return nil, domain.Classify(domain.ErrStore, "qdrant.existing", err)
	}
	byPoint := make(map[string]string, len(ids))
	for _, id := range ids {
		byPoint[PointID(id)] = id
	}
	out := make(map[string]bool, len(points))
	for _, p := range points {
		if id, ok := byPoint[p.ID]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// Add upserts all records in one wait=true request, which Qdrant applies as a whole.
func (c *Collection) Add(ctx context.Context, records []domain.Record) error {
	dim, err := vectorstore.Validate("qdrant.add", records)
	if err != nil || len(records) == 0 {
		return err
	}
	if err := c.ensure(ctx, dim); err != nil {
		return err
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	prev, err := c.retrieve(ctx, ids, true)
	if err != nil {
		return domain.Classify(domain.ErrStore, "qdrant.add", err)
	}
	seqs := make(map[string]int, len(prev))
	for _, p := range prev {
		seqs[p.ID] = intValue(p.Payload[payloadSeq])
	}
	next, err := c.Count(ctx)
	if err != nil {
		return err
	}

	points := make([]map[string]any, len(records))
	for i, r := range records {
		pid := PointID(r.ID)
		payload := make(map[string]any, len(r.Metadata)+3)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[payloadID] = r.ID
		payload[payloadText] = r.Text
		if seq, ok := seqs[pid]; ok {
			payload[payloadSeq] = seq
		} else {
			payload[payloadSeq] = next
			next++
		}
		points[i] = map[string]any{"id": pid, "vector": r.Vector, "payload": payload}
	}
	if _, err := c.store.do(ctx, http.MethodPut, c.path("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		return domain.Classify(domain.ErrStore, "qdrant.add", err)
	}
	return nil
}

func (c *Collection) ensure(ctx context.Context, dim int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exists {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	if _, err := c.store.do(ctx, http.MethodPut, c.path(""), body, nil); err != nil {
		return domain.Classify(domain.ErrStore, "qdrant.create", err)
	}
	c.exists = true
	return nil
}

func (c *Collection) Query(ctx context.Context, vector []float32, k int, include vectorstore.Include) ([]domain.SearchResult, error) {
	if err := vectorstore.CheckQuery("qdrant.query", vector, k); err != nil {
		return nil, err
	}
	if !c.created() {
		return nil, nil
	}
	found, err := c.search(ctx, vector, k)
	if err != nil {
		return nil, domain.Classify(domain.ErrStore, "qdrant.query", err)
	}
	hits := make([]vectorstore.Ranked, 0, len(found))
	for _, p := range found {
		meta := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			meta[k] = v
		}
		id, _ := meta[payloadID].(string)
		text, _ := meta[payloadText].(string)
		seq := intValue(meta[payloadSeq])
		delete(meta, payloadID)
		delete(meta, payloadText)
		delete(meta, payloadSeq)
		hits = append(hits, vectorstore.Ranked{
			Result: domain.SearchResult{
				Chunk:    vectorstore.ChunkFromRecord(id, text, meta),
				Distance: 1 - p.Score,
			},
			Seq: seq,
		})
	}
	return vectorstore.Rank(hits, k, include), nil
}

// search returns at least the k best points plus every point tied with the
// k-th, so Rank can order ties by insertion. Qdrant picks arbitrarily among
// equal scores at the limit, so the limit grows until the tie run ends.
func (c *Collection) search(ctx context.Context, vector []float32, k int) ([]point, error) {
	limit := k + 1
	for {
		var resp struct {
			Result []point `json:"result"`
		}
		body := map[string]any{"vector": vector, "limit": limit, "with_payload": true}
		if _, err := c.store.do(ctx, http.MethodPost, c.path("/points/search"), body, &resp); err != nil {
			return nil, err
		}
		res := resp.Result
		if len(res) < limit || res[len(res)-1].Score != res[k-1].Score {
			return res, nil
		}
		limit *= 2
	}
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

// do sends a JSON request and decodes the response into out. It returns the
// HTTP status alongside any error so callers can tell 404 apart.
func (s *Store) do(ctx context.Context, method, path string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, r)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
