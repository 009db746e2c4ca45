// Package embedder converts Chunk text to embedding vectors, via an
// HTTP-based client embedder for real deployments and a deterministic
// hash-based embedder for tests.
package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"medtutor/internal/config"
)

// Embedder converts text to embedding vectors.
type Embedder interface {
	// EmbedBatch returns an embedding vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
	Ping(ctx context.Context) error
}

// clientEmbedder wraps the configured HTTP embeddings endpoint, retrying
// transient failures with exponential backoff (base 500ms, cap 8s, 3
// retries) before giving up.
type clientEmbedder struct {
	cfg       config.EmbeddingConfig
	dim       int
	batchSize int // max texts per API call; 1 avoids batch-inference issues on some servers
	mu        sync.Mutex
	lastCall  time.Time
	minDelay  time.Duration
}

const maxEmbedRetries = 3

// NewClient constructs an embedder that calls the configured embedding
// endpoint, one text per request.
func NewClient(cfg config.EmbeddingConfig, dim int) Embedder {
	return &clientEmbedder{cfg: cfg, dim: dim, batchSize: 1}
}

func (c *clientEmbedder) Name() string   { return c.cfg.Model }
func (c *clientEmbedder) Dimension() int { return c.dim }

func (c *clientEmbedder) Ping(ctx context.Context) error {
	return checkReachability(ctx, c.cfg)
}

func (c *clientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= c.batchSize {
		return c.rateLimitedCall(ctx, texts)
	}

	var all [][]float32
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		embs, err := c.rateLimitedCall(ctx, texts[i:end])
		if err != nil {
			return all, err
		}
		all = append(all, embs...)
	}
	return all, nil
}

// rateLimitedCall enforces a minimum delay between API calls, then retries
// callEmbed with exponential backoff on failure.
func (c *clientEmbedder) rateLimitedCall(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	if !c.lastCall.IsZero() && c.minDelay > 0 {
		if elapsed := time.Since(c.lastCall); elapsed < c.minDelay {
			time.Sleep(c.minDelay - elapsed)
		}
	}
	c.lastCall = time.Now()
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= maxEmbedRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		embs, err := callEmbed(ctx, c.cfg, texts)
		if err == nil {
			return embs, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// deterministicEmbedder is a lightweight, deterministic embedder for tests:
// it hashes byte 3-grams into a fixed-size vector and optionally
// L2-normalizes the result.
type deterministicEmbedder struct {
	dim       int
	normalize bool
	seed      uint64
}

// NewDeterministic constructs a deterministic embedder with the given
// dimension. If normalize is true, vectors are L2-normalized.
func NewDeterministic(dim int, normalize bool, seed uint64) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministicEmbedder{dim: dim, normalize: normalize, seed: seed}
}

func (d *deterministicEmbedder) Name() string   { return "deterministic" }
func (d *deterministicEmbedder) Dimension() int { return d.dim }

func (d *deterministicEmbedder) Ping(_ context.Context) error { return nil }

func (d *deterministicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministicEmbedder) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	if len(s) == 0 {
		return v
	}
	b := []byte(s)
	if len(b) < 3 {
		addGram(d.seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(d.seed, b[i:i+3], v)
		}
	}
	if d.normalize {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
