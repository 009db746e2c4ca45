package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"medtutor/internal/config"
)

// embedRequest is the OpenAI-compatible embeddings request body the
// configured endpoint is expected to accept.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// callEmbed sends one HTTP request for the given batch of texts. The
// caller (clientEmbedder.rateLimitedCall) wraps this with retry/backoff.
func callEmbed(ctx context.Context, cfg config.EmbeddingConfig, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set(cfg.APIHeader, "Bearer "+cfg.APIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embed endpoint returned %d: %s", resp.StatusCode, string(b))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// checkReachability pings the configured embedding endpoint with a minimal
// one-text request, used for startup health checks.
func checkReachability(ctx context.Context, cfg config.EmbeddingConfig) error {
	_, err := callEmbed(ctx, cfg, []string{"ping"})
	return err
}

// retryDelay implements the base-500ms, cap-8s exponential backoff the
// embedder uses between retry attempts (attempt is 0-indexed).
func retryDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > 8*time.Second {
			return 8 * time.Second
		}
	}
	return d
}
