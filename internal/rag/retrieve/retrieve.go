// Package retrieve implements the RAG retrieval step: embed a query,
// over-fetch nearest-neighbor Chunks, drop anything below a similarity
// floor, then re-rank the survivors with Maximal Marginal Relevance so the
// final context block favors coverage over near-duplicate restatement of
// the same passage.
package retrieve

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"medtutor/internal/domain"
	"medtutor/internal/errs"
	"medtutor/internal/rag/embedder"
	"medtutor/internal/store"
	"medtutor/internal/vectorstore"
)

// Options tunes one Retrieve call. Zero values fall back to the package
// defaults (TopK=5, OverfetchFactor=2, SimilarityThreshold=0.5, Lambda=0.7).
type Options struct {
	TopK                int
	OverfetchFactor     int
	SimilarityThreshold float64
	Lambda              float64
	MaterialID          string // optional, narrows to one Material
	Topic               string // optional
}

const (
	defaultTopK                = 5
	defaultOverfetchFactor     = 2
	defaultSimilarityThreshold = 0.5
	defaultLambda              = 0.7
)

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	if o.OverfetchFactor <= 0 {
		o.OverfetchFactor = defaultOverfetchFactor
	}
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = defaultSimilarityThreshold
	}
	if o.Lambda <= 0 {
		o.Lambda = defaultLambda
	}
	return o
}

// Citation is one grounded passage attached to generated text, resolved
// against the owning Material for its display name and page hint.
type Citation struct {
	Index      int // 1-based, matches the [S{i}] tag in ContextBlock
	ChunkID    string
	MaterialID string
	Source     string
	Page       *int
	Similarity float64
	Text       string
}

// Result is the outcome of a Retrieve call: a citation-tagged context block
// ready to splice into a prompt, plus the Citations it was built from.
type Result struct {
	ContextBlock string
	Citations    []Citation
}

// Retriever runs the embed -> search -> threshold -> MMR pipeline.
type Retriever struct {
	materials store.Materials
	vectors   vectorstore.VectorStore
	embed     embedder.Embedder
}

// New returns a Retriever backed by the given collaborators.
func New(materials store.Materials, vectors vectorstore.VectorStore, embed embedder.Embedder) *Retriever {
	return &Retriever{materials: materials, vectors: vectors, embed: embed}
}

// Retrieve embeds query, over-fetches candidate Chunks from vectors, drops
// anything below the similarity floor, diversifies the remainder with MMR,
// and renders the final selection as a citation-tagged context block.
func (r *Retriever) Retrieve(ctx context.Context, ownerID, query string, opt Options) (Result, error) {
	opt = opt.withDefaults()
	if strings.TrimSpace(query) == "" {
		return Result{}, fmt.Errorf("retrieve: query is empty")
	}

	vecs, err := r.embed.EmbedBatch(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("%w: embed query: %v", errs.ErrRetrievalFailed, err)
	}
	if len(vecs) != 1 {
		return Result{}, fmt.Errorf("%w: embedder returned %d vectors for 1 input", errs.ErrRetrievalFailed, len(vecs))
	}
	queryVec := vecs[0]

	fetchK := opt.TopK * opt.OverfetchFactor
	hits, err := r.vectors.Search(ctx, queryVec, fetchK, vectorstore.Filter{
		OwnerID:    ownerID,
		MaterialID: opt.MaterialID,
		Topic:      opt.Topic,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: vector search: %v", errs.ErrRetrievalFailed, err)
	}

	candidates := make([]vectorstore.Result, 0, len(hits))
	for _, h := range hits {
		if h.Score >= opt.SimilarityThreshold {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		return Result{ContextBlock: "", Citations: nil}, nil
	}

	selected := diversify(candidates, queryVec, opt.TopK, opt.Lambda)

	ids := make([]string, len(selected))
	scoreByID := make(map[string]float64, len(selected))
	for i, c := range selected {
		ids[i] = c.ID
		scoreByID[c.ID] = c.Score
	}
	chunks, err := r.materials.GetChunksByIDs(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("%w: load chunks: %v", errs.ErrRetrievalFailed, err)
	}
	chunkByID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}

	materialNames := make(map[string]string)
	var b strings.Builder
	citations := make([]Citation, 0, len(ids))
	idx := 0
	for _, id := range ids {
		c, ok := chunkByID[id]
		if !ok {
			continue
		}
		idx++
		source, ok := materialNames[c.MaterialID]
		if !ok {
			mat, err := r.materials.GetMaterial(ctx, ownerID, c.MaterialID)
			if err == nil {
				source = mat.OriginalFilename
			} else {
				source = c.MaterialID
			}
			materialNames[c.MaterialID] = source
		}
		cite := Citation{
			Index:      idx,
			ChunkID:    c.ID,
			MaterialID: c.MaterialID,
			Source:     source,
			Page:       c.PageHint,
			Similarity: scoreByID[id],
			Text:       c.Text,
		}
		citations = append(citations, cite)
		fmt.Fprintf(&b, "[S%d] %s", idx, renderLocation(source, c.PageHint))
		b.WriteString("\n")
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}

	return Result{ContextBlock: strings.TrimRight(b.String(), "\n"), Citations: citations}, nil
}

func renderLocation(source string, page *int) string {
	if page == nil {
		return fmt.Sprintf("(%s)", source)
	}
	return fmt.Sprintf("(%s, p.%d)", source, *page)
}

// diversify runs greedy MMR selection: at each step pick the candidate that
// maximizes lambda*similarity - (1-lambda)*max-similarity-to-already-selected,
// stopping once k items are chosen or candidates run out. Mirrors the
// selected/candidate greedy-loop shape of a rank-penalty diversifier, but
// scores true cosine similarity to the query and to prior picks rather than
// penalizing repeated document/source identity.
func diversify(candidates []vectorstore.Result, queryVec []float32, k int, lambda float64) []vectorstore.Result {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	pool := make([]vectorstore.Result, len(candidates))
	copy(pool, candidates)
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		return pool[i].ID < pool[j].ID
	})

	selected := make([]vectorstore.Result, 0, k)
	used := make([]bool, len(pool))
	for len(selected) < k && len(selected) < len(pool) {
		bestIdx := -1
		bestScore := -2.0
		for i, c := range pool {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, s := range selected {
				if sim := cosine(c.Vector, s.Vector); sim > maxSim {
					maxSim = sim
				}
			}
			mmr := lambda*c.Score - (1-lambda)*maxSim
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		selected = append(selected, pool[bestIdx])
		used[bestIdx] = true
	}
	return selected
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
