// Package questiongen produces validated multiple-choice Questions grounded
// in retrieved context by calling the LLM orchestrator in structured-output
// mode and persisting the survivors.
package questiongen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/redis/go-redis/v9"

	"medtutor/internal/domain"
	"medtutor/internal/errs"
	"medtutor/internal/llmorch"
	"medtutor/internal/observability"
	"medtutor/internal/rag/retrieve"
	"medtutor/internal/store"
)

// Request describes one generation call.
type Request struct {
	OwnerID      string
	Topic        string
	Difficulty   int // d in [1,5]
	Count        int // n in [1,20]
	StudentLevel int // [1,5]
	Context      retrieve.Result
	Model        string
}

// Generator assembles prompts, calls the orchestrator, validates and
// persists the resulting Questions.
type Generator struct {
	questions store.Questions
	orch      *llmorch.Orchestrator
	dedupe    *redisDedupe
}

// New builds a Generator. redisClient may be nil, in which case duplicate
// suppression relies solely on questions.HasDuplicateHash.
func New(questions store.Questions, orch *llmorch.Orchestrator, redisClient *redis.Client) *Generator {
	return &Generator{questions: questions, orch: orch, dedupe: newRedisDedupe(redisClient)}
}

type rawItem struct {
	Vignette       string   `json:"vignette"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	CorrectIndex   int      `json:"correct_index"`
	Explanation    string   `json:"explanation"`
	TeachingPoints []string `json:"teaching_points,omitempty"`
}

// Generate runs req through the orchestrator and persists every item that
// survives validation and duplicate suppression. If zero items survive, the
// whole call fails with errs.ErrGenerationFormat.
func (g *Generator) Generate(ctx context.Context, req Request) ([]domain.Question, error) {
	n := req.Count
	if n <= 0 {
		n = 1
	}
	if n > 20 {
		n = 20
	}

	prompt := buildPrompt(req, n)
	schema := outputSchema()

	result, err := g.orch.CollectStructured(ctx, llmorch.Request{
		OwnerID:   req.OwnerID,
		Model:     req.Model,
		Effort:    llmorch.EffortLow,
		Verbosity: llmorch.VerbosityMedium,
		Prompt:    prompt,
	}, schema)
	if err != nil {
		return nil, err
	}

	rawItems, err := extractItems(result)
	if err != nil {
		return nil, err
	}

	difficulty := domain.DifficultyFromLevel(req.Difficulty)
	chunkIDs := make([]string, len(req.Context.Citations))
	for i, c := range req.Context.Citations {
		chunkIDs[i] = c.ChunkID
	}

	logger := observability.LoggerWithTrace(ctx)

	saved := make([]domain.Question, 0, len(rawItems))
	for _, it := range rawItems {
		if err := validateItem(it); err != nil {
			logger.Warn().Err(err).Msg("dropping invalid generated item")
			continue
		}

		hash := duplicateHash(req.Topic, it.Vignette)
		claimed, err := g.dedupe.claim(ctx, req.OwnerID+":"+hash)
		if err != nil {
			return nil, err
		}
		if !claimed {
			logger.Info().Str("topic", req.Topic).Msg("dropping duplicate generated item (redis claim)")
			continue
		}
		dup, err := g.questions.HasDuplicateHash(ctx, req.OwnerID, hash)
		if err != nil {
			return nil, err
		}
		if dup {
			logger.Info().Str("topic", req.Topic).Msg("dropping duplicate generated item (db guard)")
			continue
		}

		q := domain.Question{
			OwnerID:             req.OwnerID,
			Vignette:            it.Vignette + "\n\n" + it.Question,
			CorrectIndex:        it.CorrectIndex,
			Explanation:         it.Explanation,
			Topic:               req.Topic,
			Difficulty:          difficulty,
			PredictedDifficulty: req.Difficulty,
			SourceChunkIDs:      chunkIDs,
			GenerationModel:     req.Model,
			DuplicateHash:       hash,
		}
		copy(q.Options[:], it.Options)
		if len(it.TeachingPoints) > 0 {
			q.GenerationMetadata = map[string]any{"teaching_points": it.TeachingPoints}
		}

		created, err := g.questions.CreateQuestion(ctx, q)
		if err != nil {
			return nil, err
		}
		saved = append(saved, created)
	}

	if len(saved) == 0 {
		return nil, fmt.Errorf("%w: no generated item survived validation or duplicate suppression", errs.ErrGenerationFormat)
	}
	return saved, nil
}

func validateItem(it rawItem) error {
	if strings.TrimSpace(it.Vignette) == "" {
		return errs.NewValidation("vignette", "must not be empty")
	}
	if strings.TrimSpace(it.Question) == "" {
		return errs.NewValidation("question", "must not be empty")
	}
	if strings.TrimSpace(it.Explanation) == "" {
		return errs.NewValidation("explanation", "must not be empty")
	}
	if len(it.Options) != 4 {
		return errs.NewValidation("options", "must contain exactly 4 entries")
	}
	for i, opt := range it.Options {
		if strings.TrimSpace(opt) == "" {
			return errs.NewValidation(fmt.Sprintf("options[%d]", i), "must not be empty")
		}
	}
	if it.CorrectIndex < 0 || it.CorrectIndex > 3 {
		return errs.NewValidation("correct_index", "must be in [0,4)")
	}
	return nil
}

func duplicateHash(topic, vignette string) string {
	normTopic := strings.ToLower(strings.TrimSpace(topic))
	normVignette := strings.ToLower(strings.TrimSpace(vignette))
	if len(normVignette) > 256 {
		normVignette = normVignette[:256]
	}
	sum := sha256.Sum256([]byte(normTopic + "\x00" + normVignette))
	return hex.EncodeToString(sum[:])
}

func extractItems(result map[string]any) ([]rawItem, error) {
	raw, ok := result["items"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: response missing \"items\" array", errs.ErrGenerationFormat)
	}
	items := make([]rawItem, 0, len(raw))
	for _, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, rawItem{
			Vignette:       stringField(obj, "vignette"),
			Question:       stringField(obj, "question"),
			Options:        stringSliceField(obj, "options"),
			CorrectIndex:   intField(obj, "correct_index"),
			Explanation:    stringField(obj, "explanation"),
			TeachingPoints: stringSliceField(obj, "teaching_points"),
		})
	}
	return items, nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func stringSliceField(obj map[string]any, key string) []string {
	raw, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intField(obj map[string]any, key string) int {
	switch v := obj[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return -1
		}
		return int(n)
	case float64:
		return int(v)
	case int:
		return v
	default:
		return -1
	}
}

func difficultyDescription(d int) string {
	switch d {
	case 1:
		return "easy: straightforward recall, single-step reasoning"
	case 2:
		return "medium-low: requires applying one core concept"
	case 3:
		return "medium: requires integrating two related concepts"
	case 4:
		return "hard: multi-step clinical reasoning across several findings"
	default:
		return "NBME-style: distractor-dense, board-exam caliber"
	}
}

func buildPrompt(req Request, n int) string {
	var b strings.Builder
	b.WriteString("You are generating NBME-style multiple-choice medical questions.\n")
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	fmt.Fprintf(&b, "Difficulty: %s\n", difficultyDescription(req.Difficulty))
	fmt.Fprintf(&b, "Student level: %d/5\n", req.StudentLevel)
	fmt.Fprintf(&b, "Generate exactly %d item(s).\n\n", n)
	if req.Context.ContextBlock != "" {
		b.WriteString("Ground every item in the following retrieved context where relevant, citing nothing explicitly in the output:\n")
		b.WriteString(req.Context.ContextBlock)
		b.WriteString("\n\n")
	}
	b.WriteString("Rules:\n")
	b.WriteString("- Each item has exactly 4 answer options, single best answer.\n")
	b.WriteString("- Provide a clinical vignette, a distinct question stem, and a thorough explanation.\n")
	b.WriteString("- Optionally include teaching_points as a short list of key takeaways.\n")
	b.WriteString("- Respond with JSON only, matching this shape, inside a single ```json fenced block:\n")
	b.WriteString(`{"items":[{"vignette":"...","question":"...","options":["...","...","...","..."],"correct_index":0,"explanation":"...","teaching_points":["..."]}]}`)
	b.WriteString("\n")
	return b.String()
}

func outputSchema() *jsonschema.Schema {
	stringArray := &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}
	item := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"vignette":        {Type: "string"},
			"question":        {Type: "string"},
			"options":         stringArray,
			"correct_index":   {Type: "integer"},
			"explanation":     {Type: "string"},
			"teaching_points": stringArray,
		},
		Required: []string{"vignette", "question", "options", "correct_index", "explanation"},
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"items": {Type: "array", Items: item}},
		Required:   []string{"items"},
	}
}
