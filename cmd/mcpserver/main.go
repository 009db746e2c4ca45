// Command mcpserver exposes retrieval and question generation as Model
// Context Protocol tools over stdio, for editor/agent clients that want
// grounded context or practice questions without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"medtutor/internal/config"
	"medtutor/internal/llmorch"
	"medtutor/internal/objectstore"
	"medtutor/internal/observability"
	"medtutor/internal/questiongen"
	"medtutor/internal/rag/embedder"
	"medtutor/internal/rag/retrieve"
	"medtutor/internal/rag/service"
	"medtutor/internal/storewire"
	"medtutor/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("mcpserver")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx := context.Background()

	mgr, err := storewire.New(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer mgr.Close()

	objects, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	vectors, err := vectorstore.New(ctx, cfg.Vector)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	embed := embedder.NewClient(cfg.Embedding, cfg.Vector.Dimensions)
	rag := service.New(mgr.Materials, objects, vectors, embed)

	orch := llmorch.New(cfg.Orchestrator)
	gen := questiongen.New(mgr.Questions, orch, nil)

	server := mcp.NewServer(&mcp.Implementation{Name: "medtutor", Version: "1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "retrieve_context",
		Description: "Retrieve citation-tagged passages from a student's ingested study materials relevant to a query.",
	}, newRetrieveHandler(rag))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_questions",
		Description: "Generate board-style practice questions on a topic, optionally grounded in ingested materials.",
	}, newGenerateQuestionsHandler(rag, gen, cfg.Embedding.Model))

	log.Info().Msg("medtutor mcp server listening on stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}

type retrieveArgs struct {
	OwnerID    string `json:"owner_id" jsonschema:"the owner whose materials to search"`
	Query      string `json:"query" jsonschema:"the topic or question to search for"`
	MaterialID string `json:"material_id,omitempty" jsonschema:"restrict the search to one material"`
}

func newRetrieveHandler(rag *service.Service) mcp.ToolHandlerFor[retrieveArgs, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, args retrieveArgs) (*mcp.CallToolResult, any, error) {
		result, err := rag.RetrieveContext(ctx, args.OwnerID, args.Query, retrieve.Options{MaterialID: args.MaterialID})
		if err != nil {
			return nil, nil, err
		}
		payload, err := json.Marshal(result)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		}, nil, nil
	}
}

type generateQuestionsArgs struct {
	OwnerID      string `json:"owner_id" jsonschema:"the owner to generate questions for"`
	Topic        string `json:"topic" jsonschema:"the clinical topic to generate questions about"`
	MaterialID   string `json:"material_id,omitempty" jsonschema:"ground the questions in one ingested material"`
	NumQuestions int    `json:"num_questions" jsonschema:"how many questions to generate"`
	Difficulty   int    `json:"difficulty" jsonschema:"1 (easy) to 5 (hard)"`
	UserLevel    int    `json:"user_level" jsonschema:"the student's self-reported level, 1 to 5"`
	UseRAG       bool   `json:"use_rag,omitempty" jsonschema:"ground generation in the owner's ingested materials"`
}

func newGenerateQuestionsHandler(rag *service.Service, gen *questiongen.Generator, defaultModel string) mcp.ToolHandlerFor[generateQuestionsArgs, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, args generateQuestionsArgs) (*mcp.CallToolResult, any, error) {
		var ragResult retrieve.Result
		if args.UseRAG {
			var err error
			ragResult, err = rag.RetrieveContext(ctx, args.OwnerID, args.Topic, retrieve.Options{MaterialID: args.MaterialID})
			if err != nil {
				return nil, nil, err
			}
		}

		questions, err := gen.Generate(ctx, questiongen.Request{
			OwnerID:      args.OwnerID,
			Topic:        args.Topic,
			Difficulty:   args.Difficulty,
			Count:        args.NumQuestions,
			StudentLevel: args.UserLevel,
			Context:      ragResult,
			Model:        defaultModel,
		})
		if err != nil {
			return nil, nil, err
		}

		payload, err := json.Marshal(questions)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		}, nil, nil
	}
}
