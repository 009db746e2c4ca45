// Command server runs the medtutor HTTP/websocket API: material upload and
// ingestion, question generation and grading, spaced-repetition review
// scheduling, and the streaming chat channel.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"medtutor/internal/analytics"
	"medtutor/internal/chatbroker"
	"medtutor/internal/config"
	"medtutor/internal/grader"
	"medtutor/internal/httpapi"
	"medtutor/internal/identity"
	"medtutor/internal/llmorch"
	"medtutor/internal/objectstore"
	"medtutor/internal/observability"
	"medtutor/internal/questiongen"
	"medtutor/internal/rag/embedder"
	"medtutor/internal/rag/service"
	"medtutor/internal/storewire"
	"medtutor/internal/vectorstore"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()

	shutdownOTel, err := observability.InitOTel(baseCtx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	mgr, err := storewire.New(baseCtx, cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer mgr.Close()
	if err := mgr.Init(baseCtx); err != nil {
		return fmt.Errorf("init store schema: %w", err)
	}

	objects, err := objectstore.New(baseCtx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}

	vectors, err := vectorstore.New(baseCtx, cfg.Vector)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}

	embed := embedder.NewClient(cfg.Embedding, cfg.Vector.Dimensions)

	rag := service.New(mgr.Materials, objects, vectors, embed)

	orch := llmorch.New(cfg.Orchestrator)

	sink, err := analytics.New(baseCtx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("analytics sink init failed, continuing without it")
		sink = nil
	}
	defer sink.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	g := grader.New(mgr.Questions, nil, sink)
	gen := questiongen.New(mgr.Questions, orch, redisClient)
	broker := chatbroker.New(mgr.Conversations, rag.Retriever, orch, cfg.Chat)

	srv := httpapi.NewServer(httpapi.Deps{
		Materials: mgr.Materials,
		Questions: mgr.Questions,
		Objects:   objects,
		RAG:       rag,
		Grader:    g,
		Generator: gen,
		Broker:    broker,
	}, cfg.HTTP, cfg.Embedding.Model)

	var handler http.Handler = srv
	if cfg.Identity.Issuer != "" {
		verifier, err := identity.NewVerifier(baseCtx, cfg.Identity.Issuer, cfg.Identity.ClientID)
		if err != nil {
			return fmt.Errorf("init identity verifier: %w", err)
		}
		handler = verifier.Middleware(srv)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("medtutor server listening")
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("medtutor server stopped")
	return nil
}
