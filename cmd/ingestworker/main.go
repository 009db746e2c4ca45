// Command ingestworker consumes material ingestion jobs from Kafka and runs
// the chunk/embed/upsert pipeline for each, as the queued alternative to
// httpapi's inline best-effort ingestion goroutine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"medtutor/internal/config"
	"medtutor/internal/objectstore"
	"medtutor/internal/observability"
	"medtutor/internal/rag/embedder"
	"medtutor/internal/rag/service"
	"medtutor/internal/storewire"
	"medtutor/internal/vectorstore"
)

const workerCount = 4

// ingestJob is the payload a producer publishes to cfg.Kafka.IngestTopic: one
// Material already created (and left in MaterialPending) by the caller.
type ingestJob struct {
	OwnerID    string `json:"owner_id"`
	MaterialID string `json:"material_id"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("ingestworker")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()

	mgr, err := storewire.New(baseCtx, cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer mgr.Close()

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

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Kafka.Brokers},
		GroupID:  cfg.Kafka.ConsumerGroup,
		Topic:    cfg.Kafka.IngestTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Error().Err(err).Msg("error closing kafka reader")
		}
	}()

	dlq := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers),
		Topic:    cfg.Kafka.IngestTopic + ".dlq",
		Balancer: &kafka.LeastBytes{},
	}
	defer func() {
		if err := dlq.Close(); err != nil {
			log.Error().Err(err).Msg("error closing dlq writer")
		}
	}()

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	jobs := make(chan kafka.Message, workerCount*4)

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			defer wg.Done()
			for msg := range jobs {
				handleMessage(ctx, rag, dlq, msg)
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Error().Err(err).Int("worker", workerID).Msg("commit failed")
				}
			}
		}(i)
	}

	go func() {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				return
			}
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("fetch error, retrying")
				time.Sleep(500 * time.Millisecond)
				continue
			}
			select {
			case jobs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info().Str("topic", cfg.Kafka.IngestTopic).Str("group", cfg.Kafka.ConsumerGroup).Msg("ingestworker listening")
	wg.Wait()
	log.Info().Msg("ingestworker stopped")
	return ctx.Err()
}

func handleMessage(ctx context.Context, rag *service.Service, dlq *kafka.Writer, msg kafka.Message) {
	var job ingestJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		log.Error().Err(err).Msg("malformed ingest job, dropping")
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	ok, err := rag.Ingest.Enqueue(runCtx, job.MaterialID)
	if err != nil {
		log.Error().Err(err).Str("material_id", job.MaterialID).Msg("enqueue failed")
		return
	}
	if !ok {
		log.Info().Str("material_id", job.MaterialID).Msg("material already processing or done, skipping")
		return
	}

	if err := rag.IngestMaterial(runCtx, job.OwnerID, job.MaterialID); err != nil {
		log.Error().Err(err).Str("material_id", job.MaterialID).Msg("ingestion failed, publishing to dlq")
		payload, _ := json.Marshal(map[string]string{
			"material_id": job.MaterialID,
			"owner_id":    job.OwnerID,
			"error":       err.Error(),
		})
		if werr := dlq.WriteMessages(context.Background(), kafka.Message{Key: msg.Key, Value: payload}); werr != nil {
			log.Error().Err(werr).Msg("failed to publish dlq message")
		}
	}
}
