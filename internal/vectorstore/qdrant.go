package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadOriginalID is the payload key holding the caller-supplied record
// ID when it isn't itself a valid UUID, since Qdrant point IDs must be a
// UUID or a positive integer.
const payloadOriginalID = "_original_id"

// QdrantStore is the Qdrant-backed VectorStore.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrantStore dials dsn (a qdrant:// or http(s):// URL, gRPC port 6334 by
// default) and ensures the configured collection exists with the given
// dimension and distance metric.
func NewQdrantStore(ctx context.Context, dsn, collection string, dimension int, metric string) (*QdrantStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be > 0")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid port in dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: new client: %w", err)
	}
	q := &QdrantStore{client: client, collection: collection, dimension: dimension, metric: strings.ToLower(strings.TrimSpace(metric))}
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant: ensure collection: %w", err)
	}
	return q, nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointIDFor(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *QdrantStore) Upsert(ctx context.Context, rec Record) error {
	if rec.Metadata[metadataOwnerID] == "" {
		return fmt.Errorf("qdrant: upsert requires owner_id metadata")
	}
	pointID := pointIDFor(rec.ID)
	metaAny := make(map[string]any, len(rec.Metadata)+1)
	for k, v := range rec.Metadata {
		metaAny[k] = v
	}
	if pointID != rec.ID {
		metaAny[payloadOriginalID] = rec.ID
	}
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(metaAny),
		}},
	})
	return err
}

func (q *QdrantStore) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error) {
	if filter.OwnerID == "" {
		return nil, fmt.Errorf("qdrant: search requires owner_id filter")
	}
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	must := []*qdrant.Condition{qdrant.NewMatch(metadataOwnerID, filter.OwnerID)}
	if filter.MaterialID != "" {
		must = append(must, qdrant.NewMatch(metadataMaterialID, filter.MaterialID))
	}
	if filter.Topic != "" {
		must = append(must, qdrant.NewMatch(metadataTopic, filter.Topic))
	}

	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         &qdrant.Filter{Must: must},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		metadata := make(map[string]string)
		var originalID string
		if hit.Payload != nil {
			for key, v := range hit.Payload {
				if key == payloadOriginalID {
					originalID = v.GetStringValue()
					continue
				}
				metadata[key] = v.GetStringValue()
			}
		}
		if originalID != "" {
			id = originalID
		}
		var vec []float32
		if hit.Vectors != nil {
			if dense := hit.Vectors.GetVector(); dense != nil {
				vec = dense.GetData()
			}
		}
		out = append(out, Result{ID: id, Score: float64(hit.Score), Vector: vec, Metadata: metadata})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *QdrantStore) DeleteByMaterial(ctx context.Context, ownerID, materialID string) error {
	if ownerID == "" {
		return fmt.Errorf("qdrant: delete requires owner_id")
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch(metadataOwnerID, ownerID),
						qdrant.NewMatch(metadataMaterialID, materialID),
					},
				},
			},
		},
	})
	return err
}

func (q *QdrantStore) Dimension() int { return q.dimension }

func (q *QdrantStore) Close() error { return q.client.Close() }
