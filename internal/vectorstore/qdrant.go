package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var qdrantTracer = otel.Tracer("convrag.vectorstore.qdrant")

const (
	contentKey        = "content"
	defaultMaxMsgSize = 50 * 1024 * 1024
)

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host       string
	Port       int
	UseTLS     bool
	APIKey     string
	VectorSize int
}

// Validate checks the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: qdrant host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: qdrant port out of range: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// QdrantProvider serves indexes from a Qdrant server, one collection each.
type QdrantProvider struct {
	client   *qdrant.Client
	cfg      QdrantConfig
	embedder Embedder
	logger   *zap.Logger

	mu    sync.Mutex
	ready map[string]bool
}

// NewQdrantProvider connects and health-checks the server.
func NewQdrantProvider(ctx context.Context, cfg QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC using plaintext; enable TLS outside local development")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(defaultMaxMsgSize),
				grpc.MaxCallSendMsgSize(defaultMaxMsgSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return &QdrantProvider{
		client:   client,
		cfg:      cfg,
		embedder: embedder,
		logger:   logger,
		ready:    make(map[string]bool),
	}, nil
}

// Index returns the index for collection, creating the collection with
// cosine distance if it does not exist.
func (p *QdrantProvider) Index(ctx context.Context, collection string) (Index, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if err := p.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}
	return &qdrantIndex{name: collection, client: p.client, embedder: p.embedder, logger: p.logger}, nil
}

func (p *QdrantProvider) ensureCollection(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready[name] {
		return nil
	}

	exists, err := p.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		err := p.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(p.cfg.VectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
		p.logger.Info("created qdrant collection",
			zap.String("collection", name),
			zap.Int("vector_size", p.cfg.VectorSize),
		)
	}
	p.ready[name] = true
	return nil
}

// Close closes the gRPC connection.
func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

type qdrantIndex struct {
	name     string
	client   *qdrant.Client
	embedder Embedder
	logger   *zap.Logger
}

func (ix *qdrantIndex) AddDocuments(ctx context.Context, docs []document.Document) error {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.AddDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", ix.name),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content()
	}
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("%w: got %d vectors for %d documents", ErrEmbeddingFailed, len(vectors), len(docs))
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(d.ID())),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: toPayload(d),
		}
	}

	_, err = ix.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ix.name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (ix *qdrantIndex) SimilaritySearch(ctx context.Context, query string, k int) ([]Match, error) {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.SimilaritySearch")
	defer span.End()
	span.SetAttributes(attribute.String("collection", ix.name), attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	vector, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points, err := ix.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: ix.name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", ix.name, err)
	}

	matches := make([]Match, len(points))
	for i, pt := range points {
		matches[i] = Match{Document: fromPayload(pt.GetPayload()), Score: pt.GetScore()}
	}
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "")
	return matches, nil
}

func (ix *qdrantIndex) Count(ctx context.Context) (int, error) {
	n, err := ix.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: ix.name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", ix.name, err)
	}
	return int(n), nil
}

// pointID maps a document ID to the UUID Qdrant requires, deterministically.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

// toPayload stores content plus each metadata value in its native kind.
// The full JSON copy under metaKey keeps nested values intact.
func toPayload(d document.Document) map[string]*qdrant.Value {
	meta := d.Metadata()
	payload := make(map[string]*qdrant.Value, len(meta)+2)
	for k, v := range meta {
		payload[k] = toValue(v)
	}
	if flat, err := flattenMetadata(meta); err == nil {
		payload[metaKey] = qdrant.NewValueString(flat[metaKey])
	}
	payload[contentKey] = qdrant.NewValueString(d.Content())
	return payload
}

func toValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case bool:
		return qdrant.NewValueBool(val)
	default:
		return qdrant.NewValueString(stringify(val))
	}
}

func fromPayload(payload map[string]*qdrant.Value) document.Document {
	content := payload[contentKey].GetStringValue()

	if raw := payload[metaKey].GetStringValue(); raw != "" {
		return document.New(content, unflattenMetadata(map[string]string{metaKey: raw}))
	}

	meta := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == contentKey {
			continue
		}
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			meta[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			meta[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			meta[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			meta[k] = kind.BoolValue
		}
	}
	return document.New(content, meta)
}

var _ Provider = (*QdrantProvider)(nil)
