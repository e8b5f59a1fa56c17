package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// idNamespace derives a stable UUID per decision ID so arbitrary 8-hex
// content-derived IDs can be used as Qdrant point IDs (which must be a
// uint64 or a UUID). The original decision ID is also stored in the point's
// payload so Query results can be mapped back without a reverse lookup.
var idNamespace = uuid.MustParse("6f6d8b0e-6f2e-4b7d-9c0e-3b6b6b9a4b1a")

func pointUUID(decisionID string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(decisionID))
}

// Config holds connection settings for a Qdrant-backed Store.
type Config struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
}

// QdrantStore implements Store backed by Qdrant.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *slog.Logger

	healthMu  sync.Mutex
	lastCheck time.Time
	lastErr   error
}

// parseURL extracts host, port, and TLS flag from a Qdrant URL. Accepts
// forms like "https://host:6333" or "http://host:6333"; a URL without a
// scheme (such as "host:6334") has no host part and is rejected. The
// well-known REST port 6333 is rewritten to the gRPC port 6334, since this
// client always speaks gRPC.
func parseURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("vectorstore: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("vectorstore: invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantStore connects to Qdrant via gRPC.
func NewQdrantStore(cfg Config, logger *slog.Logger) (*QdrantStore, error) {
	host, port, useTLS, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logger,
	}, nil
}

// CollectionID returns the Qdrant collection name backing this Store.
func (q *QdrantStore) CollectionID() string {
	return q.collection
}

// Initialize creates the collection (with HNSW parameters and payload field
// indexes for the metadata fields decisions are filtered on) if it doesn't
// already exist.
func (q *QdrantStore) Initialize(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection exists: %w", err)
	}
	if exists {
		q.logger.Info("vectorstore: collection already exists", "collection", q.collection)
		return nil
	}

	m := uint64(16)
	efConstruct := uint64(128)

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dims,
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           &m,
				EfConstruct: &efConstruct,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %q: %w", q.collection, err)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"decision_id", "agent_id", "category", "stakes", "status"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("vectorstore: create index on %q: %w", field, err)
		}
	}

	floatType := qdrant.FieldType_FieldTypeFloat
	for _, field := range []string{"confidence", "created_at_unix"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &floatType,
		}); err != nil {
			return fmt.Errorf("vectorstore: create index on %q: %w", field, err)
		}
	}

	q.logger.Info("vectorstore: created collection with payload indexes", "collection", q.collection, "dims", q.dims)
	return nil
}

// Upsert inserts or replaces a single vector. doc is not currently used by
// Qdrant (it has no native text storage) but is accepted to satisfy Store;
// callers that need full-text recall use the keyword index instead.
func (q *QdrantStore) Upsert(ctx context.Context, id string, _ string, vec []float32, meta map[string]any) error {
	payload := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		payload[k] = v
	}
	payload["decision_id"] = id

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(pointUUID(id).String()),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: qdrant.NewValueMap(payload),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant upsert %s: %v", ErrUnavailable, id, err)
	}
	return nil
}

// Query returns the n nearest vectors to vec, restricted by where.
func (q *QdrantStore) Query(ctx context.Context, vec []float32, n int, where *Filter) ([]Hit, error) {
	filter, err := translateFilter(where)
	if err != nil {
		return nil, err
	}

	limit := uint64(n) //nolint:gosec // n is bounded by caller
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant query: %v", ErrUnavailable, err)
	}

	hits := make([]Hit, 0, len(scored))
	for _, sp := range scored {
		meta := make(map[string]any, len(sp.GetPayload()))
		var decisionID string
		for k, v := range sp.GetPayload() {
			meta[k] = valueToAny(v)
			if k == "decision_id" {
				decisionID = v.GetStringValue()
			}
		}
		if decisionID == "" {
			continue
		}
		// The collection uses cosine distance, for which Qdrant scores
		// similarity (higher is closer); Hit.Distance is lower-is-closer.
		hits = append(hits, Hit{
			ID:       decisionID,
			Distance: 1 - float64(sp.GetScore()),
			Meta:     meta,
		})
	}
	return hits, nil
}

// Delete removes vectors by decision ID.
func (q *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(pointUUID(id).String())
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant delete %d points: %v", ErrUnavailable, len(ids), err)
	}
	return nil
}

// Count returns the number of vectors stored in the collection.
func (q *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant count: %v", ErrUnavailable, err)
	}
	return int(resp), nil
}

// Reset removes all vectors from the collection by deleting and recreating it.
func (q *QdrantStore) Reset(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return fmt.Errorf("%w: qdrant delete collection: %v", ErrUnavailable, err)
	}
	return q.Initialize(ctx)
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5
// seconds to avoid hammering the health endpoint on every query.
func (q *QdrantStore) Healthy(ctx context.Context) error {
	q.healthMu.Lock()
	defer q.healthMu.Unlock()

	if time.Since(q.lastCheck) < 5*time.Second {
		return q.lastErr
	}

	_, err := q.client.HealthCheck(ctx)
	q.lastCheck = time.Now()
	if err != nil {
		q.lastErr = fmt.Errorf("%w: qdrant unhealthy: %v", ErrUnavailable, err)
	} else {
		q.lastErr = nil
	}
	return q.lastErr
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}

// translateFilter converts a Filter tree to a Qdrant filter. A nil Filter
// means "no predicate".
func translateFilter(f *Filter) (*qdrant.Filter, error) {
	if f == nil {
		return nil, nil
	}
	cond, err := translateCondition(*f)
	if err != nil {
		return nil, err
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{cond}}, nil
}

func translateCondition(f Filter) (*qdrant.Condition, error) {
	switch {
	case len(f.And) > 0:
		conds := make([]*qdrant.Condition, 0, len(f.And))
		for _, sub := range f.And {
			c, err := translateCondition(sub)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{Must: conds},
			},
		}, nil
	case len(f.Or) > 0:
		conds := make([]*qdrant.Condition, 0, len(f.Or))
		for _, sub := range f.Or {
			c, err := translateCondition(sub)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{Should: conds},
			},
		}, nil
	case f.Gte != nil || f.Lte != nil:
		r := &qdrant.Range{}
		if f.Gte != nil {
			r.Gte = qdrant.PtrOf(*f.Gte)
		}
		if f.Lte != nil {
			r.Lte = qdrant.PtrOf(*f.Lte)
		}
		return qdrant.NewRange(f.Field, r), nil
	case len(f.In) > 0:
		return qdrant.NewMatchKeywords(f.Field, f.In...), nil
	case f.Contains != nil:
		return qdrant.NewMatch(f.Field, *f.Contains), nil
	default:
		return nil, fmt.Errorf("vectorstore: empty filter on field %q", f.Field)
	}
}

// valueToAny unwraps a Qdrant payload Value into a plain Go value for Hit.Meta.
func valueToAny(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}
