package databases

import (
	"context"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures a Qdrant gRPC connection.
type QdrantConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	EnableTLS bool   `yaml:"enable_tls"`
}

// SetDefaults fills unset fields.
func (c *QdrantConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
}

// QdrantProvider is a Provider backed by a Qdrant server.
type QdrantProvider struct {
	client *qdrant.Client
}

// NewQdrantProvider connects to Qdrant over gRPC.
func NewQdrantProvider(config *QdrantConfig) (*QdrantProvider, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.EnableTLS,
	})
	if err != nil {
		return nil, NewDatabaseError("qdrant", "connect", "creating client", err)
	}
	return &QdrantProvider{client: client}, nil
}

func (db *QdrantProvider) ensureCollection(ctx context.Context, collection string, vectorSize uint64) error {
	exists, err := db.client.CollectionExists(ctx, collection)
	if err != nil {
		return NewDatabaseError("qdrant", "upsert", "checking collection", err)
	}
	if exists {
		return nil
	}

	err = db.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	// Concurrent creators can race; the collection existing is the goal.
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return NewDatabaseError("qdrant", "upsert", "creating collection", err)
	}
	return nil
}

// Upsert inserts or replaces a vector, creating the collection on first use.
func (db *QdrantProvider) Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]interface{}) error {
	if err := db.ensureCollection(ctx, collection, uint64(len(vector))); err != nil {
		return err
	}

	values := make(map[string]*qdrant.Value, len(payload))
	for key, value := range payload {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return NewDatabaseError("qdrant", "upsert", "converting payload value "+key, err)
		}
		values[key] = val
	}

	_, err := db.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vector...),
			Payload: values,
		}},
	})
	if err != nil {
		return NewDatabaseError("qdrant", "upsert", "upserting point "+id, err)
	}
	return nil
}

// Search returns the topK nearest vectors.
func (db *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	return db.SearchWithFilter(ctx, collection, vector, topK, nil)
}

// SearchWithFilter restricts the search by exact payload match.
func (db *QdrantProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]SearchResult, error) {
	request := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		request.Filter = buildFilter(filter)
	}

	points, err := db.client.GetPointsClient().Search(ctx, request)
	if err != nil {
		return nil, NewDatabaseError("qdrant", "search", "searching points", err)
	}
	return convertPoints(points.Result), nil
}

func buildFilter(filter map[string]interface{}) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		val, err := qdrant.NewValue(value)
		if err != nil {
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{
							Keyword: val.GetStringValue(),
						},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func convertPoints(points []*qdrant.ScoredPoint) []SearchResult {
	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		var id string
		if point.Id != nil {
			switch idType := point.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = idType.Uuid
			case *qdrant.PointId_Num:
				id = strconv.FormatUint(idType.Num, 10)
			}
		}

		metadata := make(map[string]interface{}, len(point.Payload))
		for key, value := range point.Payload {
			metadata[key] = decodeValue(value)
		}

		content := ""
		if s, ok := metadata["content"].(string); ok {
			content = s
		}

		results = append(results, SearchResult{
			ID:       id,
			Content:  content,
			Score:    point.Score,
			Metadata: metadata,
		})
	}
	return results
}

func decodeValue(value *qdrant.Value) interface{} {
	switch v := value.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]interface{}, len(v.ListValue.Values))
		for i, item := range v.ListValue.Values {
			list[i] = decodeValue(item)
		}
		return list
	default:
		return value
	}
}

// Delete removes a point by ID.
func (db *QdrantProvider) Delete(ctx context.Context, collection, id string) error {
	_, err := db.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{
						{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}},
					},
				},
			},
		},
	})
	if err != nil {
		return NewDatabaseError("qdrant", "delete", "deleting point "+id, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (db *QdrantProvider) Close() error {
	return db.client.Close()
}
