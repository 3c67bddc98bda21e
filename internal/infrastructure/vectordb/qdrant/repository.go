// Package qdrant provides a VectorDB implementation using Qdrant.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/infrastructure/config"
)

// Repository implements the VectorDB interface using Qdrant.
type Repository struct {
	client     pb.CollectionsClient
	points     pb.PointsClient
	collection string
	conn       *grpc.ClientConn
}

// NewRepository creates a new Qdrant repository.
func NewRepository(cfg config.QdrantConfig) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &Repository{
		client:     pb.NewCollectionsClient(conn),
		points:     pb.NewPointsClient(conn),
		collection: cfg.Collection,
		conn:       conn,
	}, nil
}

// Close closes the gRPC connection.
func (r *Repository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// EnsureCollection creates the collection if it doesn't exist.
func (r *Repository) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	_, err := r.client.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collection,
	})
	if err == nil {
		return nil
	}

	_, err = r.client.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	return nil
}

// pointID derives a stable UUID from a concept key so re-upserting the same
// concept always hits the same point.
func pointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// UpsertConcept stores the concept with its embedding, keyed by concept key.
func (r *Repository) UpsertConcept(ctx context.Context, concept entities.CanonicalConcept, embedding []float32) error {
	point := &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{
				Uuid: pointID(concept.Key),
			},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{
					Data: embedding,
				},
			},
		},
		Payload: map[string]*pb.Value{
			"key":          {Kind: &pb.Value_StringValue{StringValue: concept.Key}},
			"name":         {Kind: &pb.Value_StringValue{StringValue: concept.CanonicalName}},
			"type_name":    {Kind: &pb.Value_StringValue{StringValue: concept.TypeName}},
			"description":  {Kind: &pb.Value_StringValue{StringValue: concept.Description}},
			"member_count": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(concept.MemberCount)}},
			"confidence":   {Kind: &pb.Value_DoubleValue{DoubleValue: concept.Confidence}},
		},
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upserting point: %w", err)
	}

	return nil
}

// DeleteConcept removes the stored embedding for a concept key.
func (r *Repository) DeleteConcept(ctx context.Context, key string) error {
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(key)}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting point: %w", err)
	}

	return nil
}

// Search returns the closest concepts to the given embedding.
func (r *Repository) Search(ctx context.Context, embedding []float32, limit int) ([]entities.CanonicalConcept, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	concepts := make([]entities.CanonicalConcept, 0, len(resp.Result))
	for _, point := range resp.Result {
		concepts = append(concepts, entities.CanonicalConcept{
			Key:           getStringValue(point.Payload, "key"),
			CanonicalName: getStringValue(point.Payload, "name"),
			TypeName:      getStringValue(point.Payload, "type_name"),
			Description:   getStringValue(point.Payload, "description"),
			MemberCount:   int(getIntValue(point.Payload, "member_count")),
			Confidence:    getDoubleValue(point.Payload, "confidence"),
		})
	}

	return concepts, nil
}

// Helper functions for payload extraction.
func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func getIntValue(payload map[string]*pb.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

func getDoubleValue(payload map[string]*pb.Value, key string) float64 {
	if v, ok := payload[key]; ok {
		return v.GetDoubleValue()
	}
	return 0
}
