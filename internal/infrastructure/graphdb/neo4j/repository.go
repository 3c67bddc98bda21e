// Package neo4j mirrors canonical concepts into a Neo4j graph over Bolt.
package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/infrastructure/config"
)

// Repository implements ports.GraphDB using the Neo4j Bolt driver.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewRepository creates a new graph repository and verifies connectivity.
func NewRepository(ctx context.Context, cfg config.GraphConfig) (*Repository, error) {
	if cfg.URI == "" {
		return nil, errors.New("graph uri is required")
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("creating graph driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying graph connectivity: %w", err)
	}

	return &Repository{
		driver:   driver,
		database: cfg.Database,
	}, nil
}

// Close closes the driver connection.
func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: r.database,
	})
}

func (r *Repository) executeWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

func (r *Repository) executeRead(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

// UpsertConcept creates or updates the canonical node for a concept. Nodes
// are keyed by concept key so re-running a merge never duplicates them. The
// type name doubles as the node label.
func (r *Repository) UpsertConcept(ctx context.Context, concept entities.CanonicalConcept) error {
	cypher := fmt.Sprintf(`
		MERGE (c:%s {key: $key})
		SET c.name = $name,
			c.type_name = $type_name,
			c.description = $description,
			c.member_count = $member_count,
			c.confidence = $confidence
		RETURN c
	`, sanitizeLabel(concept.TypeName))

	_, err := r.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"key":          concept.Key,
			"name":         concept.CanonicalName,
			"type_name":    concept.TypeName,
			"description":  concept.Description,
			"member_count": concept.MemberCount,
			"confidence":   concept.Confidence,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("upserting concept in graph: %w", err)
	}
	return nil
}

// DeleteConcept removes the canonical node for a key, detaching its edges.
func (r *Repository) DeleteConcept(ctx context.Context, key string) error {
	cypher := `
		MATCH (c {key: $key})
		DETACH DELETE c
	`
	_, err := r.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("deleting concept from graph: %w", err)
	}
	return nil
}

// RelateConcepts creates or updates a relation between two canonical nodes.
func (r *Repository) RelateConcepts(ctx context.Context, sourceKey, targetKey, relType string) error {
	cypher := fmt.Sprintf(`
		MATCH (s {key: $source_key})
		MATCH (t {key: $target_key})
		MERGE (s)-[rel:%s]->(t)
		RETURN rel
	`, sanitizeLabel(relType))

	_, err := r.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"source_key": sourceKey,
			"target_key": targetKey,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("relating concepts in graph: %w", err)
	}
	return nil
}

// RelabelType moves every node of one type label to another. Keys are
// recomputed from the target type so mirror lookups stay consistent after
// a type merge.
func (r *Repository) RelabelType(ctx context.Context, source, target string) error {
	srcLabel := sanitizeLabel(source)
	dstLabel := sanitizeLabel(target)

	// Prefix replacement rather than splitting on ':', which would truncate
	// canonical names that themselves contain a colon.
	cypher := fmt.Sprintf(`
		MATCH (c:%s)
		SET c:%s, c.type_name = $target,
			c.key = $target_prefix + substring(c.key, size($source_prefix))
		REMOVE c:%s
		RETURN count(c)
	`, srcLabel, dstLabel, srcLabel)

	_, err := r.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"target":        target,
			"source_prefix": entities.NormalizeName(source) + ":",
			"target_prefix": entities.NormalizeName(target) + ":",
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("relabeling type in graph: %w", err)
	}
	return nil
}

// CountConcepts counts canonical nodes for a type.
func (r *Repository) CountConcepts(ctx context.Context, typeName string) (int, error) {
	cypher := fmt.Sprintf(`MATCH (c:%s) RETURN count(c) AS total`, sanitizeLabel(typeName))

	count, err := r.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, nil)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		total, _ := record.Get("total")
		return total, nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting concepts in graph: %w", err)
	}

	if n, ok := count.(int64); ok {
		return int(n), nil
	}
	return 0, nil
}

// sanitizeLabel strips everything but alphanumerics and underscore so type
// names can be interpolated as Cypher labels.
func sanitizeLabel(label string) string {
	result := ""
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result += string(c)
		}
	}
	if result == "" {
		return "Concept"
	}
	return result
}
