// Package sqlite provides a SQLite implementation of the RelationalDB interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
	"github.com/ersonp/canon-core/internal/infrastructure/config"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// Repository implements ports.RelationalDB using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Enable foreign keys for referential integrity
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Repository{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Dynamically discovered entity categories with approval lifecycle
	CREATE TABLE IF NOT EXISTS entity_types (
		name TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		description TEXT,
		discovered_by TEXT,
		rejection_reason TEXT,
		first_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Candidate and canonical entities
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		type_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		canonical_name TEXT,
		description TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		occurrences INTEGER NOT NULL DEFAULT 1,
		source_doc TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		validated_at TIMESTAMP,
		validated_by TEXT,
		UNIQUE(type_name, name)
	);
	CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type_name);
	CREATE INDEX IF NOT EXISTS idx_entities_normalized ON entities(type_name, normalized_name);
	CREATE INDEX IF NOT EXISTS idx_entities_status ON entities(status);

	-- Entity relations (directed edges)
	CREATE TABLE IF NOT EXISTS relations (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		type TEXT NOT NULL,
		source_doc TEXT,
		document_role TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
	CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);

	-- Time-boxed, single-use pre-merge captures
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		type_name TEXT NOT NULL,
		operation TEXT NOT NULL,
		entity_count INTEGER NOT NULL DEFAULT 0,
		restored INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_type ON snapshots(type_name);

	-- Asynchronous jobs with pollable status
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		type_name TEXT,
		status TEXT NOT NULL DEFAULT 'queued',
		processed INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		result TEXT,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		started_at TIMESTAMP,
		ended_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);

	-- Curation log (tracks all actions)
	CREATE TABLE IF NOT EXISTS curation_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		subject_id TEXT,
		details TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_curation_log_subject ON curation_log(subject_id);
	CREATE INDEX IF NOT EXISTS idx_curation_log_action ON curation_log(action);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Entity type operations

// SaveEntityType inserts or updates a type row.
func (r *Repository) SaveEntityType(ctx context.Context, et *entities.EntityType) error {
	if et.FirstSeen.IsZero() {
		et.FirstSeen = timeNow()
	}
	query := `
		INSERT INTO entity_types (name, status, description, discovered_by, rejection_reason, first_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			status = excluded.status,
			description = excluded.description,
			rejection_reason = excluded.rejection_reason
	`
	_, err := r.db.ExecContext(ctx, query,
		et.Name,
		et.Status,
		et.Description,
		et.DiscoveredBy,
		et.RejectionReason,
		et.FirstSeen,
	)
	if err != nil {
		return fmt.Errorf("saving entity type: %w", err)
	}
	return nil
}

const entityTypeColumns = `
	t.name, t.status, t.description, t.discovered_by, t.rejection_reason, t.first_seen,
	(SELECT COUNT(*) FROM entities e WHERE e.type_name = t.name),
	(SELECT COUNT(*) FROM entities e WHERE e.type_name = t.name AND e.status = 'pending'),
	(SELECT COUNT(*) FROM entities e WHERE e.type_name = t.name AND e.status = 'validated')
`

func scanEntityType(row interface{ Scan(...any) error }) (*entities.EntityType, error) {
	var et entities.EntityType
	var description, discoveredBy, rejectionReason sql.NullString
	err := row.Scan(
		&et.Name,
		&et.Status,
		&description,
		&discoveredBy,
		&rejectionReason,
		&et.FirstSeen,
		&et.EntityCount,
		&et.PendingCount,
		&et.ValidatedCount,
	)
	if err != nil {
		return nil, err
	}
	et.Description = description.String
	et.DiscoveredBy = discoveredBy.String
	et.RejectionReason = rejectionReason.String
	return &et, nil
}

// FindEntityType finds a type by name with counts filled, or nil.
func (r *Repository) FindEntityType(ctx context.Context, name string) (*entities.EntityType, error) {
	query := `SELECT ` + entityTypeColumns + ` FROM entity_types t WHERE t.name = ?`
	et, err := scanEntityType(r.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entity type: %w", err)
	}
	return et, nil
}

// ListEntityTypes lists types with counts filled, optionally by status.
func (r *Repository) ListEntityTypes(ctx context.Context, status entities.TypeStatus) ([]entities.EntityType, error) {
	query := `SELECT ` + entityTypeColumns + ` FROM entity_types t`
	var args []any
	if status != "" {
		query += ` WHERE t.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY t.name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entity types: %w", err)
	}
	defer rows.Close()

	var result []entities.EntityType
	for rows.Next() {
		et, err := scanEntityType(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity type: %w", err)
		}
		result = append(result, *et)
	}
	return result, rows.Err()
}

// DeleteEntityType deletes a type row by name.
func (r *Repository) DeleteEntityType(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM entity_types WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting entity type: %w", err)
	}
	return nil
}

// TransferEntityType atomically reassigns every source entity to the target
// type and deletes the source type row. Readers never see entities between
// types: both statements commit together.
func (r *Repository) TransferEntityType(ctx context.Context, source, target string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE entities SET type_name = ? WHERE type_name = ?`, target, source); err != nil {
			return fmt.Errorf("reassigning entities: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entity_types WHERE name = ?`, source); err != nil {
			return fmt.Errorf("deleting source type: %w", err)
		}
		return nil
	})
}

// Entity operations

// SaveEntity inserts or updates an entity.
func (r *Repository) SaveEntity(ctx context.Context, entity *entities.Entity) error {
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = timeNow()
	}
	if entity.NormalizedName == "" {
		entity.NormalizedName = entities.NormalizeName(entity.Name)
	}
	if entity.Status == "" {
		entity.Status = entities.EntityStatusPending
	}
	query := `
		INSERT INTO entities (id, name, normalized_name, type_name, status, canonical_name,
			description, confidence, occurrences, source_doc, created_at, validated_at, validated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			normalized_name = excluded.normalized_name,
			type_name = excluded.type_name,
			status = excluded.status,
			canonical_name = excluded.canonical_name,
			description = excluded.description,
			confidence = excluded.confidence,
			occurrences = excluded.occurrences,
			source_doc = excluded.source_doc,
			validated_at = excluded.validated_at,
			validated_by = excluded.validated_by
	`
	_, err := r.db.ExecContext(ctx, query,
		entity.ID,
		entity.Name,
		entity.NormalizedName,
		entity.TypeName,
		entity.Status,
		nullString(entity.CanonicalName),
		nullString(entity.Description),
		entity.Confidence,
		entity.Occurrences,
		nullString(entity.SourceDoc),
		entity.CreatedAt,
		nullTime(entity.ValidatedAt),
		nullString(entity.ValidatedBy),
	)
	if err != nil {
		return fmt.Errorf("saving entity: %w", err)
	}
	return nil
}

const entityColumns = `
	id, name, normalized_name, type_name, status, canonical_name,
	description, confidence, occurrences, source_doc, created_at, validated_at, validated_by
`

func scanEntity(row interface{ Scan(...any) error }) (*entities.Entity, error) {
	var e entities.Entity
	var canonicalName, description, sourceDoc, validatedBy sql.NullString
	var validatedAt sql.NullTime
	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.NormalizedName,
		&e.TypeName,
		&e.Status,
		&canonicalName,
		&description,
		&e.Confidence,
		&e.Occurrences,
		&sourceDoc,
		&e.CreatedAt,
		&validatedAt,
		&validatedBy,
	)
	if err != nil {
		return nil, err
	}
	e.CanonicalName = canonicalName.String
	e.Description = description.String
	e.SourceDoc = sourceDoc.String
	e.ValidatedBy = validatedBy.String
	if validatedAt.Valid {
		t := validatedAt.Time
		e.ValidatedAt = &t
	}
	return &e, nil
}

// FindEntityByID finds an entity by its ID, or nil.
func (r *Repository) FindEntityByID(ctx context.Context, id string) (*entities.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ?`
	e, err := scanEntity(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	return e, nil
}

// FindEntityByName finds an entity by type and exact name, or nil.
func (r *Repository) FindEntityByName(ctx context.Context, typeName, name string) (*entities.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE type_name = ? AND name = ?`
	e, err := scanEntity(r.db.QueryRowContext(ctx, query, typeName, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	return e, nil
}

func filterClauses(filter ports.EntityFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.TypeName != "" {
		clauses = append(clauses, "type_name = ?")
		args = append(args, filter.TypeName)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.NamePrefix != "" {
		clauses = append(clauses, "normalized_name LIKE ?")
		args = append(args, entities.NormalizeName(filter.NamePrefix)+"%")
	}
	if filter.MinOccurrences > 0 {
		clauses = append(clauses, "occurrences >= ?")
		args = append(args, filter.MinOccurrences)
	}
	if filter.MinConfidence > 0 {
		clauses = append(clauses, "confidence >= ?")
		args = append(args, filter.MinConfidence)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListEntities lists entities matching the filter, ordered by created_at
// then id for determinism.
func (r *Repository) ListEntities(ctx context.Context, filter ports.EntityFilter) ([]*entities.Entity, error) {
	where, args := filterClauses(filter)
	query := `SELECT ` + entityColumns + ` FROM entities` + where + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var result []*entities.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// CountEntities counts entities matching the filter.
func (r *Repository) CountEntities(ctx context.Context, filter ports.EntityFilter) (int, error) {
	where, args := filterClauses(filter)
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting entities: %w", err)
	}
	return count, nil
}

// DeleteEntity deletes an entity by ID.
func (r *Repository) DeleteEntity(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return nil
}

// Relation operations

// SaveRelation inserts or updates a relation.
func (r *Repository) SaveRelation(ctx context.Context, rel *entities.Relation) error {
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = timeNow()
	}
	query := `
		INSERT INTO relations (id, source_id, target_id, type, source_doc, document_role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_id = excluded.source_id,
			target_id = excluded.target_id,
			type = excluded.type
	`
	_, err := r.db.ExecContext(ctx, query,
		rel.ID,
		rel.SourceID,
		rel.TargetID,
		rel.Type,
		nullString(rel.SourceDoc),
		nullString(string(rel.DocumentRole)),
		rel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving relation: %w", err)
	}
	return nil
}

func scanRelation(row interface{ Scan(...any) error }) (*entities.Relation, error) {
	var rel entities.Relation
	var sourceDoc, documentRole sql.NullString
	err := row.Scan(
		&rel.ID,
		&rel.SourceID,
		&rel.TargetID,
		&rel.Type,
		&sourceDoc,
		&documentRole,
		&rel.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rel.SourceDoc = sourceDoc.String
	rel.DocumentRole = entities.DocumentRole(documentRole.String)
	return &rel, nil
}

// FindRelationsByEntity finds relations with the entity as either endpoint.
func (r *Repository) FindRelationsByEntity(ctx context.Context, entityID string) ([]entities.Relation, error) {
	query := `
		SELECT id, source_id, target_id, type, source_doc, document_role, created_at
		FROM relations
		WHERE source_id = ? OR target_id = ?
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("finding relations: %w", err)
	}
	defer rows.Close()

	var result []entities.Relation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		result = append(result, *rel)
	}
	return result, rows.Err()
}

// CountRelationsByEntity returns each entity's relation degree.
func (r *Repository) CountRelationsByEntity(ctx context.Context, entityIDs []string) (map[string]int, error) {
	degrees := make(map[string]int, len(entityIDs))
	if len(entityIDs) == 0 {
		return degrees, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entityIDs)), ",")
	args := make([]any, 0, len(entityIDs)*2)
	for _, id := range entityIDs {
		degrees[id] = 0
		args = append(args, id)
	}
	for _, id := range entityIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT entity_id, COUNT(*) FROM (
			SELECT source_id AS entity_id, id FROM relations WHERE source_id IN (%s)
			UNION
			SELECT target_id AS entity_id, id FROM relations WHERE target_id IN (%s)
		) GROUP BY entity_id
	`, placeholders, placeholders)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting relations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scanning relation count: %w", err)
		}
		degrees[id] = count
	}
	return degrees, rows.Err()
}

// Composite mutations

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func applyRelationChanges(ctx context.Context, tx *sql.Tx, updates []entities.RelationEndpointUpdate, deletes []string) error {
	for _, u := range updates {
		if u.NewSourceID != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE relations SET source_id = ? WHERE id = ?`, u.NewSourceID, u.RelationID); err != nil {
				return fmt.Errorf("updating relation source: %w", err)
			}
		}
		if u.NewTargetID != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE relations SET target_id = ? WHERE id = ?`, u.NewTargetID, u.RelationID); err != nil {
				return fmt.Errorf("updating relation target: %w", err)
			}
		}
	}
	for _, id := range deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting relation: %w", err)
		}
	}
	return nil
}

// ApplyMergeGroup applies one merge group as an all-or-nothing unit.
func (r *Repository) ApplyMergeGroup(ctx context.Context, apply *entities.MergeApply) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		now := timeNow()
		for _, id := range apply.MemberIDs {
			_, err := tx.ExecContext(ctx, `
				UPDATE entities
				SET canonical_name = ?, status = ?, validated_at = ?, validated_by = ?
				WHERE id = ?
			`, apply.CanonicalName, entities.EntityStatusValidated, now, nullString(apply.ValidatedBy), id)
			if err != nil {
				return fmt.Errorf("updating member %s: %w", id, err)
			}
		}
		if apply.Description != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE entities SET description = ? WHERE id = ?`, apply.Description, apply.MasterID); err != nil {
				return fmt.Errorf("updating master description: %w", err)
			}
		}
		return applyRelationChanges(ctx, tx, apply.RelationUpdates, apply.DeleteRelations)
	})
}

// ApplyDedupe applies one duplicate-group collapse as an all-or-nothing unit.
func (r *Repository) ApplyDedupe(ctx context.Context, apply *entities.DedupeApply) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := applyRelationChanges(ctx, tx, apply.RelationUpdates, apply.DeleteRelations); err != nil {
			return err
		}
		for _, id := range apply.DeleteEntities {
			if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
				return fmt.Errorf("deleting entity %s: %w", id, err)
			}
		}
		return nil
	})
}

// ApplyRestore re-establishes captured pre-merge state atomically.
func (r *Repository) ApplyRestore(ctx context.Context, apply *entities.RestoreApply) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range apply.Types {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO entity_types (name, status, description, discovered_by, rejection_reason, first_seen)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(name) DO UPDATE SET status = excluded.status
			`, t.Name, t.Status, t.Description, t.DiscoveredBy, t.RejectionReason, t.FirstSeen)
			if err != nil {
				return fmt.Errorf("restoring type %s: %w", t.Name, err)
			}
		}

		for _, e := range apply.Entities {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO entities (id, name, normalized_name, type_name, status, canonical_name,
					description, confidence, occurrences, source_doc, created_at, validated_at, validated_by)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					normalized_name = excluded.normalized_name,
					type_name = excluded.type_name,
					status = excluded.status,
					canonical_name = excluded.canonical_name,
					description = excluded.description,
					confidence = excluded.confidence,
					occurrences = excluded.occurrences,
					validated_at = excluded.validated_at,
					validated_by = excluded.validated_by
			`, e.ID, e.Name, e.NormalizedName, e.TypeName, e.Status, nullString(e.CanonicalName),
				nullString(e.Description), e.Confidence, e.Occurrences, nullString(e.SourceDoc),
				e.CreatedAt, nullTime(e.ValidatedAt), nullString(e.ValidatedBy))
			if err != nil {
				return fmt.Errorf("restoring entity %s: %w", e.ID, err)
			}

			// Every relation touching a captured entity is replaced by the
			// captured set below.
			if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE source_id = ? OR target_id = ?`, e.ID, e.ID); err != nil {
				return fmt.Errorf("clearing relations for %s: %w", e.ID, err)
			}
		}

		for _, rel := range apply.Relations {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO relations (id, source_id, target_id, type, source_doc, document_role, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					source_id = excluded.source_id,
					target_id = excluded.target_id,
					type = excluded.type
			`, rel.ID, rel.SourceID, rel.TargetID, rel.Type, nullString(rel.SourceDoc),
				nullString(string(rel.DocumentRole)), rel.CreatedAt)
			if err != nil {
				return fmt.Errorf("restoring relation %s: %w", rel.ID, err)
			}
		}
		return nil
	})
}

// PromoteEntities marks the given entities validated in one transaction.
func (r *Repository) PromoteEntities(ctx context.Context, ids []string, validatedBy string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		now := timeNow()
		for _, id := range ids {
			_, err := tx.ExecContext(ctx, `
				UPDATE entities SET status = ?, validated_at = ?, validated_by = ? WHERE id = ?
			`, entities.EntityStatusValidated, now, nullString(validatedBy), id)
			if err != nil {
				return fmt.Errorf("promoting entity %s: %w", id, err)
			}
		}
		return nil
	})
}

// Snapshot operations

// SaveSnapshot stores a snapshot with its payload.
func (r *Repository) SaveSnapshot(ctx context.Context, snapshot *entities.Snapshot, payload *entities.SnapshotPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding snapshot payload: %w", err)
	}
	query := `
		INSERT INTO snapshots (id, type_name, operation, entity_count, restored, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.TypeName,
		snapshot.Operation,
		snapshot.EntityCount,
		snapshot.Restored,
		string(data),
		snapshot.CreatedAt,
		snapshot.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// FindSnapshot finds a snapshot by ID without its payload, or nil.
func (r *Repository) FindSnapshot(ctx context.Context, id string) (*entities.Snapshot, error) {
	query := `
		SELECT id, type_name, operation, entity_count, restored, created_at, expires_at
		FROM snapshots WHERE id = ?
	`
	var s entities.Snapshot
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.TypeName,
		&s.Operation,
		&s.EntityCount,
		&s.Restored,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}
	return &s, nil
}

// FindSnapshotPayload loads the serialized payload of a snapshot.
func (r *Repository) FindSnapshotPayload(ctx context.Context, id string) (*entities.SnapshotPayload, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot payload: %w", err)
	}
	var payload entities.SnapshotPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, fmt.Errorf("decoding snapshot payload: %w", err)
	}
	return &payload, nil
}

// ListSnapshots lists snapshots for a type, newest first.
func (r *Repository) ListSnapshots(ctx context.Context, typeName string) ([]entities.Snapshot, error) {
	query := `
		SELECT id, type_name, operation, entity_count, restored, created_at, expires_at
		FROM snapshots
	`
	var args []any
	if typeName != "" {
		query += ` WHERE type_name = ?`
		args = append(args, typeName)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var result []entities.Snapshot
	for rows.Next() {
		var s entities.Snapshot
		if err := rows.Scan(&s.ID, &s.TypeName, &s.Operation, &s.EntityCount, &s.Restored, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// MarkSnapshotRestored consumes a snapshot so it cannot be replayed.
func (r *Repository) MarkSnapshotRestored(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE snapshots SET restored = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking snapshot restored: %w", err)
	}
	return nil
}

// Job operations

// SaveJob inserts or updates a job row.
func (r *Repository) SaveJob(ctx context.Context, job *entities.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = timeNow()
	}
	query := `
		INSERT INTO jobs (id, kind, type_name, status, processed, total, result, error, created_at, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			processed = excluded.processed,
			total = excluded.total,
			result = excluded.result,
			error = excluded.error,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.Kind,
		nullString(job.TypeName),
		job.Status,
		job.Processed,
		job.Total,
		nullString(string(job.Result)),
		nullString(job.Error),
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("saving job: %w", err)
	}
	return nil
}

func scanJob(row interface{ Scan(...any) error }) (*entities.Job, error) {
	var j entities.Job
	var typeName, result, jobErr sql.NullString
	var startedAt, endedAt sql.NullTime
	err := row.Scan(
		&j.ID,
		&j.Kind,
		&typeName,
		&j.Status,
		&j.Processed,
		&j.Total,
		&result,
		&jobErr,
		&j.CreatedAt,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}
	j.TypeName = typeName.String
	if result.Valid {
		j.Result = []byte(result.String)
	}
	j.Error = jobErr.String
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		j.EndedAt = &t
	}
	return &j, nil
}

// FindJob finds a job by ID, or nil.
func (r *Repository) FindJob(ctx context.Context, id string) (*entities.Job, error) {
	query := `
		SELECT id, kind, type_name, status, processed, total, result, error, created_at, started_at, ended_at
		FROM jobs WHERE id = ?
	`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}
	return j, nil
}

// ListJobs lists jobs newest first, optionally limited.
func (r *Repository) ListJobs(ctx context.Context, limit int) ([]entities.Job, error) {
	query := `
		SELECT id, kind, type_name, status, processed, total, result, error, created_at, started_at, ended_at
		FROM jobs ORDER BY created_at DESC, id
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var result []entities.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		result = append(result, *j)
	}
	return result, rows.Err()
}

// Curation log

// LogAction appends an entry to the curation log.
func (r *Repository) LogAction(ctx context.Context, action, subjectID string, details map[string]any) error {
	var detailsJSON string
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encoding details: %w", err)
		}
		detailsJSON = string(data)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO curation_log (action, subject_id, details, created_at)
		VALUES (?, ?, ?, ?)
	`, action, nullString(subjectID), nullString(detailsJSON), timeNow())
	if err != nil {
		return fmt.Errorf("logging action: %w", err)
	}
	return nil
}

// FindCurationLog finds log entries for a subject.
func (r *Repository) FindCurationLog(ctx context.Context, subjectID string) ([]entities.CurationEntry, error) {
	query := `
		SELECT id, action, subject_id, details, created_at
		FROM curation_log WHERE subject_id = ? ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("finding curation log: %w", err)
	}
	defer rows.Close()

	var result []entities.CurationEntry
	for rows.Next() {
		var e entities.CurationEntry
		var subject, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &subject, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		e.SubjectID = subject.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decoding log details: %w", err)
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
