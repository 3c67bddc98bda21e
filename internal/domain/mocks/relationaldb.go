// Package mocks provides hand-written mock implementations of the domain ports.
package mocks

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// RelationalDB is an in-memory mock implementation of ports.RelationalDB.
// Set Err to force every call to fail.
type RelationalDB struct {
	mu        sync.Mutex
	Types     map[string]*entities.EntityType
	Entities  map[string]*entities.Entity
	Relations map[string]*entities.Relation
	Snapshots map[string]*entities.Snapshot
	Payloads  map[string][]byte
	Jobs      map[string]*entities.Job
	Log       []entities.CurationEntry
	Err       error
}

// NewRelationalDB creates a new mock RelationalDB.
func NewRelationalDB() *RelationalDB {
	return &RelationalDB{
		Types:     make(map[string]*entities.EntityType),
		Entities:  make(map[string]*entities.Entity),
		Relations: make(map[string]*entities.Relation),
		Snapshots: make(map[string]*entities.Snapshot),
		Payloads:  make(map[string][]byte),
		Jobs:      make(map[string]*entities.Job),
	}
}

// EnsureSchema is a no-op.
func (m *RelationalDB) EnsureSchema(_ context.Context) error {
	return m.Err
}

// Close is a no-op.
func (m *RelationalDB) Close() error {
	return nil
}

// Entity type methods.

// SaveEntityType inserts or updates a type row.
func (m *RelationalDB) SaveEntityType(_ context.Context, et *entities.EntityType) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *et
	m.Types[et.Name] = &cp
	return nil
}

// FindEntityType finds a type by name with counts filled, or nil.
func (m *RelationalDB) FindEntityType(_ context.Context, name string) (*entities.EntityType, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	et, ok := m.Types[name]
	if !ok {
		return nil, nil
	}
	cp := *et
	m.fillCounts(&cp)
	return &cp, nil
}

// ListEntityTypes lists types with counts filled, optionally by status.
func (m *RelationalDB) ListEntityTypes(_ context.Context, status entities.TypeStatus) ([]entities.EntityType, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]entities.EntityType, 0, len(m.Types))
	for _, t := range m.Types {
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		m.fillCounts(&cp)
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (m *RelationalDB) fillCounts(et *entities.EntityType) {
	et.EntityCount, et.PendingCount, et.ValidatedCount = 0, 0, 0
	for _, e := range m.Entities {
		if e.TypeName != et.Name {
			continue
		}
		et.EntityCount++
		if e.Status == entities.EntityStatusValidated {
			et.ValidatedCount++
		} else {
			et.PendingCount++
		}
	}
}

// DeleteEntityType deletes a type row by name.
func (m *RelationalDB) DeleteEntityType(_ context.Context, name string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Types, name)
	return nil
}

// TransferEntityType reassigns every source entity to target and deletes source.
func (m *RelationalDB) TransferEntityType(_ context.Context, source, target string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entities {
		if e.TypeName == source {
			e.TypeName = target
		}
	}
	delete(m.Types, source)
	return nil
}

// Entity methods.

// SaveEntity inserts or updates an entity, filling the same defaults the
// real repository does.
func (m *RelationalDB) SaveEntity(_ context.Context, entity *entities.Entity) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entity
	if cp.NormalizedName == "" {
		cp.NormalizedName = entities.NormalizeName(cp.Name)
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.Status == "" {
		cp.Status = entities.EntityStatusPending
	}
	m.Entities[entity.ID] = &cp
	return nil
}

// FindEntityByID finds an entity by ID, or nil.
func (m *RelationalDB) FindEntityByID(_ context.Context, id string) (*entities.Entity, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Entities[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// FindEntityByName finds an entity by type and exact name, or nil.
func (m *RelationalDB) FindEntityByName(_ context.Context, typeName, name string) (*entities.Entity, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entities {
		if e.TypeName == typeName && e.Name == name {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func matchesFilter(e *entities.Entity, filter ports.EntityFilter) bool {
	if filter.TypeName != "" && e.TypeName != filter.TypeName {
		return false
	}
	if filter.Status != "" && e.Status != filter.Status {
		return false
	}
	if filter.NamePrefix != "" && !strings.HasPrefix(e.NormalizedName, entities.NormalizeName(filter.NamePrefix)) {
		return false
	}
	if filter.MinOccurrences > 0 && e.Occurrences < filter.MinOccurrences {
		return false
	}
	if filter.MinConfidence > 0 && e.Confidence < filter.MinConfidence {
		return false
	}
	return true
}

// ListEntities lists entities matching the filter.
func (m *RelationalDB) ListEntities(_ context.Context, filter ports.EntityFilter) ([]*entities.Entity, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entities.Entity
	for _, e := range m.Entities {
		if matchesFilter(e, filter) {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// CountEntities counts entities matching the filter.
func (m *RelationalDB) CountEntities(_ context.Context, filter ports.EntityFilter) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.Entities {
		if matchesFilter(e, filter) {
			count++
		}
	}
	return count, nil
}

// DeleteEntity deletes an entity by ID.
func (m *RelationalDB) DeleteEntity(_ context.Context, id string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Entities, id)
	return nil
}

// Relation methods.

// SaveRelation inserts or updates a relation.
func (m *RelationalDB) SaveRelation(_ context.Context, rel *entities.Relation) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rel
	m.Relations[rel.ID] = &cp
	return nil
}

// FindRelationsByEntity finds relations touching the entity.
func (m *RelationalDB) FindRelationsByEntity(_ context.Context, entityID string) ([]entities.Relation, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []entities.Relation
	for _, r := range m.Relations {
		if r.Touches(entityID) {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CountRelationsByEntity returns each entity's relation degree.
func (m *RelationalDB) CountRelationsByEntity(_ context.Context, entityIDs []string) (map[string]int, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	degrees := make(map[string]int, len(entityIDs))
	for _, id := range entityIDs {
		degrees[id] = 0
		for _, r := range m.Relations {
			if r.Touches(id) {
				degrees[id]++
			}
		}
	}
	return degrees, nil
}

// Composite mutations.

// ApplyMergeGroup applies one merge group.
func (m *RelationalDB) ApplyMergeGroup(_ context.Context, apply *entities.MergeApply) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, id := range apply.MemberIDs {
		e, ok := m.Entities[id]
		if !ok {
			continue
		}
		e.CanonicalName = apply.CanonicalName
		e.Status = entities.EntityStatusValidated
		e.ValidatedAt = &now
		e.ValidatedBy = apply.ValidatedBy
		if apply.Description != "" && e.ID == apply.MasterID {
			e.Description = apply.Description
		}
	}
	m.applyRelationChanges(apply.RelationUpdates, apply.DeleteRelations)
	return nil
}

// ApplyDedupe applies one duplicate-group collapse.
func (m *RelationalDB) ApplyDedupe(_ context.Context, apply *entities.DedupeApply) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyRelationChanges(apply.RelationUpdates, apply.DeleteRelations)
	for _, id := range apply.DeleteEntities {
		delete(m.Entities, id)
	}
	return nil
}

func (m *RelationalDB) applyRelationChanges(updates []entities.RelationEndpointUpdate, deletes []string) {
	for _, u := range updates {
		if r, ok := m.Relations[u.RelationID]; ok {
			if u.NewSourceID != "" {
				r.SourceID = u.NewSourceID
			}
			if u.NewTargetID != "" {
				r.TargetID = u.NewTargetID
			}
		}
	}
	for _, id := range deletes {
		delete(m.Relations, id)
	}
}

// ApplyRestore re-establishes captured state.
func (m *RelationalDB) ApplyRestore(_ context.Context, apply *entities.RestoreApply) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range apply.Types {
		cp := t
		m.Types[t.Name] = &cp
	}
	restored := make(map[string]bool, len(apply.Entities))
	for _, e := range apply.Entities {
		cp := e
		m.Entities[e.ID] = &cp
		restored[e.ID] = true
	}
	for id, r := range m.Relations {
		if restored[r.SourceID] || restored[r.TargetID] {
			delete(m.Relations, id)
		}
	}
	for _, r := range apply.Relations {
		cp := r
		m.Relations[r.ID] = &cp
	}
	return nil
}

// PromoteEntities marks the given entities validated.
func (m *RelationalDB) PromoteEntities(_ context.Context, ids []string, validatedBy string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, id := range ids {
		if e, ok := m.Entities[id]; ok {
			e.Status = entities.EntityStatusValidated
			e.ValidatedAt = &now
			e.ValidatedBy = validatedBy
		}
	}
	return nil
}

// Snapshot methods.

// SaveSnapshot stores a snapshot with its payload.
func (m *RelationalDB) SaveSnapshot(_ context.Context, snapshot *entities.Snapshot, payload *entities.SnapshotPayload) error {
	if m.Err != nil {
		return m.Err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snapshot
	m.Snapshots[snapshot.ID] = &cp
	m.Payloads[snapshot.ID] = data
	return nil
}

// FindSnapshot finds a snapshot by ID, or nil.
func (m *RelationalDB) FindSnapshot(_ context.Context, id string) (*entities.Snapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Snapshots[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// FindSnapshotPayload loads the payload of a snapshot.
func (m *RelationalDB) FindSnapshotPayload(_ context.Context, id string) (*entities.SnapshotPayload, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	data, ok := m.Payloads[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var payload entities.SnapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ListSnapshots lists snapshots for a type, newest first.
func (m *RelationalDB) ListSnapshots(_ context.Context, typeName string) ([]entities.Snapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []entities.Snapshot
	for _, s := range m.Snapshots {
		if typeName == "" || s.TypeName == typeName {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// MarkSnapshotRestored consumes a snapshot.
func (m *RelationalDB) MarkSnapshotRestored(_ context.Context, id string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Snapshots[id]; ok {
		s.Restored = true
	}
	return nil
}

// Job methods.

// SaveJob inserts or updates a job row.
func (m *RelationalDB) SaveJob(_ context.Context, job *entities.Job) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.Jobs[job.ID] = &cp
	return nil
}

// FindJob finds a job by ID, or nil.
func (m *RelationalDB) FindJob(_ context.Context, id string) (*entities.Job, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.Jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

// ListJobs lists jobs newest first.
func (m *RelationalDB) ListJobs(_ context.Context, limit int) ([]entities.Job, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]entities.Job, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		result = append(result, *j)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Curation log methods.

// LogAction appends an entry to the curation log.
func (m *RelationalDB) LogAction(_ context.Context, action, subjectID string, details map[string]any) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Log = append(m.Log, entities.CurationEntry{
		ID:        int64(len(m.Log) + 1),
		Action:    action,
		SubjectID: subjectID,
		Details:   details,
		CreatedAt: time.Now(),
	})
	return nil
}

// FindCurationLog finds log entries for a subject.
func (m *RelationalDB) FindCurationLog(_ context.Context, subjectID string) ([]entities.CurationEntry, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []entities.CurationEntry
	for _, e := range m.Log {
		if e.SubjectID == subjectID {
			result = append(result, e)
		}
	}
	return result, nil
}
