package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

func TestRepository_Integration_EntityTypes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveEntityType(ctx, &entities.EntityType{
		Name:         "SKILL",
		Status:       entities.TypeStatusPending,
		Description:  "technical skills",
		DiscoveredBy: "resume-parser",
	}))

	et, err := repo.FindEntityType(ctx, "SKILL")
	require.NoError(t, err)
	require.NotNil(t, et)
	assert.Equal(t, entities.TypeStatusPending, et.Status)
	assert.Equal(t, "resume-parser", et.DiscoveredBy)
	assert.False(t, et.FirstSeen.IsZero())

	// Unknown types come back as nil, not an error.
	missing, err := repo.FindEntityType(ctx, "MISSING")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Saving again updates the row in place.
	et.Status = entities.TypeStatusApproved
	require.NoError(t, repo.SaveEntityType(ctx, et))

	reread, err := repo.FindEntityType(ctx, "SKILL")
	require.NoError(t, err)
	assert.Equal(t, entities.TypeStatusApproved, reread.Status)

	require.NoError(t, repo.SaveEntityType(ctx, &entities.EntityType{
		Name:   "NOISE",
		Status: entities.TypeStatusRejected,
	}))

	all, err := repo.ListEntityTypes(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	approved, err := repo.ListEntityTypes(ctx, entities.TypeStatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "SKILL", approved[0].Name)

	require.NoError(t, repo.DeleteEntityType(ctx, "NOISE"))
	all, err = repo.ListEntityTypes(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepository_Integration_EntityTypeCounts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveEntityType(ctx, &entities.EntityType{Name: "SKILL", Status: entities.TypeStatusApproved}))
	require.NoError(t, repo.SaveEntity(ctx, &entities.Entity{ID: "e1", Name: "Go", TypeName: "SKILL", Status: entities.EntityStatusPending}))
	require.NoError(t, repo.SaveEntity(ctx, &entities.Entity{ID: "e2", Name: "Rust", TypeName: "SKILL", Status: entities.EntityStatusValidated}))

	et, err := repo.FindEntityType(ctx, "SKILL")
	require.NoError(t, err)
	assert.Equal(t, 2, et.EntityCount)
	assert.Equal(t, 1, et.PendingCount)
	assert.Equal(t, 1, et.ValidatedCount)
}

func TestRepository_Integration_Entities(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := newRepo(t)
	ctx := context.Background()

	validatedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	saved := &entities.Entity{
		ID:            "e1",
		Name:          "SAP HANA",
		TypeName:      "TECHNOLOGY",
		Status:        entities.EntityStatusValidated,
		CanonicalName: "SAP HANA",
		Description:   "in-memory database",
		Confidence:    0.92,
		Occurrences:   7,
		SourceDoc:     "cv-001.pdf",
		ValidatedAt:   &validatedAt,
		ValidatedBy:   "admin",
	}
	require.NoError(t, repo.SaveEntity(ctx, saved))

	// The repository fills the normalized name and creation time.
	assert.Equal(t, "sap hana", saved.NormalizedName)
	assert.False(t, saved.CreatedAt.IsZero())

	found, err := repo.FindEntityByID(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "SAP HANA", found.Name)
	assert.Equal(t, "sap hana", found.NormalizedName)
	assert.Equal(t, "SAP HANA", found.CanonicalName)
	assert.Equal(t, "in-memory database", found.Description)
	assert.InDelta(t, 0.92, found.Confidence, 1e-9)
	assert.Equal(t, 7, found.Occurrences)
	assert.Equal(t, "cv-001.pdf", found.SourceDoc)
	require.NotNil(t, found.ValidatedAt)
	assert.Equal(t, "admin", found.ValidatedBy)

	byName, err := repo.FindEntityByName(ctx, "TECHNOLOGY", "SAP HANA")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, "e1", byName.ID)

	missing, err := repo.FindEntityByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.DeleteEntity(ctx, "e1"))
	gone, err := repo.FindEntityByID(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRepository_Integration_EntitySaveDefaults(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := newRepo(t)
	ctx := context.Background()

	// A bare candidate row gets pending status, a normalized name, and a
	// creation time on save.
	require.NoError(t, repo.SaveEntity(ctx, &entities.Entity{
		ID:       "e1",
		Name:     "Kubernetes",
		TypeName: "SKILL",
	}))

	found, err := repo.FindEntityByID(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, entities.EntityStatusPending, found.Status)
	assert.Equal(t, "kubernetes", found.NormalizedName)
	assert.False(t, found.CreatedAt.IsZero())
}

func TestRepository_Integration_EntityFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := newRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []entities.Entity{
		{ID: "e1", Name: "Python", TypeName: "SKILL", Status: entities.EntityStatusPending, Occurrences: 5, Confidence: 0.9, CreatedAt: base},
		{ID: "e2", Name: "PostgreSQL", TypeName: "SKILL", Status: entities.EntityStatusPending, Occurrences: 2, Confidence: 0.6, CreatedAt: base.Add(time.Hour)},
		{ID: "e3", Name: "Plumbing", TypeName: "TRADE", Status: entities.EntityStatusValidated, Occurrences: 9, Confidence: 0.95, CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range seed {
		require.NoError(t, repo.SaveEntity(ctx, &seed[i]))
	}

	byType, err := repo.ListEntities(ctx, ports.EntityFilter{TypeName: "SKILL"})
	require.NoError(t, err)
	require.Len(t, byType, 2)
	assert.Equal(t, "e1", byType[0].ID, "ordered by created_at")

	byStatus, err := repo.ListEntities(ctx, ports.EntityFilter{Status: entities.EntityStatusValidated})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "e3", byStatus[0].ID)

	byPrefix, err := repo.ListEntities(ctx, ports.EntityFilter{NamePrefix: "P"})
	require.NoError(t, err)
	assert.Len(t, byPrefix, 3)

	byThresholds, err := repo.ListEntities(ctx, ports.EntityFilter{MinOccurrences: 5, MinConfidence: 0.8})
	require.NoError(t, err)
	assert.Len(t, byThresholds, 2)

	paged, err := repo.ListEntities(ctx, ports.EntityFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "e2", paged[0].ID)

	count, err := repo.CountEntities(ctx, ports.EntityFilter{TypeName: "SKILL"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRepository_Integration_Relations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveRelation(ctx, &entities.Relation{
		ID: "r1", SourceID: "e1", TargetID: "e2", Type: "USES",
		SourceDoc: "doc-1", DocumentRole: entities.DocumentRoleDefines,
	}))
	require.NoError(t, repo.SaveRelation(ctx, &entities.Relation{
		ID: "r2", SourceID: "e2", TargetID: "e3", Type: "USES",
	}))

	rels, err := repo.FindRelationsByEntity(ctx, "e2")
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, "r1", rels[0].ID)
	assert.Equal(t, entities.DocumentRoleDefines, rels[0].DocumentRole)

	degrees, err := repo.CountRelationsByEntity(ctx, []string{"e1", "e2", "lonely"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"e1": 1, "e2": 2, "lonely": 0}, degrees)
}

func TestRepository_Integration_CurationLog(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.LogAction(ctx, "type.approved", "SKILL", nil))
	require.NoError(t, repo.LogAction(ctx, "type.merged", "SKILL", map[string]any{"target": "TECH", "entities": 3}))
	require.NoError(t, repo.LogAction(ctx, "type.approved", "TRADE", nil))

	log, err := repo.FindCurationLog(ctx, "SKILL")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "type.approved", log[0].Action)
	assert.Equal(t, "type.merged", log[1].Action)
	assert.Equal(t, "TECH", log[1].Details["target"])
	assert.Equal(t, float64(3), log[1].Details["entities"])
}
