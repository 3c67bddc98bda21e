package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/mocks"
)

type mergeFixture struct {
	*fixture
	embedder *mocks.Embedder
	exec     *MergeExecutor
}

func newMergeFixture() *mergeFixture {
	f := newFixture()
	embedder := mocks.NewEmbedder()
	return &mergeFixture{
		fixture:  f,
		embedder: embedder,
		exec:     NewMergeExecutor(f.db, f.graph, f.vector, embedder, f.snaps, f.jobs),
	}
}

// seedKubernetesGroup sets up three variants plus a neighbor, with the
// preview group an operator would execute.
func seedKubernetesGroup(t *testing.T, f *mergeFixture) []entities.MergeGroup {
	t.Helper()
	seedType(t, f.db, "SKILL", entities.TypeStatusApproved)
	seedEntity(t, f.db, entities.Entity{ID: "e1", Name: "Kubernetes", TypeName: "SKILL", Confidence: 0.9})
	seedEntity(t, f.db, entities.Entity{ID: "e2", Name: "kubernetes", TypeName: "SKILL", Confidence: 0.7})
	seedEntity(t, f.db, entities.Entity{ID: "e3", Name: "k8s", TypeName: "SKILL", Confidence: 0.8})
	seedEntity(t, f.db, entities.Entity{ID: "docker", Name: "Docker", TypeName: "SKILL"})
	seedRelation(t, f.db, "r1", "e2", "docker", "RELATED_TO")
	seedRelation(t, f.db, "r2", "e3", "docker", "RELATED_TO")

	return []entities.MergeGroup{{
		CanonicalKey:  "skill:kubernetes",
		CanonicalName: "Kubernetes",
		Description:   "container orchestration",
		TypeName:      "SKILL",
		MasterID:      "e1",
		Members: []entities.GroupMember{
			{EntityID: "e1", Name: "Kubernetes", MatchScore: 100, AutoMatch: true, Selected: true},
			{EntityID: "e2", Name: "kubernetes", MatchScore: 100, AutoMatch: true, Selected: true},
			{EntityID: "e3", Name: "k8s", MatchScore: 20, Selected: true},
		},
	}}
}

func TestMergeExecutor_Execute(t *testing.T) {
	f := newMergeFixture()
	groups := seedKubernetesGroup(t, f)

	job, err := f.exec.Execute(context.Background(), "SKILL", groups, true, "admin")
	require.NoError(t, err)
	done := waitForJob(t, f.jobs, job.ID)
	require.Equal(t, entities.JobStatusFinished, done.Status)

	var result MergeResult
	require.NoError(t, json.Unmarshal(done.Result, &result))
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 0, result.Skipped)
	require.NotEmpty(t, result.SnapshotID)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, "e1", result.Groups[0].MasterID)
	assert.Equal(t, 3, result.Groups[0].Members)

	// Every selected member carries the canonical name and is validated.
	for _, id := range []string{"e1", "e2", "e3"} {
		e := f.db.Entities[id]
		require.NotNil(t, e)
		assert.Equal(t, "Kubernetes", e.CanonicalName)
		assert.Equal(t, entities.EntityStatusValidated, e.Status)
		assert.Equal(t, "admin", e.ValidatedBy)
	}
	// The master gets the group description.
	assert.Equal(t, "container orchestration", f.db.Entities["e1"].Description)
	assert.Empty(t, f.db.Entities["e2"].Description)

	// r1 moved to the master; r2 would then parallel it, so it was dropped.
	require.NotNil(t, f.db.Relations["r1"])
	assert.Equal(t, "e1", f.db.Relations["r1"].SourceID)
	assert.Nil(t, f.db.Relations["r2"])
	assert.Equal(t, 1, result.Groups[0].RelationsReassigned)
	assert.Equal(t, 1, result.Groups[0].RelationsDeduped)

	// The canonical concept is mirrored into graph and vector stores with the
	// best member confidence.
	concept, ok := f.graph.Concepts["skill:kubernetes"]
	require.True(t, ok)
	assert.Equal(t, "Kubernetes", concept.CanonicalName)
	assert.Equal(t, 3, concept.MemberCount)
	assert.InDelta(t, 0.9, concept.Confidence, 1e-9)
	assert.Contains(t, f.vector.Concepts, "skill:kubernetes")
	assert.NotEmpty(t, f.vector.Embeddings["skill:kubernetes"])

	// The snapshot captured the pre-merge members for rollback.
	payload, err := f.db.FindSnapshotPayload(context.Background(), result.SnapshotID)
	require.NoError(t, err)
	assert.Len(t, payload.Entities, 3)
	for _, e := range payload.Entities {
		assert.Empty(t, e.CanonicalName)
	}
}

func TestMergeExecutor_Execute_MirrorsCanonicalRelations(t *testing.T) {
	f := newMergeFixture()
	groups := seedKubernetesGroup(t, f)
	// Docker is already canonical, so the relation surviving on the master
	// becomes an edge between the two concept nodes.
	seedEntity(t, f.db, entities.Entity{
		ID:            "docker",
		Name:          "Docker",
		TypeName:      "SKILL",
		Status:        entities.EntityStatusValidated,
		CanonicalName: "Docker",
	})
	require.NoError(t, f.graph.UpsertConcept(context.Background(), entities.CanonicalConcept{
		Key:           "skill:docker",
		CanonicalName: "Docker",
		TypeName:      "SKILL",
	}))

	job, err := f.exec.Execute(context.Background(), "SKILL", groups, false, "admin")
	require.NoError(t, err)
	done := waitForJob(t, f.jobs, job.ID)
	require.Equal(t, entities.JobStatusFinished, done.Status)

	assert.Contains(t, f.graph.Edges, "skill:kubernetes|RELATED_TO|skill:docker")
}

func TestMergeExecutor_Execute_SkipsDeselectedGroups(t *testing.T) {
	f := newMergeFixture()
	seedType(t, f.db, "SKILL", entities.TypeStatusApproved)
	seedEntity(t, f.db, entities.Entity{ID: "e1", Name: "Go", TypeName: "SKILL"})

	groups := []entities.MergeGroup{{
		CanonicalKey:  "skill:go",
		CanonicalName: "Go",
		TypeName:      "SKILL",
		Members: []entities.GroupMember{
			{EntityID: "e1", Name: "Go", MatchScore: 100},
		},
	}}

	job, err := f.exec.Execute(context.Background(), "SKILL", groups, true, "admin")
	require.NoError(t, err)
	done := waitForJob(t, f.jobs, job.ID)
	require.Equal(t, entities.JobStatusFinished, done.Status)

	var result MergeResult
	require.NoError(t, json.Unmarshal(done.Result, &result))
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.SnapshotID, "no snapshot for a run with nothing to do")
	assert.Equal(t, entities.EntityStatusPending, f.db.Entities["e1"].Status)
}

func TestMergeExecutor_Execute_CapabilityFailureNamesGroup(t *testing.T) {
	f := newMergeFixture()
	groups := seedKubernetesGroup(t, f)
	f.graph.Err = errors.New("neo4j unavailable")

	job, err := f.exec.Execute(context.Background(), "SKILL", groups, false, "admin")
	require.NoError(t, err)
	done := waitForJob(t, f.jobs, job.ID)

	assert.Equal(t, entities.JobStatusFailed, done.Status)
	assert.Contains(t, done.Error, `group "Kubernetes"`)
	assert.Contains(t, done.Error, "0 of 1 applied")

	// The relational mutation had already been applied when the mirror
	// failed; it stays applied and the error tells the operator how far
	// the run got.
	assert.Equal(t, "Kubernetes", f.db.Entities["e1"].CanonicalName)
	assert.Empty(t, f.vector.Concepts)
}

func TestMergeExecutor_Execute_Validation(t *testing.T) {
	f := newMergeFixture()
	seedType(t, f.db, "SKILL", entities.TypeStatusApproved)

	_, err := f.exec.Execute(context.Background(), "SKILL", nil, false, "admin")
	require.Error(t, err)
	var validationErr *entities.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	someGroups := []entities.MergeGroup{{CanonicalKey: "missing:x", CanonicalName: "X", TypeName: "MISSING"}}
	_, err = f.exec.Execute(context.Background(), "MISSING", someGroups, false, "admin")
	require.Error(t, err)
	var notFoundErr *entities.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
}
