package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/canon-core/internal/domain/entities"
)

func TestSnapshotService_Capture(t *testing.T) {
	f := newFixture()
	seedType(t, f.db, "SKILL", entities.TypeStatusApproved)
	seedEntity(t, f.db, entities.Entity{ID: "e1", Name: "Go", TypeName: "SKILL"})
	seedEntity(t, f.db, entities.Entity{ID: "e2", Name: "golang", TypeName: "SKILL"})
	// A relation between two captured entities shows up under both; the
	// payload must carry it once.
	seedRelation(t, f.db, "r1", "e1", "e2", "SAME_AS")

	snapshot, err := f.snaps.Capture(context.Background(), "SKILL", "normalize", []string{"e1", "e2"}, false)
	require.NoError(t, err)

	assert.Equal(t, "SKILL", snapshot.TypeName)
	assert.Equal(t, "normalize", snapshot.Operation)
	assert.Equal(t, 2, snapshot.EntityCount)
	assert.False(t, snapshot.Restored)
	assert.Equal(t, entities.DefaultSnapshotTTL, snapshot.ExpiresAt.Sub(snapshot.CreatedAt))
	assert.True(t, snapshot.Restorable(time.Now()))

	payload, err := f.db.FindSnapshotPayload(context.Background(), snapshot.ID)
	require.NoError(t, err)
	assert.Empty(t, payload.Types)
	assert.Len(t, payload.Entities, 2)
	assert.Len(t, payload.Relations, 1)
}

func TestSnapshotService_Capture_UnknownEntity(t *testing.T) {
	f := newFixture()
	seedType(t, f.db, "SKILL", entities.TypeStatusApproved)

	_, err := f.snaps.Capture(context.Background(), "SKILL", "normalize", []string{"missing"}, false)
	require.Error(t, err)
	var notFoundErr *entities.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
}

func TestSnapshotService_Restore_RevertsMerge(t *testing.T) {
	f := newMergeFixture()
	groups := seedKubernetesGroup(t, f)

	job, err := f.exec.Execute(context.Background(), "SKILL", groups, true, "admin")
	require.NoError(t, err)
	done := waitForJob(t, f.jobs, job.ID)
	require.Equal(t, entities.JobStatusFinished, done.Status)

	snaps, err := f.snaps.List(context.Background(), "SKILL")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	snapshotID := snaps[0].ID

	restoreJob, err := f.snaps.Restore(context.Background(), snapshotID)
	require.NoError(t, err)
	restored := waitForJob(t, f.jobs, restoreJob.ID)
	require.Equal(t, entities.JobStatusFinished, restored.Status)

	// Members are back to pending with no canonical name.
	for _, id := range []string{"e1", "e2", "e3"} {
		e := f.db.Entities[id]
		require.NotNil(t, e)
		assert.Equal(t, entities.EntityStatusPending, e.Status)
		assert.Empty(t, e.CanonicalName)
	}

	// Relations are back on their original endpoints.
	require.NotNil(t, f.db.Relations["r1"])
	assert.Equal(t, "e2", f.db.Relations["r1"].SourceID)
	require.NotNil(t, f.db.Relations["r2"])
	assert.Equal(t, "e3", f.db.Relations["r2"].SourceID)

	// The concept minted by the merge left the graph and vector mirrors.
	assert.NotContains(t, f.graph.Concepts, "skill:kubernetes")
	assert.NotContains(t, f.vector.Concepts, "skill:kubernetes")

	// The snapshot is consumed.
	record, err := f.db.FindSnapshot(context.Background(), snapshotID)
	require.NoError(t, err)
	assert.True(t, record.Restored)
}

func TestSnapshotService_Restore_RevertsTypeMerge(t *testing.T) {
	f := newFixture()
	registry := NewRegistryService(f.db, f.graph, f.jobs, f.snaps)
	seedType(t, f.db, "TECH", entities.TypeStatusApproved)
	seedType(t, f.db, "TECHNOLOGY", entities.TypeStatusApproved)
	seedEntity(t, f.db, entities.Entity{
		ID:            "e1",
		Name:          "Go",
		TypeName:      "TECH",
		Status:        entities.EntityStatusValidated,
		CanonicalName: "Go",
		Confidence:    0.9,
	})
	require.NoError(t, f.graph.UpsertConcept(context.Background(), entities.CanonicalConcept{
		Key:           "tech:go",
		CanonicalName: "Go",
		TypeName:      "TECH",
		MemberCount:   1,
		Confidence:    0.9,
	}))

	job, err := registry.MergeInto(context.Background(), "TECH", "TECHNOLOGY")
	require.NoError(t, err)
	done := waitForJob(t, f.jobs, job.ID)
	require.Equal(t, entities.JobStatusFinished, done.Status)

	// The merge rekeyed the mirror node under the target type.
	require.NotContains(t, f.graph.Concepts, "tech:go")
	require.Contains(t, f.graph.Concepts, "technology:go")

	snaps, err := f.snaps.List(context.Background(), "TECH")
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	restoreJob, err := f.snaps.Restore(context.Background(), snaps[0].ID)
	require.NoError(t, err)
	restored := waitForJob(t, f.jobs, restoreJob.ID)
	require.Equal(t, entities.JobStatusFinished, restored.Status)

	assert.Equal(t, "TECH", f.db.Entities["e1"].TypeName)
	assert.Equal(t, "Go", f.db.Entities["e1"].CanonicalName)

	// The graph mirror follows: the rekeyed node is gone and the original
	// concept is back under the source type.
	assert.NotContains(t, f.graph.Concepts, "technology:go")
	concept, ok := f.graph.Concepts["tech:go"]
	require.True(t, ok)
	assert.Equal(t, "TECH", concept.TypeName)
	assert.Equal(t, 1, concept.MemberCount)
	assert.InDelta(t, 0.9, concept.Confidence, 1e-9)

	count, err := registry.ConceptCount(context.Background(), "TECH")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSnapshotService_Restore_SingleUse(t *testing.T) {
	f := newMergeFixture()
	groups := seedKubernetesGroup(t, f)

	job, err := f.exec.Execute(context.Background(), "SKILL", groups, true, "admin")
	require.NoError(t, err)
	waitForJob(t, f.jobs, job.ID)

	snaps, err := f.snaps.List(context.Background(), "SKILL")
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	restoreJob, err := f.snaps.Restore(context.Background(), snaps[0].ID)
	require.NoError(t, err)
	waitForJob(t, f.jobs, restoreJob.ID)

	_, err = f.snaps.Restore(context.Background(), snaps[0].ID)
	require.Error(t, err)
	var consistencyErr *entities.ConsistencyError
	assert.ErrorAs(t, err, &consistencyErr)
}

func TestSnapshotService_Restore_Expired(t *testing.T) {
	f := newFixture()
	now := time.Now()
	require.NoError(t, f.db.SaveSnapshot(context.Background(), &entities.Snapshot{
		ID:        "old",
		TypeName:  "SKILL",
		Operation: "normalize",
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
	}, &entities.SnapshotPayload{}))

	_, err := f.snaps.Restore(context.Background(), "old")
	require.Error(t, err)
	var consistencyErr *entities.ConsistencyError
	assert.ErrorAs(t, err, &consistencyErr)
}

func TestSnapshotService_Restore_Unknown(t *testing.T) {
	f := newFixture()

	_, err := f.snaps.Restore(context.Background(), "missing")
	require.Error(t, err)
	var notFoundErr *entities.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
}
