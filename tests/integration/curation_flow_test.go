package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/canon-core/internal/application/handlers"
	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/mocks"
	"github.com/ersonp/canon-core/internal/domain/services"
)

// TestCurationFlow_Integration drives the full intake -> dedupe -> bootstrap
// -> normalize -> rollback loop against a real SQLite database, with mocked
// graph, vector and language-model capabilities.
func TestCurationFlow_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := newRepo(t)
	ctx := context.Background()

	graph := mocks.NewGraphDB()
	vector := mocks.NewVectorDB()
	jobs := services.NewJobService(repo)
	snaps := services.NewSnapshotService(repo, graph, vector, jobs, 0)
	registry := services.NewRegistryService(repo, graph, jobs, snaps)
	intake := handlers.NewIntakeHandler(repo, registry)

	// Intake: candidates arrive with duplicate spellings.
	result, err := intake.Handle(ctx, &handlers.IntakeBatch{
		Agent:     "resume-parser",
		SourceDoc: "cv-007.pdf",
		Entities: []entities.CandidateEntity{
			{Name: "Kubernetes", TypeName: "SKILL", Confidence: 0.9, Occurrences: 5},
			{Name: "kubernetes", TypeName: "SKILL", Confidence: 0.7},
			{Name: "Docker", TypeName: "SKILL", Confidence: 0.85, Occurrences: 4},
		},
		Relations: []entities.CandidateRelation{
			{SourceName: "kubernetes", TargetName: "Docker", Type: "RELATED_TO"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.EntitiesCreated)
	assert.Equal(t, 1, result.RelationsCreated)
	assert.Equal(t, 1, result.TypesRegistered)

	require.NoError(t, registry.Approve(ctx, "SKILL"))

	// Dedupe collapses the exact-duplicate spellings.
	dedupeReport, err := services.NewDedupeService(repo).Deduplicate(ctx, "SKILL", false)
	require.NoError(t, err)
	assert.Equal(t, 1, dedupeReport.Groups)
	assert.Equal(t, 1, dedupeReport.EntitiesMerged)

	survivor, err := repo.FindEntityByName(ctx, "SKILL", "kubernetes")
	require.NoError(t, err)
	require.NotNil(t, survivor, "the connected variant survives")

	// Bootstrap promotes the frequent, confident candidate without a model call.
	bootstrap := services.NewBootstrapService(repo, jobs)
	promoteJob, err := bootstrap.Promote(ctx, services.BootstrapConfig{
		MinOccurrences: 4,
		MinConfidence:  0.8,
		TypeName:       "SKILL",
		PromotedBy:     "bootstrap",
	})
	require.NoError(t, err)
	jobs.Drain()

	done, err := jobs.Get(ctx, promoteJob.ID)
	require.NoError(t, err)
	require.Equal(t, entities.JobStatusFinished, done.Status)

	docker, err := repo.FindEntityByName(ctx, "SKILL", "Docker")
	require.NoError(t, err)
	assert.Equal(t, entities.EntityStatusValidated, docker.Status)

	// Normalize the remaining pending entity through the mocked model.
	canon := services.NewCanonicalizeService(repo, mocks.NewCanonicalizer(), jobs, 0)
	merge := services.NewMergeExecutor(repo, graph, vector, mocks.NewEmbedder(), snaps, jobs)
	normalize := handlers.NewNormalizeHandler(canon, merge)

	genJob, err := normalize.HandleGenerate(ctx, "SKILL", false)
	require.NoError(t, err)
	jobs.Drain()

	plan, err := normalize.HandlePreview(ctx, genJob.ID)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Groups)

	execJob, err := normalize.HandleExecute(ctx, plan, true, "admin")
	require.NoError(t, err)
	jobs.Drain()

	execDone, err := jobs.Get(ctx, execJob.ID)
	require.NoError(t, err)
	require.Equal(t, entities.JobStatusFinished, execDone.Status)

	canonical, err := repo.FindEntityByName(ctx, "SKILL", "kubernetes")
	require.NoError(t, err)
	assert.True(t, canonical.IsCanonical())
	assert.NotEmpty(t, graph.Concepts)
	assert.NotEmpty(t, vector.Concepts)

	// Roll the normalization back through its snapshot.
	snapshots, err := snaps.List(ctx, "SKILL")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)

	restoreJob, err := snaps.Restore(ctx, snapshots[0].ID)
	require.NoError(t, err)
	jobs.Drain()

	restoreDone, err := jobs.Get(ctx, restoreJob.ID)
	require.NoError(t, err)
	require.Equal(t, entities.JobStatusFinished, restoreDone.Status)

	reverted, err := repo.FindEntityByName(ctx, "SKILL", "kubernetes")
	require.NoError(t, err)
	assert.Equal(t, entities.EntityStatusPending, reverted.Status)
	assert.Empty(t, reverted.CanonicalName)
	assert.Empty(t, graph.Concepts, "minted concept removed on rollback")
}
