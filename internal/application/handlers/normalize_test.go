package handlers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/mocks"
	"github.com/ersonp/canon-core/internal/domain/services"
)

func newNormalizeHandler(t *testing.T, db *mocks.RelationalDB) (*NormalizeHandler, *services.JobService) {
	t.Helper()
	jobs := services.NewJobService(db)
	graph := mocks.NewGraphDB()
	vector := mocks.NewVectorDB()
	snaps := services.NewSnapshotService(db, graph, vector, jobs, 0)
	canon := services.NewCanonicalizeService(db, mocks.NewCanonicalizer(), jobs, 0)
	merge := services.NewMergeExecutor(db, graph, vector, mocks.NewEmbedder(), snaps, jobs)
	return NewNormalizeHandler(canon, merge), jobs
}

func TestNormalizeHandler_GeneratePreviewExecute(t *testing.T) {
	db := mocks.NewRelationalDB()
	require.NoError(t, db.SaveEntityType(context.Background(), &entities.EntityType{
		Name:      "SKILL",
		Status:    entities.TypeStatusApproved,
		FirstSeen: time.Now(),
	}))
	require.NoError(t, db.SaveEntity(context.Background(), &entities.Entity{
		ID: "e1", Name: "Kubernetes", TypeName: "SKILL", Status: entities.EntityStatusPending, Occurrences: 1,
	}))
	require.NoError(t, db.SaveEntity(context.Background(), &entities.Entity{
		ID: "e2", Name: "kubernetes", TypeName: "SKILL", Status: entities.EntityStatusPending, Occurrences: 1,
	}))

	h, jobs := newNormalizeHandler(t, db)

	genJob, err := h.HandleGenerate(context.Background(), "SKILL", false)
	require.NoError(t, err)
	jobs.Drain()

	plan, err := h.HandlePreview(context.Background(), genJob.ID)
	require.NoError(t, err)
	assert.Equal(t, "SKILL", plan.TypeName)
	assert.Equal(t, genJob.ID, plan.JobID)
	require.Len(t, plan.Groups, 1)
	require.Len(t, plan.Groups[0].Members, 2)

	execJob, err := h.HandleExecute(context.Background(), plan, false, "admin")
	require.NoError(t, err)
	jobs.Drain()

	done, err := jobs.Get(context.Background(), execJob.ID)
	require.NoError(t, err)
	require.Equal(t, entities.JobStatusFinished, done.Status)
	assert.Equal(t, "Kubernetes", db.Entities["e2"].CanonicalName)
}

func TestNormalizeHandler_PlanAdjustments(t *testing.T) {
	h, _ := newNormalizeHandler(t, mocks.NewRelationalDB())

	plan := &NormalizePlan{
		TypeName: "SKILL",
		Groups: []entities.MergeGroup{{
			CanonicalKey:  "skill:go",
			CanonicalName: "Go",
			TypeName:      "SKILL",
			Members: []entities.GroupMember{
				{EntityID: "e1", Name: "Go", MatchScore: 100, AutoMatch: true, Selected: true},
				{EntityID: "e2", Name: "golang", MatchScore: 29},
			},
		}},
	}

	require.NoError(t, h.HandleToggle(plan, "skill:go", "e2"))
	assert.True(t, plan.Groups[0].Members[1].Selected)

	require.NoError(t, h.HandleRename(plan, "skill:go", "Golang"))
	assert.Equal(t, "skill:golang", plan.Groups[0].CanonicalKey)

	require.NoError(t, h.HandleExtract(plan, "skill:golang", "e2"))
	require.Len(t, plan.Groups, 2)
	assert.Equal(t, "e2", plan.Groups[1].MasterID)

	require.Error(t, h.HandleRename(plan, "skill:missing", "X"))
}

func TestSavePlan_LoadPlanRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	plan := &NormalizePlan{
		TypeName:    "SKILL",
		JobID:       "job-1",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Groups: []entities.MergeGroup{{
			CanonicalKey:  "skill:go",
			CanonicalName: "Go",
			TypeName:      "SKILL",
			MasterID:      "e1",
			Members: []entities.GroupMember{
				{EntityID: "e1", Name: "Go", MatchScore: 100, AutoMatch: true, Selected: true},
			},
		}},
	}

	require.NoError(t, SavePlan(path, plan))

	loaded, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, plan, loaded)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
