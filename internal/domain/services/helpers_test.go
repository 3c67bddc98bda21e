package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/mocks"
)

// fixture bundles the mocks and services most tests need.
type fixture struct {
	db     *mocks.RelationalDB
	graph  *mocks.GraphDB
	vector *mocks.VectorDB
	jobs   *JobService
	snaps  *SnapshotService
}

func newFixture() *fixture {
	db := mocks.NewRelationalDB()
	graph := mocks.NewGraphDB()
	vector := mocks.NewVectorDB()
	jobs := NewJobService(db)
	return &fixture{
		db:     db,
		graph:  graph,
		vector: vector,
		jobs:   jobs,
		snaps:  NewSnapshotService(db, graph, vector, jobs, 0),
	}
}

func seedType(t *testing.T, db *mocks.RelationalDB, name string, status entities.TypeStatus) {
	t.Helper()
	require.NoError(t, db.SaveEntityType(context.Background(), &entities.EntityType{
		Name:      name,
		Status:    status,
		FirstSeen: time.Now(),
	}))
}

func seedEntity(t *testing.T, db *mocks.RelationalDB, e entities.Entity) entities.Entity {
	t.Helper()
	if e.NormalizedName == "" {
		e.NormalizedName = entities.NormalizeName(e.Name)
	}
	if e.Status == "" {
		e.Status = entities.EntityStatusPending
	}
	if e.Occurrences == 0 {
		e.Occurrences = 1
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	require.NoError(t, db.SaveEntity(context.Background(), &e))
	return e
}

func seedRelation(t *testing.T, db *mocks.RelationalDB, id, sourceID, targetID, relType string) {
	t.Helper()
	require.NoError(t, db.SaveRelation(context.Background(), &entities.Relation{
		ID:        id,
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      relType,
		CreatedAt: time.Now(),
	}))
}

// waitForJob drains the job pool and returns the terminal job record.
func waitForJob(t *testing.T, jobs *JobService, id string) *entities.Job {
	t.Helper()
	jobs.Drain()
	job, err := jobs.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, job.Status.Terminal(), "job %s still %s", id, job.Status)
	return job
}
