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

func TestJobService_Submit_RunsToFinished(t *testing.T) {
	db := mocks.NewRelationalDB()
	svc := NewJobService(db)

	job, err := svc.Submit(context.Background(), entities.JobKindDeduplicate, "SKILL",
		func(ctx context.Context, progress func(processed, total int)) (any, error) {
			progress(2, 2)
			return map[string]int{"merged": 2}, nil
		})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, entities.JobStatusQueued, job.Status)

	svc.Drain()

	done, err := svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFinished, done.Status)
	assert.Equal(t, 2, done.Processed)
	assert.Equal(t, 2, done.Total)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.EndedAt)

	var result map[string]int
	require.NoError(t, json.Unmarshal(done.Result, &result))
	assert.Equal(t, 2, result["merged"])
}

func TestJobService_Submit_FailureRecordsError(t *testing.T) {
	db := mocks.NewRelationalDB()
	svc := NewJobService(db)

	job, err := svc.Submit(context.Background(), entities.JobKindBootstrap, "SKILL",
		func(ctx context.Context, progress func(processed, total int)) (any, error) {
			return nil, errors.New("boom")
		})
	require.NoError(t, err)

	svc.Drain()

	done, err := svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, done.Status)
	assert.Equal(t, "boom", done.Error)
	assert.True(t, done.Status.Terminal())
}

func TestJobService_Submit_RejectsDuplicateKindAndType(t *testing.T) {
	db := mocks.NewRelationalDB()
	svc := NewJobService(db)

	release := make(chan struct{})
	blocking := func(ctx context.Context, progress func(processed, total int)) (any, error) {
		<-release
		return nil, nil
	}

	_, err := svc.Submit(context.Background(), entities.JobKindNormalize, "SKILL", blocking)
	require.NoError(t, err)

	// Same kind, same type (normalization of the name included) is rejected.
	_, err = svc.Submit(context.Background(), entities.JobKindNormalize, "skill", blocking)
	require.Error(t, err)
	var consistencyErr *entities.ConsistencyError
	assert.ErrorAs(t, err, &consistencyErr)

	// A different type and a different kind are both fine.
	_, err = svc.Submit(context.Background(), entities.JobKindNormalize, "TECHNOLOGY", blocking)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), entities.JobKindDeduplicate, "SKILL",
		func(ctx context.Context, progress func(processed, total int)) (any, error) {
			return nil, nil
		})
	require.NoError(t, err)

	close(release)
	svc.Drain()

	// Once the first run finishes the slot is free again.
	_, err = svc.Submit(context.Background(), entities.JobKindNormalize, "SKILL",
		func(ctx context.Context, progress func(processed, total int)) (any, error) {
			return nil, nil
		})
	require.NoError(t, err)
	svc.Drain()
}

func TestJobService_Get_NotFound(t *testing.T) {
	svc := NewJobService(mocks.NewRelationalDB())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	var notFoundErr *entities.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
}

func TestJobService_SubmitSurvivesCallerCancellation(t *testing.T) {
	db := mocks.NewRelationalDB()
	svc := NewJobService(db)

	ctx, cancel := context.WithCancel(context.Background())
	job, err := svc.Submit(ctx, entities.JobKindOntology, "SKILL",
		func(ctx context.Context, progress func(processed, total int)) (any, error) {
			// The run context must not carry the caller's cancellation.
			assert.NoError(t, ctx.Err())
			return "ok", nil
		})
	require.NoError(t, err)
	cancel()

	svc.Drain()

	done, err := svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFinished, done.Status)
}
