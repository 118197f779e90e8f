package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
	"github.com/weftlabs/weft-backend/internal/queue"
)

func stageChunk(t *testing.T, chunks *fakeChunkStore, namespace, jobName string, chunk Chunk) string {
	t.Helper()
	payload, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	key := queue.ChunkKey(namespace, jobName)
	if err := chunks.Put(context.Background(), key, payload); err != nil {
		t.Fatalf("stage chunk: %v", err)
	}
	return key
}

func TestRunnerProcessesChunk(t *testing.T) {
	integration := seedIntegration()
	group := &types.ParentGroupData{
		ID: uuid.New(), ExternalID: "C01", Name: "general",
		GroupType: types.GroupSlackChannel, Status: types.StatusRunning, IntegrationID: integration.ID,
	}
	job := &types.ChunkProcessingJob{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusNotStarted, ParentGroupID: "C01"}

	integrationRepo := newFakeIntegrationRepo(integration)
	groupRepo := newFakeParentGroupRepo(group)
	jobRepo := newFakeProcessingJobRepo(job)
	vectorRepo := newFakeVectorRepo()
	chunks := newFakeChunkStore()
	applier := &fakeApplier{}
	counter := &fakeCounter{nodes: 7, edges: 11}

	for i := 0; i < 3; i++ {
		_ = vectorRepo.Upsert(dbctx.Background(), &types.UpsertedVector{VectorID: uuid.NewString(), ParentGroupID: "C01"})
	}
	key := stageChunk(t, chunks, integration.Namespace, job.Name, Chunk{
		ID: "0", ParentGroupID: "C01", Content: makeItems(3),
	})

	r := NewRunner(integrationRepo, groupRepo, jobRepo, vectorRepo, chunks, applier, counter, testLogger())
	in := JobInputs{JobID: job.ID, ChunkKey: key, IntegrationID: integration.ID, Namespace: integration.Namespace}
	if err := r.Run(context.Background(), in); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(applier.applied) != 3 {
		t.Fatalf("applied %d items, want 3", len(applier.applied))
	}
	if got := jobRepo.rows[job.ID].Status; got != types.StatusSuccess {
		t.Fatalf("job status = %s, want success", got)
	}
	row := groupRepo.get(integration.ID, "C01")
	if row.NodeCount != 7 || row.EdgeCount != 11 || row.RecordCount != 3 {
		t.Fatalf("counts = %d/%d/%d, want 7/11/3", row.NodeCount, row.EdgeCount, row.RecordCount)
	}
	// The job stamps the integration directly; the aggregator rollup is
	// what settles the real state across all groups.
	if got := integrationRepo.rows[integration.ID].Status; got != types.StatusSuccess {
		t.Fatalf("integration status = %s, want success", got)
	}
}

func TestRunnerRejectsForeignNamespace(t *testing.T) {
	integration := seedIntegration()
	job := &types.ChunkProcessingJob{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusNotStarted, ParentGroupID: "C01"}
	jobRepo := newFakeProcessingJobRepo(job)

	r := NewRunner(newFakeIntegrationRepo(integration), newFakeParentGroupRepo(), jobRepo,
		newFakeVectorRepo(), newFakeChunkStore(), &fakeApplier{}, &fakeCounter{}, testLogger())
	in := JobInputs{JobID: job.ID, ChunkKey: "tenant-other-key", IntegrationID: integration.ID, Namespace: "tenant-other"}

	err := r.Run(context.Background(), in)
	if !errors.Is(err, pkgerrors.ErrTenantIsolation) {
		t.Fatalf("expected ErrTenantIsolation, got %v", err)
	}
	if got := jobRepo.rows[job.ID].Status; got != types.StatusNotStarted {
		t.Fatalf("job status mutated to %s on tenant violation", got)
	}
}

func TestRunnerApplyFailureMarksJobFailed(t *testing.T) {
	integration := seedIntegration()
	group := &types.ParentGroupData{
		ID: uuid.New(), ExternalID: "C01", Name: "general",
		GroupType: types.GroupSlackChannel, Status: types.StatusRunning, IntegrationID: integration.ID,
	}
	job := &types.ChunkProcessingJob{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusNotStarted, ParentGroupID: "C01"}
	jobRepo := newFakeProcessingJobRepo(job)
	chunks := newFakeChunkStore()
	key := stageChunk(t, chunks, integration.Namespace, job.Name, Chunk{
		ID: "0", ParentGroupID: "C01", Content: makeItems(2),
	})

	r := NewRunner(newFakeIntegrationRepo(integration), newFakeParentGroupRepo(group), jobRepo,
		newFakeVectorRepo(), chunks, &fakeApplier{err: errors.New("neo4j unavailable")}, &fakeCounter{}, testLogger())
	in := JobInputs{JobID: job.ID, ChunkKey: key, IntegrationID: integration.ID, Namespace: integration.Namespace}

	if err := r.Run(context.Background(), in); err == nil {
		t.Fatalf("expected apply failure to propagate")
	}
	if got := jobRepo.rows[job.ID].Status; got != types.StatusFailed {
		t.Fatalf("job status = %s, want failed", got)
	}
}

func TestRunnerRefreshesCountsBeforeMidChunkFailure(t *testing.T) {
	// Counts refresh after every item, so work applied before a mid-chunk
	// failure stays visible on the group row.
	integration := seedIntegration()
	group := &types.ParentGroupData{
		ID: uuid.New(), ExternalID: "C01", Name: "general",
		GroupType: types.GroupSlackChannel, Status: types.StatusRunning, IntegrationID: integration.ID,
	}
	job := &types.ChunkProcessingJob{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusNotStarted, ParentGroupID: "C01", IntegrationID: integration.ID}
	jobRepo := newFakeProcessingJobRepo(job)
	groupRepo := newFakeParentGroupRepo(group)
	chunks := newFakeChunkStore()
	key := stageChunk(t, chunks, integration.Namespace, job.Name, Chunk{
		ID: "0", ParentGroupID: "C01", Content: makeItems(3),
	})
	applier := &fakeApplier{err: errors.New("neo4j unavailable"), failAfter: 2}

	r := NewRunner(newFakeIntegrationRepo(integration), groupRepo, jobRepo,
		newFakeVectorRepo(), chunks, applier, &fakeCounter{nodes: 7, edges: 11}, testLogger())
	in := JobInputs{JobID: job.ID, ChunkKey: key, IntegrationID: integration.ID, Namespace: integration.Namespace}

	if err := r.Run(context.Background(), in); err == nil {
		t.Fatalf("expected apply failure to propagate")
	}
	if len(applier.applied) != 2 {
		t.Fatalf("applied %d items before failing, want 2", len(applier.applied))
	}
	if got := jobRepo.rows[job.ID].Status; got != types.StatusFailed {
		t.Fatalf("job status = %s, want failed", got)
	}
	row := groupRepo.get(integration.ID, "C01")
	if row.NodeCount != 7 || row.EdgeCount != 11 {
		t.Fatalf("counts = %d/%d, want refreshed 7/11 despite the failure", row.NodeCount, row.EdgeCount)
	}
}

func TestRunnerMissingChunkFailsJob(t *testing.T) {
	integration := seedIntegration()
	job := &types.ChunkProcessingJob{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusNotStarted, ParentGroupID: "C01"}
	jobRepo := newFakeProcessingJobRepo(job)

	r := NewRunner(newFakeIntegrationRepo(integration), newFakeParentGroupRepo(), jobRepo,
		newFakeVectorRepo(), newFakeChunkStore(), &fakeApplier{}, &fakeCounter{}, testLogger())
	in := JobInputs{JobID: job.ID, ChunkKey: "expired-key", IntegrationID: integration.ID, Namespace: integration.Namespace}

	err := r.Run(context.Background(), in)
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an expired chunk, got %v", err)
	}
	if got := jobRepo.rows[job.ID].Status; got != types.StatusFailed {
		t.Fatalf("job status = %s, want failed", got)
	}
}
