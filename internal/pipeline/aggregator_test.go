package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/weftlabs/weft-backend/internal/cluster"
	"github.com/weftlabs/weft-backend/internal/cluster/clustertest"
	types "github.com/weftlabs/weft-backend/internal/domain"
)

func aggregatorFixture(integration *types.Integration, groups []*types.ParentGroupData, jobs []*types.ChunkProcessingJob) (*Aggregator, *fakeIntegrationRepo, *fakeParentGroupRepo, *fakeProcessingJobRepo, *clustertest.FakeRuntime) {
	integrationRepo := newFakeIntegrationRepo(integration)
	groupRepo := newFakeParentGroupRepo(groups...)
	jobRepo := newFakeProcessingJobRepo(jobs...)
	runtime := clustertest.NewFakeRuntime()
	a := NewAggregator(integrationRepo, groupRepo, jobRepo, runtime, testLogger())
	return a, integrationRepo, groupRepo, jobRepo, runtime
}

func TestSnapshotAllJobsCompleteRollsUpSuccess(t *testing.T) {
	integration := seedIntegration()
	integration.Status = types.StatusRunning
	group := &types.ParentGroupData{
		ID: uuid.New(), ExternalID: "C01", Name: "general",
		GroupType: types.GroupSlackChannel, Status: types.StatusRunning, IntegrationID: integration.ID,
	}
	jobs := []*types.ChunkProcessingJob{
		{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusRunning, ParentGroupID: "C01", IntegrationID: integration.ID},
		{ID: uuid.New(), Name: "slack-processor-c01-1", Status: types.StatusRunning, ParentGroupID: "C01", IntegrationID: integration.ID},
	}
	a, _, _, jobRepo, runtime := aggregatorFixture(integration, []*types.ParentGroupData{group}, jobs)
	runtime.SetState("slack-processor-c01-0", cluster.JobState{Found: true, Complete: true})
	runtime.SetState("slack-processor-c01-1", cluster.JobState{Found: true, Complete: true})

	gotIntegration, gotGroups, err := a.Snapshot(context.Background(), integration.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if gotIntegration.Status != types.StatusSuccess {
		t.Fatalf("integration status = %s, want success", gotIntegration.Status)
	}
	g := gotGroups["C01"]
	if g == nil || g.Status != types.StatusSuccess {
		t.Fatalf("group rollup = %+v, want success", g)
	}
	// The worker stamps last_run at fetch time; settling must not move the
	// watermark or messages between fetch and settle would be skipped.
	if g.LastRun != nil {
		t.Fatalf("settling must not touch last_run, got %v", g.LastRun)
	}
	for _, job := range jobs {
		if jobRepo.rows[job.ID].Status != types.StatusSuccess {
			t.Fatalf("job %s not settled to success", job.Name)
		}
	}
}

func TestSnapshotVanishedJobCountsAsSuccess(t *testing.T) {
	// Successful jobs are garbage collected, so a job the runtime no
	// longer knows must be read as having succeeded.
	integration := seedIntegration()
	integration.Status = types.StatusRunning
	group := &types.ParentGroupData{
		ID: uuid.New(), ExternalID: "C01", Name: "general",
		GroupType: types.GroupSlackChannel, Status: types.StatusRunning, IntegrationID: integration.ID,
	}
	job := &types.ChunkProcessingJob{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusRunning, ParentGroupID: "C01", IntegrationID: integration.ID}
	a, _, _, jobRepo, _ := aggregatorFixture(integration, []*types.ParentGroupData{group}, []*types.ChunkProcessingJob{job})

	gotIntegration, _, err := a.Snapshot(context.Background(), integration.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if jobRepo.rows[job.ID].Status != types.StatusSuccess {
		t.Fatalf("vanished job settled to %s, want success", jobRepo.rows[job.ID].Status)
	}
	if gotIntegration.Status != types.StatusSuccess {
		t.Fatalf("integration status = %s, want success", gotIntegration.Status)
	}
}

func TestSnapshotFailedJobPropagatesToIntegration(t *testing.T) {
	integration := seedIntegration()
	integration.Status = types.StatusRunning
	groups := []*types.ParentGroupData{
		{ID: uuid.New(), ExternalID: "C01", Name: "general",
			GroupType: types.GroupSlackChannel, Status: types.StatusRunning, IntegrationID: integration.ID},
		{ID: uuid.New(), ExternalID: "C02", Name: "random",
			GroupType: types.GroupSlackChannel, Status: types.StatusRunning, IntegrationID: integration.ID},
	}
	jobs := []*types.ChunkProcessingJob{
		{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusRunning, ParentGroupID: "C01", IntegrationID: integration.ID},
		{ID: uuid.New(), Name: "slack-processor-c02-0", Status: types.StatusRunning, ParentGroupID: "C02", IntegrationID: integration.ID},
	}
	a, _, groupRepo, _, runtime := aggregatorFixture(integration, groups, jobs)
	runtime.SetState("slack-processor-c01-0", cluster.JobState{Found: true, Failed: true})
	runtime.SetState("slack-processor-c02-0", cluster.JobState{Found: true, Complete: true})

	gotIntegration, _, err := a.Snapshot(context.Background(), integration.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got := groupRepo.get(integration.ID, "C01").Status; got != types.StatusFailed {
		t.Fatalf("failed group status = %s", got)
	}
	if got := groupRepo.get(integration.ID, "C02").Status; got != types.StatusSuccess {
		t.Fatalf("succeeded group status = %s", got)
	}
	if gotIntegration.Status != types.StatusFailed {
		t.Fatalf("integration status = %s, want failed", gotIntegration.Status)
	}
}

func TestSnapshotReapsOnlySuccessfulJobs(t *testing.T) {
	integration := seedIntegration()
	integration.Status = types.StatusRunning
	group := &types.ParentGroupData{
		ID: uuid.New(), ExternalID: "C01", Name: "general",
		GroupType: types.GroupSlackChannel, Status: types.StatusRunning, IntegrationID: integration.ID,
	}
	jobs := []*types.ChunkProcessingJob{
		{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusRunning, ParentGroupID: "C01", IntegrationID: integration.ID},
		{ID: uuid.New(), Name: "slack-processor-c01-1", Status: types.StatusRunning, ParentGroupID: "C01", IntegrationID: integration.ID},
	}
	a, _, _, _, runtime := aggregatorFixture(integration, []*types.ParentGroupData{group}, jobs)
	runtime.SetState("slack-processor-c01-0", cluster.JobState{Found: true, Complete: true})
	runtime.SetState("slack-processor-c01-1", cluster.JobState{Found: true, Failed: true})

	if _, _, err := a.Snapshot(context.Background(), integration.ID); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	for _, pattern := range runtime.DeletedJobPatterns {
		if pattern == "slack-processor-c01-1" {
			t.Fatalf("failed job must be left in place for inspection")
		}
	}
	found := false
	for _, pattern := range runtime.DeletedJobPatterns {
		if pattern == "slack-processor-c01-0" {
			found = true
		}
	}
	if !found {
		t.Fatalf("successful job was not garbage collected")
	}
}

func TestSnapshotToleratesSuccessBesideNotStartedGroups(t *testing.T) {
	// An aborted scheduling pass can leave NOT_STARTED groups beside
	// SUCCESS ones. The snapshot keeps the integration's current status
	// instead of refusing to report.
	integration := seedIntegration()
	integration.Status = types.StatusRunning
	groups := []*types.ParentGroupData{
		{ID: uuid.New(), ExternalID: "C01", Name: "general",
			GroupType: types.GroupSlackChannel, Status: types.StatusSuccess, IntegrationID: integration.ID},
		{ID: uuid.New(), ExternalID: "C02", Name: "random",
			GroupType: types.GroupSlackChannel, Status: types.StatusNotStarted, IntegrationID: integration.ID},
	}
	a, integrationRepo, _, _, _ := aggregatorFixture(integration, groups, nil)

	gotIntegration, _, err := a.Snapshot(context.Background(), integration.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if gotIntegration.Status != types.StatusRunning {
		t.Fatalf("integration status = %s, want running kept", gotIntegration.Status)
	}
	if got := integrationRepo.rows[integration.ID].Status; got != types.StatusRunning {
		t.Fatalf("persisted integration status = %s, want running", got)
	}
}

func TestSnapshotRecoversRetriedFailedJob(t *testing.T) {
	// A job row can read FAILED while the orchestrator's retry succeeds
	// after the fact. Settling re-polls it instead of trusting the row.
	integration := seedIntegration()
	integration.Status = types.StatusRunning
	group := &types.ParentGroupData{
		ID: uuid.New(), ExternalID: "C01", Name: "general",
		GroupType: types.GroupSlackChannel, Status: types.StatusFailed, IntegrationID: integration.ID,
	}
	job := &types.ChunkProcessingJob{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusFailed, ParentGroupID: "C01", IntegrationID: integration.ID}
	a, _, groupRepo, jobRepo, runtime := aggregatorFixture(integration, []*types.ParentGroupData{group}, []*types.ChunkProcessingJob{job})
	runtime.SetState("slack-processor-c01-0", cluster.JobState{Found: true, Complete: true})

	if _, _, err := a.Snapshot(context.Background(), integration.ID); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got := jobRepo.rows[job.ID].Status; got != types.StatusSuccess {
		t.Fatalf("retried job settled to %s, want success", got)
	}
	if got := groupRepo.get(integration.ID, "C01").Status; got != types.StatusSuccess {
		t.Fatalf("group status = %s, want success", got)
	}
}

func TestSnapshotReapsAlreadySettledJobs(t *testing.T) {
	// A reap that failed on an earlier tick is retried: rows already read
	// SUCCESS and their runtime jobs must still be collected.
	integration := seedIntegration()
	integration.Status = types.StatusRunning
	group := &types.ParentGroupData{
		ID: uuid.New(), ExternalID: "C01", Name: "general",
		GroupType: types.GroupSlackChannel, Status: types.StatusSuccess, IntegrationID: integration.ID,
	}
	job := &types.ChunkProcessingJob{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusSuccess, ParentGroupID: "C01", IntegrationID: integration.ID}
	a, _, _, _, runtime := aggregatorFixture(integration, []*types.ParentGroupData{group}, []*types.ChunkProcessingJob{job})

	if _, _, err := a.Snapshot(context.Background(), integration.ID); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	found := false
	for _, pattern := range runtime.DeletedJobPatterns {
		if pattern == "slack-processor-c01-0" {
			found = true
		}
	}
	if !found {
		t.Fatalf("settled job was not garbage collected on this tick")
	}
}

func TestSnapshotIgnoresOtherTenantsJobs(t *testing.T) {
	// Two tenants tracking a group with the same external ID must settle
	// independently.
	integrationA := seedIntegration()
	integrationA.Status = types.StatusRunning
	integrationB := seedIntegration()
	integrationB.Namespace = "tenant-other"
	integrationB.Status = types.StatusRunning

	groupA := &types.ParentGroupData{
		ID: uuid.New(), ExternalID: "C01", Name: "general",
		GroupType: types.GroupSlackChannel, Status: types.StatusRunning, IntegrationID: integrationA.ID,
	}
	jobA := &types.ChunkProcessingJob{ID: uuid.New(), Name: "slack-processor-c01-0", Status: types.StatusRunning, ParentGroupID: "C01", IntegrationID: integrationA.ID}
	jobB := &types.ChunkProcessingJob{ID: uuid.New(), Name: "slack-processor-c01-9", Status: types.StatusRunning, ParentGroupID: "C01", IntegrationID: integrationB.ID}

	a, _, _, jobRepo, runtime := aggregatorFixture(integrationA, []*types.ParentGroupData{groupA}, []*types.ChunkProcessingJob{jobA, jobB})
	runtime.SetState("slack-processor-c01-0", cluster.JobState{Found: true, Complete: true})
	runtime.SetState("slack-processor-c01-9", cluster.JobState{Found: true, Failed: true})

	gotIntegration, _, err := a.Snapshot(context.Background(), integrationA.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if gotIntegration.Status != types.StatusSuccess {
		t.Fatalf("integration status = %s, want success despite the other tenant's failure", gotIntegration.Status)
	}
	if got := jobRepo.rows[jobB.ID].Status; got != types.StatusRunning {
		t.Fatalf("other tenant's job mutated to %s", got)
	}
}
