package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
	"github.com/weftlabs/weft-backend/internal/platform/envutil"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/queue"
)

// GraphCounter reports per-group totals from the graph store so the runner
// can recompute counts from the store of record instead of accumulating
// deltas across runs.
type GraphCounter interface {
	NodeCount(ctx context.Context, parentGroupID string) (int, error)
	EdgeCount(ctx context.Context, parentGroupID string) (int, error)
}

// JobInputs is the execution job's launch contract. Everything else the job
// needs it reads from the chunk payload behind ChunkKey.
type JobInputs struct {
	JobID         uuid.UUID
	ChunkKey      string
	IntegrationID uuid.UUID
	Namespace     string
}

// LoadJobInputs reads the launch contract from the environment. All four
// inputs are mandatory.
func LoadJobInputs(log *logger.Logger) (JobInputs, error) {
	var in JobInputs
	var err error

	rawJobID := envutil.GetEnv("JOB_ID", "", log)
	if in.JobID, err = uuid.Parse(rawJobID); err != nil {
		return in, fmt.Errorf("JOB_ID %q: %w", rawJobID, pkgerrors.ErrInvalidArgument)
	}
	rawIntegrationID := envutil.GetEnv("INTEGRATION_ID", "", log)
	if in.IntegrationID, err = uuid.Parse(rawIntegrationID); err != nil {
		return in, fmt.Errorf("INTEGRATION_ID %q: %w", rawIntegrationID, pkgerrors.ErrInvalidArgument)
	}
	if in.ChunkKey = envutil.GetEnv("CHUNK_DATA_KEY", "", log); in.ChunkKey == "" {
		return in, fmt.Errorf("CHUNK_DATA_KEY missing: %w", pkgerrors.ErrInvalidArgument)
	}
	if in.Namespace = envutil.GetEnv("NAMESPACE", "", log); in.Namespace == "" {
		return in, fmt.Errorf("NAMESPACE missing: %w", pkgerrors.ErrInvalidArgument)
	}
	return in, nil
}

// Runner executes one chunk inside an isolated execution job: fetch the
// staged payload, apply every item to the knowledge stores, refresh the
// group's counts, and report terminal status through the job row. A failed
// run exits non-zero so the orchestrator's bounded retry can take over.
type Runner struct {
	integrationRepo integrations.IntegrationRepo
	groupRepo       integrations.ParentGroupRepo
	jobRepo         integrations.ProcessingJobRepo
	vectorRepo      integrations.VectorRepo
	chunks          queue.ChunkStore
	applier         ChunkApplier
	counter         GraphCounter
	log             *logger.Logger
}

func NewRunner(
	integrationRepo integrations.IntegrationRepo,
	groupRepo integrations.ParentGroupRepo,
	jobRepo integrations.ProcessingJobRepo,
	vectorRepo integrations.VectorRepo,
	chunks queue.ChunkStore,
	applier ChunkApplier,
	counter GraphCounter,
	baseLog *logger.Logger,
) *Runner {
	return &Runner{
		integrationRepo: integrationRepo,
		groupRepo:       groupRepo,
		jobRepo:         jobRepo,
		vectorRepo:      vectorRepo,
		chunks:          chunks,
		applier:         applier,
		counter:         counter,
		log:             baseLog.With("service", "Runner"),
	}
}

// Run processes one chunk. The tenancy check happens before any store
// mutation; after it, the first failure marks the job FAILED and propagates.
// On success the integration itself is stamped SUCCESS immediately; the
// aggregator's rollup later settles the true integration state from all
// groups.
func (r *Runner) Run(ctx context.Context, in JobInputs) error {
	dbc := dbctx.New(ctx)
	log := r.log.With("job_id", in.JobID.String())

	integration, err := r.integrationRepo.GetByID(dbc, in.IntegrationID)
	if err != nil {
		return fmt.Errorf("runner: load integration: %w", err)
	}
	if integration.Namespace != in.Namespace {
		return fmt.Errorf("runner: integration namespace %q does not match %q: %w",
			integration.Namespace, in.Namespace, pkgerrors.ErrTenantIsolation)
	}

	payload, err := r.chunks.Get(ctx, in.ChunkKey)
	if err != nil {
		r.failJob(dbc, in.JobID, log)
		return fmt.Errorf("runner: fetch chunk: %w", err)
	}
	var chunk Chunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		r.failJob(dbc, in.JobID, log)
		return fmt.Errorf("runner: unmarshal chunk: %w", err)
	}
	log = log.With("parent_group_id", chunk.ParentGroupID, "items", len(chunk.Content))

	if err := r.jobRepo.SetStatus(dbc, in.JobID, types.StatusRunning); err != nil {
		return fmt.Errorf("runner: mark job running: %w", err)
	}

	// Counts are refreshed after every item, not once at the end, so a run
	// that dies mid-chunk leaves the group totals covering what it applied.
	for i, item := range chunk.Content {
		if err := r.applier.Apply(ctx, chunk, item); err != nil {
			r.failJob(dbc, in.JobID, log)
			return fmt.Errorf("runner: apply item %d: %w", i, err)
		}
		if err := r.refreshCounts(dbc, integration.ID, chunk.ParentGroupID); err != nil {
			r.failJob(dbc, in.JobID, log)
			return err
		}
	}

	if err := r.jobRepo.SetStatus(dbc, in.JobID, types.StatusSuccess); err != nil {
		return fmt.Errorf("runner: mark job success: %w", err)
	}
	if err := r.integrationRepo.SetStatus(dbc, integration.ID, types.StatusSuccess); err != nil {
		return fmt.Errorf("runner: mark integration success: %w", err)
	}
	log.Info("chunk processed")
	return nil
}

func (r *Runner) refreshCounts(dbc dbctx.Context, integrationID uuid.UUID, parentGroupID string) error {
	nodes, err := r.counter.NodeCount(dbc.Ctx, parentGroupID)
	if err != nil {
		return fmt.Errorf("runner: node count: %w", err)
	}
	edges, err := r.counter.EdgeCount(dbc.Ctx, parentGroupID)
	if err != nil {
		return fmt.Errorf("runner: edge count: %w", err)
	}
	records, err := r.vectorRepo.CountByParentGroup(dbc, parentGroupID)
	if err != nil {
		return fmt.Errorf("runner: record count: %w", err)
	}
	return r.groupRepo.UpdateCounts(dbc, integrationID, parentGroupID, map[string]interface{}{
		"node_count":   nodes,
		"edge_count":   edges,
		"record_count": records,
	})
}

func (r *Runner) failJob(dbc dbctx.Context, jobID uuid.UUID, log *logger.Logger) {
	if err := r.jobRepo.SetStatus(dbc, jobID, types.StatusFailed); err != nil {
		log.Error("mark job failed errored", "error", err)
	}
}
