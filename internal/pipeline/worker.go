package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weftlabs/weft-backend/internal/cluster"
	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/queue"
)

// Worker drains one integration's descriptor queue: it pops parent group
// descriptors, splits each group's items into bounded chunks, stages every
// chunk in the cache and launches one isolated execution job per chunk.
// Admission control counts live processor jobs before every pop so a burst
// of large groups cannot flood the cluster.
type Worker struct {
	cfg             Config
	integrationRepo integrations.IntegrationRepo
	groupRepo       integrations.ParentGroupRepo
	jobRepo         integrations.ProcessingJobRepo
	queue           queue.GroupQueue
	chunks          queue.ChunkStore
	runtime         cluster.Runtime
	splitter        ChunkSplitter
	integrationID   uuid.UUID
	namespace       string
	source          types.SourceType
	log             *logger.Logger
	now             func() time.Time
}

func NewWorker(
	cfg Config,
	integrationRepo integrations.IntegrationRepo,
	groupRepo integrations.ParentGroupRepo,
	jobRepo integrations.ProcessingJobRepo,
	groupQueue queue.GroupQueue,
	chunks queue.ChunkStore,
	runtime cluster.Runtime,
	splitter ChunkSplitter,
	integrationID uuid.UUID,
	namespace string,
	source types.SourceType,
	baseLog *logger.Logger,
) *Worker {
	return &Worker{
		cfg:             cfg,
		integrationRepo: integrationRepo,
		groupRepo:       groupRepo,
		jobRepo:         jobRepo,
		queue:           groupQueue,
		chunks:          chunks,
		runtime:         runtime,
		splitter:        splitter,
		integrationID:   integrationID,
		namespace:       namespace,
		source:          source,
		log:             baseLog.With("service", "Worker", "integration_id", integrationID.String()),
		now:             time.Now,
	}
}

// Run loops until the context is cancelled or a descriptor fails. By the
// time Process returns an error the failure is already recorded on the
// status rows; the loop exits and the surrounding deployment's restart
// supplies the back-off.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		live, err := w.runtime.CountJobs(ctx, w.namespace, cluster.ProcessorPattern(w.source))
		if err != nil {
			w.log.Error("count live jobs failed", "error", err)
			w.pause(ctx)
			continue
		}
		if live >= w.cfg.MaxProcessingJobs {
			w.log.Debug("admission refused, waiting", "live", live, "max", w.cfg.MaxProcessingJobs)
			w.pause(ctx)
			continue
		}

		payload, err := w.queue.Pop(ctx, w.source, w.integrationID.String(), w.cfg.QueueTimeout)
		if err != nil {
			w.log.Error("queue pop failed", "error", err)
			w.pause(ctx)
			continue
		}
		if payload == nil {
			continue
		}

		if err := w.Process(ctx, payload); err != nil {
			w.log.Error("descriptor processing failed", "error", err)
			return err
		}
	}
}

// Process handles one popped descriptor end to end. Once at least one
// execution job has been launched there is no rollback: a later failure
// leaves the launched jobs running and marks the group and integration
// FAILED so the fault is visible at every level.
func (w *Worker) Process(ctx context.Context, payload []byte) error {
	var desc GroupDescriptor
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("worker: unmarshal descriptor: %w", err)
	}
	if desc.Namespace != w.namespace {
		// The foreign payload is left untouched, but the violation must be
		// visible on this worker's own integration.
		dbc := dbctx.New(ctx)
		if err := w.integrationRepo.SetStatus(dbc, w.integrationID, types.StatusFailed); err != nil {
			w.log.Error("mark integration failed errored", "error", err)
		}
		return fmt.Errorf("worker: descriptor namespace %q does not match %q: %w",
			desc.Namespace, w.namespace, pkgerrors.ErrTenantIsolation)
	}
	integrationID, err := uuid.Parse(desc.IntegrationID)
	if err != nil {
		return fmt.Errorf("worker: descriptor integration id: %w", err)
	}

	dbc := dbctx.New(ctx)
	log := w.log.With("parent_group_id", desc.ID)

	launched := 0
	splitErr := w.splitter.Split(ctx, desc, w.cfg.MaxObjectsInJob, func(chunk Chunk) error {
		if err := w.launchChunk(dbc, integrationID, desc, chunk); err != nil {
			return err
		}
		launched++
		return nil
	})
	if splitErr != nil {
		log.Error("chunk fan-out failed", "launched", launched, "error", splitErr)
		if err := w.groupRepo.SetStatus(dbc, integrationID, desc.ID, types.StatusFailed); err != nil {
			log.Error("mark group failed errored", "error", err)
		}
		if err := w.integrationRepo.SetStatus(dbc, integrationID, types.StatusFailed); err != nil {
			log.Error("mark integration failed errored", "error", err)
		}
		return fmt.Errorf("worker: split group %s: %w", desc.ID, splitErr)
	}

	if launched == 0 {
		log.Info("no new items, group complete")
		return w.groupRepo.SetStatusLastRun(dbc, integrationID, desc.ID, types.StatusSuccess, w.now())
	}
	log.Info("chunks launched", "count", launched)
	// last_run is stamped here, at fetch time, so the next pass's watermark
	// covers everything this fetch could not have seen.
	return w.groupRepo.SetStatusLastRun(dbc, integrationID, desc.ID, types.StatusRunning, w.now())
}

func (w *Worker) launchChunk(dbc dbctx.Context, integrationID uuid.UUID, desc GroupDescriptor, chunk Chunk) error {
	var wm string
	if desc.Oldest != nil {
		wm = *desc.Oldest
	}
	name := cluster.JobName(w.source, desc.ID, wm, chunk.ID)
	key := queue.ChunkKey(w.namespace, name)

	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk %s: %w", name, err)
	}
	if err := w.chunks.Put(dbc.Ctx, key, payload); err != nil {
		return fmt.Errorf("stage chunk %s: %w", name, err)
	}

	job := &types.ChunkProcessingJob{
		ID:            uuid.New(),
		Name:          name,
		Status:        types.StatusNotStarted,
		ParentGroupID: desc.ID,
		IntegrationID: integrationID,
	}
	if err := w.jobRepo.Create(dbc, job); err != nil {
		return fmt.Errorf("record job %s: %w", name, err)
	}

	spec := cluster.JobSpec{
		Name:          name,
		Namespace:     w.namespace,
		JobID:         job.ID.String(),
		ChunkKey:      key,
		IntegrationID: desc.IntegrationID,
		Source:        w.source,
		BackoffLimit:  cluster.DefaultBackoffLimit,
	}
	if err := w.runtime.LaunchJob(dbc.Ctx, spec); err != nil {
		return fmt.Errorf("launch job %s: %w", name, err)
	}
	return nil
}

func (w *Worker) pause(ctx context.Context) {
	t := time.NewTimer(w.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
