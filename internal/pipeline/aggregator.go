package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/weftlabs/weft-backend/internal/cluster"
	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

// Aggregator reconciles stored statuses with the orchestrator's view on
// demand. Each snapshot refreshes every live job's status from the runtime,
// rolls jobs up into their group, rolls groups up into the integration, and
// garbage collects jobs that completed successfully. Failed jobs are left in
// place for inspection.
type Aggregator struct {
	integrationRepo integrations.IntegrationRepo
	groupRepo       integrations.ParentGroupRepo
	jobRepo         integrations.ProcessingJobRepo
	runtime         cluster.Runtime
	log             *logger.Logger
}

func NewAggregator(
	integrationRepo integrations.IntegrationRepo,
	groupRepo integrations.ParentGroupRepo,
	jobRepo integrations.ProcessingJobRepo,
	runtime cluster.Runtime,
	baseLog *logger.Logger,
) *Aggregator {
	return &Aggregator{
		integrationRepo: integrationRepo,
		groupRepo:       groupRepo,
		jobRepo:         jobRepo,
		runtime:         runtime,
		log:             baseLog.With("service", "Aggregator"),
	}
}

// Snapshot returns the integration and its parent groups, keyed by external
// ID, with all statuses settled against the orchestrator. The groups-to-
// integration rollup is tolerant: a mix the precedence rules do not cover
// (a scheduler abort can leave a fresh NOT_STARTED group next to a SUCCESS
// one) keeps the integration's current status instead of failing the read.
func (a *Aggregator) Snapshot(ctx context.Context, integrationID uuid.UUID) (*types.Integration, map[string]*types.ParentGroupData, error) {
	dbc := dbctx.New(ctx)

	integration, err := a.integrationRepo.GetByID(dbc, integrationID)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregator: load integration: %w", err)
	}
	groups, err := a.groupRepo.ListByIntegration(dbc, integration.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregator: list groups: %w", err)
	}

	byExternalID := make(map[string]*types.ParentGroupData, len(groups))
	groupStatuses := make([]types.Status, 0, len(groups))
	for _, group := range groups {
		if err := a.settleGroup(dbc, integration, group); err != nil {
			return nil, nil, err
		}
		byExternalID[group.ExternalID] = group
		groupStatuses = append(groupStatuses, group.Status)
	}

	next, err := rollup(integration.Status, groupStatuses)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregator: integration %s: %w", integration.ID, err)
	}
	if next != integration.Status {
		if err := a.integrationRepo.SetStatus(dbc, integration.ID, next); err != nil {
			return nil, nil, fmt.Errorf("aggregator: set integration status: %w", err)
		}
		integration.Status = next
	}
	return integration, byExternalID, nil
}

// settleGroup refreshes the group's job statuses from the runtime, rolls
// them up, and reaps successfully completed jobs. Every job not already
// SUCCESS is re-polled, so a FAILED row whose later retry completed is
// recovered. A job the runtime no longer knows is treated as successful:
// only successful jobs are ever garbage collected, so absence implies
// success. Already-SUCCESS jobs are re-reaped on every pass, which retries
// any deletion that previously failed.
func (a *Aggregator) settleGroup(dbc dbctx.Context, integration *types.Integration, group *types.ParentGroupData) error {
	jobs, err := a.jobRepo.ListByParentGroup(dbc, integration.ID, group.ExternalID)
	if err != nil {
		return fmt.Errorf("aggregator: list jobs for %s: %w", group.ExternalID, err)
	}

	jobStatuses := make([]types.Status, 0, len(jobs))
	for _, job := range jobs {
		if job.Status != types.StatusSuccess {
			state, err := a.runtime.GetJobState(dbc.Ctx, integration.Namespace, job.Name)
			if err != nil {
				return fmt.Errorf("aggregator: job state %s: %w", job.Name, err)
			}
			next := cluster.StatusFromJobState(state)
			if next != job.Status {
				if err := a.jobRepo.SetStatus(dbc, job.ID, next); err != nil {
					return fmt.Errorf("aggregator: set job status %s: %w", job.Name, err)
				}
				job.Status = next
			}
		}
		if job.Status == types.StatusSuccess {
			a.reapJob(dbc.Ctx, integration.Namespace, job.Name)
		}
		jobStatuses = append(jobStatuses, job.Status)
	}

	next, err := rollupStrict(group.Status, jobStatuses)
	if err != nil {
		return fmt.Errorf("aggregator: group %s: %w", group.ExternalID, err)
	}
	if next == group.Status {
		return nil
	}
	if err := a.groupRepo.SetStatus(dbc, integration.ID, group.ExternalID, next); err != nil {
		return fmt.Errorf("aggregator: set group status %s: %w", group.ExternalID, err)
	}
	group.Status = next
	return nil
}

func (a *Aggregator) reapJob(ctx context.Context, namespace, name string) {
	if err := a.runtime.DeleteJobs(ctx, namespace, name); err != nil {
		a.log.Warn("job cleanup failed", "job", name, "error", err)
	}
	if err := a.runtime.DeletePods(ctx, namespace, name); err != nil {
		a.log.Warn("pod cleanup failed", "job", name, "error", err)
	}
}
