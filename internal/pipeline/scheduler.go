package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/queue"
)

// Scheduler runs one discovery pass for a single integration: reconcile the
// discovered parent groups against the persisted rows, enqueue every
// eligible group, and stamp the integration QUEUED. It is triggered on the
// integration's cron schedule and exits after the pass.
type Scheduler struct {
	integrationRepo integrations.IntegrationRepo
	groupRepo       integrations.ParentGroupRepo
	queue           queue.GroupQueue
	discoverer      ParentGroupDiscoverer
	log             *logger.Logger
	now             func() time.Time
}

func NewScheduler(
	integrationRepo integrations.IntegrationRepo,
	groupRepo integrations.ParentGroupRepo,
	groupQueue queue.GroupQueue,
	discoverer ParentGroupDiscoverer,
	baseLog *logger.Logger,
) *Scheduler {
	return &Scheduler{
		integrationRepo: integrationRepo,
		groupRepo:       groupRepo,
		queue:           groupQueue,
		discoverer:      discoverer,
		log:             baseLog.With("service", "Scheduler"),
		now:             time.Now,
	}
}

// Run executes one scheduling pass. Groups already in flight (non-terminal
// with a prior run) are skipped so overlapping cron firings cannot double
// enqueue. The integration is marked QUEUED with a fresh last_run even when
// nothing was eligible, so the pass itself is always recorded.
func (s *Scheduler) Run(ctx context.Context, integrationID uuid.UUID) error {
	dbc := dbctx.New(ctx)

	integration, err := s.integrationRepo.GetByID(dbc, integrationID)
	if err != nil {
		return fmt.Errorf("scheduler: load integration: %w", err)
	}
	log := s.log.With("integration_id", integration.ID.String(), "source", string(integration.Source))

	discovered, err := s.discoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: discover groups: %w", err)
	}
	log.Info("discovery pass complete", "groups", len(discovered))

	enqueued := 0
	for _, dg := range discovered {
		group, err := s.reconcileGroup(dbc, integration, dg)
		if err != nil {
			return err
		}
		if !eligible(group) {
			log.Debug("group not eligible, skipping", "external_id", group.ExternalID, "status", string(group.Status))
			continue
		}
		if err := s.enqueueGroup(dbc, integration, group); err != nil {
			return err
		}
		enqueued++
	}

	if err := s.integrationRepo.MarkQueued(dbc, integration.ID, s.now()); err != nil {
		return fmt.Errorf("scheduler: mark integration queued: %w", err)
	}
	log.Info("scheduling pass complete", "enqueued", enqueued)
	return nil
}

// reconcileGroup upserts a discovered group. Existing rows get their name and
// raw response refreshed; new rows start NOT_STARTED with no run history.
func (s *Scheduler) reconcileGroup(dbc dbctx.Context, integration *types.Integration, dg DiscoveredGroup) (*types.ParentGroupData, error) {
	group, err := s.groupRepo.GetByExternalID(dbc, integration.ID, dg.ExternalID)
	if err == nil {
		if err := s.groupRepo.UpdateFields(dbc, integration.ID, dg.ExternalID, map[string]interface{}{
			"name":         dg.Name,
			"raw_response": datatypes.JSON(dg.RawAPIResponse),
		}); err != nil {
			return nil, fmt.Errorf("scheduler: refresh group %s: %w", dg.ExternalID, err)
		}
		group.Name = dg.Name
		group.RawResponse = datatypes.JSON(dg.RawAPIResponse)
		return group, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("scheduler: load group %s: %w", dg.ExternalID, err)
	}

	group = &types.ParentGroupData{
		ExternalID:    dg.ExternalID,
		Name:          dg.Name,
		GroupType:     dg.Type,
		Status:        types.StatusNotStarted,
		RawResponse:   datatypes.JSON(dg.RawAPIResponse),
		IntegrationID: integration.ID,
	}
	if err := s.groupRepo.Create(dbc, group); err != nil {
		return nil, fmt.Errorf("scheduler: create group %s: %w", dg.ExternalID, err)
	}
	return group, nil
}

func (s *Scheduler) enqueueGroup(dbc dbctx.Context, integration *types.Integration, group *types.ParentGroupData) error {
	desc := GroupDescriptor{
		IntegrationID:  integration.ID.String(),
		Namespace:      integration.Namespace,
		Type:           group.GroupType,
		ID:             group.ExternalID,
		Oldest:         watermark(group.LastRun),
		RawAPIResponse: json.RawMessage(group.RawResponse),
	}
	payload, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("scheduler: marshal descriptor %s: %w", group.ExternalID, err)
	}
	if err := s.queue.Push(dbc.Ctx, integration.Source, integration.ID.String(), payload); err != nil {
		return fmt.Errorf("scheduler: enqueue group %s: %w", group.ExternalID, err)
	}
	if err := s.groupRepo.SetStatus(dbc, integration.ID, group.ExternalID, types.StatusQueued); err != nil {
		return fmt.Errorf("scheduler: mark group queued %s: %w", group.ExternalID, err)
	}
	return nil
}

// eligible reports whether a group may be enqueued: it never ran, or its
// last run has settled. Anything mid-flight stays out of the queue.
func eligible(group *types.ParentGroupData) bool {
	return group.LastRun == nil || group.Status.Terminal()
}

// watermark renders a group's last run as the source-facing incremental
// fetch anchor, fractional epoch seconds. Nil means fetch everything.
func watermark(lastRun *time.Time) *string {
	if lastRun == nil {
		return nil
	}
	w := fmt.Sprintf("%d.%06d", lastRun.Unix(), lastRun.Nanosecond()/1000)
	return &w
}
