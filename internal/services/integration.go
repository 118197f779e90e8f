package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/weftlabs/weft-backend/internal/cluster"
	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/graph"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/vector"
)

type CreateIntegrationInput struct {
	Name            string           `json:"name"`
	Source          types.SourceType `json:"source"`
	Namespace       string           `json:"namespace"`
	RefreshSchedule string           `json:"refresh_schedule"`
	SecretName      string           `json:"secret_name"`
}

// IntegrationService owns the integration lifecycle: creating the row plus
// its processor resources, flipping them on and off, and tearing everything
// down including the ingested knowledge.
type IntegrationService interface {
	Create(ctx context.Context, in CreateIntegrationInput) (*types.Integration, error)
	Activate(ctx context.Context, id uuid.UUID) (*types.Integration, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*types.Integration, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*types.Integration, error)
	List(ctx context.Context, namespace string) ([]*types.Integration, error)
}

type integrationService struct {
	integrationRepo integrations.IntegrationRepo
	groupRepo       integrations.ParentGroupRepo
	jobRepo         integrations.ProcessingJobRepo
	vectorRepo      integrations.VectorRepo
	resourceRepo    integrations.ClusterResourceRepo
	deployer        *cluster.Deployer
	graph           graph.Store
	vectors         vector.Store
	workerReplicas  int
	log             *logger.Logger
}

func NewIntegrationService(
	integrationRepo integrations.IntegrationRepo,
	groupRepo integrations.ParentGroupRepo,
	jobRepo integrations.ProcessingJobRepo,
	vectorRepo integrations.VectorRepo,
	resourceRepo integrations.ClusterResourceRepo,
	deployer *cluster.Deployer,
	graphStore graph.Store,
	vectors vector.Store,
	workerReplicas int,
	baseLog *logger.Logger,
) IntegrationService {
	if workerReplicas <= 0 {
		workerReplicas = 1
	}
	return &integrationService{
		integrationRepo: integrationRepo,
		groupRepo:       groupRepo,
		jobRepo:         jobRepo,
		vectorRepo:      vectorRepo,
		resourceRepo:    resourceRepo,
		deployer:        deployer,
		graph:           graphStore,
		vectors:         vectors,
		workerReplicas:  workerReplicas,
		log:             baseLog.With("service", "IntegrationService"),
	}
}

func (s *integrationService) Create(ctx context.Context, in CreateIntegrationInput) (*types.Integration, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("name required: %w", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(in.Namespace) == "" {
		return nil, fmt.Errorf("namespace required: %w", pkgerrors.ErrInvalidArgument)
	}
	switch in.Source {
	case types.SourceSlack, types.SourceGithub:
	default:
		return nil, fmt.Errorf("unknown source %q: %w", in.Source, pkgerrors.ErrInvalidArgument)
	}
	if err := cluster.ValidateSchedule(in.RefreshSchedule); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), pkgerrors.ErrInvalidArgument)
	}

	dbc := dbctx.New(ctx)
	integration := &types.Integration{
		Name:            strings.TrimSpace(in.Name),
		Source:          in.Source,
		Namespace:       strings.TrimSpace(in.Namespace),
		RefreshSchedule: in.RefreshSchedule,
		Status:          types.StatusNotStarted,
		IsActive:        true,
		SecretName:      strings.TrimSpace(in.SecretName),
	}
	if err := s.integrationRepo.Create(dbc, integration); err != nil {
		return nil, fmt.Errorf("create integration: %w", err)
	}
	if err := s.deployResources(dbc, integration); err != nil {
		return nil, err
	}
	s.log.Info("Integration created", "integration_id", integration.ID.String(), "source", string(integration.Source))
	return integration, nil
}

func (s *integrationService) Activate(ctx context.Context, id uuid.UUID) (*types.Integration, error) {
	dbc := dbctx.New(ctx)
	integration, err := s.integrationRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if integration.IsActive {
		return integration, nil
	}
	if err := s.deployResources(dbc, integration); err != nil {
		return nil, err
	}
	if err := s.integrationRepo.UpdateFields(dbc, id, map[string]interface{}{"is_active": true}); err != nil {
		return nil, err
	}
	integration.IsActive = true
	s.log.Info("Integration activated", "integration_id", id.String())
	return integration, nil
}

func (s *integrationService) Deactivate(ctx context.Context, id uuid.UUID) (*types.Integration, error) {
	dbc := dbctx.New(ctx)
	integration, err := s.integrationRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if err := s.teardownResources(dbc, integration); err != nil {
		return nil, err
	}
	if err := s.integrationRepo.UpdateFields(dbc, id, map[string]interface{}{"is_active": false}); err != nil {
		return nil, err
	}
	integration.IsActive = false
	s.log.Info("Integration deactivated", "integration_id", id.String())
	return integration, nil
}

// Delete tears down the processor resources, purges the integration's graph
// and vector footprint group by group, and removes the rows. Migrations run
// without foreign key constraints, so the child rows are removed explicitly
// here rather than left to database cascades.
func (s *integrationService) Delete(ctx context.Context, id uuid.UUID) error {
	dbc := dbctx.New(ctx)
	integration, err := s.integrationRepo.GetByID(dbc, id)
	if err != nil {
		return err
	}
	if err := s.teardownResources(dbc, integration); err != nil {
		return err
	}

	groups, err := s.groupRepo.ListByIntegration(dbc, id)
	if err != nil {
		return fmt.Errorf("list groups for purge: %w", err)
	}
	for _, group := range groups {
		if err := s.graph.PurgeParentGroup(ctx, group.ExternalID); err != nil {
			return err
		}
		if err := s.vectors.PurgeParentGroup(ctx, integration.Namespace, group.ExternalID); err != nil {
			return err
		}
		if err := s.vectorRepo.DeleteByParentGroup(dbc, group.ExternalID); err != nil {
			return fmt.Errorf("delete vector records: %w", err)
		}
	}

	if err := s.jobRepo.DeleteByIntegration(dbc, id); err != nil {
		return fmt.Errorf("delete job records: %w", err)
	}
	if err := s.groupRepo.DeleteByIntegration(dbc, id); err != nil {
		return fmt.Errorf("delete group records: %w", err)
	}
	if err := s.integrationRepo.Delete(dbc, id); err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	s.log.Info("Integration deleted", "integration_id", id.String(), "purged_groups", len(groups))
	return nil
}

func (s *integrationService) Get(ctx context.Context, id uuid.UUID) (*types.Integration, error) {
	return s.integrationRepo.GetByID(dbctx.New(ctx), id)
}

func (s *integrationService) List(ctx context.Context, namespace string) ([]*types.Integration, error) {
	return s.integrationRepo.ListByNamespace(dbctx.New(ctx), namespace)
}

func (s *integrationService) deployResources(dbc dbctx.Context, integration *types.Integration) error {
	workerName, err := s.deployer.DeployWorker(dbc.Ctx, integration, s.workerReplicas)
	if err != nil {
		return err
	}
	if err := s.resourceRepo.Create(dbc, &types.ClusterResource{
		Role:          types.RoleWorker,
		Kind:          types.KindDeployment,
		Name:          workerName,
		IntegrationID: integration.ID,
	}); err != nil {
		return fmt.Errorf("record worker resource: %w", err)
	}

	schedulerName, err := s.deployer.DeployScheduler(dbc.Ctx, integration)
	if err != nil {
		return err
	}
	if err := s.resourceRepo.Create(dbc, &types.ClusterResource{
		Role:          types.RoleScheduler,
		Kind:          types.KindCronJob,
		Name:          schedulerName,
		IntegrationID: integration.ID,
	}); err != nil {
		return fmt.Errorf("record scheduler resource: %w", err)
	}
	return nil
}

func (s *integrationService) teardownResources(dbc dbctx.Context, integration *types.Integration) error {
	if err := s.deployer.Teardown(dbc.Ctx, integration); err != nil {
		return err
	}
	if err := s.deployer.PurgeJobs(dbc.Ctx, integration); err != nil {
		return err
	}
	if err := s.resourceRepo.DeleteByIntegration(dbc, integration.ID); err != nil {
		return fmt.Errorf("delete resource records: %w", err)
	}
	return nil
}
