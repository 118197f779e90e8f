package integrations

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

type ProcessingJobRepo interface {
	Create(dbc dbctx.Context, job *types.ChunkProcessingJob) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChunkProcessingJob, error)
	// ListByParentGroup scopes by integration as well as external ID:
	// external IDs can repeat across integrations.
	ListByParentGroup(dbc dbctx.Context, integrationID uuid.UUID, parentGroupID string) ([]*types.ChunkProcessingJob, error)
	SetStatus(dbc dbctx.Context, id uuid.UUID, status types.Status) error
	DeleteByIntegration(dbc dbctx.Context, integrationID uuid.UUID) error
}

type processingJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessingJobRepo(db *gorm.DB, baseLog *logger.Logger) ProcessingJobRepo {
	return &processingJobRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingJobRepo"),
	}
}

func (r *processingJobRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *processingJobRepo) Create(dbc dbctx.Context, job *types.ChunkProcessingJob) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(job).Error
}

func (r *processingJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChunkProcessingJob, error) {
	var out types.ChunkProcessingJob
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *processingJobRepo) ListByParentGroup(dbc dbctx.Context, integrationID uuid.UUID, parentGroupID string) ([]*types.ChunkProcessingJob, error) {
	var out []*types.ChunkProcessingJob
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("integration_id = ? AND parent_group_id = ?", integrationID, parentGroupID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *processingJobRepo) DeleteByIntegration(dbc dbctx.Context, integrationID uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("integration_id = ?", integrationID).
		Delete(&types.ChunkProcessingJob{}).Error
}

func (r *processingJobRepo) SetStatus(dbc dbctx.Context, id uuid.UUID, status types.Status) error {
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.ChunkProcessingJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
