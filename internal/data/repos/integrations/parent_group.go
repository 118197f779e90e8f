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

type ParentGroupRepo interface {
	Create(dbc dbctx.Context, group *types.ParentGroupData) error
	GetByExternalID(dbc dbctx.Context, integrationID uuid.UUID, externalID string) (*types.ParentGroupData, error)
	ListByIntegration(dbc dbctx.Context, integrationID uuid.UUID) ([]*types.ParentGroupData, error)
	SetStatus(dbc dbctx.Context, integrationID uuid.UUID, externalID string, status types.Status) error
	SetStatusLastRun(dbc dbctx.Context, integrationID uuid.UUID, externalID string, status types.Status, lastRun time.Time) error
	UpdateCounts(dbc dbctx.Context, integrationID uuid.UUID, externalID string, counts map[string]interface{}) error
	UpdateFields(dbc dbctx.Context, integrationID uuid.UUID, externalID string, updates map[string]interface{}) error
	DeleteByIntegration(dbc dbctx.Context, integrationID uuid.UUID) error
}

type parentGroupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParentGroupRepo(db *gorm.DB, baseLog *logger.Logger) ParentGroupRepo {
	return &parentGroupRepo{
		db:  db,
		log: baseLog.With("repo", "ParentGroupRepo"),
	}
}

func (r *parentGroupRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *parentGroupRepo) Create(dbc dbctx.Context, group *types.ParentGroupData) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(group).Error
}

func (r *parentGroupRepo) GetByExternalID(dbc dbctx.Context, integrationID uuid.UUID, externalID string) (*types.ParentGroupData, error) {
	var out types.ParentGroupData
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("integration_id = ? AND external_id = ?", integrationID, externalID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *parentGroupRepo) ListByIntegration(dbc dbctx.Context, integrationID uuid.UUID) ([]*types.ParentGroupData, error) {
	var out []*types.ParentGroupData
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("integration_id = ?", integrationID).
		Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *parentGroupRepo) SetStatus(dbc dbctx.Context, integrationID uuid.UUID, externalID string, status types.Status) error {
	return r.update(dbc, integrationID, externalID, map[string]interface{}{"status": status})
}

func (r *parentGroupRepo) SetStatusLastRun(dbc dbctx.Context, integrationID uuid.UUID, externalID string, status types.Status, lastRun time.Time) error {
	return r.update(dbc, integrationID, externalID, map[string]interface{}{
		"status":   status,
		"last_run": lastRun,
	})
}

func (r *parentGroupRepo) UpdateCounts(dbc dbctx.Context, integrationID uuid.UUID, externalID string, counts map[string]interface{}) error {
	return r.update(dbc, integrationID, externalID, counts)
}

func (r *parentGroupRepo) UpdateFields(dbc dbctx.Context, integrationID uuid.UUID, externalID string, updates map[string]interface{}) error {
	return r.update(dbc, integrationID, externalID, updates)
}

func (r *parentGroupRepo) DeleteByIntegration(dbc dbctx.Context, integrationID uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("integration_id = ?", integrationID).
		Delete(&types.ParentGroupData{}).Error
}

func (r *parentGroupRepo) update(dbc dbctx.Context, integrationID uuid.UUID, externalID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.ParentGroupData{}).
		Where("integration_id = ? AND external_id = ?", integrationID, externalID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
