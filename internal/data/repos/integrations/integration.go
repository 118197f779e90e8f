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

type IntegrationRepo interface {
	Create(dbc dbctx.Context, integration *types.Integration) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Integration, error)
	ListByNamespace(dbc dbctx.Context, namespace string) ([]*types.Integration, error)
	SetStatus(dbc dbctx.Context, id uuid.UUID, status types.Status) error
	MarkQueued(dbc dbctx.Context, id uuid.UUID, lastRun time.Time) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type integrationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIntegrationRepo(db *gorm.DB, baseLog *logger.Logger) IntegrationRepo {
	return &integrationRepo{
		db:  db,
		log: baseLog.With("repo", "IntegrationRepo"),
	}
}

func (r *integrationRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *integrationRepo) Create(dbc dbctx.Context, integration *types.Integration) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(integration).Error
}

func (r *integrationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Integration, error) {
	var out types.Integration
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *integrationRepo) ListByNamespace(dbc dbctx.Context, namespace string) ([]*types.Integration, error) {
	var out []*types.Integration
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("namespace = ?", namespace).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *integrationRepo) SetStatus(dbc dbctx.Context, id uuid.UUID, status types.Status) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{"status": status})
}

func (r *integrationRepo) MarkQueued(dbc dbctx.Context, id uuid.UUID, lastRun time.Time) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"status":   types.StatusQueued,
		"last_run": lastRun,
	})
}

func (r *integrationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.Integration{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *integrationRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Integration{}).Error
}
