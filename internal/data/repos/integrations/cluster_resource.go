package integrations

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

type ClusterResourceRepo interface {
	Create(dbc dbctx.Context, resource *types.ClusterResource) error
	ListByIntegration(dbc dbctx.Context, integrationID uuid.UUID) ([]*types.ClusterResource, error)
	DeleteByIntegration(dbc dbctx.Context, integrationID uuid.UUID) error
}

type clusterResourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClusterResourceRepo(db *gorm.DB, baseLog *logger.Logger) ClusterResourceRepo {
	return &clusterResourceRepo{
		db:  db,
		log: baseLog.With("repo", "ClusterResourceRepo"),
	}
}

func (r *clusterResourceRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *clusterResourceRepo) Create(dbc dbctx.Context, resource *types.ClusterResource) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(resource).Error
}

func (r *clusterResourceRepo) ListByIntegration(dbc dbctx.Context, integrationID uuid.UUID) ([]*types.ClusterResource, error) {
	var out []*types.ClusterResource
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("integration_id = ?", integrationID).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *clusterResourceRepo) DeleteByIntegration(dbc dbctx.Context, integrationID uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("integration_id = ?", integrationID).
		Delete(&types.ClusterResource{}).Error
}
