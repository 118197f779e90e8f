package integrations

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

type VectorRepo interface {
	// Upsert records a vector write. Re-recording the same vector_id is a
	// no-op, which keeps record counts stable under chunk re-processing.
	Upsert(dbc dbctx.Context, vector *types.UpsertedVector) error
	CountByParentGroup(dbc dbctx.Context, parentGroupID string) (int, error)
	DeleteByParentGroup(dbc dbctx.Context, parentGroupID string) error
}

type vectorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVectorRepo(db *gorm.DB, baseLog *logger.Logger) VectorRepo {
	return &vectorRepo{
		db:  db,
		log: baseLog.With("repo", "VectorRepo"),
	}
}

func (r *vectorRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *vectorRepo) Upsert(dbc dbctx.Context, vector *types.UpsertedVector) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vector_id"}},
			DoNothing: true,
		}).
		Create(vector).Error
}

func (r *vectorRepo) CountByParentGroup(dbc dbctx.Context, parentGroupID string) (int, error) {
	var count int64
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.UpsertedVector{}).
		Where("parent_group_id = ?", parentGroupID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *vectorRepo) DeleteByParentGroup(dbc dbctx.Context, parentGroupID string) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("parent_group_id = ?", parentGroupID).
		Delete(&types.UpsertedVector{}).Error
}
