package db

import (
	"gorm.io/gorm"

	types "github.com/weftlabs/weft-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Integration{},
		&types.ParentGroupData{},
		&types.ChunkProcessingJob{},
		&types.UpsertedVector{},
		&types.ClusterResource{},
	)
}
