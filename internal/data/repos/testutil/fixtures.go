package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/weftlabs/weft-backend/internal/domain"
)

func SeedIntegration(tb testing.TB, ctx context.Context, tx *gorm.DB, namespace string) *types.Integration {
	tb.Helper()
	in := &types.Integration{
		ID:              uuid.New(),
		Name:            "workspace",
		Source:          types.SourceSlack,
		Namespace:       namespace,
		RefreshSchedule: "0 * * * *",
		Status:          types.StatusNotStarted,
		IsActive:        true,
	}
	if err := tx.WithContext(ctx).Create(in).Error; err != nil {
		tb.Fatalf("seed integration: %v", err)
	}
	return in
}

func SeedParentGroup(tb testing.TB, ctx context.Context, tx *gorm.DB, integrationID uuid.UUID, externalID string) *types.ParentGroupData {
	tb.Helper()
	pg := &types.ParentGroupData{
		ID:            uuid.New(),
		ExternalID:    externalID,
		Name:          "group-" + externalID,
		GroupType:     types.GroupSlackChannel,
		Status:        types.StatusNotStarted,
		RawResponse:   datatypes.JSON([]byte("{}")),
		IntegrationID: integrationID,
	}
	if err := tx.WithContext(ctx).Create(pg).Error; err != nil {
		tb.Fatalf("seed parent group: %v", err)
	}
	return pg
}

func SeedProcessingJob(tb testing.TB, ctx context.Context, tx *gorm.DB, integrationID uuid.UUID, parentGroupID string, status types.Status) *types.ChunkProcessingJob {
	tb.Helper()
	job := &types.ChunkProcessingJob{
		ID:            uuid.New(),
		Name:          "slack-processor-" + parentGroupID + "-0",
		Status:        status,
		ParentGroupID: parentGroupID,
		IntegrationID: integrationID,
	}
	if err := tx.WithContext(ctx).Create(job).Error; err != nil {
		tb.Fatalf("seed processing job: %v", err)
	}
	return job
}
