package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

// In-memory repo and queue fakes so pipeline semantics can be tested
// without Postgres or Redis.

type fakeIntegrationRepo struct {
	rows map[uuid.UUID]*types.Integration
}

func newFakeIntegrationRepo(rows ...*types.Integration) *fakeIntegrationRepo {
	f := &fakeIntegrationRepo{rows: make(map[uuid.UUID]*types.Integration)}
	for _, row := range rows {
		f.rows[row.ID] = row
	}
	return f
}

func (f *fakeIntegrationRepo) Create(_ dbctx.Context, integration *types.Integration) error {
	f.rows[integration.ID] = integration
	return nil
}

func (f *fakeIntegrationRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Integration, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeIntegrationRepo) ListByNamespace(_ dbctx.Context, namespace string) ([]*types.Integration, error) {
	var out []*types.Integration
	for _, row := range f.rows {
		if row.Namespace == namespace {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeIntegrationRepo) SetStatus(_ dbctx.Context, id uuid.UUID, status types.Status) error {
	row, ok := f.rows[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	row.Status = status
	return nil
}

func (f *fakeIntegrationRepo) MarkQueued(_ dbctx.Context, id uuid.UUID, lastRun time.Time) error {
	row, ok := f.rows[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	row.Status = types.StatusQueued
	row.LastRun = &lastRun
	return nil
}

func (f *fakeIntegrationRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	row, ok := f.rows[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	if v, ok := updates["is_active"].(bool); ok {
		row.IsActive = v
	}
	return nil
}

func (f *fakeIntegrationRepo) Delete(_ dbctx.Context, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

type groupKey struct {
	integrationID uuid.UUID
	externalID    string
}

type fakeParentGroupRepo struct {
	rows map[groupKey]*types.ParentGroupData
}

func newFakeParentGroupRepo(rows ...*types.ParentGroupData) *fakeParentGroupRepo {
	f := &fakeParentGroupRepo{rows: make(map[groupKey]*types.ParentGroupData)}
	for _, row := range rows {
		f.rows[groupKey{row.IntegrationID, row.ExternalID}] = row
	}
	return f
}

func (f *fakeParentGroupRepo) Create(_ dbctx.Context, group *types.ParentGroupData) error {
	f.rows[groupKey{group.IntegrationID, group.ExternalID}] = group
	return nil
}

func (f *fakeParentGroupRepo) GetByExternalID(_ dbctx.Context, integrationID uuid.UUID, externalID string) (*types.ParentGroupData, error) {
	row, ok := f.rows[groupKey{integrationID, externalID}]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeParentGroupRepo) ListByIntegration(_ dbctx.Context, integrationID uuid.UUID) ([]*types.ParentGroupData, error) {
	var out []*types.ParentGroupData
	for key, row := range f.rows {
		if key.integrationID == integrationID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeParentGroupRepo) SetStatus(_ dbctx.Context, integrationID uuid.UUID, externalID string, status types.Status) error {
	row, ok := f.rows[groupKey{integrationID, externalID}]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	row.Status = status
	return nil
}

func (f *fakeParentGroupRepo) SetStatusLastRun(_ dbctx.Context, integrationID uuid.UUID, externalID string, status types.Status, lastRun time.Time) error {
	row, ok := f.rows[groupKey{integrationID, externalID}]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	row.Status = status
	row.LastRun = &lastRun
	return nil
}

func (f *fakeParentGroupRepo) UpdateCounts(_ dbctx.Context, integrationID uuid.UUID, externalID string, counts map[string]interface{}) error {
	row, ok := f.rows[groupKey{integrationID, externalID}]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	if v, ok := counts["node_count"].(int); ok {
		row.NodeCount = v
	}
	if v, ok := counts["edge_count"].(int); ok {
		row.EdgeCount = v
	}
	if v, ok := counts["record_count"].(int); ok {
		row.RecordCount = v
	}
	return nil
}

func (f *fakeParentGroupRepo) UpdateFields(_ dbctx.Context, integrationID uuid.UUID, externalID string, updates map[string]interface{}) error {
	row, ok := f.rows[groupKey{integrationID, externalID}]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	if v, ok := updates["name"].(string); ok {
		row.Name = v
	}
	if v, ok := updates["raw_response"].(datatypes.JSON); ok {
		row.RawResponse = v
	}
	return nil
}

func (f *fakeParentGroupRepo) DeleteByIntegration(_ dbctx.Context, integrationID uuid.UUID) error {
	for key := range f.rows {
		if key.integrationID == integrationID {
			delete(f.rows, key)
		}
	}
	return nil
}

func (f *fakeParentGroupRepo) get(integrationID uuid.UUID, externalID string) *types.ParentGroupData {
	return f.rows[groupKey{integrationID, externalID}]
}

type fakeProcessingJobRepo struct {
	rows  map[uuid.UUID]*types.ChunkProcessingJob
	order []uuid.UUID
}

func newFakeProcessingJobRepo(rows ...*types.ChunkProcessingJob) *fakeProcessingJobRepo {
	f := &fakeProcessingJobRepo{rows: make(map[uuid.UUID]*types.ChunkProcessingJob)}
	for _, row := range rows {
		f.rows[row.ID] = row
		f.order = append(f.order, row.ID)
	}
	return f
}

func (f *fakeProcessingJobRepo) Create(_ dbctx.Context, job *types.ChunkProcessingJob) error {
	f.rows[job.ID] = job
	f.order = append(f.order, job.ID)
	return nil
}

func (f *fakeProcessingJobRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.ChunkProcessingJob, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeProcessingJobRepo) ListByParentGroup(_ dbctx.Context, integrationID uuid.UUID, parentGroupID string) ([]*types.ChunkProcessingJob, error) {
	var out []*types.ChunkProcessingJob
	for _, id := range f.order {
		row := f.rows[id]
		if row.IntegrationID == integrationID && row.ParentGroupID == parentGroupID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProcessingJobRepo) DeleteByIntegration(_ dbctx.Context, integrationID uuid.UUID) error {
	keep := f.order[:0]
	for _, id := range f.order {
		if f.rows[id].IntegrationID == integrationID {
			delete(f.rows, id)
			continue
		}
		keep = append(keep, id)
	}
	f.order = keep
	return nil
}

func (f *fakeProcessingJobRepo) SetStatus(_ dbctx.Context, id uuid.UUID, status types.Status) error {
	row, ok := f.rows[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	row.Status = status
	return nil
}

type fakeVectorRepo struct {
	counts map[string]int
}

func newFakeVectorRepo() *fakeVectorRepo {
	return &fakeVectorRepo{counts: make(map[string]int)}
}

func (f *fakeVectorRepo) Upsert(_ dbctx.Context, vector *types.UpsertedVector) error {
	f.counts[vector.ParentGroupID]++
	return nil
}

func (f *fakeVectorRepo) CountByParentGroup(_ dbctx.Context, parentGroupID string) (int, error) {
	return f.counts[parentGroupID], nil
}

func (f *fakeVectorRepo) DeleteByParentGroup(_ dbctx.Context, parentGroupID string) error {
	delete(f.counts, parentGroupID)
	return nil
}

type fakeQueue struct {
	items [][]byte
	pops  int
}

func (f *fakeQueue) Push(_ context.Context, _ types.SourceType, _ string, payload []byte) error {
	f.items = append(f.items, payload)
	return nil
}

func (f *fakeQueue) Pop(_ context.Context, _ types.SourceType, _ string, _ time.Duration) ([]byte, error) {
	f.pops++
	if len(f.items) == 0 {
		return nil, nil
	}
	payload := f.items[0]
	f.items = f.items[1:]
	return payload, nil
}

type fakeChunkStore struct {
	data map[string][]byte
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{data: make(map[string][]byte)}
}

func (f *fakeChunkStore) Put(_ context.Context, key string, payload []byte) error {
	f.data[key] = payload
	return nil
}

func (f *fakeChunkStore) Get(_ context.Context, key string) ([]byte, error) {
	payload, ok := f.data[key]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return payload, nil
}

type fakeDiscoverer struct {
	groups []DiscoveredGroup
	err    error
}

func (f *fakeDiscoverer) Discover(context.Context) ([]DiscoveredGroup, error) {
	return f.groups, f.err
}

// itemSplitter emits its fixed item set in max-sized chunks, the shape every
// real splitter produces.
type itemSplitter struct {
	items []json.RawMessage
	err   error
}

func (s *itemSplitter) Split(_ context.Context, desc GroupDescriptor, maxItems int, emit func(Chunk) error) error {
	if s.err != nil {
		return s.err
	}
	ordinal := 0
	for start := 0; start < len(s.items); start += maxItems {
		end := start + maxItems
		if end > len(s.items) {
			end = len(s.items)
		}
		chunk := Chunk{
			ID:            strconv.Itoa(ordinal),
			ParentGroupID: desc.ID,
			Content:       s.items[start:end],
		}
		if err := emit(chunk); err != nil {
			return err
		}
		ordinal++
	}
	return nil
}

// fakeApplier fails every call when err is set and failAfter is zero;
// with failAfter set it applies that many items first.
type fakeApplier struct {
	applied   []json.RawMessage
	err       error
	failAfter int
}

func (f *fakeApplier) Apply(_ context.Context, _ Chunk, item json.RawMessage) error {
	if f.err != nil && len(f.applied) >= f.failAfter {
		return f.err
	}
	f.applied = append(f.applied, item)
	return nil
}

type fakeCounter struct {
	nodes int
	edges int
}

func (f *fakeCounter) NodeCount(context.Context, string) (int, error) { return f.nodes, nil }
func (f *fakeCounter) EdgeCount(context.Context, string) (int, error) { return f.edges, nil }

func testLogger() *logger.Logger {
	log, _ := logger.New("test")
	return log
}
