package pipeline

import (
	"context"
	"encoding/json"
	"time"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/platform/envutil"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

// GroupDescriptor is the queue wire format: one serialized parent group per
// queue entry. Oldest is the incremental watermark, nil on a first run.
// RawAPIResponse carries the source's original group object so downstream
// stages never have to re-fetch it.
type GroupDescriptor struct {
	IntegrationID  string          `json:"integration_id"`
	Namespace      string          `json:"namespace"`
	Type           types.GroupType `json:"type"`
	ID             string          `json:"id"`
	Oldest         *string         `json:"oldest"`
	RawAPIResponse json.RawMessage `json:"raw_api_response"`
}

// Chunk is the cache wire format handed from the worker to one execution
// job. ID is the chunk's ordinal within its group, as a string so it can also
// serve as a name component. TS carries the descriptor's watermark, nil on a
// first run. ContentType discriminates heterogeneous item kinds (GitHub pull
// requests vs issues); sources with a single item kind leave it empty.
type Chunk struct {
	ID                        string            `json:"id"`
	ParentGroupID             string            `json:"parent_group_id"`
	ParentGroupRawAPIResponse json.RawMessage   `json:"parent_group_raw_api_response"`
	TS                        *string           `json:"ts"`
	Content                   []json.RawMessage `json:"content"`
	ContentType               string            `json:"content_type,omitempty"`
}

// DiscoveredGroup is one parent group found during a scheduler pass, before
// it is reconciled against persisted rows.
type DiscoveredGroup struct {
	ExternalID     string
	Name           string
	Type           types.GroupType
	RawAPIResponse json.RawMessage
}

// ParentGroupDiscoverer enumerates the parent groups visible to an
// integration's credentials. Implemented per source.
type ParentGroupDiscoverer interface {
	Discover(ctx context.Context) ([]DiscoveredGroup, error)
}

// ChunkSplitter streams one group's items from the source API and emits them
// as bounded chunks. Implementations must emit chunks in ordinal order and
// must not emit an empty chunk. A non-nil error from emit aborts the split.
type ChunkSplitter interface {
	Split(ctx context.Context, desc GroupDescriptor, maxItems int, emit func(Chunk) error) error
}

// ChunkApplier writes one item of a chunk into the knowledge stores.
type ChunkApplier interface {
	Apply(ctx context.Context, chunk Chunk, item json.RawMessage) error
}

// Config is the pipeline's tunable surface, read from the environment the
// same way everywhere so the scheduler, worker and execution job agree on
// limits.
type Config struct {
	// QueueTimeout bounds a single blocking pop so the worker can re-check
	// admission between waits.
	QueueTimeout time.Duration
	// MaxObjectsInJob caps the items packed into one chunk.
	MaxObjectsInJob int
	// MaxProcessingJobs caps concurrently live execution jobs per source.
	MaxProcessingJobs int
	// PollInterval is the worker's pause when the queue is empty or
	// admission is refused.
	PollInterval time.Duration
	// ChunkTTL bounds how long an unconsumed chunk payload survives in the
	// cache.
	ChunkTTL time.Duration
}

// LoadConfig reads pipeline tuning from the environment with the defaults
// the deployment manifests assume.
func LoadConfig(log *logger.Logger) Config {
	return Config{
		QueueTimeout:      envutil.GetEnvAsDuration("QUEUE_TIMEOUT", 30*time.Second, log),
		MaxObjectsInJob:   envutil.GetEnvAsInt("MAX_OBJECTS_IN_JOB", 1000, log),
		MaxProcessingJobs: envutil.GetEnvAsInt("MAX_PROCESSING_JOBS", 2, log),
		PollInterval:      envutil.GetEnvAsDuration("WORKER_POLL_INTERVAL", 10*time.Second, log),
		ChunkTTL:          envutil.GetEnvAsDuration("CHUNK_TTL", 24*time.Hour, log),
	}
}
