package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/weftlabs/weft-backend/internal/domain"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

// GroupQueue is the per-(source, integration) FIFO of serialized parent group
// descriptors. Push feeds the head, Pop blocks on the tail, so descriptors
// come out in the order the scheduler enqueued them. Pop is atomic at the
// data-structure level: two workers can never dequeue the same descriptor.
type GroupQueue interface {
	Push(ctx context.Context, source types.SourceType, integrationID string, payload []byte) error
	// Pop blocks up to timeout. A nil payload with a nil error means the
	// timeout elapsed with nothing queued.
	Pop(ctx context.Context, source types.SourceType, integrationID string, timeout time.Duration) ([]byte, error)
}

// ChunkStore is the keyed transient cache execution jobs read their chunk
// payloads from. Payloads can be far too large to pass as process arguments.
type ChunkStore interface {
	Put(ctx context.Context, key string, payload []byte) error
	// Get returns pkgerrors.ErrNotFound for a missing or expired key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// QueueKey builds the redis list key for one integration's descriptor queue.
func QueueKey(source types.SourceType, integrationID string) string {
	return fmt.Sprintf("queue:%s:%s", source, integrationID)
}

// ChunkKey builds the namespace-scoped cache key for one job's chunk payload.
func ChunkKey(namespace, jobName string) string {
	return fmt.Sprintf("%s-%s", namespace, jobName)
}

type redisQueue struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewGroupQueue(rdb *goredis.Client, baseLog *logger.Logger) GroupQueue {
	return &redisQueue{
		rdb: rdb,
		log: baseLog.With("service", "GroupQueue"),
	}
}

func (q *redisQueue) Push(ctx context.Context, source types.SourceType, integrationID string, payload []byte) error {
	key := QueueKey(source, integrationID)
	if err := q.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("queue push %s: %w", key, err)
	}
	return nil
}

func (q *redisQueue) Pop(ctx context.Context, source types.SourceType, integrationID string, timeout time.Duration) ([]byte, error) {
	key := QueueKey(source, integrationID)
	res, err := q.rdb.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue pop %s: %w", key, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("queue pop %s: unexpected reply of length %d", key, len(res))
	}
	return []byte(res[1]), nil
}

type redisChunkStore struct {
	rdb        *goredis.Client
	log        *logger.Logger
	expiration time.Duration
}

func NewChunkStore(rdb *goredis.Client, expiration time.Duration, baseLog *logger.Logger) ChunkStore {
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &redisChunkStore{
		rdb:        rdb,
		log:        baseLog.With("service", "ChunkStore"),
		expiration: expiration,
	}
}

func (s *redisChunkStore) Put(ctx context.Context, key string, payload []byte) error {
	if err := s.rdb.Set(ctx, key, payload, s.expiration).Err(); err != nil {
		return fmt.Errorf("chunk store put %s: %w", key, err)
	}
	return nil
}

func (s *redisChunkStore) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("chunk store get %s: %w", key, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("chunk store get %s: %w", key, err)
	}
	return []byte(res), nil
}
