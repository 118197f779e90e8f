package vector

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/weftlabs/weft-backend/internal/clients/openai"
	"github.com/weftlabs/weft-backend/internal/clients/pinecone"
	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

const (
	upsertBatchSize      = 100
	maxConcurrentUpserts = 4
)

// Record is one embeddable item. ID must be stable across re-processing so
// upserts overwrite instead of duplicating.
type Record struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Store embeds records and writes them to the vector index, mirroring each
// write into the vectors table so record counts can be recomputed from
// Postgres. The index namespace is the tenant namespace, prefixed, so one
// index can serve every tenant without mixing their vectors.
type Store interface {
	UpsertRecords(ctx context.Context, namespace, parentGroupID string, records []Record) error
	PurgeParentGroup(ctx context.Context, namespace, parentGroupID string) error
}

type store struct {
	log        *logger.Logger
	embedder   openai.Client
	pc         pinecone.Client
	vectorRepo integrations.VectorRepo
	indexName  string
	indexHost  string
	nsPrefix   string
}

func NewStore(log *logger.Logger, embedder openai.Client, pc pinecone.Client, vectorRepo integrations.VectorRepo) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedding client required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}

	indexName := strings.TrimSpace(os.Getenv("PINECONE_INDEX_NAME"))
	if indexName == "" {
		return nil, fmt.Errorf("missing PINECONE_INDEX_NAME")
	}

	host := strings.TrimSpace(os.Getenv("PINECONE_INDEX_HOST"))
	nsPrefix := strings.TrimSpace(os.Getenv("PINECONE_NAMESPACE_PREFIX"))
	if nsPrefix == "" {
		nsPrefix = "weft"
	}

	// If host missing, bootstrap via describe_index (fine for local/dev; avoid in prod).
	if host == "" {
		desc, err := pc.DescribeIndex(context.Background(), indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = strings.TrimSpace(desc.Host)
		if host == "" {
			return nil, fmt.Errorf("pinecone describe_index returned empty host")
		}
		log.Warn("PINECONE_INDEX_HOST not set; resolved via describe_index (avoid this in production)",
			"index_name", indexName,
			"index_host", host,
		)
	}

	return &store{
		log:        log.With("service", "VectorStore"),
		embedder:   embedder,
		pc:         pc,
		vectorRepo: vectorRepo,
		indexName:  indexName,
		indexHost:  host,
		nsPrefix:   nsPrefix,
	}, nil
}

func (s *store) UpsertRecords(ctx context.Context, namespace, parentGroupID string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("vector: embed %d records: %w", len(records), err)
	}
	if len(embeddings) != len(records) {
		return fmt.Errorf("vector: got %d embeddings for %d records", len(embeddings), len(records))
	}

	vectors := make([]pinecone.Vector, 0, len(records))
	for i, rec := range records {
		md := make(map[string]any, len(rec.Metadata)+1)
		for k, v := range rec.Metadata {
			md[k] = v
		}
		md["parent_group_id"] = parentGroupID
		vectors = append(vectors, pinecone.Vector{
			ID:       rec.ID,
			Values:   embeddings[i],
			Metadata: md,
		})
	}
	// Pinecone caps upsert payload size; push batches with bounded parallelism.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUpserts)
	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		batch := vectors[start:end]
		g.Go(func() error {
			if _, err := s.pc.UpsertVectors(gctx, s.indexHost, pinecone.UpsertRequest{
				Namespace: s.qualifyNamespace(namespace),
				Vectors:   batch,
			}); err != nil {
				return fmt.Errorf("vector: upsert %d vectors: %w", len(batch), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	dbc := dbctx.New(ctx)
	for _, rec := range records {
		if err := s.vectorRepo.Upsert(dbc, &types.UpsertedVector{
			VectorID:      rec.ID,
			ParentGroupID: parentGroupID,
		}); err != nil {
			return fmt.Errorf("vector: record vector %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (s *store) PurgeParentGroup(ctx context.Context, namespace, parentGroupID string) error {
	_, err := s.pc.DeleteVectors(ctx, s.indexHost, pinecone.DeleteRequest{
		Namespace: s.qualifyNamespace(namespace),
		Filter:    map[string]any{"parent_group_id": parentGroupID},
	})
	if err != nil {
		return fmt.Errorf("vector: purge %s: %w", parentGroupID, err)
	}
	return nil
}

func (s *store) qualifyNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return s.nsPrefix
	}
	return s.nsPrefix + ":" + ns
}
