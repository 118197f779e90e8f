// Package sources maps a SourceType onto the concrete discoverer, splitter
// and applier implementations the pipeline binaries wire up at startup.
package sources

import (
	"context"
	"fmt"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/graph"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/sources/github"
	"github.com/weftlabs/weft-backend/internal/sources/slack"
	"github.com/weftlabs/weft-backend/internal/vector"
)

func NewDiscoverer(ctx context.Context, source types.SourceType, log *logger.Logger) (pipeline.ParentGroupDiscoverer, error) {
	switch source {
	case types.SourceSlack:
		return slack.NewSource(log)
	case types.SourceGithub:
		return github.NewSource(ctx, log)
	default:
		return nil, fmt.Errorf("unknown source type %q: %w", source, pkgerrors.ErrInvalidArgument)
	}
}

func NewSplitter(ctx context.Context, source types.SourceType, log *logger.Logger) (pipeline.ChunkSplitter, error) {
	switch source {
	case types.SourceSlack:
		return slack.NewSource(log)
	case types.SourceGithub:
		return github.NewSource(ctx, log)
	default:
		return nil, fmt.Errorf("unknown source type %q: %w", source, pkgerrors.ErrInvalidArgument)
	}
}

func NewApplier(
	ctx context.Context,
	source types.SourceType,
	graphStore graph.Store,
	vectors vector.Store,
	namespace string,
	log *logger.Logger,
) (pipeline.ChunkApplier, error) {
	switch source {
	case types.SourceSlack:
		src, err := slack.NewSource(log)
		if err != nil {
			return nil, err
		}
		return slack.NewApplier(src, graphStore, vectors, namespace, log), nil
	case types.SourceGithub:
		return github.NewApplier(graphStore, vectors, namespace, log), nil
	default:
		return nil, fmt.Errorf("unknown source type %q: %w", source, pkgerrors.ErrInvalidArgument)
	}
}
