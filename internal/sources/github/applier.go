package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weftlabs/weft-backend/internal/graph"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/vector"
)

// workItem is the shared slice of a pull request or issue payload the
// applier consumes. GitHub issue and PR objects agree on these fields.
type workItem struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	User   *struct {
		Login string `json:"login"`
	} `json:"user"`
	HTMLURL string `json:"html_url"`
}

// Applier writes one pull request or issue into the knowledge stores: the
// item node, its repository, its author, BELONGS_TO and AUTHORED_BY edges,
// and one embedded vector of title plus body.
type Applier struct {
	graph     graph.Store
	vectors   vector.Store
	namespace string
	log       *logger.Logger
}

func NewApplier(graphStore graph.Store, vectors vector.Store, namespace string, baseLog *logger.Logger) *Applier {
	return &Applier{
		graph:     graphStore,
		vectors:   vectors,
		namespace: namespace,
		log:       baseLog.With("applier", "github"),
	}
}

func (a *Applier) Apply(ctx context.Context, chunk pipeline.Chunk, item json.RawMessage) error {
	var label string
	switch chunk.ContentType {
	case ContentTypePullRequest:
		label = "PullRequest"
	case ContentTypeIssue:
		label = "Issue"
	default:
		return fmt.Errorf("github: unknown chunk content type %q", chunk.ContentType)
	}

	var work workItem
	if err := json.Unmarshal(item, &work); err != nil {
		return fmt.Errorf("github: unmarshal %s: %w", chunk.ContentType, err)
	}
	if work.Number == 0 {
		return fmt.Errorf("github: %s without number in chunk %s", chunk.ContentType, chunk.ID)
	}

	repoID := chunk.ParentGroupID
	itemID := fmt.Sprintf("%s#%d", repoID, work.Number)

	if err := a.graph.MergeNode(ctx, graph.Node{
		Label:         "GithubRepository",
		ID:            repoID,
		ParentGroupID: repoID,
		Props:         map[string]any{"full_name": repoID},
	}); err != nil {
		return err
	}
	if err := a.graph.MergeNode(ctx, graph.Node{
		Label:         label,
		ID:            itemID,
		ParentGroupID: repoID,
		Props: map[string]any{
			"number": work.Number,
			"title":  work.Title,
			"state":  work.State,
			"url":    work.HTMLURL,
		},
	}); err != nil {
		return err
	}
	if err := a.graph.MergeEdge(ctx, graph.Edge{
		Type:          "BELONGS_TO",
		FromLabel:     label,
		FromID:        itemID,
		ToLabel:       "GithubRepository",
		ToID:          repoID,
		ParentGroupID: repoID,
	}); err != nil {
		return err
	}

	if work.User != nil && work.User.Login != "" {
		if err := a.graph.MergeNode(ctx, graph.Node{
			Label:         "GithubUser",
			ID:            work.User.Login,
			ParentGroupID: repoID,
			Props:         map[string]any{"login": work.User.Login},
		}); err != nil {
			return err
		}
		if err := a.graph.MergeEdge(ctx, graph.Edge{
			Type:          "AUTHORED_BY",
			FromLabel:     label,
			FromID:        itemID,
			ToLabel:       "GithubUser",
			ToID:          work.User.Login,
			ParentGroupID: repoID,
		}); err != nil {
			return err
		}
	}

	body := strings.TrimSpace(work.Title + "\n\n" + NormalizeBody(work.Body, repoID))
	if body == "" {
		return nil
	}
	return a.vectors.UpsertRecords(ctx, a.namespace, repoID, []vector.Record{{
		ID:   itemID,
		Text: body,
		Metadata: map[string]any{
			"source": "github",
			"repo":   repoID,
			"type":   chunk.ContentType,
			"number": work.Number,
		},
	}})
}

var _ pipeline.ChunkApplier = (*Applier)(nil)
