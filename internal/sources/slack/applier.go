package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/weftlabs/weft-backend/internal/graph"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/vector"
)

// message is the slice of a Slack history message the applier consumes.
type message struct {
	Timestamp string `json:"ts"`
	User      string `json:"user"`
	Text      string `json:"text"`
}

// channelInfo is the slice of the channel object staged alongside a chunk.
type channelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Applier writes one Slack message into the knowledge stores: the message
// as a text node, its author as a person node, POSTED_BY and PART_OF edges,
// and one embedded vector of the Markdown body.
type Applier struct {
	source    *Source
	graph     graph.Store
	vectors   vector.Store
	namespace string
	log       *logger.Logger

	mu    sync.Mutex
	users map[string]string
}

func NewApplier(source *Source, graphStore graph.Store, vectors vector.Store, namespace string, baseLog *logger.Logger) *Applier {
	return &Applier{
		source:    source,
		graph:     graphStore,
		vectors:   vectors,
		namespace: namespace,
		log:       baseLog.With("applier", "slack"),
		users:     make(map[string]string),
	}
}

func (a *Applier) Apply(ctx context.Context, chunk pipeline.Chunk, item json.RawMessage) error {
	var msg message
	if err := json.Unmarshal(item, &msg); err != nil {
		return fmt.Errorf("slack: unmarshal message: %w", err)
	}
	if msg.Timestamp == "" {
		return fmt.Errorf("slack: message without ts in chunk %s", chunk.ID)
	}

	var channel channelInfo
	if len(chunk.ParentGroupRawAPIResponse) > 0 {
		_ = json.Unmarshal(chunk.ParentGroupRawAPIResponse, &channel)
	}
	if channel.ID == "" {
		channel.ID = chunk.ParentGroupID
	}

	body := ToMarkdown(msg.Text, func(id string) string { return a.resolveUser(ctx, id) })
	messageID := chunk.ParentGroupID + ":" + msg.Timestamp

	if err := a.graph.MergeNode(ctx, graph.Node{
		Label:         "SlackChannel",
		ID:            channel.ID,
		ParentGroupID: chunk.ParentGroupID,
		Props:         map[string]any{"name": channel.Name},
	}); err != nil {
		return err
	}
	if err := a.graph.MergeNode(ctx, graph.Node{
		Label:         "SlackMessage",
		ID:            messageID,
		ParentGroupID: chunk.ParentGroupID,
		Props: map[string]any{
			"ts":   msg.Timestamp,
			"text": body,
		},
	}); err != nil {
		return err
	}
	if err := a.graph.MergeEdge(ctx, graph.Edge{
		Type:          "PART_OF",
		FromLabel:     "SlackMessage",
		FromID:        messageID,
		ToLabel:       "SlackChannel",
		ToID:          channel.ID,
		ParentGroupID: chunk.ParentGroupID,
	}); err != nil {
		return err
	}

	if msg.User != "" {
		if err := a.graph.MergeNode(ctx, graph.Node{
			Label:         "SlackUser",
			ID:            msg.User,
			ParentGroupID: chunk.ParentGroupID,
			Props:         map[string]any{"name": a.resolveUser(ctx, msg.User)},
		}); err != nil {
			return err
		}
		if err := a.graph.MergeEdge(ctx, graph.Edge{
			Type:          "POSTED_BY",
			FromLabel:     "SlackMessage",
			FromID:        messageID,
			ToLabel:       "SlackUser",
			ToID:          msg.User,
			ParentGroupID: chunk.ParentGroupID,
		}); err != nil {
			return err
		}
	}

	if strings.TrimSpace(body) == "" {
		return nil
	}
	return a.vectors.UpsertRecords(ctx, a.namespace, chunk.ParentGroupID, []vector.Record{{
		ID:   messageID,
		Text: body,
		Metadata: map[string]any{
			"source":  "slack",
			"channel": channel.ID,
			"ts":      msg.Timestamp,
		},
	}})
}

// resolveUser memoizes user ID to display name lookups for the lifetime of
// one execution job. Lookup failures fall back to the raw ID.
func (a *Applier) resolveUser(ctx context.Context, id string) string {
	a.mu.Lock()
	if name, ok := a.users[id]; ok {
		a.mu.Unlock()
		return name
	}
	a.mu.Unlock()

	name := id
	if a.source != nil {
		if info, err := a.source.client.GetUserInfoContext(ctx, id); err == nil {
			if info.Profile.DisplayName != "" {
				name = info.Profile.DisplayName
			} else if info.RealName != "" {
				name = info.RealName
			} else if info.Name != "" {
				name = info.Name
			}
		} else {
			a.log.Debug("user lookup failed", "user_id", id, "error", err)
		}
	}

	a.mu.Lock()
	a.users[id] = name
	a.mu.Unlock()
	return name
}

var _ pipeline.ChunkApplier = (*Applier)(nil)
