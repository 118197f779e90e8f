package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	slackapi "github.com/slack-go/slack"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

const historyPageSize = 200

// Source adapts the Slack Web API to the pipeline: channels are the parent
// groups, channel messages are the items.
type Source struct {
	client *slackapi.Client
	log    *logger.Logger
}

func NewSource(log *logger.Logger) (*Source, error) {
	if log == nil {
		return nil, fmt.Errorf("slack: logger required")
	}
	token := strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("slack: missing SLACK_BOT_TOKEN")
	}
	return &Source{
		client: slackapi.New(token),
		log:    log.With("source", "slack"),
	}, nil
}

// Discover lists every non-archived channel the bot can see, private ones
// included. Pagination is cursor driven; an empty next cursor ends the walk.
func (s *Source) Discover(ctx context.Context) ([]pipeline.DiscoveredGroup, error) {
	var out []pipeline.DiscoveredGroup
	cursor := ""
	for {
		channels, next, err := s.client.GetConversationsContext(ctx, &slackapi.GetConversationsParameters{
			Cursor:          cursor,
			ExcludeArchived: true,
			Limit:           historyPageSize,
			Types:           []string{"public_channel", "private_channel"},
		})
		if err != nil {
			return nil, fmt.Errorf("slack: list conversations: %w", err)
		}
		for _, ch := range channels {
			raw, err := json.Marshal(ch)
			if err != nil {
				return nil, fmt.Errorf("slack: marshal channel %s: %w", ch.ID, err)
			}
			out = append(out, pipeline.DiscoveredGroup{
				ExternalID:     ch.ID,
				Name:           ch.Name,
				Type:           types.GroupSlackChannel,
				RawAPIResponse: raw,
			})
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

// Split walks a channel's history from the watermark forward and emits the
// messages in maxItems-sized chunks. Messages with a subtype (joins, topic
// changes, bot noise) carry no ingestable content and are skipped.
func (s *Source) Split(ctx context.Context, desc pipeline.GroupDescriptor, maxItems int, emit func(pipeline.Chunk) error) error {
	params := &slackapi.GetConversationHistoryParameters{
		ChannelID: desc.ID,
		Limit:     historyPageSize,
	}
	if desc.Oldest != nil {
		params.Oldest = *desc.Oldest
	}

	ordinal := 0
	buf := make([]json.RawMessage, 0, maxItems)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		chunk := pipeline.Chunk{
			ID:                        strconv.Itoa(ordinal),
			ParentGroupID:             desc.ID,
			ParentGroupRawAPIResponse: desc.RawAPIResponse,
			TS:                        desc.Oldest,
			Content:                   buf,
		}
		buf = make([]json.RawMessage, 0, maxItems)
		ordinal++
		return emit(chunk)
	}

	for {
		resp, err := s.client.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return fmt.Errorf("slack: history %s: %w", desc.ID, err)
		}
		for _, msg := range resp.Messages {
			if msg.SubType != "" {
				continue
			}
			raw, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("slack: marshal message %s: %w", msg.Timestamp, err)
			}
			buf = append(buf, raw)
			if len(buf) >= maxItems {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		cursor := ""
		if resp.ResponseMetaData.NextCursor != "" {
			cursor = resp.ResponseMetaData.NextCursor
		}
		if cursor == "" {
			return flush()
		}
		params.Cursor = cursor
	}
}

var (
	_ pipeline.ParentGroupDiscoverer = (*Source)(nil)
	_ pipeline.ChunkSplitter         = (*Source)(nil)
)
