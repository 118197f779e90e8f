package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const defaultStreamInterval = 5 * time.Second

// subscribeMessage is what a client sends to start or stop watching an
// integration.
type subscribeMessage struct {
	IntegrationID string `json:"integration_id"`
	Unsubscribe   bool   `json:"unsubscribe,omitempty"`
}

// statusEvent is one pushed snapshot. Deleted marks an integration that no
// longer exists; its subscription is dropped after the event.
type statusEvent struct {
	IntegrationID string                            `json:"integration_id"`
	Deleted       bool                              `json:"deleted,omitempty"`
	Integration   *types.Integration                `json:"integration,omitempty"`
	ParentGroups  map[string]*types.ParentGroupData `json:"parent_groups,omitempty"`
}

// StatusStreamHandler pushes aggregated status snapshots over a websocket on
// a fixed cadence, one event per subscribed integration per tick.
type StatusStreamHandler struct {
	log        *logger.Logger
	aggregator *pipeline.Aggregator
	interval   time.Duration
}

func NewStatusStreamHandler(log *logger.Logger, aggregator *pipeline.Aggregator) *StatusStreamHandler {
	return &StatusStreamHandler{
		log:        log.With("handler", "StatusStreamHandler"),
		aggregator: aggregator,
		interval:   defaultStreamInterval,
	}
}

func (h *StatusStreamHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var mu sync.Mutex
	subs := make(map[uuid.UUID]bool)
	done := make(chan struct{})

	// Reader: subscription management only. Closing the connection ends
	// the stream.
	go func() {
		defer close(done)
		for {
			var msg subscribeMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			id, err := uuid.Parse(msg.IntegrationID)
			if err != nil {
				h.log.Debug("ignoring malformed subscription", "integration_id", msg.IntegrationID)
				continue
			}
			mu.Lock()
			if msg.Unsubscribe {
				delete(subs, id)
			} else {
				subs[id] = true
			}
			mu.Unlock()
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		mu.Lock()
		ids := make([]uuid.UUID, 0, len(subs))
		for id := range subs {
			ids = append(ids, id)
		}
		mu.Unlock()

		for _, id := range ids {
			integration, groups, err := h.aggregator.Snapshot(c.Request.Context(), id)
			if err != nil {
				if errors.Is(err, pkgerrors.ErrNotFound) {
					mu.Lock()
					delete(subs, id)
					mu.Unlock()
					if wErr := conn.WriteJSON(statusEvent{IntegrationID: id.String(), Deleted: true}); wErr != nil {
						return
					}
					continue
				}
				h.log.Error("snapshot for stream failed", "integration_id", id.String(), "error", err)
				continue
			}
			if err := conn.WriteJSON(statusEvent{
				IntegrationID: id.String(),
				Integration:   integration,
				ParentGroups:  groups,
			}); err != nil {
				return
			}
		}
	}
}
