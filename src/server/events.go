package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"photogallery/src/app"
)

const (
	writeWait      = 10 * time.Second
	subscriberSize = 16
)

// Hub fans label events out to the websocket subscribers of each owner.
type Hub struct {
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	mu   sync.Mutex
	subs map[string]map[chan app.LabelEvent]struct{}
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// The token authorizes the stream, not the origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:  log,
		subs: make(map[string]map[chan app.LabelEvent]struct{}),
	}
}

func (h *Hub) subscribe(owner string) chan app.LabelEvent {
	ch := make(chan app.LabelEvent, subscriberSize)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[owner] == nil {
		h.subs[owner] = make(map[chan app.LabelEvent]struct{})
	}
	h.subs[owner][ch] = struct{}{}
	return ch
}

func (h *Hub) unsubscribe(owner string, ch chan app.LabelEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[owner], ch)
	if len(h.subs[owner]) == 0 {
		delete(h.subs, owner)
	}
}

// Publish delivers ev to every subscriber of owner. Slow subscribers miss
// the event rather than block the publisher.
func (h *Hub) Publish(owner string, ev app.LabelEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[owner] {
		select {
		case ch <- ev:
		default:
			h.log.WithField("owner", owner).Warn("dropping label event for slow subscriber")
		}
	}
}

// Subscribers returns how many streams owner has open.
func (h *Hub) Subscribers(owner string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[owner])
}

func (h *Hub) ServeEvents(c *gin.Context) {
	owner := currentUser(c).ID
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade")
		return
	}
	defer conn.Close()

	ch := h.subscribe(owner)
	defer h.unsubscribe(owner, ch)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
