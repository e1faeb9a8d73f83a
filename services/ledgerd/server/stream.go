package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"liquidityhub/core/events"
)

const wsWriteTimeout = 10 * time.Second

// StreamEvent is the websocket payload for one committed ledger event.
type StreamEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Sequence   uint64            `json:"sequence,omitempty"`
}

type subscriber struct {
	asset string
	ch    chan StreamEvent
}

// Hub fans committed ledger events out to websocket subscribers. It
// implements events.Emitter so the engine can publish into it directly. Slow
// subscribers lose events rather than stall the engine.
type Hub struct {
	logger *slog.Logger
	buffer int

	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]*subscriber
	dropped uint64
}

var _ events.Emitter = (*Hub)(nil)

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, buffer: buffer, subs: make(map[uint64]*subscriber)}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	ledgerEvent, ok := evt.(events.LedgerEvent)
	if !ok || h == nil {
		return
	}
	rendered := ledgerEvent.Event()
	if rendered == nil {
		return
	}
	payload := StreamEvent{ID: uuid.NewString(), Type: rendered.Type, Attributes: rendered.Attributes}
	asset := rendered.Attribute("asset")

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.asset != "" && sub.asset != asset {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			h.dropped++
			h.logger.Warn("stream subscriber lagging, event dropped", "asset", asset, "type", rendered.Type)
		}
	}
}

// Subscribe registers a listener for events of asset, or of every asset when
// asset is empty. The returned cancel function must be called to release it.
func (h *Hub) Subscribe(asset string) (<-chan StreamEvent, func()) {
	sub := &subscriber{asset: strings.TrimSpace(asset), ch: make(chan StreamEvent, h.buffer)}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber's
// buffer was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	asset := normalizeID(r.URL.Query().Get("asset"))
	from, err := parseUintParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Subscribe before replaying so nothing committed in between is missed;
	// the replay and the live feed may overlap.
	updates, cancel := s.hub.Subscribe(asset)
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, asset, from, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Debug("stream closed", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, asset string, from uint64, updates <-chan StreamEvent) error {
	if from > 0 && s.journal != nil {
		backlog, err := s.journal.Journal(ctx, from, maxJournalPage)
		if err != nil {
			return err
		}
		for _, entry := range backlog {
			if asset != "" && entry.Attributes["asset"] != asset {
				continue
			}
			payload := StreamEvent{ID: entry.Hash, Type: entry.Type, Attributes: entry.Attributes, Sequence: entry.Sequence}
			if err := writeStreamEvent(ctx, conn, payload); err != nil {
				return err
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeStreamEvent(ctx, conn, update); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, payload StreamEvent) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
