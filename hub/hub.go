//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hub pushes ticks and full histories to WebSocket
// subscribers. A subscriber follows one player.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/serde"
	"github.com/energetica/chartd/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chartd", Subsystem: "hub", Name: "subscribers", Help: "Connected subscribers."})
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chartd", Subsystem: "hub", Name: "messages_sent_total", Help: "Messages queued, by type."}, []string{"type"})
	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chartd", Subsystem: "hub", Name: "messages_dropped_total", Help: "Tick messages dropped on a full queue."})
)

// Snapshotter provides the full history of a player.
type Snapshotter interface {
	Snapshot(ctx context.Context, player string) (map[string]rrd.SeriesState, error)
}

type Hub struct {
	sync.RWMutex
	subs map[string]map[uuid.UUID]*subscriber // by player

	// Snapshots must be set before the first subscriber connects.
	Snapshots  Snapshotter
	QueueSize  int
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration

	upgrader websocket.Upgrader
}

type subscriber struct {
	id     uuid.UUID
	player string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex // guards holding and held
	holding bool
	held    [][]byte
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// enqueue queues data for writing. Unless block is set, a full queue
// drops data and returns false.
func (s *subscriber) enqueue(data []byte, block bool) bool {
	if block {
		select {
		case s.send <- data:
			return true
		case <-s.done:
			return false
		}
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// publish queues a tick, or keeps it aside while a snapshot is being
// taken. It returns false if the tick was dropped.
func (s *subscriber) publish(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holding {
		if len(s.held) >= cap(s.send) {
			return false
		}
		s.held = append(s.held, data)
		return true
	}
	return s.enqueue(data, false)
}

func (s *subscriber) hold() {
	s.mu.Lock()
	s.holding = true
	s.mu.Unlock()
}

// release queues the ticks held since hold, after whatever was
// queued in the meantime.
func (s *subscriber) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, data := range s.held {
		if !s.enqueue(data, false) {
			messagesDropped.Inc()
		}
	}
	s.held = nil
	s.holding = false
}

func New(snap Snapshotter) *Hub {
	return &Hub{
		subs:       make(map[string]map[uuid.UUID]*subscriber),
		Snapshots:  snap,
		QueueSize:  1024,
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 50 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) register(s *subscriber) {
	h.Lock()
	defer h.Unlock()
	m, ok := h.subs[s.player]
	if !ok {
		m = make(map[uuid.UUID]*subscriber)
		h.subs[s.player] = m
	}
	m[s.id] = s
	subscribersGauge.Inc()
}

func (h *Hub) unregister(s *subscriber) {
	h.Lock()
	defer h.Unlock()
	if m, ok := h.subs[s.player]; ok {
		if _, ok := m[s.id]; ok {
			delete(m, s.id)
			subscribersGauge.Dec()
		}
		if len(m) == 0 {
			delete(h.subs, s.player)
		}
	}
}

// Subscribers returns the number of subscribers of player.
func (h *Hub) Subscribers(player string) int {
	h.RLock()
	defer h.RUnlock()
	return len(h.subs[player])
}

// PublishTick sends a tick to all subscribers of player. A subscriber
// whose queue is full misses it and will notice the gap.
func (h *Hub) PublishTick(player string, key session.MetricKey, value float64, tick int64) {
	h.RLock()
	defer h.RUnlock()
	m := h.subs[player]
	if len(m) == 0 {
		return
	}
	data, err := json.Marshal(&TickMessage{
		Type:        TypeTick,
		Category:    key.Category,
		Subcategory: key.Subcategory,
		Value:       value,
		Tick:        tick,
	})
	if err != nil {
		log.Printf("PublishTick(): ERROR: %v", err)
		return
	}
	for _, s := range m {
		if s.publish(data) {
			messagesSent.WithLabelValues(TypeTick).Inc()
		} else {
			messagesDropped.Inc()
		}
	}
}

// sendSnapshot queues the full history of the subscriber's player.
// Ticks published meanwhile follow it, those it already contains are
// stale to the client.
func (h *Hub) sendSnapshot(ctx context.Context, s *subscriber) error {
	s.hold()
	defer s.release()
	states, err := h.Snapshots.Snapshot(ctx, s.player)
	if errors.Is(err, serde.ErrNotFound) {
		states, err = map[string]rrd.SeriesState{}, nil
	}
	if err != nil {
		return err
	}
	data, err := json.Marshal(&SnapshotMessage{Type: TypeGetCharts, Data: states})
	if err != nil {
		return err
	}
	if s.enqueue(data, true) {
		messagesSent.WithLabelValues(TypeGetCharts).Inc()
	}
	return nil
}

// ServeWS upgrades the connection and serves player's subscription
// until the connection is closed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, player string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ServeWS(): upgrade failed: %v", err)
		return
	}
	s := &subscriber{
		id:     uuid.New(),
		player: player,
		conn:   conn,
		send:   make(chan []byte, h.QueueSize),
		done:   make(chan struct{}),
	}
	s.hold() // no tick may overtake the first snapshot
	h.register(s)
	defer h.unregister(s)
	defer s.close()

	go h.writePump(s)

	if err := h.sendSnapshot(r.Context(), s); err != nil {
		log.Printf("ServeWS(): %s: snapshot failed: %v", player, err)
		return
	}
	h.readPump(r.Context(), s)
}

// readPump handles client requests until the connection fails.
func (h *Hub) readPump(ctx context.Context, s *subscriber) {
	s.conn.SetReadDeadline(time.Now().Add(h.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(h.PongWait))
		return nil
	})
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("readPump(): %s %s: %v", s.player, s.id, err)
			}
			return
		}
		switch msg.Type {
		case TypeResync:
			if err := h.sendSnapshot(ctx, s); err != nil {
				log.Printf("readPump(): %s: snapshot failed: %v", s.player, err)
				return
			}
		default:
			log.Printf("readPump(): %s: ignoring message of type %q", s.player, msg.Type)
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(h.PingPeriod)
	defer ticker.Stop()
	defer s.close()
	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(h.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(h.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.RLock()
	defer h.RUnlock()
	for _, m := range h.subs {
		for _, s := range m {
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(h.WriteWait))
			s.close()
		}
	}
}
