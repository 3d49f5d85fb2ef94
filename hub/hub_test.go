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

package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/serde"
	"github.com/energetica/chartd/session"
	"github.com/gorilla/websocket"
)

type fakeSnapshots map[string]map[string]rrd.SeriesState

func (f fakeSnapshots) Snapshot(_ context.Context, player string) (map[string]rrd.SeriesState, error) {
	if states, ok := f[player]; ok {
		return states, nil
	}
	return nil, serde.ErrNotFound
}

func stateAt(value float64, ticks int64) rrd.SeriesState {
	s := rrd.NewSeries()
	for tick := int64(1); tick <= ticks; tick++ {
		s.Ingest(value, tick)
	}
	return s.State()
}

func startHub(t *testing.T, snaps fakeSnapshots) (*Hub, *httptest.Server) {
	h := New(snaps)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, r.URL.Query().Get("player"))
	}))
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, player string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?player=" + player
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHub(t *testing.T) {
	h, srv := startHub(t, fakeSnapshots{
		"alice": {"revenues.industry": stateAt(10, 3)},
	})
	defer srv.Close()

	conn := dial(t, srv, "alice")
	defer conn.Close()

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeGetCharts || msg.Data["revenues.industry"].TickCount != 3 {
		t.Fatalf("first message = %+v", msg)
	}
	if h.Subscribers("alice") != 1 {
		t.Errorf("Subscribers(alice) = %d", h.Subscribers("alice"))
	}

	h.PublishTick("bob", session.MetricKey{Category: "revenues", Subcategory: "industry"}, 1, 1)
	h.PublishTick("alice", session.MetricKey{Category: "revenues", Subcategory: "industry"}, 0, 4)

	msg = Message{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeTick || msg.Category != "revenues" || msg.Subcategory != "industry" || msg.Tick != 4 || msg.Value != 0 {
		t.Errorf("tick message = %+v", msg)
	}

	if err := conn.WriteJSON(map[string]string{"type": TypeResync}); err != nil {
		t.Fatal(err)
	}
	msg = Message{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeGetCharts {
		t.Errorf("resync answer = %+v", msg)
	}
}

func TestHubUnknownPlayer(t *testing.T) {
	h, srv := startHub(t, fakeSnapshots{})
	defer srv.Close()

	conn := dial(t, srv, "nobody")
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeGetCharts || len(msg.Data) != 0 {
		t.Errorf("unknown player should get an empty history, got %+v", msg)
	}
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for h.Subscribers("nobody") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not unregistered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubscriberEnqueue(t *testing.T) {
	s := &subscriber{send: make(chan []byte, 1), done: make(chan struct{})}
	if !s.enqueue([]byte("a"), false) {
		t.Errorf("first enqueue should succeed")
	}
	if s.enqueue([]byte("b"), false) {
		t.Errorf("enqueue on a full queue should drop")
	}
	close(s.done)
	if s.enqueue([]byte("c"), true) {
		t.Errorf("blocking enqueue on a closed subscriber should fail")
	}
}

// publishingSnapshots publishes a tick while the snapshot is taken, as
// the receiver may when a tick arrives during a connect.
type publishingSnapshots struct {
	h     *Hub
	state rrd.SeriesState
}

func (p *publishingSnapshots) Snapshot(_ context.Context, player string) (map[string]rrd.SeriesState, error) {
	key := session.MetricKey{Category: "revenues", Subcategory: "industry"}
	p.h.PublishTick(player, key, 10, 3) // already in the snapshot
	p.h.PublishTick(player, key, 20, 4)
	return map[string]rrd.SeriesState{key.String(): p.state}, nil
}

func TestHubTickDuringSnapshot(t *testing.T) {
	h := New(nil)
	h.Snapshots = &publishingSnapshots{h: h, state: stateAt(10, 3)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, r.URL.Query().Get("player"))
	}))
	defer srv.Close()

	conn := dial(t, srv, "alice")
	defer conn.Close()

	var msgs []Message
	for i := 0; i < 3; i++ {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		msgs = append(msgs, msg)
	}
	if msgs[0].Type != TypeGetCharts {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[1].Type != TypeTick || msgs[1].Tick != 3 || msgs[2].Type != TypeTick || msgs[2].Tick != 4 {
		t.Errorf("ticks after the snapshot = %+v, %+v", msgs[1], msgs[2])
	}
}

func TestSubscriberHold(t *testing.T) {
	s := &subscriber{send: make(chan []byte, 2), done: make(chan struct{})}
	s.hold()
	if !s.publish([]byte("t1")) || !s.publish([]byte("t2")) {
		t.Errorf("held ticks should be accepted")
	}
	if s.publish([]byte("t3")) {
		t.Errorf("holding more than the queue size should drop")
	}
	if len(s.send) != 0 {
		t.Errorf("held ticks were queued")
	}
	s.release()
	if got := string(<-s.send) + string(<-s.send); got != "t1t2" {
		t.Errorf("released %q", got)
	}
	if !s.publish([]byte("t4")) || string(<-s.send) != "t4" {
		t.Errorf("publish after release should queue")
	}
}
