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

// Package receiver manages the receiving end of the ticks. All of the
// queueing, session caching, gap handling and periodic flushing
// logic is here.
package receiver

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/serde"
	"github.com/energetica/chartd/session"
)

var debug bool

func init() {
	debug = os.Getenv("CHARTD_RCVR_DEBUG") != ""
}

// Publisher is told about every applied tick.
type Publisher interface {
	PublishTick(player string, key session.MetricKey, value float64, tick int64)
}

type Receiver struct {
	serde               serde.SerDe
	pub                 Publisher
	MaxCachedSessions   int
	FlushInterval       time.Duration
	MaxFlushesPerSecond int
	MaxGapFill          int64
	TickDuration        time.Duration
	Categories          map[string]bool // empty accepts all
	ReportRuntime       bool

	sessions     *sessionCache
	tickCh       chan *IncomingTick
	flushCh      chan *flushRequest
	stopCh       chan struct{}
	dispatcherWg sync.WaitGroup
	flusherWg    sync.WaitGroup
	periodicWg   sync.WaitGroup
}

// IncomingTick is the value of one metric of one player at a tick.
type IncomingTick struct {
	Player string
	Key    session.MetricKey
	Value  float64
	Tick   int64
}

func New(db serde.SerDe, pub Publisher) *Receiver {
	return &Receiver{
		serde:               db,
		pub:                 pub,
		MaxCachedSessions:   1024,
		FlushInterval:       time.Minute,
		MaxFlushesPerSecond: 100,
		MaxGapFill:          rrd.Base,
		TickDuration:        session.DefaultTickDuration,
		ReportRuntime:       true,
		tickCh:              make(chan *IncomingTick, 65536), // so we can survive a graceful restart
		flushCh:             make(chan *flushRequest, 1024),
		stopCh:              make(chan struct{}),
	}
}

func (r *Receiver) Start() error {
	log.Printf("Receiver: starting...")
	sc, err := newSessionCache(r.MaxCachedSessions, r.serde, r.TickDuration, r.evicted)
	if err != nil {
		return err
	}
	r.sessions = sc

	r.flusherWg.Add(1)
	go flusher(&r.flusherWg, r.serde, r.flushCh, newFlushLimiter(r.MaxFlushesPerSecond))

	if r.FlushInterval > 0 {
		r.periodicWg.Add(1)
		go r.periodicFlusher(r.FlushInterval)
	}
	if r.ReportRuntime {
		r.periodicWg.Add(1)
		go reportRuntime(&r.periodicWg, r.stopCh)
	}

	r.dispatcherWg.Add(1)
	go r.dispatcher()

	log.Printf("Receiver: Ready.")
	return nil
}

// Stop applies the ticks still queued, flushes all cached sessions
// and waits for the flusher to finish.
func (r *Receiver) Stop() {
	log.Printf("Receiver: closing tick channel...")
	close(r.tickCh)
	r.dispatcherWg.Wait()
	log.Printf("Receiver: dispatcher finished.")

	close(r.stopCh)
	r.periodicWg.Wait()

	log.Printf("Receiver: flushing %d cached sessions...", r.sessions.len())
	r.flushAll()
	close(r.flushCh)
	r.flusherWg.Wait()
	log.Printf("Receiver: flusher finished.")
}

// QueueTick enqueues a tick. Ticks are applied in the order they were
// queued.
func (r *Receiver) QueueTick(player string, key session.MetricKey, value float64, tick int64) {
	defer func() { recover() }() // if we're writing to a closed channel below
	r.tickCh <- &IncomingTick{Player: player, Key: key, Value: value, Tick: tick}
}

func (r *Receiver) accepts(key session.MetricKey) bool {
	return len(r.Categories) == 0 || r.Categories[key.Category]
}

// Snapshot returns the state of all series of player, from the cache
// if the player is cached, from storage otherwise.
func (r *Receiver) Snapshot(ctx context.Context, player string) (map[string]rrd.SeriesState, error) {
	if c := r.sessions.peek(player); c != nil {
		c.Lock()
		defer c.Unlock()
		return c.cs.Export(), nil
	}
	return r.serde.FetchSession(ctx, player)
}

// View returns a private copy of the session of player, free to be
// configured and read without locking.
func (r *Receiver) View(ctx context.Context, player string) (*session.ChartSession, error) {
	states, err := r.Snapshot(ctx, player)
	if err != nil {
		return nil, err
	}
	cs := session.New(r.TickDuration)
	if err := cs.Import(states); err != nil {
		return nil, err
	}
	return cs, nil
}
