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

package receiver

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/serde"
	"golang.org/x/time/rate"
)

type flushRequest struct {
	player string
	states map[string]rrd.SeriesState
	resp   chan error
}

type flusherChannel chan *flushRequest

func (f flusherChannel) queueBlocking(fr *flushRequest, block bool) error {
	defer func() { recover() }() // if we're writing to a closed channel below
	if block {
		fr.resp = make(chan error, 1)
	}
	f <- fr
	if block {
		return <-fr.resp
	}
	return nil
}

func newFlushLimiter(mfs int) *rate.Limiter {
	if mfs > 0 {
		return rate.NewLimiter(rate.Limit(mfs), mfs)
	}
	return nil
}

var flusher = func(wg *sync.WaitGroup, db serde.SerDe, ch chan *flushRequest, limiter *rate.Limiter) {
	defer wg.Done()
	log.Printf("  - flusher started.")
	for fr := range ch {
		if limiter != nil {
			limiter.Wait(context.Background())
		}
		start := time.Now()
		err := db.FlushSession(context.Background(), fr.player, fr.states)
		flushDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			flushErrors.Inc()
			log.Printf("flusher: ERROR flushing %s: %v", fr.player, err)
		} else {
			flushes.Inc()
		}
		if fr.resp != nil {
			fr.resp <- err
		}
	}
	log.Printf("  - flusher exiting.")
}

// flushSession queues a flush of c if it was modified since its last
// flush.
func (r *Receiver) flushSession(c *cachedSession, block bool) error {
	c.Lock()
	if !c.dirty {
		c.Unlock()
		return nil
	}
	fr := &flushRequest{player: c.player, states: c.cs.Export()}
	c.dirty = false
	c.Unlock()
	return flusherChannel(r.flushCh).queueBlocking(fr, block)
}

// evicted runs on the dispatcher goroutine when the cache drops c. The
// flush blocks so that a reload of the same player sees it.
func (r *Receiver) evicted(c *cachedSession) {
	if debug {
		log.Printf("Receiver: evicting session %s", c.player)
	}
	if err := r.flushSession(c, true); err != nil {
		log.Printf("Receiver: ERROR flushing evicted session %s: %v", c.player, err)
	}
}

func (r *Receiver) flushAll() {
	for _, c := range r.sessions.all() {
		if err := r.flushSession(c, true); err != nil {
			log.Printf("flushAll: ERROR: %v", err)
		}
	}
}

func (r *Receiver) periodicFlusher(interval time.Duration) {
	defer r.periodicWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, c := range r.sessions.all() {
				r.flushSession(c, false)
			}
		case <-r.stopCh:
			return
		}
	}
}
