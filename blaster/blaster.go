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

// Package blaster provides some stress testing capabilities: a
// simulation clock producing a tick of every metric of every
// synthetic player.
package blaster

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/energetica/chartd/session"
	"golang.org/x/time/rate"
)

type Blaster struct {
	nPlayers int
	metrics  []session.MetricKey
	rcvr     tickQueuer
	limiter  *rate.Limiter
	prefix   string
	period   int64 // ticks per sinusoid cycle
	tick     int64
	cancel   context.CancelFunc
	done     chan struct{}

	mu sync.Mutex
}

type tickQueuer interface {
	QueueTick(player string, key session.MetricKey, value float64, tick int64)
}

// DefaultMetrics are blasted when no metrics are given. Imports are
// negative.
var DefaultMetrics = []session.MetricKey{
	{Category: "revenues", Subcategory: "industry"},
	{Category: "revenues", Subcategory: "exports"},
	{Category: "revenues", Subcategory: "imports"},
	{Category: "generation", Subcategory: "steam_engine"},
	{Category: "generation", Subcategory: "windmill"},
	{Category: "demand", Subcategory: "industry"},
}

func New(rcvr tickQueuer, prefix string, metrics []session.MetricKey) *Blaster {
	if len(metrics) == 0 {
		metrics = DefaultMetrics
	}
	if prefix == "" {
		prefix = "blaster"
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Blaster{
		rcvr:    rcvr,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Limit(0), 1), // Zero limit allows no events
		prefix:  prefix,
		period:  360,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go blast(ctx, b)
	return b
}

// SetRate sets the number of simulation ticks per second.
func (b *Blaster) SetRate(perSec int) {
	// No need to lock, limiters arleady have a lock
	b.limiter.SetLimit(rate.Limit(perSec))
	log.Printf("Blaster: rate is now: %v ticks per second, nPlayers is: %v.", perSec, b.players())
}

func (b *Blaster) SetNPlayers(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nPlayers = n
	log.Printf("Blaster: nPlayers is now: %v, rate is: %v ticks per second.", n, b.limiter.Limit())
}

func (b *Blaster) players() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nPlayers
}

func (b *Blaster) Stop() {
	b.cancel()
	<-b.done
}

func playerName(prefix string, n int) string {
	return fmt.Sprintf("%s%04d", prefix, n)
}

// cycle advances the clock by one tick and queues a value of every
// metric of every player. It returns the number of values queued.
func (b *Blaster) cycle() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.nPlayers == 0 {
		return 0
	}

	b.tick++
	cnt := 0
	for p := 0; p < b.nPlayers; p++ {
		player := playerName(b.prefix, p)
		for i, key := range b.metrics {
			// The offset shifts each sinusoid to the right a bit
			// for a fancier stacked chart.
			offset := int64(p*7 + i*13)
			y := (sinTick(b.tick+offset, b.period) + 1.5) * 1000 * float64(i+1)
			if key.Subcategory == "imports" {
				y = -y
			}
			b.rcvr.QueueTick(player, key, y, b.tick)
			cnt++
		}
	}
	return cnt
}

func blast(ctx context.Context, b *Blaster) {
	defer close(b.done)

	cnt := 0
	lastStat := time.Now()
	statPeriod := 10 * time.Second

	for {
		if b.limiter.Limit() == 0 {
			// rate.Limiter has a bug - Limit of zero should allow no events, but it
			// aparently allows infinite events?
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if err := b.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		cnt += b.cycle()

		if time.Since(lastStat) > statPeriod {
			log.Printf("Blaster: tick: %d values: %d \tper/sec: %v", b.currentTick(), cnt, float64(cnt)/time.Since(lastStat).Seconds())
			cnt = 0
			lastStat = time.Now()
		}
	}
}

func (b *Blaster) currentTick() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tick
}

// Given a tick, return a Y value that will draw a sinusoid with the
// given period in ticks.
func sinTick(tick, period int64) float64 {
	x := 2 * math.Pi / float64(period) * float64(tick%period)
	return math.Sin(x)
}
