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
	"errors"
	"log"

	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/session"
)

// dispatcher is the only goroutine that modifies sessions.
func (r *Receiver) dispatcher() {
	defer r.dispatcherWg.Done()
	log.Printf("  - dispatcher started.")
	for t := range r.tickCh {
		r.apply(t)
	}
	log.Printf("  - dispatcher exiting.")
}

func (r *Receiver) apply(t *IncomingTick) {
	ticksReceived.Inc()

	if !r.accepts(t.Key) {
		ticksRejected.WithLabelValues("category").Inc()
		return
	}

	c, err := r.sessions.getOrLoad(context.Background(), t.Player)
	if err != nil {
		log.Printf("dispatcher: ERROR loading session: %v", err)
		ticksRejected.WithLabelValues("load").Inc()
		return
	}

	c.Lock()
	padded, reset, err := ingestTick(c.cs, t.Key, t.Value, t.Tick, r.MaxGapFill)
	if err == nil || padded > 0 || reset {
		c.dirty = true
	}
	c.Unlock()

	ticksPadded.Add(float64(padded))
	if reset {
		seriesReset.Inc()
		log.Printf("dispatcher: %s %s: gap too large at tick %d, series reset.", t.Player, t.Key, t.Tick)
	}
	if err != nil {
		reason := rejectReason(err)
		ticksRejected.WithLabelValues(reason).Inc()
		if debug {
			log.Printf("dispatcher: %s %s rejected (%s): %v", t.Player, t.Key, reason, err)
		}
		return
	}

	ticksApplied.Inc()
	if r.pub != nil {
		r.pub.PublishTick(t.Player, t.Key, t.Value, t.Tick)
	}
}

// ingestTick ingests value, handling a gap before tick: up to
// maxGapFill missing ticks are filled with zeros, a larger gap resets
// the series, which then starts over at tick.
func ingestTick(cs *session.ChartSession, key session.MetricKey, value float64, tick, maxGapFill int64) (padded int64, reset bool, err error) {
	err = cs.Ingest(key, value, tick)
	var gap *rrd.TickGapError
	if !errors.As(err, &gap) {
		return 0, false, err
	}
	if gap.Missing() <= maxGapFill {
		if padded, err = cs.Pad(key, 0, tick-1); err != nil {
			return padded, false, err
		}
	} else {
		cs.ResetSeries(key)
		reset = true
	}
	return padded, reset, cs.Ingest(key, value, tick)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, rrd.ErrStaleTick):
		return "stale"
	case errors.Is(err, rrd.ErrNonFinite):
		return "non_finite"
	case errors.Is(err, rrd.ErrInvalidTick):
		return "invalid_tick"
	}
	return "other"
}
