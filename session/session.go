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

// Package session holds the chart state of one player: a series per
// metric plus the view settings used to turn them into charts.
package session

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/energetica/chartd/chart"
	"github.com/energetica/chartd/rrd"
)

var (
	ErrResyncRequired  = errors.New("session out of sync, full history required")
	ErrUnknownCategory = errors.New("unknown category")
)

// DefaultTickDuration is the in-game time of one tick.
const DefaultTickDuration = 4 * time.Minute

// ChartSession is not safe for concurrent use, callers serialize
// access to it.
type ChartSession struct {
	series      map[MetricKey]*rrd.Series
	res         rrd.Resolution
	percent     bool
	tick        time.Duration
	needsResync bool
}

// New returns an empty session. A tick of zero means
// DefaultTickDuration.
func New(tick time.Duration) *ChartSession {
	if tick <= 0 {
		tick = DefaultTickDuration
	}
	return &ChartSession{
		series: make(map[MetricKey]*rrd.Series),
		res:    rrd.DefaultResolution,
		tick:   tick,
	}
}

func (cs *ChartSession) get(key MetricKey) *rrd.Series {
	s, ok := cs.series[key]
	if !ok {
		s = rrd.NewSeries()
		cs.series[key] = s
	}
	return s
}

// Ingest feeds value into the series of key, creating the series if
// needed. Errors from rrd are returned as is.
func (cs *ChartSession) Ingest(key MetricKey, value float64, tick int64) error {
	return cs.get(key).Ingest(value, tick)
}

// Pad fills the series of key with value up to and including through.
func (cs *ChartSession) Pad(key MetricKey, value float64, through int64) (int64, error) {
	s, ok := cs.series[key]
	if !ok {
		return 0, nil
	}
	return s.Pad(value, through)
}

// ResetSeries zeroes the series of key so that it accepts any tick.
func (cs *ChartSession) ResetSeries(key MetricKey) {
	if s, ok := cs.series[key]; ok {
		s.Reset()
	}
}

// OnTick applies a pushed tick. Ticks already seen are ignored. A
// skipped tick leaves the session needing a resync: ErrResyncRequired
// is returned for it and every following tick until Import.
func (cs *ChartSession) OnTick(category, subcategory string, value float64, tick int64) error {
	if cs.needsResync {
		return ErrResyncRequired
	}
	key, err := NewMetricKey(category, subcategory)
	if err != nil {
		return err
	}
	err = cs.Ingest(key, value, tick)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rrd.ErrStaleTick):
		return nil
	case errors.Is(err, rrd.ErrTickGap):
		cs.needsResync = true
		return fmt.Errorf("%v: %w", err, ErrResyncRequired)
	}
	return err
}

// NeedsResync reports whether a tick gap was detected since the last
// Import.
func (cs *ChartSession) NeedsResync() bool { return cs.needsResync }

// SetResolution selects the resolution by name.
func (cs *ChartSession) SetResolution(name string) error {
	res, err := rrd.FindResolution(name)
	if err != nil {
		return err
	}
	cs.res = res
	return nil
}

func (cs *ChartSession) Resolution() rrd.Resolution { return cs.res }

func (cs *ChartSession) SetPercent(on bool) { cs.percent = on }

func (cs *ChartSession) Percent() bool { return cs.percent }

func (cs *ChartSession) TickDuration() time.Duration { return cs.tick }

// View returns the values of every subcategory of category at the
// selected resolution, oldest first.
func (cs *ChartSession) View(category string) (map[string][]float64, error) {
	view := make(map[string][]float64)
	for key, s := range cs.series {
		if key.Category == category {
			view[key.Subcategory] = cs.res.Slice(s)
		}
	}
	if len(view) == 0 {
		return nil, fmt.Errorf("%q: %w", category, ErrUnknownCategory)
	}
	return view, nil
}

// Frame returns the stacked chart frame of category in the current
// display mode.
func (cs *ChartSession) Frame(category string) (*chart.Frame, error) {
	view, err := cs.View(category)
	if err != nil {
		return nil, err
	}
	f := chart.Stack(view, Subcategories(category))
	if cs.percent {
		f = f.ToPercent()
	}
	return f, nil
}

// Hover describes the data under the mouse.
type Hover struct {
	Index int                 `json:"index"`
	Ago   string              `json:"ago"`
	Lines []chart.TooltipLine `json:"lines"`
}

// Hover returns the tooltip of category at pixel x of a chart of the
// given width. Values not above threshold in absolute terms are left
// out.
func (cs *ChartSession) Hover(category string, x, width, threshold float64, format func(float64) string) (*Hover, error) {
	f, err := cs.Frame(category)
	if err != nil {
		return nil, err
	}
	i := chart.HoverIndex(x, width, f.Len)
	ago := chart.Ago(i, f.Len, cs.res.TicksPerPoint(), cs.tick)
	return &Hover{
		Index: i,
		Ago:   chart.FormatAgo(ago),
		Lines: f.Tooltip(i, threshold, format),
	}, nil
}

// Export returns the state of every series keyed by its textual key.
func (cs *ChartSession) Export() map[string]rrd.SeriesState {
	states := make(map[string]rrd.SeriesState, len(cs.series))
	for key, s := range cs.series {
		states[key.String()] = s.State()
	}
	return states
}

// Import replaces all series with states and clears the resync
// flag. Nothing changes if any state is invalid.
func (cs *ChartSession) Import(states map[string]rrd.SeriesState) error {
	series := make(map[MetricKey]*rrd.Series, len(states))
	for name, st := range states {
		key, err := ParseMetricKey(name)
		if err != nil {
			return err
		}
		s, err := rrd.NewSeriesFromState(st)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		series[key] = s
	}
	cs.series = series
	cs.needsResync = false
	return nil
}

// Keys returns all metric keys, sorted.
func (cs *ChartSession) Keys() []MetricKey {
	keys := make([]MetricKey, 0, len(cs.series))
	for key := range cs.series {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].Subcategory < keys[j].Subcategory
	})
	return keys
}

// Categories returns the distinct categories, sorted.
func (cs *ChartSession) Categories() []string {
	var cats []string
	for _, key := range cs.Keys() {
		if len(cats) == 0 || cats[len(cats)-1] != key.Category {
			cats = append(cats, key.Category)
		}
	}
	return cats
}

// TickCount is the most recent tick of any series.
func (cs *ChartSession) TickCount() int64 {
	var max int64
	for _, s := range cs.series {
		if tc := s.TickCount(); tc > max {
			max = tc
		}
	}
	return max
}

// Len is the number of series.
func (cs *ChartSession) Len() int { return len(cs.series) }
