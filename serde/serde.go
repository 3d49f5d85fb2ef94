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

// Package serde stores the series of player sessions.
package serde

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/energetica/chartd/rrd"
)

var ErrNotFound = errors.New("session not found")

// SerDe (serializer/deserializer) loads and saves sessions. States
// are keyed by metric key in category.subcategory form.
type SerDe interface {
	// FetchSession returns ErrNotFound when nothing is stored for
	// player.
	FetchSession(ctx context.Context, player string) (map[string]rrd.SeriesState, error)
	// FlushSession replaces the stored states of the given metrics,
	// other metrics of the player are left alone.
	FlushSession(ctx context.Context, player string, states map[string]rrd.SeriesState) error
	Close() error
}

// levelRow is one level of one series, the unit of storage.
type levelRow struct {
	metric string
	level  int
	tick   int64
	dp     []float64
}

// flatten splits states into rows ordered by metric and level.
func flatten(states map[string]rrd.SeriesState) []levelRow {
	metrics := make([]string, 0, len(states))
	for m := range states {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	rows := make([]levelRow, 0, len(states)*rrd.NumLevels)
	for _, m := range metrics {
		st := states[m]
		for r, level := range st.Levels {
			rows = append(rows, levelRow{metric: m, level: r, tick: st.TickCount, dp: level})
		}
	}
	return rows
}

// assemble is the reverse of flatten. Every resulting state is
// validated.
func assemble(rows []levelRow) (map[string]rrd.SeriesState, error) {
	states := make(map[string]rrd.SeriesState)
	for _, row := range rows {
		if row.level < 0 || row.level >= rrd.NumLevels {
			return nil, fmt.Errorf("%s: invalid level %d", row.metric, row.level)
		}
		st, ok := states[row.metric]
		if !ok {
			st = rrd.SeriesState{TickCount: row.tick, Levels: make([][]float64, rrd.NumLevels)}
		}
		if row.tick != st.TickCount {
			return nil, fmt.Errorf("%s: level %d is at tick %d, expected %d", row.metric, row.level, row.tick, st.TickCount)
		}
		st.Levels[row.level] = row.dp
		states[row.metric] = st
	}
	for m, st := range states {
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
	}
	return states, nil
}
