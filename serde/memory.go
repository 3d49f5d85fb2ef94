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

package serde

import (
	"context"
	"sync"

	"github.com/energetica/chartd/rrd"
)

// memSerDe keeps rows in memory, it is used when no database is
// configured and in tests.
type memSerDe struct {
	*sync.RWMutex
	byPlayer map[string][]levelRow
	flushes  int
}

func NewMemSerDe() *memSerDe {
	return &memSerDe{RWMutex: &sync.RWMutex{}, byPlayer: make(map[string][]levelRow)}
}

func (m *memSerDe) FetchSession(_ context.Context, player string) (map[string]rrd.SeriesState, error) {
	m.RLock()
	defer m.RUnlock()
	rows, ok := m.byPlayer[player]
	if !ok {
		return nil, ErrNotFound
	}
	return assemble(copyRows(rows))
}

func (m *memSerDe) FlushSession(_ context.Context, player string, states map[string]rrd.SeriesState) error {
	m.Lock()
	defer m.Unlock()
	m.flushes++

	replaced := make(map[string]bool, len(states))
	for metric := range states {
		replaced[metric] = true
	}
	var rows []levelRow
	for _, row := range m.byPlayer[player] {
		if !replaced[row.metric] {
			rows = append(rows, row)
		}
	}
	m.byPlayer[player] = append(rows, copyRows(flatten(states))...)
	return nil
}

// Flushes returns the number of FlushSession calls so far.
func (m *memSerDe) Flushes() int {
	m.RLock()
	defer m.RUnlock()
	return m.flushes
}

func (m *memSerDe) Close() error { return nil }

func copyRows(rows []levelRow) []levelRow {
	result := make([]levelRow, len(rows))
	for i, row := range rows {
		row.dp = append([]float64(nil), row.dp...)
		result[i] = row
	}
	return result
}
