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
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/energetica/chartd/rrd"
)

func stateAt(value float64, ticks int64) rrd.SeriesState {
	s := rrd.NewSeries()
	for tick := int64(1); tick <= ticks; tick++ {
		s.Ingest(value, tick)
	}
	return s.State()
}

func TestFlattenAssemble(t *testing.T) {
	states := map[string]rrd.SeriesState{
		"revenues.industry": stateAt(12.5, 40),
		"demand.research":   stateAt(3, 7),
	}
	rows := flatten(states)
	if len(rows) != 2*rrd.NumLevels {
		t.Fatalf("flatten: %d rows", len(rows))
	}
	if rows[0].metric != "demand.research" || rows[0].level != 0 || rows[rrd.NumLevels].metric != "revenues.industry" {
		t.Errorf("rows not ordered by metric and level")
	}
	back, err := assemble(rows)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, states) {
		t.Errorf("assemble(flatten(x)) != x")
	}
}

func TestAssembleErrors(t *testing.T) {
	good := flatten(map[string]rrd.SeriesState{"a.b": stateAt(1, 3)})

	missing := good[:rrd.NumLevels-1]
	if _, err := assemble(missing); err == nil {
		t.Errorf("missing level should fail")
	}

	badTick := copyRows(good)
	badTick[2].tick = 99
	if _, err := assemble(badTick); err == nil {
		t.Errorf("inconsistent tick should fail")
	}

	badLevel := copyRows(good)
	badLevel[0].level = rrd.NumLevels
	if _, err := assemble(badLevel); err == nil {
		t.Errorf("invalid level should fail")
	}
}

func TestMemSerDe(t *testing.T) {
	ctx := context.Background()
	m := NewMemSerDe()

	if _, err := m.FetchSession(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchSession of unknown player: %v", err)
	}

	st := stateAt(5, 10)
	if err := m.FlushSession(ctx, "alice", map[string]rrd.SeriesState{"revenues.industry": st, "demand.research": st}); err != nil {
		t.Fatal(err)
	}
	// mutating the caller's copy must not leak into storage
	st.Levels[0][rrd.LevelSize-1] = 1e9

	newer := stateAt(6, 11)
	if err := m.FlushSession(ctx, "alice", map[string]rrd.SeriesState{"revenues.industry": newer}); err != nil {
		t.Fatal(err)
	}

	got, err := m.FetchSession(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 metrics, got %d", len(got))
	}
	if got["revenues.industry"].TickCount != 11 || got["demand.research"].TickCount != 10 {
		t.Errorf("tick counts: %d, %d", got["revenues.industry"].TickCount, got["demand.research"].TickCount)
	}
	if v := got["demand.research"].Levels[0][rrd.LevelSize-1]; v != 5 {
		t.Errorf("stored value changed through caller's slice: %v", v)
	}
	if m.Flushes() != 2 {
		t.Errorf("Flushes() = %d", m.Flushes())
	}
	if err := m.Close(); err != nil {
		t.Error(err)
	}
}

func TestInitDbOpenError(t *testing.T) {
	saved := sqlOpen
	defer func() { sqlOpen = saved }()
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("no db") }

	if _, err := InitDb(context.Background(), "host=nowhere", ""); err == nil {
		t.Errorf("expected an error")
	}
}
