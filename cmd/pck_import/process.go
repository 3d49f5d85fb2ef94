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

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/serde"
	"github.com/energetica/chartd/session"
	pickle "github.com/hydrogen18/stalecucumber"
)

// importFile stores the history in path as the session of player and
// returns the number of series stored.
func importFile(ctx context.Context, db serde.SerDe, path, player string, tick int64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	states, err := loadHistory(f, tick)
	if err != nil {
		return 0, err
	}
	if err := db.FlushSession(ctx, player, states); err != nil {
		return 0, err
	}
	return len(states), nil
}

// loadHistory decodes {category: {subcategory: [level0, ..., level4]}}.
func loadHistory(r io.Reader, tick int64) (map[string]rrd.SeriesState, error) {
	cats, err := pickle.Dict(pickle.Unpickle(r))
	if err != nil {
		return nil, err
	}

	states := make(map[string]rrd.SeriesState)
	for c, v := range cats {
		cat, err := pickle.String(c, nil)
		subs, err := pickle.Dict(v, err)
		if err != nil {
			return nil, fmt.Errorf("category %v: %w", c, err)
		}
		for s, lv := range subs {
			sub, err := pickle.String(s, nil)
			if err != nil {
				return nil, fmt.Errorf("%s: subcategory %v: %w", cat, s, err)
			}
			key, err := session.NewMetricKey(cat, sub)
			if err != nil {
				return nil, err
			}
			levels, err := loadLevels(lv)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			st := rrd.SeriesState{TickCount: tick, Levels: levels}
			if err := st.Validate(); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			states[key.String()] = st
		}
	}
	return states, nil
}

func loadLevels(v interface{}) ([][]float64, error) {
	items, err := pickle.ListOrTuple(v, nil)
	if err != nil {
		return nil, err
	}
	if len(items) != rrd.NumLevels {
		return nil, fmt.Errorf("expected %d levels, got %d", rrd.NumLevels, len(items))
	}
	levels := make([][]float64, rrd.NumLevels)
	for r, item := range items {
		vals, err := pickle.ListOrTuple(item, nil)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", r, err)
		}
		if levels[r], err = fitLevel(vals); err != nil {
			return nil, fmt.Errorf("level %d: %w", r, err)
		}
	}
	return levels, nil
}

// fitLevel keeps the newest LevelSize values, left-padding shorter
// histories with zeros.
func fitLevel(vals []interface{}) ([]float64, error) {
	if len(vals) > rrd.LevelSize {
		vals = vals[len(vals)-rrd.LevelSize:]
	}
	level := make([]float64, rrd.LevelSize)
	offset := rrd.LevelSize - len(vals)
	for i, v := range vals {
		f, err := pickle.Float(v, nil)
		if err != nil {
			n, ierr := pickle.Int(v, nil)
			if ierr != nil {
				return nil, err
			}
			f = float64(n)
		}
		level[offset+i] = f
	}
	return level, nil
}
