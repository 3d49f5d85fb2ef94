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
	"github.com/energetica/chartd/rrd"
)

// Message types.
const (
	TypeGetCharts = "getCharts" // full history of a player
	TypeTick      = "tick"      // one value of one metric
	TypeResync    = "resync"    // client asks for getCharts
)

// SnapshotMessage carries the state of every series of a player keyed
// by category.subcategory.
type SnapshotMessage struct {
	Type string                     `json:"type"`
	Data map[string]rrd.SeriesState `json:"data"`
}

type TickMessage struct {
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Value       float64 `json:"value"`
	Tick        int64   `json:"tick"`
}

// Message is any message, used for decoding.
type Message struct {
	Type        string                     `json:"type"`
	Data        map[string]rrd.SeriesState `json:"data,omitempty"`
	Category    string                     `json:"category,omitempty"`
	Subcategory string                     `json:"subcategory,omitempty"`
	Value       float64                    `json:"value,omitempty"`
	Tick        int64                      `json:"tick,omitempty"`
}
