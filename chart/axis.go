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

package chart

import (
	"math"
)

// Tick is a y axis tick. Height is measured in pixels up from the
// bottom of the chart.
type Tick struct {
	Value  float64 `json:"value"`
	Height float64 `json:"height"`
}

// TickInterval returns a round interval for splitting span into
// about divisions parts: span/divisions truncated to its first
// significant digit, e.g. 347/3 -> 100, 3470/3 -> 1000, 90/3 -> 30.
func TickInterval(span float64, divisions int) float64 {
	if divisions < 1 {
		divisions = 1
	}
	interval := span / float64(divisions)
	if interval <= 0 || math.IsNaN(interval) || math.IsInf(interval, 0) {
		return 0
	}
	mag := math.Pow(10, math.Floor(math.Log10(interval)))
	return math.Floor(interval/mag) * mag
}

// YTicks returns the ticks of a y axis from lower to upper (lower <= 0
// <= upper) on a chart of the given height. Ticks are multiples of
// TickInterval, starting at zero and going up to upper, then from
// minus one interval down to lower.
func YTicks(lower, upper, height float64, divisions int) []Tick {
	interval := TickInterval(upper-lower, divisions)
	if interval == 0 {
		return []Tick{{Value: 0, Height: 0}}
	}
	var ticks []Tick
	for i := 0.0; i <= upper; i += interval {
		ticks = append(ticks, Tick{i, MapRange(i, lower, upper, 0, height)})
	}
	for i := -interval; i >= lower; i -= interval {
		ticks = append(ticks, Tick{i, MapRange(i, lower, upper, 0, height)})
	}
	return ticks
}

// Label is a time axis label positioned at X pixels from the left.
type Label struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
}

// TimeLabels spreads the labels evenly over width, first label at 0,
// last at width.
func TimeLabels(labels []string, width float64) []Label {
	result := make([]Label, len(labels))
	for i, text := range labels {
		x := 0.0
		if len(labels) > 1 {
			x = width * float64(i) / float64(len(labels)-1)
		}
		result[i] = Label{Text: text, X: x}
	}
	return result
}
