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

// Package chart computes the geometry of stacked bar charts: bounds,
// bar rectangles, axis ticks and hover tooltips. It does not draw
// anything, all results are numbers in pixel space.
package chart

import (
	"sort"
)

// Frame is a set of equally long columns (one per key) stacked on
// top of each other. Positive values stack up from the zero line,
// negative ones stack down, which gives the mirrored look of e.g. a
// revenues vs. costs chart.
type Frame struct {
	Keys     []string             `json:"keys"`
	Columns  map[string][]float64 `json:"columns"`
	Len      int                  `json:"len"`
	Positive []float64            `json:"positive"` // per index sum of positive values
	Negative []float64            `json:"negative"` // per index sum of negative values
	Lower    float64              `json:"lower"`    // <= 0
	Upper    float64              `json:"upper"`    // >= 0
	Percent  bool                 `json:"percent"`
}

// Stack builds a Frame. Keys are stacked in the given order, keys
// that are present in columns but not in order follow in
// alphabetical order, keys in order but not in columns are
// skipped. Columns shorter than the longest one are padded with zeros
// at the beginning (i.e. they are aligned on "now").
func Stack(columns map[string][]float64, order []string) *Frame {
	f := &Frame{Columns: make(map[string][]float64, len(columns))}

	seen := make(map[string]bool, len(columns))
	for _, key := range order {
		if _, ok := columns[key]; ok && !seen[key] {
			f.Keys = append(f.Keys, key)
			seen[key] = true
		}
	}
	var rest []string
	for key := range columns {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	f.Keys = append(f.Keys, rest...)

	for _, col := range columns {
		if len(col) > f.Len {
			f.Len = len(col)
		}
	}
	for _, key := range f.Keys {
		col := columns[key]
		padded := make([]float64, f.Len)
		copy(padded[f.Len-len(col):], col)
		f.Columns[key] = padded
	}

	f.sum()
	return f
}

// sum computes the per index sums and the bounds.
func (f *Frame) sum() {
	f.Positive = make([]float64, f.Len)
	f.Negative = make([]float64, f.Len)
	f.Lower, f.Upper = 0, 0
	for _, key := range f.Keys {
		for i, v := range f.Columns[key] {
			if v > 0 {
				f.Positive[i] += v
			} else {
				f.Negative[i] += v
			}
		}
	}
	for i := 0; i < f.Len; i++ {
		if f.Positive[i] > f.Upper {
			f.Upper = f.Positive[i]
		}
		if f.Negative[i] < f.Lower {
			f.Lower = f.Negative[i]
		}
	}
}

// ToPercent returns a copy of the frame in which, at every index, the
// positive values add up to 100 and the negative ones to -100. An
// index without positive (or negative) values stays zero.
func (f *Frame) ToPercent() *Frame {
	pf := &Frame{
		Keys:    append([]string(nil), f.Keys...),
		Columns: make(map[string][]float64, len(f.Columns)),
		Len:     f.Len,
		Percent: true,
	}
	for _, key := range f.Keys {
		col := make([]float64, f.Len)
		for i, v := range f.Columns[key] {
			if v > 0 {
				col[i] = v / f.Positive[i] * 100
			} else if v < 0 {
				col[i] = -v / f.Negative[i] * 100
			}
		}
		pf.Columns[key] = col
	}
	pf.sum()
	return pf
}

// Value returns the value of key at index i, zero if there is none.
func (f *Frame) Value(key string, i int) float64 {
	col := f.Columns[key]
	if i < 0 || i >= len(col) {
		return 0
	}
	return col[i]
}

// MapRange maps v from the range [inLo, inHi] onto [outLo, outHi]
// linearly. It does not clamp. An empty input range maps everything
// to outLo.
func MapRange(v, inLo, inHi, outLo, outHi float64) float64 {
	if inHi == inLo {
		return outLo
	}
	return outLo + (v-inLo)*(outHi-outLo)/(inHi-inLo)
}

// Bar is a rectangle in pixel space, Y pointing down from the top of
// the chart.
type Bar struct {
	Key   string  `json:"key"`
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
}

// ZeroY is the pixel position of the zero line in a chart of the
// given height.
func (f *Frame) ZeroY(height float64) float64 {
	return MapRange(0, f.Lower, f.Upper, height, 0)
}

// Bars returns the rectangles of a chart of the given size. Zero
// values produce no bar.
func (f *Frame) Bars(width, height float64) []Bar {
	if f.Len == 0 || f.Upper == f.Lower {
		return nil
	}
	var (
		bars  []Bar
		w     = width / float64(f.Len)
		scale = height / (f.Upper - f.Lower)
		zero  = f.ZeroY(height)
	)
	for i := 0; i < f.Len; i++ {
		var up, down float64 // stacked so far, in pixels
		for _, key := range f.Keys {
			v := f.Columns[key][i]
			if v == 0 {
				continue
			}
			h := v * scale
			bar := Bar{Key: key, Index: i, X: float64(i) * w, W: w}
			if v > 0 {
				up += h
				bar.Y, bar.H = zero-up, h
			} else {
				bar.Y, bar.H = zero+down, -h
				down -= h
			}
			bars = append(bars, bar)
		}
	}
	return bars
}
