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
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
)

// HoverIndex converts a mouse x position (relative to the left edge
// of the chart) into a data index in [0, n-1].
func HoverIndex(x, width float64, n int) int {
	if n <= 0 || math.IsNaN(x) || !(width > 0) || math.IsInf(width, 1) {
		return 0
	}
	x = math.Max(0, math.Min(width, x))
	i := int(math.Floor(MapRange(x, 0, width, 0, float64(n))))
	if i < 0 {
		i = 0
	}
	if i >= n {
		i = n - 1
	}
	return i
}

// TooltipLine is one line of a hover tooltip.
type TooltipLine struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

// Tooltip returns the values at index i whose absolute value exceeds
// threshold, negative ones first, each group in key order. format
// renders the value, FormatPower is used when it is nil.
func (f *Frame) Tooltip(i int, threshold float64, format func(float64) string) []TooltipLine {
	if format == nil {
		format = FormatPower
	}
	if f.Percent {
		format = FormatPercent
	}
	var neg, pos []TooltipLine
	for _, key := range f.Keys {
		v := f.Value(key, i)
		switch {
		case v < -threshold:
			neg = append(neg, TooltipLine{key, v, format(v)})
		case v > threshold:
			pos = append(pos, TooltipLine{key, v, format(v)})
		}
	}
	return append(neg, pos...)
}

// FormatPower renders watts with an SI prefix, e.g. "12.5 MW".
func FormatPower(w float64) string {
	return humanize.SIWithDigits(w, 2, "W")
}

// FormatEnergy renders watt-hours with an SI prefix.
func FormatEnergy(wh float64) string {
	return humanize.SIWithDigits(wh, 2, "Wh")
}

// FormatMoney renders whole money amounts with thousands separators,
// e.g. "-1,235".
func FormatMoney(v float64) string {
	return humanize.CommafWithDigits(math.Round(v), 0)
}

// FormatMass renders kilograms as tons past 1000 kg (emissions).
func FormatMass(kg float64) string {
	if math.Abs(kg) >= 1000 {
		return humanize.CommafWithDigits(kg/1000, 1) + " t"
	}
	return humanize.CommafWithDigits(kg, 0) + " kg"
}

// FormatPercent renders a percentage with no decimals.
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.0f%%", p)
}

// FormatAgo renders how long ago a point is, e.g. "2 hours 40
// minutes ago". Zero (or less) is "now".
func FormatAgo(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	return durafmt.Parse(d).LimitFirstN(2).String() + " ago"
}

// FormatSpan renders the time covered by a chart, e.g. "6 days".
func FormatSpan(d time.Duration) string {
	return durafmt.Parse(d).LimitFirstN(2).String()
}

// Ago is how long ago the point at index i of a frame of length n
// is, each point covering ticks ticks of tick duration.
func Ago(i, n int, ticks int64, tick time.Duration) time.Duration {
	return time.Duration(int64(n-i-1)*ticks) * tick
}
