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

package rrd

import (
	"fmt"
	"strings"
	"time"
)

// Resolution is a named view of a Series: which level to read and
// how many of its newest values to show.
type Resolution struct {
	Name   string
	Level  int
	Points int      // number of newest values shown, 0 means all
	Labels []string // time axis labels, oldest first, ending with "now"
}

// Resolutions in order of increasing span. The first two both read
// level 0.
var Resolutions = []Resolution{
	{"4h", 0, 60, []string{"4h", "3h20", "2h40", "2h", "1h20", "40min", "now"}},
	{"24h", 0, 0, []string{"24h", "20h", "16h", "12h", "8h", "4h", "now"}},
	{"6 days", 1, 0, []string{"6d", "5d", "4d", "3d", "2d", "1d", "now"}},
	{"6 months", 2, 0, []string{"6m", "5m", "4m", "3m", "2m", "1m (6d)", "now"}},
	{"3 years", 3, 0, []string{"3y", "2.5y", "2y", "1.5y", "1y", "6m", "now"}},
	{"18 years", 4, 0, []string{"18y", "15y", "12y", "9y", "6y", "3y", "now"}},
}

// DefaultResolution is the resolution a new view starts with.
var DefaultResolution = Resolutions[0]

// FindResolution looks up a resolution by name (case insensitive,
// surrounding space ignored).
func FindResolution(name string) (Resolution, error) {
	name = strings.TrimSpace(name)
	for _, res := range Resolutions {
		if strings.EqualFold(res.Name, name) {
			return res, nil
		}
	}
	return Resolution{}, fmt.Errorf("unknown resolution: %q", name)
}

// TicksPerPoint is the number of ticks a single value represents.
func (res Resolution) TicksPerPoint() int64 {
	return Factor(res.Level)
}

// Span is the time covered by the view given the duration of a tick.
func (res Resolution) Span(tick time.Duration) time.Duration {
	n := res.Points
	if n == 0 {
		n = LevelSize
	}
	return time.Duration(int64(n)*res.TicksPerPoint()) * tick
}

// Slice returns the part of s that this resolution shows, oldest
// first.
func (res Resolution) Slice(s *Series) []float64 {
	vals := s.Level(res.Level)
	if res.Points > 0 && res.Points < len(vals) {
		vals = vals[len(vals)-res.Points:]
	}
	return vals
}
