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

// Package rrd implements a multi-resolution round-robin series: one
// raw value per tick is kept at the finest resolution and rolled up
// into coarser levels as it arrives.
package rrd

import (
	"errors"
	"fmt"
	"math"
)

const (
	NumLevels = 5   // Number of resolution levels
	LevelSize = 360 // Number of values in every level
	Base      = 6   // Each level is Base times coarser than the previous one

	// The top level rolls up from this level rather than level 0.
	topSourceLevel = 1
)

var (
	ErrNonFinite   = errors.New("value is NaN or ±Inf")
	ErrInvalidTick = errors.New("tick count must be positive")
	ErrStaleTick   = errors.New("tick already ingested")
	ErrTickGap     = errors.New("tick count is not contiguous")
)

// TickGapError is returned by Ingest when ticks were skipped. It
// matches ErrTickGap with errors.Is.
type TickGapError struct {
	Last, Got int64
}

func (e *TickGapError) Error() string {
	return fmt.Sprintf("%v: last tick %d, got %d (%d missing)", ErrTickGap, e.Last, e.Got, e.Missing())
}

func (e *TickGapError) Is(target error) bool { return target == ErrTickGap }

// Missing is the number of ticks between Last and Got.
func (e *TickGapError) Missing() int64 { return e.Got - e.Last - 1 }

// Factor returns the number of ticks a single value at level r
// represents, i.e. Base to the power of r.
func Factor(r int) int64 {
	f := int64(1)
	for i := 0; i < r; i++ {
		f *= Base
	}
	return f
}

// Series is a multi-resolution round-robin series. Level 0 holds one
// raw value per tick, level r holds one value per Factor(r) ticks.
//
// The newest slot of every level above 0 is provisional: until its
// window closes, it is recomputed on every tick as the mean of the
// raw values seen so far in the window. When the window closes (tick
// count is a multiple of the factor), a new value is appended which
// blends the value preceding the provisional slot with the newest
// source value:
//
//   new = ((factor-1) * level[last-1] + source[newest]) / factor
//
// This never needs to re-read the window. Levels 1 through 3 roll up
// from level 0. The top level rolls up from level 1, its provisional
// value being the mean of the last ceil(mod/Base) level 1 values.
//
// A Series is not safe for concurrent use.
type Series struct {
	levels    [NumLevels]*Ring
	tickCount int64 // last tick ingested, 0 if never
}

// NewSeries returns a zero-filled series.
func NewSeries() *Series {
	s := &Series{}
	for r := range s.levels {
		s.levels[r] = NewRing(LevelSize)
	}
	return s
}

// TickCount is the last tick ingested, zero if none.
func (s *Series) TickCount() int64 { return s.tickCount }

// Level returns a copy of level r, oldest value first. It returns nil
// if r is not a valid level.
func (s *Series) Level(r int) []float64 {
	if r < 0 || r >= NumLevels {
		return nil
	}
	return s.levels[r].Values()
}

// Levels returns copies of all the levels.
func (s *Series) Levels() [][]float64 {
	result := make([][]float64, NumLevels)
	for r := range s.levels {
		result[r] = s.levels[r].Values()
	}
	return result
}

// Copy returns an independent copy of the series.
func (s *Series) Copy() *Series {
	ns := &Series{tickCount: s.tickCount}
	for r, ring := range s.levels {
		ns.levels[r] = ring.Copy()
	}
	return ns
}

// Reset zero-fills all levels and forgets the tick count.
func (s *Series) Reset() {
	for _, ring := range s.levels {
		ring.clear()
	}
	s.tickCount = 0
}

// checkTick verifies that tick may be ingested next.
func (s *Series) checkTick(tick int64) error {
	if tick < 1 {
		return ErrInvalidTick
	}
	if s.tickCount == 0 { // never ingested, anything goes
		return nil
	}
	if tick <= s.tickCount {
		return ErrStaleTick
	}
	if tick > s.tickCount+1 {
		return &TickGapError{Last: s.tickCount, Got: tick}
	}
	return nil
}

// Ingest adds the raw value for the given tick, which is the total
// number of ticks elapsed including this one. Non-finite values are
// rejected with ErrNonFinite. Ticks must be contiguous: a tick that
// was already ingested returns ErrStaleTick, a tick past the next one
// returns a *TickGapError. The series is not modified when an error
// is returned.
func (s *Series) Ingest(value float64, tick int64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ErrNonFinite
	}
	if err := s.checkTick(tick); err != nil {
		return err
	}
	s.ingest(value, tick)
	return nil
}

func (s *Series) ingest(value float64, tick int64) {
	raw := s.levels[0]
	raw.Push(value)

	for r := 1; r < NumLevels-1; r++ {
		rollUp(s.levels[r], raw, Factor(r), tick, 1)
	}

	// The top level is an exception: it is computed from level 1,
	// where each value already covers Base ticks.
	rollUp(s.levels[NumLevels-1], s.levels[topSourceLevel], Factor(NumLevels-1), tick, Factor(topSourceLevel))

	s.tickCount = tick
}

// rollUp updates dst from src. Each src value covers srcFactor ticks,
// each dst value covers factor ticks.
func rollUp(dst, src *Ring, factor, tick, srcFactor int64) {
	mod := tick % factor
	if mod != 0 {
		// Provisional mean of the window so far.
		n := (mod + srcFactor - 1) / srcFactor // ceil(mod / srcFactor)
		dst.SetLast(src.MeanLast(int(n)))
		return
	}
	// Window closed, read the previous value before appending.
	prev := dst.At(-2)
	dst.Push((float64(factor-1)*prev + src.Last()) / float64(factor))
}

// Pad ingests value for every tick after the last ingested one up to
// and including through, returning the number of ticks ingested. A
// never-ingested series has nothing to pad and returns zero.
func (s *Series) Pad(value float64, through int64) (int64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrNonFinite
	}
	if s.tickCount == 0 {
		return 0, nil
	}
	var n int64
	for tick := s.tickCount + 1; tick <= through; tick++ {
		s.ingest(value, tick)
		n++
	}
	return n, nil
}

// SeriesState is the serializable state of a Series.
type SeriesState struct {
	TickCount int64       `json:"tick"`
	Levels    [][]float64 `json:"levels"`
}

// State returns the current state of the series.
func (s *Series) State() SeriesState {
	return SeriesState{TickCount: s.tickCount, Levels: s.Levels()}
}

// Validate checks that a state has the right shape and finite values.
func (st SeriesState) Validate() error {
	if st.TickCount < 0 {
		return fmt.Errorf("negative tick count: %d", st.TickCount)
	}
	if len(st.Levels) != NumLevels {
		return fmt.Errorf("expected %d levels, got %d", NumLevels, len(st.Levels))
	}
	for r, level := range st.Levels {
		if len(level) != LevelSize {
			return fmt.Errorf("level %d: expected %d values, got %d", r, LevelSize, len(level))
		}
		for i, v := range level {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("level %d, value %d: %w", r, i, ErrNonFinite)
			}
		}
	}
	return nil
}

// NewSeriesFromState returns a series restored from st.
func NewSeriesFromState(st SeriesState) (*Series, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	s := NewSeries()
	for r, level := range st.Levels {
		s.levels[r].fill(level)
	}
	s.tickCount = st.TickCount
	return s, nil
}
