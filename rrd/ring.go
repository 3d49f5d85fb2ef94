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

// Ring is a fixed-capacity round-robin buffer of float64 values. It
// is always full: a new Ring is zero-filled, and every Push evicts
// the oldest value. Logical index 0 is the oldest value, Len()-1 the
// newest.
//
//   buf:   [ 7 | 8 | 3 | 4 | 5 | 6 ]
//                    ^
//                    start (oldest)
//
// Values() of the above is [3 4 5 6 7 8].
type Ring struct {
	buf   []float64
	start int // slot of the oldest value
}

// NewRing returns a zero-filled ring of the given size. Size must be
// positive.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{buf: make([]float64, size)}
}

// Len is the (constant) number of values in the ring.
func (r *Ring) Len() int { return len(r.buf) }

// slot converts a logical index into a buf index.
func (r *Ring) slot(i int) int {
	return (r.start + i) % len(r.buf)
}

// Push evicts the oldest value and appends v as the newest.
func (r *Ring) Push(v float64) {
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// SetLast overwrites the newest value in place.
func (r *Ring) SetLast(v float64) {
	r.buf[r.slot(len(r.buf)-1)] = v
}

// Last returns the newest value.
func (r *Ring) Last() float64 {
	return r.buf[r.slot(len(r.buf)-1)]
}

// At returns the value at logical index i (0 is the oldest). Negative
// indexes count from the end, -1 being the newest. Out of range
// indexes panic, same as a slice would.
func (r *Ring) At(i int) float64 {
	if i < 0 {
		i += len(r.buf)
	}
	if i < 0 || i >= len(r.buf) {
		panic("rrd: ring index out of range")
	}
	return r.buf[r.slot(i)]
}

// SumLast returns the sum of the newest n values, added in order from
// oldest to newest. n is clamped to [0, Len()].
func (r *Ring) SumLast(n int) float64 {
	if n > len(r.buf) {
		n = len(r.buf)
	}
	var sum float64
	for i := len(r.buf) - n; i < len(r.buf); i++ {
		sum += r.buf[r.slot(i)]
	}
	return sum
}

// MeanLast is SumLast(n) / n. Zero n yields zero.
func (r *Ring) MeanLast(n int) float64 {
	if n > len(r.buf) {
		n = len(r.buf)
	}
	if n <= 0 {
		return 0
	}
	return r.SumLast(n) / float64(n)
}

// Values returns a copy of the ring contents, oldest first.
func (r *Ring) Values() []float64 {
	result := make([]float64, len(r.buf))
	n := copy(result, r.buf[r.start:])
	copy(result[n:], r.buf[:r.start])
	return result
}

// Copy returns an independent copy of the ring.
func (r *Ring) Copy() *Ring {
	return &Ring{buf: r.Values()}
}

// fill replaces the contents of the ring with vals (oldest first),
// which must be exactly Len() long.
func (r *Ring) fill(vals []float64) {
	copy(r.buf, vals)
	r.start = 0
}

// clear zeroes out all values.
func (r *Ring) clear() {
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.start = 0
}
