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

package session

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/energetica/chartd/chart"
	"github.com/energetica/chartd/rrd"
)

func TestParseMetricKey(t *testing.T) {
	for in, want := range map[string]MetricKey{
		"revenues.industry":        {"revenues", "industry"},
		"generation.PV_solar":      {"generation", "PV_solar"},
		" demand . coal_mine":      {"demand", "coal_mine"},
		"emissions.steam.engine.x": {"emissions", "steamenginex"},
	} {
		got, err := ParseMetricKey(in)
		if err != nil {
			t.Errorf("ParseMetricKey(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseMetricKey(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "revenues", ".industry", "revenues.", "!!.??"} {
		if _, err := ParseMetricKey(in); !errors.Is(err, ErrBadKey) {
			t.Errorf("ParseMetricKey(%q) error = %v, want ErrBadKey", in, err)
		}
	}
	if s := (MetricKey{"revenues", "industry"}).String(); s != "revenues.industry" {
		t.Errorf("String() = %q", s)
	}
}

func TestSubcategories(t *testing.T) {
	rev := Subcategories("revenues")
	if !reflect.DeepEqual(rev, []string{"industry", "imports", "exports", "dumping"}) {
		t.Errorf("revenues order = %v", rev)
	}
	gen := Subcategories("generation")
	if gen[len(gen)-1] != "hydrogen_storage" || len(gen) != 20 {
		t.Errorf("generation order = %v", gen)
	}
	em := Subcategories("emissions")
	if len(em) != 13 || em[0] != "carbon_capture" || em[12] != "uranium_mine" {
		t.Errorf("emissions order = %v", em)
	}
	if Subcategories("nosuchthing") != nil {
		t.Errorf("unknown category should have no order")
	}
}

func TestChartSession_OnTick(t *testing.T) {
	cs := New(0)
	if cs.TickDuration() != DefaultTickDuration {
		t.Errorf("TickDuration() = %v", cs.TickDuration())
	}

	for tick := int64(1); tick <= 3; tick++ {
		if err := cs.OnTick("revenues", "industry", float64(tick), tick); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
	}
	// duplicate is ignored
	if err := cs.OnTick("revenues", "industry", 100, 3); err != nil {
		t.Errorf("stale tick should be ignored, got %v", err)
	}
	if cs.TickCount() != 3 {
		t.Errorf("TickCount() = %d, want 3", cs.TickCount())
	}

	// a gap requires a resync
	err := cs.OnTick("revenues", "industry", 5, 5)
	if !errors.Is(err, ErrResyncRequired) {
		t.Fatalf("gap: err = %v, want ErrResyncRequired", err)
	}
	if !cs.NeedsResync() {
		t.Errorf("NeedsResync() should be true")
	}
	if err := cs.OnTick("revenues", "industry", 4, 4); !errors.Is(err, ErrResyncRequired) {
		t.Errorf("ticks must be dropped until resync, got %v", err)
	}

	if err := cs.OnTick("revenues", "industry", math.NaN(), 4); err == nil {
		t.Errorf("expected an error for NaN while out of sync")
	}

	snap := New(0)
	for tick := int64(1); tick <= 5; tick++ {
		snap.Ingest(MetricKey{"revenues", "industry"}, 1, tick)
	}
	if err := cs.Import(snap.Export()); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if cs.NeedsResync() {
		t.Errorf("Import should clear the resync flag")
	}
	if err := cs.OnTick("revenues", "industry", 6, 6); err != nil {
		t.Errorf("tick after resync: %v", err)
	}
}

func TestChartSession_OnTickNonFinite(t *testing.T) {
	cs := New(time.Minute)
	if err := cs.OnTick("revenues", "industry", math.Inf(1), 1); !errors.Is(err, rrd.ErrNonFinite) {
		t.Errorf("err = %v, want ErrNonFinite", err)
	}
	if cs.NeedsResync() {
		t.Errorf("non-finite value must not require a resync")
	}
}

func TestChartSession_ViewAndFrame(t *testing.T) {
	cs := New(0)
	rev := func(sub string) MetricKey { return MetricKey{"revenues", sub} }
	for tick := int64(1); tick <= 12; tick++ {
		cs.Ingest(rev("industry"), 30, tick)
		cs.Ingest(rev("imports"), -10, tick)
		cs.Ingest(MetricKey{"demand", "research"}, 7, tick)
	}

	view, err := cs.View("revenues")
	if err != nil {
		t.Fatal(err)
	}
	if len(view) != 2 || len(view["industry"]) != 60 {
		t.Errorf("4h view: %d columns of %d values", len(view), len(view["industry"]))
	}
	if view["imports"][59] != -10 {
		t.Errorf("newest imports value = %v", view["imports"][59])
	}

	if err := cs.SetResolution("6 days"); err != nil {
		t.Fatal(err)
	}
	view, _ = cs.View("revenues")
	if n := len(view["industry"]); n != rrd.LevelSize {
		t.Errorf("6 days view has %d values", n)
	}
	if err := cs.SetResolution("1 week"); err == nil {
		t.Errorf("unknown resolution should fail")
	}
	if cs.Resolution().Name != "6 days" {
		t.Errorf("failed SetResolution changed the resolution")
	}

	if _, err := cs.View("emissions"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("View(emissions) error = %v", err)
	}

	f, err := cs.Frame("revenues")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.Keys, []string{"industry", "imports"}) {
		t.Errorf("frame keys = %v", f.Keys)
	}
	if f.Upper != 30 || f.Lower != -10 {
		t.Errorf("frame bounds = [%v, %v]", f.Lower, f.Upper)
	}

	cs.SetPercent(true)
	f, _ = cs.Frame("revenues")
	if !f.Percent || f.Value("industry", f.Len-1) != 100 {
		t.Errorf("percent frame: %+v", f)
	}

	if got := cs.Categories(); !reflect.DeepEqual(got, []string{"demand", "revenues"}) {
		t.Errorf("Categories() = %v", got)
	}
	if cs.Len() != 3 || cs.Keys()[0] != (MetricKey{"demand", "research"}) {
		t.Errorf("Keys() = %v", cs.Keys())
	}
}

func TestChartSession_Hover(t *testing.T) {
	cs := New(4 * time.Minute)
	for tick := int64(1); tick <= 60; tick++ {
		cs.Ingest(MetricKey{"revenues", "industry"}, 2000, tick)
		cs.Ingest(MetricKey{"revenues", "imports"}, -500, tick)
	}
	h, err := cs.Hover("revenues", 600, 600, 1, chart.FormatMoney)
	if err != nil {
		t.Fatal(err)
	}
	if h.Index != 59 || h.Ago != "now" {
		t.Errorf("hover at the right edge: %+v", h)
	}
	if len(h.Lines) != 2 || h.Lines[0].Key != "imports" || h.Lines[1].Text != "2,000" {
		t.Errorf("hover lines = %+v", h.Lines)
	}
	h, _ = cs.Hover("revenues", 0, 600, 1, nil)
	if !strings.Contains(h.Ago, "3 hours") {
		t.Errorf("hover at the left edge: ago = %q", h.Ago)
	}
}

func TestChartSession_PadAndReset(t *testing.T) {
	cs := New(0)
	key := MetricKey{"storage", "molten_salt"}
	cs.Ingest(key, 1, 1)
	if n, err := cs.Pad(key, 0, 4); err != nil || n != 3 {
		t.Errorf("Pad() = %d, %v", n, err)
	}
	if err := cs.Ingest(key, 1, 5); err != nil {
		t.Errorf("Ingest after pad: %v", err)
	}
	if n, _ := cs.Pad(MetricKey{"storage", "none"}, 0, 10); n != 0 {
		t.Errorf("Pad of unknown key should do nothing")
	}
	cs.ResetSeries(key)
	if err := cs.Ingest(key, 1, 1000); err != nil {
		t.Errorf("Ingest after reset: %v", err)
	}
}

func TestChartSession_ImportInvalid(t *testing.T) {
	cs := New(0)
	cs.Ingest(MetricKey{"revenues", "industry"}, 1, 1)
	bad := map[string]rrd.SeriesState{
		"revenues.exports": {TickCount: 1, Levels: [][]float64{{1}}},
	}
	if err := cs.Import(bad); err == nil {
		t.Errorf("invalid state should fail")
	}
	if err := cs.Import(map[string]rrd.SeriesState{"nodot": rrd.NewSeries().State()}); !errors.Is(err, ErrBadKey) {
		t.Errorf("bad key error = %v", err)
	}
	if cs.Len() != 1 || cs.TickCount() != 1 {
		t.Errorf("failed Import modified the session")
	}
}
