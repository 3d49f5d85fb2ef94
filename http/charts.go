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

package http

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/energetica/chartd/chart"
	"github.com/energetica/chartd/hub"
	"github.com/energetica/chartd/misc"
	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/serde"
	"github.com/energetica/chartd/session"
)

var debug = os.Getenv("CHARTD_HTTP_DEBUG") != ""

type snapshotter interface {
	Snapshot(ctx context.Context, player string) (map[string]rrd.SeriesState, error)
}

type viewer interface {
	View(ctx context.Context, player string) (*session.ChartSession, error)
}

func errorStatus(err error) int {
	if errors.Is(err, serde.ErrNotFound) || errors.Is(err, session.ErrUnknownCategory) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON(): %v", err)
	}
}

// ChartsHandler returns the full history of a player in the same
// form the hub pushes it.
func ChartsHandler(snap snapshotter) http.HandlerFunc {
	return makeGzipHandler(
		func(w http.ResponseWriter, r *http.Request) {
			player := misc.SanitizeName(r.FormValue("player"))
			if player == "" {
				http.Error(w, "missing player", http.StatusBadRequest)
				return
			}
			states, err := snap.Snapshot(r.Context(), player)
			if err != nil {
				log.Printf("ChartsHandler(): %s: %v", player, err)
				http.Error(w, err.Error(), errorStatus(err))
				return
			}
			writeJSON(w, &hub.SnapshotMessage{Type: hub.TypeGetCharts, Data: states})
		})
}

// ViewResponse is everything needed to draw one chart.
type ViewResponse struct {
	Player        string         `json:"player"`
	Category      string         `json:"category"`
	Resolution    string         `json:"resolution"`
	TicksPerPoint int64          `json:"ticks_per_point"`
	Span          string         `json:"span"`
	Frame         *chart.Frame   `json:"frame"`
	Bars          []chart.Bar    `json:"bars"`
	YTicks        []chart.Tick   `json:"y_ticks"`
	Labels        []chart.Label  `json:"labels"`
	Hover         *session.Hover `json:"hover,omitempty"`
}

func formValueFloat(r *http.Request, name string, dft float64) (float64, error) {
	s := r.FormValue(name)
	if s == "" {
		return dft, nil
	}
	return strconv.ParseFloat(s, 64)
}

// formatFor picks the tooltip format of a category.
func formatFor(category string) func(float64) string {
	switch category {
	case "revenues", "op_costs":
		return chart.FormatMoney
	case "storage":
		return chart.FormatEnergy
	case "emissions":
		return chart.FormatMass
	}
	return chart.FormatPower
}

// ViewHandler computes the chart of one category of a player:
// /view?player=&category=&resolution=&percent=&width=&height=[&x=]
func ViewHandler(v viewer) http.HandlerFunc {
	return makeGzipHandler(
		func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rc := recover(); rc != nil {
					log.Printf("ViewHandler: Recovered (this request is dropped): %v", rc)
				}
			}()

			start := time.Now()
			player := misc.SanitizeName(r.FormValue("player"))
			category := misc.SanitizeName(r.FormValue("category"))
			if player == "" || category == "" {
				http.Error(w, "player and category are required", http.StatusBadRequest)
				return
			}
			width, err1 := formValueFloat(r, "width", 600)
			height, err2 := formValueFloat(r, "height", 300)
			if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
				http.Error(w, "invalid width or height", http.StatusBadRequest)
				return
			}

			cs, err := v.View(r.Context(), player)
			if err != nil {
				log.Printf("ViewHandler(): %s: %v", player, err)
				http.Error(w, err.Error(), errorStatus(err))
				return
			}
			if res := r.FormValue("resolution"); res != "" {
				if err := cs.SetResolution(res); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
			}
			cs.SetPercent(strings.EqualFold(r.FormValue("percent"), "true") || r.FormValue("percent") == "1")

			f, err := cs.Frame(category)
			if err != nil {
				http.Error(w, err.Error(), errorStatus(err))
				return
			}
			res := cs.Resolution()
			resp := &ViewResponse{
				Player:        player,
				Category:      category,
				Resolution:    res.Name,
				TicksPerPoint: res.TicksPerPoint(),
				Span:          chart.FormatSpan(res.Span(cs.TickDuration())),
				Frame:         f,
				Bars:          f.Bars(width, height),
				YTicks:        chart.YTicks(f.Lower, f.Upper, height, 3),
				Labels:        chart.TimeLabels(res.Labels, width),
			}
			if xs := r.FormValue("x"); xs != "" {
				x, err := strconv.ParseFloat(xs, 64)
				if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
					http.Error(w, "invalid x", http.StatusBadRequest)
					return
				}
				if resp.Hover, err = cs.Hover(category, x, width, 1, formatFor(category)); err != nil {
					http.Error(w, err.Error(), errorStatus(err))
					return
				}
			}
			writeJSON(w, resp)
			if debug {
				log.Printf("ViewHandler: %s %s finished in %v", player, category, time.Since(start))
			}
		})
}

// WSHandler serves the push channel of ?player=.
func WSHandler(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player := misc.SanitizeName(r.FormValue("player"))
		if player == "" {
			http.Error(w, "missing player", http.StatusBadRequest)
			return
		}
		h.ServeWS(w, r, player)
	}
}

type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

func makeGzipHandler(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			fn(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		gzr := gzipResponseWriter{Writer: gz, ResponseWriter: w}
		fn(gzr, r)
	}
}
