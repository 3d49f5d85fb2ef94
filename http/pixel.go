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

// Package http provides the HTTP endpoints for submitting ticks to a
// receiver and for reading chart data.
package http

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/energetica/chartd/misc"
	"github.com/energetica/chartd/session"
)

type tickQueuer interface {
	QueueTick(player string, key session.MetricKey, value float64, tick int64)
}

func sendPixel(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "Tue, 03 Mar 1998 01:34:48 GMT") // 888888888
	w.Header().Set("Last-Modified", "Tue, 03 Mar 1998 01:34:48 GMT")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "private, no-cache, no-cache=Set-Cookie, proxy-revalidate")
	// Date set by net/http

	w.Write([]byte("GIF89a\x01\x00\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x00;"))
}

type formTick struct {
	key   session.MetricKey
	value float64
}

// parseTickForm parses player=alice&tick=42&revenues.industry=12.5&...
func parseTickForm(r *http.Request) (string, int64, []formTick, error) {
	if err := r.ParseForm(); err != nil {
		return "", 0, nil, err
	}
	player := misc.SanitizeName(r.Form.Get("player"))
	if player == "" {
		return "", 0, nil, fmt.Errorf("missing player")
	}
	tick, err := strconv.ParseInt(r.Form.Get("tick"), 10, 64)
	if err != nil || tick < 1 {
		return "", 0, nil, fmt.Errorf("invalid tick %q", r.Form.Get("tick"))
	}

	var ticks []formTick
	for name, vals := range r.Form {
		if name == "player" || name == "tick" {
			continue
		}
		key, err := session.ParseMetricKey(name)
		if err != nil {
			return "", 0, nil, err
		}
		for _, valStr := range vals {
			val, err := strconv.ParseFloat(valStr, 64)
			if err != nil {
				return "", 0, nil, fmt.Errorf("%s: error parsing %q", name, valStr)
			}
			ticks = append(ticks, formTick{key, val})
		}
	}
	return player, tick, ticks, nil
}

// TickHandler queues the values of one tick of one player. Nothing
// is queued unless the whole request parses.
func TickHandler(rcvr tickQueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rc := recover(); rc != nil {
				log.Printf("TickHandler: Recovered (this request is dropped): %v", rc)
			}
		}()

		player, tick, ticks, err := parseTickForm(r)
		if err != nil {
			log.Printf("TickHandler: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, ft := range ticks {
			rcvr.QueueTick(player, ft.key, ft.value, tick)
		}
		sendPixel(w)
	}
}
