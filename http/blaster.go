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
	"fmt"
	"log"
	"net/http"
)

type blasterSetter interface {
	SetRate(perSec int)
	SetNPlayers(n int)
}

// BlasterSetHandler sets the tick rate (rate=) and the number of
// synthetic players (players=) of the blaster.
func BlasterSetHandler(blstr blasterSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rc := recover(); rc != nil {
				log.Printf("BlasterSetHandler: Recovered (this request is dropped): %v", rc)
			}
		}()

		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for name, vals := range r.Form {
			for _, valStr := range vals {
				var v int
				if n, _ := fmt.Sscanf(valStr, "%d", &v); n < 1 || v < 0 {
					log.Printf("BlasterSetHandler: error parsing %q", valStr)
					http.Error(w, fmt.Sprintf("invalid %s: %q", name, valStr), http.StatusBadRequest)
					return
				}
				switch name {
				case "rate":
					blstr.SetRate(v)
					fmt.Fprintf(w, "New rate: %v\n", v)
				case "players":
					blstr.SetNPlayers(v)
					fmt.Fprintf(w, "New nPlayers: %v\n", v)
				}
			}
		}
	}
}
