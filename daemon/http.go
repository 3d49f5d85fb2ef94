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

package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/energetica/chartd/blaster"
	"github.com/energetica/chartd/graceful"
	h "github.com/energetica/chartd/http"
	"github.com/energetica/chartd/hub"
	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type receiverService interface {
	tickQueuer
	Snapshot(ctx context.Context, player string) (map[string]rrd.SeriesState, error)
	View(ctx context.Context, player string) (*session.ChartSession, error)
}

func newMux(rcvr receiverService, hb *hub.Hub, blstr *blaster.Blaster) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) { fmt.Fprintf(w, "OK\n") })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/tick", h.TickHandler(rcvr))
	mux.HandleFunc("/charts", h.ChartsHandler(rcvr))
	mux.HandleFunc("/view", h.ViewHandler(rcvr))
	if hb != nil {
		mux.HandleFunc("/ws", h.WSHandler(hb))
	}
	if blstr != nil {
		mux.HandleFunc("/blaster/set", h.BlasterSetHandler(blstr))
	}
	return mux
}

type wwwServer struct {
	rcvr       receiverService
	hub        *hub.Hub
	blstr      *blaster.Blaster
	listener   *graceful.Listener
	server     *http.Server
	listenSpec string
	stop       int32
}

func (g *wwwServer) File() *os.File {
	if g.listener != nil {
		return g.listener.File()
	}
	return nil
}

// Stop closes the listener and idle connections and waits up to 10s
// for requests in flight. Websockets are hijacked and are closed by
// the hub.
func (g *wwwServer) Stop() {
	if !atomic.CompareAndSwapInt32(&(g.stop), 0, 1) {
		return
	}
	if g.server != nil {
		log.Printf("Closing listener %s\n", g.listenSpec)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := g.server.Shutdown(ctx); err != nil {
			log.Printf("wwwServer.Stop(): %v", err)
		}
	}
}

func (g *wwwServer) Start(file *os.File) (err error) {
	if g.listener, err = listen("HTTP protocol", g.listenSpec, file); err != nil || g.listener == nil {
		return err
	}

	// No WriteTimeout, it would cut off websockets.
	g.server = &http.Server{
		Handler:        newMux(g.rcvr, g.hub, g.blstr),
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 16}

	go func() {
		if err := g.server.Serve(g.listener); err != nil && err != http.ErrServerClosed {
			log.Printf("wwwServer: %v", err)
		}
	}()
	return nil
}
