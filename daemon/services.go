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
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/energetica/chartd/blaster"
	"github.com/energetica/chartd/graceful"
	"github.com/energetica/chartd/hub"
	"github.com/energetica/chartd/session"
)

type trService interface {
	File() *os.File
	Start(*os.File) error
	Stop()
}

type tickQueuer interface {
	QueueTick(player string, key session.MetricKey, value float64, tick int64)
}

type serviceMap map[string]trService
type serviceManager struct {
	services serviceMap
}

func newServiceManager(rcvr receiverService, h *hub.Hub, blstr *blaster.Blaster, cfg *Config) *serviceManager {
	return &serviceManager{
		services: serviceMap{
			"tt":  &textServiceManager{rcvr: rcvr, listenSpec: cfg.TextListenSpec, timeout: 30 * time.Second},
			"pk":  &pickleServiceManager{rcvr: rcvr, listenSpec: cfg.PickleListenSpec, timeout: 30 * time.Second},
			"www": &wwwServer{rcvr: rcvr, hub: h, blstr: blstr, listenSpec: cfg.HttpListenSpec},
		},
	}
}

// listen reuses file if it is not nil, otherwise it listens on
// listenSpec. A nil listener and nil error means the service is not
// configured.
func listen(name, listenSpec string, file *os.File) (*graceful.Listener, error) {
	var (
		l   net.Listener
		err error
	)
	if listenSpec == "" {
		log.Printf("Not starting %s because its listen-spec is blank.", name)
		return nil, nil
	}
	if file != nil {
		l, err = net.FileListener(file)
	} else {
		l, err = net.Listen("tcp", listenSpec)
	}
	if err != nil {
		return nil, fmt.Errorf("Error starting %s: %v", name, err)
	}
	log.Printf("%s listening on %s", name, l.Addr())
	return graceful.NewListener(l), nil
}

// serve accepts connections until the listener is closed.
func serve(name string, l *graceful.Listener, handle func(net.Conn)) error {
	var tempDelay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if l.Stopped() {
				return nil
			}
			// see http://golang.org/src/net/http/server.go?s=51504:51550#L1729
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				log.Printf("%s: Accept error: %v; retrying in %v", name, err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		go handle(conn)
	}
}

func (r *serviceManager) run(gracefulProtos string) error {
	// TODO If a listen-spec changes in the config and a graceful
	// restart is issued, the new config will not take effect as the
	// open file is reused.

	if gracefulProtos == "" {
		for _, service := range r.services {
			if err := service.Start(nil); err != nil {
				return err
			}
		}
		return nil
	}

	protos := strings.Split(gracefulProtos, ",")
	log.Printf("Reusing file descriptors for graceful protocols: %v", protos)

	for n, p := range protos {
		f := os.NewFile(uintptr(n+3), "")
		if r.services[p] != nil {
			if err := r.services[p].Start(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// listenerFilesAndProtocols lists the open listeners in the order
// they are to be passed to a child as ExtraFiles.
func (r *serviceManager) listenerFilesAndProtocols() ([]*os.File, string) {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)

	files := []*os.File{}
	protos := []string{}
	for _, name := range names {
		if f := r.services[name].File(); f != nil {
			files = append(files, f)
			protos = append(protos, name)
		}
	}
	return files, strings.Join(protos, ",")
}

func (r *serviceManager) closeListeners(wait bool) {
	for _, service := range r.services {
		service.Stop()
	}
	if wait {
		log.Printf("Waiting for graceful.TcpWg...")
		graceful.TcpWg.Wait()
	}
}
