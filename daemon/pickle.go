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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/energetica/chartd/graceful"
	"github.com/energetica/chartd/misc"
	"github.com/energetica/chartd/session"
	pickle "github.com/hydrogen18/stalecucumber"
)

// maxPickleSize bounds a single length-prefixed message.
const maxPickleSize = 1 << 20

// pickleServiceManager accepts batches of ticks as length-prefixed
// pickles of [(player, "category.subcategory", (tick, value)), ...].
type pickleServiceManager struct {
	rcvr       tickQueuer
	listenSpec string
	listener   *graceful.Listener
	timeout    time.Duration
	stop       int32
}

func (g *pickleServiceManager) File() *os.File {
	if g.listener != nil {
		return g.listener.File()
	}
	return nil
}

func (g *pickleServiceManager) Stop() {
	if g.stopped() {
		return
	}
	atomic.StoreInt32(&(g.stop), 1)
	if g.listener != nil {
		log.Printf("Closing listener %s\n", g.listenSpec)
		g.listener.Close()
	}
}

func (g *pickleServiceManager) stopped() bool {
	return atomic.LoadInt32(&(g.stop)) != 0
}

func (g *pickleServiceManager) Start(file *os.File) (err error) {
	if g.listener, err = listen("pickle protocol", g.listenSpec, file); err != nil || g.listener == nil {
		return err
	}
	go func() {
		if err := serve("pickleServer", g.listener, g.handlePickleProtocol); err != nil {
			log.Printf("pickleServer: %v", err)
		}
	}()
	return nil
}

type pickledTick struct {
	player string
	key    session.MetricKey
	tick   int64
	value  float64
}

// readPickledTicks reads one length-prefixed message.
func readPickledTicks(r io.Reader) ([]pickledTick, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > maxPickleSize {
		return nil, fmt.Errorf("message too large: %d", length)
	}
	buff := make([]byte, length)
	if _, err := io.ReadFull(r, buff); err != nil {
		return nil, fmt.Errorf("incomplete read of %d bytes: %w", length, err)
	}
	items, err := pickle.ListOrTuple(pickle.Unpickle(bytes.NewBuffer(buff)))
	if err != nil {
		return nil, err
	}

	result := make([]pickledTick, 0, len(items))
	for _, item := range items {
		var (
			pt        pickledTick
			name      string
			itemSlice []interface{}
			dp        []interface{}
		)
		itemSlice, err = pickle.ListOrTuple(item, nil)
		if err == nil && len(itemSlice) != 3 {
			err = fmt.Errorf("item wrong length: %d", len(itemSlice))
		}
		if err != nil {
			return nil, err
		}
		pt.player, err = pickle.String(itemSlice[0], nil)
		name, err = pickle.String(itemSlice[1], err)
		dp, err = pickle.ListOrTuple(itemSlice[2], err)
		if err == nil && len(dp) != 2 {
			err = fmt.Errorf("dp wrong length: %d", len(dp))
		}
		if err != nil {
			return nil, err
		}
		if pt.player = misc.SanitizeName(pt.player); pt.player == "" {
			return nil, fmt.Errorf("invalid player in %v", itemSlice)
		}
		if pt.key, err = session.ParseMetricKey(name); err != nil {
			return nil, err
		}
		if pt.tick, err = pickle.Int(dp[0], nil); err != nil {
			return nil, err
		}
		if pt.value, err = pickle.Float(dp[1], nil); err != nil {
			intValue, ierr := pickle.Int(dp[1], nil)
			if ierr != nil {
				return nil, err
			}
			pt.value = float64(intValue)
		}
		result = append(result, pt)
	}
	return result, nil
}

func (g *pickleServiceManager) handlePickleProtocol(conn net.Conn) {

	defer conn.Close() // decrements graceful.TcpWg

	var err error
	for !g.stopped() {
		if g.timeout != 0 {
			conn.SetDeadline(time.Now().Add(g.timeout))
		}
		var pts []pickledTick
		if pts, err = readPickledTicks(conn); err != nil {
			break
		}
		for _, pt := range pts {
			g.rcvr.QueueTick(pt.player, pt.key, pt.value, pt.tick)
		}
	}

	if err != nil && err != io.EOF && !strings.Contains(err.Error(), "use of closed") {
		log.Printf("handlePickleProtocol(): Error reading: %v", err)
	}
}
