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
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/energetica/chartd/graceful"
	"github.com/energetica/chartd/misc"
	"github.com/energetica/chartd/session"
)

// textServiceManager accepts one tick per line:
//
//	<player> <category>.<subcategory> <value> <tick>
type textServiceManager struct {
	rcvr       tickQueuer
	listenSpec string
	listener   *graceful.Listener
	timeout    time.Duration
	stop       int32
}

func (g *textServiceManager) File() *os.File {
	if g.listener != nil {
		return g.listener.File()
	}
	return nil
}

func (g *textServiceManager) Stop() {
	if g.stopped() {
		return
	}
	atomic.StoreInt32(&(g.stop), 1)
	if g.listener != nil {
		log.Printf("Closing TCP listener %s", g.listenSpec)
		g.listener.Close()
	}
}

func (g *textServiceManager) stopped() bool {
	return atomic.LoadInt32(&(g.stop)) != 0
}

func (g *textServiceManager) Start(file *os.File) (err error) {
	if g.listener, err = listen("text protocol", g.listenSpec, file); err != nil || g.listener == nil {
		return err
	}
	go func() {
		if err := serve("textServer", g.listener, g.handleTextProtocol); err != nil {
			log.Printf("textServer: %v", err)
		}
	}()
	return nil
}

func (g *textServiceManager) handleTextProtocol(conn net.Conn) {
	defer conn.Close() // decrements graceful.TcpWg

	if g.timeout != 0 {
		conn.SetDeadline(time.Now().Add(g.timeout))
	}

	// We use Scanner, becase it has a MaxScanTokenSize of 64K
	connbuf := bufio.NewScanner(conn)

	for connbuf.Scan() {
		line := connbuf.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if player, key, value, tick, err := parseTextLine(line); err != nil {
			log.Printf("handleTextProtocol(): bad line: %q: %v", line, err)
		} else {
			g.rcvr.QueueTick(player, key, value, tick)
		}

		if g.timeout != 0 {
			conn.SetDeadline(time.Now().Add(g.timeout))
		}
		if g.stopped() {
			return
		}
	}

	if err := connbuf.Err(); err != nil {
		log.Printf("handleTextProtocol(): Error reading: %v", err)
	}
}

func parseTextLine(line string) (player string, key session.MetricKey, value float64, tick int64, err error) {
	parts := strings.Fields(line)
	if len(parts) != 4 {
		return "", key, 0, 0, fmt.Errorf("expected 4 fields, got %d", len(parts))
	}
	if player = misc.SanitizeName(parts[0]); player == "" {
		return "", key, 0, 0, fmt.Errorf("invalid player %q", parts[0])
	}
	if key, err = session.ParseMetricKey(parts[1]); err != nil {
		return "", key, 0, 0, err
	}
	if value, err = strconv.ParseFloat(parts[2], 64); err != nil {
		return "", key, 0, 0, err
	}
	if tick, err = strconv.ParseInt(parts[3], 10, 64); err != nil {
		return "", key, 0, 0, err
	}
	if tick < 1 {
		return "", key, 0, 0, fmt.Errorf("invalid tick %d", tick)
	}
	return player, key, value, tick, nil
}
