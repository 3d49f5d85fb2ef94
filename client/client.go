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

// Package client keeps a local chart session up to date from the
// hub's push channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/energetica/chartd/hub"
	"github.com/energetica/chartd/session"
	"github.com/gorilla/websocket"
)

type Options struct {
	TickDuration time.Duration // passed to session.New
	Header       http.Header
	Dialer       *websocket.Dialer // websocket.DefaultDialer if nil
	// OnUpdate is called after a message changed the session, with
	// the message type. It runs on the Run goroutine.
	OnUpdate func(msgType string)
}

type Client struct {
	mu            sync.Mutex // guards cs and resyncPending
	cs            *session.ChartSession
	resyncPending bool

	writeMu  sync.Mutex
	conn     *websocket.Conn
	onUpdate func(string)
}

// Dial connects to the hub at url, e.g.
// ws://localhost:8088/ws?player=alice.
func Dial(ctx context.Context, url string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("Dial(%s): %w", url, err)
	}
	return newClient(conn, opts), nil
}

func newClient(conn *websocket.Conn, opts *Options) *Client {
	return &Client{
		cs:       session.New(opts.TickDuration),
		conn:     conn,
		onUpdate: opts.OnUpdate,
	}
}

// Run reads messages until ctx is done or the connection fails.
func (c *Client) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-stop:
		}
	}()

	for {
		var msg hub.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := c.handle(&msg); err != nil {
			log.Printf("client: %s message: %v", msg.Type, err)
		}
	}
}

// handle applies one message to the session.
func (c *Client) handle(msg *hub.Message) error {
	switch msg.Type {
	case hub.TypeGetCharts:
		c.mu.Lock()
		err := c.cs.Import(msg.Data)
		// A rejected history still answers the request, the next
		// out of sync tick asks again.
		c.resyncPending = false
		c.mu.Unlock()
		if err != nil {
			return err
		}
	case hub.TypeTick:
		c.mu.Lock()
		err := c.cs.OnTick(msg.Category, msg.Subcategory, msg.Value, msg.Tick)
		request := errors.Is(err, session.ErrResyncRequired) && !c.resyncPending
		if request {
			c.resyncPending = true
		}
		c.mu.Unlock()
		if request {
			return c.RequestResync()
		}
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	if c.onUpdate != nil {
		c.onUpdate(msg.Type)
	}
	return nil
}

// RequestResync asks the hub for the full history.
func (c *Client) RequestResync() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(map[string]string{"type": hub.TypeResync})
}

// Session calls f with the session locked. f must not keep it.
func (c *Client) Session(f func(*session.ChartSession)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(c.cs)
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}
