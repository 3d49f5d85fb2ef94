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

// Package graceful provides a listener which keeps track of its open
// connections so that a restart can wait for them to finish, and
// whose file descriptor can be handed over to a child process.
package graceful

import (
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// TcpWg counts the connections accepted by all Listeners and not yet
// closed.
var TcpWg sync.WaitGroup

type gracefulConn struct {
	net.Conn
	closed int32
}

func (c *gracefulConn) Close() error {
	err := c.Conn.Close()
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		TcpWg.Done()
	}
	return err
}

type Listener struct {
	net.Listener
	stopped int32
}

func NewListener(l net.Listener) *Listener {
	return &Listener{Listener: l}
}

// Close stops accepting. Connections already accepted stay open.
func (gl *Listener) Close() error {
	if !atomic.CompareAndSwapInt32(&gl.stopped, 0, 1) {
		return syscall.EINVAL
	}
	return gl.Listener.Close()
}

func (gl *Listener) Stopped() bool {
	return atomic.LoadInt32(&gl.stopped) != 0
}

func (gl *Listener) Accept() (net.Conn, error) {
	c, err := gl.Listener.Accept()
	if err != nil {
		return nil, err
	}
	TcpWg.Add(1)
	return &gracefulConn{Conn: c}, nil
}

// File returns a dup of the underlying TCP socket, or nil if the
// listener is not TCP.
func (gl *Listener) File() *os.File {
	tl, ok := gl.Listener.(*net.TCPListener)
	if !ok {
		return nil
	}
	fl, err := tl.File()
	if err != nil {
		return nil
	}
	return fl
}
