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

// Package daemon wires the receiver, the hub and the listeners
// together according to a config file, and handles signals, log
// cycling and graceful restarts.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/energetica/chartd/blaster"
	"github.com/energetica/chartd/graceful"
	"github.com/energetica/chartd/hub"
	"github.com/energetica/chartd/receiver"
	"github.com/energetica/chartd/serde"
)

var gracefulChildPid int

var getCwd = func() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Unable to determine current working directory: %v", err)
		return ""
	}
	return wd
}

var savePid = func(pidPath string) error {
	f, err := os.Create(pidPath)
	if err != nil {
		return fmt.Errorf("Unable to create pid file '%s': (%v)", pidPath, err)
	}
	defer f.Close()
	fmt.Fprintf(f, "%d\n", os.Getpid())
	log.Printf("Pid saved in %s.", pidPath)
	return nil
}

// initDb keeps sessions in memory when there is no connect string.
var initDb = func(cfg *Config) (serde.SerDe, error) {
	if cfg.DbConnectString == "" {
		return serde.NewMemSerDe(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return serde.InitDb(ctx, cfg.DbConnectString, cfg.DbTablePrefix)
}

var createReceiver = func(cfg *Config, db serde.SerDe, pub receiver.Publisher) *receiver.Receiver {
	r := receiver.New(db, pub)
	r.MaxCachedSessions = cfg.MaxCachedSessions
	r.FlushInterval = cfg.FlushInterval.Duration
	r.MaxFlushesPerSecond = cfg.MaxFlushesPerSecond
	r.MaxGapFill = cfg.MaxGapFill
	r.TickDuration = cfg.TickDuration.Duration
	r.Categories = cfg.categorySet()
	return r
}

var createBlaster = func(cfg *Config, rcvr *receiver.Receiver) *blaster.Blaster {
	if !cfg.Blaster.Enabled {
		return nil
	}
	b := blaster.New(rcvr, cfg.Blaster.Prefix, nil)
	b.SetNPlayers(cfg.Blaster.Players)
	b.SetRate(cfg.Blaster.Rate)
	return b
}

var startReceiver = func(r *receiver.Receiver) error {
	return r.Start()
}

// Init runs the daemon until it is told to exit. It returns the
// config it ran with, or nil if it could not start.
func Init(cfgPath, gracefulProtos string) (cfg *Config) { // not to be confused with init()

	log.Printf("Chartd starting.")

	var err error
	if cfg, err = readConfig(cfgPath); err != nil {
		log.Printf("Error reading config file %s: %v", cfgPath, err)
		return nil
	}

	if err := processConfig(cfg, getCwd()); err != nil { // This validates the config
		log.Printf("Error in config file %s: %v", cfgPath, err)
		return nil
	}

	if err := savePid(cfg.PidPath); err != nil {
		log.Printf("%v", err)
		return nil
	}

	db, err := initDb(cfg)
	if err != nil {
		log.Printf("Error connecting to the DB: %v", err)
		return cfg
	}
	defer db.Close()
	log.Printf("Initialized DB connection.")

	// The hub needs the receiver for snapshots, the receiver needs
	// the hub to publish ticks.
	hb := hub.New(nil)
	rcvr := createReceiver(cfg, db, hb)
	hb.Snapshots = rcvr

	blstr := createBlaster(cfg, rcvr)

	sm := newServiceManager(rcvr, hb, blstr, cfg)
	if err := sm.run(gracefulProtos); err != nil {
		log.Printf("Could not run the service manager: %v", err)
		sm.closeListeners(false)
		return cfg
	}

	if gracefulProtos != "" {
		// Tell the parent to exit, then wait for it to signal that
		// its sessions are flushed before loading any of them.
		parent := syscall.Getppid()
		log.Printf("Init(): Killing parent pid: %v", parent)
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGUSR1)
		syscall.Kill(parent, syscall.SIGTERM)
		log.Printf("Init(): Waiting for the parent to signal that flush is complete...")
		s := <-ch
		signal.Stop(ch)
		log.Printf("Init(): Received %v, proceeding", s)
	}

	if err := startReceiver(rcvr); err != nil {
		log.Printf("Could not start the receiver: %v", err)
		sm.closeListeners(false)
		return cfg
	}

	waitForSignal(rcvr, hb, blstr, sm, cfgPath)
	return cfg
}

var waitForSignal = func(rcvr *receiver.Receiver, hb *hub.Hub, blstr *blaster.Blaster, sm *serviceManager, cfgPath string) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(ch)
	for s := range ch {
		log.Printf("Got signal: %v", s)
		if s == syscall.SIGHUP {
			if gracefulChildPid == 0 {
				gracefulRestart(sm, cfgPath)
			}
			continue
		}
		gracefulExit(rcvr, hb, blstr, sm)
		return
	}
}

func Finish(cfg *Config) {
	atomic.StoreInt32(&quitting, 1)
	log.Println("main: All goroutines finished, exiting.")

	closeLogFile()
	os.Remove(cfg.PidPath)
}

func gracefulRestart(sm *serviceManager, cfgPath string) {

	if !filepath.IsAbs(os.Args[0]) {
		log.Printf("ERROR: Graceful restart only possible when %q started with absolute path, ignoring this request.", os.Args[0])
		return
	}

	files, protos := sm.listenerFilesAndProtocols()

	log.Printf("gracefulRestart(): Beginning graceful restart with sockets: %v and protos: %q", files, protos)

	mypath, _ := filepath.Abs(os.Args[0])
	cmd := exec.Command(mypath, "-c", cfgPath, "-graceful", protos)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = files

	// The new process will kill -TERM us when it's ready
	if err := cmd.Start(); err != nil {
		log.Printf("gracefulRestart(): Failed to launch, error: %v", err)
	} else {
		gracefulChildPid = cmd.Process.Pid
		log.Printf("gracefulRestart(): Forked child, waiting to be killed...")
	}
}

func gracefulExit(rcvr *receiver.Receiver, hb *hub.Hub, blstr *blaster.Blaster, sm *serviceManager) {

	log.Printf("Gracefully exiting...")

	atomic.StoreInt32(&quitting, 1)

	if blstr != nil {
		blstr.Stop()
	}

	log.Printf("Waiting for all TCP connections to finish...")
	sm.closeListeners(false)
	hb.Close()
	graceful.TcpWg.Wait()
	log.Printf("TCP connections finished.")

	// Applies whatever is still queued and flushes every session.
	rcvr.Stop()

	if gracefulChildPid != 0 {
		// let the child know the data is flushed
		syscall.Kill(gracefulChildPid, syscall.SIGUSR1)
	}
}
