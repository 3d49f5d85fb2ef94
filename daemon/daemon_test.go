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
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/energetica/chartd/blaster"
	"github.com/energetica/chartd/hub"
	"github.com/energetica/chartd/receiver"
	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/serde"
	"github.com/energetica/chartd/session"
)

func Test_Init(t *testing.T) {

	// Stub out all the function Init calls

	save_readConfig := readConfig
	readConfig = func(cfgPath string) (*Config, error) {
		return &Config{MaxGapFill: 3}, nil
	}

	save_getCwd := getCwd
	getCwd = func() string { return "cwd" }

	save_processConfig := processConfig
	processConfig = func(c configer, wd string) error { return nil }

	save_savePid := savePid
	savePid = func(pidPath string) error { return nil }

	save_initDb := initDb
	initDb = func(cfg *Config) (serde.SerDe, error) { return serde.NewMemSerDe(), nil }

	var created *receiver.Receiver
	save_createReceiver := createReceiver
	createReceiver = func(cfg *Config, db serde.SerDe, pub receiver.Publisher) *receiver.Receiver {
		created = save_createReceiver(cfg, db, pub)
		return created
	}

	started := false
	save_startReceiver := startReceiver
	startReceiver = func(r *receiver.Receiver) error { started = true; return nil }

	waited := false
	save_waitForSignal := waitForSignal
	waitForSignal = func(r *receiver.Receiver, hb *hub.Hub, b *blaster.Blaster, sm *serviceManager, cfgPath string) {
		waited = true
	}

	defer func() {
		readConfig = save_readConfig
		getCwd = save_getCwd
		processConfig = save_processConfig
		savePid = save_savePid
		initDb = save_initDb
		createReceiver = save_createReceiver
		startReceiver = save_startReceiver
		waitForSignal = save_waitForSignal
	}()

	if cfg := Init("", ""); cfg == nil {
		t.Fatalf("Init() returned nil")
	}
	if !started || !waited {
		t.Errorf("started: %v, waited: %v", started, waited)
	}
	if created == nil || created.MaxGapFill != 3 {
		t.Errorf("receiver not created from config: %+v", created)
	}

	readConfig = func(cfgPath string) (*Config, error) { return nil, fmt.Errorf("no such file") }
	if cfg := Init("", ""); cfg != nil {
		t.Errorf("Init() with a bad config should return nil")
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("1d")); err != nil || d.Duration != 24*time.Hour {
		t.Errorf("1d: %v %v", d.Duration, err)
	}
	if err := d.UnmarshalText([]byte("4min")); err != nil || d.Duration != 4*time.Minute {
		t.Errorf("4min: %v %v", d.Duration, err)
	}
	if err := d.UnmarshalText([]byte("sometime")); err == nil {
		t.Errorf("sometime: expected an error")
	}
}

func Test_readConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chartd.conf")
	conf := `
pid-file = "chartd.pid"
log-file = "log/chartd.log"
log-cycle-interval = "24h"
http-listen-spec = "0.0.0.0:8888"
max-gap-fill = 4
tick-duration = "4min"
categories = ["revenues", "generation"]

[blaster]
enabled = true
players = 10
rate = 5
`
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHARTD_DB_CONNECT", "host=/tmp dbname=chartd")
	t.Setenv("CHARTD_BIND", "127.0.0.1")

	cfg, err := readConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxGapFill != 4 || cfg.TickDuration.Duration != 4*time.Minute || cfg.LogCycle.Duration != 24*time.Hour {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Categories) != 2 || !cfg.Blaster.Enabled || cfg.Blaster.Players != 10 {
		t.Errorf("cfg = %+v", cfg)
	}

	if err := cfg.processDbConnectString(); err != nil || cfg.DbConnectString != "host=/tmp dbname=chartd" {
		t.Errorf("db-connect-string = %q (%v)", cfg.DbConnectString, err)
	}
	if err := cfg.processListenSpecs(); err != nil || cfg.HttpListenSpec != "127.0.0.1:8888" {
		t.Errorf("http-listen-spec = %q (%v)", cfg.HttpListenSpec, err)
	}
	if err := cfg.processConfigPidFile(dir); err != nil || cfg.PidPath != filepath.Join(dir, "chartd.pid") {
		t.Errorf("pid-file = %q (%v)", cfg.PidPath, err)
	}
	if err := cfg.processConfigLogFile(""); err == nil {
		t.Errorf("relative log-file without a working directory should fail")
	}
	if err := cfg.processConfigLogFile(dir); err != nil {
		t.Errorf("processConfigLogFile(): %v", err)
	}
	if fi, err := os.Stat(filepath.Join(dir, "log")); err != nil || !fi.IsDir() {
		t.Errorf("log directory not created: %v", err)
	}
}

func TestConfig_processReceiver(t *testing.T) {
	c := &Config{}
	if err := c.processReceiver(); err != nil {
		t.Fatal(err)
	}
	if c.MaxCachedSessions != 1024 || c.MaxGapFill != rrd.Base || c.TickDuration.Duration != session.DefaultTickDuration {
		t.Errorf("defaults not applied: %+v", c)
	}
	for _, c := range []*Config{
		{MaxCachedSessions: -1},
		{MaxGapFill: -1},
		{TickDuration: duration{time.Millisecond}},
	} {
		if err := c.processReceiver(); err == nil {
			t.Errorf("expected an error for %+v", c)
		}
	}
}

func TestConfig_processCategories(t *testing.T) {
	c := &Config{Categories: []string{"Revenues", "storage"}}
	if err := c.processCategories(); err != nil {
		t.Fatal(err)
	}
	set := c.categorySet()
	if !set["revenues"] || !set["storage"] || len(set) != 2 {
		t.Errorf("categorySet() = %v", set)
	}
	c = &Config{Categories: []string{"emissions"}}
	if err := c.processCategories(); err != nil || !c.categorySet()["emissions"] {
		t.Errorf("emissions should be a known category: %v", err)
	}
	c = &Config{Categories: []string{"weather"}}
	if err := c.processCategories(); err == nil {
		t.Errorf("unknown category should be an error")
	}
	if (&Config{}).categorySet() != nil {
		t.Errorf("empty categories should accept everything")
	}
}

func TestConfig_processListenSpecs(t *testing.T) {
	if err := (&Config{}).processListenSpecs(); err == nil {
		t.Errorf("no listen specs should be an error")
	}
}

func Test_renameLogFile(t *testing.T) {
	save_timeNow, save_osRename := timeNow, osRename
	defer func() { timeNow, osRename = save_timeNow, save_osRename }()

	timeNow = func() time.Time { return time.Date(2016, 3, 4, 5, 6, 7, 0, time.UTC) }
	var from, to string
	osRename = func(a, b string) error { from, to = a, b; return nil }

	got := renameLogFile("/var/log/chartd.log")
	if from != "/var/log/chartd.log" || to != "/var/log/chartd.log-20160304_050607" || got != to {
		t.Errorf("renamed %q to %q", from, to)
	}
}

type fakeQueuer struct {
	sync.Mutex
	ticks []string
}

func (f *fakeQueuer) QueueTick(player string, key session.MetricKey, value float64, tick int64) {
	f.Lock()
	defer f.Unlock()
	f.ticks = append(f.ticks, fmt.Sprintf("%s %s %v %d", player, key, value, tick))
}

func (f *fakeQueuer) Snapshot(ctx context.Context, player string) (map[string]rrd.SeriesState, error) {
	return nil, serde.ErrNotFound
}

func (f *fakeQueuer) View(ctx context.Context, player string) (*session.ChartSession, error) {
	return nil, serde.ErrNotFound
}

func (f *fakeQueuer) waitFor(n int) []string {
	for i := 0; i < 200; i++ {
		f.Lock()
		if len(f.ticks) >= n {
			defer f.Unlock()
			return append([]string(nil), f.ticks...)
		}
		f.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	f.Lock()
	defer f.Unlock()
	return append([]string(nil), f.ticks...)
}

func Test_parseTextLine(t *testing.T) {
	player, key, value, tick, err := parseTextLine("alice revenues.industry 12.5 42")
	if err != nil || player != "alice" || key.String() != "revenues.industry" || value != 12.5 || tick != 42 {
		t.Errorf("parseTextLine() = %q %v %v %v %v", player, key, value, tick, err)
	}
	for _, line := range []string{
		"alice revenues.industry 12.5",
		"alice industry 12.5 42",
		"alice revenues.industry abc 42",
		"alice revenues.industry 1 0",
		"alice revenues.industry 1 x",
	} {
		if _, _, _, _, err := parseTextLine(line); err == nil {
			t.Errorf("%q: expected an error", line)
		}
	}
}

func TestTextService(t *testing.T) {
	fq := &fakeQueuer{}
	g := &textServiceManager{rcvr: fq, listenSpec: "127.0.0.1:0", timeout: 5 * time.Second}
	if err := g.Start(nil); err != nil {
		t.Fatal(err)
	}
	defer g.Stop()

	conn, err := net.Dial("tcp", g.listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(conn, "alice revenues.industry 12.5 42\nbogus\n\nalice demand.industry 3 42\n")
	conn.Close()

	got := fq.waitFor(2)
	if len(got) != 2 || got[0] != "alice revenues.industry 12.5 42" || got[1] != "alice demand.industry 3 42" {
		t.Errorf("queued %q", got)
	}
}

// Protocol 0: [("alice", "revenues.industry", (42, 12.5)), ("bob", "demand.industry", (43, 7))]
const testPickle = "((S'alice'\nS'revenues.industry'\n(I42\nF12.5\ntt(S'bob'\nS'demand.industry'\n(I43\nI7\nttl."

func framed(payload string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(payload)))
	buf.WriteString(payload)
	return buf.Bytes()
}

func Test_readPickledTicks(t *testing.T) {
	pts, err := readPickledTicks(bytes.NewReader(framed(testPickle)))
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 {
		t.Fatalf("got %d ticks", len(pts))
	}
	if pts[0].player != "alice" || pts[0].key.Subcategory != "industry" || pts[0].tick != 42 || pts[0].value != 12.5 {
		t.Errorf("pts[0] = %+v", pts[0])
	}
	if pts[1].player != "bob" || pts[1].key.Category != "demand" || pts[1].value != 7 {
		t.Errorf("pts[1] = %+v", pts[1])
	}

	if _, err := readPickledTicks(bytes.NewReader(framed("(S'x'\nl."))); err == nil {
		t.Errorf("malformed item should be an error")
	}
	if _, err := readPickledTicks(bytes.NewReader(framed(testPickle)[:10])); err == nil {
		t.Errorf("short read should be an error")
	}
	var big bytes.Buffer
	binary.Write(&big, binary.BigEndian, uint32(maxPickleSize+1))
	if _, err := readPickledTicks(&big); err == nil {
		t.Errorf("oversized message should be an error")
	}
}

func TestPickleService(t *testing.T) {
	fq := &fakeQueuer{}
	g := &pickleServiceManager{rcvr: fq, listenSpec: "127.0.0.1:0", timeout: 5 * time.Second}
	if err := g.Start(nil); err != nil {
		t.Fatal(err)
	}
	defer g.Stop()

	conn, err := net.Dial("tcp", g.listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conn.Write(framed(testPickle))
	conn.Close()

	if got := fq.waitFor(2); len(got) != 2 || got[1] != "bob demand.industry 7 43" {
		t.Errorf("queued %q", got)
	}
}

func Test_newMux(t *testing.T) {
	srv := httptest.NewServer(newMux(&fakeQueuer{}, hub.New(nil), nil))
	defer srv.Close()

	for path, want := range map[string]int{
		"/ping":                       http.StatusOK,
		"/metrics":                    http.StatusOK,
		"/charts?player=alice":        http.StatusNotFound,
		"/tick?player=alice":          http.StatusBadRequest,
		"/blaster/set?rate=1":         http.StatusNotFound,
		"/view?player=alice&category": http.StatusBadRequest,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("%s: status %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func Test_serviceManager(t *testing.T) {
	cfg := &Config{TextListenSpec: "127.0.0.1:0"}
	sm := newServiceManager(&fakeQueuer{}, hub.New(nil), nil, cfg)
	if err := sm.run(""); err != nil {
		t.Fatal(err)
	}
	files, protos := sm.listenerFilesAndProtocols()
	if len(files) != 1 || protos != "tt" {
		t.Errorf("files %v, protos %q", files, protos)
	}
	for _, f := range files {
		f.Close()
	}
	sm.closeListeners(false)
}
